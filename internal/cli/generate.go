package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ttl-archiver/internal/seeder"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

var (
	generateCount    int
	generateTTLRatio float64
	generateSeed     int64
	generateTable    string
	generateOut      string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic stream batch",
	Long: `Generate writes a DynamoDB stream Lambda event containing a mix of TTL
expiries, user deletes, inserts and modifications. Pipe it into replay:

  ttlarchiver generate --count 50 | ttlarchiver replay --dry-run -`,
	RunE: runGenerate,
}

func init() {
	defaults := seeder.DefaultOptions()
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", defaults.Count, "records in the batch")
	generateCmd.Flags().Float64Var(&generateTTLRatio, "ttl-ratio", defaults.TTLRatio, "fraction of records that are TTL expiries")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "random seed (0 uses the clock)")
	generateCmd.Flags().StringVar(&generateTable, "table", defaults.Table, "table name used in event source ARNs")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "write to file instead of stdout")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generateCount < 0 {
		return fmt.Errorf("--count must not be negative")
	}
	if generateTTLRatio < 0 || generateTTLRatio > 1 {
		return fmt.Errorf("--ttl-ratio must be between 0 and 1")
	}

	opts := seeder.DefaultOptions()
	opts.Count = generateCount
	opts.TTLRatio = generateTTLRatio
	opts.Seed = generateSeed
	opts.Table = generateTable

	batch := seeder.NewGenerator(opts).Batch()

	if generateOut == "" {
		return stream.Encode(cmd.OutOrStdout(), batch)
	}

	f, err := os.Create(generateOut)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := stream.Encode(f, batch); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	Success(cmd.ErrOrStderr(), "Wrote %d records to %s", len(batch.Records), generateOut)
	return nil
}
