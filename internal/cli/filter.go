package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ttl-archiver/internal/classifier"
)

var filterPatternCmd = &cobra.Command{
	Use:   "filter-pattern",
	Short: "Print the event source mapping filter for TTL expiries",
	Long: `Prints the Lambda event source mapping filter pattern that admits only TTL
expiry records. The function re-checks every record with the same rule, so the
filter is an optimization, not a requirement.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pattern, err := classifier.New(cfg.Source.ServicePrincipal).FilterPattern()
		if err != nil {
			return fmt.Errorf("render filter pattern: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pattern)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filterPatternCmd)
}
