package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ttl-archiver/internal/app"
	"github.com/telhawk-systems/ttl-archiver/internal/dlq"
)

var (
	dlqListLimit   int
	dlqReplayLimit int
	dlqYes         bool
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead letter queue commands",
	Long:  "Inspect, replay and purge records the archiver could not write. Requires dlq.enabled.",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	RunE:  runDLQList,
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter queue statistics",
	RunE:  runDLQStats,
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-archive dead-lettered records",
	Long: `Replay writes each dead-lettered record to the archive again. Records that
are written are removed from the queue; records that still fail stay queued.`,
	RunE: runDLQReplay,
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered record",
	RunE:  runDLQPurge,
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqListLimit, "limit", 100, "maximum records to show (0 for all)")
	dlqReplayCmd.Flags().IntVar(&dlqReplayLimit, "limit", 0, "maximum records to replay (0 for all)")
	dlqPurgeCmd.Flags().BoolVar(&dlqYes, "yes", false, "confirm the purge")

	dlqCmd.AddCommand(dlqListCmd, dlqStatsCmd, dlqReplayCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}

// openDLQ builds the archiver and fails when no queue is configured.
func openDLQ(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.DLQ.Enabled {
		return nil, fmt.Errorf("%w: set dlq.enabled or ARCHIVER_DLQ_ENABLED=true", app.ErrDLQDisabled)
	}

	a, err := buildApp(cmd, cfg)
	if err != nil {
		return nil, err
	}
	if a.DLQ == nil {
		a.Close()
		return nil, fmt.Errorf("%w: %s backend could not be opened", app.ErrDLQDisabled, cfg.DLQ.Backend)
	}
	return a, nil
}

type dlqEntryView struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Reason    string    `json:"reason" yaml:"reason"`
	Error     string    `json:"error" yaml:"error"`
	ItemID    string    `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	Key       string    `json:"key,omitempty" yaml:"key,omitempty"`
	EventID   string    `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	Attempts  int       `json:"attempts" yaml:"attempts"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty"`
}

func viewOf(rec dlq.FailedRecord) dlqEntryView {
	return dlqEntryView{
		ID:        rec.ID,
		Timestamp: rec.Timestamp,
		Reason:    rec.Reason,
		Error:     rec.Error,
		ItemID:    rec.ItemID,
		Key:       rec.Key,
		EventID:   rec.EventID,
		Attempts:  rec.Attempts,
		Body:      string(rec.Body),
	}
}

func runDLQList(cmd *cobra.Command, args []string) error {
	a, err := openDLQ(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.DLQ.List(contextOf(cmd), dlqListLimit)
	if err != nil {
		return err
	}

	views := make([]dlqEntryView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewOf(rec))
	}

	w := cmd.OutOrStdout()
	if handled, err := render(w, outputFormat, views); handled {
		return err
	}

	if len(views) == 0 {
		Info(w, "No dead-lettered records")
		return nil
	}

	t := newTable("ID", "TIME", "REASON", "ITEM", "EVENT", "ERROR")
	for _, v := range views {
		t.addRow(v.ID, v.Timestamp.Format(time.RFC3339), v.Reason, v.ItemID, v.EventID, truncate(v.Error, 60))
	}
	t.render(w)
	return nil
}

func runDLQStats(cmd *cobra.Command, args []string) error {
	a, err := openDLQ(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.DLQ.Stats(contextOf(cmd))
	w := cmd.OutOrStdout()
	if handled, err := render(w, outputFormat, stats); handled {
		return err
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("STAT", "VALUE")
	for _, k := range keys {
		t.addRow(k, fmt.Sprint(stats[k]))
	}
	t.render(w)
	return nil
}

func runDLQReplay(cmd *cobra.Command, args []string) error {
	a, err := openDLQ(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ReplayDLQ(contextOf(cmd), dlqReplayLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if handled, err := render(w, outputFormat, res); handled {
		return err
	}

	Success(w, "Replayed %d record(s)", res.Replayed)
	if res.Failed > 0 {
		Warn(w, "%d record(s) still failing, left in the queue", res.Failed)
	}
	return nil
}

func runDLQPurge(cmd *cobra.Command, args []string) error {
	if !dlqYes {
		return fmt.Errorf("refusing to purge without --yes")
	}

	a, err := openDLQ(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.DLQ.Purge(contextOf(cmd)); err != nil {
		return err
	}
	Success(cmd.OutOrStdout(), "Dead letter queue purged")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
