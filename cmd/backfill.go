package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/railsched/core/journal"
	"github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/jobs/kpibackfill"
	"github.com/kilianp07/railsched/scenario"
)

var backfillSince time.Duration

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute KPI snapshots from the journal and push them to the configured sinks",
	RunE:  backfill,
}

func init() {
	backfillCmd.Flags().DurationVar(&backfillSince, "since", 0, "only schedules journaled within this window, 0 for all")
	rootCmd.AddCommand(backfillCmd)
}

func backfill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Backend == "none" {
		return fmt.Errorf("backfill needs a journal backend")
	}
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()
	sink, err := metrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return err
	}
	defer metrics.Close(sink)
	var q journal.Query
	if backfillSince > 0 {
		q.Start = time.Now().Add(-backfillSince)
	}
	n, err := kpibackfill.Backfill(cmd.Context(), store, cfg.KPI, sc.Network.TrackCount(), sink, q)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "snapshots backfilled: %d\n", n)
	return nil
}
