package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/railsched/infra/kpi"
)

var (
	historyDB     string
	historySource string
	historyDays   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the daily KPI averages stored by the sqlite metrics sink",
	RunE:  history,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "railsched-kpi.db", "KPI history database")
	historyCmd.Flags().StringVar(&historySource, "source", "current", "snapshot source: baseline, current or backfill")
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "number of days to show, today included")
	rootCmd.AddCommand(historyCmd)
}

func history(cmd *cobra.Command, _ []string) error {
	if historyDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	store, err := kpi.NewSQLiteStore(historyDB)
	if err != nil {
		return fmt.Errorf("open kpi history: %w", err)
	}
	defer store.Close()
	end := time.Now()
	recs, err := store.Query(historySource, end.AddDate(0, 0, 1-historyDays), end)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSNAPSHOTS\tPUNCTUALITY\tAVG DELAY\tUTILIZATION\tMAX DELAYED\tMAX CANCELLED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%d\t%d\n", r.Date.Format(time.DateOnly), r.Snapshots,
			r.Punctuality, r.AverageDelay, r.Utilization, r.MaxDelayedTrains, r.Cancelled)
	}
	return tw.Flush()
}
