package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/railsched/app"
	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/infra/logger"
	"github.com/kilianp07/railsched/pkg/export"
	"github.com/kilianp07/railsched/scenario"
)

var (
	skipDisruptions bool
	outputFormat    string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate the schedule of a scenario, apply its disruptions and print the result as JSON",
	RunE:  schedule,
}

func init() {
	scheduleCmd.Flags().BoolVar(&skipDisruptions, "no-disruptions", false, "print the schedule before any disruption")
	scheduleCmd.Flags().StringVarP(&outputFormat, "format", "f", "report", "output format: report, json or csv")
}

// report is the JSON document printed by the schedule command.
type report struct {
	ScheduleID  string                          `json:"schedule_id"`
	Optimized   bool                            `json:"optimized"`
	Note        string                          `json:"note,omitempty"`
	Schedule    map[string]*model.TrainSchedule `json:"schedule"`
	KPIs        kpi.Report                      `json:"kpis"`
	Baseline    kpi.Report                      `json:"baseline_kpis"`
	Improvement kpi.Improvement                 `json:"improvement"`
	Disruptions []disruption.Outcome            `json:"disruptions,omitempty"`
}

func schedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	svc.Start(ctx)
	res, err := svc.Load(ctx, sc)
	if err != nil {
		return err
	}
	out := report{ScheduleID: res.Schedule.ID, Optimized: res.Optimized}
	if res.OptimizationErr != nil {
		out.Note = res.OptimizationErr.Error()
	}
	if !skipDisruptions {
		out.Disruptions, err = scenario.Replay(ctx, svc.Engine, sc, 0, logger.New("replay"))
		if err != nil {
			return err
		}
	}
	cur, err := svc.Engine.CurrentSchedule()
	if err != nil {
		return err
	}
	if outputFormat != "report" {
		return export.Write(cmd.OutOrStdout(), cur, outputFormat)
	}
	out.Schedule = cur.Trains
	out.ScheduleID = cur.ID
	if out.KPIs, err = svc.Engine.KPIs(); err != nil {
		return err
	}
	if out.Baseline, err = svc.Engine.BaselineKPIs(); err != nil {
		return err
	}
	if out.Improvement, err = svc.Engine.Improvement(); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
