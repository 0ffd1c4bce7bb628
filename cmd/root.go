package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/railsched/app"
	"github.com/kilianp07/railsched/config"
	coremon "github.com/kilianp07/railsched/core/monitoring"
	"github.com/kilianp07/railsched/infra/logger"
	"github.com/kilianp07/railsched/infra/monitoring"
	"github.com/kilianp07/railsched/scenario"
)

var (
	cfgPath      string
	scenarioPath string
)

var rootCmd = &cobra.Command{
	Use:   "railsched",
	Short: "Rail network scheduling engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load a scenario, replay its disruptions and expose metrics until interrupted",
	RunE:  serve,
}

var replaySpeed float64

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults and RS_ variables when empty)")
	rootCmd.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "scenario.yaml", "scenario file")
	serveCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "replay speed factor, 0 applies all disruptions at once")
	rootCmd.AddCommand(serveCmd, scheduleCmd, routeCmd)
}

// Execute runs the CLI until it completes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}
	coremon.Init(mon)
	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
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
	return svc.Run(ctx, sc, replaySpeed)
}
