package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ReporterConfig drives the periodic KPI report of the serve command.
type ReporterConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression or descriptor such as "@every 1m".
	Schedule string `json:"schedule"`
}

func (c *ReporterConfig) SetDefaults() {
	if c.Schedule == "" {
		c.Schedule = "@every 1m"
	}
}

func (c ReporterConfig) Validate() error {
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("reporter schedule %q: %w", c.Schedule, err)
	}
	return nil
}
