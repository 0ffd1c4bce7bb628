package optimizer

import (
	"errors"
	"fmt"
	"time"
)

// Timing solvers accepted in Config.Solver.
const (
	SolverLP          = "lp"
	SolverPropagation = "propagation"
)

// Config tunes the optimization run.
type Config struct {
	Enabled           bool   `json:"enabled" yaml:"enabled" koanf:"enabled"`
	TimeBudgetSeconds int    `json:"time_budget_seconds" yaml:"time_budget_seconds" koanf:"time_budget_seconds"`
	HorizonHours      int    `json:"horizon_hours" yaml:"horizon_hours" koanf:"horizon_hours"`
	Solver            string `json:"solver" yaml:"solver" koanf:"solver"`
	MaxLPVariables    int    `json:"max_lp_variables" yaml:"max_lp_variables" koanf:"max_lp_variables"`
	MaxIterations     int    `json:"max_iterations" yaml:"max_iterations" koanf:"max_iterations"`
	HeadwayMinutes    int    `json:"headway_minutes" yaml:"headway_minutes" koanf:"headway_minutes"`
	// StabilityWeight prices every minute a segment moves away from its
	// baseline start. Nil takes DefaultStabilityWeight; zero lets the LP
	// move slack segments freely.
	StabilityWeight *float64 `json:"stability_weight" yaml:"stability_weight" koanf:"stability_weight"`
}

// DefaultStabilityWeight is small next to the weight of the lowest priority
// train, so stability only decides between otherwise equal timings.
const DefaultStabilityWeight = 0.05

// DefaultConfig returns an enabled configuration with standard limits.
func DefaultConfig() Config {
	c := Config{Enabled: true}
	c.SetDefaults()
	return c
}

func (c *Config) SetDefaults() {
	if c.TimeBudgetSeconds == 0 {
		c.TimeBudgetSeconds = 30
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 48
	}
	if c.Solver == "" {
		c.Solver = SolverLP
	}
	if c.MaxLPVariables == 0 {
		c.MaxLPVariables = 200
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 2000
	}
	if c.StabilityWeight == nil {
		w := DefaultStabilityWeight
		c.StabilityWeight = &w
	}
}

func (c Config) Validate() error {
	switch c.Solver {
	case SolverLP, SolverPropagation:
	default:
		return fmt.Errorf("unknown optimizer solver %q", c.Solver)
	}
	if c.TimeBudgetSeconds < 0 || c.HorizonHours < 0 || c.MaxLPVariables < 0 || c.MaxIterations < 0 {
		return errors.New("optimizer limits must not be negative")
	}
	if c.HeadwayMinutes < 0 {
		return errors.New("headway_minutes must not be negative")
	}
	if c.StabilityWeight != nil && *c.StabilityWeight < 0 {
		return errors.New("stability_weight must not be negative")
	}
	return nil
}

func (c Config) stability() float64 {
	if c.StabilityWeight == nil {
		return DefaultStabilityWeight
	}
	return *c.StabilityWeight
}

// Budget is the wall-clock limit of one Solve call.
func (c Config) Budget() time.Duration {
	return time.Duration(c.TimeBudgetSeconds) * time.Second
}
