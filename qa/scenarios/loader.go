// Package scenarios runs acceptance cases: a scenario plus the schedule and
// KPI properties expected after its disruptions are applied.
package scenarios

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/railsched/core/optimizer"
	"github.com/kilianp07/railsched/scenario"
)

type TrainExpectation struct {
	Status           string     `yaml:"status,omitempty"`
	DelayMinutes     *float64   `yaml:"delay_minutes,omitempty"`
	MinDelay         *float64   `yaml:"min_delay,omitempty"`
	MaxDelay         *float64   `yaml:"max_delay,omitempty"`
	DepartsNotBefore *time.Time `yaml:"departs_not_before,omitempty"`
	DepartsAt        *time.Time `yaml:"departs_at,omitempty"`
	ReasonContains   string     `yaml:"reason_contains,omitempty"`
	// Unchanged requires the train to match its schedule before the
	// disruptions.
	Unchanged bool `yaml:"unchanged,omitempty"`
}

type Expected struct {
	Optimized       *bool                       `yaml:"optimized,omitempty"`
	Trains          map[string]TrainExpectation `yaml:"trains"`
	MinPunctuality  *float64                    `yaml:"min_punctuality,omitempty"`
	MaxAverageDelay *float64                    `yaml:"max_average_delay,omitempty"`
	NoConflicts     bool                        `yaml:"no_conflicts,omitempty"`
	Residual        int                         `yaml:"residual,omitempty"`
}

type Case struct {
	scenario.File `yaml:",inline"`
	Description   string `yaml:"description,omitempty"`
	// Optimizer overrides the engine default when set.
	Optimizer *optimizer.Config `yaml:"optimizer,omitempty"`
	Expected  Expected          `yaml:"expected"`
}

func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
