// Package scenario loads a network, its trains and a timeline of disruptions
// from a YAML or JSON file.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
)

// ErrInvalid is returned when a scenario cannot be turned into engine input.
var ErrInvalid = errors.New("invalid scenario")

// File is the on-disk layout of a scenario.
type File struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Network     NetworkSpec       `json:"network" yaml:"network"`
	Trains      []TrainSpec       `json:"trains" yaml:"trains"`
	Disruptions []TimedDisruption `json:"disruptions,omitempty" yaml:"disruptions,omitempty"`
}

type NetworkSpec struct {
	Stations []model.Station `json:"stations" yaml:"stations"`
	Tracks   []model.Track   `json:"tracks" yaml:"tracks"`
}

// TrainSpec is a train whose route may be given as source and destination
// only. The route is then the shortest path between them.
type TrainSpec struct {
	model.Train `yaml:",inline"`
	From        string `json:"source,omitempty" yaml:"source,omitempty"`
	To          string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// TimedDisruption fires Spec once AfterSeconds have elapsed in a replay.
type TimedDisruption struct {
	disruption.Spec `yaml:",inline"`
	AfterSeconds    int `json:"after_seconds" yaml:"after_seconds"`
}

// After is the replay offset of the disruption.
func (d TimedDisruption) After() time.Duration {
	return time.Duration(d.AfterSeconds) * time.Second
}

// Scenario is a resolved File ready for the engine.
type Scenario struct {
	Name        string
	Network     *network.Network
	Trains      []model.Train
	Disruptions []TimedDisruption
}

// Load reads a scenario file; the format follows the extension.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(f, format)
}

// Decode reads a scenario in format "yaml" or "json" from r.
func Decode(r io.Reader, format string) (*Scenario, error) {
	var file File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&file); err != nil {
			return nil, fmt.Errorf("decode scenario: %w", err)
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&file); err != nil {
			return nil, fmt.Errorf("decode scenario: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format: %s", format)
	}
	return file.Resolve()
}

// Resolve builds the network, completes train routes and orders the
// disruptions by their offset.
func (f File) Resolve() (*Scenario, error) {
	net, err := network.New(f.Network.Stations, f.Network.Tracks)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{Name: f.Name, Network: net, Trains: make([]model.Train, 0, len(f.Trains))}
	for i, ts := range f.Trains {
		tr := ts.Train
		if len(tr.Route) == 0 {
			if ts.From == "" || ts.To == "" {
				return nil, fmt.Errorf("%w: train %d (%s) needs a route or a source and destination", ErrInvalid, i, tr.ID)
			}
			route, err := net.ShortestRoute(ts.From, ts.To)
			if err != nil {
				return nil, fmt.Errorf("%w: train %s: %w", ErrInvalid, tr.ID, err)
			}
			tr.Route = route
		}
		sc.Trains = append(sc.Trains, tr)
	}
	for _, d := range f.Disruptions {
		if d.AfterSeconds < 0 {
			return nil, fmt.Errorf("%w: disruption %s has a negative offset", ErrInvalid, d.EventID)
		}
	}
	sc.Disruptions = append([]TimedDisruption(nil), f.Disruptions...)
	sort.SliceStable(sc.Disruptions, func(i, j int) bool {
		return sc.Disruptions[i].AfterSeconds < sc.Disruptions[j].AfterSeconds
	})
	return sc, nil
}
