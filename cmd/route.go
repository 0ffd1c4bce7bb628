package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/railsched/scenario"
)

var routeCmd = &cobra.Command{
	Use:   "route FROM TO",
	Short: "Print the shortest route and its tracks between two stations of the scenario network",
	Args:  cobra.ExactArgs(2),
	RunE:  route,
}

func route(cmd *cobra.Command, args []string) error {
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	stations, err := sc.Network.ShortestRoute(args[0], args[1])
	if err != nil {
		return err
	}
	var km float64
	tracks := make([]string, 0, len(stations)-1)
	for i := 0; i+1 < len(stations); i++ {
		between, err := sc.Network.TracksBetween(stations[i], stations[i+1])
		if err != nil {
			return err
		}
		best := between[0]
		for _, tr := range between[1:] {
			if tr.DistanceKm < best.DistanceKm {
				best = tr
			}
		}
		tracks = append(tracks, best.ID)
		km += best.DistanceKm
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", strings.Join(stations, " -> "))
	fmt.Fprintf(cmd.OutOrStdout(), "tracks: %s (%.1f km)\n", strings.Join(tracks, ", "), km)
	return nil
}
