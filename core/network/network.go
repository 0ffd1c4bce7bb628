package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/railsched/core/model"
)

var (
	// ErrNotFound is returned when a station or track code is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned by New when the topology is malformed.
	ErrInvalid = errors.New("invalid network")
	// ErrNoRoute is returned when no path joins two stations.
	ErrNoRoute = errors.New("no route")
)

// Network is the static infrastructure. It is read-only once built and safe
// for concurrent readers.
type Network struct {
	stations map[string]model.Station
	tracks   map[string]model.Track
	between  map[[2]string][]model.Track

	g     *simple.WeightedDirectedGraph
	ids   map[string]int64
	codes map[int64]string
}

// New validates and indexes the given stations and tracks.
func New(stations []model.Station, tracks []model.Track) (*Network, error) {
	n := &Network{
		stations: make(map[string]model.Station, len(stations)),
		tracks:   make(map[string]model.Track, len(tracks)),
		between:  make(map[[2]string][]model.Track),
		g:        simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:      make(map[string]int64, len(stations)),
		codes:    make(map[int64]string, len(stations)),
	}
	for i, s := range stations {
		if s.Code == "" {
			return nil, fmt.Errorf("%w: station %d has no code", ErrInvalid, i)
		}
		if _, dup := n.stations[s.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate station %s", ErrInvalid, s.Code)
		}
		if s.Platforms < 1 {
			return nil, fmt.Errorf("%w: station %s needs at least one platform", ErrInvalid, s.Code)
		}
		n.stations[s.Code] = s
		id := int64(i)
		n.ids[s.Code] = id
		n.codes[id] = s.Code
		n.g.AddNode(simple.Node(id))
	}
	for _, tr := range tracks {
		if err := n.addTrack(tr); err != nil {
			return nil, err
		}
	}
	for k := range n.between {
		sort.Slice(n.between[k], func(i, j int) bool { return n.between[k][i].ID < n.between[k][j].ID })
	}
	return n, nil
}

func (n *Network) addTrack(tr model.Track) error {
	switch {
	case tr.ID == "":
		return fmt.Errorf("%w: track without id", ErrInvalid)
	case tr.From == tr.To:
		return fmt.Errorf("%w: track %s is a self loop", ErrInvalid, tr.ID)
	case tr.DistanceKm <= 0:
		return fmt.Errorf("%w: track %s distance must be positive", ErrInvalid, tr.ID)
	case tr.MaxSpeedKmh <= 0:
		return fmt.Errorf("%w: track %s max speed must be positive", ErrInvalid, tr.ID)
	}
	if _, dup := n.tracks[tr.ID]; dup {
		return fmt.Errorf("%w: duplicate track %s", ErrInvalid, tr.ID)
	}
	from, ok := n.ids[tr.From]
	if !ok {
		return fmt.Errorf("%w: track %s references unknown station %s", ErrInvalid, tr.ID, tr.From)
	}
	to, ok := n.ids[tr.To]
	if !ok {
		return fmt.Errorf("%w: track %s references unknown station %s", ErrInvalid, tr.ID, tr.To)
	}
	n.tracks[tr.ID] = tr
	key := [2]string{tr.From, tr.To}
	n.between[key] = append(n.between[key], tr)

	// keep the shortest parallel track as the routing weight
	if e := n.g.WeightedEdge(from, to); e != nil && e.Weight() <= tr.DistanceKm {
		return nil
	}
	n.g.SetWeightedEdge(n.g.NewWeightedEdge(simple.Node(from), simple.Node(to), tr.DistanceKm))
	return nil
}

// TracksBetween returns the tracks running from one station to the other,
// sorted by id. The slice is empty when the stations are not adjacent.
func (n *Network) TracksBetween(from, to string) ([]model.Track, error) {
	if _, ok := n.stations[from]; !ok {
		return nil, fmt.Errorf("station %s: %w", from, ErrNotFound)
	}
	if _, ok := n.stations[to]; !ok {
		return nil, fmt.Errorf("station %s: %w", to, ErrNotFound)
	}
	return append([]model.Track(nil), n.between[[2]string{from, to}]...), nil
}

// PlatformCapacity returns the number of platforms of a station.
func (n *Network) PlatformCapacity(code string) (int, error) {
	s, ok := n.stations[code]
	if !ok {
		return 0, fmt.Errorf("station %s: %w", code, ErrNotFound)
	}
	return s.Platforms, nil
}

func (n *Network) Station(code string) (model.Station, bool) {
	s, ok := n.stations[code]
	return s, ok
}

func (n *Network) Track(id string) (model.Track, bool) {
	t, ok := n.tracks[id]
	return t, ok
}

// Stations returns all stations sorted by code.
func (n *Network) Stations() []model.Station {
	out := make([]model.Station, 0, len(n.stations))
	for _, s := range n.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Tracks returns all tracks sorted by id.
func (n *Network) Tracks() []model.Track {
	out := make([]model.Track, 0, len(n.tracks))
	for _, t := range n.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (n *Network) TrackCount() int { return len(n.tracks) }

// ShortestRoute returns the station codes of the shortest path by distance.
func (n *Network) ShortestRoute(from, to string) ([]string, error) {
	src, ok := n.ids[from]
	if !ok {
		return nil, fmt.Errorf("station %s: %w", from, ErrNotFound)
	}
	dst, ok := n.ids[to]
	if !ok {
		return nil, fmt.Errorf("station %s: %w", to, ErrNotFound)
	}
	if src == dst {
		return nil, fmt.Errorf("%w: %s to itself", ErrNoRoute, from)
	}
	nodes, _ := path.DijkstraFrom(simple.Node(src), n.g).To(dst)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, from, to)
	}
	return n.codesOf(nodes), nil
}

func (n *Network) codesOf(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, nd := range nodes {
		out[i] = n.codes[nd.ID()]
	}
	return out
}
