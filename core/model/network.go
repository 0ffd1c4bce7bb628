package model

// Direction tags a track with its running direction.
type Direction string

const (
	DirectionUp            Direction = "UP"
	DirectionDown          Direction = "DOWN"
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// Station is a node of the rail network.
type Station struct {
	Code       string `json:"code" yaml:"code"`
	Name       string `json:"name" yaml:"name"`
	Platforms  int    `json:"platforms" yaml:"platforms"`
	IsTerminus bool   `json:"is_terminus" yaml:"is_terminus"`
}

// Track is a directed edge between two stations. A round trip requires two
// tracks, one per direction.
type Track struct {
	ID          string    `json:"id" yaml:"id"`
	From        string    `json:"from" yaml:"from"`
	To          string    `json:"to" yaml:"to"`
	DistanceKm  float64   `json:"distance_km" yaml:"distance_km"`
	MaxSpeedKmh float64   `json:"max_speed" yaml:"max_speed"`
	Direction   Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}
