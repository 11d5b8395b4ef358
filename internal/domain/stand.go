package domain

import (
	"fmt"
	"time"
)

// Coordinate is a position in decimal degrees.
// Index 0 is longitude, index 1 is latitude.
type Coordinate [2]float64

func (c Coordinate) Longitude() float64 { return c[0] }
func (c Coordinate) Latitude() float64  { return c[1] }

func (c Coordinate) String() string {
	return fmt.Sprintf("(%f, %f)", c[1], c[0])
}

// Valid reports whether the coordinate lies within the lat/lon ranges.
func (c Coordinate) Valid() bool {
	return c[1] >= -90 && c[1] <= 90 && c[0] >= -180 && c[0] <= 180
}

// Stand is a named aircraft parking position
type Stand struct {
	Name         string     `json:"name"`
	Coordinate   Coordinate `json:"coordinate"`
	Occupied     bool       `json:"occupied"`
	Callsign     string     `json:"callsign,omitempty"`
	AircraftType string     `json:"aircraftType,omitempty"`
	TileID       string     `json:"tileId"`
}

// AircraftPosition is a stationary aircraft that passed the feed filters
type AircraftPosition struct {
	Callsign     string     `json:"callsign"`
	Coordinate   Coordinate `json:"coordinate"`
	GroundSpeed  float64    `json:"groundSpeed"`
	AircraftType string     `json:"aircraftType,omitempty"`
}

// Thresholds are the filter and occupancy limits, fixed for the model's lifetime.
type Thresholds struct {
	MaxGroundSpeedKts   float64 `json:"maxGroundSpeedKts"`
	MaxCenterDistanceKm float64 `json:"maxCenterDistanceKm"`
	OccupancyRadiusM    float64 `json:"occupancyRadiusM"`
}

// ViewParams carries the reference center used by the scope filter.
type ViewParams struct {
	Center Coordinate `json:"center"`
	Zoom   float64    `json:"zoom"`
}

// StandDelta reports a stand whose occupancy or assigned aircraft changed
type StandDelta struct {
	Stand     *Stand    `json:"stand"`
	TileID    string    `json:"tileId"`
	ChangedAt time.Time `json:"changedAt"`
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a coordinate is within the bounding box
func (bb *BoundingBox) Contains(c Coordinate) bool {
	return c.Latitude() >= bb.MinLat && c.Latitude() <= bb.MaxLat &&
		c.Longitude() >= bb.MinLon && c.Longitude() <= bb.MaxLon
}
