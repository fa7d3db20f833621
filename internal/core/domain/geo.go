package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS 84 position stored in (longitude, latitude) order.
// It marshals to JSON as a GeoJSON position: [lon, lat].
type Coordinate struct {
	Lon float64
	Lat float64
}

// Valid reports whether the coordinate lies on the globe.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Point converts the coordinate to an orb point (X = lon, Y = lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// LatLon returns the client-facing [lat, lon] pair.
func (c Coordinate) LatLon() [2]float64 {
	return [2]float64{c.Lat, c.Lon}
}

// FromLatLon builds a Coordinate from a client-facing (lat, lon) pair.
func FromLatLon(lat, lon float64) Coordinate {
	return Coordinate{Lon: lon, Lat: lat}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lon, c.Lat})
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coordinate: %w", err)
	}
	c.Lon, c.Lat = pair[0], pair[1]
	return nil
}

// Ring is a polygon boundary. A valid ring is closed (first == last) and has
// at least three distinct vertices.
type Ring []Coordinate

// Closed reports whether the first and last coordinates are identical.
func (r Ring) Closed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

// Close returns a copy of the ring with the first coordinate appended when
// the ring is open.
func (r Ring) Close() Ring {
	out := make(Ring, len(r), len(r)+1)
	copy(out, r)
	if len(out) > 0 && !out.Closed() {
		out = append(out, out[0])
	}
	return out
}

// DistinctVertices counts unique coordinates in the ring.
func (r Ring) DistinctVertices() int {
	seen := make(map[Coordinate]struct{}, len(r))
	for _, c := range r {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Validate checks closure, vertex count and coordinate ranges.
func (r Ring) Validate() error {
	if !r.Closed() {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidPolygon)
	}
	if n := r.DistinctVertices(); n < 3 {
		return fmt.Errorf("%w: ring has %d distinct vertices, need at least 3", ErrInvalidPolygon, n)
	}
	for _, c := range r {
		if !c.Valid() {
			return fmt.Errorf("%w: coordinate %s out of range", ErrInvalidPolygon, c)
		}
	}
	return nil
}

// Orb converts the ring to an orb.Ring.
func (r Ring) Orb() orb.Ring {
	out := make(orb.Ring, len(r))
	for i, c := range r {
		out[i] = c.Point()
	}
	return out
}

// NewRing closes the given boundary and validates it. This is the insertion
// path for every stored polygon.
func NewRing(coords []Coordinate) (Ring, error) {
	ring := Ring(coords).Close()
	if err := ring.Validate(); err != nil {
		return nil, err
	}
	return ring, nil
}

// LineOrb converts a coordinate sequence to an orb.LineString.
func LineOrb(points []Coordinate) orb.LineString {
	out := make(orb.LineString, len(points))
	for i, c := range points {
		out[i] = c.Point()
	}
	return out
}
