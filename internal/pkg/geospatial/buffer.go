package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Buffer is the set of points within a radius (meters) of a polyline.
// A single-point line degenerates to a disk.
type Buffer struct {
	line   orb.LineString
	radius float64
	bound  orb.Bound
}

// BufferLine builds the buffer of radiusMeters around points.
func BufferLine(points []orb.Point, radiusMeters float64) Buffer {
	line := make(orb.LineString, len(points))
	copy(line, points)

	b := Buffer{line: line, radius: math.Max(radiusMeters, 0)}
	if len(line) > 0 {
		b.bound = padBound(line.Bound(), b.radius)
	}
	return b
}

// Radius returns the buffer radius in meters.
func (b Buffer) Radius() float64 { return b.radius }

// Bound returns a box that contains the whole buffer.
func (b Buffer) Bound() orb.Bound { return b.bound }

// Contains reports whether p is within the buffer, boundary included.
func (b Buffer) Contains(p orb.Point) bool {
	if len(b.line) == 0 || !b.bound.Contains(p) {
		return false
	}
	return b.DistanceTo(p) <= b.radius
}

// DistanceTo returns the distance in meters from p to the nearest point of the line.
func (b Buffer) DistanceTo(p orb.Point) float64 {
	switch len(b.line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(b.line[0], p)
	}

	best := math.Inf(1)
	for i := 1; i < len(b.line); i++ {
		if d := segmentDistance(b.line[i-1], b.line[i], p); d < best {
			best = d
		}
	}
	return best
}

// segmentDistance measures p against segment a-c on a local equirectangular
// plane centred on p. Accurate to well under a meter at buffer scales.
func segmentDistance(a, c, p orb.Point) float64 {
	return planar.DistanceFromSegment(toLocal(a, p), toLocal(c, p), orb.Point{0, 0})
}

func toLocal(q, origin orb.Point) orb.Point {
	cosLat := math.Cos(toRad(origin.Lat()))
	return orb.Point{
		(q.Lon() - origin.Lon()) * cosLat * metersPerDegree,
		(q.Lat() - origin.Lat()) * metersPerDegree,
	}
}
