package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// collinearEps is the cross-product tolerance (degrees squared) under which
// three points are treated as collinear.
const collinearEps = 1e-12

// PointInPolygon reports whether p lies inside ring. Points on an edge or
// vertex count as inside.
func PointInPolygon(p orb.Point, ring orb.Ring) bool {
	if len(ring) < 3 {
		return false
	}
	if onBoundary(p, ring) {
		return true
	}
	return planar.RingContains(ring, p)
}

// SegmentIntersectsPolygon reports whether segment a-b touches ring: either
// endpoint is inside or the segment crosses or touches an edge.
func SegmentIntersectsPolygon(a, b orb.Point, ring orb.Ring) bool {
	if len(ring) < 3 {
		return false
	}
	if PointInPolygon(a, ring) || PointInPolygon(b, ring) {
		return true
	}
	if a == b {
		return false
	}

	n := len(ring)
	for i := 0; i < n; i++ {
		if segmentsIntersect(a, b, ring[i], ring[(i+1)%n]) {
			return true
		}
	}
	return false
}

func onBoundary(p orb.Point, ring orb.Ring) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		e1, e2 := ring[i], ring[(i+1)%n]
		if math.Abs(cross(e1, e2, p)) <= collinearEps && withinBox(e1, e2, p) {
			return true
		}
	}
	return false
}

// cross is the z component of (a-o) x (b-o).
func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// withinBox reports whether p lies in the axis-aligned box spanned by a and b.
func withinBox(a, b, p orb.Point) bool {
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

func sign(v float64) int {
	switch {
	case v > collinearEps:
		return 1
	case v < -collinearEps:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}

	// Collinear or touching cases.
	switch {
	case d1 == 0 && withinBox(q1, q2, p1):
		return true
	case d2 == 0 && withinBox(q1, q2, p2):
		return true
	case d3 == 0 && withinBox(p1, p2, q1):
		return true
	case d4 == 0 && withinBox(p1, p2, q2):
		return true
	}
	return false
}
