package usecases

import (
	"github.com/paulmach/orb"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/pkg/geospatial"
)

type scoredPolygon struct {
	ring    orb.Ring
	bound   orb.Bound
	penalty float64
}

// BadnessScore returns the route distance plus, for every segment and every
// danger polygon it intersects, segment length times (1 - multiplier).
// Overlapping polygons compound. Invalid polygons are ignored.
func BadnessScore(route *domain.Route, danger []domain.DangerPolygon) float64 {
	if route == nil {
		return 0
	}

	polys := make([]scoredPolygon, 0, len(danger))
	for _, p := range danger {
		if p.Validate() != nil || p.SafetyMultiplier == 1 {
			continue
		}
		ring := p.Ring.Orb()
		polys = append(polys, scoredPolygon{ring: ring, bound: ring.Bound(), penalty: 1 - p.SafetyMultiplier})
	}

	score := route.Distance
	if len(polys) == 0 {
		return score
	}

	for i := 1; i < len(route.Points); i++ {
		a, b := route.Points[i-1].Point(), route.Points[i].Point()
		segBound := orb.Bound{Min: a, Max: a}.Extend(b)
		segLen := geospatial.Distance(a, b)

		for _, p := range polys {
			if !p.bound.Intersects(segBound) {
				continue
			}
			if geospatial.SegmentIntersectsPolygon(a, b, p.ring) {
				score += segLen * p.penalty
			}
		}
	}
	return score
}
