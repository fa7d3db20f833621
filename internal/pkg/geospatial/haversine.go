package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// metersPerDegree is the length of one degree of latitude on the sphere
// used by orb/geo.
const metersPerDegree = orb.EarthRadius * math.Pi / 180

// Distance returns the great-circle distance in meters between two points.
// Points are (lon, lat).
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// PathLength sums the great-circle length of a polyline in meters.
func PathLength(points []orb.Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / metersPerDegree
	cosLat := math.Cos(toRad(lat))
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	lonDelta := radiusMeters / (metersPerDegree * cosLat)

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// padBound grows b by radiusMeters in every direction. The longitude pad is
// taken at the latitude farthest from the equator so the box never undershoots.
func padBound(b orb.Bound, radiusMeters float64) orb.Bound {
	widest := math.Max(math.Abs(b.Min.Lat()), math.Abs(b.Max.Lat()))
	minLat, _, _, lonDelta := BoundingBox(widest, 0, radiusMeters)
	latDelta := widest - minLat
	return orb.Bound{
		Min: orb.Point{b.Min.Lon() - lonDelta, b.Min.Lat() - latDelta},
		Max: orb.Point{b.Max.Lon() + lonDelta, b.Max.Lat() + latDelta},
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
