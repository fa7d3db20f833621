package http

import (
	"github.com/gofiber/fiber/v2"
	geojson "github.com/paulmach/go.geojson"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// legacyPath mirrors one GraphHopper path: points is a GeoJSON LineString in
// [lon, lat] order, time is in milliseconds.
type legacyPath struct {
	Points   *geojson.Geometry `json:"points"`
	Distance float64           `json:"distance"`
	Time     int64             `json:"time"`
}

type legacyRouteResponse struct {
	Paths         []legacyPath `json:"paths"`
	DetourApplied bool         `json:"detour_applied"`
}

func newLegacyRouteResponse(res *domain.RouteResult) legacyRouteResponse {
	return legacyRouteResponse{
		Paths: []legacyPath{{
			Points:   geojson.NewLineStringGeometry(lonLatSlices(res.Route.Points)),
			Distance: res.Route.Distance,
			Time:     res.Route.DurationMillis,
		}},
		DetourApplied: res.DetourApplied,
	}
}

func lonLatSlices(points []domain.Coordinate) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = []float64{p.Lon, p.Lat}
	}
	return out
}

// newSafetyMapCollection renders the safety map as a GeoJSON FeatureCollection.
// GeoJSON is always [lon, lat].
func newSafetyMapCollection(snap *domain.SafetySnapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if snap == nil {
		return fc
	}
	for _, p := range snap.Danger {
		f := geojson.NewPolygonFeature([][][]float64{lonLatSlices(p.Ring)})
		f.ID = p.ID
		f.SetProperty("kind", "danger")
		f.SetProperty("safety_multiplier", p.SafetyMultiplier)
		fc.AddFeature(f)
	}
	for _, p := range snap.Preferred {
		f := geojson.NewPolygonFeature([][][]float64{lonLatSlices(p.Ring)})
		f.ID = p.ID
		f.SetProperty("kind", "preferred")
		fc.AddFeature(f)
	}
	for _, sp := range snap.SafePlaces {
		f := geojson.NewPointFeature([]float64{sp.Location.Lon, sp.Location.Lat})
		f.ID = sp.ID
		f.SetProperty("kind", "safe_place")
		if sp.Name != "" {
			f.SetProperty("name", sp.Name)
		}
		fc.AddFeature(f)
	}
	return fc
}

// SafetyMapGeoJSONHandler returns the safety map as GeoJSON.
func SafetyMapGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.SafetyMap.Snapshot(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		data, err := newSafetyMapCollection(snap).MarshalJSON()
		if err != nil {
			return errInternal(c, "encode geojson")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}
