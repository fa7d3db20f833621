package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// Clients send and receive coordinates as [lat, lon]; the domain stores
// [lon, lat]. Every flip happens in this file.

func toLatLon(c domain.Coordinate) [2]float64 {
	return c.LatLon()
}

func fromLatLon(p [2]float64) domain.Coordinate {
	return domain.FromLatLon(p[0], p[1])
}

func ringToLatLon(r domain.Ring) [][2]float64 {
	out := make([][2]float64, len(r))
	for i, c := range r {
		out[i] = toLatLon(c)
	}
	return out
}

// parsePair parses "a,b" into two floats.
func parsePair(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two comma-separated numbers, got %q", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad number %q", parts[0])
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad number %q", parts[1])
	}
	return a, b, nil
}

// parseLatLon parses a "lat,lon" query value.
func parseLatLon(s string) (domain.Coordinate, error) {
	lat, lon, err := parsePair(s)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return domain.FromLatLon(lat, lon), nil
}

// parseLonLat parses a "lon,lat" query value, the order used by the legacy paths.
func parseLonLat(s string) (domain.Coordinate, error) {
	lon, lat, err := parsePair(s)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{Lon: lon, Lat: lat}, nil
}

// SafetyMapView is the client-facing safety map.
type SafetyMapView struct {
	Heatmap    HeatmapView     `json:"heatmap"`
	SafePlaces CoordinatesView `json:"safePlaces"`
	Preferred  PolygonsView    `json:"preferred"`
}

type HeatmapView struct {
	Coordinates  [][][2]float64 `json:"coordinates"`
	SafetyScores []float64      `json:"safetyScores"`
}

type CoordinatesView struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type PolygonsView struct {
	Coordinates [][][2]float64 `json:"coordinates"`
}

func newSafetyMapView(snap *domain.SafetySnapshot) SafetyMapView {
	v := SafetyMapView{
		Heatmap: HeatmapView{
			Coordinates:  [][][2]float64{},
			SafetyScores: []float64{},
		},
		SafePlaces: CoordinatesView{Coordinates: [][2]float64{}},
		Preferred:  PolygonsView{Coordinates: [][][2]float64{}},
	}
	if snap == nil {
		return v
	}
	for _, p := range snap.Danger {
		v.Heatmap.Coordinates = append(v.Heatmap.Coordinates, ringToLatLon(p.Ring))
		v.Heatmap.SafetyScores = append(v.Heatmap.SafetyScores, p.SafetyMultiplier)
	}
	for _, sp := range snap.SafePlaces {
		v.SafePlaces.Coordinates = append(v.SafePlaces.Coordinates, toLatLon(sp.Location))
	}
	for _, p := range snap.Preferred {
		v.Preferred.Coordinates = append(v.Preferred.Coordinates, ringToLatLon(p.Ring))
	}
	return v
}

// SafePlaceView is a safe place with [lat, lon] coordinates.
type SafePlaceView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name,omitempty"`
	Coordinates [2]float64 `json:"coordinates"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func newSafePlaceView(sp domain.SafePlace) SafePlaceView {
	v := SafePlaceView{ID: sp.ID, Name: sp.Name, Coordinates: toLatLon(sp.Location)}
	if !sp.CreatedAt.IsZero() {
		t := sp.CreatedAt
		v.CreatedAt = &t
	}
	return v
}

// RouteView is a safe-route result with [lat, lon] points.
type RouteView struct {
	ID                  string         `json:"id"`
	Points              [][2]float64   `json:"points"`
	Distance            float64        `json:"distance"`
	DurationMillis      int64          `json:"duration_ms"`
	Profile             string         `json:"profile"`
	DetourApplied       bool           `json:"detour_applied"`
	SafePlace           *SafePlaceView `json:"safe_place,omitempty"`
	BaseDistance        float64        `json:"base_distance"`
	Heuristic           string         `json:"heuristic"`
	CandidatesEvaluated int            `json:"candidates_evaluated"`
	ComputedAt          time.Time      `json:"computed_at"`
}

func newRouteView(res *domain.RouteResult) RouteView {
	v := RouteView{
		ID:                  res.ID,
		Points:              make([][2]float64, len(res.Route.Points)),
		Distance:            res.Route.Distance,
		DurationMillis:      res.Route.DurationMillis,
		Profile:             res.Route.Profile,
		DetourApplied:       res.DetourApplied,
		BaseDistance:        res.BaseDistance,
		Heuristic:           string(res.Heuristic),
		CandidatesEvaluated: res.CandidatesEvaluated,
		ComputedAt:          res.ComputedAt,
	}
	for i, p := range res.Route.Points {
		v.Points[i] = toLatLon(p)
	}
	if res.SafePlace != nil {
		sp := newSafePlaceView(*res.SafePlace)
		v.SafePlace = &sp
	}
	return v
}

// SuggestionView is a geocoding hit with [lat, lon] coordinates.
type SuggestionView struct {
	Name        string     `json:"name"`
	Country     string     `json:"country,omitempty"`
	City        string     `json:"city,omitempty"`
	Street      string     `json:"street,omitempty"`
	Coordinates [2]float64 `json:"coordinates"`
}

func newSuggestionViews(hits []domain.Suggestion) []SuggestionView {
	out := make([]SuggestionView, len(hits))
	for i, h := range hits {
		out[i] = SuggestionView{
			Name:        h.Name,
			Country:     h.Country,
			City:        h.City,
			Street:      h.Street,
			Coordinates: toLatLon(h.Location),
		}
	}
	return out
}
