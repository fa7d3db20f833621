package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

// profiles the routing provider accepts.
var profiles = map[string]bool{
	"foot": true, "hike": true, "bike": true, "mtb": true, "racingbike": true,
	"car": true, "scooter": true, "small_truck": true, "truck": true,
}

// routeQuery holds the parsed safe-route query parameters.
type routeQuery struct {
	origin, dest domain.Coordinate
	profile      string
	opts         []usecases.RouteOption
}

// parseRouteQuery validates the shared safe-route parameters. parse converts
// an endpoint string in the caller's axis order.
func parseRouteQuery(c *fiber.Ctx, parse func(string) (domain.Coordinate, error)) (*routeQuery, error) {
	o, d := c.Query("origin"), c.Query("destination")
	if o == "" || d == "" {
		return nil, errors.New("origin and destination are required")
	}

	var (
		q   routeQuery
		err error
	)
	if q.origin, err = parse(o); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if q.dest, err = parse(d); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	q.profile = strings.ToLower(c.Query("profile", usecases.DefaultProfile))
	if !profiles[q.profile] {
		return nil, fmt.Errorf("unknown profile %q", q.profile)
	}

	if h := c.Query("heuristic"); h != "" {
		mode, err := domain.ParseHeuristicMode(h)
		if err != nil {
			return nil, err
		}
		q.opts = append(q.opts, usecases.WithHeuristic(mode))
	}
	return &q, nil
}

// SafeRouteHandler computes a safety-aware route.
// Query: origin=lat,lon destination=lat,lon [profile] [heuristic].
func SafeRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseRouteQuery(c, parseLatLon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.SafeRoutes.GetSafeRoute(c.UserContext(), q.origin, q.dest, q.profile, q.opts...)
		if err != nil {
			return writeError(c, err)
		}

		c.Set("Cache-Control", "private, no-store")
		return c.JSON(newRouteView(res))
	}
}

// SafetyMapHandler returns the whole safety map in [lat, lon] order.
func SafetyMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.SafetyMap.Snapshot(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(newSafetyMapView(snap))
	}
}

type addPolygonRequest struct {
	Coordinates [][2]float64 `json:"coordinates"` // [lat, lon]
	SafetyScore *float64     `json:"safetyScore"`
}

// AddPolygonHandler stores a danger or preferred polygon and returns the
// refreshed safety map.
func AddPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req addPolygonRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.SafetyScore == nil {
			return errBadRequest(c, "safetyScore is required")
		}
		coords := make([]domain.Coordinate, len(req.Coordinates))
		for i, p := range req.Coordinates {
			coords[i] = fromLatLon(p)
		}
		return addPolygon(c, deps, coords, *req.SafetyScore, fiber.StatusCreated)
	}
}

func addPolygon(c *fiber.Ctx, deps *Dependencies, coords []domain.Coordinate, score float64, status int) error {
	ctx := c.UserContext()
	for _, p := range coords {
		if !p.Valid() {
			return errBadRequest(c, "invalid coordinate "+p.String())
		}
	}
	ev, err := deps.SafetyMap.AddPolygon(ctx, coords, score)
	if err != nil {
		return writeError(c, err)
	}
	LoggerFromCtx(ctx).Info("polygon added", "kind", ev.Kind, "id", ev.ID, "score", score)

	snap, err := deps.SafetyMap.Snapshot(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(status).JSON(newSafetyMapView(snap))
}

type addSafePlaceRequest struct {
	Coordinates *[2]float64 `json:"coordinates"` // [lat, lon]
	Name        string      `json:"name"`
}

// AddSafePlaceHandler stores a safe place and returns the refreshed safety map.
func AddSafePlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req addSafePlaceRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Coordinates == nil {
			return errBadRequest(c, "coordinates are required")
		}
		if len(req.Name) > 200 {
			return errBadRequest(c, "name too long (max 200 characters)")
		}
		return addSafePlace(c, deps, fromLatLon(*req.Coordinates), req.Name, fiber.StatusCreated)
	}
}

func addSafePlace(c *fiber.Ctx, deps *Dependencies, loc domain.Coordinate, name string, status int) error {
	ctx := c.UserContext()
	sp, err := deps.SafetyMap.AddSafePlace(ctx, loc, name)
	if err != nil {
		return writeError(c, err)
	}
	LoggerFromCtx(ctx).Info("safe place added", "id", sp.ID)

	snap, err := deps.SafetyMap.Snapshot(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(status).JSON(newSafetyMapView(snap))
}

// ListSafePlacesHandler returns safe places with offset/limit pagination.
func ListSafePlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)

		places, total, err := deps.SafetyMap.ListSafePlaces(c.UserContext(), offset, limit)
		if err != nil {
			return writeError(c, err)
		}

		views := make([]SafePlaceView, len(places))
		for i, sp := range places {
			views[i] = newSafePlaceView(sp)
		}

		return sendPage(c, views, Pagination{Offset: offset, Limit: limit, Total: total})
	}
}

// SuggestionsHandler autocompletes place names. Query: query (or q), limit.
func SuggestionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("query", c.Query("q"))
		if query == "" {
			return errBadRequest(c, "query parameter is required")
		}
		if len(query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		hits, err := deps.Suggestions.Search(c.UserContext(), query, c.QueryInt("limit", 5))
		if err != nil {
			return writeError(c, err)
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(newSuggestionViews(hits))
	}
}

// ---- Legacy paths ----
// These keep the pre-v1 wire format: coordinates arrive as lon,lat and
// writes take their input from the query string.

// LegacyRouteHandler serves GET /route with a GraphHopper-shaped body.
func LegacyRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseRouteQuery(c, parseLonLat)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.SafeRoutes.GetSafeRoute(c.UserContext(), q.origin, q.dest, q.profile, q.opts...)
		if err != nil {
			return writeError(c, err)
		}

		c.Set("Cache-Control", "private, no-store")
		return c.JSON(newLegacyRouteResponse(res))
	}
}

// LegacyAddPolygonHandler serves POST /add_polygon?polygon={"coordinates":[[lon,lat],...]}&safetyScore=.
func LegacyAddPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var poly struct {
			Coordinates [][2]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal([]byte(c.Query("polygon")), &poly); err != nil {
			return errBadRequest(c, "polygon must be JSON with a coordinates array")
		}
		score, err := strconv.ParseFloat(c.Query("safetyScore"), 64)
		if err != nil {
			return errBadRequest(c, "safetyScore must be a number")
		}
		coords := make([]domain.Coordinate, len(poly.Coordinates))
		for i, p := range poly.Coordinates {
			coords[i] = domain.Coordinate{Lon: p[0], Lat: p[1]}
		}
		return addPolygon(c, deps, coords, score, fiber.StatusOK)
	}
}

// LegacyAddSafePlaceHandler serves POST /add_safe_place?coordinates=lon,lat.
func LegacyAddSafePlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		loc, err := parseLonLat(c.Query("coordinates"))
		if err != nil {
			return errBadRequest(c, "coordinates: "+err.Error())
		}
		return addSafePlace(c, deps, loc, c.Query("name"), fiber.StatusOK)
	}
}
