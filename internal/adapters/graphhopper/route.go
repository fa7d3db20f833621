package graphhopper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/pkg/geospatial"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

type routeRequest struct {
	Profile       string       `json:"profile"`
	Points        [][2]float64 `json:"points"`
	CHDisable     bool         `json:"ch.disable"`
	PointsEncoded bool         `json:"points_encoded"`
	Instructions  bool         `json:"instructions"`
	CustomModel   *customModel `json:"custom_model,omitempty"`
}

type routeResponse struct {
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     int64   `json:"time"`
		Points   struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"points"`
	} `json:"paths"`
}

// ComputeRoute implements ports.RouteProvider. Via points are placed between
// origin and destination in order.
func (c *Client) ComputeRoute(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanProviderCall, trace.WithAttributes(
		attribute.String(telemetry.AttrProfile, profile),
		attribute.Int(telemetry.AttrViaCount, len(via)),
	))
	defer span.End()

	cm, err := toCustomModel(model)
	if err != nil {
		return nil, fmt.Errorf("build custom model: %w", err)
	}

	req := routeRequest{
		Profile:       profile,
		Points:        make([][2]float64, 0, len(via)+2),
		CHDisable:     true,
		PointsEncoded: false,
		CustomModel:   cm,
	}
	req.Points = append(req.Points, [2]float64{origin.Lon, origin.Lat})
	for _, v := range via {
		req.Points = append(req.Points, [2]float64{v.Lon, v.Lat})
	}
	req.Points = append(req.Points, [2]float64{dest.Lon, dest.Lat})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode route request: %w", err)
	}

	var resp routeResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/route", nil, body, &resp); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resp.Paths) == 0 {
		return nil, fmt.Errorf("graphhopper /route: response has no paths")
	}

	path := resp.Paths[0]
	route := &domain.Route{
		Points:         make([]domain.Coordinate, 0, len(path.Points.Coordinates)),
		Distance:       path.Distance,
		DurationMillis: path.Time,
		Profile:        profile,
		Via:            via,
	}
	for _, p := range path.Points.Coordinates {
		if len(p) < 2 {
			return nil, fmt.Errorf("graphhopper /route: malformed coordinate %v", p)
		}
		route.Points = append(route.Points, domain.Coordinate{Lon: p[0], Lat: p[1]})
	}
	// Some profiles omit distance when instructions are disabled.
	if route.Distance == 0 && len(route.Points) > 1 {
		route.Distance = geospatial.PathLength(domain.LineOrb(route.Points))
	}

	span.SetAttributes(attribute.Float64(telemetry.AttrDistance, route.Distance))
	return route, nil
}
