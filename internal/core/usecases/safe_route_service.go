package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/pkg/metrics"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

// DefaultProfile is used when a request names no travel profile.
const DefaultProfile = "foot"

// RouteOption adjusts a single GetSafeRoute call.
type RouteOption func(*routeOptions)

type routeOptions struct {
	heuristic domain.HeuristicMode
}

// WithHeuristic overrides the configured ranking mode for one request.
func WithHeuristic(mode domain.HeuristicMode) RouteOption {
	return func(o *routeOptions) {
		if mode != "" {
			o.heuristic = mode
		}
	}
}

// SafeRouteService computes routes biased away from danger polygons and,
// when worthwhile, through a nearby safe place.
type SafeRouteService struct {
	snapshots ports.SnapshotReader
	provider  ports.RouteProvider
	events    ports.EventPublisher
	planner   *DetourPlanner
	cfg       EngineConfig
	tracer    trace.Tracer
	now       func() time.Time
}

// NewSafeRouteService creates a new SafeRouteService. events may be nil.
func NewSafeRouteService(snapshots ports.SnapshotReader, provider ports.RouteProvider, events ports.EventPublisher, cfg EngineConfig) *SafeRouteService {
	cfg = cfg.withDefaults()
	return &SafeRouteService{
		snapshots: snapshots,
		provider:  provider,
		events:    events,
		planner:   NewDetourPlanner(provider, cfg),
		cfg:       cfg,
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
}

// GetSafeRoute computes the base route under the current cost model, then
// tries to improve it with a single safe-place detour. Only a failed base
// call is fatal; it is reported as domain.ErrProviderUnavailable.
func (s *SafeRouteService) GetSafeRoute(ctx context.Context, origin, dest domain.Coordinate, profile string, opts ...RouteOption) (*domain.RouteResult, error) {
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: origin %s", domain.ErrInvalidCoordinate, origin)
	}
	if !dest.Valid() {
		return nil, fmt.Errorf("%w: destination %s", domain.ErrInvalidCoordinate, dest)
	}
	if profile == "" {
		profile = DefaultProfile
	}

	o := routeOptions{heuristic: s.cfg.Heuristic}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := s.tracer.Start(ctx, telemetry.SpanGetSafeRoute, trace.WithAttributes(
		attribute.String(telemetry.AttrProfile, profile),
		attribute.String(telemetry.AttrHeuristic, string(o.heuristic)),
	))
	defer span.End()

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read safety snapshot: %w", err)
	}
	if snap == nil {
		snap = &domain.SafetySnapshot{}
	}

	model := BuildCostModel(snap, s.cfg.OutsidePreferredPenalty)

	base, err := s.baseRoute(ctx, origin, dest, profile, model)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "base route failed", "origin", origin, "destination", dest, "profile", profile, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	result := &domain.RouteResult{
		ID:           uuid.NewString(),
		Route:        *base,
		BaseDistance: base.Distance,
		Heuristic:    o.heuristic,
		ComputedAt:   s.now().UTC(),
	}

	outcome := s.planner.Plan(ctx, DetourRequest{
		Origin:      origin,
		Destination: dest,
		Profile:     profile,
		Model:       model,
		Base:        base,
		SafePlaces:  snap.SafePlaces,
		Danger:      snap.Danger,
		Heuristic:   o.heuristic,
	})
	result.CandidatesEvaluated = outcome.Evaluated

	if d := outcome.Selected; d != nil {
		sp := d.SafePlace
		result.Route = *d.Route
		result.DetourApplied = true
		result.SafePlace = &sp
		metrics.DetoursApplied.Inc()
		slog.InfoContext(ctx, "detour selected",
			"route_id", result.ID,
			"safe_place_id", sp.ID,
			"base_distance", base.Distance,
			"distance", d.Route.Distance,
			"heuristic", o.heuristic,
		)
	}

	if result.Route.Profile == "" {
		result.Route.Profile = profile
	}

	span.SetAttributes(
		attribute.Float64(telemetry.AttrBaseDistance, result.BaseDistance),
		attribute.Float64(telemetry.AttrDistance, result.Route.Distance),
		attribute.Bool(telemetry.AttrDetourApplied, result.DetourApplied),
	)

	s.publish(ctx, result)
	return result, nil
}

func (s *SafeRouteService) baseRoute(ctx context.Context, origin, dest domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanBaseRoute)
	defer span.End()

	route, err := timedRoute(ctx, s.provider, "base", origin, dest, nil, profile, model)
	if err != nil {
		return nil, fmt.Errorf("base route: %w", err)
	}
	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("base route: %w", err)
	}
	return route, nil
}

func (s *SafeRouteService) publish(ctx context.Context, result *domain.RouteResult) {
	if s.events == nil {
		return
	}
	ev := &domain.RouteComputedEvent{
		RouteID:       result.ID,
		Profile:       result.Route.Profile,
		Distance:      result.Route.Distance,
		BaseDistance:  result.BaseDistance,
		DetourApplied: result.DetourApplied,
		Time:          result.ComputedAt,
	}
	if result.SafePlace != nil {
		ev.SafePlaceID = result.SafePlace.ID
	}
	if err := s.events.PublishRouteComputed(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publish route computed failed", "route_id", result.ID, "error", err)
	}
}
