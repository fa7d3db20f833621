package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/pkg/geospatial"
	"github.com/samirrijal/safewalk/internal/pkg/metrics"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

// Candidate outcomes, used as metric labels.
const (
	outcomeAccepted   = "accepted"
	outcomeOverBudget = "over_budget"
	outcomeFailed     = "failed"
	outcomeSkipped    = "skipped"
)

// DetourRequest carries everything the planner needs for one route.
type DetourRequest struct {
	Origin      domain.Coordinate
	Destination domain.Coordinate
	Profile     string
	Model       domain.CostBiasModel
	Base        *domain.Route
	SafePlaces  []domain.SafePlace
	// Danger is only read by the badness heuristic.
	Danger    []domain.DangerPolygon
	Heuristic domain.HeuristicMode
}

// Detour is an accepted candidate.
type Detour struct {
	SafePlace domain.SafePlace
	Route     *domain.Route
	Score     float64
}

// DetourOutcome is the result of planning. Selected is nil when no candidate
// survived, which is a normal outcome.
type DetourOutcome struct {
	Selected  *Detour
	Evaluated int
	TimedOut  bool
}

// DetourPlanner searches safe places near a base route for a detour that
// stays within the overhead budget.
type DetourPlanner struct {
	provider ports.RouteProvider
	cfg      EngineConfig
	tracer   trace.Tracer
}

// NewDetourPlanner creates a new DetourPlanner.
func NewDetourPlanner(provider ports.RouteProvider, cfg EngineConfig) *DetourPlanner {
	return &DetourPlanner{
		provider: provider,
		cfg:      cfg.withDefaults(),
		tracer:   telemetry.Tracer(),
	}
}

// Candidates returns the safe places inside the route buffer and outside the
// exclusion radius of both endpoints, ordered by ascending id.
func (p *DetourPlanner) Candidates(base *domain.Route, origin, dest domain.Coordinate, places []domain.SafePlace) []domain.SafePlace {
	if base == nil || len(places) == 0 {
		return nil
	}

	buf := geospatial.BufferLine(domain.LineOrb(base.Points), p.cfg.BufferRadiusMeters)

	o, d := origin.Point(), dest.Point()
	var out []domain.SafePlace
	for _, sp := range places {
		loc := sp.Location.Point()
		if !buf.Contains(loc) {
			continue
		}
		if geospatial.Distance(loc, o) <= p.cfg.ExclusionRadiusMeters ||
			geospatial.Distance(loc, d) <= p.cfg.ExclusionRadiusMeters {
			continue
		}
		out = append(out, sp)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type candidateResult struct {
	detour *Detour
	err    error
}

// Plan evaluates every candidate on a bounded worker pool and selects the
// lowest-scoring one, ties going to the lowest safe-place id. If the
// candidate phase times out no detour is selected.
func (p *DetourPlanner) Plan(ctx context.Context, req DetourRequest) DetourOutcome {
	candidates := p.Candidates(req.Base, req.Origin, req.Destination, req.SafePlaces)
	if len(candidates) == 0 {
		return DetourOutcome{}
	}

	mode := req.Heuristic
	if mode == "" {
		mode = p.cfg.Heuristic
	}

	ctx, span := p.tracer.Start(ctx, telemetry.SpanDetourPlan, trace.WithAttributes(
		attribute.Int(telemetry.AttrCandidates, len(candidates)),
		attribute.String(telemetry.AttrHeuristic, string(mode)),
	))
	defer span.End()

	if p.cfg.CandidateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CandidateTimeout)
		defer cancel()
	}

	results := make([]candidateResult, len(candidates))
	issued := 0

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, sp := range candidates {
		if ctx.Err() != nil {
			break
		}
		issued++
		g.Go(func() error {
			// Queued work may start after the deadline.
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			d, err := p.evaluate(ctx, req, mode, sp)
			results[i] = candidateResult{detour: d, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := DetourOutcome{Evaluated: issued}
	if ctx.Err() != nil {
		out.TimedOut = true
		metrics.DetourCandidates.WithLabelValues(outcomeSkipped).Add(float64(len(candidates) - issued))
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, "timeout"))
		slog.WarnContext(ctx, "detour candidate phase timed out, keeping base route",
			"candidates", len(candidates), "issued", issued)
		return out
	}

	for i := range results {
		r := results[i]
		if r.err != nil {
			slog.DebugContext(ctx, "detour candidate rejected", "safe_place_id", candidates[i].ID, "error", r.err)
			continue
		}
		if out.Selected == nil || r.detour.Score < out.Selected.Score {
			out.Selected = r.detour
		}
	}

	if out.Selected != nil {
		span.SetAttributes(attribute.Int64(telemetry.AttrSafePlaceID, out.Selected.SafePlace.ID))
	}
	return out
}

// evaluate routes through one safe place and checks the overhead budget.
func (p *DetourPlanner) evaluate(ctx context.Context, req DetourRequest, mode domain.HeuristicMode, sp domain.SafePlace) (*Detour, error) {
	ctx, span := p.tracer.Start(ctx, telemetry.SpanDetourCandidate,
		trace.WithAttributes(attribute.Int64(telemetry.AttrSafePlaceID, sp.ID)))
	defer span.End()

	route, err := timedRoute(ctx, p.provider, "candidate", req.Origin, req.Destination,
		[]domain.Coordinate{sp.Location}, req.Profile, req.Model)
	if err == nil {
		err = route.Validate()
	}
	if err != nil {
		metrics.DetourCandidates.WithLabelValues(outcomeFailed).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: safe place %d: %w", domain.ErrCandidateRejected, sp.ID, err)
	}

	limit := (1 + p.cfg.MaxOverheadFraction) * req.Base.Distance
	if route.Distance > limit {
		metrics.DetourCandidates.WithLabelValues(outcomeOverBudget).Inc()
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcomeOverBudget))
		return nil, fmt.Errorf("%w: safe place %d: %.0fm exceeds budget of %.0fm",
			domain.ErrCandidateRejected, sp.ID, route.Distance, limit)
	}

	score := route.Distance
	if mode == domain.HeuristicBadness {
		score = BadnessScore(route, req.Danger)
	}

	metrics.DetourCandidates.WithLabelValues(outcomeAccepted).Inc()
	span.SetAttributes(
		attribute.String(telemetry.AttrOutcome, outcomeAccepted),
		attribute.Float64(telemetry.AttrDistance, route.Distance),
	)
	return &Detour{SafePlace: sp, Route: route, Score: score}, nil
}

// timedRoute calls the provider and records call metrics under kind.
func timedRoute(ctx context.Context, provider ports.RouteProvider, kind string,
	origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel,
) (*domain.Route, error) {
	start := time.Now()
	route, err := provider.ComputeRoute(ctx, origin, dest, via, profile, model)
	metrics.ProviderLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderCalls.WithLabelValues(kind, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		metrics.ProviderCalls.WithLabelValues(kind, "timeout").Inc()
	default:
		metrics.ProviderCalls.WithLabelValues(kind, "error").Inc()
	}
	return route, err
}
