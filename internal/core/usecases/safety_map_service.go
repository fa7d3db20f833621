package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/pkg/metrics"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

const (
	// SnapshotCacheKey is the shared cache entry holding the current snapshot.
	SnapshotCacheKey = "safety:snapshot"

	snapshotCacheTTL = 300 // seconds
	defaultMemoTTL   = 30 * time.Second
)

// SafetyMapService manages the safety map: writes, cached snapshots and
// change notification. It satisfies ports.SnapshotReader.
type SafetyMapService struct {
	repo   ports.SafetyRepository
	cache  ports.CacheService
	events ports.EventPublisher
	now    func() time.Time

	mu      sync.RWMutex
	memo    *domain.SafetySnapshot
	memoAt  time.Time
	memoTTL time.Duration
	// gen counts invalidations. A snapshot read that straddles one is
	// returned but never cached.
	gen uint64
}

// NewSafetyMapService creates a new SafetyMapService. cache and events may be nil.
func NewSafetyMapService(repo ports.SafetyRepository, cache ports.CacheService, events ports.EventPublisher) *SafetyMapService {
	return &SafetyMapService{
		repo:    repo,
		cache:   cache,
		events:  events,
		now:     time.Now,
		memoTTL: defaultMemoTTL,
	}
}

// SetMemoTTL changes how long a snapshot is kept in process. Zero disables
// the in-process copy.
func (s *SafetyMapService) SetMemoTTL(ttl time.Duration) {
	s.mu.Lock()
	s.memoTTL = ttl
	s.memo = nil
	s.mu.Unlock()
}

// Snapshot returns a consistent view of the safety map, served from the
// in-process copy, then the shared cache, then the store.
func (s *SafetyMapService) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSnapshot)
	defer span.End()

	s.mu.RLock()
	memo, at, ttl, gen := s.memo, s.memoAt, s.memoTTL, s.gen
	s.mu.RUnlock()
	if memo != nil && s.now().Sub(at) < ttl {
		return memo, nil
	}

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, SnapshotCacheKey); err == nil && len(data) > 0 {
			var snap domain.SafetySnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				metrics.CacheHits.WithLabelValues("snapshot").Inc()
				s.remember(&snap, gen)
				return &snap, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("snapshot").Inc()
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if s.cache != nil && s.current(gen) {
		if data, err := json.Marshal(snap); err == nil {
			_ = s.cache.Set(ctx, SnapshotCacheKey, data, snapshotCacheTTL)
			// An invalidation may have landed between the check and the set.
			if !s.current(gen) {
				_ = s.cache.Delete(ctx, SnapshotCacheKey)
			}
		}
	}
	s.remember(snap, gen)
	return snap, nil
}

func (s *SafetyMapService) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen == gen
}

func (s *SafetyMapService) remember(snap *domain.SafetySnapshot, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoTTL <= 0 || s.gen != gen {
		return
	}
	s.memo = snap
	s.memoAt = s.now()
}

// ForgetSnapshot drops the in-process copy only. It is called for updates
// announced by other replicas, which already cleared the shared cache.
func (s *SafetyMapService) ForgetSnapshot() {
	s.mu.Lock()
	s.memo = nil
	s.gen++
	s.mu.Unlock()
}

// InvalidateSnapshot drops both the in-process copy and the shared cache entry.
func (s *SafetyMapService) InvalidateSnapshot(ctx context.Context) {
	s.ForgetSnapshot()
	if s.cache != nil {
		if err := s.cache.Delete(ctx, SnapshotCacheKey); err != nil {
			slog.WarnContext(ctx, "snapshot cache delete failed", "error", err)
		}
	}
}

// AddPolygon stores a polygon from client input. Scores in (0, 1] create a
// danger polygon with that multiplier, scores above 1 a preferred polygon.
// Open rings are closed.
func (s *SafetyMapService) AddPolygon(ctx context.Context, coords []domain.Coordinate, score float64) (*domain.MapUpdateEvent, error) {
	ring, err := domain.NewRing(coords)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score <= 0 {
		return nil, fmt.Errorf("%w: score %v must be positive", domain.ErrInvalidMultiplier, score)
	}

	if score > 1 {
		p, err := s.repo.AppendPreferredPolygon(ctx, domain.PreferredPolygon{Ring: ring, CreatedAt: s.now().UTC()})
		if err != nil {
			return nil, fmt.Errorf("append preferred polygon: %w", err)
		}
		return s.NotifyChanged(ctx, domain.MapUpdatePreferred, p.ID), nil
	}

	p, err := s.repo.AppendDangerPolygon(ctx, domain.DangerPolygon{Ring: ring, SafetyMultiplier: score, CreatedAt: s.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("append danger polygon: %w", err)
	}
	return s.NotifyChanged(ctx, domain.MapUpdateDanger, p.ID), nil
}

// AddSafePlace stores a safe place.
func (s *SafetyMapService) AddSafePlace(ctx context.Context, loc domain.Coordinate, name string) (*domain.SafePlace, error) {
	if !loc.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, loc)
	}
	sp, err := s.repo.AppendSafePlace(ctx, domain.SafePlace{
		Name:      strings.TrimSpace(name),
		Location:  loc,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("append safe place: %w", err)
	}
	s.NotifyChanged(ctx, domain.MapUpdateSafePlace, sp.ID)
	return sp, nil
}

// ListSafePlaces returns one page of safe places and the total count.
func (s *SafetyMapService) ListSafePlaces(ctx context.Context, offset, limit int) ([]domain.SafePlace, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(snap.SafePlaces)
	if offset >= total {
		return []domain.SafePlace{}, total, nil
	}
	end := min(offset+limit, total)
	return snap.SafePlaces[offset:end], total, nil
}

// Import appends a batch of records. If any append fails, the records added
// so far are removed in reverse order and the original error is returned.
func (s *SafetyMapService) Import(ctx context.Context, batch domain.MapImport) (*domain.ImportResult, error) {
	if err := ValidateImport(&batch); err != nil {
		return nil, err
	}

	var (
		res  domain.ImportResult
		undo []func(context.Context) error
	)
	rollback := func(cause error) error {
		// The caller may already have given up; the removals must still run.
		cleanup := context.WithoutCancel(ctx)
		var errs []error
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](cleanup); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			slog.ErrorContext(ctx, "import rollback incomplete", "error", errors.Join(errs...))
		}
		return cause
	}

	for _, p := range batch.Danger {
		stored, err := s.repo.AppendDangerPolygon(ctx, p)
		if err != nil {
			return nil, rollback(fmt.Errorf("import danger polygon: %w", err))
		}
		id := stored.ID
		res.DangerIDs = append(res.DangerIDs, id)
		undo = append(undo, func(ctx context.Context) error { return s.repo.RemoveDangerPolygon(ctx, id) })
	}
	for _, p := range batch.Preferred {
		stored, err := s.repo.AppendPreferredPolygon(ctx, p)
		if err != nil {
			return nil, rollback(fmt.Errorf("import preferred polygon: %w", err))
		}
		id := stored.ID
		res.PreferredIDs = append(res.PreferredIDs, id)
		undo = append(undo, func(ctx context.Context) error { return s.repo.RemovePreferredPolygon(ctx, id) })
	}
	for _, sp := range batch.SafePlaces {
		stored, err := s.repo.AppendSafePlace(ctx, sp)
		if err != nil {
			return nil, rollback(fmt.Errorf("import safe place: %w", err))
		}
		id := stored.ID
		res.SafePlaceIDs = append(res.SafePlaceIDs, id)
		undo = append(undo, func(ctx context.Context) error { return s.repo.RemoveSafePlace(ctx, id) })
	}

	s.NotifyChanged(ctx, domain.MapUpdateImport, 0)
	return &res, nil
}

// ValidateImport closes every ring in the batch and checks it. The batch is
// modified in place.
func ValidateImport(batch *domain.MapImport) error {
	for i := range batch.Danger {
		ring, err := domain.NewRing(batch.Danger[i].Ring)
		if err != nil {
			return fmt.Errorf("danger polygon %d: %w", i, err)
		}
		batch.Danger[i].Ring = ring
		if err := domain.ValidateMultiplier(batch.Danger[i].SafetyMultiplier); err != nil {
			return fmt.Errorf("danger polygon %d: %w", i, err)
		}
	}
	for i := range batch.Preferred {
		ring, err := domain.NewRing(batch.Preferred[i].Ring)
		if err != nil {
			return fmt.Errorf("preferred polygon %d: %w", i, err)
		}
		batch.Preferred[i].Ring = ring
	}
	for i, sp := range batch.SafePlaces {
		if !sp.Location.Valid() {
			return fmt.Errorf("safe place %d: %w: %s", i, domain.ErrInvalidCoordinate, sp.Location)
		}
	}
	return nil
}

// NotifyChanged invalidates cached snapshots and announces the change.
// Publish failures are logged.
func (s *SafetyMapService) NotifyChanged(ctx context.Context, kind domain.MapUpdateKind, id int64) *domain.MapUpdateEvent {
	s.InvalidateSnapshot(ctx)
	metrics.MapUpdates.WithLabelValues(string(kind)).Inc()

	ev := &domain.MapUpdateEvent{Kind: kind, ID: id, Time: s.now().UTC()}
	if s.events != nil {
		if err := s.events.PublishMapUpdate(ctx, ev); err != nil {
			slog.WarnContext(ctx, "publish map update failed", "kind", kind, "id", id, "error", err)
		}
	}
	return ev
}
