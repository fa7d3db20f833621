package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// --- Mock RouteProvider ---

type providerCall struct {
	via     []domain.Coordinate
	profile string
	model   domain.CostBiasModel
}

type mockProvider struct {
	computeFn func(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error)

	mu    sync.Mutex
	calls []providerCall
}

func (m *mockProvider) ComputeRoute(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
	m.mu.Lock()
	m.calls = append(m.calls, providerCall{via: via, profile: profile, model: model})
	m.mu.Unlock()
	if m.computeFn != nil {
		return m.computeFn(ctx, origin, dest, via, profile, model)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) viaCalls() []domain.Coordinate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Coordinate
	for _, c := range m.calls {
		out = append(out, c.via...)
	}
	return out
}

// --- Mock SnapshotReader ---

type mockSnapshots struct {
	snapshotFn func(ctx context.Context) (*domain.SafetySnapshot, error)
}

func (m *mockSnapshots) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return &domain.SafetySnapshot{}, nil
}

func staticSnapshot(snap *domain.SafetySnapshot) *mockSnapshots {
	return &mockSnapshots{snapshotFn: func(ctx context.Context) (*domain.SafetySnapshot, error) { return snap, nil }}
}

// --- Mock SafetyRepository (in memory) ---

type mockRepo struct {
	mu         sync.Mutex
	danger     []domain.DangerPolygon
	preferred  []domain.PreferredPolygon
	safePlaces []domain.SafePlace
	nextID     int64

	snapshotCalls int
	removed       []string

	appendSafePlaceFn func(sp domain.SafePlace) error
	// afterRead runs once the snapshot is copied, before it is returned.
	afterRead func()
}

func (m *mockRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepo) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	m.mu.Lock()
	m.snapshotCalls++
	snap := &domain.SafetySnapshot{
		Danger:     append([]domain.DangerPolygon(nil), m.danger...),
		Preferred:  append([]domain.PreferredPolygon(nil), m.preferred...),
		SafePlaces: append([]domain.SafePlace(nil), m.safePlaces...),
	}
	m.mu.Unlock()
	if m.afterRead != nil {
		m.afterRead()
	}
	return snap, nil
}

func (m *mockRepo) ListDangerPolygons(ctx context.Context) ([]domain.DangerPolygon, error) {
	s, _ := m.Snapshot(ctx)
	return s.Danger, nil
}

func (m *mockRepo) ListPreferredPolygons(ctx context.Context) ([]domain.PreferredPolygon, error) {
	s, _ := m.Snapshot(ctx)
	return s.Preferred, nil
}

func (m *mockRepo) ListSafePlaces(ctx context.Context) ([]domain.SafePlace, error) {
	s, _ := m.Snapshot(ctx)
	return s.SafePlaces, nil
}

func (m *mockRepo) AppendDangerPolygon(ctx context.Context, p domain.DangerPolygon) (*domain.DangerPolygon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	m.danger = append(m.danger, p)
	return &p, nil
}

func (m *mockRepo) AppendPreferredPolygon(ctx context.Context, p domain.PreferredPolygon) (*domain.PreferredPolygon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	m.preferred = append(m.preferred, p)
	return &p, nil
}

func (m *mockRepo) AppendSafePlace(ctx context.Context, sp domain.SafePlace) (*domain.SafePlace, error) {
	if m.appendSafePlaceFn != nil {
		if err := m.appendSafePlaceFn(sp); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sp.ID = m.id()
	m.safePlaces = append(m.safePlaces, sp)
	return &sp, nil
}

func (m *mockRepo) RemoveDangerPolygon(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.danger {
		if p.ID == id {
			m.danger = append(m.danger[:i], m.danger[i+1:]...)
			m.removed = append(m.removed, "danger")
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRepo) RemovePreferredPolygon(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.preferred {
		if p.ID == id {
			m.preferred = append(m.preferred[:i], m.preferred[i+1:]...)
			m.removed = append(m.removed, "preferred")
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRepo) RemoveSafePlace(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sp := range m.safePlaces {
		if sp.ID == id {
			m.safePlaces = append(m.safePlaces[:i], m.safePlaces[i+1:]...)
			m.removed = append(m.removed, "safe_place")
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Mock CacheService ---

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes []string
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deletes = append(m.deletes, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	mapEvents []domain.MapUpdateEvent
	routes    []domain.RouteComputedEvent
	err       error
}

func (m *mockPublisher) PublishMapUpdate(ctx context.Context, ev *domain.MapUpdateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapEvents = append(m.mapEvents, *ev)
	return m.err
}

func (m *mockPublisher) PublishRouteComputed(ctx context.Context, ev *domain.RouteComputedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, *ev)
	return m.err
}

// --- Mock Geocoder ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, query string, limit int) ([]domain.Suggestion, error)
	calls     int
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
	m.calls++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query, limit)
	}
	return nil, nil
}

// --- Fixtures ---

// A straight ~1km east-west walk in Stuttgart.
var (
	origin = domain.Coordinate{Lon: 9.1700, Lat: 48.7700}
	dest   = domain.Coordinate{Lon: 9.1836, Lat: 48.7700}
	mid    = domain.Coordinate{Lon: 9.1768, Lat: 48.7700}

	// ~300m north of the midpoint.
	placeB = domain.SafePlace{ID: 7, Name: "Rathaus", Location: domain.Coordinate{Lon: 9.1768, Lat: 48.7727}}

	// Danger area around the midpoint of the straight route.
	dangerA = domain.DangerPolygon{
		ID: 1,
		Ring: domain.Ring{
			{Lon: 9.1750, Lat: 48.7690},
			{Lon: 9.1785, Lat: 48.7690},
			{Lon: 9.1785, Lat: 48.7710},
			{Lon: 9.1750, Lat: 48.7710},
			{Lon: 9.1750, Lat: 48.7690},
		},
		SafetyMultiplier: 0.1,
	}
)

func baseRoute() *domain.Route {
	return &domain.Route{Points: []domain.Coordinate{origin, mid, dest}, Distance: 1000, Profile: "foot"}
}

func routeVia(sp domain.SafePlace, distance float64) *domain.Route {
	return &domain.Route{
		Points:   []domain.Coordinate{origin, sp.Location, dest},
		Distance: distance,
		Profile:  "foot",
		Via:      []domain.Coordinate{sp.Location},
	}
}

// providerWith answers the base call with baseRoute and candidate calls
// with the distance looked up by safe-place location.
func providerWith(distances map[domain.Coordinate]float64) *mockProvider {
	return &mockProvider{
		computeFn: func(ctx context.Context, o, d domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
			if len(via) == 0 {
				return baseRoute(), nil
			}
			dist, ok := distances[via[0]]
			if !ok {
				return nil, errors.New("no route")
			}
			return routeVia(domain.SafePlace{Location: via[0]}, dist), nil
		},
	}
}
