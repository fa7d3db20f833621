package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

var triangle = []domain.Coordinate{
	{Lon: 9.17, Lat: 48.77},
	{Lon: 9.18, Lat: 48.77},
	{Lon: 9.18, Lat: 48.78},
}

func TestSafetyMapService_AddPolygon_Danger(t *testing.T) {
	repo := &mockRepo{}
	cache := newMockCache()
	events := &mockPublisher{}
	svc := usecases.NewSafetyMapService(repo, cache, events)

	ev, err := svc.AddPolygon(context.Background(), triangle, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != domain.MapUpdateDanger || ev.ID != 1 {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(repo.danger) != 1 || repo.danger[0].SafetyMultiplier != 0.3 {
		t.Fatalf("expected one danger polygon x0.3, got %+v", repo.danger)
	}
	if !repo.danger[0].Ring.Closed() || len(repo.danger[0].Ring) != 4 {
		t.Error("stored ring should be closed")
	}
	if len(cache.deletes) != 1 || cache.deletes[0] != usecases.SnapshotCacheKey {
		t.Errorf("expected snapshot cache invalidation, got %v", cache.deletes)
	}
	if len(events.mapEvents) != 1 {
		t.Errorf("expected one map update event, got %d", len(events.mapEvents))
	}
}

func TestSafetyMapService_AddPolygon_PreferredAboveOne(t *testing.T) {
	repo := &mockRepo{}
	svc := usecases.NewSafetyMapService(repo, nil, nil)

	ev, err := svc.AddPolygon(context.Background(), triangle, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != domain.MapUpdatePreferred {
		t.Errorf("expected preferred update, got %s", ev.Kind)
	}
	if len(repo.preferred) != 1 || len(repo.danger) != 0 {
		t.Errorf("expected one preferred polygon, got %d danger / %d preferred", len(repo.danger), len(repo.preferred))
	}
}

func TestSafetyMapService_AddPolygon_Rejects(t *testing.T) {
	svc := usecases.NewSafetyMapService(&mockRepo{}, nil, nil)

	if _, err := svc.AddPolygon(context.Background(), triangle, 0); !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Errorf("score 0: expected ErrInvalidMultiplier, got %v", err)
	}
	if _, err := svc.AddPolygon(context.Background(), triangle, -1); !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Errorf("score -1: expected ErrInvalidMultiplier, got %v", err)
	}
	if _, err := svc.AddPolygon(context.Background(), triangle[:2], 0.5); !errors.Is(err, domain.ErrInvalidPolygon) {
		t.Errorf("two vertices: expected ErrInvalidPolygon, got %v", err)
	}
}

func TestSafetyMapService_AddSafePlace(t *testing.T) {
	repo := &mockRepo{}
	svc := usecases.NewSafetyMapService(repo, nil, nil)

	sp, err := svc.AddSafePlace(context.Background(), domain.FromLatLon(48.7727, 9.1768), "  Rathaus ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.ID != 1 || sp.Name != "Rathaus" {
		t.Errorf("unexpected safe place %+v", sp)
	}

	if _, err := svc.AddSafePlace(context.Background(), domain.FromLatLon(100, 0), ""); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestSafetyMapService_SnapshotMemo(t *testing.T) {
	repo := &mockRepo{}
	svc := usecases.NewSafetyMapService(repo, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Snapshot(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.snapshotCalls != 1 {
		t.Errorf("expected 1 store read, got %d", repo.snapshotCalls)
	}

	if _, err := svc.AddSafePlace(ctx, domain.FromLatLon(48.77, 9.17), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.snapshotCalls != 2 || len(snap.SafePlaces) != 1 {
		t.Errorf("a write should invalidate the snapshot: calls=%d places=%d", repo.snapshotCalls, len(snap.SafePlaces))
	}

	svc.ForgetSnapshot()
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.snapshotCalls != 3 {
		t.Errorf("ForgetSnapshot should force a reload, got %d calls", repo.snapshotCalls)
	}
}

func TestSafetyMapService_SnapshotDuringWriteIsNotCached(t *testing.T) {
	read := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	repo := &mockRepo{}
	repo.afterRead = func() {
		once.Do(func() {
			close(read)
			<-release
		})
	}
	cache := newMockCache()
	svc := usecases.NewSafetyMapService(repo, cache, nil)
	ctx := context.Background()

	stale := make(chan *domain.SafetySnapshot, 1)
	go func() {
		snap, err := svc.Snapshot(ctx)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		stale <- snap
	}()

	<-read
	if _, err := svc.AddPolygon(ctx, triangle, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)

	if snap := <-stale; snap != nil && len(snap.Danger) != 0 {
		t.Fatalf("read started before the write should not see it, got %d polygons", len(snap.Danger))
	}
	if cache.has(usecases.SnapshotCacheKey) {
		t.Error("snapshot read across an invalidation must not reach the shared cache")
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Danger) != 1 {
		t.Errorf("expected the new danger polygon after the write, got %d", len(snap.Danger))
	}
	if repo.snapshotCalls != 2 {
		t.Errorf("expected a fresh store read, got %d reads", repo.snapshotCalls)
	}
}

func TestSafetyMapService_SnapshotFromSharedCache(t *testing.T) {
	repo := &mockRepo{}
	cache := newMockCache()
	want := &domain.SafetySnapshot{SafePlaces: []domain.SafePlace{placeB}, TakenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	data, _ := json.Marshal(want)
	_ = cache.Set(context.Background(), usecases.SnapshotCacheKey, data, 300)

	svc := usecases.NewSafetyMapService(repo, cache, nil)
	svc.SetMemoTTL(0)

	got, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.snapshotCalls != 0 {
		t.Error("cached snapshot should not hit the store")
	}
	if len(got.SafePlaces) != 1 || got.SafePlaces[0].ID != placeB.ID || got.SafePlaces[0].Location != placeB.Location {
		t.Errorf("expected %+v, got %+v", want.SafePlaces, got.SafePlaces)
	}
}

func TestSafetyMapService_ListSafePlaces(t *testing.T) {
	repo := &mockRepo{}
	svc := usecases.NewSafetyMapService(repo, nil, nil)
	svc.SetMemoTTL(0)
	for i := 0; i < 5; i++ {
		_, _ = svc.AddSafePlace(context.Background(), domain.FromLatLon(48.77, 9.17+float64(i)*0.001), "")
	}

	page, total, err := svc.ListSafePlaces(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].ID != 4 {
		t.Errorf("unexpected page: total=%d page=%+v", total, page)
	}

	page, _, _ = svc.ListSafePlaces(context.Background(), 10, 10)
	if page == nil || len(page) != 0 {
		t.Errorf("offset past the end should give an empty page, got %+v", page)
	}
}

func TestSafetyMapService_ImportRollsBack(t *testing.T) {
	calls := 0
	repo := &mockRepo{
		appendSafePlaceFn: func(sp domain.SafePlace) error {
			calls++
			if calls == 2 {
				return errors.New("disk full")
			}
			return nil
		},
	}
	events := &mockPublisher{}
	svc := usecases.NewSafetyMapService(repo, nil, events)

	batch := domain.MapImport{
		Danger:     []domain.DangerPolygon{{Ring: triangle, SafetyMultiplier: 0.01}},
		Preferred:  []domain.PreferredPolygon{{Ring: triangle}},
		SafePlaces: []domain.SafePlace{placeB, placeB},
	}
	if _, err := svc.Import(context.Background(), batch); err == nil {
		t.Fatal("expected import error")
	}

	want := []string{"safe_place", "preferred", "danger"}
	if !reflect.DeepEqual(repo.removed, want) {
		t.Errorf("expected reverse-order removal %v, got %v", want, repo.removed)
	}
	if len(repo.danger)+len(repo.preferred)+len(repo.safePlaces) != 0 {
		t.Error("store should be empty after rollback")
	}
	if len(events.mapEvents) != 0 {
		t.Error("failed import must not announce an update")
	}
}

func TestSafetyMapService_ImportRollsBackAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	repo := &mockRepo{
		appendSafePlaceFn: func(sp domain.SafePlace) error {
			calls++
			if calls == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	svc := usecases.NewSafetyMapService(repo, nil, nil)

	batch := domain.MapImport{
		Danger:     []domain.DangerPolygon{{Ring: triangle, SafetyMultiplier: 0.2}},
		SafePlaces: []domain.SafePlace{placeB, placeB},
	}
	if _, err := svc.Import(ctx, batch); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(repo.danger)+len(repo.safePlaces) != 0 {
		t.Errorf("rollback should run after cancellation, left danger=%d places=%d", len(repo.danger), len(repo.safePlaces))
	}
}

func TestSafetyMapService_Import(t *testing.T) {
	repo := &mockRepo{}
	events := &mockPublisher{}
	svc := usecases.NewSafetyMapService(repo, nil, events)

	res, err := svc.Import(context.Background(), domain.MapImport{
		Danger:     []domain.DangerPolygon{{Ring: triangle, SafetyMultiplier: 0.01}, {Ring: triangle, SafetyMultiplier: 0.3}},
		SafePlaces: []domain.SafePlace{placeB},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.DangerIDs) != 2 || len(res.SafePlaceIDs) != 1 {
		t.Errorf("unexpected ids %+v", res)
	}
	if !repo.danger[0].Ring.Closed() {
		t.Error("imported rings should be closed")
	}
	if len(events.mapEvents) != 1 || events.mapEvents[0].Kind != domain.MapUpdateImport {
		t.Errorf("expected a single import event, got %+v", events.mapEvents)
	}
}

func TestValidateImport_RejectsBadMultiplier(t *testing.T) {
	batch := domain.MapImport{Danger: []domain.DangerPolygon{{Ring: triangle, SafetyMultiplier: 2}}}
	if err := usecases.ValidateImport(&batch); !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Errorf("expected ErrInvalidMultiplier, got %v", err)
	}
}
