package ports

import (
	"context"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// RouteProvider computes a route through optional via points under a cost
// model. Failures are returned as errors; the caller decides whether they
// are fatal.
type RouteProvider interface {
	ComputeRoute(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error)
}

// Geocoder resolves free-text queries to places.
type Geocoder interface {
	Geocode(ctx context.Context, query string, limit int) ([]domain.Suggestion, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishMapUpdate(ctx context.Context, ev *domain.MapUpdateEvent) error
	PublishRouteComputed(ctx context.Context, ev *domain.RouteComputedEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeMapUpdates(ctx context.Context, handler func(ctx context.Context, ev *domain.MapUpdateEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
