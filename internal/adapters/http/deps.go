package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safewalk/internal/adapters/valkey"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	SafeRoutes  *usecases.SafeRouteService
	SafetyMap   *usecases.SafetyMapService
	Suggestions *usecases.SuggestionService
	Store       Pinger
	NATS        *nats.Conn
	Cache       *valkey.Cache

	// RouteTimeout bounds a whole safe-route request. Zero uses 12s.
	RouteTimeout time.Duration
}

func (d *Dependencies) routeTimeout() time.Duration {
	if d.RouteTimeout > 0 {
		return d.RouteTimeout
	}
	return 12 * time.Second
}
