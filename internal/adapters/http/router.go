package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/safewalk/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Each route request fans out to several provider calls; 60 per minute per IP.
	app.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(LegacyRoutes))

	// Health & readiness (no timeout; fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	routeTimeout := deps.routeTimeout()
	const readTimeout = 10 * time.Second

	v1 := app.Group("/v1")
	v1.Get("/route", timeout.NewWithContext(SafeRouteHandler(deps), routeTimeout))
	v1.Get("/safety-map", timeout.NewWithContext(SafetyMapHandler(deps), readTimeout))
	v1.Get("/safety-map.geojson", timeout.NewWithContext(SafetyMapGeoJSONHandler(deps), readTimeout))
	v1.Post("/polygons", timeout.NewWithContext(AddPolygonHandler(deps), readTimeout))
	v1.Get("/safe-places", timeout.NewWithContext(ListSafePlacesHandler(deps), readTimeout))
	v1.Post("/safe-places", timeout.NewWithContext(AddSafePlaceHandler(deps), readTimeout))
	v1.Get("/suggestions", timeout.NewWithContext(SuggestionsHandler(deps), readTimeout))

	// Unversioned paths kept for existing clients
	app.Get("/route", timeout.NewWithContext(LegacyRouteHandler(deps), routeTimeout))
	app.Get("/heatmap", timeout.NewWithContext(SafetyMapHandler(deps), readTimeout))
	app.Post("/add_polygon", timeout.NewWithContext(LegacyAddPolygonHandler(deps), readTimeout))
	app.Post("/add_safe_place", timeout.NewWithContext(LegacyAddSafePlaceHandler(deps), readTimeout))
	app.Get("/suggestions", timeout.NewWithContext(SuggestionsHandler(deps), readTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket relay of safety-map updates
	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
