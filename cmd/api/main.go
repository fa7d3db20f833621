package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/safewalk/internal/adapters/graphhopper"
	"github.com/samirrijal/safewalk/internal/adapters/http"
	natsadapter "github.com/samirrijal/safewalk/internal/adapters/nats"
	"github.com/samirrijal/safewalk/internal/adapters/store"
	"github.com/samirrijal/safewalk/internal/adapters/valkey"
	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/core/usecases"
	"github.com/samirrijal/safewalk/internal/pkg/config"
	"github.com/samirrijal/safewalk/internal/pkg/logging"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("safewalk-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty; routing calls will be rejected by GraphHopper")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Safety Store
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("safety store: %v", err)
	}
	defer backend.Close()
	if backend.DB != nil {
		go backend.DB.ReportPoolStats(ctx, 15*time.Second)
	}
	slog.Info("safety store opened", "driver", cfg.Store.Driver)

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, caching disabled", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Routing provider
	gh := graphhopper.New(graphhopper.Config{
		BaseURL:       cfg.Provider.BaseURL,
		APIKey:        cfg.Provider.APIKey,
		Timeout:       cfg.Provider.Timeout,
		RatePerSecond: cfg.Provider.RatePerSecond,
		Burst:         cfg.Provider.Burst,
	})

	// Use cases
	engine, err := engineConfig(cfg.Engine)
	if err != nil {
		log.Fatalf("engine config: %v", err)
	}
	safetyMap := usecases.NewSafetyMapService(backend.Repo, cacheSvc, events)
	safeRoutes := usecases.NewSafeRouteService(safetyMap, gh, events, engine)
	suggestions := usecases.NewSuggestionService(gh, cacheSvc)

	// Other replicas announce their writes; drop our in-process snapshot.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable, relying on snapshot TTL", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeMapUpdates(ctx, func(ctx context.Context, ev *domain.MapUpdateEvent) error {
			safetyMap.ForgetSnapshot()
			slog.Debug("safety map changed", "kind", ev.Kind, "id", ev.ID)
			return nil
		})
		if err != nil {
			slog.Warn("subscribe map updates failed", "error", err)
		}
	}

	deps := &http.Dependencies{
		SafeRoutes:   safeRoutes,
		SafetyMap:    safetyMap,
		Suggestions:  suggestions,
		Store:        backend,
		RouteTimeout: cfg.Server.RouteTimeout,
	}
	if pub != nil {
		deps.NATS = pub.Conn()
	}
	if cache != nil {
		deps.Cache = cache
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "SafeWalk API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight route requests time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.RouteTimeout+2*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// engineConfig converts the engine section into the use-case settings.
func engineConfig(c config.EngineConfig) (usecases.EngineConfig, error) {
	mode, err := domain.ParseHeuristicMode(c.Heuristic)
	if err != nil {
		return usecases.EngineConfig{}, err
	}
	return usecases.EngineConfig{
		MaxOverheadFraction:     c.MaxOverheadFraction,
		BufferRadiusMeters:      c.BufferRadiusMeters,
		ExclusionRadiusMeters:   c.ExclusionRadiusMeters,
		OutsidePreferredPenalty: c.OutsidePreferredPenalty,
		Heuristic:               mode,
		MaxConcurrency:          c.MaxConcurrency,
		CandidateTimeout:        c.CandidateTimeout,
	}, nil
}
