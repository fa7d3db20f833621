package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/safewalk/internal/adapters/nats"
	"github.com/samirrijal/safewalk/internal/adapters/store"
	"github.com/samirrijal/safewalk/internal/adapters/valkey"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/core/usecases"
	"github.com/samirrijal/safewalk/internal/pkg/config"
	"github.com/samirrijal/safewalk/internal/pkg/logging"
	"github.com/samirrijal/safewalk/internal/workflows"
)

func main() {
	cfg, err := config.Load("safewalk-curator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx := context.Background()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("safety store: %v", err)
	}
	defer backend.Close()

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, API replicas will refresh on TTL", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, imports will not be announced", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.MapImportWorkflow)
	w.RegisterActivity(&workflows.MapImportActivities{
		Store:    backend.Repo,
		Notifier: usecases.NewSafetyMapService(backend.Repo, cacheSvc, events),
	})

	slog.Info("curator worker started", "task_queue", cfg.Temporal.TaskQueue, "driver", cfg.Store.Driver)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
