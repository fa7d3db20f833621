// Command seed imports a safety-map fixture into the configured Safety Store,
// either directly or through the curator's map-import workflow.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/safewalk/internal/adapters/filestore"
	natsadapter "github.com/samirrijal/safewalk/internal/adapters/nats"
	"github.com/samirrijal/safewalk/internal/adapters/store"
	"github.com/samirrijal/safewalk/internal/adapters/valkey"
	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/core/usecases"
	"github.com/samirrijal/safewalk/internal/pkg/config"
	"github.com/samirrijal/safewalk/internal/pkg/logging"
	"github.com/samirrijal/safewalk/internal/workflows"
)

func main() {
	legacyDir := flag.String("legacy", "", "import a legacy CSV data directory instead of a YAML fixture")
	viaTemporal := flag.Bool("temporal", false, "run the import as a workflow on the curator worker")
	flag.Parse()

	cfg, err := config.Load("safewalk-seed")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text", cfg.Telemetry.ServiceName)

	var (
		batch  *domain.MapImport
		source string
	)
	switch {
	case *legacyDir != "":
		source = *legacyDir
		batch, err = filestore.LoadLegacy(*legacyDir)
	case flag.NArg() == 1:
		source = flag.Arg(0)
		batch, err = loadFixture(source)
	default:
		log.Fatal("usage: seed [-temporal] <fixture.yaml> | seed [-temporal] -legacy <dir>")
	}
	if err != nil {
		log.Fatalf("load %s: %v", source, err)
	}
	if err := usecases.ValidateImport(batch); err != nil {
		log.Fatalf("invalid batch: %v", err)
	}

	ctx := context.Background()
	var res *domain.ImportResult
	if *viaTemporal {
		res, err = runWorkflow(ctx, cfg, source, batch)
	} else {
		res, err = runDirect(ctx, cfg, batch)
	}
	if err != nil {
		slog.Error("import failed", "source", source, "error", err)
		os.Exit(1)
	}

	slog.Info("import finished",
		"source", source,
		"danger", len(res.DangerIDs),
		"preferred", len(res.PreferredIDs),
		"safe_places", len(res.SafePlaceIDs),
	)
}

func runDirect(ctx context.Context, cfg *config.Config, batch *domain.MapImport) (*domain.ImportResult, error) {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err == nil {
		defer cache.Close()
		cacheSvc = cache
	}
	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err == nil {
		defer pub.Close()
		events = pub
	}

	return usecases.NewSafetyMapService(backend.Repo, cacheSvc, events).Import(ctx, *batch)
}

func runWorkflow(ctx context.Context, cfg *config.Config, source string, batch *domain.MapImport) (*domain.ImportResult, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "map-import-" + uuid.NewString(),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.MapImportWorkflow, workflows.MapImportInput{Batch: *batch, Source: source})
	if err != nil {
		return nil, err
	}
	slog.Info("workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var res domain.ImportResult
	if err := run.Get(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
