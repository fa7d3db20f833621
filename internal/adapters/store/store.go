// Package store selects the Safety Store backend from configuration.
package store

import (
	"context"
	"fmt"
	"os"

	"github.com/samirrijal/safewalk/internal/adapters/filestore"
	"github.com/samirrijal/safewalk/internal/adapters/postgres"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/pkg/config"
)

// Backend is an opened Safety Store.
type Backend struct {
	Repo ports.SafetyRepository
	// DB is set for the postgres driver only.
	DB *postgres.DB

	ping  func(ctx context.Context) error
	close func()
}

// Open connects the backend named by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Backend{
			Repo:  postgres.NewSafetyRepo(db),
			DB:    db,
			ping:  db.Ping,
			close: db.Close,
		}, nil
	case "csv":
		fs, err := filestore.Open(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("csv store: %w", err)
		}
		return &Backend{
			Repo: fs,
			ping: func(context.Context) error {
				_, err := os.Stat(fs.Dir())
				return err
			},
			close: func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Ping checks that the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases backend resources.
func (b *Backend) Close() {
	b.close()
}
