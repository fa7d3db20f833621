package ports

import (
	"context"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// SnapshotReader yields a consistent view of the safety map.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (*domain.SafetySnapshot, error)
}

// SafetyStore reads the safety map. List results are ordered by ascending id.
type SafetyStore interface {
	SnapshotReader
	ListDangerPolygons(ctx context.Context) ([]domain.DangerPolygon, error)
	ListPreferredPolygons(ctx context.Context) ([]domain.PreferredPolygon, error)
	ListSafePlaces(ctx context.Context) ([]domain.SafePlace, error)
}

// SafetyStoreWriter mutates the safety map. Append methods assign the id and
// return the stored entity.
type SafetyStoreWriter interface {
	AppendDangerPolygon(ctx context.Context, p domain.DangerPolygon) (*domain.DangerPolygon, error)
	AppendPreferredPolygon(ctx context.Context, p domain.PreferredPolygon) (*domain.PreferredPolygon, error)
	AppendSafePlace(ctx context.Context, sp domain.SafePlace) (*domain.SafePlace, error)
	RemoveDangerPolygon(ctx context.Context, id int64) error
	RemovePreferredPolygon(ctx context.Context, id int64) error
	RemoveSafePlace(ctx context.Context, id int64) error
}

// SafetyRepository is a store that can be both read and written.
type SafetyRepository interface {
	SafetyStore
	SafetyStoreWriter
}
