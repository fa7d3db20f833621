package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
)

// Notifier announces a finished import; *usecases.SafetyMapService satisfies it.
type Notifier interface {
	NotifyChanged(ctx context.Context, kind domain.MapUpdateKind, id int64) *domain.MapUpdateEvent
}

// MapImportActivities holds the activity implementations for the map-import workflow.
type MapImportActivities struct {
	Store    ports.SafetyStoreWriter
	Notifier Notifier
}

// AppendDangerPolygon stores one danger polygon and returns its id.
func (a *MapImportActivities) AppendDangerPolygon(ctx context.Context, p domain.DangerPolygon) (int64, error) {
	stored, err := a.Store.AppendDangerPolygon(ctx, p)
	if err != nil {
		return 0, classify(fmt.Errorf("append danger polygon: %w", err))
	}
	return stored.ID, nil
}

// AppendPreferredPolygon stores one preferred polygon and returns its id.
func (a *MapImportActivities) AppendPreferredPolygon(ctx context.Context, p domain.PreferredPolygon) (int64, error) {
	stored, err := a.Store.AppendPreferredPolygon(ctx, p)
	if err != nil {
		return 0, classify(fmt.Errorf("append preferred polygon: %w", err))
	}
	return stored.ID, nil
}

// AppendSafePlace stores one safe place and returns its id.
func (a *MapImportActivities) AppendSafePlace(ctx context.Context, sp domain.SafePlace) (int64, error) {
	stored, err := a.Store.AppendSafePlace(ctx, sp)
	if err != nil {
		return 0, classify(fmt.Errorf("append safe place: %w", err))
	}
	return stored.ID, nil
}

// RemoveDangerPolygon deletes a danger polygon (saga compensation).
// A record that is already gone counts as removed.
func (a *MapImportActivities) RemoveDangerPolygon(ctx context.Context, id int64) error {
	return removed(a.Store.RemoveDangerPolygon(ctx, id), "danger polygon", id)
}

// RemovePreferredPolygon deletes a preferred polygon (saga compensation).
func (a *MapImportActivities) RemovePreferredPolygon(ctx context.Context, id int64) error {
	return removed(a.Store.RemovePreferredPolygon(ctx, id), "preferred polygon", id)
}

// RemoveSafePlace deletes a safe place (saga compensation).
func (a *MapImportActivities) RemoveSafePlace(ctx context.Context, id int64) error {
	return removed(a.Store.RemoveSafePlace(ctx, id), "safe place", id)
}

// PublishImport invalidates cached snapshots and publishes one map update.
func (a *MapImportActivities) PublishImport(ctx context.Context) error {
	if a.Notifier == nil {
		slog.InfoContext(ctx, "map import finished (no notifier)")
		return nil
	}
	a.Notifier.NotifyChanged(ctx, domain.MapUpdateImport, 0)
	return nil
}

func removed(err error, kind string, id int64) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		slog.Info("import record removed (saga compensation)", "kind", kind, "id", id)
		return nil
	}
	return fmt.Errorf("remove %s %d: %w", kind, id, err)
}

// classify marks validation failures as not worth retrying.
func classify(err error) error {
	if errors.Is(err, domain.ErrInvalidPolygon) ||
		errors.Is(err, domain.ErrInvalidMultiplier) ||
		errors.Is(err, domain.ErrInvalidCoordinate) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidRecord", err)
	}
	return err
}
