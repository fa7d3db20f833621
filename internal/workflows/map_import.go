package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

// TaskQueue is the default queue the curator worker polls.
const TaskQueue = "safety-map"

// Activity names, matching the MapImportActivities methods.
const (
	actAppendDanger    = "AppendDangerPolygon"
	actAppendPreferred = "AppendPreferredPolygon"
	actAppendSafePlace = "AppendSafePlace"
	actRemoveDanger    = "RemoveDangerPolygon"
	actRemovePreferred = "RemovePreferredPolygon"
	actRemoveSafePlace = "RemoveSafePlace"
	actPublishImport   = "PublishImport"
)

// MapImportInput is the input for the map-import workflow.
type MapImportInput struct {
	Batch  domain.MapImport
	Source string // fixture path or other label, for logs only
}

// undoStep removes one appended record.
type undoStep struct {
	activity string
	id       int64
}

// MapImportWorkflow appends every record of a batch, one activity each, then
// announces the change once. If an append fails, the records appended so far
// are removed in reverse order (saga compensation).
func MapImportWorkflow(ctx workflow.Context, input MapImportInput) (*domain.ImportResult, error) {
	logger := workflow.GetLogger(ctx)
	batch := input.Batch
	logger.Info("Starting map import", "source", input.Source,
		"danger", len(batch.Danger), "preferred", len(batch.Preferred), "safePlaces", len(batch.SafePlaces))

	if err := usecases.ValidateImport(&batch); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid import batch", "InvalidBatch", err)
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var (
		res  domain.ImportResult
		undo []undoStep
	)
	compensate := func(cause error) error {
		logger.Warn("import step failed, compensating", "error", cause, "steps", len(undo))
		// Compensation must run even if the workflow was cancelled.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		for i := len(undo) - 1; i >= 0; i-- {
			step := undo[i]
			if err := workflow.ExecuteActivity(dctx, step.activity, step.id).Get(dctx, nil); err != nil {
				logger.Error("compensation step failed", "activity", step.activity, "id", step.id, "error", err)
			}
		}
		return cause
	}

	for i, p := range batch.Danger {
		var id int64
		if err := workflow.ExecuteActivity(ctx, actAppendDanger, p).Get(ctx, &id); err != nil {
			return nil, compensate(fmt.Errorf("danger polygon %d: %w", i, err))
		}
		res.DangerIDs = append(res.DangerIDs, id)
		undo = append(undo, undoStep{actRemoveDanger, id})
	}
	for i, p := range batch.Preferred {
		var id int64
		if err := workflow.ExecuteActivity(ctx, actAppendPreferred, p).Get(ctx, &id); err != nil {
			return nil, compensate(fmt.Errorf("preferred polygon %d: %w", i, err))
		}
		res.PreferredIDs = append(res.PreferredIDs, id)
		undo = append(undo, undoStep{actRemovePreferred, id})
	}
	for i, sp := range batch.SafePlaces {
		var id int64
		if err := workflow.ExecuteActivity(ctx, actAppendSafePlace, sp).Get(ctx, &id); err != nil {
			return nil, compensate(fmt.Errorf("safe place %d: %w", i, err))
		}
		res.SafePlaceIDs = append(res.SafePlaceIDs, id)
		undo = append(undo, undoStep{actRemoveSafePlace, id})
	}

	// Records are stored; a failed announcement only delays cache refresh.
	if err := workflow.ExecuteActivity(ctx, actPublishImport).Get(ctx, nil); err != nil {
		logger.Warn("publish import failed", "error", err)
	}

	logger.Info("Map import finished", "records", len(undo))
	return &res, nil
}
