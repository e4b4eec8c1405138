package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Nop is a Store that records nothing. Runs it creates carry fresh ids so
// output files can still reference them.
type Nop struct{}

func (Nop) CreateRun(_ context.Context, name string, params json.RawMessage) (*model.Run, error) {
	now := time.Now().UTC()
	return &model.Run{ID: uuid.New().String(), Name: name, Params: params,
		Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

func (Nop) CompleteRun(context.Context, string, []model.EffectSummary) error { return nil }

func (Nop) FailRun(context.Context, string, error) error { return nil }

func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, errNotRecorded(runID)
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (Nop) RecordStage(_ context.Context, runID, name string, rowsIn, rowsOut int) (*model.RunStage, error) {
	return &model.RunStage{ID: uuid.New().String(), RunID: runID, Name: name,
		RowsIn: rowsIn, RowsOut: rowsOut, CreatedAt: time.Now().UTC()}, nil
}

func (Nop) ListStages(context.Context, string) ([]model.RunStage, error) { return nil, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
