// Package store records experiment runs, their per-stage row counts and
// their effect summaries.
package store

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rai-disparity/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Name   string          `json:"name,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for experiment runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, name string, params json.RawMessage) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, effects []model.EffectSummary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	RecordStage(ctx context.Context, runID, name string, rowsIn, rowsOut int) (*model.RunStage, error)
	ListStages(ctx context.Context, runID string) ([]model.RunStage, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open returns the store for driver. The none driver records nothing.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, nil)
	case DriverNone, "":
		return Nop{}, nil
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// nullable maps NaN to NULL.
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

var effectColumns = []string{"run_id", "score", "ate", "att", "units", "matched", "n_groups", "dropped"}

func errNotRecorded(runID string) error {
	return eris.Errorf("store: run %s not recorded, registry disabled", runID)
}
