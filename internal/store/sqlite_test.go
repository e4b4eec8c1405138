package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_NaNEffectsRoundTripAsNull(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "empty-score", nil)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, []model.EffectSummary{
		{Score: "nvca", ATE: math.NaN(), ATT: math.NaN(), Dropped: 40},
	}))

	var ate *float64
	require.NoError(t, st.db.QueryRow(`SELECT ate FROM run_effects WHERE run_id = ?`, run.ID).Scan(&ate))
	assert.Nil(t, ate)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Effects, 1)
	assert.True(t, math.IsNaN(got.Effects[0].ATE))
	assert.Equal(t, 40, got.Effects[0].Dropped)
}

func TestSQLite_ListRunsOffset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := st.CreateRun(ctx, name, nil)
		require.NoError(t, err)
	}
	runs, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
