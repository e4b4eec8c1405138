package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		params := json.RawMessage(`{"lam":1.5,"seed":3}`)
		run, err := s.CreateRun(ctx, "White-Black_synth", params)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "White-Black_synth", got.Name)
		assert.JSONEq(t, string(params), string(got.Params))
		assert.Empty(t, got.Effects)
	})

	t.Run("CompleteRunStoresEffects", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "observed", nil)
		require.NoError(t, err)

		effects := []model.EffectSummary{
			{Score: "nca", ATE: 0.12, ATT: 0.1, Units: 100, Matched: 90, Groups: 12, Dropped: 3},
			{Score: "nvca", ATE: -0.02, ATT: 0.01, Units: 80, Matched: 70, Groups: 9},
		}
		require.NoError(t, s.CompleteRun(ctx, run.ID, effects))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.Len(t, got.Effects, 2)
		assert.Equal(t, effects[0], got.Effects[0])
		assert.Equal(t, effects[1], got.Effects[1])

		// completing again replaces the effects
		require.NoError(t, s.CompleteRun(ctx, run.ID, effects[:1]))
		got, err = s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Len(t, got.Effects, 1)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "broken", nil)
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, errors.New("synth: invariant violation")))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "synth: invariant violation", got.Error)
	})

	t.Run("UnknownRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "missing")
		assert.Error(t, err)
		assert.Error(t, s.FailRun(ctx, "missing", nil))
		assert.Error(t, s.CompleteRun(ctx, "missing", nil))
	})

	t.Run("Stages", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "staged", nil)
		require.NoError(t, err)

		st, err := s.RecordStage(ctx, run.ID, "history", 1000, 420)
		require.NoError(t, err)
		assert.Equal(t, run.ID, st.RunID)
		_, err = s.RecordStage(ctx, run.ID, "rais", 420, 420)
		require.NoError(t, err)

		stages, err := s.ListStages(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, stages, 2)
		assert.Equal(t, "history", stages[0].Name)
		assert.Equal(t, 1000, stages[0].RowsIn)
		assert.Equal(t, 420, stages[0].RowsOut)
		assert.Equal(t, "rais", stages[1].Name)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateRun(ctx, "a", nil)
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, "b", nil)
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, a.ID, nil))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, a.ID, done[0].ID)

		named, err := s.ListRuns(ctx, RunFilter{Name: "b"})
		require.NoError(t, err)
		require.Len(t, named, 1)
		assert.Equal(t, "b", named[0].Name)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverNone, "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)

	s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, "mysql", "")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var s Store = Nop{}

	run, err := s.CreateRun(ctx, "x", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	st, err := s.RecordStage(ctx, run.ID, "history", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.RowsOut)

	assert.NoError(t, s.CompleteRun(ctx, run.ID, nil))
	_, err = s.GetRun(ctx, run.ID)
	assert.Error(t, err)
}
