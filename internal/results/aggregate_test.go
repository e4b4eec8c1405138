package results

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

var testScores = []string{model.ScoreNCA, model.ScoreNVCA}

func writeExperiment(t *testing.T, dir, stem string, params map[string]any, nca, nvca float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".json"), data, 0o644))
	require.NoError(t, tableio.WriteCSV(filepath.Join(dir, stem+"-ate.csv"), []model.EffectSummary{
		{Score: model.ScoreNCA, ATE: nca},
		{Score: model.ScoreNVCA, ATE: nvca},
	}))
}

func params(lam float64, seed int, runID string) map[string]any {
	return map[string]any{
		"lam":        lam,
		"seed":       seed,
		"run_id":     runID,
		"matching":   "flame",
		"crime_bins": []string{"-1", "0", "100"},
		"synth":      true,
	}
}

func TestLoadAndAggregate(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2000-2004_2")
	writeExperiment(t, sub, "a", params(1, 0, "r1"), 0.1, 0.2)
	writeExperiment(t, sub, "b", params(1, 1, "r2"), 0.3, math.NaN())
	writeExperiment(t, sub, "c", params(2, 0, "r3"), 0.5, 0.6)
	// a sidecar without results is ignored
	require.NoError(t, os.WriteFile(filepath.Join(sub, "orphan.json"), []byte(`{"lam":9}`), 0o644))

	exps, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, exps, 3)

	columns, sums := Aggregate(exps, testScores, false)
	assert.Equal(t, []string{"lam"}, columns)
	require.Len(t, sums, 2)

	first := sums[0]
	assert.Equal(t, "1", first.Group["lam"])
	assert.Equal(t, 2, first.N)
	assert.InDelta(t, 0.2, first.Mean[model.ScoreNCA], 1e-12)
	// sample sd of {0.1, 0.3} is 0.1414..., divided by sqrt(2)
	assert.InDelta(t, 0.1, first.SEM[model.ScoreNCA], 1e-12)
	assert.InDelta(t, 0.2, first.Mean[model.ScoreNVCA], 1e-12)
	assert.True(t, math.IsNaN(first.SEM[model.ScoreNVCA]))

	second := sums[1]
	assert.Equal(t, "2", second.Group["lam"])
	assert.True(t, math.IsNaN(second.SEM[model.ScoreNCA]))
}

func TestAggregateKeepConstant(t *testing.T) {
	exps := []Experiment{
		{Params: map[string]string{"lam": "1", "matching": "flame", "seed": "0", "run_id": "a"}, ATE: map[string]float64{"nca": 1}},
		{Params: map[string]string{"lam": "1", "matching": "flame", "seed": "1", "run_id": "b"}, ATE: map[string]float64{"nca": 3}},
	}
	columns, sums := Aggregate(exps, []string{"nca"}, true)
	assert.Equal(t, []string{"lam", "matching"}, columns)
	require.Len(t, sums, 1)
	assert.InDelta(t, 2, sums[0].Mean["nca"], 1e-12)

	columns, sums = Aggregate(exps, []string{"nca"}, false)
	assert.Empty(t, columns)
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].N)
}

func TestParamString(t *testing.T) {
	assert.Equal(t, "-1 0 100", paramString([]any{"-1", "0", "100"}))
	assert.Equal(t, "1.5", paramString(1.5))
	assert.Equal(t, "true", paramString(true))
	assert.Equal(t, "", paramString(nil))
}

func TestRecords(t *testing.T) {
	header, records := Records([]string{"lam"}, []string{"nca"}, []Summary{
		{Group: map[string]string{"lam": "1"}, N: 1, Mean: map[string]float64{"nca": 0.5}, SEM: map[string]float64{"nca": math.NaN()}},
	})
	assert.Equal(t, []string{"lam", "nca_mean", "nca_sem", "n"}, header)
	assert.Equal(t, [][]string{{"1", "0.5", "", "1"}}, records)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	writeExperiment(t, dir, "a", params(1, 0, "r1"), 0.1, 0.2)
	out := filepath.Join(t.TempDir(), "results_ate.csv")

	n, err := Write(dir, out, testScores, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, out)

	_, err = Write(t.TempDir(), out, testScores, false)
	assert.Error(t, err)
}
