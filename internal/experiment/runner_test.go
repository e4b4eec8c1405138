package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/config"
	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/store"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

func fixtureCases() []model.Case {
	var cases []model.Case
	people := []struct{ race, calcRace string }{
		{"Black", "Black"}, {"White", "White"}, {"Black", "Black"}, {"White", "White"}, {"White", "Hispanic"},
	}
	for i, p := range people {
		for j := range 2 {
			cases = append(cases, model.Case{
				DefendantID:        fmt.Sprintf("d%d", i),
				Gender:             "Male",
				Race:               p.race,
				CalcRace:           p.calcRace,
				DOB:                model.NewDate(1970+i, time.January, 1),
				CaseDate:           model.NewDate(2001+j, time.March, 1),
				OffenseDate:        model.NewDate(2001+j, time.February, 1),
				DispositionDate:    model.NewDate(2001+j, time.June, 1),
				Year:               2001 + j,
				CaseNumber:         fmt.Sprintf("c%d-%d", i, j),
				OffenseCode:        "120100",
				Detailed:           "Robbery",
				Broad:              "Robbery",
				Degree:             "F2",
				Disposition:        "Guilty",
				DispositionLiteral: "PROBATION",
				OffenseCategory:    model.OffenseRobbery,
			})
		}
	}
	return cases
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	def := model.DefaultSchema()

	casesPath := filepath.Join(dir, "hc.csv")
	require.NoError(t, tableio.WriteCSV(casesPath, fixtureCases()))
	coefPath := filepath.Join(dir, "coef.csv")
	require.NoError(t, tableio.WriteRecords(coefPath, []string{"calc.detailed", "coef"}, [][]string{{"Robbery", "0.1"}}))

	return &config.Config{
		Data: config.DataConfig{
			Cases:             casesPath,
			OGRS3Coefficients: coefPath,
			RatesDir:          filepath.Join(dir, "rates"),
			ScratchDir:        filepath.Join(dir, "scratch"),
			OutDir:            filepath.Join(dir, "out"),
		},
		Pipeline: config.PipelineConfig{
			Scores:         def.Scores,
			Offenses:       def.Offenses,
			Demographics:   def.Demographics,
			TreatmentField: def.Treatment,
			Sources:        def.Sources,
		},
		Survey:  config.SurveyConfig{Smoothing: config.SmoothingRegression},
		Synth:   config.SynthConfig{Cache: true, RateColumn: model.RateArrestSmooth, RateMultNCVS: 1, RateMultNSDUH: 1},
		Workers: 2,
	}
}

func testParams() Params {
	return Params{
		StartYear: 2001,
		EndYear:   2002,
		Window:    1,
		Baseline:  "White",
		Treatment: "Black",
		Algorithm: "flame",
		Bins:      []int{-1, 0, 1, 2, 100},
		Lambda:    1,
		Omega:     1,
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_Observed(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	ctx := context.Background()
	r := NewRunner(cfg, st)

	out, err := r.Run(ctx, testParams())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Data.OutDir, "2001-2002_1"), out.Dir)
	for _, path := range []string{out.ATEPath, out.CATEPath, out.Sidecar, r.ScoresPath(2001, 2002)} {
		assert.FileExists(t, path)
	}
	assert.NoFileExists(t, filepath.Join(out.Dir, out.Stem+"-cells.csv"))

	ates, err := tableio.ReadCSV[model.EffectSummary](out.ATEPath)
	require.NoError(t, err)
	assert.Len(t, ates, len(model.AllScores))

	data, err := os.ReadFile(out.Sidecar)
	require.NoError(t, err)
	var side map[string]any
	require.NoError(t, json.Unmarshal(data, &side))
	assert.Equal(t, out.RunID, side["run_id"])

	run, err := st.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Len(t, run.Effects, len(model.AllScores))

	stages, err := st.ListStages(ctx, out.RunID)
	require.NoError(t, err)
	var names []string
	for _, s := range stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"rais", "observed", "join", "effect"}, names)
	// the hispanic defendant is not part of the White-Black contrast
	assert.Equal(t, 4, stages[3].RowsOut)
}

func TestRun_FailureIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Cases = filepath.Join(t.TempDir(), "missing.csv")
	st := newTestStore(t)
	ctx := context.Background()

	_, err := NewRunner(cfg, st).Run(ctx, testParams())
	require.Error(t, err)

	failed, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].Error)
}

func TestRun_RejectsBadParams(t *testing.T) {
	cfg := testConfig(t)
	p := testParams()
	p.Algorithm = "nearest"
	_, err := NewRunner(cfg, nil).Run(context.Background(), p)
	assert.Error(t, err)
}

func TestSynthesize_CachesCounts(t *testing.T) {
	cfg := testConfig(t)
	for _, src := range []string{model.SourceNCVS, model.SourceNSDUH} {
		// no usable rates, so every cell keeps its observed count
		require.NoError(t, tableio.WriteCSV(filepath.Join(cfg.Data.RatesDir, src+"_regression.csv"), []model.ArrestRate{}))
	}
	ctx := context.Background()
	p := testParams()
	p.Synthetic = true

	r := NewRunner(cfg, nil)
	first, err := r.Synthesize(ctx, p)
	require.NoError(t, err)
	assert.FileExists(t, p.Synth().CachePath(cfg.Data.ScratchDir))

	observed, err := r.Observed(p.StartYear, p.EndYear)
	require.NoError(t, err)
	total := func(counts []model.OffenseCount) float64 {
		s := 0.0
		for _, c := range counts {
			s += c.Total
		}
		return s
	}
	assert.InDelta(t, total(observed), total(first.Counts), 1e-9)

	second, err := NewRunner(cfg, nil).Synthesize(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, len(first.Counts), len(second.Counts))
	assert.Empty(t, second.Cells)

	// different detection rates never reuse the cached counts
	scaled := p
	scaled.RateMultNCVS = 0.25
	assert.NotEqual(t, p.Synth().CachePath(cfg.Data.ScratchDir), scaled.Synth().CachePath(cfg.Data.ScratchDir))
	third, err := NewRunner(cfg, nil).Synthesize(ctx, scaled)
	require.NoError(t, err)
	assert.NotEmpty(t, third.Cells)
	assert.FileExists(t, scaled.Synth().CachePath(cfg.Data.ScratchDir))
}

func TestObserved_FiltersIneligible(t *testing.T) {
	r := NewRunner(testConfig(t), nil)
	counts, err := r.Observed(2001, 2002)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, c := range counts {
		ids[c.DefendantID] = true
		if c.Offense == model.OffenseRobbery {
			assert.InDelta(t, 2, c.Total, 1e-12)
		}
	}
	assert.Len(t, ids, 5)
}

func TestYearRangeOutsideData(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(testConfig(t), nil)

	_, err := r.Observed(2050, 2055)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the data")

	_, _, err = r.Histories(ctx, 1990, 1995)
	assert.Error(t, err)

	p := testParams()
	p.Synthetic = true
	p.StartYear, p.EndYear = 2050, 2055
	_, err = r.Synthesize(ctx, p)
	assert.Error(t, err)

	// partial overlap still runs
	counts, err := r.Observed(2002, 2010)
	require.NoError(t, err)
	assert.NotEmpty(t, counts)
}

func TestCATERecords(t *testing.T) {
	header, records := CATERecords([]string{"robbery", "def.gender"}, []model.ConditionalEffect{
		{Score: "nca", Covariates: map[string]string{"robbery": "1", "def.gender": model.Wildcard}, CATE: 0.5, Size: 3, Treated: 1, Control: 2},
	})
	assert.Equal(t, []string{"robbery", "def.gender", "treated", "control", "size", "cate", "score"}, header)
	assert.Equal(t, [][]string{{"1", "*", "1", "2", "3", "0.5", "nca"}}, records)
}
