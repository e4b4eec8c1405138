// Package experiment wires the pipeline stages into runnable experiments
// and names, writes and records their outputs.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/config"
	"github.com/sells-group/rai-disparity/internal/effect"
	"github.com/sells-group/rai-disparity/internal/history"
	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/rai"
	"github.com/sells-group/rai-disparity/internal/store"
	"github.com/sells-group/rai-disparity/internal/survey"
	"github.com/sells-group/rai-disparity/internal/synth"
	"github.com/sells-group/rai-disparity/internal/tableio"
	"github.com/sells-group/rai-disparity/internal/taxonomy"
)

// Runner executes pipeline stages against the configured data.
type Runner struct {
	cfg    *config.Config
	schema model.Schema
	store  store.Store
	log    *zap.Logger

	cases []model.Case
}

// NewRunner returns a Runner recording runs in st.
func NewRunner(cfg *config.Config, st store.Store) *Runner {
	if st == nil {
		st = store.Nop{}
	}
	return &Runner{
		cfg:    cfg,
		schema: cfg.Schema(),
		store:  st,
		log:    zap.L().With(zap.String("component", "experiment")),
	}
}

// Cases loads the charge-level records once.
func (r *Runner) Cases() ([]model.Case, error) {
	if r.cases != nil {
		return r.cases, nil
	}
	cases, err := history.LoadCases(r.cfg.Data.Cases)
	if err != nil {
		return nil, eris.Wrap(err, "experiment: load cases")
	}
	r.cases = cases
	return cases, nil
}

// casesFor returns the loaded cases after checking that [start, end]
// overlaps their years.
func (r *Runner) casesFor(start, end int) ([]model.Case, error) {
	cases, err := r.Cases()
	if err != nil {
		return nil, err
	}
	if err := history.CheckYears(cases, start, end); err != nil {
		return nil, eris.Wrap(err, "experiment: year range")
	}
	return cases, nil
}

func (r *Runner) taxonomy() (*taxonomy.Taxonomy, error) {
	if r.cfg.Data.Taxonomy == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(r.cfg.Data.Taxonomy)
}

// Histories builds criminal-history summaries for [start, end].
func (r *Runner) Histories(ctx context.Context, start, end int) ([]model.CriminalHistory, history.Stats, error) {
	cases, err := r.casesFor(start, end)
	if err != nil {
		return nil, history.Stats{}, err
	}
	tax, err := r.taxonomy()
	if err != nil {
		return nil, history.Stats{}, err
	}
	var cats taxonomy.Categories
	if r.cfg.Data.OffenseCategories != "" {
		if cats, err = taxonomy.LoadCategories(ctx, r.cfg.Data.OffenseCategories); err != nil {
			return nil, history.Stats{}, err
		}
	}
	return history.NewBuilder(tax, cats).Build(ctx, cases, history.Options{StartYear: start, EndYear: end})
}

// ScoresPath is where scores for [start, end] are cached.
func (r *Runner) ScoresPath(start, end int) string {
	return filepath.Join(r.cfg.Data.ScratchDir, fmt.Sprintf("rais_%d-%d.csv", start, end))
}

// Scores returns risk scores for [start, end], reading them from the
// scratch cache when present.
func (r *Runner) Scores(ctx context.Context, start, end int) ([]model.RiskScores, error) {
	return tableio.Cached(r.ScoresPath(start, end), true, func() ([]model.RiskScores, error) {
		hs, _, err := r.Histories(ctx, start, end)
		if err != nil {
			return nil, err
		}
		coefs, err := taxonomy.LoadCoefficients(ctx, r.cfg.Data.OGRS3Coefficients)
		if err != nil {
			return nil, err
		}
		scores, _, err := rai.NewScorer(coefs, r.cfg.Workers).ScoreAll(ctx, hs)
		return scores, err
	})
}

// RatesPath is where the smoothed rate table of source is stored.
func (r *Runner) RatesPath(source string) string {
	return filepath.Join(r.cfg.Data.RatesDir, fmt.Sprintf("%s_%s.csv", source, r.cfg.Survey.Smoothing))
}

// Rates estimates per-cell arrest rates from a survey and writes them to
// RatesPath.
func (r *Runner) Rates(ctx context.Context, source string) ([]model.ArrestRate, error) {
	var obs []survey.Observation
	var err error
	switch source {
	case model.SourceNCVS:
		obs, _, err = survey.LoadNCVS(ctx, r.cfg.Data.NCVS, r.cfg.Survey.Encoding)
	case model.SourceNSDUH:
		obs, err = survey.LoadNSDUH(ctx, r.cfg.Data.NSDUHDir, r.cfg.Survey.NSDUHYears, r.cfg.Survey.Encoding, r.cfg.Workers)
	default:
		return nil, eris.Errorf("experiment: unknown survey %q", source)
	}
	if err != nil {
		return nil, err
	}

	est, err := survey.NewEstimator(r.cfg.Survey.Smoothing, r.cfg.Workers)
	if err != nil {
		return nil, err
	}
	rates, stats, err := est.Estimate(ctx, source, obs)
	if err != nil {
		return nil, err
	}
	path := r.RatesPath(source)
	if err := tableio.WriteCSV(path, rates); err != nil {
		return nil, err
	}
	r.log.Info("experiment: wrote rates",
		zap.String("source", source), zap.String("path", path),
		zap.Int("rows", stats.Rows), zap.Int("empty_cells", stats.EmptyCells))
	return rates, nil
}

// loadRates reads the stored rate table of every detection source.
func (r *Runner) loadRates() ([]model.ArrestRate, error) {
	var all []model.ArrestRate
	for _, src := range r.schema.Sources {
		rates, err := tableio.ReadCSV[model.ArrestRate](r.RatesPath(src.Name))
		if err != nil {
			return nil, eris.Wrapf(err, "experiment: rates for %s (run the rates command first)", src.Name)
		}
		all = append(all, rates...)
	}
	return all, nil
}

// Synthesize runs the crime synthesizer for p. Counts are cached under the
// scratch directory when caching is enabled; cell diagnostics are only
// available when the counts were computed.
func (r *Runner) Synthesize(ctx context.Context, p Params) (*synth.Result, error) {
	sp := p.Synth()
	s, err := synth.New(r.schema, sp, r.cfg.Workers)
	if err != nil {
		return nil, err
	}
	cases, err := r.casesFor(p.StartYear, p.EndYear)
	if err != nil {
		return nil, err
	}

	var cells []model.CellStats
	counts, err := tableio.Cached(sp.CachePath(r.cfg.Data.ScratchDir), r.cfg.Synth.Cache, func() ([]model.OffenseCount, error) {
		rates, err := r.loadRates()
		if err != nil {
			return nil, err
		}
		res, err := s.Run(ctx, cases, rates)
		if err != nil {
			return nil, err
		}
		cells = res.Cells
		return res.Counts, nil
	})
	if err != nil {
		return nil, err
	}
	return &synth.Result{Counts: counts, Cells: cells}, nil
}

// Observed returns the recorded offense counts over [start, end].
func (r *Runner) Observed(start, end int) ([]model.OffenseCount, error) {
	cases, err := r.casesFor(start, end)
	if err != nil {
		return nil, err
	}
	people := synth.OffenseWindow(synth.EligibleCases(cases), r.schema, start, end)
	return synth.ObservedCounts(people, r.schema.Offenses), nil
}

// Output locates the files an experiment wrote.
type Output struct {
	RunID    string
	Dir      string
	Stem     string
	ATEPath  string
	CATEPath string
	Sidecar  string
	Result   *effect.Result
}

// Run executes one experiment end to end and records it in the registry.
func (r *Runner) Run(ctx context.Context, p Params) (*Output, error) {
	ep, err := p.Effect()
	if err != nil {
		return nil, err
	}
	est, err := effect.New(r.schema, ep, r.cfg.Workers)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(NewSidecar(p, ""))
	if err != nil {
		return nil, eris.Wrap(err, "experiment: encode params")
	}
	run, err := r.store.CreateRun(ctx, p.Stem(), raw)
	if err != nil {
		return nil, err
	}
	log := r.log.With(zap.String("run_id", run.ID), zap.String("stem", p.Stem()))
	log.Info("experiment: starting")

	out, err := r.run(ctx, run.ID, p, est)
	if err != nil {
		if ferr := r.store.FailRun(ctx, run.ID, err); ferr != nil {
			log.Warn("experiment: could not record failure", zap.Error(ferr))
		}
		return nil, err
	}
	if err := r.store.CompleteRun(ctx, run.ID, out.Result.Summaries); err != nil {
		return nil, err
	}
	log.Info("experiment: complete", zap.String("dir", out.Dir))
	return out, nil
}

func (r *Runner) run(ctx context.Context, runID string, p Params, est *effect.Estimator) (*Output, error) {
	scores, err := r.Scores(ctx, p.StartYear, p.EndYear)
	if err != nil {
		return nil, err
	}
	r.stage(ctx, runID, "rais", len(scores), len(scores))

	var counts []model.OffenseCount
	var cells []model.CellStats
	if p.Synthetic {
		res, err := r.Synthesize(ctx, p)
		if err != nil {
			return nil, err
		}
		counts, cells = res.Counts, res.Cells
		r.stage(ctx, runID, "synth", len(scores), len(counts))
	} else {
		if counts, err = r.Observed(p.StartYear, p.EndYear); err != nil {
			return nil, err
		}
		r.stage(ctx, runID, "observed", len(scores), len(counts))
	}

	rows := effect.Join(scores, counts, r.schema)
	r.stage(ctx, runID, "join", len(scores), len(rows))

	res, err := est.Estimate(ctx, rows)
	if err != nil {
		return nil, err
	}
	r.stage(ctx, runID, "effect", len(rows), res.Population)

	return r.write(p, runID, est, res, cells)
}

// stage records row counts. A registry failure is logged, not fatal.
func (r *Runner) stage(ctx context.Context, runID, name string, rowsIn, rowsOut int) {
	if _, err := r.store.RecordStage(ctx, runID, name, rowsIn, rowsOut); err != nil {
		r.log.Warn("experiment: could not record stage", zap.String("stage", name), zap.Error(err))
	}
}

func (r *Runner) write(p Params, runID string, est *effect.Estimator, res *effect.Result, cells []model.CellStats) (*Output, error) {
	dir := p.OutputDir(r.cfg.Data.OutDir)
	stem := p.Stem()
	out := &Output{
		RunID:    runID,
		Dir:      dir,
		Stem:     stem,
		ATEPath:  filepath.Join(dir, stem+"-ate.csv"),
		CATEPath: filepath.Join(dir, stem+"-cate.csv"),
		Sidecar:  filepath.Join(dir, stem+".json"),
		Result:   res,
	}

	if err := tableio.WriteCSV(out.ATEPath, res.Summaries); err != nil {
		return nil, err
	}
	header, records := CATERecords(est.CovariateNames(), res.Conditional)
	if err := tableio.WriteRecords(out.CATEPath, header, records); err != nil {
		return nil, err
	}
	if len(cells) > 0 {
		if err := tableio.WriteCSV(filepath.Join(dir, stem+"-cells.csv"), cells); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(NewSidecar(p, runID), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "experiment: encode sidecar")
	}
	if err := os.WriteFile(out.Sidecar, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "experiment: write %s", out.Sidecar)
	}
	return out, nil
}

// CATERecords flattens conditional effects into a table with one column
// per covariate.
func CATERecords(covariates []string, effects []model.ConditionalEffect) ([]string, [][]string) {
	header := append(append([]string{}, covariates...), "treated", "control", "size", "cate", "score")
	records := make([][]string, len(effects))
	for i, c := range effects {
		rec := make([]string, 0, len(header))
		for _, name := range covariates {
			rec = append(rec, c.Covariates[name])
		}
		rec = append(rec,
			fmt.Sprint(c.Treated), fmt.Sprint(c.Control), fmt.Sprint(c.Size),
			fmt.Sprint(c.CATE), c.Score)
		records[i] = rec
	}
	return header, records
}
