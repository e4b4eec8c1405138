// Package survey estimates per-cell arrest and reporting rates from
// victimization and self-report survey extracts.
package survey

import (
	"context"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Observation is one respondent's contribution to one cell and year. Each
// rate is the sum of its numerators over the sum of its denominators; NaN
// terms are skipped.
type Observation struct {
	model.Cell
	Year      int
	ArrestNum float64
	ArrestDen float64
	ReportNum float64
	ReportDen float64
}

// Stats summarizes an estimation run.
type Stats struct {
	Observations int `json:"observations"`
	Rows         int `json:"rows"`
	EmptyCells   int `json:"empty_cells"`
	Unsmoothed   int `json:"unsmoothed_groups"`
}

// Estimator turns observations into smoothed per-cell rates.
type Estimator struct {
	smoother Smoother
	workers  int
}

// NewEstimator returns an Estimator using the named smoothing mode.
func NewEstimator(smoothing string, workers int) (*Estimator, error) {
	sm, err := NewSmoother(smoothing)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Estimator{smoother: sm, workers: workers}, nil
}

type cellYear struct {
	cell model.Cell
	year int
}

type sums struct {
	arrestNum, arrestDen float64
	reportNum, reportDen float64
}

func (s *sums) add(o Observation) {
	if !math.IsNaN(o.ArrestNum) && !math.IsNaN(o.ArrestDen) {
		s.arrestNum += o.ArrestNum
	}
	if !math.IsNaN(o.ArrestDen) {
		s.arrestDen += o.ArrestDen
	}
	if !math.IsNaN(o.ReportNum) && !math.IsNaN(o.ReportDen) {
		s.reportNum += o.ReportNum
	}
	if !math.IsNaN(o.ReportDen) {
		s.reportDen += o.ReportDen
	}
}

// Estimate computes raw and smoothed rates for every combination of sex,
// race, age, offense and year present in obs. Combinations without
// responses carry nil rates and a zero count.
func (e *Estimator) Estimate(ctx context.Context, source string, obs []Observation) ([]model.ArrestRate, Stats, error) {
	log := zap.L().With(zap.String("component", "survey"), zap.String("source", source))
	stats := Stats{Observations: len(obs)}

	acc := make(map[cellYear]*sums)
	var sexes, races, ages, offenses []string
	var years []int
	for _, o := range obs {
		k := cellYear{cell: o.Cell, year: o.Year}
		s, ok := acc[k]
		if !ok {
			s = &sums{}
			acc[k] = s
			sexes = appendUnique(sexes, o.Sex)
			races = appendUnique(races, o.Race)
			ages = appendUnique(ages, o.Age)
			offenses = appendUnique(offenses, o.Offense)
			if !slices.Contains(years, o.Year) {
				years = append(years, o.Year)
			}
		}
		s.add(o)
	}
	slices.Sort(sexes)
	slices.Sort(races)
	slices.Sort(ages)
	slices.Sort(offenses)
	slices.Sort(years)

	// group rows by cell so each series can be smoothed independently
	var cells []model.Cell
	for _, sex := range sexes {
		for _, race := range races {
			for _, age := range ages {
				for _, off := range offenses {
					cells = append(cells, model.Cell{Sex: sex, Race: race, Age: age, Offense: off})
				}
			}
		}
	}

	series := make([][]model.ArrestRate, len(cells))
	unsmoothed := make([]bool, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, cell := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := make([]model.ArrestRate, len(years))
			for j, y := range years {
				rows[j] = model.ArrestRate{Source: source, Cell: cell, Year: y}
				if s, ok := acc[cellYear{cell: cell, year: y}]; ok {
					fillRates(&rows[j], s)
				}
			}
			ok, err := e.smoother.Smooth(rows)
			if err != nil {
				return eris.Wrapf(err, "survey: smooth %s", cell)
			}
			unsmoothed[i] = !ok
			series[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, eris.Wrap(err, "survey: estimate")
	}

	out := make([]model.ArrestRate, 0, len(cells)*len(years))
	for i, rows := range series {
		if unsmoothed[i] {
			stats.Unsmoothed++
			log.Warn("survey: no usable samples for smoothing", zap.String("cell", cells[i].String()))
		}
		for _, r := range rows {
			if r.Count == 0 {
				stats.EmptyCells++
			}
		}
		out = append(out, rows...)
	}
	stats.Rows = len(out)

	log.Info("survey: estimated rates",
		zap.Int("observations", stats.Observations),
		zap.Int("rows", stats.Rows),
		zap.Int("empty_cells", stats.EmptyCells),
		zap.Int("unsmoothed_groups", stats.Unsmoothed))
	return out, stats, nil
}

func fillRates(r *model.ArrestRate, s *sums) {
	r.Count = int(math.Round(s.arrestDen))
	if s.arrestDen > 0 {
		r.ArrestRate = model.FloatPtr(s.arrestNum / s.arrestDen)
	}
	if s.reportDen > 0 {
		r.ReportingRate = model.FloatPtr(s.reportNum / s.reportDen)
	}
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
