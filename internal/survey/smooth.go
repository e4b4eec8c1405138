package survey

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Smoothing modes.
const (
	SmoothRegression = "regression"
	SmoothAverage    = "average"
)

// Smoother fills ArrestRateSmooth for one cell's yearly series. It reports
// false when no year had usable samples, leaving every smoothed rate nil.
type Smoother interface {
	Smooth(rows []model.ArrestRate) (bool, error)
}

// NewSmoother returns the smoother for mode.
func NewSmoother(mode string) (Smoother, error) {
	switch mode {
	case SmoothRegression:
		return regressionSmoother{}, nil
	case SmoothAverage:
		return averageSmoother{}, nil
	}
	return nil, eris.Errorf("survey: unknown smoothing mode %q", mode)
}

// usable returns the years, rates and counts of rows with a rate and a
// positive count.
func usable(rows []model.ArrestRate) (x, y, w []float64) {
	for _, r := range rows {
		if r.ArrestRate == nil || math.IsNaN(*r.ArrestRate) || r.Count <= 0 {
			continue
		}
		x = append(x, float64(r.Year))
		y = append(y, *r.ArrestRate)
		w = append(w, float64(r.Count))
	}
	return x, y, w
}

type averageSmoother struct{}

func (averageSmoother) Smooth(rows []model.ArrestRate) (bool, error) {
	_, y, w := usable(rows)
	if len(y) == 0 {
		return false, nil
	}
	return true, fill(rows, func(float64) float64 { return stat.Mean(y, w) })
}

// regressionSmoother fits rate against year weighted by count and predicts
// every year, falling back to the weighted mean with fewer than two
// distinct years.
type regressionSmoother struct{}

func (regressionSmoother) Smooth(rows []model.ArrestRate) (bool, error) {
	x, y, w := usable(rows)
	if len(y) == 0 {
		return false, nil
	}
	distinct := slices.Compact(slices.Sorted(slices.Values(x)))
	if len(distinct) < 2 {
		return true, fill(rows, func(float64) float64 { return stat.Mean(y, w) })
	}
	alpha, beta := stat.LinearRegression(x, y, w, false)
	return true, fill(rows, func(year float64) float64 {
		return math.Min(1, math.Max(0, alpha+beta*year))
	})
}

func fill(rows []model.ArrestRate, predict func(year float64) float64) error {
	for i := range rows {
		v := predict(float64(rows[i].Year))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Invariantf("survey: smoothed rate for %s year %d is %v", rows[i].Cell, rows[i].Year, v)
		}
		rows[i].ArrestRateSmooth = model.FloatPtr(v)
	}
	return nil
}
