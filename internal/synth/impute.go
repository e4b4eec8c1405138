package synth

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Member is one defendant's observed count within a cell.
type Member struct {
	DefendantID string
	Observed    int
}

// Outcome is the imputation result for one cell. Assigned is parallel to
// the members the cell was imputed from.
type Outcome struct {
	Stats    model.CellStats
	Assigned []int
}

// Impute estimates the cell's unobserved crimes and distributes them over
// members. population is the number of distinct defendants in the cell's
// demographic group across all offenses. A missing or zero rate leaves the
// total at the observed count. Unobserved crimes are drawn with
// replacement from src.
func Impute(members []Member, population int, rate, lambda, omega float64, src rand.Source) (Outcome, error) {
	out := Outcome{Assigned: make([]int, len(members))}
	st := &out.Stats
	st.Population = population
	st.DetectionRate = rate

	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.DefendantID]; dup {
			return out, model.Invariantf("synth: defendant %s appears twice in one cell", m.DefendantID)
		}
		seen[m.DefendantID] = struct{}{}
		st.Observed += m.Observed
	}

	if math.IsNaN(rate) || rate == 0 {
		st.TotalEstimate = st.Observed
		st.FellBack = true
	} else {
		st.TotalEstimate = int(math.Round(lambda * float64(st.Observed) / rate))
	}
	st.Unobserved = st.TotalEstimate - st.Observed
	if population > 0 {
		st.PerCapita = float64(st.Unobserved) / float64(population)
	}

	if st.Unobserved < 1 || len(members) == 0 {
		return out, nil
	}

	weights := make([]float64, len(members))
	for i, m := range members {
		weights[i] = math.Max(0, st.PerCapita+omega*float64(m.Observed))
	}
	if !(floats.Sum(weights) > 0) {
		return out, nil
	}

	dist := distuv.NewCategorical(weights, src)
	for range st.Unobserved {
		out.Assigned[int(dist.Rand())]++
		st.Assigned++
	}

	drawn := 0
	for _, n := range out.Assigned {
		drawn += n
	}
	if drawn != st.Unobserved {
		return out, model.Invariantf("synth: drew %d crimes for %s, want %d", drawn, st.Cell, st.Unobserved)
	}
	return out, nil
}

// cellRNG returns a generator seeded from the run seed, the window and the
// cell, so cells can be sampled in any order.
func cellRNG(seed uint64, windowStart int, source string, cell model.Cell) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.Itoa(windowStart)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(cell.String()))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}
