package effect

import (
	"math"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Rest is the treatment key that stands for every value not named otherwise.
const Rest = "Rest"

// Row is one defendant's scores, offense totals and demographics.
type Row struct {
	DefendantID  string
	Demographics map[string]string
	Offenses     map[string]float64
	Scores       model.RiskScores
}

// Join pivots offense counts wide and inner-joins them with scores on
// defendant id. Demographics come from the first count row of each
// defendant. Output is ordered by defendant id.
func Join(scores []model.RiskScores, counts []model.OffenseCount, schema model.Schema) []Row {
	byID := make(map[string]*Row)
	for _, c := range counts {
		r, ok := byID[c.DefendantID]
		if !ok {
			r = &Row{
				DefendantID:  c.DefendantID,
				Demographics: make(map[string]string, len(schema.Demographics)),
				Offenses:     make(map[string]float64, len(schema.Offenses)),
			}
			for _, field := range schema.Demographics {
				r.Demographics[field] = c.Field(field)
			}
			byID[c.DefendantID] = r
		}
		r.Offenses[c.Offense] += c.Total
	}

	out := make([]Row, 0, len(scores))
	for _, s := range scores {
		r, ok := byID[s.DefendantID]
		if !ok {
			continue
		}
		r.Scores = s
		for _, off := range schema.Offenses {
			if _, ok := r.Offenses[off]; !ok {
				r.Offenses[off] = 0
			}
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b Row) int {
		switch {
		case a.DefendantID < b.DefendantID:
			return -1
		case a.DefendantID > b.DefendantID:
			return 1
		}
		return 0
	})
	zap.L().Info("effect: joined scores with offense counts",
		zap.Int("scores", len(scores)), zap.Int("defendants_with_counts", len(byID)),
		zap.Int("rows_out", len(out)))
	return out
}

// TreatmentSet maps the two kept values of the treatment attribute to 0 and 1.
type TreatmentSet map[string]int

// NewTreatmentSet maps baseline to 0 and treatment to 1.
func NewTreatmentSet(baseline, treatment string) (TreatmentSet, error) {
	ts := TreatmentSet{baseline: 0, treatment: 1}
	return ts, ts.Validate()
}

// Validate checks that the set has exactly two keys mapped to 0 and 1.
func (ts TreatmentSet) Validate() error {
	if len(ts) != 2 {
		return eris.Errorf("effect: treatment set needs exactly 2 keys, got %d", len(ts))
	}
	seen := [2]bool{}
	for k, v := range ts {
		if v != 0 && v != 1 {
			return eris.Errorf("effect: treatment key %q maps to %d, want 0 or 1", k, v)
		}
		seen[v] = true
	}
	if !seen[0] || !seen[1] {
		return eris.New("effect: treatment set must map one key to 0 and one to 1")
	}
	return nil
}

// Binarize keeps the rows whose field value is a key of ts, plus every other
// row when ts has a Rest key, and returns each kept row's treatment flag.
func Binarize(rows []Row, field string, ts TreatmentSet) ([]Row, []bool, error) {
	if err := ts.Validate(); err != nil {
		return nil, nil, err
	}
	rest, hasRest := ts[Rest]

	out := make([]Row, 0, len(rows))
	flags := make([]bool, 0, len(rows))
	for _, r := range rows {
		v, ok := ts[r.Demographics[field]]
		if !ok {
			if !hasRest {
				continue
			}
			v = rest
		}
		out = append(out, r)
		flags = append(flags, v == 1)
	}
	zap.L().Info("effect: binarized treatment",
		zap.String("field", field), zap.Int("rows_in", len(rows)), zap.Int("rows_out", len(out)))
	return out, flags, nil
}

// Bins discretizes counts into right-inclusive intervals between edges.
type Bins struct {
	Edges  []int
	Labels []string
}

// NewBins returns bins for strictly increasing edges. An interval of width
// one is labelled by its right edge, wider ones by "left+1-right".
func NewBins(edges []int) (Bins, error) {
	if len(edges) < 2 {
		return Bins{}, eris.New("effect: bins need at least two edges")
	}
	labels := make([]string, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		left, right := edges[i-1], edges[i]
		if right <= left {
			return Bins{}, eris.Errorf("effect: bin edges must increase (%d after %d)", right, left)
		}
		if right-left == 1 {
			labels[i-1] = strconv.Itoa(right)
		} else {
			labels[i-1] = strconv.Itoa(left+1) + "-" + strconv.Itoa(right)
		}
	}
	return Bins{Edges: slices.Clone(edges), Labels: labels}, nil
}

// Code returns the bin index of v, or -1 when v is outside every bin.
func (b Bins) Code(v float64) int {
	if math.IsNaN(v) || v <= float64(b.Edges[0]) {
		return -1
	}
	for i := 1; i < len(b.Edges); i++ {
		if v <= float64(b.Edges[i]) {
			return i - 1
		}
	}
	return -1
}

// Label decodes a bin index.
func (b Bins) Label(code int) string {
	if code < 0 || code >= len(b.Labels) {
		return "NA"
	}
	return b.Labels[code]
}

// Encoder assigns integer codes to categorical values in alphabetical order.
type Encoder struct {
	Categories []string
	codes      map[string]int
}

// NewEncoder builds an encoder over the distinct values.
func NewEncoder(values []string) Encoder {
	cats := slices.Clone(values)
	slices.Sort(cats)
	cats = slices.Compact(cats)
	codes := make(map[string]int, len(cats))
	for i, c := range cats {
		codes[c] = i
	}
	return Encoder{Categories: cats, codes: codes}
}

// Code returns the code of v, or -1 when v was not seen.
func (e Encoder) Code(v string) int {
	if c, ok := e.codes[v]; ok {
		return c
	}
	return -1
}

// Label decodes a code.
func (e Encoder) Label(code int) string {
	if code < 0 || code >= len(e.Categories) {
		return "NA"
	}
	return e.Categories[code]
}

// Normalize min-max scales the defined values of a score over rows. The
// result is NaN where the score is undefined; a constant score maps to 0.
func Normalize(rows []Row, score string) []float64 {
	out := make([]float64, len(rows))
	var defined []float64
	for i, r := range rows {
		v, ok := r.Scores.Value(score)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
		defined = append(defined, v)
	}
	if len(defined) == 0 {
		return out
	}
	lo, hi := floats.Min(defined), floats.Max(defined)
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if hi == lo {
			out[i] = 0
			continue
		}
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
