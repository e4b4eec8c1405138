// Package effect estimates the effect of a binarized demographic attribute
// on each risk score by matching defendants on their offense counts and
// remaining demographics.
package effect

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rai-disparity/internal/matching"
	"github.com/sells-group/rai-disparity/internal/model"
)

// Params configures one estimation.
type Params struct {
	Treatment TreatmentSet
	Bins      []int
	Algorithm string
	Repeats   bool
	// Subsample caps the units matched per score; 0 keeps all.
	Subsample int
	Seed      uint64
}

// Result holds one summary per score and the conditional effects of every
// matched group.
type Result struct {
	Summaries   []model.EffectSummary
	Conditional []model.ConditionalEffect
	// Population is the number of rows left after binarizing treatment.
	Population int
}

// Estimator runs the matching pipeline for every score in the schema.
type Estimator struct {
	schema  model.Schema
	params  Params
	bins    Bins
	matcher matching.Matcher
	workers int
}

// New validates params and returns an Estimator.
func New(schema model.Schema, params Params, workers int) (*Estimator, error) {
	if err := params.Treatment.Validate(); err != nil {
		return nil, err
	}
	bins, err := NewBins(params.Bins)
	if err != nil {
		return nil, err
	}
	m, err := matching.New(params.Algorithm, params.Repeats)
	if err != nil {
		return nil, err
	}
	if params.Subsample < 0 {
		return nil, eris.Errorf("effect: negative subsample %d", params.Subsample)
	}
	if workers < 1 {
		workers = 1
	}
	return &Estimator{schema: schema, params: params, bins: bins, matcher: m, workers: workers}, nil
}

// covariateTable is the encoded covariates shared by every score.
type covariateTable struct {
	names    []string
	codes    [][]int
	treated  []bool
	decoders []func(int) string
}

// Estimate matches rows once per score. Scores are estimated concurrently
// and never share outcome columns.
func (e *Estimator) Estimate(ctx context.Context, rows []Row) (*Result, error) {
	log := zap.L().With(zap.String("component", "effect"))

	kept, treated, err := Binarize(rows, e.schema.Treatment, e.params.Treatment)
	if err != nil {
		return nil, err
	}
	table := e.encode(kept, treated)

	// normalized over the whole population before per-score drops
	outcomes := make([][]float64, len(e.schema.Scores))
	for i, score := range e.schema.Scores {
		outcomes[i] = Normalize(kept, score)
	}

	summaries := make([]model.EffectSummary, len(e.schema.Scores))
	conditional := make([][]model.ConditionalEffect, len(e.schema.Scores))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, score := range e.schema.Scores {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, cond, err := e.estimateScore(score, table, outcomes[i])
			if err != nil {
				return eris.Wrapf(err, "effect: score %s", score)
			}
			summaries[i] = sum
			conditional[i] = cond
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Summaries: summaries, Population: len(kept)}
	for _, c := range conditional {
		res.Conditional = append(res.Conditional, c...)
	}
	for _, s := range summaries {
		if s.Dropped > 0 {
			log.Warn("effect: dropped rows with a missing score",
				zap.String("score", s.Score), zap.Int("dropped", s.Dropped), zap.Int("rows", len(kept)))
		}
		log.Info("effect: estimated",
			zap.String("score", s.Score), zap.Float64("ate", s.ATE), zap.Float64("att", s.ATT),
			zap.Int("units", s.Units), zap.Int("matched", s.Matched), zap.Int("groups", s.Groups))
	}
	return res, nil
}

// encode discretizes offense totals and codes the demographics other than
// the treatment attribute.
func (e *Estimator) encode(rows []Row, treated []bool) covariateTable {
	t := covariateTable{treated: treated}
	for _, off := range e.schema.Offenses {
		t.names = append(t.names, off)
		t.decoders = append(t.decoders, e.bins.Label)
	}
	var encoders []Encoder
	var demos []string
	for _, field := range e.schema.Demographics {
		if field == e.schema.Treatment {
			continue
		}
		values := make([]string, len(rows))
		for i, r := range rows {
			values[i] = r.Demographics[field]
		}
		enc := NewEncoder(values)
		encoders = append(encoders, enc)
		demos = append(demos, field)
		t.names = append(t.names, field)
		t.decoders = append(t.decoders, enc.Label)
	}

	t.codes = make([][]int, len(rows))
	for i, r := range rows {
		codes := make([]int, 0, len(t.names))
		for _, off := range e.schema.Offenses {
			codes = append(codes, e.bins.Code(r.Offenses[off]))
		}
		for j, field := range demos {
			codes = append(codes, encoders[j].Code(r.Demographics[field]))
		}
		t.codes[i] = codes
	}
	return t
}

func (e *Estimator) estimateScore(score string, t covariateTable, outcome []float64) (model.EffectSummary, []model.ConditionalEffect, error) {
	var units []matching.Unit
	dropped := 0
	for i, y := range outcome {
		if math.IsNaN(y) {
			dropped++
			continue
		}
		units = append(units, matching.Unit{Treated: t.treated[i], Covariates: t.codes[i], Outcome: y})
	}
	units = subsample(units, e.params.Subsample, scoreRNG(e.params.Seed, score))

	sum := model.EffectSummary{Score: score, Units: len(units), Dropped: dropped, ATE: math.NaN(), ATT: math.NaN()}
	if len(units) == 0 {
		return sum, nil, nil
	}
	res, err := e.matcher.Match(units, t.names)
	if err != nil {
		return sum, nil, err
	}
	sum.ATE, sum.ATT = res.ATE, res.ATT
	sum.Matched = res.Matched
	sum.Groups = len(res.Groups)

	cond := make([]model.ConditionalEffect, 0, len(res.Groups))
	for _, grp := range res.Groups {
		covs := make(map[string]string, len(t.names))
		for j, name := range t.names {
			if !grp.Active[j] {
				covs[name] = model.Wildcard
				continue
			}
			covs[name] = t.decoders[j](grp.Values[j])
		}
		cond = append(cond, model.ConditionalEffect{
			Score:      score,
			Covariates: covs,
			CATE:       grp.CATE,
			Size:       grp.Size(),
			Treated:    grp.Treated,
			Control:    grp.Control,
		})
	}
	return sum, cond, nil
}

// CovariateNames lists the matching covariates in column order.
func (e *Estimator) CovariateNames() []string {
	names := slices.Clone(e.schema.Offenses)
	for _, field := range e.schema.Demographics {
		if field != e.schema.Treatment {
			names = append(names, field)
		}
	}
	return names
}

// subsample keeps n units chosen by rng, preserving their order. n of 0 or
// at least len(units) keeps every unit.
func subsample(units []matching.Unit, n int, rng *rand.Rand) []matching.Unit {
	if n <= 0 || n >= len(units) {
		return units
	}
	idx := rng.Perm(len(units))[:n]
	slices.Sort(idx)
	out := make([]matching.Unit, n)
	for i, j := range idx {
		out[i] = units[j]
	}
	return out
}

func scoreRNG(seed uint64, score string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(score)) //nolint:errcheck
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}
