package rai

import (
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/taxonomy"
)

const chunkSize = 512

// Scorer applies every risk instrument to criminal-history summaries.
type Scorer struct {
	ogrs3   *OGRS3
	workers int
}

// NewScorer returns a Scorer. workers bounds the number of chunks scored at once.
func NewScorer(coefs taxonomy.Coefficients, workers int) *Scorer {
	if workers < 1 {
		workers = 1
	}
	return &Scorer{ogrs3: NewOGRS3(coefs), workers: workers}
}

// Score computes all five instruments for one defendant.
func (s *Scorer) Score(h *model.CriminalHistory) (model.RiskScores, error) {
	out := model.RiskScores{
		DefendantID: h.DefendantID,
		NCA:         NCA.Score(h),
		NVCA:        NVCA.Score(h),
		VPRAI:       VPRAI.Score(h),
		FTA:         FTA.Score(h),
	}
	p, err := s.ogrs3.Score(h)
	if err != nil {
		return model.RiskScores{}, err
	}
	out.OGRS3 = p
	return out, nil
}

// Missing counts undefined scores per instrument.
type Missing map[string]int

// ScoreAll scores every summary, preserving input order. Rows are split into
// chunks scored concurrently.
func (s *Scorer) ScoreAll(ctx context.Context, histories []model.CriminalHistory) ([]model.RiskScores, Missing, error) {
	log := zap.L().With(zap.String("component", "rai"))
	log.Info("rai: scoring", zap.Int("rows", len(histories)), zap.Int("workers", s.workers))

	out := make([]model.RiskScores, len(histories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for start := 0; start < len(histories); start += chunkSize {
		end := min(start+chunkSize, len(histories))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				scores, err := s.Score(&histories[i])
				if err != nil {
					return err
				}
				out[i] = scores
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "rai: score all")
	}

	missing := make(Missing, len(model.AllScores))
	for _, name := range model.AllScores {
		missing[name] = 0
	}
	for _, r := range out {
		for _, name := range model.AllScores {
			if _, ok := r.Value(name); !ok {
				missing[name]++
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(missing)) {
		if n := missing[name]; n > 0 {
			log.Warn("rai: undefined scores", zap.String("score", name), zap.Int("rows", n))
		}
	}
	return out, missing, nil
}
