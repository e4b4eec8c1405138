package matching

import (
	"math/bits"
	"slices"

	"github.com/rotisserie/eris"
)

// maxDAMECovariates bounds the subset enumeration.
const maxDAMECovariates = 20

type flame struct{ repeats bool }

func (m *flame) Match(units []Unit, covariates []string) (*Result, error) {
	if err := validate(units, covariates); err != nil {
		return nil, err
	}
	s := newState(units, m.repeats)
	active := allActive(len(covariates))
	s.commit(s.exact(active))
	s.backward(active)
	return s.result(), nil
}

// backward drops one covariate per level, choosing the one whose removal
// matches the most unmatched units. Ties go to the later covariate. The
// last covariate is never dropped.
func (s *state) backward(active []bool) {
	for countActive(active) > 1 && !s.done() {
		best, bestGain := -1, -1
		var bestGroups []Group
		for j, on := range active {
			if !on {
				continue
			}
			active[j] = false
			groups := s.exact(active)
			active[j] = true
			if g := s.gain(groups); g >= bestGain {
				best, bestGain, bestGroups = j, g, groups
			}
		}
		active[best] = false
		s.commit(bestGroups)
	}
}

type dame struct{ repeats bool }

func (m *dame) Match(units []Unit, covariates []string) (*Result, error) {
	if err := validate(units, covariates); err != nil {
		return nil, err
	}
	n := len(covariates)
	if n > maxDAMECovariates {
		return nil, eris.Errorf("matching: dame supports at most %d covariates, got %d", maxDAMECovariates, n)
	}
	s := newState(units, m.repeats)
	for _, mask := range subsets(n) {
		if s.done() {
			break
		}
		s.commit(s.exact(maskActive(mask, n)))
	}
	return s.result(), nil
}

// subsets lists every non-empty covariate subset as a bitmask, ordered by
// decreasing retained importance. Covariate j weighs n-j; ties prefer the
// larger subset, then the larger mask.
func subsets(n int) []uint32 {
	weight := func(mask uint32) int {
		w := 0
		for j := range n {
			if mask&(1<<j) != 0 {
				w += n - j
			}
		}
		return w
	}
	out := make([]uint32, 0, 1<<n-1)
	for mask := uint32(1); mask < 1<<n; mask++ {
		out = append(out, mask)
	}
	slices.SortFunc(out, func(a, b uint32) int {
		if wa, wb := weight(a), weight(b); wa != wb {
			return wb - wa
		}
		if ca, cb := bits.OnesCount32(a), bits.OnesCount32(b); ca != cb {
			return cb - ca
		}
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	return out
}

func maskActive(mask uint32, n int) []bool {
	active := make([]bool, n)
	for j := range n {
		active[j] = mask&(1<<j) != 0
	}
	return active
}

type hybrid struct{ repeats bool }

// Match runs one exact pass on the full set and on every subset missing a
// single covariate, then continues backward elimination from the subset
// that matched the most units.
func (m *hybrid) Match(units []Unit, covariates []string) (*Result, error) {
	if err := validate(units, covariates); err != nil {
		return nil, err
	}
	n := len(covariates)
	s := newState(units, m.repeats)
	active := allActive(n)
	s.commit(s.exact(active))
	if n == 1 {
		return s.result(), nil
	}

	best, bestGain := n-1, -1
	for j := n - 1; j >= 0 && !s.done(); j-- {
		active[j] = false
		groups := s.exact(active)
		active[j] = true
		if g := s.gain(groups); g > bestGain {
			best, bestGain = j, g
		}
		s.commit(groups)
	}
	active[best] = false
	s.backward(active)
	return s.result(), nil
}
