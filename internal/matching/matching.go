// Package matching estimates treatment effects by exact matching on
// discrete covariates, relaxing the covariate set level by level until
// every unit is matched or nothing is left to drop.
package matching

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// Algorithm names accepted by New.
const (
	FLAME  = "flame"
	DAME   = "dame"
	Hybrid = "hybrid"
)

// Unit is one row of the matching table.
type Unit struct {
	Treated    bool
	Covariates []int
	Outcome    float64
}

// Group is one valid matched group: units sharing the values of the active
// covariates, with at least one treated and one control unit.
type Group struct {
	Level   int
	Active  []bool
	Values  []int
	Members []int
	Treated int
	Control int
	CATE    float64
}

// Size returns the number of units in the group.
func (g Group) Size() int { return len(g.Members) }

// Result is the outcome of one matching run.
type Result struct {
	Groups []Group
	// UnitCATE is the mean CATE over the groups a unit belongs to, NaN when unmatched.
	UnitCATE []float64
	Matched  int
	Levels   int
	ATE      float64
	ATT      float64
}

// Matcher matches units on their covariates.
type Matcher interface {
	Match(units []Unit, covariates []string) (*Result, error)
}

// New returns the matcher for algorithm. With repeats, units matched at one
// level stay available to later levels.
func New(algorithm string, repeats bool) (Matcher, error) {
	switch algorithm {
	case FLAME:
		return &flame{repeats: repeats}, nil
	case DAME:
		return &dame{repeats: repeats}, nil
	case Hybrid:
		return &hybrid{repeats: repeats}, nil
	}
	return nil, eris.Errorf("matching: unknown algorithm %q", algorithm)
}

func validate(units []Unit, covariates []string) error {
	if len(covariates) == 0 {
		return eris.New("matching: no covariates")
	}
	for i, u := range units {
		if len(u.Covariates) != len(covariates) {
			return eris.Errorf("matching: unit %d has %d covariates, want %d", i, len(u.Covariates), len(covariates))
		}
		if math.IsNaN(u.Outcome) {
			return eris.Errorf("matching: unit %d has no outcome", i)
		}
	}
	return nil
}

// state tracks which units are matched across levels.
type state struct {
	units   []Unit
	repeats bool
	matched []bool
	groups  []Group
	level   int
}

func newState(units []Unit, repeats bool) *state {
	return &state{units: units, repeats: repeats, matched: make([]bool, len(units))}
}

// done reports whether no further match is possible. Without repeats the
// unmatched units must still hold both arms; with repeats an unmatched unit
// only needs a unit of the other arm anywhere.
func (s *state) done() bool {
	var unmatched, all [2]bool
	for i, u := range s.units {
		arm := 0
		if u.Treated {
			arm = 1
		}
		all[arm] = true
		if !s.matched[i] {
			unmatched[arm] = true
		}
	}
	if s.repeats {
		return !(unmatched[0] && all[1]) && !(unmatched[1] && all[0])
	}
	return !unmatched[0] || !unmatched[1]
}

// exact groups eligible units by the values of the active covariates and
// returns the valid groups. Without repeats only unmatched units are
// eligible; with repeats every unit is, but a group must contain a unit not
// matched at an earlier level.
func (s *state) exact(active []bool) []Group {
	index := make(map[string]int)
	var groups []Group
	var key strings.Builder
	for i, u := range s.units {
		if s.matched[i] && !s.repeats {
			continue
		}
		key.Reset()
		for j, on := range active {
			if on {
				key.WriteString(strconv.Itoa(u.Covariates[j]))
			}
			key.WriteByte('|')
		}
		k := key.String()
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			values := make([]int, len(active))
			for j, on := range active {
				if on {
					values[j] = u.Covariates[j]
				}
			}
			groups = append(groups, Group{Active: slices.Clone(active), Values: values})
		}
		g := &groups[gi]
		g.Members = append(g.Members, i)
		if u.Treated {
			g.Treated++
		} else {
			g.Control++
		}
	}

	valid := groups[:0]
	for _, g := range groups {
		if g.Treated == 0 || g.Control == 0 {
			continue
		}
		if s.repeats && !slices.ContainsFunc(g.Members, func(i int) bool { return !s.matched[i] }) {
			continue
		}
		valid = append(valid, g)
	}
	return valid
}

// gain counts the unmatched units that groups would match.
func (s *state) gain(groups []Group) int {
	n := 0
	for _, g := range groups {
		for _, i := range g.Members {
			if !s.matched[i] {
				n++
			}
		}
	}
	return n
}

// commit records groups as the next level. An empty level still counts.
func (s *state) commit(groups []Group) {
	for _, g := range groups {
		var treated, control []float64
		for _, i := range g.Members {
			if s.units[i].Treated {
				treated = append(treated, s.units[i].Outcome)
			} else {
				control = append(control, s.units[i].Outcome)
			}
		}
		g.Level = s.level
		g.CATE = stat.Mean(treated, nil) - stat.Mean(control, nil)
		s.groups = append(s.groups, g)
	}
	for _, g := range groups {
		for _, i := range g.Members {
			s.matched[i] = true
		}
	}
	s.level++
}

func (s *state) result() *Result {
	sums := make([]float64, len(s.units))
	counts := make([]int, len(s.units))
	for _, g := range s.groups {
		for _, i := range g.Members {
			sums[i] += g.CATE
			counts[i]++
		}
	}

	res := &Result{
		Groups:   s.groups,
		UnitCATE: make([]float64, len(s.units)),
		Levels:   s.level,
	}
	var all, treated []float64
	for i := range s.units {
		if counts[i] == 0 {
			res.UnitCATE[i] = math.NaN()
			continue
		}
		res.UnitCATE[i] = sums[i] / float64(counts[i])
		all = append(all, res.UnitCATE[i])
		if s.units[i].Treated {
			treated = append(treated, res.UnitCATE[i])
		}
	}
	res.Matched = len(all)
	res.ATE = math.NaN()
	res.ATT = math.NaN()
	if len(all) > 0 {
		res.ATE = stat.Mean(all, nil)
	}
	if len(treated) > 0 {
		res.ATT = stat.Mean(treated, nil)
	}
	return res
}

func allActive(n int) []bool {
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}
	return active
}

func countActive(active []bool) int {
	n := 0
	for _, on := range active {
		if on {
			n++
		}
	}
	return n
}
