// Package rai computes pretrial risk-assessment instrument scores from
// criminal-history summaries.
package rai

import (
	"github.com/sells-group/rai-disparity/internal/model"
)

// Rule awards points for one item of an instrument.
type Rule struct {
	Name   string
	Points func(h *model.CriminalHistory) int
}

// Breakpoint maps every point total up to and including Max onto Category.
type Breakpoint struct {
	Max      int
	Category int
}

// Instrument is an ordered rule table folded into a point total. When
// Breakpoints is empty the total is the score.
type Instrument struct {
	Name        string
	Rules       []Rule
	Breakpoints []Breakpoint
}

// Total sums the points of every rule.
func (in Instrument) Total(h *model.CriminalHistory) int {
	total := 0
	for _, r := range in.Rules {
		total += r.Points(h)
	}
	return total
}

// Category maps a point total onto the instrument's scale. Totals above the
// last breakpoint are undefined.
func (in Instrument) Category(total int) (int, bool) {
	if len(in.Breakpoints) == 0 {
		return total, true
	}
	for _, bp := range in.Breakpoints {
		if total <= bp.Max {
			return bp.Category, true
		}
	}
	return 0, false
}

// Score returns the instrument's score for h, or nil when undefined.
func (in Instrument) Score(h *model.CriminalHistory) *int {
	c, ok := in.Category(in.Total(h))
	if !ok {
		return nil
	}
	return model.IntPtr(c)
}

// step returns the points of the highest threshold n reaches. thresholds
// and points are parallel and ascending.
func step(n int, thresholds []int, points []int) int {
	p := 0
	for i, t := range thresholds {
		if n >= t {
			p = points[i]
		}
	}
	return p
}

func flag(b bool, points int) int {
	if b {
		return points
	}
	return 0
}

// violentConvictionPoints is shared by NCA and NVCA: 1-2 convictions score 1, 3+ score 2.
func violentConvictionPoints(h *model.CriminalHistory) int {
	return step(h.ViolentConvictions, []int{1, 3}, []int{1, 2})
}

// NCA is the new criminal activity scale.
var NCA = Instrument{
	Name: model.ScoreNCA,
	Rules: []Rule{
		{"age_under_23", func(h *model.CriminalHistory) int { return flag(h.CurrentAge < 23, 2) }},
		{"pending_charge", func(h *model.CriminalHistory) int { return flag(h.PendingCharges > 0, 3) }},
		{"prior_misdemeanor", func(h *model.CriminalHistory) int { return flag(h.Misdemeanors > 0, 1) }},
		{"prior_felony", func(h *model.CriminalHistory) int { return flag(h.Felonies > 0, 1) }},
		{"prior_violent_conviction", violentConvictionPoints},
		{"fta_past_2yr", func(h *model.CriminalHistory) int {
			return step(h.FTALessThan2Yr, []int{1, 2}, []int{1, 2})
		}},
		{"prior_incarceration", func(h *model.CriminalHistory) int { return flag(h.Incarcerations > 0, 2) }},
	},
	Breakpoints: []Breakpoint{{0, 1}, {2, 2}, {4, 3}, {6, 4}, {8, 5}, {13, 6}},
}

// NVCA is the new violent criminal activity flag scale.
var NVCA = Instrument{
	Name: model.ScoreNVCA,
	Rules: []Rule{
		{"violent_pending", func(h *model.CriminalHistory) int { return flag(h.ViolentPending > 0, 2) }},
		{"violent_pending_under_21", func(h *model.CriminalHistory) int {
			return flag(h.ViolentPending == 1 && h.CurrentAge < 21, 1)
		}},
		{"pending_charge", func(h *model.CriminalHistory) int { return flag(h.PendingCharges > 0, 1) }},
		{"prior_conviction", func(h *model.CriminalHistory) int { return flag(h.Convictions > 0, 1) }},
		{"prior_felony", func(h *model.CriminalHistory) int { return flag(h.Felonies > 0, 1) }},
		{"prior_violent_conviction", violentConvictionPoints},
	},
	Breakpoints: []Breakpoint{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}, {7, 6}},
}

// FTA is the failure-to-appear scale.
var FTA = Instrument{
	Name: model.ScoreFTA,
	Rules: []Rule{
		{"pending_charge", func(h *model.CriminalHistory) int { return flag(h.PendingCharges > 0, 1) }},
		{"prior_conviction", func(h *model.CriminalHistory) int { return flag(h.Convictions > 0, 1) }},
		{"fta_past_2yr", func(h *model.CriminalHistory) int {
			return step(h.FTALessThan2Yr, []int{1, 2}, []int{2, 4})
		}},
		{"fta_older_than_2yr", func(h *model.CriminalHistory) int { return flag(h.FTAMoreThan2Yr > 0, 1) }},
	},
	Breakpoints: []Breakpoint{{0, 1}, {1, 2}, {2, 3}, {4, 4}, {6, 5}, {7, 6}},
}

// VPRAI is the Virginia pretrial instrument. Its point total is the score.
var VPRAI = Instrument{
	Name: model.ScoreVPRAI,
	Rules: []Rule{
		{"prior_felony", func(h *model.CriminalHistory) int { return flag(h.Felonies > 0, 1) }},
		{"pending_charge", func(h *model.CriminalHistory) int { return flag(h.PendingCharges > 0, 1) }},
		{"prior_conviction", func(h *model.CriminalHistory) int { return flag(h.Convictions > 0, 1) }},
		{"two_or_more_fta", func(h *model.CriminalHistory) int {
			return flag(h.FTALessThan2Yr+h.FTAMoreThan2Yr >= 2, 2)
		}},
		{"two_or_more_adult_violent", func(h *model.CriminalHistory) int {
			return flag(h.ViolentConvictionsAdult >= 2, 1)
		}},
		{"prior_drug_conviction", func(h *model.CriminalHistory) int { return flag(h.DrugConvictions > 0, 1) }},
	},
}
