// Package history summarizes each defendant's charges into the inputs the
// risk instruments consume.
package history

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/taxonomy"
)

// Case age categories, right-inclusive.
var caseAges = model.AgeBrackets{
	Lower:  0,
	Edges:  []float64{18, 31, 500},
	Labels: []string{"<18", "18-30", "31+"},
}

// Options selects the cases that enter the summary.
type Options struct {
	StartYear int
	EndYear   int
}

// Stats counts rows seen and dropped while building.
type Stats struct {
	Cases         int `json:"cases"`
	InRange       int `json:"in_range"`
	Defendants    int `json:"defendants"`
	MissingDemo   int `json:"missing_demographics"`
	MissingAge    int `json:"missing_age"`
	MissingCaseDt int `json:"missing_case_date"`
	Summaries     int `json:"summaries"`
}

// Builder turns charge-level records into per-defendant summaries.
type Builder struct {
	tax        *taxonomy.Taxonomy
	categories taxonomy.Categories
}

// NewBuilder returns a Builder. categories fills in offense categories for
// cases that lack one and may be nil.
func NewBuilder(tax *taxonomy.Taxonomy, categories taxonomy.Categories) *Builder {
	return &Builder{tax: tax, categories: categories}
}

// Prepare normalizes raw cases and keeps those filed within the year range.
func (b *Builder) Prepare(cases []model.Case, opts Options) []model.Case {
	out := make([]model.Case, 0, len(cases))
	for _, c := range cases {
		if c.Year < opts.StartYear || c.Year > opts.EndYear {
			continue
		}
		c.OffenseCode = NormalizeCode(c.OffenseCode)
		if strings.TrimSpace(c.DispositionLiteral) == "" {
			c.DispositionLiteral = "UNKNOWN"
		}
		if c.OffenseCategory == "" && b.categories != nil {
			c.OffenseCategory = b.categories[c.Detailed]
		}
		out = append(out, c)
	}
	return out
}

// NormalizeCode renders an offense code as an integer string; missing codes become "0".
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, "nan") {
		return "0"
	}
	if i := strings.IndexByte(code, '.'); i >= 0 && strings.Trim(code[i+1:], "0") == "" {
		code = code[:i]
	}
	return code
}

// Build summarizes every defendant with cases in the year range. Output is
// ordered by defendant id.
func (b *Builder) Build(ctx context.Context, cases []model.Case, opts Options) ([]model.CriminalHistory, Stats, error) {
	log := zap.L().With(zap.String("component", "history"))
	stats := Stats{Cases: len(cases)}

	prepared := b.Prepare(cases, opts)
	stats.InRange = len(prepared)
	log.Info("history: filtered cases by year",
		zap.Int("start_year", opts.StartYear), zap.Int("end_year", opts.EndYear),
		zap.Int("rows_in", len(cases)), zap.Int("rows_out", len(prepared)))

	groups := make(map[string][]model.Case)
	var ids []string
	for _, c := range prepared {
		if _, ok := groups[c.DefendantID]; !ok {
			ids = append(ids, c.DefendantID)
		}
		groups[c.DefendantID] = append(groups[c.DefendantID], c)
	}
	slices.Sort(ids)
	stats.Defendants = len(ids)

	out := make([]model.CriminalHistory, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, stats, eris.Wrap(err, "history: build")
		}
		rows := groups[id]
		if rows[0].Gender == model.Missing || rows[0].Race == model.Missing {
			stats.MissingDemo++
			continue
		}
		h, ok := b.summarize(rows)
		if !ok {
			stats.MissingCaseDt++
			continue
		}
		if math.IsNaN(h.AgeFirstArrest) {
			stats.MissingAge++
			continue
		}
		out = append(out, h)
	}
	stats.Summaries = len(out)

	log.Info("history: built summaries",
		zap.Int("defendants", stats.Defendants),
		zap.Int("summaries", stats.Summaries),
		zap.Int("dropped_missing_demographics", stats.MissingDemo),
		zap.Int("dropped_missing_case_date", stats.MissingCaseDt),
		zap.Int("dropped_missing_age", stats.MissingAge))
	return out, stats, nil
}

// charge is one case row annotated relative to the defendant's current case.
type charge struct {
	model.Case
	age     float64
	ageOK   bool
	ageCat  string
	diff    float64
	diffOK  bool
	pending bool
	// violentCharge ignores disposition; violent also requires a pending or convicted charge.
	violentCharge bool
	convict       bool
}

func (b *Builder) summarize(rows []model.Case) (model.CriminalHistory, bool) {
	current := -1
	for i, r := range rows {
		if !r.CaseDate.Valid() {
			continue
		}
		if current < 0 || r.CaseDate.After(rows[current].CaseDate.Time) {
			current = i
		}
	}
	if current < 0 {
		return model.CriminalHistory{}, false
	}
	lastOffense := rows[current].OffenseDate

	charges := make([]charge, len(rows))
	for i, r := range rows {
		c := charge{Case: r}
		c.age, c.ageOK = r.CaseDate.YearsSince(r.DOB)
		if c.ageOK {
			c.ageCat = caseAges.Label(c.age)
		}
		c.diff, c.diffOK = lastOffense.DaysSince(r.OffenseDate)
		if untilDisposition, ok := lastOffense.DaysSince(r.DispositionDate); ok {
			c.pending = untilDisposition < 0
		}
		c.convict = b.tax.IsConviction(r.Disposition)
		c.violentCharge = b.tax.IsViolentCharge(r.OffenseCode, r.Broad, r.Degree)
		charges[i] = c
	}

	first := rows[0]
	h := model.CriminalHistory{
		DefendantID:    first.DefendantID,
		Gender:         first.Gender,
		Race:           first.Race,
		CalcRace:       first.CalcRace,
		LastArrest:     rows[current].CaseDate,
		AgeFirstArrest: math.NaN(),
	}

	window := b.tax.FTAWindowDays()
	maxAgeCat := -1
	maxSeverity := -1
	currentFound := false

	for _, c := range charges {
		if c.ageOK {
			if math.IsNaN(h.AgeFirstArrest) || c.age < h.AgeFirstArrest {
				h.AgeFirstArrest = c.age
			}
			if idx := slices.Index(caseAges.Labels, c.ageCat); idx > maxAgeCat {
				maxAgeCat = idx
			}
		}
		if sev := b.tax.Severity(c.Degree); sev > maxSeverity {
			maxSeverity = sev
			h.MostSeriousOffense = c.Detailed
		}

		if c.diffOK && c.diff > 0 && b.tax.IsFTA(c.OffenseCode) {
			if c.diff < window {
				h.FTALessThan2Yr++
			} else {
				h.FTAMoreThan2Yr++
			}
		}

		if c.diffOK && c.diff == 0 {
			if !currentFound {
				currentFound = true
				h.CurrentFelony = taxonomy.IsFelony(c.Degree)
				h.CurrentViolent = c.violentCharge
				h.CurrentConviction = c.convict
				if c.ageOK {
					h.CurrentAge = c.age
				}
			}
			continue
		}

		if c.diffOK && c.diff < 0 {
			continue
		}

		// prior: strictly earlier offense, or offense date unknown
		if c.convict {
			h.Convictions++
			if b.tax.IsDrug(c.OffenseCategory) {
				h.DrugConvictions++
			}
		}
		if !b.tax.IsDismissal(c.Disposition) {
			h.NotDismissed++
		}
		if taxonomy.IsMisdemeanor(c.Degree) {
			h.Misdemeanors++
		}
		if taxonomy.IsFelony(c.Degree) {
			h.Felonies++
		}
		if c.pending {
			h.PendingCharges++
		}
		if c.violentCharge && c.convict {
			h.ViolentConvictions++
			if c.ageOK && c.age >= 18 {
				h.ViolentConvictionsAdult++
			}
		}
		if c.violentCharge && c.pending {
			h.ViolentPending++
		}
		if b.tax.IsIncarceration(c.DispositionLiteral) {
			h.Incarcerations++
		}
	}

	if !currentFound {
		// offense date missing on the current case
		if c := charges[current]; c.ageOK {
			h.CurrentAge = c.age
		}
	}
	if maxAgeCat >= 0 {
		h.AgeCategory = caseAges.Labels[maxAgeCat]
	}
	return h, true
}
