package synth

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Demographic values kept for synthesis.
var (
	keepGenders   = []string{"Female", "Male"}
	keepCalcRaces = []string{"Black", "White", "Hispanic"}
	keepRaces     = []string{"Black", "White"}
)

// minAge drops ages at or below it as data-entry errors.
const minAge = 10

// Person is one defendant's offense counts within a year window.
type Person struct {
	DefendantID string
	Gender      string
	Race        string
	CalcRace    string
	Age         float64
	// AgeLabels holds the age bracket label per detection source.
	AgeLabels   map[string]string
	AgeCategory string
	Counts      map[string]int
}

// Field returns a demographic field by column name.
func (p *Person) Field(name string) string {
	switch name {
	case model.FieldGender:
		return p.Gender
	case model.FieldRace:
		return p.Race
	case model.FieldCalcRace:
		return p.CalcRace
	case model.FieldAgeCategory:
		return p.AgeCategory
	}
	return ""
}

// EligibleCases keeps the cases whose demographics synthesis can align with
// survey cells.
func EligibleCases(cases []model.Case) []model.Case {
	out := make([]model.Case, 0, len(cases))
	for _, c := range cases {
		if !slices.Contains(keepGenders, c.Gender) ||
			!slices.Contains(keepCalcRaces, c.CalcRace) ||
			!slices.Contains(keepRaces, c.Race) {
			continue
		}
		out = append(out, c)
	}
	zap.L().Info("synth: filtered eligible cases",
		zap.Int("rows_in", len(cases)), zap.Int("rows_out", len(out)))
	return out
}

// OffenseWindow counts each defendant's offenses filed in [start, end].
// Only defendants with at least one case in the window appear. Age is taken
// at January 1 of the end year and bracketed per detection source; the
// first source's label is the age category, and defendants whose category
// the first source excludes are dropped. Output is ordered by defendant id.
func OffenseWindow(cases []model.Case, schema model.Schema, start, end int) []*Person {
	ref := model.NewDate(end, time.January, 1)
	people := make(map[string]*Person)
	var ids []string
	for _, c := range cases {
		if c.Year < start || c.Year > end {
			continue
		}
		p, ok := people[c.DefendantID]
		if !ok {
			p = &Person{
				DefendantID: c.DefendantID,
				Gender:      c.Gender,
				Race:        c.Race,
				CalcRace:    c.CalcRace,
				Counts:      make(map[string]int, len(schema.Offenses)),
			}
			p.Age, ok = ref.YearsSince(c.DOB)
			if !ok {
				p.Age = -1
			}
			people[c.DefendantID] = p
			ids = append(ids, c.DefendantID)
		}
		if slices.Contains(schema.Offenses, c.OffenseCategory) {
			p.Counts[c.OffenseCategory]++
		}
	}
	slices.Sort(ids)

	var first model.DetectionSource
	if len(schema.Sources) > 0 {
		first = schema.Sources[0]
	}

	out := make([]*Person, 0, len(ids))
	tooYoung, excluded := 0, 0
	for _, id := range ids {
		p := people[id]
		if p.Age <= minAge {
			tooYoung++
			continue
		}
		p.AgeLabels = make(map[string]string, len(schema.Sources))
		for _, src := range schema.Sources {
			p.AgeLabels[src.Name] = src.Ages.Label(p.Age)
		}
		p.AgeCategory = p.AgeLabels[first.Name]
		if p.AgeCategory == "" || slices.Contains(first.Excluded, p.AgeCategory) {
			excluded++
			continue
		}
		for _, off := range schema.Offenses {
			if _, ok := p.Counts[off]; !ok {
				p.Counts[off] = 0
			}
		}
		out = append(out, p)
	}

	zap.L().Debug("synth: offense window",
		zap.Int("start", start), zap.Int("end", end),
		zap.Int("defendants", len(ids)), zap.Int("rows_out", len(out)),
		zap.Int("dropped_age_error", tooYoung), zap.Int("dropped_excluded_age", excluded))
	return out
}

// ObservedCounts flattens a window into offense-count rows with nothing
// unobserved.
func ObservedCounts(people []*Person, offenses []string) []model.OffenseCount {
	out := make([]model.OffenseCount, 0, len(people)*len(offenses))
	for _, p := range people {
		for _, off := range offenses {
			n := float64(p.Counts[off])
			out = append(out, model.OffenseCount{
				DefendantID: p.DefendantID,
				Gender:      p.Gender,
				Race:        p.Race,
				CalcRace:    p.CalcRace,
				AgeCategory: p.AgeCategory,
				Offense:     off,
				Observed:    n,
				Total:       n,
			})
		}
	}
	return out
}
