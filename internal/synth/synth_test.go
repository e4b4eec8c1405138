package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/model"
)

func members(observed ...int) []Member {
	out := make([]Member, len(observed))
	for i, n := range observed {
		out[i] = Member{DefendantID: fmt.Sprintf("d%02d", i), Observed: n}
	}
	return out
}

func sum(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

func TestImputeScenario(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	oc, err := Impute(members(2, 2, 2, 2, 2), 5, 0.5, 1.0, 0, rng)
	require.NoError(t, err)

	assert.Equal(t, 10, oc.Stats.Observed)
	assert.Equal(t, 20, oc.Stats.TotalEstimate)
	assert.Equal(t, 10, oc.Stats.Unobserved)
	assert.InDelta(t, 2.0, oc.Stats.PerCapita, 1e-12)
	assert.Equal(t, 10, sum(oc.Assigned))
	assert.Equal(t, 10, oc.Stats.Assigned)
	assert.False(t, oc.Stats.FellBack)
}

func TestImputeFallsBackWithoutRate(t *testing.T) {
	for _, rate := range []float64{0, math.NaN()} {
		oc, err := Impute(members(3, 1), 4, rate, 2.0, 1, rand.New(rand.NewPCG(1, 1)))
		require.NoError(t, err)
		assert.Equal(t, 4, oc.Stats.TotalEstimate)
		assert.Equal(t, 0, oc.Stats.Unobserved)
		assert.True(t, oc.Stats.FellBack)
		assert.Equal(t, 0, sum(oc.Assigned))
	}
}

func TestImputeNegativeUnobservedIsKept(t *testing.T) {
	oc, err := Impute(members(10, 10), 2, 1.0, 0.5, 1, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 10, oc.Stats.TotalEstimate)
	assert.Equal(t, -10, oc.Stats.Unobserved)
	assert.InDelta(t, -5.0, oc.Stats.PerCapita, 1e-12)
	assert.Equal(t, 0, sum(oc.Assigned))
}

func TestImputeRoundsBelowOne(t *testing.T) {
	// 1 / 0.9 rounds to 1, nothing left to draw
	oc, err := Impute(members(1), 1, 0.9, 1, 1, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 0, oc.Stats.Unobserved)
	assert.Equal(t, 0, sum(oc.Assigned))
}

func TestImputeDuplicateMember(t *testing.T) {
	m := []Member{{DefendantID: "a", Observed: 1}, {DefendantID: "a", Observed: 2}}
	_, err := Impute(m, 1, 0.5, 1, 1, rand.New(rand.NewPCG(1, 1)))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvariant))
}

func TestImputeLargeOmegaFollowsObserved(t *testing.T) {
	oc, err := Impute(members(0, 5, 0, 1), 400, 0.01, 1, 1e9, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	require.Equal(t, 594, oc.Stats.Unobserved)
	assert.Equal(t, 0, oc.Assigned[0])
	assert.Equal(t, 0, oc.Assigned[2])
	assert.Equal(t, 594, oc.Assigned[1]+oc.Assigned[3])
	assert.Greater(t, oc.Assigned[1], oc.Assigned[3])
}

func TestImputeZeroOmegaIsUniform(t *testing.T) {
	m := members(0, 0, 9, 0)
	oc, err := Impute(m, 4, 0.001, 1, 0, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	require.Equal(t, 8991, oc.Stats.Unobserved)
	for i := range m {
		share := float64(oc.Assigned[i]) / 8991
		assert.InDelta(t, 0.25, share, 0.03, "member %d", i)
	}
}

func TestImputeDeterministic(t *testing.T) {
	cell := model.Cell{Sex: "Male", Race: "Black", Age: "18-29", Offense: "robbery"}
	a, err := Impute(members(1, 2, 3), 3, 0.2, 1, 1, cellRNG(42, 2000, "ncvs", cell))
	require.NoError(t, err)
	b, err := Impute(members(1, 2, 3), 3, 0.2, 1, 1, cellRNG(42, 2000, "ncvs", cell))
	require.NoError(t, err)
	assert.Equal(t, a.Assigned, b.Assigned)

	c, err := Impute(members(1, 2, 3), 3, 0.2, 1, 1, cellRNG(43, 2000, "ncvs", cell))
	require.NoError(t, err)
	assert.Equal(t, sum(a.Assigned), sum(c.Assigned))
}

func TestParams(t *testing.T) {
	p := Params{StartYear: 2000, EndYear: 2004, Window: 2, Lambda: 1.5, Omega: 0, Seed: 7}
	assert.Equal(t, []int{2000, 2001, 2002}, p.WindowStarts())
	assert.Equal(t, filepath.Join("cache", "synth_2000-2004_w2_lam1.5_om0_s7_arrest_rate_smooth.csv"), p.CachePath("cache"))

	p.Window = 10
	assert.Equal(t, []int{2000}, p.WindowStarts())
}

func TestCachePathKeysRateInputs(t *testing.T) {
	base := Params{
		StartYear: 2000, EndYear: 2004, Window: 2, Lambda: 1, Omega: 1, Seed: 7,
		RateColumn: model.RateArrestSmooth, Smoothing: "regression",
		RateMult: map[string]float64{model.SourceNCVS: 1, model.SourceNSDUH: 1},
	}
	assert.Equal(t, "synth_2000-2004_w2_lam1_om1_s7_regression_arrest_rate_smooth_ncvs1_nsduh1.csv",
		base.CachePath(""))

	variants := map[string]func(p *Params){
		"ncvs multiplier":  func(p *Params) { p.RateMult = map[string]float64{model.SourceNCVS: 0.25, model.SourceNSDUH: 1} },
		"nsduh multiplier": func(p *Params) { p.RateMult = map[string]float64{model.SourceNCVS: 1, model.SourceNSDUH: 0.25} },
		"rate column":      func(p *Params) { p.RateColumn = model.RateArrest },
		"smoothing":        func(p *Params) { p.Smoothing = "average" },
	}
	for name, modify := range variants {
		t.Run(name, func(t *testing.T) {
			p := base
			modify(&p)
			assert.NotEqual(t, base.CachePath("cache"), p.CachePath("cache"))
		})
	}

	// a zero multiplier falls back to 1 and shares the cache
	zero := base
	zero.RateMult = map[string]float64{model.SourceNCVS: 0, model.SourceNSDUH: 1}
	assert.Equal(t, base.CachePath("cache"), zero.CachePath("cache"))
}

func newCase(id, gender, race, calcRace string, dob model.Date, year int, category string) model.Case {
	return model.Case{
		DefendantID: id, Gender: gender, Race: race, CalcRace: calcRace,
		DOB: dob, Year: year, OffenseCategory: category,
	}
}

func TestOffenseWindow(t *testing.T) {
	adult := model.NewDate(1975, time.June, 1)
	cases := []model.Case{
		newCase("b", "Male", "Black", "Black", adult, 2000, model.OffenseRobbery),
		newCase("b", "Male", "Black", "Black", adult, 2001, model.OffenseRobbery),
		newCase("b", "Male", "Black", "Black", adult, 2001, "other"),
		newCase("a", "Female", "White", "Hispanic", adult, 2001, model.OffenseDUI),
		newCase("minor", "Male", "White", "White", model.NewDate(1985, time.June, 1), 2001, model.OffenseDUI),
		newCase("error", "Male", "White", "White", model.NewDate(1995, time.June, 1), 2001, model.OffenseDUI),
		newCase("nodob", "Male", "White", "White", model.Date{}, 2001, model.OffenseDUI),
		newCase("late", "Male", "White", "White", adult, 2005, model.OffenseDUI),
	}
	people := OffenseWindow(cases, model.DefaultSchema(), 2000, 2001)
	require.Len(t, people, 2)

	assert.Equal(t, "a", people[0].DefendantID)
	assert.Equal(t, 1, people[0].Counts[model.OffenseDUI])
	assert.Equal(t, 0, people[0].Counts[model.OffenseRobbery])
	assert.Equal(t, model.Age18To29, people[0].AgeCategory)
	assert.Equal(t, model.Age18To34, people[0].AgeLabels[model.SourceNSDUH])

	assert.Equal(t, "b", people[1].DefendantID)
	assert.Equal(t, 2, people[1].Counts[model.OffenseRobbery])
	assert.Len(t, people[1].Counts, len(model.DefaultSchema().Offenses))
}

func TestEligibleCases(t *testing.T) {
	d := model.NewDate(1970, time.January, 1)
	cases := []model.Case{
		newCase("1", "Male", "Black", "Black", d, 2000, ""),
		newCase("2", "Unknown", "Black", "Black", d, 2000, ""),
		newCase("3", "Male", "Asian", "Black", d, 2000, ""),
		newCase("4", "Female", "White", "Other", d, 2000, ""),
		newCase("5", "Female", "White", "Hispanic", d, 2000, ""),
	}
	out := EligibleCases(cases)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].DefendantID)
	assert.Equal(t, "5", out[1].DefendantID)
}

func rate(source, sex, race, age, offense string, year int, arrest float64) model.ArrestRate {
	return model.ArrestRate{
		Source: source,
		Cell:   model.Cell{Sex: sex, Race: race, Age: age, Offense: offense},
		Year:   year, Count: 10,
		ArrestRate: model.FloatPtr(arrest), ArrestRateSmooth: model.FloatPtr(arrest),
	}
}

func scenarioCases() []model.Case {
	dob := model.NewDate(1975, time.June, 1)
	var cases []model.Case
	for i := range 5 {
		id := fmt.Sprintf("black%d", i)
		cases = append(cases,
			newCase(id, "Male", "Black", "Black", dob, 2000, model.OffenseRobbery),
			newCase(id, "Male", "Black", "Black", dob, 2000, model.OffenseRobbery))
	}
	for i := range 3 {
		cases = append(cases, newCase(fmt.Sprintf("white%d", i), "Male", "White", "White", dob, 2000, model.OffenseRobbery))
	}
	return cases
}

func scenarioRates() []model.ArrestRate {
	return []model.ArrestRate{
		rate(model.SourceNCVS, "Male", "Black", model.Age18To29, model.OffenseRobbery, 2000, 0.5),
		rate(model.SourceNCVS, "Male", "White", model.Age18To29, model.OffenseRobbery, 2000, 0.25),
	}
}

func TestRunTwoCellScenario(t *testing.T) {
	s, err := New(model.DefaultSchema(), Params{
		StartYear: 2000, EndYear: 2000, Window: 0, Lambda: 1, Omega: 0, Seed: 3,
	}, 4)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), scenarioCases(), scenarioRates())
	require.NoError(t, err)

	unobserved := map[string]float64{}
	observed := map[string]float64{}
	for _, c := range res.Counts {
		assert.InDelta(t, c.Observed+c.Unobserved, c.Total, 1e-12)
		if c.Offense != model.OffenseRobbery {
			assert.Zero(t, c.Unobserved)
			continue
		}
		unobserved[c.Race] += c.Unobserved
		observed[c.Race] += c.Observed
	}
	assert.InDelta(t, 10, observed["Black"], 1e-12)
	assert.InDelta(t, 10, unobserved["Black"], 1e-12)
	assert.InDelta(t, 3, observed["White"], 1e-12)
	assert.InDelta(t, 9, unobserved["White"], 1e-12)

	var black model.CellStats
	for _, cs := range res.Cells {
		if cs.Race == "Black" && cs.Offense == model.OffenseRobbery {
			black = cs
		}
		// conservation within every cell
		if cs.Unobserved >= 1 {
			assert.Equal(t, cs.Unobserved, cs.Assigned)
		}
	}
	assert.Equal(t, 5, black.Population)
	assert.Equal(t, 20, black.TotalEstimate)
	assert.InDelta(t, 2.0, black.PerCapita, 1e-12)
}

func TestRunDeterministic(t *testing.T) {
	params := Params{StartYear: 2000, EndYear: 2002, Window: 1, Lambda: 1.3, Omega: 1, Seed: 11}
	cases := scenarioCases()
	dob := model.NewDate(1970, time.March, 3)
	for i := range 20 {
		cases = append(cases, newCase(fmt.Sprintf("x%02d", i), "Male", "Black", "Black", dob, 2000+i%3, model.OffenseRobbery))
	}
	rates := append(scenarioRates(),
		rate(model.SourceNCVS, "Male", "Black", model.AgeOver29, model.OffenseRobbery, 2001, 0.3),
		rate(model.SourceNCVS, "Male", "Black", model.AgeOver29, model.OffenseRobbery, 2002, 0.2))

	a, err := New(model.DefaultSchema(), params, 1)
	require.NoError(t, err)
	b, err := New(model.DefaultSchema(), params, 8)
	require.NoError(t, err)

	ra, err := a.Run(context.Background(), cases, rates)
	require.NoError(t, err)
	rb, err := b.Run(context.Background(), cases, rates)
	require.NoError(t, err)
	assert.Equal(t, ra.Counts, rb.Counts)
	require.Len(t, rb.Cells, len(ra.Cells))
	for i := range ra.Cells {
		assert.Equal(t, ra.Cells[i].Cell, rb.Cells[i].Cell)
		assert.Equal(t, ra.Cells[i].Assigned, rb.Cells[i].Assigned)
	}
}

func TestRunRollingWindows(t *testing.T) {
	dob := model.NewDate(1970, time.January, 1)
	cases := []model.Case{newCase("p", "Male", "White", "White", dob, 2001, model.OffenseProperty)}
	s, err := New(model.DefaultSchema(), Params{StartYear: 2000, EndYear: 2002, Window: 1, Lambda: 1, Omega: 1}, 2)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), cases, nil)
	require.NoError(t, err)

	var got model.OffenseCount
	for _, c := range res.Counts {
		if c.Offense == model.OffenseProperty {
			got = c
		}
	}
	// counted whole in the first window, halved in the second
	assert.InDelta(t, 1.5, got.Observed, 1e-12)
	assert.Zero(t, got.Unobserved)
}

func TestRunFirstWindowMatchesIsolatedRun(t *testing.T) {
	cases := scenarioCases()
	rates := scenarioRates()

	whole, err := New(model.DefaultSchema(), Params{StartYear: 2000, EndYear: 2000, Window: 0, Lambda: 1, Omega: 1, Seed: 5}, 2)
	require.NoError(t, err)
	single, err := whole.Run(context.Background(), cases, rates)
	require.NoError(t, err)

	// the first window of a longer run is not divided
	longer, err := New(model.DefaultSchema(), Params{StartYear: 2000, EndYear: 2003, Window: 0, Lambda: 1, Omega: 1, Seed: 5}, 2)
	require.NoError(t, err)
	multi, err := longer.Run(context.Background(), cases, rates)
	require.NoError(t, err)

	// every case is in 2000, later windows are empty
	assert.Equal(t, single.Counts, multi.Counts)
}

func TestDetectionRatesFemaleSexOffense(t *testing.T) {
	s, err := New(model.DefaultSchema(), Params{StartYear: 2000, EndYear: 2000, RateColumn: model.RateArrest,
		RateMult: map[string]float64{model.SourceNSDUH: 2}}, 1)
	require.NoError(t, err)

	f1 := rate(model.SourceNCVS, "Female", "Black", model.Age18To29, model.OffenseSexOffense, 2000, 0)
	f1.ReportingRate = model.FloatPtr(0.2)
	f2 := rate(model.SourceNCVS, "Female", "White", model.AgeOver29, model.OffenseSexOffense, 2000, 0.01)
	f2.ReportingRate = model.FloatPtr(0.4)
	m := rate(model.SourceNCVS, "Male", "White", model.AgeOver29, model.OffenseSexOffense, 2000, 0.1)
	m.ReportingRate = model.FloatPtr(0.9)
	dui := rate(model.SourceNSDUH, "Male", "White", model.AgeOver34, model.OffenseDUI, 2000, 0.1)
	wrongSource := rate(model.SourceNSDUH, "Male", "White", model.AgeOver29, model.OffenseRobbery, 2000, 0.7)

	lookup := s.detectionRates([]model.ArrestRate{f1, f2, m, dui, wrongSource}, 2000)
	assert.InDelta(t, 0.3, lookup.rate(model.SourceNCVS, f1.Cell), 1e-12)
	assert.InDelta(t, 0.3, lookup.rate(model.SourceNCVS, f2.Cell), 1e-12)
	assert.InDelta(t, 0.1, lookup.rate(model.SourceNCVS, m.Cell), 1e-12)
	assert.InDelta(t, 0.2, lookup.rate(model.SourceNSDUH, dui.Cell), 1e-12)
	assert.True(t, math.IsNaN(lookup.rate(model.SourceNSDUH, wrongSource.Cell)))
}

func TestNewRejectsOverlappingSources(t *testing.T) {
	schema := model.DefaultSchema()
	schema.Sources[1].Offenses = append(schema.Sources[1].Offenses, model.OffenseRobbery)
	_, err := New(schema, Params{StartYear: 2000, EndYear: 2001}, 1)
	assert.Error(t, err)
}

func TestObservedCounts(t *testing.T) {
	people := []*Person{{DefendantID: "a", Gender: "Male", AgeCategory: "18-29", Counts: map[string]int{"robbery": 2}}}
	out := ObservedCounts(people, []string{"robbery", "dui"})
	require.Len(t, out, 2)
	assert.InDelta(t, 2, out[0].Total, 1e-12)
	assert.InDelta(t, 0, out[1].Total, 1e-12)
	assert.Equal(t, "18-29", out[1].AgeCategory)
}
