// Package synth imputes offenses that never reached the court record and
// assigns them to defendants by weighted resampling.
package synth

import (
	"context"
	"fmt"
	"maps"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/survey"
)

// Params controls a synthesis run.
type Params struct {
	StartYear  int
	EndYear    int
	Window     int
	Lambda     float64
	Omega      float64
	Seed       uint64
	RateColumn string
	// RateMult scales each source's detection rates; missing sources use 1.
	RateMult map[string]float64
	// Smoothing names the smoothing of the rate tables the run reads.
	Smoothing string
}

// CachePath returns the deterministic cache file for params under dir.
func (p Params) CachePath(dir string) string {
	name := fmt.Sprintf("synth_%d-%d_w%d_lam%s_om%s_s%d_%s.csv",
		p.StartYear, p.EndYear, p.Window,
		formatFloat(p.Lambda), formatFloat(p.Omega),
		p.Seed, p.RateKey())
	return filepath.Join(dir, name)
}

// RateKey identifies the detection rates a run uses: the smoothing, the
// rate column and the multiplier of every source in RateMult.
func (p Params) RateKey() string {
	var parts []string
	if p.Smoothing != "" {
		parts = append(parts, p.Smoothing)
	}
	col := p.RateColumn
	if col == "" {
		col = model.RateArrestSmooth
	}
	parts = append(parts, col)
	for _, src := range slices.Sorted(maps.Keys(p.RateMult)) {
		parts = append(parts, src+formatFloat(p.mult(src)))
	}
	return strings.Join(parts, "_")
}

// mult is the detection-rate multiplier of source.
func (p Params) mult(source string) float64 {
	if m, ok := p.RateMult[source]; ok && m > 0 {
		return m
	}
	return 1
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// WindowStarts lists the first year of every window. Windows advance one
// year at a time and stay inside the year range; a range shorter than the
// window yields a single window.
func (p Params) WindowStarts() []int {
	last := max(p.EndYear-p.Window, p.StartYear)
	starts := make([]int, 0, last-p.StartYear+1)
	for y := p.StartYear; y <= last; y++ {
		starts = append(starts, y)
	}
	return starts
}

// Result holds the synthesized counts and per-cell diagnostics.
type Result struct {
	Counts []model.OffenseCount
	Cells  []model.CellStats
}

// Synthesizer runs the imputation over rolling windows.
type Synthesizer struct {
	schema  model.Schema
	params  Params
	workers int
}

// New returns a Synthesizer.
func New(schema model.Schema, params Params, workers int) (*Synthesizer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if params.StartYear > params.EndYear {
		return nil, eris.Errorf("synth: start year %d after end year %d", params.StartYear, params.EndYear)
	}
	if params.Window < 0 {
		return nil, eris.Errorf("synth: negative window %d", params.Window)
	}
	if params.RateColumn == "" {
		params.RateColumn = model.RateArrestSmooth
	}
	if workers < 1 {
		workers = 1
	}
	return &Synthesizer{schema: schema, params: params, workers: workers}, nil
}

type personOffense struct {
	id      string
	offense string
}

type accumulated struct {
	person     *Person
	observed   float64
	unobserved float64
}

// Run synthesizes offense counts for cases. rates holds yearly per-cell
// detection rates for every source in the schema.
func (s *Synthesizer) Run(ctx context.Context, cases []model.Case, rates []model.ArrestRate) (*Result, error) {
	log := zap.L().With(zap.String("component", "synth"))
	p := s.params
	log.Info("synth: starting",
		zap.Int("start_year", p.StartYear), zap.Int("end_year", p.EndYear),
		zap.Int("window", p.Window), zap.Float64("lambda", p.Lambda),
		zap.Float64("omega", p.Omega), zap.Uint64("seed", p.Seed))

	eligible := EligibleCases(cases)
	totals := make(map[personOffense]*accumulated)
	var cells []model.CellStats

	for i, start := range p.WindowStarts() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "synth: run")
		}
		divisor := 1.0
		if i > 0 {
			divisor = float64(p.Window + 1)
		}

		people := OffenseWindow(eligible, s.schema, start, start+p.Window)
		windowCells, assigned, err := s.window(ctx, start, people, rates)
		if err != nil {
			return nil, err
		}
		cells = append(cells, windowCells...)

		for _, person := range people {
			for _, off := range s.schema.Offenses {
				k := personOffense{id: person.DefendantID, offense: off}
				a, ok := totals[k]
				if !ok {
					a = &accumulated{}
					totals[k] = a
				}
				a.person = person
				a.observed += float64(person.Counts[off]) / divisor
				a.unobserved += float64(assigned[k]) / divisor
			}
		}
		log.Info("synth: window done",
			zap.Int("window_start", start), zap.Int("defendants", len(people)),
			zap.Int("cells", len(windowCells)))
	}

	keys := make([]personOffense, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	order := make(map[string]int, len(s.schema.Offenses))
	for i, off := range s.schema.Offenses {
		order[off] = i
	}
	slices.SortFunc(keys, func(a, b personOffense) int {
		if a.id != b.id {
			if a.id < b.id {
				return -1
			}
			return 1
		}
		return order[a.offense] - order[b.offense]
	})

	out := make([]model.OffenseCount, 0, len(keys))
	for _, k := range keys {
		a := totals[k]
		out = append(out, model.OffenseCount{
			DefendantID: k.id,
			Gender:      a.person.Gender,
			Race:        a.person.Race,
			CalcRace:    a.person.CalcRace,
			AgeCategory: a.person.AgeCategory,
			Offense:     k.offense,
			Observed:    a.observed,
			Unobserved:  a.unobserved,
			Total:       a.observed + a.unobserved,
		})
	}

	log.Info("synth: done", zap.Int("rows", len(out)), zap.Int("cells", len(cells)))
	return &Result{Counts: out, Cells: cells}, nil
}

type cellInput struct {
	source  model.DetectionSource
	cell    model.Cell
	group   groupKey
	members []Member
}

type groupKey struct {
	source, sex, race, age string
}

// window imputes every cell of one window and returns the per-defendant
// assignment counts.
func (s *Synthesizer) window(ctx context.Context, start int, people []*Person, rates []model.ArrestRate) ([]model.CellStats, map[personOffense]int, error) {
	p := s.params
	lookup := s.detectionRates(rates, start)

	population := make(map[groupKey]int)
	inputs := make(map[model.Cell]*cellInput)
	var order []model.Cell
	for _, src := range s.schema.Sources {
		for _, person := range people {
			age := person.AgeLabels[src.Name]
			if age == "" || slices.Contains(src.Excluded, age) {
				continue
			}
			g := groupKey{source: src.Name, sex: person.Field(src.SexField), race: person.Field(src.RaceField), age: age}
			population[g]++
			for _, off := range src.Offenses {
				if !slices.Contains(s.schema.Offenses, off) {
					continue
				}
				cell := model.Cell{Sex: g.sex, Race: g.race, Age: age, Offense: off}
				in, ok := inputs[cell]
				if !ok {
					in = &cellInput{source: src, cell: cell, group: g}
					inputs[cell] = in
					order = append(order, cell)
				}
				in.members = append(in.members, Member{DefendantID: person.DefendantID, Observed: person.Counts[off]})
			}
		}
	}
	slices.SortFunc(order, func(a, b model.Cell) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})

	outcomes := make([]Outcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, cell := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in := inputs[cell]
			rate := lookup.rate(in.source.Name, cell)
			rng := cellRNG(p.Seed, start, in.source.Name, cell)
			oc, err := Impute(in.members, population[in.group], rate, p.Lambda, p.Omega, rng)
			if err != nil {
				return err
			}
			oc.Stats.WindowStart = start
			oc.Stats.Source = in.source.Name
			oc.Stats.Cell = cell
			outcomes[i] = oc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrapf(err, "synth: window %d", start)
	}

	stats := make([]model.CellStats, len(order))
	assigned := make(map[personOffense]int)
	fellBack := 0
	for i, cell := range order {
		stats[i] = outcomes[i].Stats
		if stats[i].FellBack {
			fellBack++
		}
		for j, m := range inputs[cell].members {
			if n := outcomes[i].Assigned[j]; n > 0 {
				assigned[personOffense{id: m.DefendantID, offense: cell.Offense}] += n
			}
		}
	}
	if fellBack > 0 {
		zap.L().Warn("synth: cells without a usable detection rate kept observed counts",
			zap.Int("window_start", start), zap.Int("cells", fellBack))
	}
	return stats, assigned, nil
}

type rateLookup map[string]map[model.Cell]float64

func (l rateLookup) rate(source string, cell model.Cell) float64 {
	if v, ok := l[source][cell]; ok {
		return v
	}
	return math.NaN()
}

// detectionRates windows each source's rates, applies the multipliers and
// replaces female sex-offense rates with the mean reporting rate of those cells.
func (s *Synthesizer) detectionRates(rates []model.ArrestRate, start int) rateLookup {
	p := s.params
	windowed := survey.Window(rates, start, p.Window)

	out := make(rateLookup, len(s.schema.Sources))
	var femaleSex []model.Cell
	reportSum, reportN := 0.0, 0
	for _, r := range windowed {
		src, ok := s.schema.SourceFor(r.Offense)
		if !ok || src.Name != r.Source {
			continue
		}
		if out[src.Name] == nil {
			out[src.Name] = make(map[model.Cell]float64)
		}
		mult := p.mult(src.Name)
		out[src.Name][r.Cell] = r.RateValue(p.RateColumn) * mult

		if r.Sex == "Female" && r.Offense == model.OffenseSexOffense {
			femaleSex = append(femaleSex, r.Cell)
			if r.ReportingRate != nil && !math.IsNaN(*r.ReportingRate) {
				reportSum += *r.ReportingRate * mult
				reportN++
			}
		}
	}
	if reportN > 0 {
		src, _ := s.schema.SourceFor(model.OffenseSexOffense)
		avg := reportSum / float64(reportN)
		for _, c := range femaleSex {
			out[src.Name][c] = avg
		}
	}
	return out
}
