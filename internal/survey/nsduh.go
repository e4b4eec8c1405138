package survey

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

// handler decodes one raw NSDUH value into its numeric code, NaN when missing.
type handler func(raw string) float64

func codeOf(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// labelled maps label strings to codes and parses anything else as a number.
func labelled(labels map[string]float64, prefixes map[string]float64) handler {
	return func(raw string) float64 {
		raw = strings.TrimSpace(raw)
		if v, ok := labels[raw]; ok {
			return v
		}
		for p, v := range prefixes {
			if strings.HasPrefix(raw, p) {
				return v
			}
		}
		return codeOf(raw)
	}
}

var (
	integerHandler = handler(codeOf)

	catag3Handler = labelled(map[string]float64{
		"12-17 Years Old": 1,
		"18-25 Years Old": 2,
		"26-34 Years Old": 3,
		"35-49 Years Old": 4,
		"50 or Older":     5,
	}, nil)

	newrace2Handler = labelled(map[string]float64{
		"NonHisp White":        1,
		"NonHisp Black/Afr Am": 2,
	}, nil)

	irsexHandler = labelled(map[string]float64{"Male": 1, "Female": 2}, nil)

	duiLikeHandler = labelled(map[string]float64{"Yes": 1}, map[string]float64{
		"No":                          2,
		"LEGITIMATE SKIP":             2,
		"NEVER USED ALCOHOL OR DRUGS": 2,
	})

	drugSellHandler = labelled(map[string]float64{
		"1 or 2 times":                       2,
		"3 to 5 times":                       2,
		"6 to 9 times":                       2,
		"10 or more times":                   2,
		"0 times":                            1,
		"LEGITIMATE SKIP":                    1,
		"LEGITIMATE SKIP Logically assigned": 1,
	}, nil)

	bookedHandler = labelled(map[string]float64{
		"Yes":                    1,
		"Yes LOGICALLY ASSIGNED": 1,
		"No":                     2,
		"LEGITIMATE SKIP":        2,
	}, nil)

	drugMonthHandler = labelled(nil, map[string]float64{
		"Used within the past month":    1,
		"Did not use in the past month": 0,
	})

	hallrecHandler = labelled(map[string]float64{
		"Within the past 30 days":                          1,
		"Used in the past 30 days LOGICALLY ASSIGNED":      1,
		"NEVER USED HALLUCINOGENS":                         0,
		"More than 30 days ago but within the past 12 mos": 0,
		"Used >30 days ago but within pst 12 mos LOG ASSN": 0,
		"More than 12 months ago":                          0,
	}, nil)
)

// nsduhVariables maps every variable read from a yearly extract to its
// decoder. Variables missing from a year's extract decode as all-missing.
var nsduhVariables = map[string]handler{
	"CATAG3":      catag3Handler,
	"NEWRACE2":    newrace2Handler,
	"IRRACE":      integerHandler,
	"IRSEX":       irsexHandler,
	"BKDRUG":      bookedHandler,
	"BKDRVINF":    bookedHandler,
	"BKOTHOFF":    integerHandler,
	"DRVINALCO2":  integerHandler,
	"DRVINMARJ2":  integerHandler,
	"DRVINDRG":    integerHandler,
	"DRVINDROTMJ": integerHandler,
	"DRVINALDRG":  integerHandler,
	"DRVALDR":     duiLikeHandler,
	"DRVAONLY":    duiLikeHandler,
	"DRVDONLY":    duiLikeHandler,
	"DRUNKDRV":    integerHandler,
	"DRDRVUN":     integerHandler,
	"DRIVEAL":     duiLikeHandler,
	"DRIVEDR":     duiLikeHandler,
	"YEYSELL":     drugSellHandler,
	"SNYSELL":     drugSellHandler,
	"SOLDDRUG":    integerHandler,
	"MRJMON":      drugMonthHandler,
	"COCMON":      drugMonthHandler,
	"CRKMON":      drugMonthHandler,
	"HERMON":      drugMonthHandler,
	"HALLUCMON":   drugMonthHandler,
	"LSDMON":      drugMonthHandler,
	"PCPMON":      drugMonthHandler,
	"ECSTMOMON":   drugMonthHandler,
	"DAMTFXMON":   drugMonthHandler,
	"KETMINMON":   drugMonthHandler,
	"SALVIAMON":   drugMonthHandler,
	"INHALMON":    drugMonthHandler,
	"METHAMMON":   drugMonthHandler,
	"HALLREC":     hallrecHandler,
}

var (
	duiSelfReport = []string{"DRVINALCO2", "DRVINMARJ2", "DRVINDRG", "DRVINDROTMJ", "DRVINALDRG"}
	duiCombined   = []string{"DRVALDR", "DRVAONLY", "DRVDONLY"}
	duiLegacy     = []string{"DRUNKDRV", "DRDRVUN", "DRIVEAL", "DRIVEDR"}
	sellFrequency = []string{"YEYSELL", "SNYSELL"}
	drugPastMonth = []string{
		"MRJMON", "COCMON", "CRKMON", "HERMON", "HALLUCMON", "LSDMON", "PCPMON",
		"ECSTMOMON", "DAMTFXMON", "KETMINMON", "SALVIAMON", "INHALMON", "METHAMMON",
	}
)

// Respondent is one decoded NSDUH respondent. Flags are 1, 0 or NaN.
type Respondent struct {
	Year        int
	Sex         string
	Race        string
	Age         string
	DUI         float64
	DUIArrest   float64
	DrugsArrest float64
	DrugsSold   float64
	DrugsUse    float64
}

type record map[string]float64

func (r record) get(name string) float64 {
	if v, ok := r[name]; ok {
		return v
	}
	return math.NaN()
}

func (r record) anyIn(names []string, codes ...float64) bool {
	for _, n := range names {
		if slices.Contains(codes, r.get(n)) {
			return true
		}
	}
	return false
}

// decodeRespondent derives the respondent's demographics and flags. It
// returns false when sex, race or age cannot be determined.
func decodeRespondent(rec record, year int) (Respondent, bool) {
	out := Respondent{Year: year}

	switch rec.get("IRSEX") {
	case 1:
		out.Sex = "Male"
	case 2:
		out.Sex = "Female"
	default:
		return out, false
	}

	switch {
	case rec.get("NEWRACE2") == 1:
		out.Race = "White"
	case rec.get("NEWRACE2") == 2:
		out.Race = "Black"
	case rec.get("IRRACE") == 3:
		out.Race = "Black"
	case rec.get("IRRACE") == 4:
		out.Race = "White"
	default:
		return out, false
	}

	switch rec.get("CATAG3") {
	case 1:
		out.Age = model.AgeUnder18
	case 2, 3:
		out.Age = model.Age18To34
	case 4, 5:
		out.Age = model.AgeOver34
	default:
		return out, false
	}

	selfReport := append(slices.Clone(duiSelfReport), duiCombined...)
	switch {
	case rec.anyIn(selfReport, 1), rec.anyIn(duiLegacy, 1, 3):
		out.DUI = 1
	case rec.anyIn(duiSelfReport, 0), rec.anyIn(duiCombined, 2, 81, 91, 99), rec.anyIn(duiLegacy, 2):
		out.DUI = 0
	default:
		out.DUI = math.NaN()
	}

	switch {
	case rec.anyIn([]string{"BKDRVINF"}, 1, 3), rec.get("BKOTHOFF") == 10:
		out.DUIArrest = 1
	case rec.anyIn([]string{"BKDRVINF"}, 2, 89, 99):
		out.DUIArrest = 0
	default:
		out.DUIArrest = math.NaN()
	}

	switch {
	case rec.anyIn([]string{"BKDRUG"}, 1, 3):
		out.DrugsArrest = 1
	case rec.anyIn([]string{"BKDRUG"}, 2, 4, 99):
		out.DrugsArrest = 0
	default:
		out.DrugsArrest = math.NaN()
	}

	switch {
	case rec.anyIn(sellFrequency, 2, 3, 4, 5), rec.anyIn([]string{"SOLDDRUG"}, 1, 3):
		out.DrugsSold = 1
	case rec.anyIn(sellFrequency, 1), rec.anyIn([]string{"SOLDDRUG"}, 2):
		out.DrugsSold = 0
	default:
		out.DrugsSold = math.NaN()
	}

	switch {
	case rec.anyIn(drugPastMonth, 1), rec.anyIn([]string{"HALLREC"}, 1, 7):
		out.DrugsUse = 1
	case rec.anyIn(drugPastMonth, 0), rec.anyIn([]string{"HALLREC"}, 0):
		out.DrugsUse = 0
	default:
		out.DrugsUse = math.NaN()
	}
	return out, true
}

// Observations splits a respondent into one observation per NSDUH offense.
func (r Respondent) Observations() []Observation {
	cell := func(offense string) model.Cell {
		return model.Cell{Sex: r.Sex, Race: r.Race, Age: r.Age, Offense: offense}
	}
	nan := math.NaN()
	return []Observation{
		{Cell: cell(model.OffenseDUI), Year: r.Year, ArrestNum: r.DUIArrest, ArrestDen: r.DUI, ReportNum: nan, ReportDen: nan},
		{Cell: cell(model.OffenseDrugsUse), Year: r.Year, ArrestNum: r.DrugsArrest * r.DrugsUse, ArrestDen: r.DrugsUse, ReportNum: nan, ReportDen: nan},
		{Cell: cell(model.OffenseDrugsSell), Year: r.Year, ArrestNum: r.DrugsArrest * r.DrugsSold, ArrestDen: r.DrugsSold, ReportNum: nan, ReportDen: nan},
	}
}

// RecodeNSDUH decodes one year's extract. Respondents without sex, race or
// age are dropped.
func RecodeNSDUH(tbl *tableio.Table, year int) ([]Respondent, int) {
	present := make(map[string]handler)
	var missing []string
	for name, h := range nsduhVariables {
		if tbl.Has(name) {
			present[name] = h
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		zap.L().Debug("survey: nsduh variables absent", zap.Int("year", year), zap.Strings("variables", missing))
	}

	out := make([]Respondent, 0, tbl.Len())
	dropped := 0
	for i := range tbl.Rows {
		rec := make(record, len(present))
		for name, h := range present {
			rec[name] = h(tbl.Get(i, name))
		}
		r, ok := decodeRespondent(rec, year)
		if !ok {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

var nsduhFile = regexp.MustCompile(`^NSDUH_(\d{4})_Tab\.(txt|tsv)$`)

// NSDUHYears lists the years with an extract in dir.
func NSDUHYears(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "survey: list %s", dir)
	}
	var years []int
	for _, e := range entries {
		m := nsduhFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		years = appendUniqueInt(years, y)
	}
	slices.Sort(years)
	return years, nil
}

func nsduhPath(dir string, year int) string {
	p := filepath.Join(dir, fmt.Sprintf("NSDUH_%d_Tab.txt", year))
	if _, err := os.Stat(p); err != nil {
		if alt := filepath.Join(dir, fmt.Sprintf("NSDUH_%d_Tab.tsv", year)); fileExists(alt) {
			return alt
		}
	}
	return p
}

// LoadNSDUH reads the tab-delimited extracts for years from dir
// concurrently. An empty years list loads every extract found.
func LoadNSDUH(ctx context.Context, dir string, years []int, encoding string, workers int) ([]Observation, error) {
	log := zap.L().With(zap.String("component", "survey"), zap.String("source", model.SourceNSDUH))
	if len(years) == 0 {
		var err error
		years, err = NSDUHYears(dir)
		if err != nil {
			return nil, err
		}
	}
	if len(years) == 0 {
		return nil, eris.Errorf("survey: no nsduh extracts in %s", dir)
	}
	if workers < 1 {
		workers = 1
	}

	perYear := make([][]Respondent, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, year := range years {
		g.Go(func() error {
			path := nsduhPath(dir, year)
			tbl, err := tableio.ReadTable(gctx, path, tableio.TableOptions{Encoding: encoding, Delimiter: '\t'})
			if err != nil {
				return eris.Wrapf(err, "survey: load nsduh %d", year)
			}
			rs, dropped := RecodeNSDUH(tbl, year)
			log.Info("survey: recoded nsduh year",
				zap.Int("year", year), zap.Int("rows_in", tbl.Len()),
				zap.Int("rows_out", len(rs)), zap.Int("dropped", dropped))
			perYear[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Observation
	for _, rs := range perYear {
		for _, r := range rs {
			out = append(out, r.Observations()...)
		}
	}
	return out, nil
}

func appendUniqueInt(list []int, v int) []int {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
