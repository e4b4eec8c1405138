package survey

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

var ncvsCrimeTypes = map[string]string{
	"(01) Completed rape":      model.OffenseSexOffense,
	"(02) Attempted rape":      model.OffenseSexOffense,
	"(03) Sex aslt w s aslt":   model.OffenseSexOffense,
	"(04) Sex aslt w m aslt":   model.OffenseSexOffense,
	"(15) Sex aslt wo inj":     model.OffenseSexOffense,
	"(16) Unw sex wo force":    model.OffenseSexOffense,
	"(05) Rob w inj s aslt":    model.OffenseRobbery,
	"(06) Rob w inj m aslt":    model.OffenseRobbery,
	"(07) Rob wo injury":       model.OffenseRobbery,
	"(08) At rob inj s asl":    model.OffenseRobbery,
	"(09) At rob inj m asl":    model.OffenseRobbery,
	"(10) At rob w aslt":       model.OffenseRobbery,
	"(11) Ag aslt w injury":    model.OffenseAggravatedAssault,
	"(12) At ag aslt w wea":    model.OffenseAggravatedAssault,
	"(13) Thr aslt w weap":     model.OffenseAggravatedAssault,
	"(14) Simp aslt w inj":     model.OffenseSimpleAssault,
	"(17) Asl wo weap, wo inj": model.OffenseSimpleAssault,
	"(20) Verbal thr aslt":     model.OffenseSimpleAssault,
	"(21) Purse snatching":     model.OffenseProperty,
	"(22) At purse snatch":     model.OffenseProperty,
	"(23) Pocket picking":      model.OffenseProperty,
	"(31) Burg, force ent":     model.OffenseProperty,
	"(32) Burg, ent wo for":    model.OffenseProperty,
	"(33) Att force entry":     model.OffenseProperty,
	"(40) Motor veh theft":     model.OffenseProperty,
	"(41) At mtr veh theft":    model.OffenseProperty,
	"(54) Theft < $10":         model.OffenseProperty,
	"(55) Theft $10-$49":       model.OffenseProperty,
	"(56) Theft $50-$249":      model.OffenseProperty,
	"(57) Theft $250+":         model.OffenseProperty,
	"(58) Theft value NA":      model.OffenseProperty,
	"(59) Attempted theft":     model.OffenseProperty,
}

var ncvsAges = map[string]string{
	"(1) Under 12": model.AgeUnder18,
	"(2) 12-14":    model.AgeUnder18,
	"(3) 15-17":    model.AgeUnder18,
	"(4) 18-20":    model.Age18To29,
	"(5) 21-29":    model.Age18To29,
	"(6) 30+":      model.AgeOver29,
}

// ncvsRace checks indicator columns in order; the first match wins.
var ncvsRace = []struct {
	column, value, race string
}{
	{"c_mult_off_race_black", "(1) Yes", "Black"},
	{"c_mult_off_race_white", "(1) Yes", "White"},
	{"single_offender_race_end_2011_q4", "(1) White", "White"},
	{"single_offender_race_end_2011_q4", "(2) Black", "Black"},
	{"multiple_offender_race_of_most_end_2011_q4", "(1) Mostly White", "White"},
	{"multiple_offender_race_of_most_end_2011_q4", "(2) Mostly Black", "Black"},
	{"multiple_offender_race_of_most_start_2012_q1", "(1) Mostly White", "White"},
	{"multiple_offender_race_of_most_start_2012_q1", "(2) Mostly Black", "Black"},
	{"c_single_offender_race_white_start_2012_q1", "(1) Yes", "White"},
	{"c_single_offender_race_black_or_african_american_start_2012_q1", "(1) Yes", "Black"},
}

var ncvsSex = []struct {
	column, value, sex string
}{
	{"single_offender_sex", "(1) Male", "Male"},
	{"single_offender_sex", "(2) Female", "Female"},
	{"multiple_offenders_sex", "(1) All male", "Male"},
	{"multiple_offenders_sex", "(2) All female", "Female"},
	{"multiple_offenders_mostly_male_or_female", "(1) Mostly male", "Male"},
	{"multiple_offenders_mostly_male_or_female", "(2) Mostly female", "Female"},
}

// NCVSStats counts incidents seen and dropped while recoding.
type NCVSStats struct {
	Rows         int `json:"rows"`
	OtherCrime   int `json:"other_crime"`
	NoArrestInfo int `json:"no_arrest_info"`
	NoYear       int `json:"no_year"`
	Observations int `json:"observations"`
}

// LoadNCVS reads an incident-level NCVS extract and recodes every usable
// incident into an observation.
func LoadNCVS(ctx context.Context, path, encoding string) ([]Observation, NCVSStats, error) {
	tbl, err := tableio.ReadTable(ctx, path, tableio.TableOptions{Encoding: encoding})
	if err != nil {
		return nil, NCVSStats{}, eris.Wrap(err, "survey: load ncvs")
	}
	return RecodeNCVS(tbl)
}

// RecodeNCVS recodes NCVS incidents. Crime types outside the recoded
// categories and incidents without arrest information are dropped.
func RecodeNCVS(tbl *tableio.Table) ([]Observation, NCVSStats, error) {
	crimeCol := firstColumn(tbl, "crime_type", "toc_code_new_ncvs")
	yearCol := firstColumn(tbl, "ncvs_year", "year", "YEAR")
	if crimeCol == "" || yearCol == "" {
		return nil, NCVSStats{}, eris.New("survey: ncvs extract needs a crime type and a year column")
	}

	stats := NCVSStats{Rows: tbl.Len()}
	out := make([]Observation, 0, tbl.Len())
	for i := range tbl.Rows {
		offense, ok := ncvsCrimeTypes[strings.TrimSpace(tbl.Get(i, crimeCol))]
		if !ok {
			stats.OtherCrime++
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(tbl.Get(i, yearCol)))
		if err != nil {
			yf, ok := tbl.Float(i, yearCol)
			if !ok {
				stats.NoYear++
				continue
			}
			year = int(yf)
		}

		reported := ncvsReported(tbl.Get(i, "reported_to_police"))
		arrest := ncvsArrest(tbl.Get(i, "arrests_or_charges_made"), reported)
		if math.IsNaN(arrest) {
			stats.NoArrestInfo++
			continue
		}

		reportDen := 1.0
		if math.IsNaN(reported) {
			reportDen = math.NaN()
		}
		out = append(out, Observation{
			Cell: model.Cell{
				Sex:     ncvsOffenderSex(tbl, i),
				Race:    ncvsOffenderRace(tbl, i),
				Age:     ncvsOffenderAge(tbl, i),
				Offense: offense,
			},
			Year:      year,
			ArrestNum: arrest,
			ArrestDen: 1,
			ReportNum: reported,
			ReportDen: reportDen,
		})
	}
	stats.Observations = len(out)

	zap.L().Info("survey: recoded ncvs",
		zap.Int("rows_in", stats.Rows),
		zap.Int("rows_out", stats.Observations),
		zap.Int("dropped_other_crime", stats.OtherCrime),
		zap.Int("dropped_no_arrest_info", stats.NoArrestInfo),
		zap.Int("dropped_no_year", stats.NoYear))
	return out, stats, nil
}

func ncvsOffenderRace(tbl *tableio.Table, i int) string {
	for _, r := range ncvsRace {
		if strings.TrimSpace(tbl.Get(i, r.column)) == r.value {
			return r.race
		}
	}
	return "Other"
}

func ncvsOffenderSex(tbl *tableio.Table, i int) string {
	for _, r := range ncvsSex {
		if strings.TrimSpace(tbl.Get(i, r.column)) == r.value {
			return r.sex
		}
	}
	return "Other"
}

func ncvsOffenderAge(tbl *tableio.Table, i int) string {
	if age, ok := ncvsAges[strings.TrimSpace(tbl.Get(i, "single_offender_age"))]; ok {
		return age
	}
	oldest := strings.TrimSpace(tbl.Get(i, "multiple_offenders_age_of_oldest"))
	youngest := strings.TrimSpace(tbl.Get(i, "multiple_offenders_age_of_youngest"))
	if oldest == youngest {
		if age, ok := ncvsAges[oldest]; ok {
			return age
		}
	}
	return "other"
}

func ncvsReported(v string) float64 {
	switch strings.TrimSpace(v) {
	case "(1) Yes":
		return 1
	case "(2) No":
		return 0
	}
	return math.NaN()
}

func ncvsArrest(v string, reported float64) float64 {
	switch strings.TrimSpace(v) {
	case "(1) Yes":
		return 1
	case "(2) No", "(9) Out of universe":
		return 0
	}
	if reported == 0 {
		return 0
	}
	return math.NaN()
}

func firstColumn(tbl *tableio.Table, names ...string) string {
	for _, n := range names {
		if tbl.Has(n) {
			return n
		}
	}
	return ""
}
