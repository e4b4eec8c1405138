package model

import (
	"fmt"
	"math"
)

// Survey sources providing detection rates.
const (
	SourceNCVS  = "ncvs"
	SourceNSDUH = "nsduh"
)

// Offense categories.
const (
	OffenseAggravatedAssault = "aggravated assault"
	OffenseProperty          = "property"
	OffenseRobbery           = "robbery"
	OffenseSexOffense        = "sex offense"
	OffenseSimpleAssault     = "simple assault"
	OffenseDUI               = "dui"
	OffenseDrugsUse          = "drugs_use"
	OffenseDrugsSell         = "drugs_sell"
)

// Cell is a demographic cell for one offense.
type Cell struct {
	Sex     string `csv:"offender_sex" json:"sex"`
	Race    string `csv:"offender_race" json:"race"`
	Age     string `csv:"offender_age" json:"age"`
	Offense string `csv:"crime_recode" json:"offense"`
}

func (c Cell) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", c.Sex, c.Race, c.Age, c.Offense)
}

// Less orders cells lexicographically by sex, race, age then offense.
func (c Cell) Less(o Cell) bool {
	if c.Sex != o.Sex {
		return c.Sex < o.Sex
	}
	if c.Race != o.Race {
		return c.Race < o.Race
	}
	if c.Age != o.Age {
		return c.Age < o.Age
	}
	return c.Offense < o.Offense
}

// ArrestRate is the per-cell, per-year detection estimate derived from a survey.
// Rates are nil when the cell had no usable responses.
type ArrestRate struct {
	Source string `csv:"source" json:"source"`
	Cell
	Year             int      `csv:"year" json:"year"`
	Count            int      `csv:"count" json:"count"`
	ArrestRate       *float64 `csv:"arrest_rate" json:"arrest_rate"`
	ReportingRate    *float64 `csv:"reporting_rate" json:"reporting_rate"`
	ArrestRateSmooth *float64 `csv:"arrest_rate_smooth" json:"arrest_rate_smooth"`
}

// Rate column names selectable for synthesis.
const (
	RateArrest       = "arrest_rate"
	RateArrestSmooth = "arrest_rate_smooth"
	RateReporting    = "reporting_rate"
)

// RateValue returns the named rate column, or NaN when it is missing.
func (r ArrestRate) RateValue(column string) float64 {
	var v *float64
	switch column {
	case RateArrest:
		v = r.ArrestRate
	case RateArrestSmooth:
		v = r.ArrestRateSmooth
	case RateReporting:
		v = r.ReportingRate
	}
	if v == nil {
		return math.NaN()
	}
	return *v
}
