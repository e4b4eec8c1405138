package model

// OffenseCount is one defendant's count for one offense category, split into
// the part on record and the part assigned by synthesis.
type OffenseCount struct {
	DefendantID string  `csv:"def.uid" json:"def_uid"`
	Gender      string  `csv:"def.gender" json:"gender"`
	Race        string  `csv:"def.race" json:"race"`
	CalcRace    string  `csv:"calc.race" json:"calc_race"`
	AgeCategory string  `csv:"age_cat" json:"age_category"`
	Offense     string  `csv:"offense_category" json:"offense"`
	Observed    float64 `csv:"offense_count" json:"observed"`
	Unobserved  float64 `csv:"offense_unobserved" json:"unobserved"`
	Total       float64 `csv:"offense_total" json:"total"`
}

// Field returns a demographic field by its column name.
func (o OffenseCount) Field(name string) string {
	switch name {
	case FieldGender:
		return o.Gender
	case FieldRace:
		return o.Race
	case FieldCalcRace:
		return o.CalcRace
	case FieldAgeCategory:
		return o.AgeCategory
	}
	return ""
}

// CellStats records the imputation quantities for one cell of one window.
type CellStats struct {
	WindowStart int    `csv:"window_start" json:"window_start"`
	Source      string `csv:"source" json:"source"`
	Cell
	Observed      int     `csv:"observed_crimes_in_cell" json:"observed"`
	Population    int     `csv:"population_size" json:"population"`
	DetectionRate float64 `csv:"detection_rate" json:"detection_rate"`
	TotalEstimate int     `csv:"total_crimes_estimate" json:"total_estimate"`
	Unobserved    int     `csv:"unobserved_crimes_in_cell" json:"unobserved"`
	PerCapita     float64 `csv:"unobserved_per_capita" json:"per_capita"`
	Assigned      int     `csv:"assigned" json:"assigned"`
	FellBack      bool    `csv:"fell_back" json:"fell_back"`
}
