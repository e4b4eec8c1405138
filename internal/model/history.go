package model

// CriminalHistory summarizes one defendant's record as of their most recent case.
type CriminalHistory struct {
	DefendantID    string  `csv:"def.uid" json:"def_uid"`
	Gender         string  `csv:"def.gender" json:"gender"`
	Race           string  `csv:"def.race" json:"race"`
	CalcRace       string  `csv:"calc.race" json:"calc_race"`
	CurrentAge     float64 `csv:"current.age.numeric" json:"current_age"`
	AgeCategory    string  `csv:"current_age" json:"age_category"`
	LastArrest     Date    `csv:"last_arrest_date,omitempty" json:"last_arrest_date"`
	AgeFirstArrest float64 `csv:"age_first_arrest" json:"age_first_arrest"`

	FTALessThan2Yr int `csv:"fta_lt_2yr_count" json:"fta_lt_2yr_count"`
	FTAMoreThan2Yr int `csv:"fta_gt_2yr_count" json:"fta_gt_2yr_count"`

	DrugConvictions         int `csv:"drug_conviction_count" json:"drug_conviction_count"`
	ViolentConvictions      int `csv:"violent_conviction_count" json:"violent_conviction_count"`
	ViolentConvictionsAdult int `csv:"violent_conviction_adult_count" json:"violent_conviction_adult_count"`
	Incarcerations          int `csv:"incarceration_count" json:"incarceration_count"`
	Convictions             int `csv:"conviction_count" json:"conviction_count"`
	NotDismissed            int `csv:"not_dismissed_count" json:"not_dismissed_count"`
	Misdemeanors            int `csv:"misdemeanor_count" json:"misdemeanor_count"`
	Felonies                int `csv:"felony_count" json:"felony_count"`
	ViolentPending          int `csv:"violent_pending_count" json:"violent_pending_count"`
	PendingCharges          int `csv:"pending_charge_count" json:"pending_charge_count"`

	CurrentFelony     bool `csv:"current.felony" json:"current_felony"`
	CurrentViolent    bool `csv:"current.violent" json:"current_violent"`
	CurrentConviction bool `csv:"current.conviction" json:"current_conviction"`

	MostSeriousOffense string `csv:"most_serious_offense" json:"most_serious_offense"`
}
