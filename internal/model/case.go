package model

// Case is one charge on a court case. A defendant has one or more cases and a
// case has one or more charges.
type Case struct {
	DefendantID        string `csv:"def.uid" json:"def_uid"`
	Gender             string `csv:"def.gender" json:"gender"`
	Race               string `csv:"def.race" json:"race"`
	CalcRace           string `csv:"calc.race" json:"calc_race"`
	DOB                Date   `csv:"def.dob,omitempty" json:"dob"`
	CaseDate           Date   `csv:"case.date,omitempty" json:"case_date"`
	OffenseDate        Date   `csv:"off.date,omitempty" json:"offense_date"`
	DispositionDate    Date   `csv:"disp.date,omitempty" json:"disposition_date"`
	Year               int    `csv:"calc.year,omitempty" json:"year"`
	CaseNumber         string `csv:"calc.casenr" json:"case_number"`
	OffenseCode        string `csv:"off.code" json:"offense_code"`
	Detailed           string `csv:"calc.detailed" json:"detailed"`
	Broad              string `csv:"calc.broad" json:"broad"`
	Degree             string `csv:"case.degree" json:"degree"`
	Disposition        string `csv:"calc.disp" json:"disposition"`
	DispositionLiteral string `csv:"disp.literal" json:"disposition_literal"`
	OffenseCategory    string `csv:"offense_category" json:"offense_category"`
}

// Field returns the value of a demographic field by its column name.
func (c Case) Field(name string) string {
	switch name {
	case FieldGender:
		return c.Gender
	case FieldRace:
		return c.Race
	case FieldCalcRace:
		return c.CalcRace
	}
	return ""
}

// Demographic column names shared by cases, histories and offense tables.
const (
	FieldGender      = "def.gender"
	FieldRace        = "def.race"
	FieldCalcRace    = "calc.race"
	FieldAgeCategory = "age_cat"
)

// Missing marks an unknown categorical value in the source data.
const Missing = "Missing"
