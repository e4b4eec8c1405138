package model

import (
	"slices"

	"github.com/rotisserie/eris"
)

// DetectionSource describes how a survey's demographic cells line up with
// criminal-history fields, and which offenses it supplies detection rates for.
type DetectionSource struct {
	Name      string      `yaml:"name" mapstructure:"name" json:"name"`
	Offenses  []string    `yaml:"offenses" mapstructure:"offenses" json:"offenses"`
	SexField  string      `yaml:"sex_field" mapstructure:"sex_field" json:"sex_field"`
	RaceField string      `yaml:"race_field" mapstructure:"race_field" json:"race_field"`
	Ages      AgeBrackets `yaml:"ages" mapstructure:"ages" json:"ages"`
	// Excluded age labels are dropped from synthesis (minors).
	Excluded []string `yaml:"excluded" mapstructure:"excluded" json:"excluded"`
}

// Schema enumerates the names every component agrees on. It is built once
// from configuration and never mutated.
type Schema struct {
	Scores       []string
	Offenses     []string
	Demographics []string
	Treatment    string
	Sources      []DetectionSource
}

// NCVS age labels.
const (
	AgeUnder18 = "< 18"
	Age18To29  = "18-29"
	AgeOver29  = "> 29"
	Age18To34  = "18-34"
	AgeOver34  = "> 34"
)

// DefaultSchema returns the schema used when configuration does not override it.
func DefaultSchema() Schema {
	return Schema{
		Scores: slices.Clone(AllScores),
		Offenses: []string{
			OffenseAggravatedAssault, OffenseProperty, OffenseRobbery, OffenseSexOffense,
			OffenseSimpleAssault, OffenseDUI, OffenseDrugsUse, OffenseDrugsSell,
		},
		Demographics: []string{FieldGender, FieldCalcRace, FieldAgeCategory},
		Treatment:    FieldCalcRace,
		Sources: []DetectionSource{
			{
				Name: SourceNCVS,
				Offenses: []string{
					OffenseAggravatedAssault, OffenseProperty, OffenseRobbery,
					OffenseSexOffense, OffenseSimpleAssault,
				},
				SexField:  FieldGender,
				RaceField: FieldRace,
				Ages: AgeBrackets{
					Lower:  0,
					Edges:  []float64{17, 29, 500},
					Labels: []string{AgeUnder18, Age18To29, AgeOver29},
				},
				Excluded: []string{AgeUnder18},
			},
			{
				Name:      SourceNSDUH,
				Offenses:  []string{OffenseDUI, OffenseDrugsUse, OffenseDrugsSell},
				SexField:  FieldGender,
				RaceField: FieldCalcRace,
				Ages: AgeBrackets{
					Lower:  0,
					Edges:  []float64{17, 34, 500},
					Labels: []string{AgeUnder18, Age18To34, AgeOver34},
				},
				Excluded: []string{AgeUnder18},
			},
		},
	}
}

// Validate checks that every offense is owned by exactly one detection source.
func (s Schema) Validate() error {
	owner := make(map[string]string)
	for _, src := range s.Sources {
		if err := src.Ages.Validate(); err != nil {
			return eris.Wrapf(err, "schema: source %s", src.Name)
		}
		for _, off := range src.Offenses {
			if prev, ok := owner[off]; ok {
				return eris.Errorf("schema: offense %q claimed by both %s and %s", off, prev, src.Name)
			}
			owner[off] = src.Name
		}
	}
	for _, off := range s.Offenses {
		if _, ok := owner[off]; !ok {
			return eris.Errorf("schema: offense %q has no detection source", off)
		}
	}
	if s.Treatment == "" {
		return eris.New("schema: treatment attribute is empty")
	}
	if !slices.Contains(s.Demographics, s.Treatment) {
		return eris.Errorf("schema: treatment %q is not a demographic attribute", s.Treatment)
	}
	return nil
}

// SourceFor returns the detection source owning offense.
func (s Schema) SourceFor(offense string) (DetectionSource, bool) {
	for _, src := range s.Sources {
		if slices.Contains(src.Offenses, offense) {
			return src, true
		}
	}
	return DetectionSource{}, false
}
