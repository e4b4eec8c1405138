package model

import "github.com/rotisserie/eris"

// AgeBrackets assigns ages to labelled intervals. Edges are right-inclusive
// upper bounds: an age a falls in bracket i when Edges[i-1] < a <= Edges[i],
// with the first lower bound at Lower.
type AgeBrackets struct {
	Lower  float64   `yaml:"lower" mapstructure:"lower" json:"lower"`
	Edges  []float64 `yaml:"edges" mapstructure:"edges" json:"edges"`
	Labels []string  `yaml:"labels" mapstructure:"labels" json:"labels"`
}

// Validate checks that edges increase and that there is one label per bracket.
func (b AgeBrackets) Validate() error {
	if len(b.Edges) == 0 {
		return eris.New("model: age brackets have no edges")
	}
	if len(b.Edges) != len(b.Labels) {
		return eris.Errorf("model: %d age edges but %d labels", len(b.Edges), len(b.Labels))
	}
	prev := b.Lower
	for _, e := range b.Edges {
		if e <= prev {
			return eris.Errorf("model: age edges must increase (%v after %v)", e, prev)
		}
		prev = e
	}
	return nil
}

// Label returns the bracket label for age, or "" when age is outside every bracket.
func (b AgeBrackets) Label(age float64) string {
	if age <= b.Lower {
		return ""
	}
	for i, e := range b.Edges {
		if age <= e {
			return b.Labels[i]
		}
	}
	return ""
}
