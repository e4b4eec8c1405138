package model

import "math"

// Score names as they appear in output tables.
const (
	ScoreNCA   = "nca"
	ScoreNVCA  = "nvca"
	ScoreOGRS3 = "ogrs3"
	ScoreVPRAI = "vprai"
	ScoreFTA   = "fta"
)

// AllScores lists every instrument in output order.
var AllScores = []string{ScoreNCA, ScoreNVCA, ScoreOGRS3, ScoreVPRAI, ScoreFTA}

// RiskScores holds every instrument's output for one defendant. A nil field
// means the instrument is undefined for that defendant.
type RiskScores struct {
	DefendantID string   `csv:"def.uid" json:"def_uid"`
	NCA         *int     `csv:"nca" json:"nca"`
	NVCA        *int     `csv:"nvca" json:"nvca"`
	OGRS3       *float64 `csv:"ogrs3" json:"ogrs3"`
	VPRAI       *int     `csv:"vprai" json:"vprai"`
	FTA         *int     `csv:"fta" json:"fta"`
}

// Value returns the named score as a float and whether it is defined.
func (s RiskScores) Value(name string) (float64, bool) {
	switch name {
	case ScoreNCA:
		return intValue(s.NCA)
	case ScoreNVCA:
		return intValue(s.NVCA)
	case ScoreVPRAI:
		return intValue(s.VPRAI)
	case ScoreFTA:
		return intValue(s.FTA)
	case ScoreOGRS3:
		if s.OGRS3 == nil || math.IsNaN(*s.OGRS3) {
			return math.NaN(), false
		}
		return *s.OGRS3, true
	}
	return math.NaN(), false
}

func intValue(v *int) (float64, bool) {
	if v == nil {
		return math.NaN(), false
	}
	return float64(*v), true
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
