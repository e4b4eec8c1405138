package rai

import (
	"math"
	"strings"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/taxonomy"
)

const (
	ogrs3Intercept = 2.121705678
	ogrs3CopasCoef = 1.251124464
)

// Conviction-history coefficients.
const (
	ogrs3NoConvictionNoPriors  = 0.0
	ogrs3NoConvictionPriors    = 0.083100501
	ogrs3CurrentOnly           = 0.126142106
	ogrs3CurrentAndPrior       = 0.463062792
	ogrs3OtherConvictionRecord = 0.34859587
)

// ogrs3AgeLower holds the lower edge of each half-open age bracket. Ages
// below the first edge use the last bracket's coefficient.
var ogrs3AgeLower = []float64{10, 12, 14, 16, 18, 21, 25, 30, 35, 40, 50}

var ogrs3AgeCoefs = map[string][]float64{
	"Male": {
		0, 0.083922902, 0.075775765, -0.061594199, -0.625103618, -1.051515067,
		-1.166679288, -1.325976554, -1.368045933, -1.499690953, -2.025261458,
	},
	"Female": {
		-0.785038489, -0.613852078, -0.669521331, -0.959179629, -0.897480934, -1.028488454,
		-1.052777806, -1.129127959, -1.42187494, -1.524652221, -2.44983716,
	},
}

// OGRS3 scores the Offender Group Reconviction Scale, a logistic model of
// reconviction probability.
type OGRS3 struct {
	coefs taxonomy.Coefficients
}

// NewOGRS3 returns an OGRS3 scorer using the given offense coefficients.
func NewOGRS3(coefs taxonomy.Coefficients) *OGRS3 {
	return &OGRS3{coefs: coefs}
}

// Score returns the reconviction probability for h. The score is nil when the
// most serious offense has no coefficient. A non-positive denominator is an
// invariant error.
func (o *OGRS3) Score(h *model.CriminalHistory) (*float64, error) {
	offense, ok := o.coefs[strings.TrimSpace(h.MostSeriousOffense)]
	if !ok || math.IsNaN(offense) {
		return nil, nil
	}
	denom, err := ogrs3Denominator(h)
	if err != nil {
		return nil, err
	}

	x := ogrs3Intercept + offense + ogrs3ConvictionCoef(h)
	x += math.Log(float64(h.NotDismissed+1)/denom) * ogrs3CopasCoef
	x += ogrs3AgeCoef(h.Gender, h.CurrentAge)

	p := 1 / (1 + math.Exp(-x))
	if math.IsNaN(p) {
		return nil, nil
	}
	return model.FloatPtr(p), nil
}

func ogrs3Denominator(h *model.CriminalHistory) (float64, error) {
	if h.AgeFirstArrest == 0 {
		return 10, nil
	}
	years := h.CurrentAge - math.Floor(h.AgeFirstArrest)
	denom := 10 + math.Max(0, years)
	if !(denom > 0) {
		return 0, model.Invariantf("rai: ogrs3 denominator %v for defendant %s", denom, h.DefendantID)
	}
	return denom, nil
}

func ogrs3ConvictionCoef(h *model.CriminalHistory) float64 {
	switch {
	case h.Convictions == 0 && !h.CurrentConviction && h.NotDismissed == 0:
		return ogrs3NoConvictionNoPriors
	case h.Convictions == 0 && !h.CurrentConviction && h.NotDismissed >= 1:
		return ogrs3NoConvictionPriors
	case h.Convictions == 0 && h.CurrentConviction && h.NotDismissed == 0:
		return ogrs3CurrentOnly
	case h.CurrentConviction && h.Convictions > 0:
		return ogrs3CurrentAndPrior
	default:
		return ogrs3OtherConvictionRecord
	}
}

func ogrs3AgeCoef(gender string, age float64) float64 {
	coefs, ok := ogrs3AgeCoefs[gender]
	if !ok {
		return 0
	}
	idx := len(ogrs3AgeLower) - 1
	for i := len(ogrs3AgeLower) - 1; i >= 0; i-- {
		if age >= ogrs3AgeLower[i] {
			idx = i
			break
		}
	}
	return coefs[idx]
}
