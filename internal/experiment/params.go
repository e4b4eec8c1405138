package experiment

import (
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/sells-group/rai-disparity/internal/config"
	"github.com/sells-group/rai-disparity/internal/effect"
	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/synth"
)

// Params is every setting one experiment depends on.
type Params struct {
	StartYear     int     `json:"start_year"`
	EndYear       int     `json:"end_year"`
	Window        int     `json:"window"`
	Baseline      string  `json:"baseline"`
	Treatment     string  `json:"treatment"`
	Synthetic     bool    `json:"synth"`
	Algorithm     string  `json:"matching"`
	Repeats       bool    `json:"repeat_match"`
	Subsample     int     `json:"n_subsample"`
	Bins          []int   `json:"-"`
	Lambda        float64 `json:"lam"`
	Omega         float64 `json:"omega"`
	Seed          uint64  `json:"seed"`
	Smoothing     string  `json:"smoothing"`
	RateColumn    string  `json:"rate_column"`
	RateMultNCVS  float64 `json:"rate_mult_ncvs"`
	RateMultNSDUH float64 `json:"rate_mult_nsduh"`
}

// ParamsFromConfig collects the experiment settings from cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		StartYear:     cfg.Synth.StartYear,
		EndYear:       cfg.Synth.EndYear,
		Window:        cfg.Synth.Window,
		Baseline:      cfg.Matching.Baseline,
		Treatment:     cfg.Matching.Treatment,
		Synthetic:     cfg.Matching.Synthetic,
		Algorithm:     cfg.Matching.Algorithm,
		Repeats:       cfg.Matching.Repeats,
		Subsample:     cfg.Matching.Subsample,
		Bins:          cfg.Matching.Bins,
		Lambda:        cfg.Synth.Lambda,
		Omega:         cfg.Synth.Omega,
		Seed:          cfg.Synth.Seed,
		Smoothing:     cfg.Survey.Smoothing,
		RateColumn:    cfg.Synth.RateColumn,
		RateMultNCVS:  cfg.Synth.RateMultNCVS,
		RateMultNSDUH: cfg.Synth.RateMultNSDUH,
	}
}

// Synth returns the synthesizer parameters.
func (p Params) Synth() synth.Params {
	return synth.Params{
		StartYear:  p.StartYear,
		EndYear:    p.EndYear,
		Window:     p.Window,
		Lambda:     p.Lambda,
		Omega:      p.Omega,
		Seed:       p.Seed,
		RateColumn: p.RateColumn,
		Smoothing:  p.Smoothing,
		RateMult: map[string]float64{
			model.SourceNCVS:  p.RateMultNCVS,
			model.SourceNSDUH: p.RateMultNSDUH,
		},
	}
}

// Effect returns the estimator parameters.
func (p Params) Effect() (effect.Params, error) {
	ts, err := effect.NewTreatmentSet(p.Baseline, p.Treatment)
	if err != nil {
		return effect.Params{}, err
	}
	return effect.Params{
		Treatment: ts,
		Bins:      p.Bins,
		Algorithm: p.Algorithm,
		Repeats:   p.Repeats,
		Subsample: p.Subsample,
		Seed:      p.Seed,
	}, nil
}

// OutputDir is the directory holding every experiment over the same years
// and window.
func (p Params) OutputDir(root string) string {
	return filepath.Join(root, fmt.Sprintf("%d-%d_%d", p.StartYear, p.EndYear, p.Window))
}

// Stem names the experiment's output files. Parameters that do not apply
// are left out.
func (p Params) Stem() string {
	parts := []string{
		"",
		p.Baseline + "-" + p.Treatment,
		"observed",
		p.Algorithm,
		"nomrep",
	}
	if p.Subsample > 0 {
		parts[0] = "subsampled"
	}
	if p.Synthetic {
		parts[2] = "synth"
	}
	if p.Repeats {
		parts[4] = "mrep"
	}
	if p.Synthetic {
		lam := "nolam"
		if p.Lambda > 0 {
			lam = fmt.Sprintf("lam3e%dom3e%d", int(p.Lambda*1000), int(p.Omega*1000))
		}
		parts = append(parts, lam, strconv.FormatUint(p.Seed, 10), p.Synth().RateKey())
	}
	if len(p.Bins) > 2 {
		parts = append(parts, strings.Join(binStrings(p.Bins[1:len(p.Bins)-1]), "b"))
	}

	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "_")
}

func binStrings(bins []int) []string {
	out := make([]string, len(bins))
	for i, b := range bins {
		out[i] = strconv.Itoa(b)
	}
	return out
}

// Sidecar is the JSON document written beside an experiment's tables.
type Sidecar struct {
	Params
	CrimeBins []string `json:"crime_bins"`
	RunID     string   `json:"run_id"`
	Commit    string   `json:"commit"`
}

// NewSidecar describes an experiment run.
func NewSidecar(p Params, runID string) Sidecar {
	return Sidecar{Params: p, CrimeBins: binStrings(p.Bins), RunID: runID, Commit: Commit()}
}

// Commit returns the VCS revision the binary was built from, or "unknown".
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
}
