package config

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Validate checks the settings a command needs before any data is read.
// Every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := c.Schema().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}

	switch mode {
	case "history", "rais":
		errs = append(errs, c.validateYears()...)
		if c.Data.Cases == "" {
			errs = append(errs, "data.cases is required")
		}
	case "rates":
		errs = append(errs, c.validateSurvey()...)
	case "synth":
		errs = append(errs, c.validateYears()...)
		errs = append(errs, c.validateSynth()...)
	case "ate":
		errs = append(errs, c.validateYears()...)
		errs = append(errs, c.validateMatching()...)
		if c.Matching.Synthetic {
			errs = append(errs, c.validateSynth()...)
		}
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateYears() []string {
	var errs []string
	if c.Synth.StartYear > c.Synth.EndYear {
		errs = append(errs, "synth.start_year must not exceed synth.end_year")
	}
	if c.Synth.Window < 0 {
		errs = append(errs, "synth.window must not be negative")
	}
	return errs
}

func (c *Config) validateSynth() []string {
	var errs []string
	if c.Synth.Lambda <= 0 {
		errs = append(errs, "synth.lambda must be positive")
	}
	if c.Synth.Omega < 0 {
		errs = append(errs, "synth.omega must not be negative")
	}
	if c.Synth.RateMultNCVS <= 0 || c.Synth.RateMultNSDUH <= 0 {
		errs = append(errs, "synth rate multipliers must be positive")
	}
	switch c.Synth.RateColumn {
	case model.RateArrest, model.RateArrestSmooth, model.RateReporting:
	default:
		errs = append(errs, "synth.rate_column must be arrest_rate, arrest_rate_smooth or reporting_rate")
	}
	return errs
}

func (c *Config) validateSurvey() []string {
	switch c.Survey.Smoothing {
	case SmoothingRegression, SmoothingAverage:
		return nil
	}
	return []string{"survey.smoothing must be regression or average"}
}

func (c *Config) validateMatching() []string {
	var errs []string
	switch c.Matching.Algorithm {
	case AlgorithmFLAME, AlgorithmDAME, AlgorithmHybrid:
	default:
		errs = append(errs, "matching.algorithm must be flame, dame or hybrid")
	}
	if len(c.Matching.Bins) < 2 {
		errs = append(errs, "matching.bins needs at least two edges")
	} else {
		for i := 1; i < len(c.Matching.Bins); i++ {
			if c.Matching.Bins[i] <= c.Matching.Bins[i-1] {
				errs = append(errs, "matching.bins must be strictly increasing")
				break
			}
		}
	}
	if c.Matching.Baseline == "" || c.Matching.Treatment == "" {
		errs = append(errs, "matching.baseline and matching.treatment are required")
	} else if c.Matching.Baseline == c.Matching.Treatment {
		errs = append(errs, "matching.baseline and matching.treatment must differ")
	}
	if c.Matching.Subsample < 0 {
		errs = append(errs, "matching.subsample must not be negative")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	}
	return []string{"store.driver must be sqlite, postgres or none"}
}
