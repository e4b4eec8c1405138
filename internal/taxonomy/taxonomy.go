// Package taxonomy classifies charges: violent offenses, failures to appear,
// incarceration outcomes, and degree severity.
package taxonomy

import (
	_ "embed"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Config is the on-disk form of the offense taxonomy.
type Config struct {
	ConvictionMarker     string         `yaml:"conviction_marker"`
	Dismissal            string         `yaml:"dismissal"`
	FTAWindowDays        float64        `yaml:"fta_window_days"`
	FTACodes             []string       `yaml:"fta_codes"`
	IncarcerationPattern string         `yaml:"incarceration_pattern"`
	DrugCategories       []string       `yaml:"drug_categories"`
	ViolentCodes         []string       `yaml:"violent_codes"`
	ViolentCharges       []ChargeRule   `yaml:"violent_charges"`
	DegreeSeverity       map[string]int `yaml:"degree_severity"`
}

// ChargeRule marks a broad charge category as violent when the case degree
// matches Degrees. An empty Degrees matches any degree.
type ChargeRule struct {
	Broad   string `yaml:"broad"`
	Degrees string `yaml:"degrees"`
}

type chargeMatcher struct {
	broad   string
	degrees *regexp.Regexp
}

// Taxonomy is a compiled Config. It is safe for concurrent use.
type Taxonomy struct {
	cfg           Config
	ftaCodes      map[string]bool
	violentCode   *regexp.Regexp
	incarceration *regexp.Regexp
	charges       []chargeMatcher
}

// Load reads a taxonomy from path, or the built-in taxonomy when path is empty.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Parse(defaultTaxonomy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	return Parse(data)
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTaxonomy)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse compiles a YAML taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var wrapper struct {
		Taxonomy Config `yaml:"taxonomy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse")
	}
	return Compile(wrapper.Taxonomy)
}

// Compile validates cfg and builds its matchers.
func Compile(cfg Config) (*Taxonomy, error) {
	if cfg.ConvictionMarker == "" {
		return nil, eris.New("taxonomy: conviction_marker is required")
	}
	if cfg.FTAWindowDays <= 0 {
		return nil, eris.New("taxonomy: fta_window_days must be positive")
	}

	t := &Taxonomy{cfg: cfg, ftaCodes: make(map[string]bool, len(cfg.FTACodes))}
	for _, c := range cfg.FTACodes {
		t.ftaCodes[c] = true
	}

	if len(cfg.ViolentCodes) > 0 {
		quoted := make([]string, len(cfg.ViolentCodes))
		for i, c := range cfg.ViolentCodes {
			quoted[i] = regexp.QuoteMeta(c)
		}
		t.violentCode = regexp.MustCompile(strings.Join(quoted, "|"))
	}

	if cfg.IncarcerationPattern != "" {
		re, err := regexp.Compile(cfg.IncarcerationPattern)
		if err != nil {
			return nil, eris.Wrap(err, "taxonomy: incarceration_pattern")
		}
		t.incarceration = re
	}

	for _, rule := range cfg.ViolentCharges {
		m := chargeMatcher{broad: rule.Broad}
		if rule.Degrees != "" {
			re, err := regexp.Compile(rule.Degrees)
			if err != nil {
				return nil, eris.Wrapf(err, "taxonomy: degrees for %q", rule.Broad)
			}
			m.degrees = re
		}
		t.charges = append(t.charges, m)
	}
	return t, nil
}

// FTAWindowDays is the look-back splitting recent from older failures to appear.
func (t *Taxonomy) FTAWindowDays() float64 { return t.cfg.FTAWindowDays }

// IsFTA reports whether an offense code records a failure to appear.
func (t *Taxonomy) IsFTA(code string) bool { return t.ftaCodes[code] }

// IsViolentCharge reports whether the charge itself is violent, by offense
// code or by broad category and degree.
func (t *Taxonomy) IsViolentCharge(code, broad, degree string) bool {
	if t.violentCode != nil && t.violentCode.MatchString(code) {
		return true
	}
	for _, m := range t.charges {
		if m.broad != broad {
			continue
		}
		if m.degrees == nil || m.degrees.MatchString(degree) {
			return true
		}
	}
	return false
}

// IsIncarceration reports whether a disposition literal records a custodial sentence.
func (t *Taxonomy) IsIncarceration(literal string) bool {
	return t.incarceration != nil && t.incarceration.MatchString(literal)
}

// IsConviction reports whether a disposition is a conviction.
func (t *Taxonomy) IsConviction(disposition string) bool {
	return strings.Contains(disposition, t.cfg.ConvictionMarker)
}

// IsDismissal reports whether a disposition is a dismissal.
func (t *Taxonomy) IsDismissal(disposition string) bool {
	return disposition == t.cfg.Dismissal
}

// IsDrug reports whether an offense category is a drug offense.
func (t *Taxonomy) IsDrug(category string) bool {
	return slices.Contains(t.cfg.DrugCategories, category)
}

// IsMisdemeanor reports whether a degree is a misdemeanor grade.
func IsMisdemeanor(degree string) bool { return strings.Contains(degree, "M") }

// IsFelony reports whether a degree is a felony grade.
func IsFelony(degree string) bool { return strings.Contains(degree, "F") }

// Severity ranks a degree; unknown degrees rank 0.
func (t *Taxonomy) Severity(degree string) int {
	return t.cfg.DegreeSeverity[degree]
}
