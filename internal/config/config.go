package config

import (
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Survey   SurveyConfig   `yaml:"survey" mapstructure:"survey"`
	Synth    SynthConfig    `yaml:"synth" mapstructure:"synth"`
	Matching MatchingConfig `yaml:"matching" mapstructure:"matching"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Workers  int            `yaml:"workers" mapstructure:"workers"`
}

// DataConfig locates input tables and output directories.
type DataConfig struct {
	Cases             string `yaml:"cases" mapstructure:"cases"`
	OffenseCategories string `yaml:"offense_categories" mapstructure:"offense_categories"`
	Taxonomy          string `yaml:"taxonomy" mapstructure:"taxonomy"`
	OGRS3Coefficients string `yaml:"ogrs3_coefficients" mapstructure:"ogrs3_coefficients"`
	NCVS              string `yaml:"ncvs" mapstructure:"ncvs"`
	NSDUHDir          string `yaml:"nsduh_dir" mapstructure:"nsduh_dir"`
	RatesDir          string `yaml:"rates_dir" mapstructure:"rates_dir"`
	ScratchDir        string `yaml:"scratch_dir" mapstructure:"scratch_dir"`
	OutDir            string `yaml:"out_dir" mapstructure:"out_dir"`
}

// PipelineConfig names the scores, offenses and demographics the stages share.
// Empty lists fall back to model.DefaultSchema.
type PipelineConfig struct {
	Scores         []string                `yaml:"scores" mapstructure:"scores"`
	Offenses       []string                `yaml:"offenses" mapstructure:"offenses"`
	Demographics   []string                `yaml:"demographics" mapstructure:"demographics"`
	TreatmentField string                  `yaml:"treatment_field" mapstructure:"treatment_field"`
	Sources        []model.DetectionSource `yaml:"sources" mapstructure:"sources"`
}

// SurveyConfig configures arrest-rate estimation from survey extracts.
type SurveyConfig struct {
	Smoothing  string `yaml:"smoothing" mapstructure:"smoothing"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
	NSDUHYears []int  `yaml:"nsduh_years" mapstructure:"nsduh_years"`
}

// SynthConfig configures the crime synthesizer.
type SynthConfig struct {
	StartYear     int     `yaml:"start_year" mapstructure:"start_year"`
	EndYear       int     `yaml:"end_year" mapstructure:"end_year"`
	Window        int     `yaml:"window" mapstructure:"window"`
	Lambda        float64 `yaml:"lambda" mapstructure:"lambda"`
	Omega         float64 `yaml:"omega" mapstructure:"omega"`
	Seed          uint64  `yaml:"seed" mapstructure:"seed"`
	RateColumn    string  `yaml:"rate_column" mapstructure:"rate_column"`
	RateMultNCVS  float64 `yaml:"rate_mult_ncvs" mapstructure:"rate_mult_ncvs"`
	RateMultNSDUH float64 `yaml:"rate_mult_nsduh" mapstructure:"rate_mult_nsduh"`
	Cache         bool    `yaml:"cache" mapstructure:"cache"`
}

// MatchingConfig configures the treatment-effect estimator.
type MatchingConfig struct {
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm"`
	Repeats   bool   `yaml:"repeats" mapstructure:"repeats"`
	Bins      []int  `yaml:"bins" mapstructure:"bins"`
	Baseline  string `yaml:"baseline" mapstructure:"baseline"`
	Treatment string `yaml:"treatment" mapstructure:"treatment"`
	Subsample int    `yaml:"subsample" mapstructure:"subsample"`
	Synthetic bool   `yaml:"synthetic" mapstructure:"synthetic"`
}

// StoreConfig configures the experiment-run registry.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Matching algorithm names.
const (
	AlgorithmFLAME  = "flame"
	AlgorithmDAME   = "dame"
	AlgorithmHybrid = "hybrid"
)

// Smoothing modes.
const (
	SmoothingRegression = "regression"
	SmoothingAverage    = "average"
)

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.cases", "data/neulaw/hc.csv")
	v.SetDefault("data.offense_categories", "data/neulaw/offense_categories.csv")
	v.SetDefault("data.taxonomy", "")
	v.SetDefault("data.ogrs3_coefficients", "data/coef_ogrs3.csv")
	v.SetDefault("data.ncvs", "data/ncvs/ncvs.csv")
	v.SetDefault("data.nsduh_dir", "data/nsduh")
	v.SetDefault("data.rates_dir", "data/rates")
	v.SetDefault("data.scratch_dir", "data/scratch")
	v.SetDefault("data.out_dir", "data/counterfact")
	v.SetDefault("pipeline.treatment_field", model.FieldCalcRace)
	v.SetDefault("survey.smoothing", SmoothingRegression)
	v.SetDefault("survey.encoding", "utf-8")
	v.SetDefault("survey.nsduh_years", []int{})
	v.SetDefault("synth.start_year", 1992)
	v.SetDefault("synth.end_year", 2012)
	v.SetDefault("synth.window", 2)
	v.SetDefault("synth.lambda", 1.0)
	v.SetDefault("synth.omega", 1.0)
	v.SetDefault("synth.seed", 0)
	v.SetDefault("synth.rate_column", model.RateArrestSmooth)
	v.SetDefault("synth.rate_mult_ncvs", 1.0)
	v.SetDefault("synth.rate_mult_nsduh", 1.0)
	v.SetDefault("synth.cache", true)
	v.SetDefault("matching.algorithm", AlgorithmFLAME)
	v.SetDefault("matching.repeats", false)
	v.SetDefault("matching.bins", []int{-1, 0, 1, 2, 4, 9, 100000})
	v.SetDefault("matching.baseline", "White")
	v.SetDefault("matching.treatment", "Black")
	v.SetDefault("matching.subsample", 0)
	v.SetDefault("matching.synthetic", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/experiments.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("workers", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.applySchemaDefaults()

	return &cfg, nil
}

func (c *Config) applySchemaDefaults() {
	def := model.DefaultSchema()
	if len(c.Pipeline.Scores) == 0 {
		c.Pipeline.Scores = def.Scores
	}
	if len(c.Pipeline.Offenses) == 0 {
		c.Pipeline.Offenses = def.Offenses
	}
	if len(c.Pipeline.Demographics) == 0 {
		c.Pipeline.Demographics = def.Demographics
	}
	if c.Pipeline.TreatmentField == "" {
		c.Pipeline.TreatmentField = def.Treatment
	}
	if len(c.Pipeline.Sources) == 0 {
		c.Pipeline.Sources = def.Sources
	}
}

// Schema returns the immutable schema handed to every pipeline component.
func (c *Config) Schema() model.Schema {
	return model.Schema{
		Scores:       slices.Clone(c.Pipeline.Scores),
		Offenses:     slices.Clone(c.Pipeline.Offenses),
		Demographics: slices.Clone(c.Pipeline.Demographics),
		Treatment:    c.Pipeline.TreatmentField,
		Sources:      slices.Clone(c.Pipeline.Sources),
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
