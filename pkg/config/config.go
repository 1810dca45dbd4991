// Package config loads collector settings from .env, an optional YAML or HJSON
// file and the environment, and builds the process logger.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"edgar_facts/pkg/models"

	hjson "github.com/hjson/hjson-go/v4"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = eris.New("config: invalid configuration")

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // console or json
}

// Source selects the content loader.
type Source struct {
	Kind          string  `yaml:"kind" json:"kind"` // dir, http, s3
	Dir           string  `yaml:"dir" json:"dir"`
	Host          string  `yaml:"host" json:"host"`
	UserAgent     string  `yaml:"user_agent" json:"user_agent"`
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
	CacheDir      string  `yaml:"cache_dir" json:"cache_dir"`
	Bucket        string  `yaml:"bucket" json:"bucket"`
	Prefix        string  `yaml:"prefix" json:"prefix"`
	Region        string  `yaml:"region" json:"region"`
	Endpoint      string  `yaml:"endpoint" json:"endpoint"`
}

// Sink selects where records are written.
type Sink struct {
	Kind          string `yaml:"kind" json:"kind"` // postgres, mongo, file, memory
	DatabaseURL   string `yaml:"database_url" json:"database_url"`
	MongoURI      string `yaml:"mongo_uri" json:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database"`
	Dir           string `yaml:"dir" json:"dir"`
}

type Batch struct {
	Concurrency    int           `yaml:"concurrency" json:"concurrency"`
	Max            int           `yaml:"max" json:"max"`
	ResumeAt       string        `yaml:"resume_at" json:"resume_at"`
	CheckpointPath string        `yaml:"checkpoint" json:"checkpoint"`
	Retries        int           `yaml:"retries" json:"retries"`
	Backoff        time.Duration `yaml:"backoff" json:"backoff"`
}

// Filter mirrors models.FilterSpec with dates kept as YYYY-MM-DD text.
type Filter struct {
	Forms     []string `yaml:"forms" json:"forms"`
	CIKs      []string `yaml:"ciks" json:"ciks"`
	Tickers   []string `yaml:"tickers" json:"tickers"`
	Begin     string   `yaml:"begin" json:"begin"`
	End       string   `yaml:"end" json:"end"`
	DateField string   `yaml:"date_field" json:"date_field"`
}

type Report struct {
	Path string `yaml:"path" json:"path"`
}

// Config is the full collector configuration.
type Config struct {
	Log    Log    `yaml:"log" json:"log"`
	Source Source `yaml:"source" json:"source"`
	Sink   Sink   `yaml:"sink" json:"sink"`
	Batch  Batch  `yaml:"batch" json:"batch"`
	Filter Filter `yaml:"filter" json:"filter"`
	Report Report `yaml:"report" json:"report"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Log:    Log{Level: "info", Format: "console"},
		Source: Source{Kind: "dir", Dir: ".", Host: "https://www.sec.gov", RatePerSecond: 10},
		Sink:   Sink{Kind: "file", Dir: ".cache/edgar/filings", MongoDatabase: "edgar"},
		Batch:  Batch{Concurrency: 1, Backoff: time.Second},
		Filter: Filter{DateField: string(models.DateFieldFiling)},
	}
}

// Load builds a Config. Order: defaults, .env (a missing file is ignored), the
// config file at path (when non-empty), then environment variables. CLI flags
// are applied by the caller afterwards.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, eris.Wrapf(err, "config: load %s", envFile)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "config: read %s", path)
		}
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return eris.Wrapf(err, "config: parse yaml %s", path)
		}
	case ".hjson", ".json":
		if err := hjson.Unmarshal(data, cfg); err != nil {
			return eris.Wrapf(err, "config: parse hjson %s", path)
		}
	default:
		return eris.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	return nil
}

// applyEnv overrides file values with the process environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Log.Level, "LOG_LEVEL")
	set(&cfg.Log.Format, "LOG_FORMAT")
	set(&cfg.Source.UserAgent, "EDGAR_USER_AGENT")
	set(&cfg.Source.Bucket, "EDGAR_S3_BUCKET")
	set(&cfg.Source.Region, "AWS_REGION")
	set(&cfg.Source.Endpoint, "AWS_ENDPOINT_URL")
	set(&cfg.Sink.DatabaseURL, "DATABASE_URL")
	set(&cfg.Sink.MongoURI, "MONGO_URI")

	if v := getenv("EDGAR_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Source.RatePerSecond = f
		}
	}
}

// Validate checks the settings needed by the selected source and sink.
func (c Config) Validate() error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	switch c.Source.Kind {
	case "dir":
		if c.Source.Dir == "" {
			add("source.dir is required for a dir source")
		}
	case "http":
		if !strings.Contains(c.Source.UserAgent, "@") {
			add("source.user_agent must carry a contact email for the SEC archive")
		}
	case "s3":
		if c.Source.Bucket == "" {
			add("source.bucket is required for an s3 source")
		}
	default:
		add("source.kind must be dir, http or s3")
	}

	switch c.Sink.Kind {
	case "postgres":
		if c.Sink.DatabaseURL == "" {
			add("sink.database_url (or DATABASE_URL) is required for postgres")
		}
	case "mongo":
		if c.Sink.MongoURI == "" {
			add("sink.mongo_uri (or MONGO_URI) is required for mongo")
		}
	case "file", "memory":
	default:
		add("sink.kind must be postgres, mongo, file or memory")
	}

	if c.Batch.Concurrency < 1 {
		add("batch.concurrency must be at least 1")
	}
	if c.Batch.Max < 0 {
		add("batch.max must not be negative")
	}
	if c.Batch.Retries < 0 {
		add("batch.retries must not be negative")
	}
	switch models.DateField(c.Filter.DateField) {
	case models.DateFieldFiling, models.DateFieldPeriod, "":
	default:
		add("filter.date_field must be filing or period")
	}
	if _, _, err := c.Filter.dates(); err != nil {
		add(err.Error())
	}

	if len(problems) > 0 {
		return eris.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Spec converts the filter and batch settings into a run's FilterSpec.
// CIKs resolved from tickers are passed separately.
func (c Config) Spec(extraCIKs ...string) (models.FilterSpec, error) {
	begin, end, err := c.Filter.dates()
	if err != nil {
		return models.FilterSpec{}, eris.Wrap(ErrInvalidConfig, err.Error())
	}
	spec := models.FilterSpec{
		FormTypes: c.Filter.Forms,
		CIKs:      append(append([]string(nil), c.Filter.CIKs...), extraCIKs...),
		Begin:     begin,
		End:       end,
		DateField: models.DateField(c.Filter.DateField),
		MaxCount:  c.Batch.Max,
		ResumeAt:  models.FilingID(c.Batch.ResumeAt),
	}
	if spec.DateField == "" {
		spec.DateField = models.DateFieldFiling
	}
	return spec, nil
}

func (f Filter) dates() (time.Time, time.Time, error) {
	var begin, end time.Time
	var err error
	if f.Begin != "" {
		if begin, err = time.Parse("2006-01-02", f.Begin); err != nil {
			return begin, end, eris.Errorf("filter.begin %q is not YYYY-MM-DD", f.Begin)
		}
	}
	if f.End != "" {
		if end, err = time.Parse("2006-01-02", f.End); err != nil {
			return begin, end, eris.Errorf("filter.end %q is not YYYY-MM-DD", f.End)
		}
	}
	if !begin.IsZero() && !end.IsZero() && end.Before(begin) {
		return begin, end, eris.Errorf("filter.end %s is before filter.begin %s", f.End, f.Begin)
	}
	return begin, end, nil
}
