// Package config handles loading and resolving pricetrack configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json, or config.yaml / config.yml, in the current working directory
//  3. a .env file in the current working directory (never overrides the real environment)
//  4. environment variables prefixed PRICETRACK_
//  5. CLI flags, applied by the caller after Load
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/derickschaefer/pricetrack/internal/model"
)

const (
	DefaultConfigFile      = "config.json"
	DefaultYAMLConfigFile  = "config.yaml"
	DefaultFormat          = "table"
	DefaultTimeout         = 60 * time.Second
	DefaultConcurrency     = 4
	DefaultRate            = 2.0
	DefaultBaseURL         = "https://data.humdata.org/api/3/action/"
	DefaultIndexDataset    = "global-wfp-food-prices"
	DefaultDateThreshold   = 0.5
	DefaultMarketThreshold = 0.7
	DefaultFillMethod      = "forward"
	DefaultOverallLabel    = "Overall"

	// EnvPrefix namespaces every environment variable, e.g. PRICETRACK_DB_PATH.
	EnvPrefix = "PRICETRACK"
)

// Formats lists every output format accepted by --format.
var Formats = []string{"table", "json", "jsonl", "csv", "tsv", "md", "xlsx"}

// File is the on-disk representation of config.json / config.yaml. The same
// shape is decoded from PRICETRACK_* environment variables. Zero values mean
// "not set".
type File struct {
	DefaultFormat   string  `json:"default_format" yaml:"default_format" envconfig:"FORMAT"`
	Timeout         string  `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
	Concurrency     int     `json:"concurrency" yaml:"concurrency" envconfig:"CONCURRENCY"`
	Rate            float64 `json:"rate" yaml:"rate" envconfig:"RATE"`
	BaseURL         string  `json:"base_url" yaml:"base_url" envconfig:"BASE_URL"`
	IndexDataset    string  `json:"index_dataset" yaml:"index_dataset" envconfig:"INDEX_DATASET"`
	DBPath          string  `json:"db_path" yaml:"db_path" envconfig:"DB_PATH"`
	DateThreshold   float64 `json:"date_threshold" yaml:"date_threshold" envconfig:"DATE_THRESHOLD"`
	MarketThreshold float64 `json:"market_threshold" yaml:"market_threshold" envconfig:"MARKET_THRESHOLD"`
	FillMethod      string  `json:"fill_method" yaml:"fill_method" envconfig:"FILL_METHOD"`
	OverallLabel    string  `json:"overall_label" yaml:"overall_label" envconfig:"OVERALL_LABEL"`
	PriceColumn     string  `json:"price_column" yaml:"price_column" envconfig:"PRICE_COLUMN"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; File is only read during loading.
type Config struct {
	Format          string        `json:"format" validate:"oneof=table json jsonl csv tsv md xlsx"`
	Timeout         time.Duration `json:"timeout" validate:"gt=0"`
	Concurrency     int           `json:"concurrency" validate:"gte=1,lte=64"`
	Rate            float64       `json:"rate" validate:"gt=0"`
	BaseURL         string        `json:"base_url" validate:"required,url"`
	IndexDataset    string        `json:"index_dataset" validate:"required"`
	DBPath          string        `json:"db_path" validate:"required"`
	DateThreshold   float64       `json:"date_threshold" validate:"gt=0,lte=1"`
	MarketThreshold float64       `json:"market_threshold" validate:"gt=0,lte=1"`
	FillMethod      string        `json:"fill_method" validate:"oneof=forward none"`
	OverallLabel    string        `json:"overall_label" validate:"required"`
	PriceColumn     string        `json:"price_column"`           // empty tries usdprice, then price
	ConfigPath      string        `json:"config_path,omitempty"` // file that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool `json:"-"`
	Refresh bool `json:"-"`
	Quiet   bool `json:"-"`
	Verbose bool `json:"-"`
	Debug   bool `json:"-"`
}

// Defaults returns a Config holding only built-in values.
func Defaults() *Config {
	cfg := &Config{
		Format:          DefaultFormat,
		Timeout:         DefaultTimeout,
		Concurrency:     DefaultConcurrency,
		Rate:            DefaultRate,
		BaseURL:         DefaultBaseURL,
		IndexDataset:    DefaultIndexDataset,
		DateThreshold:   DefaultDateThreshold,
		MarketThreshold: DefaultMarketThreshold,
		FillMethod:      DefaultFillMethod,
		OverallLabel:    DefaultOverallLabel,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DBPath = filepath.Join(home, ".pricetrack", "pricetrack.db")
	}
	return cfg
}

// Load resolves configuration from defaults, the config file, .env and the
// environment. A missing config file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg := Defaults()

	// Layer 1: config file (lowest priority)
	f, path, err := loadFile()
	if err != nil {
		return nil, err
	}
	if f != nil {
		cfg.ConfigPath = path
		applyFile(cfg, f)
	}

	// Layer 2: .env, best effort
	_ = godotenv.Load()

	// Layer 3: environment variables
	var env File
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	applyFile(cfg, &env)

	return cfg, nil
}

// ─── Validation ───────────────────────────────────────────────────────────────

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its constraints and reports the first
// violation as a *model.ConfigError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	reason := fmt.Sprintf("invalid value %v (%s", fe.Value(), fe.Tag())
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	reason += ")"
	return &model.ConfigError{Field: fe.Field(), Reason: reason}
}

// ─── File loading ─────────────────────────────────────────────────────────────

// loadFile reads config.json, or failing that config.yaml / config.yml, from
// the current working directory. It returns (nil, "", nil) when none exists.
func loadFile() (*File, string, error) {
	for _, name := range []string{DefaultConfigFile, DefaultYAMLConfigFile, "config.yml"} {
		path, err := filepath.Abs(name)
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", fmt.Errorf("reading %s: %w", name, err)
		}
		var f File
		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(data, &f)
		} else {
			err = yaml.Unmarshal(data, &f)
		}
		if err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", name, err)
		}
		return &f, path, nil
	}
	return nil, "", nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File) {
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.IndexDataset != "" {
		cfg.IndexDataset = f.IndexDataset
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.DateThreshold != 0 {
		cfg.DateThreshold = f.DateThreshold
	}
	if f.MarketThreshold != 0 {
		cfg.MarketThreshold = f.MarketThreshold
	}
	if f.FillMethod != "" {
		cfg.FillMethod = f.FillMethod
	}
	if f.OverallLabel != "" {
		cfg.OverallLabel = f.OverallLabel
	}
	if f.PriceColumn != "" {
		cfg.PriceColumn = f.PriceColumn
	}
}

// Template returns a File populated with the defaults, suitable for
// writing an initial config file via `pricetrack config init`.
func Template() File {
	return File{
		DefaultFormat:   DefaultFormat,
		Timeout:         DefaultTimeout.String(),
		Concurrency:     DefaultConcurrency,
		Rate:            DefaultRate,
		BaseURL:         DefaultBaseURL,
		IndexDataset:    DefaultIndexDataset,
		DateThreshold:   DefaultDateThreshold,
		MarketThreshold: DefaultMarketThreshold,
		FillMethod:      DefaultFillMethod,
		OverallLabel:    DefaultOverallLabel,
	}
}

// WriteFile serialises a File to path as YAML when the extension is .yaml
// or .yml, and as indented JSON otherwise.
func WriteFile(path string, f File) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(f)
	default:
		data, err = json.MarshalIndent(f, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
