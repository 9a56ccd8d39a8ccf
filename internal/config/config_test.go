package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/pricetrack/internal/config"
	"github.com/derickschaefer/pricetrack/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// chdir changes the working directory to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// writeConfig writes a config.json into dir and chdirs there so Load finds it.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

var envVars = []string{
	"FORMAT", "TIMEOUT", "CONCURRENCY", "RATE", "BASE_URL", "INDEX_DATASET",
	"DB_PATH", "DATE_THRESHOLD", "MARKET_THRESHOLD", "FILL_METHOD",
	"OVERALL_LABEL", "PRICE_COLUMN",
}

// clearEnv unsets every PRICETRACK_* variable for the duration of the test.
// Setenv registers the restore; Unsetenv then removes the variable so numeric
// fields are not parsed from an empty string.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		key := config.EnvPrefix + "_" + v
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != config.DefaultFormat {
		t.Errorf("Format: expected %q, got %q", config.DefaultFormat, cfg.Format)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Concurrency != config.DefaultConcurrency {
		t.Errorf("Concurrency: expected %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.DateThreshold != 0.5 || cfg.MarketThreshold != 0.7 {
		t.Errorf("thresholds: got %g / %g", cfg.DateThreshold, cfg.MarketThreshold)
	}
	if cfg.FillMethod != "forward" {
		t.Errorf("FillMethod: got %q", cfg.FillMethod)
	}
	if cfg.OverallLabel != model.OverallMarket {
		t.Errorf("OverallLabel: got %q", cfg.OverallLabel)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath should have a default (home dir based) value")
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty without a file, got %q", cfg.ConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// ─── File layer ───────────────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.File{
		DefaultFormat:   "json",
		Timeout:         "15s",
		Concurrency:     2,
		DBPath:          "/tmp/pt.db",
		DateThreshold:   0.4,
		MarketThreshold: 0.9,
		FillMethod:      "none",
		OverallLabel:    model.NationalMarket,
	})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "json" {
		t.Errorf("Format: got %q", cfg.Format)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout: got %v", cfg.Timeout)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency: got %d", cfg.Concurrency)
	}
	if cfg.DBPath != "/tmp/pt.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.DateThreshold != 0.4 || cfg.MarketThreshold != 0.9 {
		t.Errorf("thresholds: got %g / %g", cfg.DateThreshold, cfg.MarketThreshold)
	}
	if cfg.FillMethod != "none" || cfg.OverallLabel != model.NationalMarket {
		t.Errorf("fill/label: got %q / %q", cfg.FillMethod, cfg.OverallLabel)
	}
	if !strings.HasSuffix(cfg.ConfigPath, "config.json") {
		t.Errorf("ConfigPath: got %q", cfg.ConfigPath)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := "default_format: csv\nconcurrency: 3\nfill_method: none\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "csv" || cfg.Concurrency != 3 || cfg.FillMethod != "none" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.ConfigPath, "config.yaml") {
		t.Errorf("ConfigPath: got %q", cfg.ConfigPath)
	}
}

func TestLoadJSONPreferredOverYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("default_format: csv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, config.File{DefaultFormat: "md"})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "md" {
		t.Errorf("config.json should win, got format %q", cfg.Format)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected parse error for malformed config.json")
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Timeout: "not-a-duration"})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should fall back to default, got %v", cfg.Timeout)
	}
}

// ─── Environment layer ────────────────────────────────────────────────────────

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{DBPath: "/from/file.db", Concurrency: 2})
	t.Setenv("PRICETRACK_DB_PATH", "/from/env.db")
	t.Setenv("PRICETRACK_CONCURRENCY", "6")
	t.Setenv("PRICETRACK_MARKET_THRESHOLD", "0.8")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Errorf("DBPath: env should win, got %q", cfg.DBPath)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("Concurrency: env should win, got %d", cfg.Concurrency)
	}
	if cfg.MarketThreshold != 0.8 {
		t.Errorf("MarketThreshold: got %g", cfg.MarketThreshold)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PRICETRACK_OVERALL_LABEL=National\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	// godotenv sets the variable process-wide; register a restore first.
	t.Setenv("PRICETRACK_OVERALL_LABEL", "")
	_ = os.Unsetenv("PRICETRACK_OVERALL_LABEL")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OverallLabel != "National" {
		t.Errorf("OverallLabel from .env: got %q", cfg.OverallLabel)
	}
}

func TestLoadEnvBadNumber(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("PRICETRACK_CONCURRENCY", "lots")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for non-numeric PRICETRACK_CONCURRENCY")
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*config.Config)
		field string
	}{
		{"bad format", func(c *config.Config) { c.Format = "yaml" }, "format"},
		{"zero timeout", func(c *config.Config) { c.Timeout = 0 }, "timeout"},
		{"zero concurrency", func(c *config.Config) { c.Concurrency = 0 }, "concurrency"},
		{"bad url", func(c *config.Config) { c.BaseURL = "not a url" }, "base_url"},
		{"date threshold above one", func(c *config.Config) { c.DateThreshold = 1.5 }, "date_threshold"},
		{"market threshold zero", func(c *config.Config) { c.MarketThreshold = 0 }, "market_threshold"},
		{"bad fill", func(c *config.Config) { c.FillMethod = "linear" }, "fill_method"},
		{"empty label", func(c *config.Config) { c.OverallLabel = "" }, "overall_label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.DBPath = "/tmp/x.db"
			tt.mut(cfg)
			err := cfg.Validate()
			if !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var ce *model.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("expected field %q, got %+v", tt.field, ce)
			}
		})
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	f := config.Template()
	f.DBPath = "/tmp/rt.db"
	if err := config.WriteFile(filepath.Join(dir, "config.json"), f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/rt.db" || cfg.Format != config.DefaultFormat {
		t.Errorf("round trip mismatch: %+v", cfg)
	}
}

func TestWriteFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.WriteFile(path, config.Template()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "fill_method: forward") {
		t.Errorf("expected YAML output, got:\n%s", data)
	}
}

func TestWriteFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.WriteFile(path, config.Template()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()
	if tmpl.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL: got %q", tmpl.BaseURL)
	}
	if tmpl.IndexDataset != config.DefaultIndexDataset {
		t.Errorf("IndexDataset: got %q", tmpl.IndexDataset)
	}
	if tmpl.DBPath != "" {
		t.Errorf("template should leave DBPath empty, got %q", tmpl.DBPath)
	}
}
