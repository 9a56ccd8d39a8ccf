// Package app wires together configuration, the HDX client, the local store
// and metrics into a single Deps struct that commands receive at runtime.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/derickschaefer/pricetrack/internal/clean"
	"github.com/derickschaefer/pricetrack/internal/config"
	"github.com/derickschaefer/pricetrack/internal/hdx"
	"github.com/derickschaefer/pricetrack/internal/metrics"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is opened lazily by RequireStore so commands that never touch the
// database do not take its file lock.
type Deps struct {
	Config  *config.Config
	Client  *hdx.Client
	Store   *store.Store
	Metrics *metrics.Metrics
}

// New builds a Deps from resolved config and installs the default logger.
func New(cfg *config.Config) *Deps {
	slog.SetDefault(NewLogger(os.Stderr, cfg))
	return &Deps{
		Config:  cfg,
		Client:  hdx.NewClient(cfg.BaseURL, cfg.IndexDataset, cfg.Timeout, cfg.Rate),
		Metrics: metrics.New(),
	}
}

// NewLogger returns a text logger on w: WARN by default, INFO with
// --verbose, DEBUG with --debug.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// RequireStore opens the bbolt database at Config.DBPath if not already open.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	d.Store = s
	return nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() {
	if d.Store != nil {
		_ = d.Store.Close()
		d.Store = nil
	}
}

// PipelineOptions translates the resolved config into pipeline options.
// Selection is left open; commands narrow it from their own flags.
func (d *Deps) PipelineOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.Thresholds = clean.Thresholds{
		Date:   d.Config.DateThreshold,
		Market: d.Config.MarketThreshold,
	}
	method, err := clean.ParseFillMethod(d.Config.FillMethod)
	if err != nil {
		return opts, err
	}
	opts.FillMethod = method
	opts.OverallLabel = d.Config.OverallLabel
	if opts.OverallLabel == "" {
		opts.OverallLabel = model.OverallMarket
	}
	opts.Workers = d.Config.Concurrency
	return opts, nil
}
