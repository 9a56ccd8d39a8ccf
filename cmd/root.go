// Package cmd implements the pricetrack CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/app"
	"github.com/derickschaefer/pricetrack/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format      string
	Out         string
	Input       string
	NoCache     bool
	Refresh     bool
	Lenient     bool
	Timeout     string
	Concurrency int
	Rate        float64
	DBPath      string
	PriceColumn string
	Quiet       bool
	Verbose     bool
	Debug       bool
}

// rootCmd is the base command. Running `pricetrack` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "pricetrack",
	Short: "pricetrack — WFP food price panels, cleaned and summarised",
	Long: `pricetrack downloads World Food Programme market price panels from the
Humanitarian Data Exchange (HDX) and turns them into a clean monthly panel,
a per-market Food Price Index and latest-value momentum summaries.

Data sourced from the WFP Global Market Monitor via HDX;
https://data.humdata.org/dataset/global-wfp-food-prices

Quick start:
  pricetrack countries                 # list countries with price data
  pricetrack fetch KEN ETH             # download and store two panels
  pricetrack run KEN --summary         # full pipeline, momentum summary
  pricetrack panel get KEN | pricetrack clean all | pricetrack transform index`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	if globalFlags.PriceColumn != "" {
		cfg.PriceColumn = globalFlags.PriceColumn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(cfg), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md|xlsx (default: table, jsonl for piped panels)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Input, "input", "",
		"read the panel from a file (.csv or .jsonl) instead of stdin or the store")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"bypass store reads (still writes fetched panels)")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite stored panels")
	pf.BoolVar(&globalFlags.Lenient, "lenient", false,
		"skip malformed input rows with a warning instead of failing")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel downloads and per-series workers (default: 4)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max HDX requests per second (default: 2.0)")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"path to the local bbolt store (default: ~/.pricetrack/pricetrack.db)")
	pf.StringVar(&globalFlags.PriceColumn, "price-column", "",
		"CSV column read as the price (default: usdprice, falling back to price)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats and INFO logs")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and per-stage row counts")
}
