package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/app"
	"github.com/derickschaefer/pricetrack/internal/clean"
	"github.com/derickschaefer/pricetrack/internal/model"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean a raw panel (reads JSONL from stdin or a country code)",
	Long: `Cleaning operators read a panel from stdin, --input or the store (when a
country code is given) and write the cleaned panel to stdout.

Pipeline example:
  pricetrack panel get KEN | pricetrack clean dedup | pricetrack clean filter | pricetrack clean fill
  pricetrack clean all KEN --format table`,
}

var (
	cleanDateThreshold   float64
	cleanMarketThreshold float64
	cleanFillMethod      string
)

// thresholds returns the configured abundance thresholds with any flag
// overrides applied.
func thresholds(deps *app.Deps) clean.Thresholds {
	t := clean.Thresholds{Date: deps.Config.DateThreshold, Market: deps.Config.MarketThreshold}
	if cleanDateThreshold > 0 {
		t.Date = cleanDateThreshold
	}
	if cleanMarketThreshold > 0 {
		t.Market = cleanMarketThreshold
	}
	return t
}

func fillOptions(deps *app.Deps) (clean.FillOptions, error) {
	name := deps.Config.FillMethod
	if cleanFillMethod != "" {
		name = cleanFillMethod
	}
	method, err := clean.ParseFillMethod(name)
	if err != nil {
		return clean.FillOptions{}, err
	}
	return clean.FillOptions{Method: method, Workers: deps.Config.Concurrency}, nil
}

// ─── clean dedup ──────────────────────────────────────────────────────────────

var cleanDedupCmd = &cobra.Command{
	Use:   "dedup [ISO3]",
	Short: "Keep one canonical unit per commodity and one row per (date, market, commodity)",
	Example: `  pricetrack panel get KEN | pricetrack clean dedup
  pricetrack clean dedup --input ken.csv --format table`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperator(cmd, args, func(_ *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			return clean.Deduplicate(obs), nil, nil
		})
	},
}

// ─── clean filter ─────────────────────────────────────────────────────────────

var cleanFilterCmd = &cobra.Command{
	Use:   "filter [ISO3]",
	Short: "Drop sparse dates, then markets with low commodity coverage",
	Example: `  pricetrack panel get KEN | pricetrack clean dedup | pricetrack clean filter
  pricetrack clean filter KEN --date-threshold 0.4 --market-threshold 0.8`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperator(cmd, args, func(deps *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			out, err := clean.FilterMajor(obs, thresholds(deps))
			return out, nil, err
		})
	},
}

// ─── clean fill ───────────────────────────────────────────────────────────────

var cleanFillCmd = &cobra.Command{
	Use:   "fill [ISO3]",
	Short: "Complete every (market, commodity) series on the monthly grid",
	Example: `  pricetrack panel get KEN | pricetrack clean all --method none | pricetrack clean fill
  pricetrack clean fill --input filtered.jsonl --method forward`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperator(cmd, args, func(deps *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			opts, err := fillOptions(deps)
			if err != nil {
				return nil, nil, err
			}
			out, err := clean.FillGaps(obs, opts)
			return out, nil, err
		})
	},
}

// ─── clean all ────────────────────────────────────────────────────────────────

var cleanAllCmd = &cobra.Command{
	Use:   "all [ISO3]",
	Short: "Run dedup, filter and fill in sequence",
	Example: `  pricetrack panel get KEN | pricetrack clean all
  pricetrack clean all KEN --format csv --out ken_clean.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperator(cmd, args, func(deps *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			opts, err := fillOptions(deps)
			if err != nil {
				return nil, nil, err
			}
			t := thresholds(deps)
			if err := t.Validate(); err != nil {
				return nil, nil, err
			}
			out := clean.Deduplicate(obs)
			if out, err = clean.FilterMajor(out, t); err != nil {
				return nil, nil, err
			}
			out, err = clean.FillGaps(out, opts)
			return out, nil, err
		})
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.AddCommand(cleanDedupCmd)
	cleanCmd.AddCommand(cleanFilterCmd)
	cleanCmd.AddCommand(cleanFillCmd)
	cleanCmd.AddCommand(cleanAllCmd)

	for _, c := range []*cobra.Command{cleanFilterCmd, cleanAllCmd} {
		c.Flags().Float64Var(&cleanDateThreshold, "date-threshold", 0, "min share of the panel's dates a (market, commodity) pair must cover (default: config, 0.5)")
		c.Flags().Float64Var(&cleanMarketThreshold, "market-threshold", 0, "min share of markets a commodity must be carried in (default: config, 0.7)")
	}
	for _, c := range []*cobra.Command{cleanFillCmd, cleanAllCmd} {
		c.Flags().StringVar(&cleanFillMethod, "method", "", "fill method: forward|none (default: config, forward)")
	}
}
