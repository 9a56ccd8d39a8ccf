package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/analyze"
	"github.com/derickschaefer/pricetrack/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarise a processed panel (reads JSONL from stdin)",
	Long: `Analyze operators read a panel and print per-series results.

Examples:
  pricetrack clean all KEN | pricetrack transform index | pricetrack transform overall | pricetrack analyze momentum
  pricetrack clean all KEN | pricetrack analyze trend --method theil-sen
  pricetrack panel get KEN | pricetrack analyze describe`,
}

// ─── analyze momentum ─────────────────────────────────────────────────────────

var analyzeMomentumCmd = &cobra.Command{
	Use:   "momentum [ISO3]",
	Short: "Latest price per series with month, quarter and year-on-year change",
	Example: `  pricetrack run KEN | pricetrack analyze momentum
  pricetrack analyze momentum --input processed.jsonl --format csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		obs, hit, warnings, err := loadPanel(cmd, deps, args)
		if err != nil {
			return err
		}
		recs, err := analyze.Momentum(obs, deps.Config.Concurrency)
		if err != nil {
			return err
		}
		result := newResult(model.KindSummary, commandLine(cmd, args), recs, len(recs), warnings, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var analyzeTrendMethod string

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend [ISO3]",
	Short: "Fit a linear or Theil-Sen trend to every (market, commodity, unit) series",
	Example: `  pricetrack clean all KEN | pricetrack analyze trend
  pricetrack clean all KEN | pricetrack analyze trend --method theil-sen --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := analyze.ParseTrendMethod(analyzeTrendMethod)
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		obs, hit, warnings, err := loadPanel(cmd, deps, args)
		if err != nil {
			return err
		}
		trends, trendWarnings := analyze.Trends(obs, method)
		warnings = append(warnings, trendWarnings...)
		result := newResult(model.KindTrend, commandLine(cmd, args), trends, len(trends), warnings, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

// ─── analyze describe ─────────────────────────────────────────────────────────

var analyzeDescribeCmd = &cobra.Command{
	Use:   "describe [ISO3]",
	Short: "Descriptive statistics per series: count, mean, std, quantiles, change",
	Example: `  pricetrack panel get KEN | pricetrack analyze describe
  pricetrack clean all KEN | pricetrack analyze describe --format md`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		obs, hit, warnings, err := loadPanel(cmd, deps, args)
		if err != nil {
			return err
		}
		stats := analyze.Describe(obs)
		result := newResult(model.KindStats, commandLine(cmd, args), stats, len(stats), warnings, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeMomentumCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)
	analyzeCmd.AddCommand(analyzeDescribeCmd)

	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", string(analyze.TrendLinear), "trend estimator: linear|theil-sen")
}
