package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/clean"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/util"
)

var (
	runSummary    bool
	runMetricsOut string
	runAllDates   bool
	runFillMethod string
	runLabel      string
)

var runCmd = &cobra.Command{
	Use:   "run [ISO3]",
	Short: "Run the whole pipeline: dedup, filter, fill, index, overall (and momentum)",
	Long: `Run every stage over one panel and emit the processed panel, or the
momentum summary with --summary.

The panel comes from the store or HDX when a country code is given, otherwise
from --input or stdin. Without --start the index covers the last two years of
data (clipped to the first date); --all-dates uses the whole panel.

--metrics-out writes per-stage row counts and timings as a Prometheus
textfile, ready for the node_exporter textfile collector.`,
	Example: `  pricetrack run KEN --summary
  pricetrack run KEN --start 2022-01-01 --commodities "Maize (white),Beans" --format csv
  pricetrack run --input ken.csv --all-dates --metrics-out /var/lib/node_exporter/pricetrack.prom`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		opts, err := deps.PipelineOptions()
		if err != nil {
			return err
		}
		if opts.Selection, err = selectionFromFlags(); err != nil {
			return err
		}
		opts.Thresholds = thresholds(deps)
		if runFillMethod != "" {
			if opts.FillMethod, err = clean.ParseFillMethod(runFillMethod); err != nil {
				return err
			}
		}
		if runLabel != "" {
			opts.OverallLabel = runLabel
		}
		opts.Summary = runSummary

		start := time.Now()
		obs, hit, warnings, err := loadPanel(cmd, deps, args)
		if err != nil {
			return err
		}

		if selStart == "" && !runAllDates {
			if from, to, ok := pipeline.DefaultWindow(obs); ok {
				opts.Selection.Start = from
				if opts.Selection.End.IsZero() {
					opts.Selection.End = to
				}
			}
		}

		out, err := pipeline.Run(cmd.Context(), obs, opts, deps.Metrics)
		if err != nil {
			return err
		}
		deps.Metrics.RunsTotal.Inc()
		warnings = append(warnings, out.Warnings...)

		if runMetricsOut != "" {
			if err := deps.Metrics.WriteTextfile(runMetricsOut); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}
		}
		if deps.Config.Verbose && !deps.Config.Quiet {
			printStages(cmd, out)
		}

		var result *model.Result
		if runSummary {
			result = newResult(model.KindSummary, commandLine(cmd, args), out.Summary, len(out.Summary), warnings, start)
		} else {
			result = newResult(model.KindPanel, commandLine(cmd, args), out.Panel, len(out.Panel), warnings, start)
		}
		result.Stats.CacheHit = hit

		pipedDefault := render.FormatJSONL
		if runSummary {
			pipedDefault = ""
		}
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, pipedDefault))
	},
}

// printStages writes the per-stage row counts of a run to stderr.
func printStages(cmd *cobra.Command, out *pipeline.Output) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "run %s\n", out.RunID)
	printSimpleTable(w, []string{"STAGE", "ROWS IN", "ROWS OUT", "ELAPSED"}, func(add func(...string)) {
		for _, s := range out.Stages {
			add(s.Stage, strconv.Itoa(s.RowsIn), strconv.Itoa(s.RowsOut), s.Duration.String())
		}
	})
	p := model.Panel{Obs: out.Panel}
	if from, to, ok := p.DateRange(); ok {
		fmt.Fprintf(w, "panel %s .. %s\n", util.FormatDate(from), util.FormatDate(to))
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	addSelectionFlags(runCmd)
	f.BoolVar(&runSummary, "summary", false, "emit momentum summary records instead of the panel")
	f.StringVar(&runMetricsOut, "metrics-out", "", "write stage metrics to this Prometheus textfile")
	f.BoolVar(&runAllDates, "all-dates", false, "index the whole panel instead of the default two-year window")
	f.Float64Var(&cleanDateThreshold, "date-threshold", 0, "min share of the panel's dates a (market, commodity) pair must cover (default: config, 0.5)")
	f.Float64Var(&cleanMarketThreshold, "market-threshold", 0, "min share of markets a commodity must be carried in (default: config, 0.7)")
	f.StringVar(&runFillMethod, "method", "", "fill method: forward|none (default: config, forward)")
	f.StringVar(&runLabel, "label", "", "market label of the aggregate rows (default: config, Overall)")
}
