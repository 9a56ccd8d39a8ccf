package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/app"
	"github.com/derickschaefer/pricetrack/internal/hdx"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// normaliseISO upper-cases all country codes and removes duplicates while
// preserving order.
func normaliseISO(codes []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// splitList parses a comma-separated flag value, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDateFlag parses an optional date flag; empty yields the zero time.
func parseDateFlag(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := util.ParseDate(s)
	if err != nil {
		return time.Time{}, &model.ConfigError{Field: name, Reason: err.Error()}
	}
	return d, nil
}

// resolveFormat returns the effective format string. An explicit --format
// always wins; otherwise panel-producing commands default to pipedDefault
// when stdout is not a terminal so they compose in shell pipes.
func resolveFormat(cfgFormat, pipedDefault string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if pipedDefault != "" && globalFlags.Out == "" && !pipeline.IsTTY() {
		return pipedDefault
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the destination for command output: a file when
// --out is set, otherwise def. The returned closer is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result to the command's output and prints warnings and the
// verbose footer to stderr.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result, format string) error {
	if format == render.FormatXLSX && globalFlags.Out == "" && pipeline.IsTTY() {
		return fmt.Errorf("xlsx output is binary; use --out <file>.xlsx")
	}
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := render.Render(w, result, format); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data interface{}, items int, warnings []string, started time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Warnings:    warnings,
		Stats: model.ResultStats{
			DurationMs: time.Since(started).Milliseconds(),
			Items:      items,
		},
	}
}

// commandLine reconstructs "<command path> <args>" without the binary name.
func commandLine(cmd *cobra.Command, args []string) string {
	path := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
	return strings.TrimSpace(path + " " + strings.Join(args, " "))
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// ─── Panel sources ────────────────────────────────────────────────────────────

// readInput reads a panel from --input, or from in when --input is empty or
// "-". Files ending in .csv are parsed as HDX CSV; everything else as JSONL.
func readInput(deps *app.Deps, in io.Reader) ([]model.Observation, []string, error) {
	schema := pipeline.SchemaOptions{Lenient: globalFlags.Lenient}
	path := globalFlags.Input
	if path == "" || path == "-" {
		return pipeline.ReadPanel(in, schema)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return hdx.ParseCSV(f, deps.Config.PriceColumn, schema)
	}
	return pipeline.ReadPanel(f, schema)
}

// countryIndex returns the HDX country index, from the store when cached
// unless --no-cache or --refresh is set. Fresh downloads are written back.
func countryIndex(ctx context.Context, deps *app.Deps) ([]model.Country, bool, error) {
	if err := deps.RequireStore(); err != nil {
		return nil, false, err
	}
	if !deps.Config.NoCache && !deps.Config.Refresh {
		cached, _, found, err := deps.Store.GetCountries()
		if err != nil {
			return nil, false, fmt.Errorf("reading store: %w", err)
		}
		if found {
			return cached, true, nil
		}
	}
	index, err := deps.Client.CountryIndex(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := deps.Store.PutCountries(index); err != nil {
		return nil, false, fmt.Errorf("caching country index: %w", err)
	}
	return index, false, nil
}

// downloadPanel resolves iso3 through the index and downloads its panel.
func downloadPanel(ctx context.Context, deps *app.Deps, index []model.Country, iso3 string) (*model.Panel, []string, error) {
	country, err := hdx.FindCountry(index, iso3)
	if err != nil {
		return nil, nil, err
	}
	p, warnings, err := deps.Client.CountryPanel(ctx, country, hdx.PanelOptions{
		PriceColumn: deps.Config.PriceColumn,
		Schema:      pipeline.SchemaOptions{Lenient: globalFlags.Lenient},
	})
	deps.Metrics.ObserveFetch(iso3, err == nil)
	return p, warnings, err
}

// countryPanel returns the raw panel for iso3 from the store, downloading
// and storing it on a miss (or always, with --refresh).
func countryPanel(ctx context.Context, deps *app.Deps, iso3 string) (*model.Panel, bool, []string, error) {
	if err := deps.RequireStore(); err != nil {
		return nil, false, nil, err
	}
	if !deps.Config.NoCache && !deps.Config.Refresh {
		p, _, found, err := deps.Store.GetPanel(iso3)
		if err != nil {
			return nil, false, nil, fmt.Errorf("reading store: %w", err)
		}
		if found {
			return &p, true, nil, nil
		}
	}
	index, _, err := countryIndex(ctx, deps)
	if err != nil {
		return nil, false, nil, err
	}
	p, warnings, err := downloadPanel(ctx, deps, index, iso3)
	if err != nil {
		return nil, false, nil, err
	}
	if err := deps.Store.PutPanel(*p); err != nil {
		return nil, false, nil, fmt.Errorf("storing panel: %w", err)
	}
	return p, false, warnings, nil
}

// loadPanel resolves the panel a pipeline command works on: a stored or
// downloaded country when an ISO3 argument is given, otherwise --input or
// stdin.
func loadPanel(cmd *cobra.Command, deps *app.Deps, args []string) ([]model.Observation, bool, []string, error) {
	if len(args) > 0 {
		iso := normaliseISO(args)
		if len(iso) != 1 {
			return nil, false, nil, fmt.Errorf("expected exactly one country code, got %d", len(iso))
		}
		p, hit, warnings, err := countryPanel(cmd.Context(), deps, iso[0])
		if err != nil {
			return nil, false, nil, err
		}
		return p.Obs, hit, warnings, nil
	}
	obs, warnings, err := readInput(deps, cmd.InOrStdin())
	return obs, false, warnings, err
}

// ─── Stage operators ──────────────────────────────────────────────────────────

// stageFunc transforms a panel; returned warnings are appended to the result.
type stageFunc func(deps *app.Deps, obs []model.Observation) ([]model.Observation, []string, error)

// runOperator is the shared body of the clean/transform stage commands: read
// a panel, apply fn, emit the resulting panel (JSONL when piped).
func runOperator(cmd *cobra.Command, args []string, fn stageFunc) error {
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
	out, stageWarnings, err := fn(deps, obs)
	if err != nil {
		return err
	}
	warnings = append(warnings, stageWarnings...)
	if len(out) == 0 && len(obs) > 0 {
		warnings = append(warnings, "no rows remain after "+cmd.Name())
	}
	result := newResult(model.KindPanel, commandLine(cmd, args), out, len(out), warnings, start)
	result.Stats.CacheHit = hit
	return emit(cmd, deps, result, resolveFormat(deps.Config.Format, render.FormatJSONL))
}
