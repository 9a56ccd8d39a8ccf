package cmd

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/render"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Emit raw price panels",
	Long: `Commands that produce a raw, unprocessed panel. Output defaults to JSONL
when stdout is piped, so panels feed straight into the stage commands:

  pricetrack panel get KEN | pricetrack clean all | pricetrack transform index`,
}

// ─── panel get ────────────────────────────────────────────────────────────────

var panelGetCmd = &cobra.Command{
	Use:   "get <ISO3>",
	Short: "Emit the raw panel of a country (store first, then HDX)",
	Example: `  pricetrack panel get KEN
  pricetrack panel get KEN --refresh --format csv --out ken.csv`,
	Args: cobra.ExactArgs(1),
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
		p := &model.Panel{Country: normaliseISO(args)[0], Obs: obs}
		result := newResult(model.KindPanel, commandLine(cmd, args), p, p.Len(), warnings, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, render.FormatJSONL))
	},
}

// ─── panel load ───────────────────────────────────────────────────────────────

var panelLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Validate a local CSV or JSONL panel and emit it",
	Long: `Read a panel from --input (HDX-style CSV or JSONL) or stdin, validate
every row and emit it in the requested format. With --lenient, malformed
rows are dropped and reported as warnings.`,
	Example: `  pricetrack panel load --input wfp_food_prices_ken.csv
  pricetrack panel load --input ken.csv --price-column price --lenient
  cat ken.jsonl | pricetrack panel load --format table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		start := time.Now()
		obs, warnings, err := readInput(deps, cmd.InOrStdin())
		if err != nil {
			return err
		}
		result := newResult(model.KindPanel, commandLine(cmd, args), obs, len(obs), warnings, start)
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, render.FormatJSONL))
	},
}

// ─── panel options ────────────────────────────────────────────────────────────

var panelOptionsCmd = &cobra.Command{
	Use:   "options [ISO3]",
	Short: "List the markets and commodities of a panel, most rows first",
	Long: `List the selectable markets and commodities of a panel ordered by how
many rows each has, the order offered when choosing an index selection.`,
	Example: `  pricetrack panel options KEN
  pricetrack panel get KEN | pricetrack clean all | pricetrack panel options`,
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
		tbl := optionsTable(obs)
		result := newResult(model.KindTable, commandLine(cmd, args), tbl, len(tbl.Rows), warnings, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

// optionsTable counts rows per market and per commodity, each list sorted by
// descending count then name.
func optionsTable(obs []model.Observation) *render.Table {
	markets := make(map[string]int)
	commodities := make(map[string]int)
	for _, o := range obs {
		markets[o.Market]++
		commodities[o.Commodity]++
	}
	tbl := &render.Table{Headers: []string{"KIND", "NAME", "ROWS"}}
	for _, group := range []struct {
		kind   string
		counts map[string]int
	}{{"market", markets}, {"commodity", commodities}} {
		names := make([]string, 0, len(group.counts))
		for n := range group.counts {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool {
			ci, cj := group.counts[names[i]], group.counts[names[j]]
			if ci != cj {
				return ci > cj
			}
			return strings.Compare(names[i], names[j]) < 0
		})
		for _, n := range names {
			tbl.Rows = append(tbl.Rows, []string{group.kind, n, strconv.Itoa(group.counts[n])})
		}
	}
	return tbl
}

func init() {
	rootCmd.AddCommand(panelCmd)
	panelCmd.AddCommand(panelGetCmd)
	panelCmd.AddCommand(panelLoadCmd)
	panelCmd.AddCommand(panelOptionsCmd)
}
