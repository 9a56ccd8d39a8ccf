package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/app"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/transform"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Derive index and cross-market rows (reads JSONL from stdin)",
	Long: `Transform operators read a cleaned panel and append derived rows.

Pipeline example:
  pricetrack clean all KEN | pricetrack transform index --start 2023-01-01
  pricetrack clean all KEN | pricetrack transform index | pricetrack transform overall`,
}

var (
	selStart       string
	selEnd         string
	selMarkets     string
	selCommodities string
	overallLabel   string
)

// selectionFromFlags builds an index selection from --start, --end,
// --markets and --commodities. Unset flags leave that axis unrestricted.
func selectionFromFlags() (transform.Selection, error) {
	start, err := parseDateFlag("start", selStart)
	if err != nil {
		return transform.Selection{}, err
	}
	end, err := parseDateFlag("end", selEnd)
	if err != nil {
		return transform.Selection{}, err
	}
	sel := transform.Selection{
		Start:       start,
		End:         end,
		Markets:     splitList(selMarkets),
		Commodities: splitList(selCommodities),
	}
	return sel, sel.Validate()
}

func addSelectionFlags(c *cobra.Command) {
	c.Flags().StringVar(&selStart, "start", "", "first month of the index window (YYYY-MM or YYYY-MM-DD, inclusive)")
	c.Flags().StringVar(&selEnd, "end", "", "last month of the index window (YYYY-MM or YYYY-MM-DD, inclusive)")
	c.Flags().StringVar(&selMarkets, "markets", "", "comma-separated markets to include (default: all)")
	c.Flags().StringVar(&selCommodities, "commodities", "", "comma-separated commodities to sum (default: all)")
}

// ─── transform index ──────────────────────────────────────────────────────────

var transformIndexCmd = &cobra.Command{
	Use:   "index [ISO3]",
	Short: "Append a per-market Food Price Index: the sum of selected commodity prices",
	Example: `  pricetrack clean all KEN | pricetrack transform index
  pricetrack clean all KEN | pricetrack transform index --commodities "Maize,Beans" --start 2023-01-01`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selectionFromFlags()
		if err != nil {
			return err
		}
		return runOperator(cmd, args, func(_ *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			out, err := transform.BuildIndex(obs, sel)
			return out, nil, err
		})
	},
}

// ─── transform overall ────────────────────────────────────────────────────────

var transformOverallCmd = &cobra.Command{
	Use:   "overall [ISO3]",
	Short: "Append the cross-market mean of every (date, commodity, unit)",
	Example: `  pricetrack clean all KEN | pricetrack transform index | pricetrack transform overall
  pricetrack clean all KEN | pricetrack transform overall --label National`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperator(cmd, args, func(deps *app.Deps, obs []model.Observation) ([]model.Observation, []string, error) {
			label := deps.Config.OverallLabel
			if overallLabel != "" {
				label = overallLabel
			}
			return transform.AddOverall(obs, label), nil, nil
		})
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.AddCommand(transformIndexCmd)
	transformCmd.AddCommand(transformOverallCmd)

	addSelectionFlags(transformIndexCmd)
	transformOverallCmd.Flags().StringVar(&overallLabel, "label", "", "market label of the aggregate rows (default: config, Overall)")
}
