package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/model"
)

var countriesCmd = &cobra.Command{
	Use:   "countries [ISO3...]",
	Short: "List countries with WFP price data on HDX",
	Long: `List the entries of the WFP country index: ISO3 code, HDX dataset
identifier and the period the prices cover.

The index is cached in the local store after the first download. Use
--refresh to download it again.`,
	Example: `  pricetrack countries
  pricetrack countries KEN ETH SOM
  pricetrack countries --refresh --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		index, hit, err := countryIndex(cmd.Context(), deps)
		if err != nil {
			return err
		}

		if want := normaliseISO(args); len(want) > 0 {
			keep := make(map[string]bool, len(want))
			for _, w := range want {
				keep[w] = true
			}
			filtered := index[:0:0]
			for _, c := range index {
				if keep[c.ISO3] {
					filtered = append(filtered, c)
				}
			}
			index = filtered
		}

		result := newResult(model.KindCountry, "countries "+strings.Join(args, " "), index, len(index), nil, start)
		result.Stats.CacheHit = hit
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

func init() {
	rootCmd.AddCommand(countriesCmd)
}
