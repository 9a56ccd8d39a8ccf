package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/util"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <ISO3...>",
	Short: "Download country price panels into the local store",
	Long: `Download the WFP price panel of every listed country from HDX and write
them to the local store in a single transaction.

Downloads run concurrently up to --concurrency and are rate limited by --rate.
A country that fails does not stop the others; failures are reported and
the command exits non-zero only when nothing could be fetched.`,
	Example: `  pricetrack fetch KEN
  pricetrack fetch KEN ETH SOM --concurrency 3
  pricetrack fetch KEN --price-column price --lenient`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		codes := normaliseISO(args)
		ctx := cmd.Context()

		index, _, err := countryIndex(ctx, deps)
		if err != nil {
			return err
		}

		type outcome struct {
			panel    *model.Panel
			warnings []string
			err      error
		}
		results := make([]outcome, len(codes))

		// Per-country errors are collected, not returned, so one failure
		// does not cancel the remaining downloads.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(deps.Config.Concurrency)
		for i, code := range codes {
			i, code := i, code
			g.Go(func() error {
				p, warnings, err := downloadPanel(gctx, deps, index, code)
				results[i] = outcome{panel: p, warnings: warnings, err: err}
				return nil
			})
		}
		_ = g.Wait()

		var (
			panels   []model.Panel
			warnings []string
			errs     util.MultiError
		)
		tbl := &render.Table{Headers: []string{"ISO3", "ROWS", "MARKETS", "COMMODITIES", "STATUS"}}
		for i, r := range results {
			if r.err != nil {
				errs.Add(fmt.Errorf("%s: %w", codes[i], r.err))
				tbl.Rows = append(tbl.Rows, []string{codes[i], "", "", "", "error"})
				continue
			}
			panels = append(panels, *r.panel)
			for _, w := range r.warnings {
				warnings = append(warnings, codes[i]+": "+w)
			}
			tbl.Rows = append(tbl.Rows, []string{
				codes[i],
				strconv.Itoa(r.panel.Len()),
				strconv.Itoa(len(r.panel.Markets())),
				strconv.Itoa(len(r.panel.Commodities())),
				"ok",
			})
		}

		if len(panels) > 0 {
			if err := deps.Store.PutPanelBatch(panels); err != nil {
				return fmt.Errorf("storing panels: %w", err)
			}
		}
		if len(panels) == 0 {
			return errs.Err()
		}
		if err := errs.Err(); err != nil {
			warnings = append(warnings, err.Error())
		}

		result := newResult(model.KindTable, "fetch "+strings.Join(codes, " "), tbl, len(panels), warnings, start)
		return emit(cmd, deps, result, resolveFormat(deps.Config.Format, ""))
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
