package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local data store",
	Long: `Commands for inspecting and clearing the local bbolt database.

The local store keeps the country index and the raw panels downloaded with
'pricetrack fetch' or 'pricetrack panel get'. It is an intentional data store,
not a transparent cache: data persists until you explicitly clear it.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  pricetrack cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		tbl := &render.Table{Headers: []string{"BUCKET", "ROWS", "SIZE"}}
		for _, s := range stats {
			tbl.Rows = append(tbl.Rows, []string{s.Name, strconv.Itoa(s.Count), humanBytes(s.Bytes)})
		}
		format := resolveFormat(deps.Config.Format, "")
		if format == render.FormatTable && !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", deps.Store.Path())
		}
		return emit(cmd, deps, newResult(model.KindTable, "cache stats", tbl, len(tbl.Rows), nil, start), format)
	},
}

// ─── cache list ───────────────────────────────────────────────────────────────

var cacheListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the country panels held in the store",
	Example: `  pricetrack cache list --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		panels, err := deps.Store.ListPanels()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(panels) == 0 && !deps.Config.Quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), "No panels in local store.")
			fmt.Fprintln(cmd.ErrOrStderr(), "  Use: pricetrack fetch <ISO3...>")
		}
		tbl := &render.Table{Headers: []string{"COUNTRY", "ROWS", "FETCHED AT"}}
		for _, p := range panels {
			tbl.Rows = append(tbl.Rows, []string{p.Country, strconv.Itoa(p.Rows), p.FetchedAt.Format("2006-01-02 15:04")})
		}
		return emit(cmd, deps, newResult(model.KindTable, "cache list", tbl, len(tbl.Rows), nil, start), resolveFormat(deps.Config.Format, ""))
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll     bool
	cacheClearBucket  string
	cacheClearCountry string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local store",
	Long: `Delete one stored panel, one bucket, or every bucket.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write. To reclaim disk space,
run 'pricetrack cache compact' after clearing.`,
	Example: `  pricetrack cache clear --all
  pricetrack cache clear --bucket panels
  pricetrack cache clear --country KEN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" && cacheClearCountry == "" {
			return fmt.Errorf("specify --all, --bucket <name> or --country <ISO3>\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		out := cmd.OutOrStdout()
		switch {
		case cacheClearAll:
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(out, "✓ Cleared all buckets")
		case cacheClearCountry != "":
			iso := strings.ToUpper(cacheClearCountry)
			if err := deps.Store.DeletePanel(iso); err != nil {
				return fmt.Errorf("deleting panel %s: %w", iso, err)
			}
			fmt.Fprintf(out, "✓ Deleted panel %s\n", iso)
		default:
			if err := deps.Store.ClearBucket(cacheClearBucket); err != nil {
				return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
			}
			fmt.Fprintf(out, "✓ Cleared bucket %q\n", cacheClearBucket)
		}
		fmt.Fprintln(out, "  Run 'pricetrack cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact rewrites the entire bbolt database to a new file, recovering space
freed by prior 'cache clear' operations.

All live data is copied to a temporary file first, then the original is
replaced. The database remains fully usable after compaction completes.`,
	Example: `  pricetrack cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Compacting %s ...\n", deps.Store.Path())

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		fmt.Fprintf(out, "✓ Compaction complete\n")
		fmt.Fprintf(out, "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(out, "  After:  %s\n", humanBytes(after))
		if saved := before - after; saved > 0 {
			fmt.Fprintf(out, "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(out, "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear all buckets")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear a specific bucket: "+strings.Join(store.AllBuckets, "|"))
	cacheClearCmd.Flags().StringVar(&cacheClearCountry, "country", "", "delete one stored panel by ISO3 code")
}
