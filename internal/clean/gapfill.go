package clean

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// FillMethod selects how missing grid cells are populated.
type FillMethod string

const (
	FillForward FillMethod = "forward"
	FillNone    FillMethod = "none"
)

// ParseFillMethod validates s as a FillMethod.
func ParseFillMethod(s string) (FillMethod, error) {
	switch m := FillMethod(s); m {
	case FillForward, FillNone:
		return m, nil
	default:
		return "", &model.ConfigError{Field: "fill_method", Reason: fmt.Sprintf("unsupported method %q (use forward or none)", s)}
	}
}

// FillOptions configures FillGaps.
type FillOptions struct {
	Method FillMethod
	// Workers bounds the number of series filled concurrently.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int
}

// FillGaps rebuilds the complete monthly calendar × market × commodity grid
// between the panel's first and last month and fills it per series.
//
// Observation dates are anchored to the 15th of their month. With
// FillForward each (market, commodity) series carries its last known price,
// unit and coordinates forward; cells before a series' first observation
// stay empty and are dropped. FillNone keeps only observed cells.
func FillGaps(obs []model.Observation, opts FillOptions) ([]model.Observation, error) {
	if _, err := ParseFillMethod(string(opts.Method)); err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return []model.Observation{}, nil
	}

	panel := model.Panel{Obs: obs}
	first, last, _ := panel.DateRange()
	grid := util.MonthGrid(first, last)
	markets := panel.Markets()
	commodities := panel.Commodities()

	// Left side of the join: first row per anchored (date, market, commodity).
	known := make(map[rowKey]model.Observation, len(obs))
	for _, o := range obs {
		k := rowKey{date: util.MonthAnchor(o.Date), market: o.Market, commodity: o.Commodity}
		if _, dup := known[k]; !dup {
			known[k] = o
		}
	}

	keys := make([]model.SeriesKey, 0, len(markets)*len(commodities))
	for _, m := range markets {
		for _, c := range commodities {
			keys = append(keys, model.SeriesKey{Market: m, Commodity: c})
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	filled := make([][]model.Observation, len(keys))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			filled[i] = fillSeries(key, grid, known, opts.Method)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, s := range filled {
		total += len(s)
	}
	out := make([]model.Observation, 0, total)
	for _, s := range filled {
		out = append(out, s...)
	}
	SortPanel(out)

	slog.Debug("gap fill",
		"method", opts.Method, "months", len(grid), "series", len(keys),
		"rows_in", len(obs), "rows_out", len(out))
	return out, nil
}

// fillSeries walks one (market, commodity) series across the grid.
func fillSeries(key model.SeriesKey, grid []time.Time, known map[rowKey]model.Observation, method FillMethod) []model.Observation {
	var out []model.Observation
	var carry *model.Observation
	for _, d := range grid {
		o, ok := known[rowKey{date: d, market: key.Market, commodity: key.Commodity}]
		if ok {
			o.Date = d
			carry = &o
			out = append(out, o)
			continue
		}
		if method != FillForward || carry == nil {
			continue
		}
		f := *carry
		f.Date = d
		out = append(out, f)
	}
	return out
}
