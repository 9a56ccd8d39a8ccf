// Package transform implements the aggregation operators that run after
// cleaning: composite index construction over a selection and the
// cross-market mean. Each operator is a pure function; no side effects, no I/O.
package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// ─── Selection ────────────────────────────────────────────────────────────────

// Selection restricts a panel to a date range, market set and commodity set.
// Zero dates and empty sets impose no restriction. Dates compare by month,
// so 2022-03-01 and 2022-03-15 select the same month.
type Selection struct {
	Start       time.Time // inclusive lower month (zero = none)
	End         time.Time // inclusive upper month (zero = none)
	Markets     []string
	Commodities []string
}

// Validate reports a configuration error for an inverted date range.
func (s Selection) Validate() error {
	if !s.Start.IsZero() && !s.End.IsZero() && util.MonthAnchor(s.End).Before(util.MonthAnchor(s.Start)) {
		return &model.ConfigError{
			Field:  "date_range",
			Reason: fmt.Sprintf("end %s is before start %s", util.FormatDate(s.End), util.FormatDate(s.Start)),
		}
	}
	return nil
}

// Matches reports whether o falls inside the selection.
func (s Selection) Matches(o model.Observation) bool {
	month := util.MonthAnchor(o.Date)
	if !s.Start.IsZero() && month.Before(util.MonthAnchor(s.Start)) {
		return false
	}
	if !s.End.IsZero() && month.After(util.MonthAnchor(s.End)) {
		return false
	}
	if len(s.Markets) > 0 && !contains(s.Markets, o.Market) {
		return false
	}
	if len(s.Commodities) > 0 && !contains(s.Commodities, o.Commodity) {
		return false
	}
	return true
}

// Apply returns the rows of obs that match the selection.
func (s Selection) Apply(obs []model.Observation) []model.Observation {
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if s.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// ─── Food Price Index ─────────────────────────────────────────────────────────

type dateMarket struct {
	date   time.Time
	market string
}

// BuildIndex restricts obs to sel and appends one IndexCommodity row per
// (date, market) whose price is the sum of the selected commodities present
// in that month. A commodity missing from a month is skipped rather than
// making the index undefined. Coordinates come from the market's first row.
// Existing index rows are dropped and rebuilt, never summed.
func BuildIndex(obs []model.Observation, sel Selection) ([]model.Observation, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	base := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Commodity != model.IndexCommodity {
			base = append(base, o)
		}
	}
	selected := sel.Apply(base)

	sums := make(map[dateMarket]*model.Observation)
	var order []dateMarket
	for _, o := range selected {
		k := dateMarket{date: o.Date, market: o.Market}
		row, ok := sums[k]
		if !ok {
			row = &model.Observation{
				Date:      o.Date,
				Market:    o.Market,
				Latitude:  o.Latitude,
				Longitude: o.Longitude,
				Commodity: model.IndexCommodity,
				Unit:      model.IndexUnit,
			}
			sums[k] = row
			order = append(order, k)
		}
		row.Price += o.Price
	}

	sort.SliceStable(order, func(i, j int) bool {
		if !order[i].date.Equal(order[j].date) {
			return order[i].date.Before(order[j].date)
		}
		return order[i].market < order[j].market
	})

	out := make([]model.Observation, 0, len(selected)+len(order))
	out = append(out, selected...)
	for _, k := range order {
		out = append(out, *sums[k])
	}
	return out, nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
