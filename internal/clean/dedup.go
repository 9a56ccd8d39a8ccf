// Package clean implements the panel cleaning stages: unit deduplication,
// abundance filtering and calendar gap filling. Each stage is a pure function
// over a slice of Observations and returns a new slice; no I/O.
package clean

import (
	"sort"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
)

// ─── Canonical Units ──────────────────────────────────────────────────────────

// CanonicalUnits returns, per commodity, the unit with the highest row count.
// Ties go to the lexicographically smallest unit name so the choice does not
// depend on input order.
func CanonicalUnits(obs []model.Observation) map[string]string {
	counts := make(map[string]map[string]int)
	for _, o := range obs {
		byUnit, ok := counts[o.Commodity]
		if !ok {
			byUnit = make(map[string]int)
			counts[o.Commodity] = byUnit
		}
		byUnit[o.Unit]++
	}

	out := make(map[string]string, len(counts))
	for commodity, byUnit := range counts {
		best, bestN := "", -1
		for unit, n := range byUnit {
			if n > bestN || (n == bestN && unit < best) {
				best, bestN = unit, n
			}
		}
		out[commodity] = best
	}
	return out
}

// ─── Deduplicate ──────────────────────────────────────────────────────────────

type rowKey struct {
	date      time.Time
	market    string
	commodity string
}

// Deduplicate collapses each commodity to its canonical unit and keeps the
// first-seen row per (date, market, commodity). The output is sorted by
// date, market and commodity; running it on its own output is a no-op.
func Deduplicate(obs []model.Observation) []model.Observation {
	units := CanonicalUnits(obs)

	seen := make(map[rowKey]bool, len(obs))
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Unit != units[o.Commodity] {
			continue
		}
		k := rowKey{date: o.Date, market: o.Market, commodity: o.Commodity}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, o)
	}

	SortPanel(out)
	return out
}

// SortPanel orders observations by date, then market, then commodity.
// The sort is stable so equal keys keep their relative order.
func SortPanel(obs []model.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Commodity < b.Commodity
	})
}
