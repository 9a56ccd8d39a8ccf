// Package model defines the canonical data types used throughout pricetrack.
// These types are the single source of truth for price observations, derived
// summaries, and the result envelope that every command returns.
package model

import (
	"time"
)

// ─── Synthetic Labels ────────────────────────────────────────────────────────

const (
	// IndexCommodity labels the composite row produced by the index builder.
	IndexCommodity = "Food Price Index"
	// IndexUnit is the unit carried by IndexCommodity rows.
	IndexUnit = "AGG"
	// OverallMarket is the default label of the cross-market mean.
	OverallMarket = "Overall"
	// NationalMarket is the alternative cross-market label.
	NationalMarket = "National"
)

// ─── Panel Types ──────────────────────────────────────────────────────────────

// Observation is a single price reading for one market and commodity.
// Date carries month-level semantics; the day component is not meaningful
// until the gap filler anchors it to the 15th.
type Observation struct {
	Date      time.Time `json:"date"`
	Market    string    `json:"market"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Commodity string    `json:"commodity"`
	Unit      string    `json:"unit"`
	Price     float64   `json:"price"`
}

// SeriesKey identifies one (market, commodity) time line in a panel.
type SeriesKey struct {
	Market    string
	Commodity string
}

// Key returns the series key of o.
func (o Observation) Key() SeriesKey {
	return SeriesKey{Market: o.Market, Commodity: o.Commodity}
}

// UnitSeriesKey identifies a (market, commodity, unit) series, the grouping
// used by the momentum summarizer.
type UnitSeriesKey struct {
	Market    string
	Commodity string
	Unit      string
}

// Panel is the ordered collection of observations threaded through the
// pipeline. Stages never mutate a Panel they receive.
type Panel struct {
	Country string        `json:"country,omitempty"`
	Obs     []Observation `json:"observations"`
}

// Len returns the number of rows in the panel.
func (p *Panel) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Obs)
}

// Markets returns the distinct market names in first-seen order.
func (p *Panel) Markets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range p.Obs {
		if !seen[o.Market] {
			seen[o.Market] = true
			out = append(out, o.Market)
		}
	}
	return out
}

// Commodities returns the distinct commodity names in first-seen order.
func (p *Panel) Commodities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range p.Obs {
		if !seen[o.Commodity] {
			seen[o.Commodity] = true
			out = append(out, o.Commodity)
		}
	}
	return out
}

// DateRange returns the minimum and maximum observation dates.
// ok is false for an empty panel.
func (p *Panel) DateRange() (min, max time.Time, ok bool) {
	if p.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	min, max = p.Obs[0].Date, p.Obs[0].Date
	for _, o := range p.Obs[1:] {
		if o.Date.Before(min) {
			min = o.Date
		}
		if o.Date.After(max) {
			max = o.Date
		}
	}
	return min, max, true
}

// Country describes one entry of the WFP country index.
type Country struct {
	ISO3          string    `json:"iso3"`
	HDXIdentifier string    `json:"hdx_identifier"`
	URL           string    `json:"url"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// ─── Derived Types ────────────────────────────────────────────────────────────

// SummaryRecord is the latest-value snapshot of one (market, commodity, unit)
// series. A nil change means the comparison point does not exist.
type SummaryRecord struct {
	Market    string    `json:"market"`
	Commodity string    `json:"commodity"`
	Unit      string    `json:"unit"`
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	MoM       *float64  `json:"mom"`
	QoQ       *float64  `json:"qoq"`
	YoY       *float64  `json:"yoy"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindPanel   = "panel"
	KindSummary = "summary"
	KindTrend   = "trend"
	KindStats   = "stats"
	KindCountry = "country"
	KindTable   = "table"
)
