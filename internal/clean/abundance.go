package clean

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
)

// Default abundance thresholds.
const (
	DefaultDateThreshold   = 0.5
	DefaultMarketThreshold = 0.7
)

// Thresholds holds the abundance filter configuration. Both values are
// fractions in (0, 1].
type Thresholds struct {
	Date   float64 `json:"date_abundance_threshold"`
	Market float64 `json:"market_abundance_threshold"`
}

// DefaultThresholds returns the default abundance configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{Date: DefaultDateThreshold, Market: DefaultMarketThreshold}
}

// Validate reports a configuration error if either threshold is outside (0, 1].
func (t Thresholds) Validate() error {
	if !(t.Date > 0 && t.Date <= 1) {
		return &model.ConfigError{Field: "date_abundance_threshold", Reason: fmt.Sprintf("must be in (0,1], got %g", t.Date)}
	}
	if !(t.Market > 0 && t.Market <= 1) {
		return &model.ConfigError{Field: "market_abundance_threshold", Reason: fmt.Sprintf("must be in (0,1], got %g", t.Market)}
	}
	return nil
}

// FilterMajor keeps only "major" series. Rule 1 drops (market, commodity)
// pairs observed on fewer than t.Date of the panel's distinct dates. Rule 2
// then drops commodities carried by fewer than t.Market of the markets that
// survived Rule 1. An empty result is valid.
func FilterMajor(obs []model.Observation, t Thresholds) ([]model.Observation, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	stage1 := filterByDateCoverage(obs, t.Date)
	out := filterByMarketCoverage(stage1, t.Market)

	slog.Debug("abundance filter",
		"rows_in", len(obs), "rows_after_dates", len(stage1), "rows_out", len(out))
	return out, nil
}

// filterByDateCoverage applies Rule 1.
func filterByDateCoverage(obs []model.Observation, threshold float64) []model.Observation {
	allDates := make(map[time.Time]bool)
	pairDates := make(map[model.SeriesKey]map[time.Time]bool)
	for _, o := range obs {
		allDates[o.Date] = true
		dates, ok := pairDates[o.Key()]
		if !ok {
			dates = make(map[time.Time]bool)
			pairDates[o.Key()] = dates
		}
		dates[o.Date] = true
	}

	need := threshold * float64(len(allDates))
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if float64(len(pairDates[o.Key()])) >= need {
			out = append(out, o)
		}
	}
	return out
}

// filterByMarketCoverage applies Rule 2.
func filterByMarketCoverage(obs []model.Observation, threshold float64) []model.Observation {
	allMarkets := make(map[string]bool)
	commodityMarkets := make(map[string]map[string]bool)
	for _, o := range obs {
		allMarkets[o.Market] = true
		markets, ok := commodityMarkets[o.Commodity]
		if !ok {
			markets = make(map[string]bool)
			commodityMarkets[o.Commodity] = markets
		}
		markets[o.Market] = true
	}

	need := threshold * float64(len(allMarkets))
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if float64(len(commodityMarkets[o.Commodity])) >= need {
			out = append(out, o)
		}
	}
	return out
}
