// Package analyze derives per-series statistics from a cleaned panel:
// latest-value momentum, descriptive summaries and trend fits. All
// functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one (market, commodity, unit)
// series.
type Summary struct {
	Market    string    `json:"market"`
	Commodity string    `json:"commodity"`
	Unit      string    `json:"unit"`
	Count     int       `json:"count"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Min       float64   `json:"min"`
	P25       float64   `json:"p25"`
	Median    float64   `json:"median"`
	P75       float64   `json:"p75"`
	Max       float64   `json:"max"`
	Skew      float64   `json:"skew"`
	First     float64   `json:"first"`      // price at Start
	Last      float64   `json:"last"`       // price at End
	Change    float64   `json:"change"`     // Last - First
	ChangePct *float64  `json:"change_pct"` // (Last-First)/|First| * 100, nil when First is 0
}

// Describe computes a Summary for every series in obs, ordered by market,
// commodity and unit. Duplicate dates within a series are averaged.
func Describe(obs []model.Observation) []Summary {
	keys, groups := splitSeries(obs)
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		out = append(out, Summarize(k, groups[k]))
	}
	return out
}

// Summarize computes descriptive statistics over one series.
func Summarize(k model.UnitSeriesKey, rows []model.Observation) Summary {
	s := Summary{Market: k.Market, Commodity: k.Commodity, Unit: k.Unit}
	if len(rows) == 0 {
		return s
	}
	pts := collapseDates(rows)
	s.Count = len(pts)

	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.price
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Start = pts[0].date
	s.End = pts[len(pts)-1].date
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sumF(vals) / float64(len(vals))
	s.Std = stddevF(vals, s.Mean)
	s.Median = percentile(sorted, 50)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)
	s.Skew = skewness(vals, s.Mean, s.Std)

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		pct := s.Change / math.Abs(s.First) * 100
		s.ChangePct = &pct
	}
	return s
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// ParseTrendMethod validates s as a TrendMethod.
func ParseTrendMethod(s string) (TrendMethod, error) {
	switch m := TrendMethod(s); m {
	case TrendLinear, TrendTheilSen:
		return m, nil
	default:
		return "", &model.ConfigError{Field: "method", Reason: fmt.Sprintf("unknown trend method %q (use linear or theil-sen)", s)}
	}
}

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Market       string      `json:"market"`
	Commodity    string      `json:"commodity"`
	Unit         string      `json:"unit"`
	Method       TrendMethod `json:"method"`
	Points       int         `json:"points"`
	Slope        float64     `json:"slope"` // price units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
	// PctPerYear is SlopePerYear relative to the series mean, in percent.
	// Nil when the mean is 0.
	PctPerYear *float64 `json:"pct_per_year"`
}

// flatBand is the yearly drift, as a percentage of the mean price, below
// which a series counts as flat.
const flatBand = 1.0

// Trends fits a trend to every series in obs. Series with fewer than two
// distinct dates are skipped and reported in the returned warnings.
func Trends(obs []model.Observation, method TrendMethod) ([]TrendResult, []string) {
	keys, groups := splitSeries(obs)
	out := make([]TrendResult, 0, len(keys))
	var warnings []string
	for _, k := range keys {
		tr, err := Trend(k, groups[k], method)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s / %s (%s): %v", k.Market, k.Commodity, k.Unit, err))
			continue
		}
		out = append(out, tr)
	}
	return out, warnings
}

// Trend fits a linear trend to one series. X values are days since the
// series' first date; rows sharing a date are averaged first.
func Trend(k model.UnitSeriesKey, rows []model.Observation, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Market: k.Market, Commodity: k.Commodity, Unit: k.Unit, Method: method}

	pts := make([]point, 0, len(rows))
	collapsed := collapseDates(rows)
	if len(collapsed) > 0 {
		t0 := collapsed[0].date.Unix()
		for _, p := range collapsed {
			x := float64(p.date.Unix()-t0) / 86400
			pts = append(pts, point{x, p.price})
		}
	}
	tr.Points = len(pts)
	if len(pts) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 dated observations, got %d", len(pts))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		// OLS intercept with the Theil-Sen slope
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default:
		tr.Slope, tr.Intercept = olsRegress(pts)
	}

	tr.R2 = r2(pts, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	// Absolute drift is used only when the mean is 0 and no relative
	// figure exists.
	drift := tr.SlopePerYear * 100
	if mean := meanPts(pts, func(p point) float64 { return p.y }); mean != 0 {
		pct := tr.SlopePerYear / math.Abs(mean) * 100
		tr.PctPerYear = &pct
		drift = pct
	}
	switch {
	case drift > flatBand:
		tr.Direction = "up"
	case drift < -flatBand:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
