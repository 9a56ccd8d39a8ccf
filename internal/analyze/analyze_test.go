package analyze_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/derickschaefer/pricetrack/internal/analyze"
	"github.com/derickschaefer/pricetrack/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var riceKey = model.UnitSeriesKey{Market: "A", Commodity: "Rice", Unit: "kg"}

// makeSeries builds monthly rows for riceKey starting at year/month.
func makeSeries(year, month int, prices ...float64) []model.Observation {
	out := make([]model.Observation, len(prices))
	for i, p := range prices {
		out[i] = model.Observation{
			Date:      time.Date(year, time.Month(month+i), 15, 0, 0, 0, 0, time.UTC),
			Market:    riceKey.Market,
			Commodity: riceKey.Commodity,
			Unit:      riceKey.Unit,
			Price:     p,
		}
	}
	return out
}

// makeAnnual builds yearly rows (Jan 15) for riceKey starting at startYear.
func makeAnnual(startYear int, prices ...float64) []model.Observation {
	out := make([]model.Observation, len(prices))
	for i, p := range prices {
		out[i] = model.Observation{
			Date:      time.Date(startYear+i, 1, 15, 0, 0, 0, 0, time.UTC),
			Market:    riceKey.Market,
			Commodity: riceKey.Commodity,
			Unit:      riceKey.Unit,
			Price:     p,
		}
	}
	return out
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

// ─── Momentum ─────────────────────────────────────────────────────────────────

func TestMomentumThirteenPoints(t *testing.T) {
	obs := makeSeries(2021, 1, ramp(13)...)
	recs, err := analyze.Momentum(obs, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Price != 13 {
		t.Errorf("Price: expected 13, got %g", r.Price)
	}
	if !r.Date.Equal(time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date: expected 2022-01-15, got %s", r.Date)
	}
	checks := []struct {
		name string
		got  *float64
		want float64
	}{
		{"MoM", r.MoM, 13.0/12 - 1},
		{"QoQ", r.QoQ, 13.0/10 - 1},
		{"YoY", r.YoY, 13.0/1 - 1},
	}
	for _, c := range checks {
		if c.got == nil {
			t.Errorf("%s: expected %g, got nil", c.name, c.want)
			continue
		}
		if !approxEqual(*c.got, c.want, 1e-12) {
			t.Errorf("%s: expected %g, got %g", c.name, c.want, *c.got)
		}
	}
}

func TestMomentumShortSeriesUndefined(t *testing.T) {
	tests := []struct {
		n                         int
		wantMoM, wantQoQ, wantYoY bool
	}{
		{1, false, false, false},
		{2, true, false, false},
		{3, true, false, false},
		{4, true, true, false},
		{12, true, true, false},
		{13, true, true, true},
	}
	for _, tt := range tests {
		recs, err := analyze.Momentum(makeSeries(2020, 1, ramp(tt.n)...), 1)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", tt.n, err)
		}
		r := recs[0]
		if (r.MoM != nil) != tt.wantMoM {
			t.Errorf("n=%d: MoM defined=%v, want %v", tt.n, r.MoM != nil, tt.wantMoM)
		}
		if (r.QoQ != nil) != tt.wantQoQ {
			t.Errorf("n=%d: QoQ defined=%v, want %v", tt.n, r.QoQ != nil, tt.wantQoQ)
		}
		if (r.YoY != nil) != tt.wantYoY {
			t.Errorf("n=%d: YoY defined=%v, want %v", tt.n, r.YoY != nil, tt.wantYoY)
		}
	}
}

func TestMomentumZeroDenominator(t *testing.T) {
	recs, err := analyze.Momentum(makeSeries(2022, 1, 0, 5), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs[0].MoM != nil {
		t.Errorf("MoM: expected nil for zero previous price, got %g", *recs[0].MoM)
	}
}

func TestMomentumPositionalLag(t *testing.T) {
	// Gaps in the calendar do not matter: the lag counts positions.
	obs := makeSeries(2022, 1, 2, 4)
	obs[1].Date = time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC)
	recs, _ := analyze.Momentum(obs, 0)
	if recs[0].MoM == nil || !approxEqual(*recs[0].MoM, 1.0, 1e-12) {
		t.Errorf("MoM: expected 1.0, got %v", recs[0].MoM)
	}
}

func TestMomentumAveragesDuplicateDates(t *testing.T) {
	obs := makeSeries(2022, 1, 2, 4)
	dup := obs[1]
	dup.Price = 8
	obs = append(obs, dup)
	recs, _ := analyze.Momentum(obs, 0)
	if recs[0].Price != 6 {
		t.Errorf("Price: expected mean 6, got %g", recs[0].Price)
	}
	if recs[0].MoM == nil || !approxEqual(*recs[0].MoM, 2.0, 1e-12) {
		t.Errorf("MoM: expected 2.0, got %v", recs[0].MoM)
	}
}

func TestMomentumSeparatesUnitsAndOrdersKeys(t *testing.T) {
	d := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		{Date: d, Market: "B", Commodity: "Rice", Unit: "kg", Price: 1},
		{Date: d, Market: "A", Commodity: "Rice", Unit: "50 kg", Price: 40},
		{Date: d, Market: "A", Commodity: "Rice", Unit: "kg", Price: 1},
		{Date: d, Market: "A", Commodity: "Oil", Unit: "L", Price: 3},
	}
	recs, err := analyze.Momentum(obs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.UnitSeriesKey{
		{Market: "A", Commodity: "Oil", Unit: "L"},
		{Market: "A", Commodity: "Rice", Unit: "50 kg"},
		{Market: "A", Commodity: "Rice", Unit: "kg"},
		{Market: "B", Commodity: "Rice", Unit: "kg"},
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(recs))
	}
	for i, w := range want {
		got := model.UnitSeriesKey{Market: recs[i].Market, Commodity: recs[i].Commodity, Unit: recs[i].Unit}
		if got != w {
			t.Errorf("record %d: expected %+v, got %+v", i, w, got)
		}
	}
}

func TestMomentumEmpty(t *testing.T) {
	recs, err := analyze.Momentum(nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeMeanAndStd(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 2, 4, 4, 4, 5, 5, 7, 9))
	if s.Count != 8 {
		t.Errorf("Count: expected 8, got %d", s.Count)
	}
	if !approxEqual(s.Mean, 5.0, 1e-9) {
		t.Errorf("Mean: expected 5.0, got %g", s.Mean)
	}
	// sample std of this set is sqrt(32/7)
	if !approxEqual(s.Std, math.Sqrt(32.0/7.0), 1e-9) {
		t.Errorf("Std: expected %g, got %g", math.Sqrt(32.0/7.0), s.Std)
	}
}

func TestSummarizeMinMaxMedian(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 3, 1, 4, 1, 5))
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("Min/Max: expected 1/5, got %g/%g", s.Min, s.Max)
	}
	if s.Median != 3 {
		t.Errorf("Median: expected 3, got %g", s.Median)
	}
}

func TestSummarizePercentiles(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 1, 2, 3, 4, 5))
	if !approxEqual(s.P25, 2.0, 1e-9) || !approxEqual(s.P75, 4.0, 1e-9) {
		t.Errorf("P25/P75: expected 2/4, got %g/%g", s.P25, s.P75)
	}
}

func TestSummarizeFirstLastChange(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 2, 3, 5))
	if s.First != 2 || s.Last != 5 {
		t.Errorf("First/Last: expected 2/5, got %g/%g", s.First, s.Last)
	}
	if s.Change != 3 {
		t.Errorf("Change: expected 3, got %g", s.Change)
	}
	if s.ChangePct == nil || !approxEqual(*s.ChangePct, 150, 1e-9) {
		t.Errorf("ChangePct: expected 150, got %v", s.ChangePct)
	}
}

func TestSummarizeChangeZeroFirst(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 0, 1))
	if s.ChangePct != nil {
		t.Errorf("ChangePct: expected nil for zero first price, got %g", *s.ChangePct)
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize(riceKey, makeSeries(2020, 1, 42))
	if s.Mean != 42 || s.Std != 0 {
		t.Errorf("expected mean 42 std 0, got %g/%g", s.Mean, s.Std)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := analyze.Summarize(riceKey, nil)
	if s.Count != 0 || s.Market != "A" {
		t.Errorf("unexpected summary for empty input: %+v", s)
	}
}

func TestDescribeOneSummaryPerSeries(t *testing.T) {
	obs := makeSeries(2020, 1, 1, 2, 3)
	other := makeSeries(2020, 1, 5, 5)
	for i := range other {
		other[i].Market = "B"
	}
	sums := analyze.Describe(append(obs, other...))
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	if sums[0].Market != "A" || sums[1].Market != "B" {
		t.Errorf("unexpected order: %s, %s", sums[0].Market, sums[1].Market)
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendLinearUpward(t *testing.T) {
	obs := makeAnnual(2010, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	tr, err := analyze.Trend(riceKey, obs, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "up" {
		t.Errorf("Direction: expected up, got %q", tr.Direction)
	}
	if tr.SlopePerYear <= 0 {
		t.Errorf("SlopePerYear: expected positive, got %g", tr.SlopePerYear)
	}
	// leap years make x slightly uneven, so R² is close to but not exactly 1
	if !approxEqual(tr.R2, 1.0, 1e-4) {
		t.Errorf("R2: expected ~1.0, got %g", tr.R2)
	}
	if tr.Points != 10 {
		t.Errorf("Points: expected 10, got %d", tr.Points)
	}
}

func TestTrendLinearDownward(t *testing.T) {
	obs := makeAnnual(2010, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1)
	tr, err := analyze.Trend(riceKey, obs, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "down" {
		t.Errorf("Direction: expected down, got %q", tr.Direction)
	}
}

func TestTrendFlat(t *testing.T) {
	obs := makeAnnual(2010, 5, 5, 5, 5, 5)
	tr, err := analyze.Trend(riceKey, obs, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "flat" {
		t.Errorf("Direction: expected flat, got %q", tr.Direction)
	}
	if tr.R2 != 1 {
		t.Errorf("R2: expected 1 for constant series, got %g", tr.R2)
	}
}

func TestTrendFlatRelativeToPriceLevel(t *testing.T) {
	obs := makeAnnual(2010, 1000, 1000.5, 1001)
	tr, err := analyze.Trend(riceKey, obs, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "flat" {
		t.Errorf("0.05%%/yr drift: expected flat, got %q", tr.Direction)
	}
	if tr.PctPerYear == nil || *tr.PctPerYear <= 0 || *tr.PctPerYear > 0.1 {
		t.Errorf("PctPerYear: got %v", tr.PctPerYear)
	}
}

func TestTrendTooFewObs(t *testing.T) {
	if _, err := analyze.Trend(riceKey, makeSeries(2020, 1, 1), analyze.TrendLinear); err == nil {
		t.Error("expected error for a single observation")
	}
}

func TestTrendKeyAndMethodPreserved(t *testing.T) {
	tr, err := analyze.Trend(riceKey, makeAnnual(2010, 1, 2, 3), analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Market != "A" || tr.Commodity != "Rice" || tr.Unit != "kg" {
		t.Errorf("key not preserved: %+v", tr)
	}
	if tr.Method != analyze.TrendTheilSen {
		t.Errorf("Method: expected theil-sen, got %q", tr.Method)
	}
}

func TestTrendTheilSenRobustToOutlier(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000}
	obs := makeAnnual(2010, prices...)
	ols, err := analyze.Trend(riceKey, obs, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("ols: %v", err)
	}
	ts, err := analyze.Trend(riceKey, obs, analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("theil-sen: %v", err)
	}
	// Theil-Sen should stay near 1 per year; OLS is dragged up by the outlier.
	if !approxEqual(ts.SlopePerYear, 1.0, 0.05) {
		t.Errorf("Theil-Sen SlopePerYear: expected ~1, got %g", ts.SlopePerYear)
	}
	if ols.SlopePerYear <= ts.SlopePerYear {
		t.Errorf("expected OLS slope (%g) above Theil-Sen slope (%g)", ols.SlopePerYear, ts.SlopePerYear)
	}
}

func TestTrendsSkipsShortSeries(t *testing.T) {
	obs := makeAnnual(2010, 1, 2, 3)
	obs = append(obs, model.Observation{
		Date: time.Date(2010, 1, 15, 0, 0, 0, 0, time.UTC), Market: "B", Commodity: "Rice", Unit: "kg", Price: 1,
	})
	trs, warnings := analyze.Trends(obs, analyze.TrendLinear)
	if len(trs) != 1 || trs[0].Market != "A" {
		t.Errorf("expected a single trend for market A, got %+v", trs)
	}
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning for market B, got %v", warnings)
	}
}

func TestParseTrendMethod(t *testing.T) {
	if m, err := analyze.ParseTrendMethod("theil-sen"); err != nil || m != analyze.TrendTheilSen {
		t.Errorf("theil-sen: got %q, %v", m, err)
	}
	if _, err := analyze.ParseTrendMethod("spline"); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
