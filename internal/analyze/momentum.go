package analyze

import (
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/pricetrack/internal/model"
)

// Momentum lags, in positions along a series' own date sequence.
const (
	LagMonth   = 1
	LagQuarter = 3
	LagYear    = 12
)

// Momentum returns one SummaryRecord per (market, commodity, unit) series,
// taken at the series' latest date. Rows sharing a date within a series are
// averaged first. A change is nil when the series is too short for its lag
// or the comparison price is zero. Records are ordered by market, commodity
// and unit. workers bounds concurrency; zero means runtime.GOMAXPROCS(0).
func Momentum(obs []model.Observation, workers int) ([]model.SummaryRecord, error) {
	keys, groups := splitSeries(obs)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]model.SummaryRecord, len(keys))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			out[i] = summarizeSeries(k, groups[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("momentum", "rows_in", len(obs), "series", len(out))
	return out, nil
}

// datePrice is one point of a date-collapsed series.
type datePrice struct {
	date  time.Time
	price float64
}

func summarizeSeries(k model.UnitSeriesKey, rows []model.Observation) model.SummaryRecord {
	pts := collapseDates(rows)
	last := pts[len(pts)-1]
	return model.SummaryRecord{
		Market:    k.Market,
		Commodity: k.Commodity,
		Unit:      k.Unit,
		Date:      last.date,
		Price:     last.price,
		MoM:       change(pts, LagMonth),
		QoQ:       change(pts, LagQuarter),
		YoY:       change(pts, LagYear),
	}
}

// collapseDates averages rows sharing a date and returns points in date order.
func collapseDates(rows []model.Observation) []datePrice {
	type acc struct {
		sum float64
		n   int
	}
	byDate := make(map[time.Time]*acc)
	var dates []time.Time
	for _, o := range rows {
		a, ok := byDate[o.Date]
		if !ok {
			a = &acc{}
			byDate[o.Date] = a
			dates = append(dates, o.Date)
		}
		a.sum += o.Price
		a.n++
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	pts := make([]datePrice, len(dates))
	for i, d := range dates {
		a := byDate[d]
		pts[i] = datePrice{date: d, price: a.sum / float64(a.n)}
	}
	return pts
}

// change returns last/prev - 1 where prev sits k positions before the last
// point, or nil if no such point exists or it is zero.
func change(pts []datePrice, k int) *float64 {
	n := len(pts)
	if n <= k {
		return nil
	}
	prev := pts[n-1-k].price
	if prev == 0 {
		return nil
	}
	v := pts[n-1].price/prev - 1
	return &v
}

// splitSeries groups obs by (market, commodity, unit) and returns the keys in
// sorted order.
func splitSeries(obs []model.Observation) ([]model.UnitSeriesKey, map[model.UnitSeriesKey][]model.Observation) {
	groups := make(map[model.UnitSeriesKey][]model.Observation)
	var keys []model.UnitSeriesKey
	for _, o := range obs {
		k := model.UnitSeriesKey{Market: o.Market, Commodity: o.Commodity, Unit: o.Unit}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], o)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		return a.Unit < b.Unit
	})
	return keys, groups
}
