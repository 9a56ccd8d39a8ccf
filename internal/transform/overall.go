package transform

import (
	"sort"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
)

type dateCommodityUnit struct {
	date      time.Time
	commodity string
	unit      string
}

// meanAcc accumulates a running mean of price and coordinates.
type meanAcc struct {
	n        int
	price    float64
	lat, lon float64
}

// AddOverall appends a synthetic market named label (model.OverallMarket
// when empty) with one row per (date, commodity, unit) holding the mean
// price across the real markets present. Rows already labelled with the
// synthetic market are excluded from the mean. The synthetic row sits at the
// centroid of the contributing markets.
func AddOverall(obs []model.Observation, label string) []model.Observation {
	if label == "" {
		label = model.OverallMarket
	}

	groups := make(map[dateCommodityUnit]*meanAcc)
	var order []dateCommodityUnit
	for _, o := range obs {
		if o.Market == label {
			continue
		}
		k := dateCommodityUnit{date: o.Date, commodity: o.Commodity, unit: o.Unit}
		acc, ok := groups[k]
		if !ok {
			acc = &meanAcc{}
			groups[k] = acc
			order = append(order, k)
		}
		acc.n++
		acc.price += o.Price
		acc.lat += o.Latitude
		acc.lon += o.Longitude
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		if a.commodity != b.commodity {
			return a.commodity < b.commodity
		}
		return a.unit < b.unit
	})

	out := make([]model.Observation, 0, len(obs)+len(order))
	out = append(out, obs...)
	for _, k := range order {
		acc := groups[k]
		n := float64(acc.n)
		out = append(out, model.Observation{
			Date:      k.date,
			Market:    label,
			Latitude:  acc.lat / n,
			Longitude: acc.lon / n,
			Commodity: k.commodity,
			Unit:      k.unit,
			Price:     acc.price / n,
		})
	}
	return out
}
