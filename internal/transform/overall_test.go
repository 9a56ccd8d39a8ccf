package transform_test

import (
	"testing"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/transform"
)

func TestAddOverallMean(t *testing.T) {
	obs := []model.Observation{
		row("2022-01-15", "A", "Rice", "kg", 1.0),
		row("2022-01-15", "B", "Rice", "kg", 2.0),
		row("2022-01-15", "C", "Rice", "kg", 6.0),
		row("2022-02-15", "A", "Rice", "kg", 4.0),
	}
	out := transform.AddOverall(obs, "")

	jan, ok := find(out, "2022-01-15", model.OverallMarket, "Rice")
	if !ok {
		t.Fatal("missing January overall row")
	}
	if !approxEqual(jan.Price, 3.0, 1e-12) {
		t.Errorf("January overall: expected 3.0, got %g", jan.Price)
	}
	feb, _ := find(out, "2022-02-15", model.OverallMarket, "Rice")
	if !approxEqual(feb.Price, 4.0, 1e-12) {
		t.Errorf("February overall: expected 4.0, got %g", feb.Price)
	}
	if len(out) != len(obs)+2 {
		t.Errorf("expected %d rows, got %d", len(obs)+2, len(out))
	}
}

func TestAddOverallCustomLabel(t *testing.T) {
	obs := []model.Observation{row("2022-01-15", "A", "Rice", "kg", 1.0)}
	out := transform.AddOverall(obs, model.NationalMarket)
	if _, ok := find(out, "2022-01-15", model.NationalMarket, "Rice"); !ok {
		t.Error("expected a National row")
	}
}

func TestAddOverallSeparatesUnits(t *testing.T) {
	obs := []model.Observation{
		row("2022-01-15", "A", "Rice", "kg", 1.0),
		row("2022-01-15", "B", "Rice", "50 kg", 40.0),
	}
	out := transform.AddOverall(obs, "")
	n := 0
	for _, o := range out {
		if o.Market == model.OverallMarket {
			n++
			if o.Unit == "kg" && o.Price != 1.0 || o.Unit == "50 kg" && o.Price != 40.0 {
				t.Errorf("units were mixed: %+v", o)
			}
		}
	}
	if n != 2 {
		t.Errorf("expected one overall row per unit, got %d", n)
	}
}

func TestAddOverallIgnoresExistingSyntheticRows(t *testing.T) {
	obs := []model.Observation{
		row("2022-01-15", "A", "Rice", "kg", 2.0),
		row("2022-01-15", model.OverallMarket, "Rice", "kg", 100.0),
	}
	out := transform.AddOverall(obs, "")
	last := out[len(out)-1]
	if last.Market != model.OverallMarket || last.Price != 2.0 {
		t.Errorf("expected new overall row of 2.0, got %+v", last)
	}
}

func TestAddOverallCentroid(t *testing.T) {
	obs := []model.Observation{
		{Date: date("2022-01-15"), Market: "A", Latitude: 10, Longitude: 20, Commodity: "Rice", Unit: "kg", Price: 1},
		{Date: date("2022-01-15"), Market: "B", Latitude: 30, Longitude: 40, Commodity: "Rice", Unit: "kg", Price: 1},
	}
	out := transform.AddOverall(obs, "")
	o := out[len(out)-1]
	if o.Latitude != 20 || o.Longitude != 30 {
		t.Errorf("expected centroid (20,30), got (%g,%g)", o.Latitude, o.Longitude)
	}
}

// The index commodity and the overall market compose: the overall row for
// the index equals the mean of the per-market index values.
func TestIndexThenOverallCompose(t *testing.T) {
	obs := []model.Observation{
		row("2022-01-15", "A", "Rice", "kg", 1.0),
		row("2022-01-15", "A", "Oil", "L", 3.0),
		row("2022-01-15", "B", "Rice", "kg", 2.0),
		row("2022-01-15", "B", "Oil", "L", 6.0),
	}
	indexed, err := transform.BuildIndex(obs, transform.Selection{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	out := transform.AddOverall(indexed, "")

	idx, ok := find(out, "2022-01-15", model.OverallMarket, model.IndexCommodity)
	if !ok {
		t.Fatal("missing overall index row")
	}
	// A index = 4, B index = 8, mean = 6
	if !approxEqual(idx.Price, 6.0, 1e-12) {
		t.Errorf("expected overall index 6.0, got %g", idx.Price)
	}
	rice, _ := find(out, "2022-01-15", model.OverallMarket, "Rice")
	if !approxEqual(rice.Price, 1.5, 1e-12) {
		t.Errorf("expected overall rice 1.5, got %g", rice.Price)
	}
}
