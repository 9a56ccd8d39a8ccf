package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestObserveStageGathers(t *testing.T) {
	m := New()
	m.ObserveStage("dedup", 10, 8, 250*time.Millisecond)
	m.RunsTotal.Inc()

	mfs, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if g := metric.GetGauge(); g != nil {
				got[mf.GetName()] = g.GetValue()
			}
		}
	}
	if got["pricetrack_stage_rows_in"] != 10 || got["pricetrack_stage_rows_out"] != 8 {
		t.Errorf("row gauges: %v", got)
	}
	if got["pricetrack_stage_duration_seconds"] != 0.25 {
		t.Errorf("duration gauge: %v", got["pricetrack_stage_duration_seconds"])
	}
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a, b := New(), New()
	a.ObserveStage("fill", 1, 2, time.Second)
	mfs, err := b.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if len(mf.GetMetric()) != 0 && strings.HasPrefix(mf.GetName(), "pricetrack_stage") {
			t.Errorf("registry b saw stage metric %s from a", mf.GetName())
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveStage("index", 4, 2, time.Millisecond)
	m.ObserveFetch("KEN", true)
	m.ObserveFetch("XXX", false)

	path := filepath.Join(t.TempDir(), "pricetrack.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`pricetrack_stage_rows_in{stage="index"} 4`,
		`pricetrack_stage_rows_out{stage="index"} 2`,
		`pricetrack_fetches_total{country="KEN",status="ok"} 1`,
		`pricetrack_fetches_total{country="XXX",status="error"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}
