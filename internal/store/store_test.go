package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
// This is the only pattern used — no test ever touches the production DB.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// makePanel builds a single-series monthly panel for country.
func makePanel(country string, year, month int, prices ...float64) model.Panel {
	obs := make([]model.Observation, len(prices))
	for i, p := range prices {
		obs[i] = model.Observation{
			Date:      time.Date(year, time.Month(month+i), 15, 0, 0, 0, 0, time.UTC),
			Market:    "Capital",
			Latitude:  10.5,
			Longitude: -4.25,
			Commodity: "Rice",
			Unit:      "KG",
			Price:     p,
		}
	}
	return model.Panel{Country: country, Obs: obs}
}

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesDB(t *testing.T) {
	s := testDB(t)
	if s.Path() == "" {
		t.Error("Path() should return the db path after open")
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.PutPanel(makePanel("JPN", 2022, 1, 1, 2)); err != nil {
		t.Fatalf("PutPanel: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	_, _, found, err := s.GetPanel("JPN")
	if err != nil || !found {
		t.Errorf("panel lost across reopen: found=%v err=%v", found, err)
	}
}

// ─── Panels ───────────────────────────────────────────────────────────────────

func TestPanelKey(t *testing.T) {
	if got := store.PanelKey("jpn"); got != "country:JPN" {
		t.Errorf("PanelKey: expected country:JPN, got %q", got)
	}
}

func TestPutGetPanel(t *testing.T) {
	s := testDB(t)
	want := makePanel("JPN", 2022, 1, 1.5, 2.5, 3.5)
	before := time.Now().UTC().Add(-time.Second)
	if err := s.PutPanel(want); err != nil {
		t.Fatalf("PutPanel: %v", err)
	}

	got, fetchedAt, found, err := s.GetPanel("jpn")
	if err != nil {
		t.Fatalf("GetPanel: %v", err)
	}
	if !found {
		t.Fatal("expected panel to be found")
	}
	if got.Country != "JPN" {
		t.Errorf("Country: expected JPN, got %q", got.Country)
	}
	if got.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", got.Len())
	}
	for i := range want.Obs {
		if !got.Obs[i].Date.Equal(want.Obs[i].Date) {
			t.Errorf("row %d date: expected %v, got %v", i, want.Obs[i].Date, got.Obs[i].Date)
		}
		if got.Obs[i].Price != want.Obs[i].Price || got.Obs[i].Latitude != want.Obs[i].Latitude {
			t.Errorf("row %d: expected %+v, got %+v", i, want.Obs[i], got.Obs[i])
		}
	}
	if fetchedAt.Before(before) {
		t.Errorf("fetched_at not stamped: %v", fetchedAt)
	}
}

func TestGetPanelNotFound(t *testing.T) {
	s := testDB(t)
	_, _, found, err := s.GetPanel("XXX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for missing panel")
	}
}

func TestPutPanelOverwrites(t *testing.T) {
	s := testDB(t)
	s.PutPanel(makePanel("JPN", 2022, 1, 1, 2, 3))
	s.PutPanel(makePanel("JPN", 2022, 1, 9))
	got, _, _, _ := s.GetPanel("JPN")
	if got.Len() != 1 || got.Obs[0].Price != 9 {
		t.Errorf("expected overwritten single row, got %+v", got.Obs)
	}
}

func TestPutPanelRequiresCountry(t *testing.T) {
	s := testDB(t)
	if err := s.PutPanel(makePanel("", 2022, 1, 1)); err == nil {
		t.Error("expected error for panel without country")
	}
}

func TestPutPanelBatchAndList(t *testing.T) {
	s := testDB(t)
	err := s.PutPanelBatch([]model.Panel{
		makePanel("SYR", 2022, 1, 1, 2),
		makePanel("AFG", 2022, 1, 1),
		makePanel("JPN", 2022, 1, 1, 2, 3),
	})
	if err != nil {
		t.Fatalf("PutPanelBatch: %v", err)
	}
	infos, err := s.ListPanels()
	if err != nil {
		t.Fatalf("ListPanels: %v", err)
	}
	want := []struct {
		country string
		rows    int
	}{{"AFG", 1}, {"JPN", 3}, {"SYR", 2}}
	if len(infos) != len(want) {
		t.Fatalf("expected %d panels, got %d", len(want), len(infos))
	}
	for i, w := range want {
		if infos[i].Country != w.country || infos[i].Rows != w.rows {
			t.Errorf("info %d: expected %s/%d, got %s/%d", i, w.country, w.rows, infos[i].Country, infos[i].Rows)
		}
	}
}

func TestDeletePanel(t *testing.T) {
	s := testDB(t)
	s.PutPanel(makePanel("JPN", 2022, 1, 1))
	if err := s.DeletePanel("JPN"); err != nil {
		t.Fatalf("DeletePanel: %v", err)
	}
	if _, _, found, _ := s.GetPanel("JPN"); found {
		t.Error("panel should be gone after delete")
	}
}

// ─── Countries ────────────────────────────────────────────────────────────────

func TestPutGetCountries(t *testing.T) {
	s := testDB(t)
	if _, _, found, _ := s.GetCountries(); found {
		t.Fatal("fresh store should have no country index")
	}
	in := []model.Country{
		{ISO3: "AFG", HDXIdentifier: "wfp-food-prices-for-afghanistan"},
		{ISO3: "JPN", HDXIdentifier: "wfp-food-prices-for-japan", StartDate: time.Date(2010, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	if err := s.PutCountries(in); err != nil {
		t.Fatalf("PutCountries: %v", err)
	}
	got, fetchedAt, found, err := s.GetCountries()
	if err != nil || !found {
		t.Fatalf("GetCountries: found=%v err=%v", found, err)
	}
	if len(got) != 2 || got[1].HDXIdentifier != "wfp-food-prices-for-japan" {
		t.Errorf("unexpected countries: %+v", got)
	}
	if !got[1].StartDate.Equal(in[1].StartDate) {
		t.Errorf("StartDate: expected %v, got %v", in[1].StartDate, got[1].StartDate)
	}
	if fetchedAt.IsZero() {
		t.Error("fetched_at should be stamped")
	}
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

func TestNewSnapshotAssignsID(t *testing.T) {
	a := store.NewSnapshot("a", "run JPN")
	b := store.NewSnapshot("b", "run JPN")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestPutGetSnapshot(t *testing.T) {
	s := testDB(t)
	snap := store.NewSnapshot("japan-rice", "run JPN --commodities Rice")
	if err := s.PutSnapshot(snap); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	got, found, err := s.GetSnapshot(snap.ID)
	if err != nil || !found {
		t.Fatalf("GetSnapshot by ID: found=%v err=%v", found, err)
	}
	if got.CommandLine != snap.CommandLine {
		t.Errorf("CommandLine: expected %q, got %q", snap.CommandLine, got.CommandLine)
	}

	byName, found, err := s.GetSnapshot("japan-rice")
	if err != nil || !found || byName.ID != snap.ID {
		t.Errorf("GetSnapshot by name: found=%v err=%v id=%q", found, err, byName.ID)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	s := testDB(t)
	_, found, err := s.GetSnapshot("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
}

func TestPutSnapshotRequiresID(t *testing.T) {
	s := testDB(t)
	if err := s.PutSnapshot(store.Snapshot{Name: "x"}); err == nil {
		t.Error("expected error for snapshot without ID")
	}
}

func TestListSnapshotsCreationOrder(t *testing.T) {
	s := testDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		snap := store.NewSnapshot(name, "run JPN")
		snap.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.PutSnapshot(snap); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}
	}
	snaps, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i, want := range []string{"first", "second", "third"} {
		if snaps[i].Name != want {
			t.Errorf("snapshot %d: expected %q, got %q", i, want, snaps[i].Name)
		}
	}
}

func TestDeleteSnapshot(t *testing.T) {
	s := testDB(t)
	snap := store.NewSnapshot("tmp", "run JPN")
	s.PutSnapshot(snap)
	if err := s.DeleteSnapshot(snap.ID); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, found, _ := s.GetSnapshot(snap.ID); found {
		t.Error("snapshot should be gone after delete")
	}
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

func TestStatsEmpty(t *testing.T) {
	s := testDB(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != len(store.AllBuckets) {
		t.Fatalf("expected %d buckets, got %d", len(store.AllBuckets), len(stats))
	}
	for _, st := range stats {
		if st.Count != 0 {
			t.Errorf("bucket %s: expected 0 rows, got %d", st.Name, st.Count)
		}
	}
}

func TestStatsCountsRows(t *testing.T) {
	s := testDB(t)
	s.PutPanel(makePanel("JPN", 2022, 1, 1))
	s.PutPanel(makePanel("AFG", 2022, 1, 1))
	s.PutSnapshot(store.NewSnapshot("x", "run JPN"))

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	counts := map[string]int{}
	for _, st := range stats {
		counts[st.Name] = st.Count
		if st.Count > 0 && st.Bytes == 0 {
			t.Errorf("bucket %s: non-empty bucket reported zero bytes", st.Name)
		}
	}
	if counts["panels"] != 2 || counts["snapshots"] != 1 || counts["countries"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestClearBucketLeavesOthersIntact(t *testing.T) {
	s := testDB(t)
	s.PutPanel(makePanel("JPN", 2022, 1, 1))
	s.PutSnapshot(store.NewSnapshot("keep", "run JPN"))

	if err := s.ClearBucket("panels"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}
	if _, _, found, _ := s.GetPanel("JPN"); found {
		t.Error("panel should be cleared")
	}
	if _, found, _ := s.GetSnapshot("keep"); !found {
		t.Error("snapshot should survive clearing panels")
	}
}

func TestClearBucketUnknown(t *testing.T) {
	s := testDB(t)
	if err := s.ClearBucket("_meta"); err == nil {
		t.Error("expected error clearing an internal bucket")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	s.PutPanel(makePanel("JPN", 2022, 1, 1))
	s.PutCountries([]model.Country{{ISO3: "JPN"}})
	s.PutSnapshot(store.NewSnapshot("x", "run JPN"))

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, _ := s.Stats()
	for _, st := range stats {
		if st.Count != 0 {
			t.Errorf("bucket %s: expected 0 rows after ClearAll, got %d", st.Name, st.Count)
		}
	}
}

func TestEachTestGetsIsolatedDB(t *testing.T) {
	a := testDB(t)
	b := testDB(t)
	a.PutPanel(makePanel("JPN", 2022, 1, 1))
	if _, _, found, _ := b.GetPanel("JPN"); found {
		t.Error("databases leaked between testDB instances")
	}
}

func TestCompactPreservesData(t *testing.T) {
	s := testDB(t)
	for _, c := range []string{"KEN", "ETH", "SOM"} {
		if err := s.PutPanel(makePanel(c, 2023, 1, 1, 2, 3, 4)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ClearBucket("panels"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutPanel(makePanel("KEN", 2023, 1, 5)); err != nil {
		t.Fatal(err)
	}

	before, after, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if before <= 0 || after <= 0 {
		t.Errorf("expected positive sizes, got %d -> %d", before, after)
	}
	if after > before {
		t.Errorf("compaction grew the file: %d -> %d", before, after)
	}

	p, _, found, err := s.GetPanel("KEN")
	if err != nil || !found {
		t.Fatalf("GetPanel after compact: found=%v err=%v", found, err)
	}
	if len(p.Obs) != 1 || p.Obs[0].Price != 5 {
		t.Errorf("unexpected panel after compact: %+v", p.Obs)
	}
}
