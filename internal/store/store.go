// Package store provides a thin bbolt wrapper for pricetrack's local data store.
//
// The store is an explicit data accumulator, not a transparent HTTP cache.
// Panels are written by fetch commands and read by the pipeline commands.
// No TTL, no auto-invalidation.
//
// Buckets:
//
//	panels    — raw country panels keyed country:<ISO3>
//	countries — the cached HDX country index
//	snapshots — saved command lines for reproducible workflows
//	_meta     — internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/pricetrack/internal/model"
)

// SchemaVersion is the on-disk layout version. Bump when bucket layout or
// key format changes.
const SchemaVersion = 1

// Bucket name constants.
var (
	bucketPanels    = []byte("panels")
	bucketCountries = []byte("countries")
	bucketSnapshots = []byte("snapshots")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"countries", "panels", "snapshots"}

const countryIndexKey = "index"

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPanels, bucketCountries, bucketSnapshots, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", SchemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Panels ───────────────────────────────────────────────────────────────────

// PanelKey builds the canonical key for a country panel.
func PanelKey(iso3 string) string {
	return "country:" + strings.ToUpper(iso3)
}

// storedPanel is the on-disk envelope for a panel.
type storedPanel struct {
	Country   string              `json:"country"`
	FetchedAt time.Time           `json:"fetched_at"`
	Obs       []model.Observation `json:"observations"`
}

// PanelInfo describes a stored panel without its rows.
type PanelInfo struct {
	Country   string    `json:"country"`
	FetchedAt time.Time `json:"fetched_at"`
	Rows      int       `json:"rows"`
}

func encodePanel(p model.Panel, now time.Time) ([]byte, error) {
	b, err := json.Marshal(storedPanel{
		Country:   strings.ToUpper(p.Country),
		FetchedAt: now,
		Obs:       p.Obs,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding panel %s: %w", p.Country, err)
	}
	return b, nil
}

// PutPanel stores a raw panel under its country key, stamping fetched_at.
func (s *Store) PutPanel(p model.Panel) error {
	return s.PutPanelBatch([]model.Panel{p})
}

// PutPanelBatch stores several panels in a single transaction.
func (s *Store) PutPanelBatch(panels []model.Panel) error {
	now := time.Now().UTC()
	encoded := make([][]byte, len(panels))
	for i, p := range panels {
		if p.Country == "" {
			return fmt.Errorf("panel %d: country is required", i)
		}
		b, err := encodePanel(p, now)
		if err != nil {
			return err
		}
		encoded[i] = b
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPanels)
		for i, p := range panels {
			if err := b.Put([]byte(PanelKey(p.Country)), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPanel retrieves a panel by ISO3 code together with its fetch time.
// found is false, with a nil error, when no panel is stored.
func (s *Store) GetPanel(iso3 string) (p model.Panel, fetchedAt time.Time, found bool, err error) {
	var envelope storedPanel
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPanels).Get([]byte(PanelKey(iso3)))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &envelope)
	})
	if err != nil || !found {
		return model.Panel{}, time.Time{}, false, err
	}
	return model.Panel{Country: envelope.Country, Obs: envelope.Obs}, envelope.FetchedAt, true, nil
}

// ListPanels describes every stored panel, sorted by country.
func (s *Store) ListPanels() ([]PanelInfo, error) {
	var out []PanelInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPanels).ForEach(func(k, v []byte) error {
			var p storedPanel
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			out = append(out, PanelInfo{Country: p.Country, FetchedAt: p.FetchedAt, Rows: len(p.Obs)})
			return nil
		})
	})
	return out, err
}

// DeletePanel removes a stored panel.
func (s *Store) DeletePanel(iso3 string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPanels).Delete([]byte(PanelKey(iso3)))
	})
}

// ─── Country Index ────────────────────────────────────────────────────────────

type storedCountries struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Countries []model.Country `json:"countries"`
}

// PutCountries caches the country index.
func (s *Store) PutCountries(countries []model.Country) error {
	b, err := json.Marshal(storedCountries{FetchedAt: time.Now().UTC(), Countries: countries})
	if err != nil {
		return fmt.Errorf("encoding countries: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCountries).Put([]byte(countryIndexKey), b)
	})
}

// GetCountries returns the cached country index and when it was fetched.
func (s *Store) GetCountries() ([]model.Country, time.Time, bool, error) {
	var envelope storedCountries
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCountries).Get([]byte(countryIndexKey))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &envelope)
	})
	if err != nil || !found {
		return nil, time.Time{}, false, err
	}
	return envelope.Countries, envelope.FetchedAt, true, nil
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

// Snapshot represents a saved command for reproducible workflows.
type Snapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CommandLine string    `json:"command_line"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSnapshot returns a snapshot with a fresh ID and creation time.
func NewSnapshot(name, commandLine string) Snapshot {
	return Snapshot{
		ID:          uuid.NewString(),
		Name:        name,
		CommandLine: commandLine,
		CreatedAt:   time.Now().UTC(),
	}
}

// PutSnapshot saves a snapshot. The key is snap:<ID>.
func (s *Store) PutSnapshot(snap Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot ID is required")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte("snap:"+snap.ID), b)
	})
}

// GetSnapshot retrieves a snapshot by ID, or by name when no ID matches.
func (s *Store) GetSnapshot(ref string) (Snapshot, bool, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if v := b.Get([]byte("snap:" + ref)); v != nil {
			return json.Unmarshal(v, &snap)
		}
		return b.ForEach(func(_, v []byte) error {
			if snap.ID != "" {
				return nil
			}
			var cand Snapshot
			if err := json.Unmarshal(v, &cand); err != nil {
				return err
			}
			if cand.Name != "" && cand.Name == ref {
				snap = cand
			}
			return nil
		})
	})
	if err != nil {
		return snap, false, err
	}
	return snap, snap.ID != "", nil
}

// ListSnapshots returns all snapshots in creation order.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps, err
}

// DeleteSnapshot removes a snapshot by ID.
func (s *Store) DeleteSnapshot(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte("snap:" + id))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Stats returns row counts and approximate sizes for all user-facing
// buckets, in AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown bucket %q (valid: %s)", name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it into place,
// returning the file sizes before and after. The Store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	if fi, err := os.Stat(path); err == nil {
		before = fi.Size()
	}

	tmp := path + ".compact"
	_ = os.Remove(tmp)
	dst, err := bolt.Open(tmp, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 1<<20); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("reopening db: %w", err)
	}
	s.db = db

	if fi, err := os.Stat(path); err == nil {
		after = fi.Size()
	}
	return before, after, nil
}
