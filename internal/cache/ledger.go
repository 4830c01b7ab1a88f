package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/geosplit/internal/model"
)

// Ledger remembers boundaries that completed every stage so unchanged
// inputs are not split again.
type Ledger struct {
	cache        Cache
	fingerprints *FingerprintCache
}

// LedgerEntry is what the ledger stores for a completed boundary
type LedgerEntry struct {
	Rows        int64     `json:"rows"`
	Parquet     string    `json:"parquet"`
	Archive     string    `json:"archive"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewLedger creates a ledger on top of any Cache. fingerprints may be
// nil, in which case the dataset is stat'ed for every key.
func NewLedger(c Cache, fingerprints *FingerprintCache) *Ledger {
	return &Ledger{cache: c, fingerprints: fingerprints}
}

// Key derives the key for one split from the input file fingerprints
// and every setting that changes the parquet bytes.
func (l *Ledger) Key(dataset, boundary, category string, spatial model.SpatialConfig) (string, error) {
	fingerprint := Fingerprint
	if l.fingerprints != nil {
		fingerprint = l.fingerprints.Fingerprint
	}
	df, err := fingerprint(dataset)
	if err != nil {
		return "", fmt.Errorf("fingerprint dataset: %w", err)
	}
	bf, err := Fingerprint(boundary)
	if err != nil {
		return "", fmt.Errorf("fingerprint boundary: %w", err)
	}
	return Key(df, bf, category, spatial.GeometryColumn, spatial.Compression), nil
}

// Lookup returns the entry for key if it exists and its artifacts are
// still on disk.
func (l *Ledger) Lookup(key string, artifacts model.ArtifactSet) (LedgerEntry, bool) {
	data, ok := l.cache.Get(key)
	if !ok {
		return LedgerEntry{}, false
	}

	var entry LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = l.cache.Delete(key)
		return LedgerEntry{}, false
	}

	if entry.Parquet != artifacts.Parquet || entry.Archive != artifacts.Archive {
		return LedgerEntry{}, false
	}
	for _, path := range []string{artifacts.Parquet, artifacts.Archive} {
		if _, err := os.Stat(path); err != nil {
			return LedgerEntry{}, false
		}
	}

	return entry, true
}

// Record stores a completed boundary
func (l *Ledger) Record(key string, entry LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	return l.cache.Set(key, data, 0)
}
