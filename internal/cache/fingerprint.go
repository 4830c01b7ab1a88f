package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// FingerprintCache memoizes file fingerprints in process. The dataset is
// shared by every boundary of a run, so it is stat'ed once and every
// ledger key of the run pins the same dataset identity.
type FingerprintCache struct {
	entries *gocache.Cache
}

// NewFingerprintCache creates a memo whose entries live for ttl
func NewFingerprintCache(ttl time.Duration) *FingerprintCache {
	return &FingerprintCache{entries: gocache.New(ttl, 10*time.Minute)}
}

// Fingerprint returns the remembered fingerprint of path, computing it
// on first use. Failures are not remembered.
func (f *FingerprintCache) Fingerprint(path string) (string, error) {
	if v, found := f.entries.Get(path); found {
		return v.(string), nil
	}
	fp, err := Fingerprint(path)
	if err != nil {
		return "", err
	}
	f.entries.SetDefault(path, fp)
	return fp, nil
}

// Forget drops every remembered fingerprint
func (f *FingerprintCache) Forget() {
	f.entries.Flush()
}
