package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/geosplit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("x", "y")
	assert.Equal(t, a, Key("x", "y"))
	assert.NotEqual(t, a, Key("xy"))
	assert.NotEqual(t, a, Key("y", "x"))
	assert.Regexp(t, `^geosplit:v1:[0-9a-f]{16}$`, a)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.parquet")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))

	first, err := Fingerprint(path)
	require.NoError(t, err)

	again, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte("three"), 0644))
	changed, err := Fingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	_, err = Fingerprint(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFingerprintCache_RemembersDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overture.parquet")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))

	fps := NewFingerprintCache(time.Minute)
	first, err := fps.Fingerprint(path)
	require.NoError(t, err)

	// a run keeps the identity it saw first
	require.NoError(t, os.WriteFile(path, []byte("three"), 0644))
	again, err := fps.Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	fps.Forget()
	changed, err := fps.Fingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestFingerprintCache_DoesNotRememberFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.parquet")
	fps := NewFingerprintCache(time.Minute)

	_, err := fps.Fingerprint(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err = fps.Fingerprint(path)
	assert.NoError(t, err)
}

func TestDiskCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	c := NewDiskCache(dir, time.Hour)

	key := Key("a")
	require.NoError(t, c.Set(key, []byte("v"), 0))

	v, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	// a second instance sees persisted entries
	v, ok = NewDiskCache(dir, time.Hour).Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key), "deleting a missing key is not an error")
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, c.Set("k", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLedger(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "overture.parquet")
	boundary := filepath.Join(dir, "US-CA.parquet")
	require.NoError(t, os.WriteFile(dataset, []byte("d"), 0644))
	require.NoError(t, os.WriteFile(boundary, []byte("b"), 0644))

	ledger := NewLedger(NewDiskCache(filepath.Join(dir, "cache"), time.Hour), NewFingerprintCache(time.Minute))

	spatial := model.SpatialConfig{GeometryColumn: "geometry", Compression: "zstd"}
	key, err := ledger.Key(dataset, boundary, "buildings", spatial)
	require.NoError(t, err)

	other, err := ledger.Key(dataset, boundary, "buildings", model.SpatialConfig{GeometryColumn: "geometry", Compression: "snappy"})
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	// a changed boundary file changes the key
	require.NoError(t, os.WriteFile(boundary, []byte("b2"), 0644))
	changed, err := ledger.Key(dataset, boundary, "buildings", spatial)
	require.NoError(t, err)
	assert.NotEqual(t, key, changed)
	require.NoError(t, os.WriteFile(boundary, []byte("b"), 0644))
	key, err = ledger.Key(dataset, boundary, "buildings", spatial)
	require.NoError(t, err)

	artifacts := model.NewArtifactSet(filepath.Join(dir, "outputs"), "buildings", dataset, boundary)

	_, ok := ledger.Lookup(key, artifacts)
	assert.False(t, ok)

	require.NoError(t, ledger.Record(key, LedgerEntry{Rows: 7, Parquet: artifacts.Parquet, Archive: artifacts.Archive}))

	// artifacts not on disk yet
	_, ok = ledger.Lookup(key, artifacts)
	assert.False(t, ok)

	require.NoError(t, os.MkdirAll(artifacts.Dir, 0755))
	require.NoError(t, os.WriteFile(artifacts.Parquet, []byte("p"), 0644))
	require.NoError(t, os.WriteFile(artifacts.Archive, []byte("z"), 0644))

	entry, ok := ledger.Lookup(key, artifacts)
	require.True(t, ok)
	assert.Equal(t, int64(7), entry.Rows)
}

func TestLedger_CorruptEntryIsDropped(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, c.Set("k", []byte("{not json"), 0))

	_, ok := NewLedger(c, nil).Lookup("k", model.ArtifactSet{})
	assert.False(t, ok)

	_, ok = c.Get("k")
	assert.False(t, ok)
}
