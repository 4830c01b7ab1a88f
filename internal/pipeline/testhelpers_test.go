package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/geosplit/internal/model"
	"github.com/ppiankov/geosplit/internal/spatial"
	"github.com/ppiankov/geosplit/internal/tool"
	"github.com/stretchr/testify/require"
)

// fakeSplitter writes a placeholder parquet file per request
type fakeSplitter struct {
	rows  int64
	fail  map[string]error // keyed by boundary base name
	calls []string
}

func (f *fakeSplitter) Split(_ context.Context, req spatial.Request) (int64, error) {
	f.calls = append(f.calls, filepath.Base(req.Boundary))
	if err := f.fail[filepath.Base(req.Boundary)]; err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(req.Output, []byte("PAR1"), 0644); err != nil {
		return 0, err
	}
	return f.rows, nil
}

// fakeConverter creates the GeoPackage unless told to fail
type fakeConverter struct {
	fail     bool
	noOutput bool
	calls    int
}

func (f *fakeConverter) Convert(_ context.Context, src, dst string) tool.Result {
	f.calls++
	if f.fail {
		return tool.Result{ExitCode: 1, Stderr: "ERROR 1: unable to open", Err: errors.New("ogr2ogr exited with status 1")}
	}
	if !f.noOutput {
		if err := os.WriteFile(dst, []byte("gpkg"), 0644); err != nil {
			return tool.Result{ExitCode: -1, Err: err}
		}
	}
	return tool.Result{}
}

// fakeArchiver creates the zip unless told to fail. Like sozip it
// refuses to replace an existing archive.
type fakeArchiver struct {
	fail  bool
	calls int
}

func (f *fakeArchiver) Archive(_ context.Context, src, dst string) tool.Result {
	f.calls++
	if f.fail {
		return tool.Result{ExitCode: -1, Err: tool.ErrToolNotFound}
	}
	if _, err := os.Stat(dst); err == nil {
		return tool.Result{ExitCode: 1, Stderr: "ERROR 1: " + dst + " already exists", Err: errors.New("sozip exited with status 1")}
	}
	if err := os.WriteFile(dst, []byte("zip"), 0644); err != nil {
		return tool.Result{ExitCode: -1, Err: err}
	}
	return tool.Result{}
}

// workspace lays out inputs/ under a temp dir and returns a config for it
func workspace(t *testing.T, boundaries ...string) *model.Config {
	t.Helper()
	root := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.Input.Root = filepath.Join(root, "inputs")
	cfg.Input.Dataset = filepath.Join(root, "inputs", "buildings", "overture.parquet")
	cfg.Input.Boundaries = filepath.Join(root, "inputs", "boundaries")
	cfg.Output.Root = filepath.Join(root, "outputs")
	cfg.Cache.Enabled = false
	cfg.Cache.Dir = filepath.Join(root, "cache")

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Input.Dataset), 0755))
	require.NoError(t, os.WriteFile(cfg.Input.Dataset, []byte("dataset"), 0644))
	require.NoError(t, os.MkdirAll(cfg.Input.Boundaries, 0755))
	for _, b := range boundaries {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Input.Boundaries, b), []byte(b), 0644))
	}
	return cfg
}

func stageStatuses(res model.BoundaryResult) map[model.Stage]model.StageStatus {
	m := make(map[model.Stage]model.StageStatus)
	for _, s := range res.Stages {
		m[s.Stage] = s.Status
	}
	return m
}
