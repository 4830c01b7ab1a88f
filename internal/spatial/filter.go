// Package spatial runs the boundary intersection query on an embedded
// DuckDB with the spatial extension and exports the matches as parquet.
package spatial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/ppiankov/geosplit/internal/model"
)

// ErrInputMissing is returned when the dataset or boundary file does not exist
var ErrInputMissing = errors.New("input file missing")

// Request describes one split
type Request struct {
	Dataset  string
	Boundary string
	Output   string
}

// Filter splits a dataset by boundary files
type Filter struct {
	geometryColumn string
	codec          string
	install        bool
	threads        int
	memoryLimit    string
	open           func() (*sql.DB, error)
}

// NewFilter creates a new Filter with the given configuration
func NewFilter(cfg model.SpatialConfig) (*Filter, error) {
	codec, err := ValidateCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	geom := cfg.GeometryColumn
	if geom == "" {
		geom = "geometry"
	}
	return &Filter{
		geometryColumn: geom,
		codec:          codec,
		install:        cfg.InstallExtension,
		threads:        cfg.Threads,
		memoryLimit:    cfg.MemoryLimit,
		open:           openInMemory,
	}, nil
}

func openInMemory() (*sql.DB, error) {
	return sql.Open("duckdb", "")
}

// Split writes the rows of req.Dataset intersecting req.Boundary to
// req.Output and returns how many rows were written. A fresh engine is
// opened for every call and closed before returning. On failure the
// partial output file is removed.
func (f *Filter) Split(ctx context.Context, req Request) (rows int64, err error) {
	dataset, err := existingAbs(req.Dataset)
	if err != nil {
		return 0, err
	}
	boundary, err := existingAbs(req.Boundary)
	if err != nil {
		return 0, err
	}
	output, err := filepath.Abs(req.Output)
	if err != nil {
		return 0, fmt.Errorf("resolve output path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	db, err := f.open()
	if err != nil {
		return 0, fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close engine: %w", closeErr)
		}
	}()

	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("connect engine: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := f.prepare(ctx, conn); err != nil {
		return 0, err
	}

	defer func() {
		if err != nil {
			_ = os.Remove(output)
		}
	}()

	if _, err := conn.ExecContext(ctx, CopyStatement(dataset, boundary, output, f.geometryColumn, f.codec)); err != nil {
		return 0, fmt.Errorf("spatial join: %w", err)
	}

	if err := conn.QueryRowContext(ctx, CountStatement(output)).Scan(&rows); err != nil {
		return 0, fmt.Errorf("count output rows: %w", err)
	}

	return rows, nil
}

// prepare loads the spatial extension and applies engine settings
func (f *Filter) prepare(ctx context.Context, conn *sql.Conn) error {
	var stmts []string
	if f.install {
		stmts = append(stmts, "INSTALL spatial")
	}
	stmts = append(stmts, "LOAD spatial")
	if f.threads > 0 {
		stmts = append(stmts, fmt.Sprintf("SET threads = %d", f.threads))
	}
	if f.memoryLimit != "" {
		stmts = append(stmts, fmt.Sprintf("SET memory_limit = %s", quoteLiteral(f.memoryLimit)))
	}

	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func existingAbs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrInputMissing, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return abs, nil
}
