package spatial

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/geosplit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter(t *testing.T) {
	f, err := NewFilter(model.SpatialConfig{Compression: "Snappy"})
	require.NoError(t, err)
	assert.Equal(t, "snappy", f.codec)
	assert.Equal(t, "geometry", f.geometryColumn)

	_, err = NewFilter(model.SpatialConfig{Compression: "lzo"})
	assert.Error(t, err)
}

func TestSplit_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "overture.parquet")
	require.NoError(t, os.WriteFile(dataset, []byte("x"), 0644))

	f, err := NewFilter(model.SpatialConfig{})
	require.NoError(t, err)
	f.open = func() (*sql.DB, error) {
		t.Fatal("engine must not be opened when inputs are missing")
		return nil, nil
	}

	_, err = f.Split(context.Background(), Request{
		Dataset:  filepath.Join(dir, "missing.parquet"),
		Boundary: dataset,
		Output:   filepath.Join(dir, "out", "x.parquet"),
	})
	assert.ErrorIs(t, err, ErrInputMissing)

	_, err = f.Split(context.Background(), Request{
		Dataset:  dataset,
		Boundary: filepath.Join(dir, "missing.parquet"),
		Output:   filepath.Join(dir, "out", "x.parquet"),
	})
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestSplit_OpenFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.parquet")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	f, err := NewFilter(model.SpatialConfig{})
	require.NoError(t, err)
	boom := errors.New("boom")
	f.open = func() (*sql.DB, error) { return nil, boom }

	out := filepath.Join(dir, "outputs", "buildings", "in", "in.parquet")
	_, err = f.Split(context.Background(), Request{Dataset: input, Boundary: input, Output: out})
	require.ErrorIs(t, err, boom)

	// the output directory is ensured before the engine is opened
	info, statErr := os.Stat(filepath.Dir(out))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

type building struct {
	ID       int64
	Name     string
	Geometry string
}

func readBuildings(t *testing.T, db *sql.DB, query string) []building {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []building
	for rows.Next() {
		var b building
		require.NoError(t, rows.Scan(&b.ID, &b.Name, &b.Geometry))
		out = append(out, b)
	}
	require.NoError(t, rows.Err())
	return out
}

func columnNames(t *testing.T, db *sql.DB, path string) []string {
	t.Helper()
	rows, err := db.Query("SELECT column_name FROM (DESCRIBE SELECT * FROM read_parquet(" + quoteLiteral(path) + "))")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

// TestCopyStatement_RowsAppearOncePerBoundaryFile runs the generated
// statement against plain numeric "geometries" with a stand-in
// ST_Intersects, so it needs no extension download.
func TestCopyStatement_RowsAppearOncePerBoundaryFile(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "overture.parquet")
	boundary := filepath.Join(dir, "two-regions.parquet")
	out := filepath.Join(dir, "out.parquet")

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		"CREATE MACRO ST_Intersects(a, b) AS abs(a - b) <= 1",
		"COPY (SELECT * FROM (VALUES (1, 'a', 1), (2, 'b', 10)) t(id, name, geometry)) TO " + quoteLiteral(dataset) + " (FORMAT PARQUET)",
		// both boundary geometries touch building 1
		"COPY (SELECT * FROM (VALUES (1), (2)) t(geometry)) TO " + quoteLiteral(boundary) + " (FORMAT PARQUET)",
		CopyStatement(dataset, boundary, out, "geometry", "zstd"),
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	assert.Equal(t, []string{"id", "name", "geometry"}, columnNames(t, db, out))
	got := readBuildings(t, db, "SELECT id, name, CAST(geometry AS VARCHAR) FROM read_parquet("+quoteLiteral(out)+") ORDER BY id")
	assert.Equal(t, []building{{ID: 1, Name: "a", Geometry: "1"}}, got)

	var count int64
	require.NoError(t, db.QueryRow(CountStatement(out)).Scan(&count))
	assert.Equal(t, int64(1), count)
}

// TestSplit_Engine runs the real engine. It needs the spatial extension,
// which is downloaded on first use, so it only runs when
// GEOSPLIT_ENGINE_TESTS is set.
func TestSplit_Engine(t *testing.T) {
	if os.Getenv("GEOSPLIT_ENGINE_TESTS") == "" {
		t.Skip("set GEOSPLIT_ENGINE_TESTS=1 to run engine tests")
	}

	dir := t.TempDir()
	dataset := filepath.Join(dir, "overture.parquet")
	inside := filepath.Join(dir, "inside.parquet")
	overlapping := filepath.Join(dir, "overlapping.parquet")
	empty := filepath.Join(dir, "empty.parquet")

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range []string{
		"INSTALL spatial",
		"LOAD spatial",
		"COPY (SELECT * FROM (VALUES (1, 'a', ST_Point(1, 1)), (2, 'b', ST_Point(5, 5)), (3, 'c', ST_Point(2, 0))) t(id, name, geometry)) TO " + quoteLiteral(dataset) + " (FORMAT PARQUET)",
		// touches the third point on its edge
		"COPY (SELECT ST_GeomFromText('POLYGON((0 0, 3 0, 3 3, 0 3, 0 0))') AS geometry) TO " + quoteLiteral(inside) + " (FORMAT PARQUET)",
		// two polygons that both cover the first and third points
		"COPY (SELECT ST_GeomFromText(wkt) AS geometry FROM (VALUES ('POLYGON((0 0, 3 0, 3 3, 0 3, 0 0))'), ('POLYGON((0 0, 2 0, 2 2, 0 2, 0 0))')) t(wkt)) TO " + quoteLiteral(overlapping) + " (FORMAT PARQUET)",
		"COPY (SELECT ST_GeomFromText('POLYGON((10 10, 11 10, 11 11, 10 11, 10 10))') AS geometry) TO " + quoteLiteral(empty) + " (FORMAT PARQUET)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	f, err := NewFilter(model.SpatialConfig{Compression: "zstd", InstallExtension: true, Threads: 1})
	require.NoError(t, err)

	want := []building{
		{ID: 1, Name: "a", Geometry: "POINT (1 1)"},
		{ID: 3, Name: "c", Geometry: "POINT (2 0)"},
	}
	readBack := func(path string) []building {
		return readBuildings(t, db, "SELECT id, name, ST_AsText(geometry) FROM read_parquet("+quoteLiteral(path)+") ORDER BY id")
	}

	out := filepath.Join(dir, "outputs", "buildings", "overture", "inside.parquet")
	rows, err := f.Split(context.Background(), Request{Dataset: dataset, Boundary: inside, Output: out})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, []string{"id", "name", "geometry"}, columnNames(t, db, out))
	assert.Equal(t, want, readBack(out))

	first, err := os.ReadFile(out)
	require.NoError(t, err)

	// re-running with unchanged inputs yields the same bytes
	_, err = f.Split(context.Background(), Request{Dataset: dataset, Boundary: inside, Output: out})
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	multi := filepath.Join(dir, "outputs", "buildings", "overture", "overlapping.parquet")
	rows, err = f.Split(context.Background(), Request{Dataset: dataset, Boundary: overlapping, Output: multi})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, want, readBack(multi))

	rows, err = f.Split(context.Background(), Request{Dataset: dataset, Boundary: empty, Output: filepath.Join(dir, "outputs", "empty.parquet")})
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.FileExists(t, filepath.Join(dir, "outputs", "empty.parquet"))
}
