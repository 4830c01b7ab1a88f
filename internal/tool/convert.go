package tool

import "context"

// Converter translates the parquet output into a GeoPackage with ogr2ogr
type Converter struct {
	runner Runner
	binary string
}

// NewConverter creates a converter; binary defaults to ogr2ogr
func NewConverter(runner Runner, binary string) *Converter {
	if binary == "" {
		binary = "ogr2ogr"
	}
	return &Converter{runner: runner, binary: binary}
}

// Convert runs `ogr2ogr <dst> <src>`
func (c *Converter) Convert(ctx context.Context, src, dst string) Result {
	return c.runner.Run(ctx, c.binary, dst, src)
}
