package model

import (
	"path/filepath"
	"strings"
)

// File extensions of the three artifacts produced per boundary
const (
	ExtParquet    = ".parquet"
	ExtGeoPackage = ".gpkg"
	ExtArchive    = ".gpkg.zip"
)

// ArtifactSet holds the sibling output paths for one
// (dataset, category, boundary) triple.
type ArtifactSet struct {
	Dir        string `json:"dir" yaml:"dir"`
	Parquet    string `json:"parquet" yaml:"parquet"`
	GeoPackage string `json:"gpkg" yaml:"gpkg"`
	Archive    string `json:"archive" yaml:"archive"`
}

// Stem returns a file name without its directory and final extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewArtifactSet derives output paths as
// <outputRoot>/<category>/<dataset-stem>/<boundary-stem>.<ext>
func NewArtifactSet(outputRoot, category, datasetPath, boundaryPath string) ArtifactSet {
	dir := filepath.Join(outputRoot, category, Stem(datasetPath))
	base := filepath.Join(dir, Stem(boundaryPath))
	return ArtifactSet{
		Dir:        dir,
		Parquet:    base + ExtParquet,
		GeoPackage: base + ExtGeoPackage,
		Archive:    base + ExtArchive,
	}
}
