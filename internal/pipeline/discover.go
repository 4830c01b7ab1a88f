package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNoBoundaries is returned when the boundaries directory is missing
	ErrNoBoundaries = errors.New("boundaries directory not found")
	// ErrDatasetMissing is returned when the dataset file does not exist
	ErrDatasetMissing = errors.New("dataset not found")
)

// Discover lists the boundary files in dir whose name ends in ext,
// sorted lexicographically by file name. Dot-files are included.
func Discover(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoBoundaries, dir)
		}
		return nil, fmt.Errorf("read boundaries: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ext) || e.IsDir() {
			continue
		}
		if !e.Type().IsRegular() {
			// follow symlinks to regular files
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
