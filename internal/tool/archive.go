package tool

import "context"

// Archiver packs a GeoPackage into a seek-optimized zip with sozip
type Archiver struct {
	runner Runner
	binary string
}

// NewArchiver creates an archiver; binary defaults to sozip
func NewArchiver(runner Runner, binary string) *Archiver {
	if binary == "" {
		binary = "sozip"
	}
	return &Archiver{runner: runner, binary: binary}
}

// Archive runs `sozip --junk-paths <dst> <src>` so the archive holds
// only the bare file name.
func (a *Archiver) Archive(ctx context.Context, src, dst string) Result {
	return a.runner.Run(ctx, a.binary, "--junk-paths", dst, src)
}
