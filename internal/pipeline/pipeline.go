package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/geosplit/internal/cache"
	"github.com/ppiankov/geosplit/internal/logger"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/ppiankov/geosplit/internal/spatial"
	"github.com/ppiankov/geosplit/internal/tool"
	"github.com/rs/zerolog"
)

// ErrRunAborted is returned when a stage failure hits an abort policy
// or the run is cancelled.
var ErrRunAborted = errors.New("run aborted")

// Splitter writes the dataset rows intersecting a boundary to a parquet file
type Splitter interface {
	Split(ctx context.Context, req spatial.Request) (int64, error)
}

// Converter turns the parquet subset into a GeoPackage
type Converter interface {
	Convert(ctx context.Context, src, dst string) tool.Result
}

// Archiver zips the GeoPackage
type Archiver interface {
	Archive(ctx context.Context, src, dst string) tool.Result
}

// Pipeline runs filter, convert, archive and cleanup for one boundary
type Pipeline struct {
	splitter  Splitter
	converter Converter
	archiver  Archiver
	ledger    *cache.Ledger // nil when the ledger is disabled
	config    *model.Config
	log       *zerolog.Logger
	remove    func(string) error
}

// NewPipeline wires the engine, the external tools and the completion
// ledger from the configuration.
func NewPipeline(cfg *model.Config, log *zerolog.Logger) (*Pipeline, error) {
	filter, err := spatial.NewFilter(cfg.Spatial)
	if err != nil {
		return nil, fmt.Errorf("spatial filter: %w", err)
	}

	runner := tool.NewExecRunner(cfg.Tools.Timeout)

	var ledger *cache.Ledger
	if cfg.Cache.Enabled {
		ledger = cache.NewLedger(
			cache.NewDiskCache(cfg.Cache.Dir, cfg.Cache.DiskTTL),
			cache.NewFingerprintCache(cfg.Cache.MemoryTTL),
		)
	}

	return New(cfg, filter, tool.NewConverter(runner, cfg.Tools.Ogr2ogr), tool.NewArchiver(runner, cfg.Tools.Sozip), ledger, log), nil
}

// New assembles a pipeline from its parts
func New(cfg *model.Config, s Splitter, c Converter, a Archiver, ledger *cache.Ledger, log *zerolog.Logger) *Pipeline {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Pipeline{
		splitter:  s,
		converter: c,
		archiver:  a,
		ledger:    ledger,
		config:    cfg,
		log:       log,
		remove:    os.Remove,
	}
}

// Artifacts returns the output paths for a boundary
func (p *Pipeline) Artifacts(boundary string) model.ArtifactSet {
	return model.NewArtifactSet(p.config.Output.Root, p.config.Input.Category, p.config.Input.Dataset, boundary)
}

// Process runs every stage for one boundary. The returned error is
// non-nil only when the run must stop; it then wraps ErrRunAborted.
// Tolerated failures are reported in the result.
func (p *Pipeline) Process(ctx context.Context, boundary string) (model.BoundaryResult, error) {
	ctx = logger.WithBoundary(ctx, filepath.Base(boundary))
	res := model.BoundaryResult{
		Boundary:  boundary,
		Artifacts: p.Artifacts(boundary),
	}

	if err := ctx.Err(); err != nil {
		res.Outcome = model.OutcomeFailed
		return res, fmt.Errorf("%w: %w", ErrRunAborted, err)
	}

	ledgerKey := p.ledgerKey(ctx, boundary)
	if ledgerKey != "" {
		if entry, ok := p.ledger.Lookup(ledgerKey, res.Artifacts); ok {
			res.Rows = entry.Rows
			res.Outcome = model.OutcomeCached
			logger.FromContext(ctx, p.log).Info().
				Int64("rows", entry.Rows).
				Time("completed_at", entry.CompletedAt).
				Msg("inputs unchanged since last run, skipping")
			return res, nil
		}
	}

	filter := p.runFilter(ctx, boundary, res.Artifacts, &res.Rows)
	res.Stages = append(res.Stages, filter)
	stop, abortErr := p.onFailure(ctx, filter)
	if !stop {
		abortErr = p.runTools(ctx, &res)
	}

	// a GeoPackage left by an interrupted run goes too, so cleanup always runs
	cleanup := p.runCleanup(ctx, res.Artifacts.GeoPackage)
	res.Stages = append(res.Stages, cleanup)
	if abortErr == nil {
		if _, err := p.onFailure(ctx, cleanup); err != nil {
			abortErr = err
		}
	}

	res.Outcome = outcome(res.Stages, abortErr != nil, p.config.Policy)
	if stop {
		res.Outcome = model.OutcomeFailed
	}
	if abortErr != nil {
		return res, abortErr
	}

	if ledgerKey != "" && res.Outcome == model.OutcomeSucceeded {
		entry := cache.LedgerEntry{
			Rows:        res.Rows,
			Parquet:     res.Artifacts.Parquet,
			Archive:     res.Artifacts.Archive,
			CompletedAt: time.Now().UTC(),
		}
		if err := p.ledger.Record(ledgerKey, entry); err != nil {
			logger.FromContext(ctx, p.log).Warn().Err(err).Msg("could not record completed boundary")
		}
	}

	return res, nil
}

// runTools runs convert and archive. A non-nil error means abort.
func (p *Pipeline) runTools(ctx context.Context, res *model.BoundaryResult) error {
	convert := p.runConvert(ctx, res.Artifacts)
	res.Stages = append(res.Stages, convert)
	if stop, err := p.onFailure(ctx, convert); stop {
		return err
	}

	archive := p.runArchive(ctx, res.Artifacts)
	res.Stages = append(res.Stages, archive)
	if _, err := p.onFailure(ctx, archive); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) runFilter(ctx context.Context, boundary string, artifacts model.ArtifactSet, rows *int64) model.StageResult {
	start := time.Now()
	n, err := p.splitter.Split(ctx, spatial.Request{
		Dataset:  p.config.Input.Dataset,
		Boundary: boundary,
		Output:   artifacts.Parquet,
	})
	sr := model.StageResult{Stage: model.StageFilter, Duration: time.Since(start)}
	if err != nil {
		sr.Status = model.StatusFailed
		sr.Err = err
		sr.Reason = err.Error()
		return sr
	}
	*rows = n
	sr.Status = model.StatusOK
	return sr
}

func (p *Pipeline) runConvert(ctx context.Context, artifacts model.ArtifactSet) model.StageResult {
	if _, err := os.Stat(artifacts.Parquet); err != nil {
		return model.StageResult{
			Stage:    model.StageConvert,
			Status:   model.StatusSkipped,
			ExitCode: -1,
			Reason:   "no parquet output to convert",
		}
	}
	return fromTool(model.StageConvert, p.converter.Convert(ctx, artifacts.Parquet, artifacts.GeoPackage))
}

func (p *Pipeline) runArchive(ctx context.Context, artifacts model.ArtifactSet) model.StageResult {
	if _, err := os.Stat(artifacts.GeoPackage); err != nil {
		return model.StageResult{
			Stage:    model.StageArchive,
			Status:   model.StatusSkipped,
			ExitCode: -1,
			Reason:   "no geopackage to archive",
		}
	}
	// sozip refuses to overwrite, so an archive from an earlier run goes first
	if err := p.remove(artifacts.Archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		return model.StageResult{
			Stage:    model.StageArchive,
			Status:   model.StatusFailed,
			ExitCode: -1,
			Err:      err,
			Reason:   fmt.Sprintf("remove stale archive: %v", err),
		}
	}
	return fromTool(model.StageArchive, p.archiver.Archive(ctx, artifacts.GeoPackage, artifacts.Archive))
}

func (p *Pipeline) runCleanup(_ context.Context, gpkg string) model.StageResult {
	start := time.Now()
	err := p.remove(gpkg)
	sr := model.StageResult{Stage: model.StageCleanup, Status: model.StatusOK, Duration: time.Since(start)}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		sr.Status = model.StatusFailed
		sr.Err = err
		sr.Reason = err.Error()
	}
	return sr
}

// onFailure logs the stage result and applies the stage policy.
// stop means no further stages run for this boundary; a non-nil
// error means the whole run stops.
func (p *Pipeline) onFailure(ctx context.Context, sr model.StageResult) (stop bool, err error) {
	log := logger.FromContext(logger.WithStage(ctx, string(sr.Stage)), p.log)

	if !sr.Failed() {
		ev := log.Debug()
		if sr.Status == model.StatusSkipped {
			ev = log.Info().Str("reason", sr.Reason)
		}
		ev.Str("status", string(sr.Status)).Dur("duration", sr.Duration).Msg("stage finished")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, fmt.Errorf("%w: %w", ErrRunAborted, ctxErr)
		}
		return false, nil
	}

	action := p.config.Policy.For(sr.Stage)
	if ctxErr := ctx.Err(); ctxErr != nil {
		action = model.ActionAbort
	}

	var ev *zerolog.Event
	if action == model.ActionAbort {
		ev = log.Error()
	} else {
		ev = log.Warn()
	}
	if sr.ExitCode != 0 {
		ev = ev.Int("exit_code", sr.ExitCode)
	}
	if sr.Stderr != "" {
		ev = ev.Str("stderr", sr.Stderr)
	}
	ev.Err(sr.Err).Str("policy", string(action)).Msg("stage failed")

	switch action {
	case model.ActionAbort:
		return true, fmt.Errorf("%w: %s stage: %w", ErrRunAborted, sr.Stage, sr.Err)
	case model.ActionSkip:
		return true, nil
	default:
		return false, nil
	}
}

func (p *Pipeline) ledgerKey(ctx context.Context, boundary string) string {
	if p.ledger == nil {
		return ""
	}
	key, err := p.ledger.Key(p.config.Input.Dataset, boundary, p.config.Input.Category, p.config.Spatial)
	if err != nil {
		logger.FromContext(ctx, p.log).Debug().Err(err).Msg("ledger key unavailable")
		return ""
	}
	return key
}

func fromTool(stage model.Stage, r tool.Result) model.StageResult {
	sr := model.StageResult{
		Stage:    stage,
		Status:   model.StatusOK,
		ExitCode: r.ExitCode,
		Stderr:   r.Stderr,
		Duration: r.Duration,
	}
	if !r.OK() {
		sr.Status = model.StatusFailed
		sr.Err = r.Err
		if sr.Err == nil {
			sr.Err = fmt.Errorf("%s exited with status %d", stage, r.ExitCode)
		}
		sr.Reason = sr.Err.Error()
	}
	return sr
}

// outcome classifies a boundary from its stage results
func outcome(stages []model.StageResult, aborted bool, policy model.PolicyTable) model.BoundaryOutcome {
	if aborted {
		return model.OutcomeFailed
	}
	degraded := false
	for _, s := range stages {
		if s.Status == model.StatusSkipped {
			degraded = true
			continue
		}
		if !s.Failed() {
			continue
		}
		if s.Stage == model.StageFilter || policy.For(s.Stage) == model.ActionSkip {
			return model.OutcomeFailed
		}
		degraded = true
	}
	if degraded {
		return model.OutcomeDegraded
	}
	return model.OutcomeSucceeded
}
