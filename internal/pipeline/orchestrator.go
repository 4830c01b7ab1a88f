package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/geosplit/internal/metrics"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/rs/zerolog"
)

// Processor runs the stages for one boundary
type Processor interface {
	Process(ctx context.Context, boundary string) (model.BoundaryResult, error)
	Artifacts(boundary string) model.ArtifactSet
}

// Orchestrator sweeps the boundary files one at a time
type Orchestrator struct {
	processor Processor
	config    *model.Config
	recorder  *metrics.Recorder // optional
	log       *zerolog.Logger
}

// NewOrchestrator creates an orchestrator; recorder may be nil
func NewOrchestrator(cfg *model.Config, p Processor, recorder *metrics.Recorder, log *zerolog.Logger) *Orchestrator {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Orchestrator{
		processor: p,
		config:    cfg,
		recorder:  recorder,
		log:       log,
	}
}

// PlanItem is one boundary and the artifacts it will produce
type PlanItem struct {
	Boundary  string            `yaml:"boundary"`
	Artifacts model.ArtifactSet `yaml:"artifacts"`
}

// Plan lists the boundaries in processing order without running anything
func (o *Orchestrator) Plan() ([]PlanItem, error) {
	boundaries, err := Discover(o.config.Input.Boundaries, o.config.Input.BoundaryExt)
	if err != nil {
		return nil, err
	}
	plan := make([]PlanItem, len(boundaries))
	for i, b := range boundaries {
		plan[i] = PlanItem{Boundary: b, Artifacts: o.processor.Artifacts(b)}
	}
	return plan, nil
}

// Run processes every boundary sequentially. The summary is returned
// even when the run aborts; the error then wraps ErrRunAborted.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		Dataset:   o.config.Input.Dataset,
		Category:  o.config.Input.Category,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		summary.Elapsed = time.Since(summary.StartedAt)
		if o.recorder != nil {
			o.recorder.ObserveRun(summary)
		}
	}()

	if err := o.ensureRoots(); err != nil {
		return summary, err
	}

	if _, err := os.Stat(o.config.Input.Dataset); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return summary, fmt.Errorf("%w: %s", ErrDatasetMissing, o.config.Input.Dataset)
		}
		return summary, fmt.Errorf("stat dataset: %w", err)
	}

	boundaries, err := Discover(o.config.Input.Boundaries, o.config.Input.BoundaryExt)
	if err != nil {
		return summary, err
	}
	if len(boundaries) == 0 {
		o.log.Warn().Str("dir", o.config.Input.Boundaries).Msg("no boundary files found")
		return summary, nil
	}

	o.log.Info().
		Str("dataset", o.config.Input.Dataset).
		Str("category", o.config.Input.Category).
		Int("boundaries", len(boundaries)).
		Msg("starting split")

	for i, boundary := range boundaries {
		res, err := o.processor.Process(ctx, boundary)
		summary.Results = append(summary.Results, res)
		if o.recorder != nil {
			o.recorder.ObserveBoundary(o.config.Input.Category, res)
		}

		o.log.Info().
			Str("boundary", boundary).
			Str("outcome", string(res.Outcome)).
			Int64("rows", res.Rows).
			Str("progress", fmt.Sprintf("%d/%d", i+1, len(boundaries))).
			Msg("boundary done")

		if err != nil {
			summary.Aborted = true
			o.log.Error().Err(err).Int("remaining", len(boundaries)-i-1).Msg("run aborted")
			return summary, err
		}
	}

	return summary, nil
}

// ensureRoots creates the input and output roots like a fresh checkout expects
func (o *Orchestrator) ensureRoots() error {
	for _, dir := range []string{o.config.Input.Root, o.config.Output.Root} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
