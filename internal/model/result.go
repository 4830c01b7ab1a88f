package model

import "time"

// StageStatus is the outcome of one stage
type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
)

// StageResult records what happened in one stage for one boundary
type StageResult struct {
	Stage    Stage         `json:"stage" yaml:"stage"`
	Status   StageStatus   `json:"status" yaml:"status"`
	ExitCode int           `json:"exit_code,omitempty" yaml:"exit_code,omitempty"` // tool stages only; -1 if the tool never ran
	Stderr   string        `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Err      error         `json:"-" yaml:"-"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Failed reports whether the stage failed
func (r StageResult) Failed() bool {
	return r.Status == StatusFailed
}

// BoundaryOutcome summarizes a boundary across all stages
type BoundaryOutcome string

const (
	OutcomeSucceeded BoundaryOutcome = "succeeded"
	OutcomeDegraded  BoundaryOutcome = "degraded" // filter ok, a tolerated stage failed
	OutcomeFailed    BoundaryOutcome = "failed"
	OutcomeCached    BoundaryOutcome = "cached"
)

// BoundaryResult is the result of running the pipeline for one boundary
type BoundaryResult struct {
	Boundary  string          `json:"boundary" yaml:"boundary"`
	Artifacts ArtifactSet     `json:"artifacts" yaml:"artifacts"`
	Rows      int64           `json:"rows" yaml:"rows"`
	Stages    []StageResult   `json:"stages" yaml:"stages"`
	Outcome   BoundaryOutcome `json:"outcome" yaml:"outcome"`
}

// Stage returns the result for the named stage, if it ran
func (r *BoundaryResult) Stage(stage Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageResult{}, false
}

// RunSummary aggregates a whole sweep
type RunSummary struct {
	Dataset   string           `json:"dataset" yaml:"dataset"`
	Category  string           `json:"category" yaml:"category"`
	Results   []BoundaryResult `json:"results" yaml:"results"`
	Aborted   bool             `json:"aborted" yaml:"aborted"`
	StartedAt time.Time        `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration    `json:"elapsed" yaml:"elapsed"`
}

// Count returns how many boundaries ended with the given outcome
func (s *RunSummary) Count(outcome BoundaryOutcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Rows returns the total number of rows written across all boundaries
func (s *RunSummary) Rows() int64 {
	var total int64
	for _, r := range s.Results {
		total += r.Rows
	}
	return total
}
