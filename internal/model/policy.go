package model

import (
	"fmt"
	"strings"
)

// Stage identifies one step of the per-boundary pipeline
type Stage string

const (
	StageFilter  Stage = "filter"
	StageConvert Stage = "convert"
	StageArchive Stage = "archive"
	StageCleanup Stage = "cleanup"
)

// Stages lists the pipeline stages in execution order
var Stages = []Stage{StageFilter, StageConvert, StageArchive, StageCleanup}

// Action is what the orchestrator does when a stage fails
type Action string

const (
	// ActionAbort stops the whole run
	ActionAbort Action = "abort"
	// ActionSkip marks the boundary failed and moves to the next boundary
	ActionSkip Action = "skip"
	// ActionIgnore records the failure and continues with the next stage
	ActionIgnore Action = "ignore"
)

// ParseAction parses a policy action name
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAbort:
		return ActionAbort, nil
	case ActionSkip:
		return ActionSkip, nil
	case ActionIgnore:
		return ActionIgnore, nil
	}
	return "", fmt.Errorf("unknown policy action %q (want abort, skip or ignore)", s)
}

// PolicyTable maps each stage to its failure action
type PolicyTable struct {
	Filter  Action `yaml:"filter" mapstructure:"filter"`
	Convert Action `yaml:"convert" mapstructure:"convert"`
	Archive Action `yaml:"archive" mapstructure:"archive"`
	Cleanup Action `yaml:"cleanup" mapstructure:"cleanup"`
}

// DefaultPolicyTable isolates filter failures to their boundary and
// tolerates tool failures.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		Filter:  ActionSkip,
		Convert: ActionIgnore,
		Archive: ActionIgnore,
		Cleanup: ActionIgnore,
	}
}

// For returns the action configured for a stage.
// Unset entries fall back to the default table.
func (t PolicyTable) For(stage Stage) Action {
	var a Action
	switch stage {
	case StageFilter:
		a = t.Filter
	case StageConvert:
		a = t.Convert
	case StageArchive:
		a = t.Archive
	case StageCleanup:
		a = t.Cleanup
	}
	if a != "" {
		return a
	}
	if stage == StageFilter {
		return ActionSkip
	}
	return ActionIgnore
}

// Validate checks that every entry is a known action
func (t PolicyTable) Validate() error {
	for _, stage := range Stages {
		if _, err := ParseAction(string(t.For(stage))); err != nil {
			return fmt.Errorf("policy for %s: %w", stage, err)
		}
	}
	return nil
}
