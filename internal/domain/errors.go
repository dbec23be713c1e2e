package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// Authoring-time validation failures, surfaced synchronously and never
	// retried.
	ErrUnknownStep      = errors.New("unknown step")
	ErrModalityMismatch = errors.New("modality mismatch")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrEmptyPipeline    = errors.New("empty pipeline")
	ErrRegistryConflict = errors.New("registry conflict")

	// ErrPipelineNotFrozen rejects job submission for pipelines that never
	// passed validation.
	ErrPipelineNotFrozen = errors.New("pipeline not frozen")

	// ErrStaleLease marks a write from a claimant whose lease already
	// expired. It is an internal race outcome: logged, never surfaced to
	// end users.
	ErrStaleLease = errors.New("stale lease")

	// ErrNoJobAvailable signals an empty queue to the worker poll loop.
	ErrNoJobAvailable = errors.New("no job available")
)

// ValidationError carries enough context for an actionable authoring error:
// which step at which position, and which parameter when relevant.
type ValidationError struct {
	Err      error // one of the validation sentinels above
	StepKind string
	Position int
	Param    string
	Detail   string
}

func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.StepKind != "" {
		msg = fmt.Sprintf("%s: step %q at position %d", msg, e.StepKind, e.Position)
	}
	if e.Param != "" {
		msg = fmt.Sprintf("%s: parameter %q", msg, e.Param)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Code returns a stable machine-readable identifier for API responses.
func (e *ValidationError) Code() string {
	switch {
	case errors.Is(e.Err, ErrUnknownStep):
		return "unknown_step"
	case errors.Is(e.Err, ErrModalityMismatch):
		return "modality_mismatch"
	case errors.Is(e.Err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(e.Err, ErrEmptyPipeline):
		return "empty_pipeline"
	case errors.Is(e.Err, ErrRegistryConflict):
		return "registry_conflict"
	}
	return "validation_error"
}
