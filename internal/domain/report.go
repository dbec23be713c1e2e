package domain

import "time"

// StepStatus is the outcome of one step within one job attempt.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepReport records what a single step did during one attempt.
type StepReport struct {
	Kind       string        `json:"kind"`
	Position   int           `json:"position"`
	Status     StepStatus    `json:"status"`
	Duration   time.Duration `json:"duration_ns"`
	RecordsIn  int64         `json:"records_in"`
	RecordsOut int64         `json:"records_out"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// ExecutionReport is the per-attempt record of step outcomes. One report is
// produced per job attempt and appended to the job; it is never mutated
// afterwards.
type ExecutionReport struct {
	Attempt int          `json:"attempt"`
	Steps   []StepReport `json:"steps"`
	// InputWarnings records rows and columns lost while decoding the input,
	// before any step ran. Step-level warnings live on the StepReport.
	InputWarnings []string  `json:"input_warnings,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}
