package domain

import (
	"context"
	"time"
)

// ArtifactRepository defines persistence for artifact records.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *Artifact) error
	GetByID(ctx context.Context, id string) (*Artifact, error)
}

// PipelineRepository defines persistence for pipelines and templates.
type PipelineRepository interface {
	Create(ctx context.Context, pipeline *Pipeline) error
	GetByID(ctx context.Context, id string) (*Pipeline, error)
	ListTemplates(ctx context.Context) ([]Pipeline, error)
}

// JobRepository defines the durable queue and state machine storage for
// jobs. Every transition is an atomic compare-and-set on (id, expected
// status, claim token) so two workers can never both believe they own the
// same job.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)

	// Claim moves the oldest eligible job on queue to processing under
	// claimToken with a lease running until leaseUntil. Eligible means
	// pending with NextRunAt due, or processing with an expired lease
	// (abandoned by a crashed worker). Returns ErrNoJobAvailable when the
	// queue is empty; losing a race to another claimant is not an error.
	Claim(ctx context.Context, queue, claimToken string, leaseUntil time.Time) (*Job, error)

	// RenewLease extends the lease held under claimToken. Returns
	// ErrStaleLease when the token no longer owns the job.
	RenewLease(ctx context.Context, jobID, claimToken string, leaseUntil time.Time) error

	// Complete atomically records the output artifact and report and moves
	// the job to completed. Returns ErrStaleLease for a claimant whose
	// lease was lost.
	Complete(ctx context.Context, jobID, claimToken, outputArtifactID string, report ExecutionReport) error

	// Fail records the error detail and report. A nil retryAt leaves the
	// job terminally failed; otherwise the job is atomically requeued
	// pending with NextRunAt set, the attempt counter already incremented
	// by Claim. Returns ErrStaleLease for a lost lease.
	Fail(ctx context.Context, jobID, claimToken, errDetail string, report *ExecutionReport, retryAt *time.Time) error

	// RequestCancel marks a live job for cooperative cancellation. Workers
	// observe the flag between batches.
	RequestCancel(ctx context.Context, jobID string) error
}

// ExportRepository defines persistence for export records.
type ExportRepository interface {
	Create(ctx context.Context, export *Export) error
	GetByID(ctx context.Context, id string) (*Export, error)
	ListByJobID(ctx context.Context, jobID string) ([]Export, error)
}
