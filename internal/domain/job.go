package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed out of s once a
// job's retry budget is spent. Pending and processing are always live;
// completed is always terminal; failed is terminal only when attempts are
// exhausted, which the orchestrator decides.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one durable, asynchronous execution of a pipeline against an input
// artifact. The orchestrator owns the record for its whole lifetime; a worker
// only borrows it for the duration of a single leased attempt.
type Job struct {
	ID               string
	PipelineID       string
	ArtifactID       string
	Queue            string // modality-keyed logical queue
	Status           JobStatus
	Attempts         int
	MaxAttempts      int
	ClaimToken       string // set while processing, identifies the leaseholder
	LeaseExpiresAt   *time.Time
	NextRunAt        time.Time // earliest time a pending job may be claimed
	CancelRequested  bool
	ErrorDetail      string
	OutputArtifactID string
	Reports          []ExecutionReport
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LeaseExpired reports whether the current claim lease, if any, lapsed at
// time now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.LeaseExpiresAt != nil && now.After(*j.LeaseExpiresAt)
}
