package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prepline/internal/domain"
	"prepline/internal/infra"
	"prepline/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Claiming
// relies on FOR UPDATE SKIP LOCKED so concurrent workers never block each
// other, and every lease-holder write is guarded by the claim token.
type JobRepositoryPG struct {
	runner *infra.SQLRunner
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(runner *infra.SQLRunner) *JobRepositoryPG {
	return &JobRepositoryPG{runner: runner}
}

// Create inserts a new pending job.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.runner.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.PipelineID,
		job.ArtifactID,
		job.Queue,
		job.Status,
		job.MaxAttempts,
		job.NextRunAt,
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QGetJob, jobID)
	return scanJob(row)
}

// Claim atomically moves the oldest eligible job on queue to processing under
// claimToken. Eligible means pending and due, or processing with a lapsed
// lease.
func (r *JobRepositoryPG) Claim(ctx context.Context, queue, claimToken string, leaseUntil time.Time) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QClaimJob, queue, claimToken, leaseUntil)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

// RenewLease extends the lease held under claimToken.
func (r *JobRepositoryPG) RenewLease(ctx context.Context, jobID, claimToken string, leaseUntil time.Time) error {
	tag, err := r.runner.Exec(ctx, sqlinline.QRenewLease, jobID, claimToken, leaseUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLease
	}
	return nil
}

// Complete records the output artifact and attempt report and finishes the
// job.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, claimToken, outputArtifactID string, report domain.ExecutionReport) error {
	reportJSON, err := marshalReports(&report)
	if err != nil {
		return err
	}
	tag, err := r.runner.Exec(ctx, sqlinline.QCompleteJob, jobID, claimToken, outputArtifactID, reportJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLease
	}
	return nil
}

// Fail records the failure; a non-nil retryAt requeues the job pending.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, claimToken, errDetail string, report *domain.ExecutionReport, retryAt *time.Time) error {
	reportJSON, err := marshalReports(report)
	if err != nil {
		return err
	}
	tag, err := r.runner.Exec(ctx, sqlinline.QFailJob, jobID, claimToken, errDetail, reportJSON, retryAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLease
	}
	return nil
}

// RequestCancel flags a live job for cooperative cancellation.
func (r *JobRepositoryPG) RequestCancel(ctx context.Context, jobID string) error {
	tag, err := r.runner.Exec(ctx, sqlinline.QRequestCancel, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// marshalReports wraps a single report as a one-element jsonb array so the
// append operator can concatenate it onto the stored report history. A nil
// report marshals to SQL null, which the queries treat as "append nothing".
func marshalReports(report *domain.ExecutionReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	b, err := json.Marshal([]domain.ExecutionReport{*report})
	if err != nil {
		return nil, fmt.Errorf("encode execution report: %w", err)
	}
	return b, nil
}

func scanJob(row interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var (
		job         domain.Job
		reportsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.PipelineID,
		&job.ArtifactID,
		&job.Queue,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ClaimToken,
		&job.LeaseExpiresAt,
		&job.NextRunAt,
		&job.CancelRequested,
		&job.ErrorDetail,
		&job.OutputArtifactID,
		&reportsJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(reportsJSON) > 0 {
		if err := json.Unmarshal(reportsJSON, &job.Reports); err != nil {
			return nil, fmt.Errorf("decode execution reports: %w", err)
		}
	}
	return &job, nil
}
