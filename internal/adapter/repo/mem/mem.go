// Package mem provides in-memory repository implementations with the same
// transition semantics as the PostgreSQL adapters. They back unit tests and
// single-process development runs.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"prepline/internal/domain"
)

// ArtifactRepository is an in-memory domain.ArtifactRepository.
type ArtifactRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Artifact
}

func NewArtifactRepository() *ArtifactRepository {
	return &ArtifactRepository{items: make(map[string]domain.Artifact)}
}

func (r *ArtifactRepository) Create(ctx context.Context, a *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = *a
	return nil
}

func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

// PipelineRepository is an in-memory domain.PipelineRepository.
type PipelineRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Pipeline
}

func NewPipelineRepository() *PipelineRepository {
	return &PipelineRepository{items: make(map[string]domain.Pipeline)}
}

func (r *PipelineRepository) Create(ctx context.Context, p *domain.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = *p
	return nil
}

func (r *PipelineRepository) GetByID(ctx context.Context, id string) (*domain.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := p
	out.Steps = append([]domain.StepSpec(nil), p.Steps...)
	return &out, nil
}

func (r *PipelineRepository) ListTemplates(ctx context.Context) ([]domain.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var templates []domain.Pipeline
	for _, p := range r.items {
		if p.IsTemplate {
			templates = append(templates, p)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// JobRepository is an in-memory domain.JobRepository. Transitions hold one
// mutex for their whole compare-and-set, which gives the same atomicity the
// SQL adapter gets from guarded UPDATE statements.
type JobRepository struct {
	mu    sync.Mutex
	items map[string]*domain.Job

	// Now is swapped out in tests to control lease expiry.
	Now func() time.Time
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		items: make(map[string]*domain.Job),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *job
	r.items[job.ID] = &stored
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

func (r *JobRepository) Claim(ctx context.Context, queue, claimToken string, leaseUntil time.Time) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	var oldest *domain.Job
	for _, job := range r.items {
		if job.Queue != queue {
			continue
		}
		eligible := (job.Status == domain.JobStatusPending && !job.NextRunAt.After(now)) ||
			(job.Status == domain.JobStatusProcessing && job.LeaseExpired(now))
		if !eligible {
			continue
		}
		if oldest == nil || job.NextRunAt.Before(oldest.NextRunAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, domain.ErrNoJobAvailable
	}

	oldest.Status = domain.JobStatusProcessing
	oldest.ClaimToken = claimToken
	lease := leaseUntil
	oldest.LeaseExpiresAt = &lease
	oldest.Attempts++
	// The new attempt starts clean; the prior attempt's error lives on in
	// the report log.
	oldest.ErrorDetail = ""
	oldest.UpdatedAt = now
	return copyJob(oldest), nil
}

func (r *JobRepository) RenewLease(ctx context.Context, jobID, claimToken string, leaseUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.owned(jobID, claimToken)
	if err != nil {
		return err
	}
	lease := leaseUntil
	job.LeaseExpiresAt = &lease
	job.UpdatedAt = r.Now()
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, jobID, claimToken, outputArtifactID string, report domain.ExecutionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.owned(jobID, claimToken)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusCompleted
	job.OutputArtifactID = outputArtifactID
	job.Reports = append(job.Reports, report)
	job.ClaimToken = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = r.Now()
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, jobID, claimToken, errDetail string, report *domain.ExecutionReport, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.owned(jobID, claimToken)
	if err != nil {
		return err
	}
	job.ErrorDetail = errDetail
	if report != nil {
		job.Reports = append(job.Reports, *report)
	}
	if retryAt != nil {
		job.Status = domain.JobStatusPending
		job.NextRunAt = *retryAt
	} else {
		job.Status = domain.JobStatusFailed
	}
	job.ClaimToken = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = r.Now()
	return nil
}

func (r *JobRepository) RequestCancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.items[jobID]
	if !ok || job.Status.Terminal() {
		return domain.ErrNotFound
	}
	job.CancelRequested = true
	job.UpdatedAt = r.Now()
	return nil
}

// owned returns the job when claimToken still holds its lease.
func (r *JobRepository) owned(jobID, claimToken string) (*domain.Job, error) {
	job, ok := r.items[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing || job.ClaimToken != claimToken {
		return nil, domain.ErrStaleLease
	}
	return job, nil
}

func copyJob(job *domain.Job) *domain.Job {
	out := *job
	if job.LeaseExpiresAt != nil {
		lease := *job.LeaseExpiresAt
		out.LeaseExpiresAt = &lease
	}
	out.Reports = append([]domain.ExecutionReport(nil), job.Reports...)
	return &out
}

// ExportRepository is an in-memory domain.ExportRepository.
type ExportRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Export
}

func NewExportRepository() *ExportRepository {
	return &ExportRepository{items: make(map[string]domain.Export)}
}

func (r *ExportRepository) Create(ctx context.Context, e *domain.Export) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[e.ID] = *e
	return nil
}

func (r *ExportRepository) GetByID(ctx context.Context, id string) (*domain.Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *ExportRepository) ListByJobID(ctx context.Context, jobID string) ([]domain.Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var exports []domain.Export
	for _, e := range r.items {
		if e.JobID == jobID {
			exports = append(exports, e)
		}
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].CreatedAt.After(exports[j].CreatedAt) })
	return exports, nil
}
