// Package orchestrator owns the job state machine: submission, claiming,
// leased execution, retry with backoff, and cooperative cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prepline/internal/domain"
)

// Service fronts job submission and inspection for the HTTP layer.
type Service struct {
	jobs        domain.JobRepository
	pipelines   domain.PipelineRepository
	artifacts   domain.ArtifactRepository
	logger      zerolog.Logger
	maxAttempts int
}

// NewService wires the repositories a submission needs to validate against.
func NewService(jobs domain.JobRepository, pipelines domain.PipelineRepository, artifacts domain.ArtifactRepository, logger zerolog.Logger, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Service{jobs: jobs, pipelines: pipelines, artifacts: artifacts, logger: logger, maxAttempts: maxAttempts}
}

// Submit validates the pipeline/artifact pair and enqueues a pending job on
// the pipeline's modality queue.
func (s *Service) Submit(ctx context.Context, pipelineID, artifactID string) (*domain.Job, error) {
	p, err := s.pipelines.GetByID(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if !p.Frozen {
		return nil, domain.ErrPipelineNotFrozen
	}
	art, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if !art.Modality.Compatible(p.Modality) {
		return nil, fmt.Errorf("artifact modality %q does not match pipeline modality %q: %w",
			art.Modality, p.Modality, domain.ErrModalityMismatch)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.NewString(),
		PipelineID:  p.ID,
		ArtifactID:  art.ID,
		Queue:       string(p.Modality),
		Status:      domain.JobStatusPending,
		MaxAttempts: s.maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("pipeline_id", p.ID).
		Str("queue", job.Queue).
		Msg("orchestrator: job submitted")
	return job, nil
}

// Get returns the job record including its accumulated attempt reports.
func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// Cancel flags a live job for cooperative cancellation. Completed and failed
// jobs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", id, job.Status)
	}
	return s.jobs.RequestCancel(ctx, id)
}
