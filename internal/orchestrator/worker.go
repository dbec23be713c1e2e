package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"prepline/internal/domain"
	"prepline/internal/executor"
)

// WorkerConfig tunes the claim loop.
type WorkerConfig struct {
	// Queues lists the modality queues this worker drains, in priority order.
	Queues []string
	// PoolSize bounds concurrent job executions.
	PoolSize int
	// PollInterval is the sleep between claim sweeps that found nothing.
	PollInterval time.Duration
	// LeaseDuration is how long a claim holds the job before another worker
	// may reclaim it. Leases are renewed at half-life while the job runs.
	LeaseDuration time.Duration
	// RetryBackoffBase seeds the exponential retry delay.
	RetryBackoffBase time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if len(c.Queues) == 0 {
		c.Queues = []string{string(domain.ModalityTabular), string(domain.ModalityText)}
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 30 * time.Second
	}
	return c
}

// Worker claims jobs off the modality queues and drives them through the
// executor, renewing its lease while an attempt runs.
type Worker struct {
	jobs      domain.JobRepository
	pipelines domain.PipelineRepository
	artifacts domain.ArtifactRepository
	exec      *executor.Executor
	logger    zerolog.Logger
	cfg       WorkerConfig

	// now is swapped out in tests.
	now func() time.Time
}

// NewWorker builds a worker over the shared repositories and executor.
func NewWorker(jobs domain.JobRepository, pipelines domain.PipelineRepository, artifacts domain.ArtifactRepository, exec *executor.Executor, logger zerolog.Logger, cfg WorkerConfig) *Worker {
	return &Worker{
		jobs:      jobs,
		pipelines: pipelines,
		artifacts: artifacts,
		exec:      exec,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls queues until ctx is cancelled. Each claimed job runs on the
// shared pool; Run returns once in-flight jobs have drained.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Strs("queues", w.cfg.Queues).Int("pool", w.cfg.PoolSize).Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.PoolSize)

	for {
		select {
		case <-gctx.Done():
			err := g.Wait()
			w.logger.Info().Msg("worker: stopped")
			if err != nil {
				return err
			}
			return ctx.Err()
		default:
		}

		job := w.claimAny(gctx)
		if job == nil {
			select {
			case <-gctx.Done():
				continue
			case <-time.After(w.cfg.PollInterval):
				continue
			}
		}

		g.Go(func() error {
			w.handle(gctx, job)
			return nil
		})
	}
}

// claimAny sweeps the configured queues once and returns the first claimed
// job, or nil when every queue is empty.
func (w *Worker) claimAny(ctx context.Context) *domain.Job {
	for _, queue := range w.cfg.Queues {
		token := uuid.NewString()
		job, err := w.jobs.Claim(ctx, queue, token, w.now().Add(w.cfg.LeaseDuration))
		if err != nil {
			if errors.Is(err, domain.ErrNoJobAvailable) {
				continue
			}
			w.logger.Error().Err(err).Str("queue", queue).Msg("worker: claim failed")
			continue
		}
		return job
	}
	return nil
}

// handle runs one leased attempt end to end and records the outcome.
func (w *Worker) handle(ctx context.Context, job *domain.Job) {
	log := w.logger.With().Str("job_id", job.ID).Int("attempt", job.Attempts).Logger()
	log.Info().Str("queue", job.Queue).Msg("worker: picked job")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stopHeartbeat := w.startHeartbeat(runCtx, job, cancelRun, log)
	defer stopHeartbeat()

	result, runErr := w.runAttempt(runCtx, job)
	stopHeartbeat()

	if runErr == nil {
		if err := w.jobs.Complete(ctx, job.ID, job.ClaimToken, result.Output.ID, result.Report); err != nil {
			log.Error().Err(err).Msg("worker: record completion failed")
			return
		}
		log.Info().Str("output_artifact", result.Output.ID).Msg("worker: job completed")
		return
	}

	w.recordFailure(ctx, job, runErr, log)
}

// runAttempt loads the job's pipeline and input and executes the pipeline.
func (w *Worker) runAttempt(ctx context.Context, job *domain.Job) (*executor.Result, error) {
	p, err := w.pipelines.GetByID(ctx, job.PipelineID)
	if err != nil {
		return nil, &executor.Failure{Reason: "load pipeline: " + err.Error()}
	}
	art, err := w.artifacts.GetByID(ctx, job.ArtifactID)
	if err != nil {
		return nil, &executor.Failure{Reason: "load input artifact: " + err.Error()}
	}

	result, err := w.exec.Run(ctx, executor.Request{
		Pipeline:        p,
		Input:           art,
		Attempt:         job.Attempts,
		CancelRequested: w.cancelProbe(job.ID),
	})
	if err != nil {
		return nil, err
	}
	if err := w.artifacts.Create(ctx, result.Output); err != nil {
		return nil, &executor.Failure{Reason: "record output artifact: " + err.Error(), Report: result.Report}
	}
	return result, nil
}

// cancelProbe returns the between-batch cancellation check. It rereads the
// job so a cancel issued through any API replica is observed.
func (w *Worker) cancelProbe(jobID string) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		j, err := w.jobs.GetByID(ctx, jobID)
		if err != nil {
			return false
		}
		return j.CancelRequested
	}
}

// recordFailure applies the retry policy: cancelled attempts and exhausted
// retry budgets fail terminally, everything else requeues with exponential
// backoff.
func (w *Worker) recordFailure(ctx context.Context, job *domain.Job, runErr error, log zerolog.Logger) {
	var fail *executor.Failure
	reason := runErr.Error()
	var report *domain.ExecutionReport
	cancelled := false
	if errors.As(runErr, &fail) {
		report = &fail.Report
		cancelled = fail.Cancelled
	}

	var retryAt *time.Time
	if !cancelled && job.Attempts < job.MaxAttempts {
		at := w.now().Add(w.backoff(job.Attempts))
		retryAt = &at
	}

	if err := w.jobs.Fail(ctx, job.ID, job.ClaimToken, reason, report, retryAt); err != nil {
		log.Error().Err(err).Msg("worker: record failure failed")
		return
	}
	evt := log.Warn().Str("reason", reason)
	if retryAt != nil {
		evt.Time("retry_at", *retryAt).Msg("worker: attempt failed, requeued")
	} else {
		evt.Bool("cancelled", cancelled).Msg("worker: job failed")
	}
}

// backoff grows the retry delay as base * 2^(attempt-1).
func (w *Worker) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return w.cfg.RetryBackoffBase << (attempt - 1)
}

// startHeartbeat renews the job lease at half-life until stopped. A lost
// lease cancels the running attempt so a reclaiming worker never races a
// zombie.
func (w *Worker) startHeartbeat(ctx context.Context, job *domain.Job, cancelRun context.CancelFunc, log zerolog.Logger) func() {
	done := make(chan struct{})
	var stopOnce func()
	stopped := make(chan struct{})
	stopOnce = func() {
		select {
		case <-done:
		default:
			close(done)
			<-stopped
		}
	}

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(w.cfg.LeaseDuration / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := w.jobs.RenewLease(ctx, job.ID, job.ClaimToken, w.now().Add(w.cfg.LeaseDuration))
				if err == nil {
					continue
				}
				if errors.Is(err, domain.ErrStaleLease) {
					log.Warn().Msg("worker: lease lost, aborting attempt")
					cancelRun()
					return
				}
				log.Error().Err(err).Msg("worker: lease renewal failed")
			}
		}
	}()
	return stopOnce
}
