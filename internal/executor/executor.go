// Package executor runs frozen pipelines against input artifacts, streaming
// record batches through the configured step sequence.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prepline/internal/domain"
	"prepline/internal/step"
	"prepline/internal/storage"
)

// Config carries the executor's tunables.
type Config struct {
	// BatchSize bounds how many records are held in memory at once.
	BatchSize int
	// BadRecordThreshold is the per-batch, per-step bad-record ratio above
	// which the run aborts. 1.0 (the default) means bad records are always
	// dropped and warned about, never fatal.
	BadRecordThreshold float64
	// WarningLimit caps warnings retained per step report.
	WarningLimit int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.BadRecordThreshold <= 0 {
		c.BadRecordThreshold = 1.0
	}
	if c.WarningLimit <= 0 {
		c.WarningLimit = 50
	}
	return c
}

// Failure wraps everything the orchestrator needs to record a failed
// attempt: the reason and the report accumulated up to the abort.
type Failure struct {
	Reason    string
	Cancelled bool
	Report    domain.ExecutionReport
}

func (f *Failure) Error() string { return f.Reason }

// Request describes one execution attempt.
type Request struct {
	Pipeline *domain.Pipeline
	Input    *domain.Artifact
	// Attempt is recorded in the report; the executor itself is stateless.
	Attempt int
	// CancelRequested is polled between batches. Nil means never cancelled.
	CancelRequested func(ctx context.Context) bool
}

// Result is a successful run: the published output artifact plus its report.
type Result struct {
	Output *domain.Artifact
	Report domain.ExecutionReport
}

// Executor streams pipelines. It holds no state across runs; everything
// per-run lives in the Request and the job that owns it.
type Executor struct {
	registry *step.Registry
	store    *storage.FileStore
	logger   zerolog.Logger
	cfg      Config
}

// New returns an executor backed by the given registry and artifact store.
func New(registry *step.Registry, store *storage.FileStore, logger zerolog.Logger, cfg Config) *Executor {
	return &Executor{registry: registry, store: store, logger: logger, cfg: cfg.withDefaults()}
}

// Run executes the pipeline over the input artifact. On success the output
// artifact is durably written and returned with the completed report; on
// failure no partial output is published and the error is a *Failure
// carrying the partial report.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Pipeline == nil || !req.Pipeline.Frozen {
		return nil, errors.New("executor: pipeline must be frozen")
	}
	if len(req.Pipeline.Steps) == 0 {
		return nil, errors.New("executor: pipeline has no steps")
	}
	started := time.Now().UTC()
	report := domain.ExecutionReport{Attempt: req.Attempt, StartedAt: started}

	steps, err := e.instantiate(req.Pipeline)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return nil, &Failure{Reason: err.Error(), Report: report}
	}

	stepReports := make([]domain.StepReport, len(steps))
	for i, st := range steps {
		stepReports[i] = domain.StepReport{
			Kind:     st.Kind(),
			Position: i,
			Status:   domain.StepStatusCompleted,
		}
	}

	fail := func(reason string, cancelled bool, failedStep int) (*Result, error) {
		if failedStep >= 0 {
			stepReports[failedStep].Status = domain.StepStatusFailed
			for i := failedStep + 1; i < len(stepReports); i++ {
				stepReports[i].Status = domain.StepStatusSkipped
			}
		}
		report.Steps = stepReports
		report.FinishedAt = time.Now().UTC()
		return nil, &Failure{Reason: reason, Cancelled: cancelled, Report: report}
	}

	rc, err := e.store.Open(ctx, req.Input.StorageKey)
	if err != nil {
		return fail(fmt.Sprintf("open input: %v", err), false, -1)
	}
	src, err := newSource(req.Input, rc)
	if err != nil {
		return fail(fmt.Sprintf("decode input: %v", err), false, -1)
	}
	defer src.Close()

	out, err := newOutputWriter()
	if err != nil {
		return fail(fmt.Sprintf("stage output: %v", err), false, -1)
	}
	defer out.discard()

	for {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Sprintf("attempt aborted: %v", err), false, -1)
		}
		if req.CancelRequested != nil && req.CancelRequested(ctx) {
			return fail("cancelled by request", true, -1)
		}

		batch, srcErrs, err := src.Next(e.cfg.BatchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Sprintf("read input: %v", err), false, -1)
		}
		if len(srcErrs) > 0 {
			// Decode failures belong to the input, not to whichever step
			// happens to run first.
			if len(report.InputWarnings) < e.cfg.WarningLimit {
				report.InputWarnings = append(report.InputWarnings, badRecordWarning(srcErrs))
			}
			if fatal, reason := e.checkThreshold(srcErrs, batch.Len()+len(srcErrs)); fatal {
				return fail(reason, false, -1)
			}
		}

		for i, st := range steps {
			in := batch.Len()
			stepReports[i].RecordsIn += int64(in)

			startStep := time.Now()
			next, recErrs, applyErr := st.Apply(ctx, batch)
			stepReports[i].Duration += time.Since(startStep)

			if applyErr != nil {
				if step.IsFatal(applyErr) {
					return fail(applyErr.Error(), false, i)
				}
				return fail(fmt.Sprintf("step %s: %v", st.Kind(), applyErr), false, i)
			}
			if len(recErrs) > 0 {
				e.recordBadRecords(&stepReports[i], recErrs)
				if fatal, reason := e.checkThreshold(recErrs, in); fatal {
					return fail(reason, false, i)
				}
			}
			batch = next
			stepReports[i].RecordsOut += int64(batch.Len())
		}

		if err := out.writeBatch(batch); err != nil {
			return fail(fmt.Sprintf("write output: %v", err), false, -1)
		}
	}

	if dropped := out.droppedColumns(); len(dropped) > 0 {
		report.InputWarnings = append(report.InputWarnings,
			fmt.Sprintf("columns %v first appeared after the output schema was fixed and were dropped", dropped))
	}

	artifact, err := out.publish(ctx, e.store, req)
	if err != nil {
		return fail(fmt.Sprintf("publish output: %v", err), false, -1)
	}

	report.Steps = stepReports
	report.FinishedAt = time.Now().UTC()
	e.logger.Info().
		Str("pipeline_id", req.Pipeline.ID).
		Str("output_artifact", artifact.ID).
		Int64("rows", *artifact.RowCount).
		Msg("executor: run completed")
	return &Result{Output: artifact, Report: report}, nil
}

// instantiate resolves and constructs every step up front so a stale
// registry entry or bad parameter aborts before any data is read.
func (e *Executor) instantiate(p *domain.Pipeline) ([]step.Step, error) {
	steps := make([]step.Step, 0, len(p.Steps))
	for _, spec := range p.Steps {
		factory, err := e.registry.Resolve(spec.Modality, spec.Kind, spec.Version)
		if err != nil {
			return nil, fmt.Errorf("resolve step %q: %w", spec.Kind, err)
		}
		st, err := factory.New(step.Params(spec.Params))
		if err != nil {
			return nil, fmt.Errorf("configure step %q: %w", spec.Kind, err)
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (e *Executor) recordBadRecords(sr *domain.StepReport, recErrs []step.RecordError) {
	if len(sr.Warnings) < e.cfg.WarningLimit {
		sr.Warnings = append(sr.Warnings, badRecordWarning(recErrs))
	}
}

func badRecordWarning(recErrs []step.RecordError) string {
	sample := recErrs
	if len(sample) > 3 {
		sample = sample[:3]
	}
	ids := make([]int64, 0, len(sample))
	for _, re := range sample {
		ids = append(ids, re.Index)
	}
	return fmt.Sprintf("%d bad record(s) dropped, sample indexes %v: %s", len(recErrs), ids, sample[0].Reason)
}

func (e *Executor) checkThreshold(recErrs []step.RecordError, in int) (bool, string) {
	if in == 0 {
		return false, ""
	}
	ratio := float64(len(recErrs)) / float64(in)
	if ratio > e.cfg.BadRecordThreshold {
		return true, fmt.Sprintf("bad-record ratio %.2f exceeds threshold %.2f (%d of %d records)",
			ratio, e.cfg.BadRecordThreshold, len(recErrs), in)
	}
	return false, ""
}

// outputWriter stages the result in a temp file, hashing as it writes, and
// only publishes to the artifact store once the whole run succeeded. Rows are
// written in canonical CSV form so identical runs produce identical bytes.
type outputWriter struct {
	file    *os.File
	csv     *csv.Writer
	hash    hash.Hash
	columns []string
	dropped []string
	rows    int64
}

func newOutputWriter() (*outputWriter, error) {
	f, err := os.CreateTemp("", "prepline-out-*.csv")
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	return &outputWriter{
		file: f,
		csv:  csv.NewWriter(io.MultiWriter(f, h)),
		hash: h,
	}, nil
}

func (w *outputWriter) writeBatch(batch *step.Batch) error {
	if w.columns == nil {
		w.columns = append([]string(nil), batch.Columns...)
		if err := w.csv.Write(w.columns); err != nil {
			return err
		}
	} else {
		// The header is already on disk, so any column a later batch
		// introduces cannot be written. Remember it for the report.
		for _, col := range batch.Columns {
			if !containsColumn(w.columns, col) && !containsColumn(w.dropped, col) {
				w.dropped = append(w.dropped, col)
				sort.Strings(w.dropped)
			}
		}
	}
	row := make([]string, len(w.columns))
	for _, rec := range batch.Records {
		for i, col := range w.columns {
			row[i] = rec.Values[col]
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
		w.rows++
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *outputWriter) publish(ctx context.Context, store *storage.FileStore, req Request) (*domain.Artifact, error) {
	if w.columns == nil {
		// An input with zero surviving records still publishes a header
		// so downstream exports see the schema... but with no batches at
		// all there is no schema to write.
		return nil, errors.New("no batches produced any output")
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return nil, err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := fmt.Sprintf("processed/%s/%s.csv", req.Pipeline.ID, id)
	cleanKey, size, err := store.WriteFrom(ctx, key, w.file)
	if err != nil {
		return nil, err
	}
	w.discard()

	rows := w.rows
	cols := int64(len(w.columns))
	return &domain.Artifact{
		ID:          id,
		StorageKey:  cleanKey,
		Filename:    "processed.csv",
		ContentType: "text/csv",
		SizeBytes:   size,
		Checksum:    hex.EncodeToString(w.hash.Sum(nil)),
		Modality:    req.Input.Modality,
		RowCount:    &rows,
		ColumnCount: &cols,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// droppedColumns lists columns that were seen after the header row was
// written, sorted for stable reporting.
func (w *outputWriter) droppedColumns() []string { return w.dropped }

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// discard removes the staging file. Safe to call twice.
func (w *outputWriter) discard() {
	if w.file != nil {
		name := w.file.Name()
		w.file.Close()
		os.Remove(name)
		w.file = nil
	}
}
