// Package step defines the atomic transformation unit of the pipeline engine
// and the registry that catalogs available step implementations.
package step

import (
	"context"
	"errors"
	"fmt"

	"prepline/internal/domain"
)

// Record is one row or item flowing through a pipeline. Index is the record's
// position in the source artifact and survives filtering so diagnostics can
// point back at the original data.
type Record struct {
	Index  int64
	Values map[string]string
}

// Clone returns a copy whose value map does not alias the original.
func (r Record) Clone() Record {
	out := Record{Index: r.Index, Values: make(map[string]string, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Batch is a bounded slice of records sharing a column layout. Steps treat
// batches as immutable inputs and produce new batches; the executor relies on
// that for safe retries.
type Batch struct {
	Columns []string
	Records []Record
}

// NewBatch returns an empty batch with the given column layout.
func NewBatch(columns []string) *Batch {
	return &Batch{Columns: append([]string(nil), columns...)}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// RecordError reports one malformed record a step could not process. The
// executor drops the record, records a warning, and continues unless the
// per-batch error ratio breaches the configured threshold.
type RecordError struct {
	Index  int64
	Reason string
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

// FatalError aborts the entire pipeline run: a parameter contract violated at
// run time, resource exhaustion, anything that must not be retried per-record.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

// Fatalf builds a FatalError.
func Fatalf(format string, args ...any) error {
	return &FatalError{msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Step is the atomic, pluggable transformation unit. Apply is a pure function
// of the input batch and the parameters the step was constructed with: same
// input and parameters always produce the same output.
type Step interface {
	// Kind names the transformation, unique per modality.
	Kind() string

	// Modality declares which pipeline modality the step is compatible
	// with; domain.ModalityAny matches every pipeline.
	Modality() domain.Modality

	// Idempotent is false only for steps with inherent randomness; such
	// steps must take a seed parameter so re-execution stays reproducible.
	Idempotent() bool

	// OrderSensitive reports whether cross-batch ordering matters. It
	// defaults to true for every built-in step that does not explicitly
	// opt out, so parallel batch execution never reorders silently.
	OrderSensitive() bool

	// Apply transforms a batch. Per-record failures come back as
	// RecordError values; an error return aborts the attempt when fatal.
	Apply(ctx context.Context, batch *Batch) (*Batch, []RecordError, error)
}

// Factory constructs a configured step from a parameter mapping. New must
// validate parameters fully before any data flows and never partially apply.
type Factory struct {
	Kind     string
	Modality domain.Modality
	Version  int
	Summary  string
	New      func(params Params) (Step, error)
}

// Validate instantiates the step solely to run parameter validation and
// discards it. Construction is pure, so this is safe to call at authoring
// time.
func (f Factory) Validate(params Params) error {
	_, err := f.New(params)
	return err
}
