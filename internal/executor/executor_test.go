package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/domain"
	"prepline/internal/step"
	"prepline/internal/storage"
)

func testExecutor(t *testing.T, cfg Config) (*Executor, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg := step.NewRegistry()
	require.NoError(t, step.RegisterBuiltins(reg))
	return New(reg, store, zerolog.Nop(), cfg), store
}

func writeInput(t *testing.T, store *storage.FileStore, name, contentType string, data string) *domain.Artifact {
	t.Helper()
	key, err := store.Write(context.Background(), "uploads/"+name, []byte(data))
	require.NoError(t, err)
	return &domain.Artifact{
		ID:          "in-" + name,
		StorageKey:  key,
		Filename:    name,
		ContentType: contentType,
		Modality:    domain.ModalityTabular,
		SizeBytes:   int64(len(data)),
	}
}

func frozenPipeline(specs ...domain.StepSpec) *domain.Pipeline {
	for i := range specs {
		specs[i].Position = i
		if specs[i].Modality == "" {
			specs[i].Modality = domain.ModalityTabular
		}
		if specs[i].Version == 0 {
			specs[i].Version = 1
		}
	}
	return &domain.Pipeline{
		ID:       "p-test",
		Name:     "test",
		TaskType: domain.TaskClassification,
		Modality: domain.ModalityTabular,
		Steps:    specs,
		Frozen:   true,
	}
}

func TestRunProducesDeterministicOutput(t *testing.T) {
	ex, store := testExecutor(t, Config{BatchSize: 2})
	in := writeInput(t, store, "a.csv", "text/csv",
		"age,city,target\n30,oslo,1\n,bergen,0\n40,oslo,1\n50,stavanger,0\n")
	p := frozenPipeline(
		domain.StepSpec{Kind: "impute_missing", Params: map[string]any{"columns": []any{"age"}, "strategy": "constant", "fill_value": "0"}},
		domain.StepSpec{Kind: "encode_labels", Params: map[string]any{"columns": []any{"city"}}},
	)

	first, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in, Attempt: 1})
	require.NoError(t, err)
	require.NotNil(t, first.Output)
	assert.Equal(t, int64(4), *first.Output.RowCount)
	assert.Equal(t, int64(3), *first.Output.ColumnCount)
	assert.Len(t, first.Report.Steps, 2)
	assert.Equal(t, int64(4), first.Report.Steps[0].RecordsIn)
	assert.Equal(t, int64(4), first.Report.Steps[1].RecordsOut)

	second, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in, Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, first.Output.Checksum, second.Output.Checksum)
	assert.Equal(t, first.Output.SizeBytes, second.Output.SizeBytes)
}

func TestRunFatalStepPublishesNothing(t *testing.T) {
	ex, store := testExecutor(t, Config{})
	in := writeInput(t, store, "b.csv", "text/csv", "a,b\n1,2\n")
	p := frozenPipeline(
		domain.StepSpec{Kind: "select_columns", Params: map[string]any{"columns": []any{"missing"}}},
	)

	_, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in, Attempt: 1})
	var fail *Failure
	require.ErrorAs(t, err, &fail)
	assert.False(t, fail.Cancelled)
	require.Len(t, fail.Report.Steps, 1)
	assert.Equal(t, domain.StepStatusFailed, fail.Report.Steps[0].Status)

	entries, err := os.ReadDir(filepath.Join(store.BasePath(), "processed"))
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, errors.Is(err, os.ErrNotExist))
	}
}

func TestRunBadRecordThreshold(t *testing.T) {
	const data = "x,target\n1,a\noops,b\nalso bad,c\n4,d\n"
	spec := domain.StepSpec{Kind: "scale_numeric", Params: map[string]any{"columns": []any{"x"}, "scaler": "minmax"}}

	t.Run("above threshold aborts", func(t *testing.T) {
		ex, store := testExecutor(t, Config{BadRecordThreshold: 0.25})
		in := writeInput(t, store, "c.csv", "text/csv", data)
		_, err := ex.Run(context.Background(), Request{Pipeline: frozenPipeline(spec), Input: in})
		var fail *Failure
		require.ErrorAs(t, err, &fail)
		assert.Contains(t, fail.Reason, "threshold")
	})

	t.Run("default threshold drops and warns", func(t *testing.T) {
		ex, store := testExecutor(t, Config{})
		in := writeInput(t, store, "d.csv", "text/csv", data)
		res, err := ex.Run(context.Background(), Request{Pipeline: frozenPipeline(spec), Input: in})
		require.NoError(t, err)
		assert.Equal(t, int64(2), *res.Output.RowCount)
		require.Len(t, res.Report.Steps, 1)
		assert.NotEmpty(t, res.Report.Steps[0].Warnings)
		assert.Equal(t, int64(4), res.Report.Steps[0].RecordsIn)
		assert.Equal(t, int64(2), res.Report.Steps[0].RecordsOut)
	})
}

func TestRunCancellation(t *testing.T) {
	ex, store := testExecutor(t, Config{BatchSize: 1})
	in := writeInput(t, store, "e.csv", "text/csv", "a\n1\n2\n3\n")
	p := frozenPipeline(domain.StepSpec{Kind: "drop_missing", Params: map[string]any{}})

	_, err := ex.Run(context.Background(), Request{
		Pipeline:        p,
		Input:           in,
		CancelRequested: func(context.Context) bool { return true },
	})
	var fail *Failure
	require.ErrorAs(t, err, &fail)
	assert.True(t, fail.Cancelled)
}

func TestRunRaggedRowsReported(t *testing.T) {
	ex, store := testExecutor(t, Config{})
	in := writeInput(t, store, "f.csv", "text/csv", "a,b\n1,2\n3\n4,5\n")
	p := frozenPipeline(domain.StepSpec{Kind: "drop_missing", Params: map[string]any{}})

	res, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in})
	require.NoError(t, err)
	assert.Equal(t, int64(2), *res.Output.RowCount)
	// Decode failures are input warnings, not failures of the first step.
	assert.NotEmpty(t, res.Report.InputWarnings)
	assert.Empty(t, res.Report.Steps[0].Warnings)
}

func TestRunJSONArrayInput(t *testing.T) {
	ex, store := testExecutor(t, Config{BatchSize: 2})
	in := writeInput(t, store, "g.json", "application/json",
		`[{"age":"30","city":"oslo"},{"age":"41","city":"bergen"},{"age":"35","city":"oslo"}]`)
	p := frozenPipeline(domain.StepSpec{Kind: "encode_labels", Params: map[string]any{"columns": []any{"city"}}})

	res, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in, Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), *res.Output.RowCount)
	assert.Equal(t, int64(2), *res.Output.ColumnCount)
	assert.Equal(t, int64(3), res.Report.Steps[0].RecordsIn)
}

func TestRunLateColumnWarned(t *testing.T) {
	ex, store := testExecutor(t, Config{BatchSize: 2})
	in := writeInput(t, store, "h.jsonl", "application/json",
		"{\"a\":\"1\"}\n{\"a\":\"2\"}\n{\"a\":\"3\",\"b\":\"late\"}\n")
	p := frozenPipeline(domain.StepSpec{Kind: "drop_missing", Params: map[string]any{}})

	res, err := ex.Run(context.Background(), Request{Pipeline: p, Input: in})
	require.NoError(t, err)
	assert.Equal(t, int64(3), *res.Output.RowCount)
	assert.Equal(t, int64(1), *res.Output.ColumnCount)
	require.NotEmpty(t, res.Report.InputWarnings)
	assert.Contains(t, res.Report.InputWarnings[len(res.Report.InputWarnings)-1], "b")
}

func TestRunUnfrozenPipelineRejected(t *testing.T) {
	ex, _ := testExecutor(t, Config{})
	p := frozenPipeline(domain.StepSpec{Kind: "drop_missing", Params: map[string]any{}})
	p.Frozen = false
	_, err := ex.Run(context.Background(), Request{Pipeline: p})
	require.Error(t, err)
}
