package export

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepline/internal/adapter/repo/mem"
	"prepline/internal/domain"
	"prepline/internal/storage"
)

type fixture struct {
	jobs      *mem.JobRepository
	artifacts *mem.ArtifactRepository
	exports   *mem.ExportRepository
	store     *storage.FileStore
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		jobs:      mem.NewJobRepository(),
		artifacts: mem.NewArtifactRepository(),
		exports:   mem.NewExportRepository(),
		store:     store,
	}
	f.service = New(f.jobs, f.artifacts, f.exports, store, zerolog.Nop())
	return f
}

// seedCompletedJob stores a canonical output artifact and a completed job
// pointing at it.
func (f *fixture) seedCompletedJob(t *testing.T) *domain.Job {
	t.Helper()
	ctx := context.Background()
	key, err := f.store.Write(ctx, "processed/p/out.csv", []byte("name,code\nada,1\ngrace,2\n"))
	require.NoError(t, err)
	art := &domain.Artifact{
		ID:         "out-1",
		StorageKey: key,
		Modality:   domain.ModalityTabular,
		Checksum:   "abc",
	}
	require.NoError(t, f.artifacts.Create(ctx, art))

	job := &domain.Job{
		ID:               "j-1",
		Queue:            "tabular",
		Status:           domain.JobStatusCompleted,
		OutputArtifactID: art.ID,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, f.jobs.Create(ctx, job))
	return job
}

func (f *fixture) readPayload(t *testing.T, exportID string) []byte {
	t.Helper()
	ctx := context.Background()
	exp, err := f.exports.GetByID(ctx, exportID)
	require.NoError(t, err)
	art, err := f.artifacts.GetByID(ctx, exp.ArtifactID)
	require.NoError(t, err)
	rc, err := f.store.Open(ctx, art.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestCreateCSVExport(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)

	exp, err := f.service.Create(context.Background(), job.ID, domain.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code"}, exp.Schema)
	assert.Equal(t, int64(2), exp.RowCount)
	assert.Equal(t, "name,code\nada,1\ngrace,2\n", string(f.readPayload(t, exp.ID)))
}

func TestCreateRecordsExport(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)

	exp, err := f.service.Create(context.Background(), job.ID, domain.ExportRecords)
	require.NoError(t, err)
	want := `{"name":"ada","code":"1"}` + "\n" + `{"name":"grace","code":"2"}` + "\n"
	assert.Equal(t, want, string(f.readPayload(t, exp.ID)))
}

func TestCreateBundleExport(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)

	exp, err := f.service.Create(context.Background(), job.ID, domain.ExportBundle)
	require.NoError(t, err)
	payload := f.readPayload(t, exp.ID)

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"data.csv", "schema.json", "manifest.json"}, names)

	rc, err := zr.Open("manifest.json")
	require.NoError(t, err)
	manifest, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Contains(t, string(manifest), `"row_count": 2`)
	assert.Contains(t, string(manifest), `"source_artifact_id": "out-1"`)
}

func TestBundleExportIsReproducible(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)

	first, err := f.service.Create(context.Background(), job.ID, domain.ExportBundle)
	require.NoError(t, err)
	second, err := f.service.Create(context.Background(), job.ID, domain.ExportBundle)
	require.NoError(t, err)
	assert.Equal(t, f.readPayload(t, first.ID), f.readPayload(t, second.ID))
}

func TestCreateRejectsUnfinishedJob(t *testing.T) {
	f := newFixture(t)
	job := &domain.Job{ID: "j-2", Status: domain.JobStatusProcessing}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	_, err := f.service.Create(context.Background(), job.ID, domain.ExportCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed")
}

func TestCreateRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)
	_, err := f.service.Create(context.Background(), job.ID, domain.ExportFormat("parquet"))
	require.Error(t, err)
}

func TestListForJobNewestFirst(t *testing.T) {
	f := newFixture(t)
	job := f.seedCompletedJob(t)

	_, err := f.service.Create(context.Background(), job.ID, domain.ExportCSV)
	require.NoError(t, err)
	_, err = f.service.Create(context.Background(), job.ID, domain.ExportRecords)
	require.NoError(t, err)

	got, err := f.service.ListForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
