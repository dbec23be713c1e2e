// Package export materializes a completed job's output artifact in the
// supported hand-off formats. Exports are deterministic: the same artifact
// and format always reproduce the same bytes.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prepline/internal/domain"
	"prepline/internal/storage"
	"prepline/pkg/zip"
)

// Service reads completed output artifacts and writes export artifacts.
type Service struct {
	jobs      domain.JobRepository
	artifacts domain.ArtifactRepository
	exports   domain.ExportRepository
	store     *storage.FileStore
	logger    zerolog.Logger
}

// New wires the export service over the shared repositories and store.
func New(jobs domain.JobRepository, artifacts domain.ArtifactRepository, exports domain.ExportRepository, store *storage.FileStore, logger zerolog.Logger) *Service {
	return &Service{jobs: jobs, artifacts: artifacts, exports: exports, store: store, logger: logger}
}

// Create materializes one export of the job's output. The job must be
// completed; anything else is a caller error.
func (s *Service) Create(ctx context.Context, jobID string, format domain.ExportFormat) (*domain.Export, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s, only completed jobs can be exported", jobID, job.Status)
	}
	source, err := s.artifacts.GetByID(ctx, job.OutputArtifactID)
	if err != nil {
		return nil, fmt.Errorf("load output artifact: %w", err)
	}

	table, err := s.readTable(ctx, source)
	if err != nil {
		return nil, err
	}

	var (
		payload     []byte
		contentType string
		ext         string
	)
	switch format {
	case domain.ExportCSV:
		payload, err = encodeCSV(table)
		contentType, ext = "text/csv", "csv"
	case domain.ExportRecords:
		payload, err = encodeRecords(table)
		contentType, ext = "application/x-ndjson", "jsonl"
	case domain.ExportBundle:
		payload, err = encodeBundle(table, source)
		contentType, ext = "application/zip", "zip"
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s export: %w", format, err)
	}

	exportID := uuid.NewString()
	key, err := s.store.Write(ctx, fmt.Sprintf("exports/%s/%s.%s", jobID, exportID, ext), payload)
	if err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}

	sum := sha256.Sum256(payload)
	artifact := &domain.Artifact{
		ID:          uuid.NewString(),
		StorageKey:  key,
		Filename:    fmt.Sprintf("export.%s", ext),
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		Checksum:    hex.EncodeToString(sum[:]),
		Modality:    source.Modality,
		ProducedBy:  jobID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("record export artifact: %w", err)
	}

	exp := &domain.Export{
		ID:         exportID,
		JobID:      jobID,
		Format:     format,
		ArtifactID: artifact.ID,
		Schema:     table.columns,
		RowCount:   int64(len(table.rows)),
		CreatedAt:  artifact.CreatedAt,
	}
	if err := s.exports.Create(ctx, exp); err != nil {
		return nil, fmt.Errorf("record export: %w", err)
	}
	s.logger.Info().
		Str("job_id", jobID).
		Str("export_id", exp.ID).
		Str("format", string(format)).
		Int64("rows", exp.RowCount).
		Msg("export: created")
	return exp, nil
}

// Get returns one export record.
func (s *Service) Get(ctx context.Context, id string) (*domain.Export, error) {
	return s.exports.GetByID(ctx, id)
}

// ListForJob returns every export of a job, newest first.
func (s *Service) ListForJob(ctx context.Context, jobID string) ([]domain.Export, error) {
	return s.exports.ListByJobID(ctx, jobID)
}

// table is a fully materialized output artifact. Outputs are written in
// canonical CSV by the executor, so this is the one decode path.
type table struct {
	columns []string
	rows    [][]string
}

func (s *Service) readTable(ctx context.Context, source *domain.Artifact) (*table, error) {
	rc, err := s.store.Open(ctx, source.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open output artifact: %w", err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read output header: %w", err)
	}
	t := &table{columns: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read output row: %w", err)
		}
		t.rows = append(t.rows, row)
	}
}

func encodeCSV(t *table) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.columns); err != nil {
		return nil, err
	}
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeRecords writes one JSON object per line with keys in column order.
func encodeRecords(t *table) ([]byte, error) {
	buf := &bytes.Buffer{}
	for _, row := range t.rows {
		buf.WriteByte('{')
		for i, col := range t.columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(row[i])
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteString("}\n")
	}
	return buf.Bytes(), nil
}

// bundleManifest describes a dataset bundle to its consumer.
type bundleManifest struct {
	SourceArtifactID string   `json:"source_artifact_id"`
	SourceChecksum   string   `json:"source_checksum"`
	Modality         string   `json:"modality"`
	Columns          []string `json:"columns"`
	RowCount         int      `json:"row_count"`
}

// encodeBundle packs the data, its schema, and a manifest into one archive.
func encodeBundle(t *table, source *domain.Artifact) ([]byte, error) {
	data, err := encodeCSV(t)
	if err != nil {
		return nil, err
	}
	schema, err := json.MarshalIndent(map[string]any{"columns": t.columns}, "", "  ")
	if err != nil {
		return nil, err
	}
	manifest, err := json.MarshalIndent(bundleManifest{
		SourceArtifactID: source.ID,
		SourceChecksum:   source.Checksum,
		Modality:         string(source.Modality),
		Columns:          t.columns,
		RowCount:         len(t.rows),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return zip.Archive([]zip.Entry{
		{Name: "data.csv", Data: data},
		{Name: "schema.json", Data: schema},
		{Name: "manifest.json", Data: manifest},
	})
}
