package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"prepline/internal/classify"
	"prepline/internal/domain"
)

type datasetResponse struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	ContentType    string  `json:"content_type"`
	SizeBytes      int64   `json:"size_bytes"`
	Checksum       string  `json:"checksum"`
	Modality       string  `json:"modality"`
	RowCount       *int64  `json:"row_count,omitempty"`
	ColumnCount    *int64  `json:"column_count,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	SuggestedTask  string  `json:"suggested_task,omitempty"`
	Uncertain      bool    `json:"uncertain,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ProducedByJob  string  `json:"produced_by_job,omitempty"`
}

// DatasetsUpload ingests one multipart file, classifies a bounded sample,
// and records the artifact. An uncertain classification is reported back to
// the caller, never treated as an error.
func (a *App) DatasetsUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	sampleLimit := a.SampleSizeBytes
	if sampleLimit <= 0 {
		sampleLimit = classify.DefaultSampleSize
	}
	sample := make([]byte, sampleLimit)
	n, err := io.ReadFull(file, sample)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	sample = sample[:n]

	detection := classify.Detect(header.Filename, sample)

	id := uuid.NewString()
	hasher := sha256.New()
	body := io.TeeReader(io.MultiReader(bytes.NewReader(sample), file), hasher)
	key, size, err := a.Store.WriteFrom(r.Context(), fmt.Sprintf("uploads/%s/%s", id, header.Filename), body)
	if err != nil {
		a.Logger.Error().Err(err).Msg("datasets: store upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}

	artifact := &domain.Artifact{
		ID:          id,
		StorageKey:  key,
		Filename:    header.Filename,
		ContentType: detection.ContentType,
		SizeBytes:   size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Modality:    detection.Modality,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.Artifacts.Create(r.Context(), artifact); err != nil {
		a.Logger.Error().Err(err).Msg("datasets: record artifact failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record artifact")
		return
	}

	resp := toDatasetResponse(artifact)
	resp.Confidence = detection.Confidence
	resp.SuggestedTask = string(detection.SuggestedTask)
	resp.Uncertain = detection.Uncertain()
	a.json(w, http.StatusCreated, resp)
}

// DatasetsGet returns a stored artifact record.
func (a *App) DatasetsGet(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.Artifacts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "dataset not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load dataset")
		return
	}
	a.json(w, http.StatusOK, toDatasetResponse(artifact))
}

func toDatasetResponse(artifact *domain.Artifact) datasetResponse {
	return datasetResponse{
		ID:            artifact.ID,
		Filename:      artifact.Filename,
		ContentType:   artifact.ContentType,
		SizeBytes:     artifact.SizeBytes,
		Checksum:      artifact.Checksum,
		Modality:      string(artifact.Modality),
		RowCount:      artifact.RowCount,
		ColumnCount:   artifact.ColumnCount,
		CreatedAt:     artifact.CreatedAt.Format(time.RFC3339),
		ProducedByJob: artifact.ProducedBy,
	}
}
