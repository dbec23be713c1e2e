package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"prepline/internal/domain"
)

type jobRequest struct {
	PipelineID string `json:"pipeline_id"`
	ArtifactID string `json:"artifact_id"`
}

// JobsSubmit enqueues a pipeline run and returns 202; execution is
// asynchronous and observed through JobsGet.
func (a *App) JobsSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.PipelineID == "" || req.ArtifactID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "pipeline_id and artifact_id are required")
		return
	}

	job, err := a.Jobs.Submit(r.Context(), req.PipelineID, req.ArtifactID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "pipeline or artifact not found")
		case errors.Is(err, domain.ErrPipelineNotFrozen):
			a.error(w, http.StatusUnprocessableEntity, "pipeline_not_frozen", "pipeline has not been validated")
		case errors.Is(err, domain.ErrModalityMismatch):
			a.error(w, http.StatusUnprocessableEntity, "modality_mismatch", err.Error())
		default:
			a.Logger.Error().Err(err).Msg("jobs: submit failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
		}
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// JobsGet returns the job state and its per-attempt execution reports.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobsCancel requests cooperative cancellation of a live job.
func (a *App) JobsCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Jobs.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"id": id, "cancel": "requested"})
}

type exportRequest struct {
	Format string `json:"format"`
}

// JobExportsCreate materializes one export of a completed job's output.
func (a *App) JobExportsCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	format := domain.ExportFormat(req.Format)
	if !format.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "format must be one of csv, records, bundle")
		return
	}

	jobID := chi.URLParam(r, "id")
	exp, err := a.Exports.Create(r.Context(), jobID, format)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	a.json(w, http.StatusCreated, toExportResponse(exp))
}

// JobExportsList returns every export of a job, newest first.
func (a *App) JobExportsList(w http.ResponseWriter, r *http.Request) {
	exports, err := a.Exports.ListForJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load exports")
		return
	}
	items := make([]map[string]any, 0, len(exports))
	for i := range exports {
		items = append(items, toExportResponse(&exports[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func toJobResponse(job *domain.Job) map[string]any {
	resp := map[string]any{
		"id":           job.ID,
		"pipeline_id":  job.PipelineID,
		"artifact_id":  job.ArtifactID,
		"queue":        job.Queue,
		"status":       job.Status,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"reports":      job.Reports,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}
	if job.ErrorDetail != "" {
		resp["error_detail"] = job.ErrorDetail
	}
	if job.OutputArtifactID != "" {
		resp["output_artifact_id"] = job.OutputArtifactID
	}
	if job.CancelRequested {
		resp["cancel_requested"] = true
	}
	return resp
}

func toExportResponse(exp *domain.Export) map[string]any {
	return map[string]any{
		"id":          exp.ID,
		"job_id":      exp.JobID,
		"format":      exp.Format,
		"artifact_id": exp.ArtifactID,
		"schema":      exp.Schema,
		"row_count":   exp.RowCount,
		"created_at":  exp.CreatedAt,
	}
}
