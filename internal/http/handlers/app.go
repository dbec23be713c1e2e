// Package handlers implements the HTTP surface over the dataset, pipeline,
// job, and export services.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"prepline/internal/domain"
	"prepline/internal/export"
	"prepline/internal/orchestrator"
	"prepline/internal/pipeline"
	"prepline/internal/storage"
	"prepline/internal/step"
)

// App holds the handler dependencies. Every handler hangs off it.
type App struct {
	Artifacts domain.ArtifactRepository
	Pipelines domain.PipelineRepository
	Jobs      *orchestrator.Service
	Exports   *export.Service
	Builder   *pipeline.Builder
	Registry  *step.Registry
	Store     *storage.FileStore
	Logger    zerolog.Logger

	// SampleSizeBytes bounds how much of an upload the classifier reads.
	SampleSizeBytes int
	// MaxUploadBytes bounds the multipart body of a dataset upload.
	MaxUploadBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": map[string]string{"code": errCode, "message": message}})
}
