package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"prepline/internal/domain"
)

type pipelineRequest struct {
	Name     string            `json:"name"`
	TaskType string            `json:"task_type"`
	Modality string            `json:"modality"`
	Template bool              `json:"template"`
	Steps    []domain.StepSpec `json:"steps"`
}

// PipelinesCreate validates and freezes a pipeline. A validation failure
// returns 422 with the offending step, position, and parameter so the caller
// can fix the request; no pipeline id is issued.
func (a *App) PipelinesCreate(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	build := a.Builder.Build
	if req.Template {
		build = a.Builder.BuildTemplate
	}
	p, err := build(req.Name, domain.TaskType(req.TaskType), domain.Modality(req.Modality), req.Steps)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			a.json(w, http.StatusUnprocessableEntity, map[string]any{
				"error": map[string]any{
					"code":     verr.Code(),
					"message":  verr.Error(),
					"step":     verr.StepKind,
					"position": verr.Position,
					"param":    verr.Param,
				},
			})
			return
		}
		a.error(w, http.StatusUnprocessableEntity, "invalid_pipeline", err.Error())
		return
	}

	if err := a.Pipelines.Create(r.Context(), p); err != nil {
		a.Logger.Error().Err(err).Msg("pipelines: persist failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store pipeline")
		return
	}
	a.json(w, http.StatusCreated, toPipelineResponse(p))
}

// PipelinesGet returns one pipeline with its frozen step sequence.
func (a *App) PipelinesGet(w http.ResponseWriter, r *http.Request) {
	p, err := a.Pipelines.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "pipeline not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load pipeline")
		return
	}
	a.json(w, http.StatusOK, toPipelineResponse(p))
}

// PipelinesListTemplates returns the stored template pipelines.
func (a *App) PipelinesListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.Pipelines.ListTemplates(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load templates")
		return
	}
	items := make([]map[string]any, 0, len(templates))
	for i := range templates {
		items = append(items, toPipelineResponse(&templates[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// StepsList reports the registered step catalog.
func (a *App) StepsList(w http.ResponseWriter, r *http.Request) {
	factories := a.Registry.List()
	items := make([]map[string]any, 0, len(factories))
	for _, f := range factories {
		items = append(items, map[string]any{
			"kind":     f.Kind,
			"modality": f.Modality,
			"version":  f.Version,
			"summary":  f.Summary,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func toPipelineResponse(p *domain.Pipeline) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"task_type":   p.TaskType,
		"modality":    p.Modality,
		"steps":       p.Steps,
		"frozen":      p.Frozen,
		"is_template": p.IsTemplate,
		"created_at":  p.CreatedAt,
	}
}
