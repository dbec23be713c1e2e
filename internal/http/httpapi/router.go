package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"prepline/internal/http/handlers"
	"prepline/internal/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(app.Logger))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/datasets", func(r chi.Router) {
		r.With(middleware.RateLimit(30, time.Minute)).Post("/", app.DatasetsUpload)
		r.Get("/{id}", app.DatasetsGet)
	})

	r.Get("/v1/steps", app.StepsList)

	r.Route("/v1/pipelines", func(r chi.Router) {
		r.Post("/", app.PipelinesCreate)
		r.Get("/templates", app.PipelinesListTemplates)
		r.Get("/{id}", app.PipelinesGet)
	})

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.JobsSubmit)
		r.Get("/{id}", app.JobsGet)
		r.Post("/{id}/cancel", app.JobsCancel)
		r.Post("/{id}/exports", app.JobExportsCreate)
		r.Get("/{id}/exports", app.JobExportsList)
	})

	return r
}
