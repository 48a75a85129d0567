package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stylesafe/internal/http/handlers"
	appmw "stylesafe/internal/middleware"
)

// NewRouter assembles the API surface. metricsHandler serves the Prometheus
// exposition endpoint; ratePerMin <= 0 disables the per-client limiter.
func NewRouter(app *handlers.App, metricsHandler stdhttp.Handler, ratePerMin int) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	if ratePerMin > 0 {
		r.Use(appmw.RateLimit(ratePerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Post("/v1/remix", app.Remix)
	r.Post("/v1/preflight", app.PreflightCheck)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/{job_id}", app.JobStatus)
		r.Get("/{job_id}/results", app.JobResults)
		r.Delete("/{job_id}", app.CancelJob)
	})

	if metricsHandler != nil {
		r.Method(stdhttp.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
