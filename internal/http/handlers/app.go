package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"stylesafe/internal/domain"
	"stylesafe/internal/infra"
	"stylesafe/internal/jobmanager"
	"stylesafe/internal/preflight"
)

// App bundles the handler dependencies.
type App struct {
	Jobs      *jobmanager.Manager
	Preflight *preflight.Validator
	Logger    infra.Logger
	validate  *validator.Validate
}

// NewApp wires the handler container.
func NewApp(jobs *jobmanager.Manager, pre *preflight.Validator, logger infra.Logger) *App {
	return &App{
		Jobs:      jobs,
		Preflight: pre,
		Logger:    logger,
		validate:  validator.New(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// problem writes a problem-details payload with its embedded status code.
func (a *App) problem(w http.ResponseWriter, p domain.Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	status := p.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func (a *App) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return a.validate.Struct(v)
}
