package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stylesafe/internal/domain"
	"stylesafe/internal/remix"
)

type submitJobRequest struct {
	// Either pre-remixed rows or descriptors plus options; rows win when both
	// are present.
	Rows        []domain.PromptRow       `json:"rows"`
	Descriptors []domain.ImageDescriptor `json:"descriptors"`
	Options     remix.Options            `json:"options"`
	Pack        domain.ReferencePack     `json:"pack"`
	Variants    int                      `json:"variants" validate:"min=0,max=8"`
}

type submitJobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	PromptCount int    `json:"prompt_count"`
	Total       int    `json:"total_attempts"`
}

// SubmitJob accepts a batch generation request and returns immediately with
// the created job; processing continues asynchronously.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := a.decode(r, &req); err != nil {
		a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		return
	}

	rows := req.Rows
	if len(rows) == 0 {
		if len(req.Descriptors) == 0 {
			a.problem(w, domain.ValidationProblem("either rows or descriptors are required", r.URL.Path))
			return
		}
		if req.Options.MaxPerImage == 0 {
			req.Options.MaxPerImage = 1
		}
		var err error
		rows, err = remix.Generate(req.Descriptors, req.Options)
		if err != nil {
			a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
			return
		}
	}

	job, err := a.Jobs.Submit(rows, req.Pack, req.Variants)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBudgetExceeded):
			a.problem(w, domain.BudgetProblem(err.Error(), r.URL.Path))
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidOptions):
			a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		default:
			a.Logger.Error().Err(err).Msg("handlers: job submission failed")
			a.problem(w, domain.InternalProblem("failed to submit job", r.URL.Path))
		}
		return
	}

	a.json(w, http.StatusAccepted, submitJobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		PromptCount: job.PromptCount,
		Total:       job.Progress.Total,
	})
}

// JobStatus returns a point-in-time snapshot of the job. Reads never block on
// in-progress processing.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, job)
}

type jobResultsResponse struct {
	JobID    string                   `json:"job_id"`
	Status   string                   `json:"status"`
	Results  []domain.GeneratedResult `json:"results"`
	Problems []domain.Problem         `json:"problems"`
}

// JobResults returns the accepted results and recorded problems.
func (a *App) JobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, jobResultsResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Results:  job.Results,
		Problems: job.Problems,
	})
}

// CancelJob requests cooperative cancellation; in-flight provider calls are
// not aborted.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Cancel(jobID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.problem(w, domain.NotFoundProblem("job "+jobID, r.URL.Path))
		return
	case errors.Is(err, domain.ErrJobTerminal):
		a.problem(w, domain.Problem{
			Type:     domain.ProblemTypeCancelled,
			Title:    "job already terminal",
			Detail:   "job " + jobID + " finished before the cancel arrived",
			Status:   http.StatusConflict,
			Instance: r.URL.Path,
		})
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: cancel failed")
		a.problem(w, domain.InternalProblem("failed to cancel job", r.URL.Path))
		return
	}
	a.json(w, http.StatusAccepted, job)
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.problem(w, domain.ValidationProblem("job_id required", r.URL.Path))
		return domain.Job{}, false
	}
	job, err := a.Jobs.Status(jobID)
	if err != nil {
		a.problem(w, domain.NotFoundProblem("job "+jobID, r.URL.Path))
		return domain.Job{}, false
	}
	return job, true
}
