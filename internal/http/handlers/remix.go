package handlers

import (
	"net/http"

	"stylesafe/internal/domain"
	"stylesafe/internal/remix"
	"stylesafe/pkg/jsonl"
)

type remixRequest struct {
	Descriptors []domain.ImageDescriptor `json:"descriptors" validate:"required"`
	Options     remix.Options            `json:"options"`
}

// Remix runs the deterministic prompt remix and streams the rows back as
// JSON Lines, one PromptRow per line, ready for a downstream rendering
// workflow.
func (a *App) Remix(w http.ResponseWriter, r *http.Request) {
	var req remixRequest
	if err := a.decode(r, &req); err != nil {
		a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		return
	}
	if req.Options.MaxPerImage == 0 {
		req.Options.MaxPerImage = 1
	}

	rows, err := remix.Generate(req.Descriptors, req.Options)
	if err != nil {
		a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	writer := jsonl.NewWriter(w)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			a.Logger.Error().Err(err).Msg("handlers: remix stream aborted")
			return
		}
	}
}

type preflightRequest struct {
	Rows []domain.PromptRow   `json:"rows" validate:"required,min=1"`
	Pack domain.ReferencePack `json:"pack"`
}

type preflightResponse struct {
	OK          bool             `json:"ok"`
	ChunkCount  int              `json:"chunk_count"`
	UniqueRefs  int              `json:"unique_refs"`
	BytesBefore int64            `json:"bytes_before"`
	BytesAfter  int64            `json:"bytes_after"`
	Problems    []domain.Problem `json:"problems"`
}

// PreflightCheck validates rows and references against the configured budgets
// without dispatching anything.
func (a *App) PreflightCheck(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	if err := a.decode(r, &req); err != nil {
		a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		return
	}

	report, err := a.Preflight.Run(req.Rows, req.Pack)
	if err != nil {
		a.problem(w, domain.ValidationProblem(err.Error(), r.URL.Path))
		return
	}
	if report.Problems == nil {
		report.Problems = []domain.Problem{}
	}
	a.json(w, http.StatusOK, preflightResponse{
		OK:          report.OK,
		ChunkCount:  len(report.Chunks),
		UniqueRefs:  len(report.UniqueRefs),
		BytesBefore: report.BytesBefore,
		BytesAfter:  report.BytesAfter,
		Problems:    report.Problems,
	})
}
