package domain

import "net/http"

// Problem is the standardized problem-details payload surfaced for every
// failure, on the wire and in the manifest.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Detail   string `json:"detail,omitempty"`
	Status   int    `json:"status"`
	Instance string `json:"instance,omitempty"`
}

// Problem type URIs, one per error taxonomy entry.
const (
	ProblemTypeValidation        = "urn:stylesafe:problem:validation"
	ProblemTypeBudgetExceeded    = "urn:stylesafe:problem:budget-exceeded"
	ProblemTypeTransientProvider = "urn:stylesafe:problem:transient-provider"
	ProblemTypePermanentProvider = "urn:stylesafe:problem:permanent-provider"
	ProblemTypeStyleCopyRejected = "urn:stylesafe:problem:style-copy-rejected"
	ProblemTypeCancelled         = "urn:stylesafe:problem:cancelled"
	ProblemTypeNotFound          = "urn:stylesafe:problem:not-found"
	ProblemTypeInternal          = "urn:stylesafe:problem:internal"
)

func (p Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// ValidationProblem reports malformed input. Never retried.
func ValidationProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeValidation,
		Title:    "invalid input",
		Detail:   detail,
		Status:   http.StatusBadRequest,
		Instance: instance,
	}
}

// BudgetProblem reports a request that exceeds configured byte or count
// budgets. The remediation hint is part of the contract.
func BudgetProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeBudgetExceeded,
		Title:    "budget exceeded",
		Detail:   detail + " (compress the references or split the request)",
		Status:   http.StatusRequestEntityTooLarge,
		Instance: instance,
	}
}

// TransientProviderProblem reports a retryable provider failure whose retries
// were exhausted.
func TransientProviderProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeTransientProvider,
		Title:    "provider unavailable",
		Detail:   detail,
		Status:   http.StatusServiceUnavailable,
		Instance: instance,
	}
}

// PermanentProviderProblem reports a non-retryable provider rejection. The
// failure is isolated to one attempt; sibling attempts continue.
func PermanentProviderProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypePermanentProvider,
		Title:    "provider rejected request",
		Detail:   detail,
		Status:   http.StatusBadGateway,
		Instance: instance,
	}
}

// StyleCopyProblem reports a generated result that stayed too similar to a
// reference through every resampling retry.
func StyleCopyProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeStyleCopyRejected,
		Title:    "style copy rejected",
		Detail:   detail,
		Status:   http.StatusUnprocessableEntity,
		Instance: instance,
	}
}

// CancelledProblem reports work skipped because the job was cancelled.
func CancelledProblem(instance string) Problem {
	return Problem{
		Type:     ProblemTypeCancelled,
		Title:    "job cancelled",
		Status:   http.StatusConflict,
		Instance: instance,
	}
}

// NotFoundProblem reports a missing resource.
func NotFoundProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeNotFound,
		Title:    "not found",
		Detail:   detail,
		Status:   http.StatusNotFound,
		Instance: instance,
	}
}

// InternalProblem reports an infrastructure-level failure.
func InternalProblem(detail, instance string) Problem {
	return Problem{
		Type:     ProblemTypeInternal,
		Title:    "internal error",
		Detail:   detail,
		Status:   http.StatusInternalServerError,
		Instance: instance,
	}
}
