package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are never
// mutated again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress tracks per-attempt completion. Current never decreases and equals
// Total exactly when the job completes.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Stage   string `json:"stage"`
}

// Progress stages. A job moves preflight -> generating and ends in done or
// failed.
const (
	StagePreflight  = "preflight"
	StageGenerating = "generating"
	StageDone       = "done"
	StageFailed     = "failed"
)

// GeneratedResult is one accepted image produced for a (row, variant) pair.
type GeneratedResult struct {
	RowHash   string    `json:"row_hash"`
	Variant   int       `json:"variant"`
	ImageHash string    `json:"image_hash"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Job encapsulates the lifecycle of one batch generation request. It is
// created at submission and mutated only by the job manager.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	PromptCount int               `json:"prompt_count"`
	Variants    int               `json:"variants"`
	Progress    Progress          `json:"progress"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Results     []GeneratedResult `json:"results"`
	Problems    []Problem         `json:"problems"`
}

// Verdict is the style guard's decision for one generated image.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// GenerationAttempt records one (row, variant) generation together with the
// references used and the verdict. Every attempt resolves to an accepted
// result or a recorded problem; none are dropped.
type GenerationAttempt struct {
	RowHash   string   `json:"row_hash"`
	Variant   int      `json:"variant"`
	RefHashes []string `json:"ref_hashes,omitempty"`
	ImageHash string   `json:"image_hash,omitempty"`
	Verdict   Verdict  `json:"verdict"`
	Retries   int      `json:"retries"`
}
