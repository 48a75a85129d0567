package domain

import "time"

// Manifest outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeProblem = "problem"
)

// Outcome is the terminal result recorded for a manifest entry.
type Outcome struct {
	Status  string   `json:"status"`
	Problem *Problem `json:"problem,omitempty"`
}

// ManifestEntry is one append-only ledger record. Entries carry enough
// context to reconstruct what happened without re-running the job.
type ManifestEntry struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
}
