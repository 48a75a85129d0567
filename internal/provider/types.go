// Package provider abstracts the generation provider behind a uniform
// submit/poll/fetch/cancel contract and supplies the retry/backoff wrapper
// applied to every call.
package provider

import (
	"context"
	"errors"
	"fmt"

	"stylesafe/internal/domain"
)

// Status is the provider-side lifecycle of a submitted batch.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Batch is one generation request. Instruction carries the fixed style-only
// text; attachments are plain style context, enforced by the guard before
// submission.
type Batch struct {
	Instruction string
	Rows        []domain.PromptRow
	Attachments []domain.Attachment
	Variants    int
}

// Submission acknowledges an accepted batch.
type Submission struct {
	ProviderJobID  string
	EstimatedCount int
}

// GeneratedImage is one output fetched from the provider.
type GeneratedImage struct {
	RowHash string
	Variant int
	Data    []byte
	URL     string
	Format  string
}

// Outcome is the fetched result set for a terminal provider job.
type Outcome struct {
	Results  []GeneratedImage
	Problems []domain.Problem
}

// Client is the contract every generation provider satisfies.
type Client interface {
	Submit(ctx context.Context, batch Batch) (Submission, error)
	Poll(ctx context.Context, providerJobID string) (Status, error)
	Fetch(ctx context.Context, providerJobID string) (Outcome, error)
	Cancel(ctx context.Context, providerJobID string) (Status, error)
}

// Error classifies a provider failure. Transient failures (rate limits,
// temporary unavailability) are retried by the wrapper; permanent ones
// (malformed request, authorization) propagate immediately.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Code != "" {
		return fmt.Sprintf("provider: %s failure %s (%s, http %d)", kind, e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("provider: %s failure %s (http %d)", kind, e.Message, e.StatusCode)
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient
}

// IsPermanent reports whether err is a non-retryable provider rejection.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && !pe.Transient
}
