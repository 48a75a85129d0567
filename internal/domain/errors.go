package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidOptions  = errors.New("invalid options")
	ErrBudgetExceeded  = errors.New("budget exceeded")
	ErrJobTerminal     = errors.New("job already terminal")
	ErrProviderFailure = errors.New("provider failure")
	ErrStyleCopy       = errors.New("style copy rejected")
	ErrCancelled       = errors.New("job cancelled")
)
