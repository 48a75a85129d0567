// Package manifest keeps the append-only audit ledger: one JSON Lines entry
// per attempt or batch operation. The ledger exists for recovery analysis,
// not for resuming crashed jobs.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stylesafe/internal/domain"
	"stylesafe/pkg/jsonl"
)

// Ledger appends manifest entries to a JSON Lines file. Appends are
// serialized by a mutex so concurrent chunk workers never interleave lines.
type Ledger struct {
	mu     sync.Mutex
	file   *os.File
	writer *jsonl.Writer
	logger zerolog.Logger
}

// Open creates or opens the ledger file for appending.
func Open(path string, logger zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return &Ledger{file: f, writer: jsonl.NewWriter(f), logger: logger}, nil
}

// Append writes one entry. Missing IDs and timestamps are filled in.
func (l *Ledger) Append(entry domain.ManifestEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(entry); err != nil {
		return fmt.Errorf("manifest: append: %w", err)
	}
	return nil
}

// RecordSuccess appends a success entry for one operation.
func (l *Ledger) RecordSuccess(operation, input, output string) error {
	return l.Append(domain.ManifestEntry{
		Operation: operation,
		Input:     input,
		Output:    output,
		Outcome:   domain.Outcome{Status: domain.OutcomeSuccess},
	})
}

// RecordProblem appends a problem entry for one operation.
func (l *Ledger) RecordProblem(operation, input string, problem domain.Problem) error {
	return l.Append(domain.ManifestEntry{
		Operation: operation,
		Input:     input,
		Outcome:   domain.Outcome{Status: domain.OutcomeProblem, Problem: &problem},
	})
}

// Close flushes and closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
