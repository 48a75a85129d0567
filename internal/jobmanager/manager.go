// Package jobmanager owns job state. Each job lives in its own record with a
// dedicated lock, so concurrent chunk workers serialize progress updates per
// job instead of contending on one shared structure. Submission returns
// immediately; chunk processing runs asynchronously with bounded concurrency.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"stylesafe/internal/domain"
	"stylesafe/internal/manifest"
	"stylesafe/internal/metrics"
	"stylesafe/internal/preflight"
	"stylesafe/internal/provider"
	"stylesafe/internal/styleguard"
)

// Config bounds the asynchronous workflow.
type Config struct {
	// MaxInFlight caps concurrent provider generation requests across all jobs.
	MaxInFlight int64
	// ChunkConcurrency caps concurrent chunks within one job.
	ChunkConcurrency int
	// PollInterval paces the provider poll loop.
	PollInterval time.Duration
	// PollTimeout bounds how long one attempt may stay non-terminal.
	PollTimeout time.Duration
}

func (c *Config) normalize() {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 2
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Minute
	}
}

type record struct {
	mu        sync.Mutex
	job       domain.Job
	cancelled atomic.Bool
}

// snapshot copies the job under the record lock; slices are cloned so callers
// never observe in-progress mutation.
func (r *record) snapshot() domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.job
	job.Results = append([]domain.GeneratedResult(nil), r.job.Results...)
	job.Problems = append([]domain.Problem(nil), r.job.Problems...)
	if r.job.EndTime != nil {
		end := *r.job.EndTime
		job.EndTime = &end
	}
	return job
}

// Manager coordinates preflight, the style guard, the provider client and
// the manifest for every job.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*record

	cfg    Config
	pre    *preflight.Validator
	guard  *styleguard.Guard
	client provider.Client
	ledger *manifest.Ledger
	met    *metrics.Metrics
	logger zerolog.Logger

	sem     *semaphore.Weighted
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a Manager. The provider client is expected to already carry the
// retry/backoff wrapper.
func New(cfg Config, pre *preflight.Validator, guard *styleguard.Guard, client provider.Client, ledger *manifest.Ledger, met *metrics.Metrics, logger zerolog.Logger) *Manager {
	cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:    make(map[string]*record),
		cfg:     cfg,
		pre:     pre,
		guard:   guard,
		client:  client,
		ledger:  ledger,
		met:     met,
		logger:  logger,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		baseCtx: ctx,
		stop:    cancel,
	}
}

// Shutdown stops accepting work and waits for running jobs to notice the
// cancelled context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit preflights the request, creates the job and starts asynchronous
// processing. It returns as soon as the job record exists. A request where
// preflight yields no dispatchable chunks fails synchronously.
func (m *Manager) Submit(rows []domain.PromptRow, pack domain.ReferencePack, variants int) (domain.Job, error) {
	if len(rows) == 0 {
		return domain.Job{}, fmt.Errorf("%w: no prompt rows", domain.ErrInvalidInput)
	}
	if variants <= 0 {
		variants = 1
	}

	report, err := m.pre.Run(rows, pack)
	if err != nil {
		return domain.Job{}, err
	}
	if len(report.Chunks) == 0 {
		return domain.Job{}, fmt.Errorf("%w: no chunk fits the configured budgets", domain.ErrBudgetExceeded)
	}

	total := 0
	for _, chunk := range report.Chunks {
		total += len(chunk.Rows) * variants
	}

	rec := &record{job: domain.Job{
		ID:          uuid.New().String(),
		Status:      domain.JobStatusSubmitted,
		PromptCount: len(rows),
		Variants:    variants,
		Progress:    domain.Progress{Total: total, Stage: domain.StagePreflight},
		StartTime:   time.Now().UTC(),
		Results:     []domain.GeneratedResult{},
		Problems:    append([]domain.Problem(nil), report.Problems...),
	}}

	m.mu.Lock()
	m.jobs[rec.job.ID] = rec
	m.mu.Unlock()

	m.met.JobsSubmitted.Inc()
	if err := m.ledger.RecordSuccess("job.submit", rec.job.ID,
		fmt.Sprintf("chunks=%d attempts=%d", len(report.Chunks), total)); err != nil {
		m.logger.Error().Err(err).Str("job_id", rec.job.ID).Msg("jobmanager: manifest write failed at submit")
	}

	m.wg.Add(1)
	go m.run(rec, report, variants)

	return rec.snapshot(), nil
}

// Status returns a point-in-time copy of the job.
func (m *Manager) Status(jobID string) (domain.Job, error) {
	rec, err := m.record(jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return rec.snapshot(), nil
}

// Cancel requests cooperative cancellation. The flag is checked between
// chunks and attempts; an in-flight provider call is never aborted.
func (m *Manager) Cancel(jobID string) (domain.Job, error) {
	rec, err := m.record(jobID)
	if err != nil {
		return domain.Job{}, err
	}
	rec.mu.Lock()
	terminal := rec.job.Status.Terminal()
	rec.mu.Unlock()
	if terminal {
		return rec.snapshot(), domain.ErrJobTerminal
	}
	rec.cancelled.Store(true)
	return rec.snapshot(), nil
}

func (m *Manager) record(jobID string) (*record, error) {
	m.mu.RLock()
	rec, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return rec, nil
}

// run drives one job to a terminal state. A job whose rows partially failed
// still completes; failed is reserved for infrastructure-level halts and for
// cancellation.
func (m *Manager) run(rec *record, report preflight.Report, variants int) {
	defer m.wg.Done()

	rec.mu.Lock()
	rec.job.Status = domain.JobStatusRunning
	rec.job.Progress.Stage = domain.StageGenerating
	rec.mu.Unlock()
	m.met.JobsRunning.Inc()
	defer m.met.JobsRunning.Dec()

	g, ctx := errgroup.WithContext(m.baseCtx)
	g.SetLimit(m.cfg.ChunkConcurrency)
	for _, chunk := range report.Chunks {
		chunk := chunk
		g.Go(func() error {
			if rec.cancelled.Load() {
				m.skipChunk(rec, chunk, variants)
				return nil
			}
			started := time.Now()
			err := m.processChunk(ctx, rec, chunk, variants)
			m.met.ChunkDuration.Observe(time.Since(started).Seconds())
			return err
		})
	}
	runErr := g.Wait()

	now := time.Now().UTC()
	rec.mu.Lock()
	rec.job.EndTime = &now
	allResolved := rec.job.Progress.Current == rec.job.Progress.Total
	switch {
	case runErr != nil:
		rec.job.Status = domain.JobStatusFailed
		rec.job.Progress.Stage = domain.StageFailed
		rec.job.Problems = append(rec.job.Problems, domain.InternalProblem(runErr.Error(), rec.job.ID))
	case rec.cancelled.Load() && !allResolved:
		rec.job.Status = domain.JobStatusFailed
		rec.job.Progress.Stage = domain.StageFailed
		rec.job.Problems = append(rec.job.Problems, domain.CancelledProblem(rec.job.ID))
	default:
		// A cancel that arrived after the last attempt resolved changed nothing.
		rec.job.Status = domain.JobStatusCompleted
		rec.job.Progress.Stage = domain.StageDone
	}
	status := rec.job.Status
	rec.mu.Unlock()

	if status == domain.JobStatusCompleted {
		m.met.JobsCompleted.Inc()
		if err := m.ledger.RecordSuccess("job.complete", rec.job.ID, ""); err != nil {
			m.logger.Error().Err(err).Str("job_id", rec.job.ID).Msg("jobmanager: manifest write failed at completion")
		}
	} else {
		m.met.JobsFailed.Inc()
		detail := "cancelled"
		if runErr != nil {
			detail = runErr.Error()
		}
		if err := m.ledger.RecordProblem("job.halt", rec.job.ID, domain.InternalProblem(detail, rec.job.ID)); err != nil {
			m.logger.Error().Err(err).Str("job_id", rec.job.ID).Msg("jobmanager: manifest write failed at halt")
		}
	}
	m.logger.Info().Str("job_id", rec.job.ID).Str("status", string(status)).Msg("jobmanager: job finished")
}

// skipChunk records every attempt of an unstarted chunk as cancelled so no
// attempt is silently dropped.
func (m *Manager) skipChunk(rec *record, chunk preflight.Chunk, variants int) {
	for _, row := range chunk.Rows {
		for v := 0; v < variants; v++ {
			m.skip(rec, row.CanonicalHash(), v)
		}
	}
}

// skip records a cancelled attempt in the job and the manifest without
// advancing progress, so a cancelled job never reads as complete.
func (m *Manager) skip(rec *record, rowHash string, variant int) {
	ref := attemptRef(rec.job.ID, rowHash, variant)
	p := domain.CancelledProblem(ref)

	rec.mu.Lock()
	rec.job.Problems = append(rec.job.Problems, p)
	rec.mu.Unlock()

	m.met.Attempts.WithLabelValues(metrics.OutcomeProblem).Inc()
	if err := m.ledger.RecordProblem("attempt.generate", ref, p); err != nil {
		m.logger.Error().Err(err).Str("job_id", rec.job.ID).Msg("jobmanager: manifest write failed for skipped attempt")
	}
}

// processChunk walks the chunk's attempts sequentially. Only infrastructure
// failures return an error; per-attempt provider rejections resolve to
// problems and let sibling attempts continue.
func (m *Manager) processChunk(ctx context.Context, rec *record, chunk preflight.Chunk, variants int) error {
	attachments := make([]domain.Attachment, 0, len(chunk.Refs))
	refHashes := make([]uint64, 0, len(chunk.Refs))
	for _, ref := range chunk.Refs {
		attachments = append(attachments, domain.Attachment{
			Name:    ref.Path,
			Data:    ref.Data,
			Weight:  ref.Weight,
			Purpose: domain.AttachmentPurposeStyle,
		})
		refHashes = append(refHashes, ref.PHash)
	}
	if err := styleguard.EnforceAttachments(attachments); err != nil {
		return err
	}

	refHexes := make([]string, 0, len(refHashes))
	for _, h := range refHashes {
		refHexes = append(refHexes, styleguard.FormatHash(h))
	}

	for _, row := range chunk.Rows {
		for v := 0; v < variants; v++ {
			if rec.cancelled.Load() {
				m.skip(rec, row.CanonicalHash(), v)
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.runAttempt(ctx, rec, row, v, attachments, refHashes, refHexes); err != nil {
				return err
			}
		}
	}
	return nil
}

// runAttempt resolves one (row, variant) pair to an accepted result or a
// recorded problem. Style-guard retries are strictly sequential.
func (m *Manager) runAttempt(ctx context.Context, rec *record, row domain.PromptRow, variant int, atts []domain.Attachment, refHashes []uint64, refHexes []string) error {
	result, attempts, err := m.guard.Run(ctx, refHashes, func(ctx context.Context, attempt int) ([]byte, string, error) {
		return m.generateOnce(ctx, row, variant, attempt, atts)
	})

	att := domain.GenerationAttempt{
		RowHash:   row.CanonicalHash(),
		Variant:   variant,
		RefHashes: refHexes,
		Retries:   attempts - 1,
	}

	switch {
	case err == nil:
		att.Verdict = domain.VerdictAccepted
		att.ImageHash = styleguard.FormatHash(result.Hash)
		return m.resolve(rec, att, result.URL)
	case errors.Is(err, domain.ErrStyleCopy):
		att.Verdict = domain.VerdictRejected
		m.met.StyleRejections.Inc()
		return m.resolve(rec, att, "", domain.StyleCopyProblem(err.Error(), att.RowHash))
	case provider.IsPermanent(err):
		att.Verdict = domain.VerdictRejected
		return m.resolve(rec, att, "", domain.PermanentProviderProblem(err.Error(), att.RowHash))
	case provider.IsTransient(err):
		att.Verdict = domain.VerdictRejected
		return m.resolve(rec, att, "", domain.TransientProviderProblem(err.Error(), att.RowHash))
	default:
		// Context cancellation and anything else infrastructure-shaped halts
		// the job.
		return err
	}
}

// generateOnce submits a single-row batch, polls to a terminal status and
// fetches the produced image. Each variant and each resampling retry offsets
// a pinned row seed so the provider draws fresh noise instead of replaying
// the same image; the variant stride clears the whole retry budget so no two
// (variant, attempt) pairs collide.
func (m *Manager) generateOnce(ctx context.Context, row domain.PromptRow, variant, attempt int, atts []domain.Attachment) ([]byte, string, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer m.sem.Release(1)

	if row.Seed != nil && (variant > 0 || attempt > 0) {
		stride := m.guard.MaxRetries() + 1
		seed := *row.Seed + int64(variant*stride+attempt)
		row.Seed = &seed
	}

	batch := provider.Batch{
		Instruction: domain.StyleOnlyInstruction,
		Rows:        []domain.PromptRow{row},
		Attachments: atts,
		Variants:    1,
	}
	sub, err := m.client.Submit(ctx, batch)
	if err != nil {
		return nil, "", err
	}

	deadline := time.Now().Add(m.cfg.PollTimeout)
	status, err := m.client.Poll(ctx, sub.ProviderJobID)
	for err == nil && !status.Terminal() {
		if time.Now().After(deadline) {
			return nil, "", &provider.Error{Message: "poll timeout for " + sub.ProviderJobID, Transient: true}
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
		status, err = m.client.Poll(ctx, sub.ProviderJobID)
	}
	if err != nil {
		return nil, "", err
	}
	if status != provider.StatusSucceeded {
		return nil, "", &provider.Error{Message: fmt.Sprintf("provider job %s ended %s", sub.ProviderJobID, status)}
	}

	outcome, err := m.client.Fetch(ctx, sub.ProviderJobID)
	if err != nil {
		return nil, "", err
	}
	for _, img := range outcome.Results {
		if len(img.Data) > 0 {
			return img.Data, img.URL, nil
		}
	}
	if len(outcome.Problems) > 0 {
		return nil, "", &provider.Error{Message: outcome.Problems[0].Error()}
	}
	return nil, "", &provider.Error{Message: "provider returned no image data for " + sub.ProviderJobID}
}

// resolve terminates one attempt: with no problem it records an accepted
// result, otherwise the first problem. Exactly one manifest entry is written
// either way, so no attempt disappears. The manifest write comes first; if it
// fails the attempt stays unresolved and the job halts, so progress never
// claims an attempt the ledger does not know about.
func (m *Manager) resolve(rec *record, att domain.GenerationAttempt, url string, problems ...domain.Problem) error {
	ref := attemptRef(rec.job.ID, att.RowHash, att.Variant)

	var err error
	if len(problems) == 0 {
		err = m.ledger.RecordSuccess("attempt.generate", ref, att.ImageHash)
	} else {
		err = m.ledger.RecordProblem("attempt.generate", ref, problems[0])
	}
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", rec.job.ID).Msg("jobmanager: manifest write failed for attempt")
		return fmt.Errorf("manifest unavailable: %w", err)
	}

	rec.mu.Lock()
	if len(problems) == 0 {
		rec.job.Results = append(rec.job.Results, domain.GeneratedResult{
			RowHash:   att.RowHash,
			Variant:   att.Variant,
			ImageHash: att.ImageHash,
			URL:       url,
			CreatedAt: time.Now().UTC(),
		})
	} else {
		rec.job.Problems = append(rec.job.Problems, problems[0])
	}
	m.advanceLocked(rec)
	rec.mu.Unlock()

	if len(problems) == 0 {
		m.met.Attempts.WithLabelValues(metrics.OutcomeAccepted).Inc()
		if att.Retries > 0 {
			m.logger.Debug().Str("job_id", rec.job.ID).Str("row_hash", att.RowHash).
				Int("retries", att.Retries).Msg("jobmanager: attempt accepted after resampling")
		}
	} else {
		outcome := metrics.OutcomeProblem
		if problems[0].Type == domain.ProblemTypeStyleCopyRejected {
			outcome = metrics.OutcomeRejected
		}
		m.met.Attempts.WithLabelValues(outcome).Inc()
	}
	return nil
}

// advanceLocked bumps progress monotonically; callers hold rec.mu.
func (m *Manager) advanceLocked(rec *record) {
	if rec.job.Progress.Current < rec.job.Progress.Total {
		rec.job.Progress.Current++
	}
}

func attemptRef(jobID, rowHash string, variant int) string {
	return fmt.Sprintf("%s/%s/v%d", jobID, rowHash, variant)
}
