package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Retry wrapper defaults.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
)

// RetryClient wraps a Client with exponential backoff plus jitter on
// transient failures, bounded to a fixed number of attempts, and paces all
// calls through a shared rate limiter. Permanent failures propagate without
// retry.
type RetryClient struct {
	inner      Client
	maxRetries uint64
	initial    time.Duration
	limiter    *rate.Limiter
	logger     zerolog.Logger
	onRetry    func()
}

// RetryOptions configures the wrapper. Zero values take defaults;
// RequestsPerSecond <= 0 disables pacing.
type RetryOptions struct {
	MaxRetries        int
	InitialInterval   time.Duration
	RequestsPerSecond float64
	Burst             int
	OnRetry           func()
}

// NewRetryClient wraps inner with the retry/backoff policy.
func NewRetryClient(inner Client, opts RetryOptions, logger zerolog.Logger) *RetryClient {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &RetryClient{
		inner:      inner,
		maxRetries: uint64(opts.MaxRetries),
		initial:    opts.InitialInterval,
		limiter:    limiter,
		logger:     logger,
		onRetry:    opts.OnRetry,
	}
}

func (c *RetryClient) do(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.RandomizationFactor = 0.5 // jitter
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)

	return backoff.RetryNotify(func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := fn()
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		if c.onRetry != nil {
			c.onRetry()
		}
		c.logger.Warn().Err(err).Str("op", op).Dur("wait", wait).Msg("provider: transient failure, retrying")
	})
}

func (c *RetryClient) Submit(ctx context.Context, batch Batch) (Submission, error) {
	var out Submission
	err := c.do(ctx, "submit", func() error {
		sub, err := c.inner.Submit(ctx, batch)
		if err == nil {
			out = sub
		}
		return err
	})
	return out, err
}

func (c *RetryClient) Poll(ctx context.Context, providerJobID string) (Status, error) {
	var out Status
	err := c.do(ctx, "poll", func() error {
		st, err := c.inner.Poll(ctx, providerJobID)
		if err == nil {
			out = st
		}
		return err
	})
	return out, err
}

func (c *RetryClient) Fetch(ctx context.Context, providerJobID string) (Outcome, error) {
	var out Outcome
	err := c.do(ctx, "fetch", func() error {
		o, err := c.inner.Fetch(ctx, providerJobID)
		if err == nil {
			out = o
		}
		return err
	})
	return out, err
}

func (c *RetryClient) Cancel(ctx context.Context, providerJobID string) (Status, error) {
	var out Status
	err := c.do(ctx, "cancel", func() error {
		st, err := c.inner.Cancel(ctx, providerJobID)
		if err == nil {
			out = st
		}
		return err
	})
	return out, err
}
