// Package styleguard enforces the style-only contract on generation requests
// and results. The defense has three layers: a fixed instruction carried on
// every request, attachment discipline (references travel as plain style
// context, never as masks or pose conditioning), and perceptual-hash
// validation of every generated result against every attached reference.
package styleguard

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"stylesafe/internal/domain"
)

// Defaults applied when a Guard is constructed with zero values.
const (
	DefaultCopyThreshold = 10
	DefaultMaxRetries    = 2
)

// Guard wraps generation calls with the style-only defense.
type Guard struct {
	threshold  int
	maxRetries int
	logger     zerolog.Logger
}

// New builds a Guard. threshold is the maximum Hamming distance still treated
// as a copy; maxRetries is the number of additional sampling attempts after a
// rejection.
func New(threshold, maxRetries int, logger zerolog.Logger) *Guard {
	if threshold <= 0 {
		threshold = DefaultCopyThreshold
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Guard{threshold: threshold, maxRetries: maxRetries, logger: logger}
}

// Threshold exposes the configured copy threshold.
func (g *Guard) Threshold() int { return g.threshold }

// MaxRetries exposes the configured resampling retry budget.
func (g *Guard) MaxRetries() int { return g.maxRetries }

// Evaluate is layer 3's verdict: accepted means the result is dissimilar
// enough from every reference, i.e. its distance to each reference hash is
// strictly above the threshold.
func Evaluate(result uint64, refs []uint64, threshold int) domain.Verdict {
	for _, ref := range refs {
		if Distance(result, ref) <= threshold {
			return domain.VerdictRejected
		}
	}
	return domain.VerdictAccepted
}

// EnforceAttachments is layer 2: references may only travel as plain style
// context. Any other purpose (masks, bounding boxes, pose skeletons) would
// contradict the fixed instruction and is refused before dispatch.
func EnforceAttachments(atts []domain.Attachment) error {
	for i, att := range atts {
		if att.Purpose != domain.AttachmentPurposeStyle {
			return fmt.Errorf("%w: attachment %d (%s) has purpose %q, only %q is allowed",
				domain.ErrInvalidInput, i, att.Name, att.Purpose, domain.AttachmentPurposeStyle)
		}
	}
	return nil
}

// Result is an accepted generation output.
type Result struct {
	Data []byte
	Hash uint64
	URL  string
}

// GenerateFunc produces one candidate image. attempt starts at 0 and
// increments per resampling retry, letting the caller vary sampling.
type GenerateFunc func(ctx context.Context, attempt int) ([]byte, string, error)

// Run invokes generate until a result clears every reference or the retry
// budget is spent. Retries are strictly sequential. On exhaustion it returns
// the attempt count and a domain.ErrStyleCopy error; the last rejected image
// is never returned as a result.
func (g *Guard) Run(ctx context.Context, refs []uint64, generate GenerateFunc) (Result, int, error) {
	attempts := 0
	for ; attempts <= g.maxRetries; attempts++ {
		if err := ctx.Err(); err != nil {
			return Result{}, attempts, err
		}
		data, url, err := generate(ctx, attempts)
		if err != nil {
			return Result{}, attempts + 1, err
		}
		hash, err := PerceptualHash(data)
		if err != nil {
			return Result{}, attempts + 1, err
		}
		if Evaluate(hash, refs, g.threshold) == domain.VerdictAccepted {
			return Result{Data: data, Hash: hash, URL: url}, attempts + 1, nil
		}
		g.logger.Warn().
			Str("image_hash", FormatHash(hash)).
			Int("attempt", attempts+1).
			Int("threshold", g.threshold).
			Msg("styleguard: result too similar to a reference, resampling")
	}
	return Result{}, attempts, fmt.Errorf("%w: no acceptable result after %d attempts (threshold %d)",
		domain.ErrStyleCopy, attempts, g.threshold)
}
