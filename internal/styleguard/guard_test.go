package styleguard

import (
	"context"
	"errors"
	"math/bits"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stylesafe/internal/domain"
)

// hashWithBits builds a hash with exactly n low bits set, so its distance to
// zero is exactly n.
func hashWithBits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	const threshold = 10

	// Distance equal to the threshold is still a copy.
	atThreshold := hashWithBits(threshold)
	require.Equal(t, threshold, bits.OnesCount64(atThreshold))
	require.Equal(t, domain.VerdictRejected, Evaluate(atThreshold, []uint64{0}, threshold))

	// One bit above the threshold clears.
	aboveThreshold := hashWithBits(threshold + 1)
	require.Equal(t, domain.VerdictAccepted, Evaluate(aboveThreshold, []uint64{0}, threshold))
}

func TestEvaluateAgainstEveryReference(t *testing.T) {
	const threshold = 10
	result := hashWithBits(20) // far from zero, identical to itself

	require.Equal(t, domain.VerdictAccepted, Evaluate(result, []uint64{0}, threshold))
	// Adding a near-identical reference flips the verdict.
	require.Equal(t, domain.VerdictRejected, Evaluate(result, []uint64{0, result}, threshold))
	// No references means nothing to copy.
	require.Equal(t, domain.VerdictAccepted, Evaluate(result, nil, threshold))
}

func TestEnforceAttachments(t *testing.T) {
	ok := []domain.Attachment{
		{Name: "a.png", Purpose: domain.AttachmentPurposeStyle},
		{Name: "b.png", Purpose: domain.AttachmentPurposeStyle},
	}
	require.NoError(t, EnforceAttachments(ok))
	require.NoError(t, EnforceAttachments(nil))

	bad := []domain.Attachment{
		{Name: "a.png", Purpose: domain.AttachmentPurposeStyle},
		{Name: "pose.png", Purpose: "pose"},
	}
	err := EnforceAttachments(bad)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Contains(t, err.Error(), "pose")
}

func TestRunAcceptsFirstCleanResult(t *testing.T) {
	g := New(10, 2, zerolog.Nop())
	clean := encodePNG(t, risingGradient) // hashes to all ones, distance 64 from zero

	calls := 0
	result, attempts, err := g.Run(context.Background(), []uint64{0}, func(_ context.Context, attempt int) ([]byte, string, error) {
		calls++
		require.Equal(t, calls-1, attempt)
		return clean, "https://img.example/1", nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
	require.Equal(t, ^uint64(0), result.Hash)
	require.Equal(t, "https://img.example/1", result.URL)
	require.Equal(t, clean, result.Data)
}

func TestRunRetriesThenAccepts(t *testing.T) {
	g := New(10, 2, zerolog.Nop())
	copycat := encodePNG(t, flat)         // hashes to zero, distance 0 from the ref
	clean := encodePNG(t, risingGradient) // distance 64

	calls := 0
	result, attempts, err := g.Run(context.Background(), []uint64{0}, func(context.Context, int) ([]byte, string, error) {
		calls++
		if calls == 1 {
			return copycat, "", nil
		}
		return clean, "", nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, calls)
	require.Equal(t, ^uint64(0), result.Hash)
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	const maxRetries = 2
	g := New(10, maxRetries, zerolog.Nop())
	copycat := encodePNG(t, flat)

	calls := 0
	result, attempts, err := g.Run(context.Background(), []uint64{0}, func(context.Context, int) ([]byte, string, error) {
		calls++
		return copycat, "", nil
	})
	require.ErrorIs(t, err, domain.ErrStyleCopy)
	require.Equal(t, maxRetries+1, attempts)
	require.Equal(t, maxRetries+1, calls)
	require.Empty(t, result.Data, "a rejected image must never leak out")
}

func TestRunPropagatesGenerateError(t *testing.T) {
	g := New(10, 2, zerolog.Nop())
	boom := errors.New("provider down")

	_, attempts, err := g.Run(context.Background(), []uint64{0}, func(context.Context, int) ([]byte, string, error) {
		return nil, "", boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts, "generation errors are not retried here")
}

func TestRunHonorsContext(t *testing.T) {
	g := New(10, 2, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, attempts, err := g.Run(ctx, []uint64{0}, func(context.Context, int) ([]byte, string, error) {
		t.Fatal("generate must not run after cancellation")
		return nil, "", nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, attempts)
}

func TestNewAppliesDefaults(t *testing.T) {
	g := New(0, -1, zerolog.Nop())
	require.Equal(t, DefaultCopyThreshold, g.Threshold())
	require.Equal(t, DefaultMaxRetries, g.MaxRetries())
}
