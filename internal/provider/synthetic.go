package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/google/uuid"
)

// Synthetic is an in-process provider used when no API key is configured and
// by tests. It fabricates deterministic PNGs from the row hash, the variant
// index and a per-submission nonce, so resubmitting the same prompt yields a
// different image the way fresh sampling would.
type Synthetic struct {
	mu   sync.Mutex
	jobs map[string]*syntheticJob
}

type syntheticJob struct {
	batch  Batch
	nonce  string
	polled bool
	status Status
}

// NewSynthetic builds an empty synthetic provider.
func NewSynthetic() *Synthetic {
	return &Synthetic{jobs: make(map[string]*syntheticJob)}
}

func (s *Synthetic) Submit(_ context.Context, batch Batch) (Submission, error) {
	id := uuid.New().String()
	s.mu.Lock()
	s.jobs[id] = &syntheticJob{batch: batch, nonce: id, status: StatusQueued}
	s.mu.Unlock()
	variants := batch.Variants
	if variants <= 0 {
		variants = 1
	}
	return Submission{ProviderJobID: id, EstimatedCount: len(batch.Rows) * variants}, nil
}

// Poll reports running on the first call and succeeded afterwards, so
// callers exercise a realistic poll loop.
func (s *Synthetic) Poll(_ context.Context, providerJobID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[providerJobID]
	if !ok {
		return "", &Error{StatusCode: 404, Message: "unknown job " + providerJobID}
	}
	if job.status == StatusCancelled {
		return StatusCancelled, nil
	}
	if !job.polled {
		job.polled = true
		job.status = StatusRunning
		return StatusRunning, nil
	}
	job.status = StatusSucceeded
	return StatusSucceeded, nil
}

func (s *Synthetic) Fetch(_ context.Context, providerJobID string) (Outcome, error) {
	s.mu.Lock()
	job, ok := s.jobs[providerJobID]
	s.mu.Unlock()
	if !ok {
		return Outcome{}, &Error{StatusCode: 404, Message: "unknown job " + providerJobID}
	}
	variants := job.batch.Variants
	if variants <= 0 {
		variants = 1
	}
	var out Outcome
	for _, row := range job.batch.Rows {
		rowHash := row.CanonicalHash()
		for v := 0; v < variants; v++ {
			data, err := renderPNG(rowHash + "|" + fmt.Sprint(v) + "|" + job.nonce)
			if err != nil {
				return Outcome{}, err
			}
			out.Results = append(out.Results, GeneratedImage{
				RowHash: rowHash,
				Variant: v,
				Data:    data,
				Format:  "png",
			})
		}
	}
	return out, nil
}

func (s *Synthetic) Cancel(_ context.Context, providerJobID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[providerJobID]
	if !ok {
		return "", &Error{StatusCode: 404, Message: "unknown job " + providerJobID}
	}
	job.status = StatusCancelled
	return StatusCancelled, nil
}

// renderPNG produces a 64x64 image whose texture is keyed by the seed
// string. Different seeds yield visually distinct images with distant
// perceptual hashes.
func renderPNG(seed string) ([]byte, error) {
	sum := sha256.Sum256([]byte(seed))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			b := sum[(x/8+8*(y/8))%len(sum)]
			shade := uint8(int(b) ^ (x * 7) ^ (y * 13))
			img.Set(x, y, color.RGBA{R: shade, G: shade ^ b, B: uint8(x * 4), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
