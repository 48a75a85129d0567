// Package preflight validates and chunks generation requests before anything
// is dispatched. It deduplicates references by content hash, optionally
// re-encodes oversized references toward a byte envelope, and bin-packs rows
// into chunks that never exceed the configured budgets.
package preflight

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	_ "image/gif"
	_ "image/png"

	"stylesafe/internal/domain"
	"stylesafe/internal/styleguard"
)

// Budgets are the configured size and count limits.
type Budgets struct {
	JobMaxBytes     int64 `json:"job_max_bytes"`
	ItemMaxBytes    int64 `json:"item_max_bytes"`
	MaxImagesPerJob int   `json:"max_images_per_job"`
	MaxRowsPerChunk int   `json:"max_rows_per_chunk"`
}

// Reference is one deduplicated style reference, loaded and hashed.
type Reference struct {
	Path   string  `json:"path"`
	Hash   string  `json:"hash"`
	PHash  uint64  `json:"-"`
	Weight float64 `json:"weight"`
	Bytes  int64   `json:"bytes"`
	Data   []byte  `json:"-"`
}

// Chunk is a budget-conformant subset of the request. Every chunk carries the
// full deduplicated reference set; its image count is the reference count
// plus one reserved slot per row's generated output.
type Chunk struct {
	Index  int                `json:"index"`
	Rows   []domain.PromptRow `json:"rows"`
	Refs   []Reference        `json:"refs"`
	Bytes  int64              `json:"bytes"`
	Images int                `json:"images"`
}

// Report is the preflight outcome. OK means the input was acceptable without
// dropping anything; rows with unresolvable problems are excluded from the
// chunks but always reported.
type Report struct {
	OK          bool             `json:"ok"`
	Chunks      []Chunk          `json:"chunks"`
	UniqueRefs  []Reference      `json:"unique_refs"`
	BytesBefore int64            `json:"bytes_before"`
	BytesAfter  int64            `json:"bytes_after"`
	Problems    []domain.Problem `json:"problems"`
}

// Loader resolves a reference path to its raw bytes.
type Loader interface {
	Load(path string) ([]byte, error)
}

type osLoader struct{}

func (osLoader) Load(path string) ([]byte, error) { return os.ReadFile(path) }

// Validator runs preflight passes. Loaded references are cached by path with
// a TTL, so repeated preflights over the same pack skip disk reads and
// re-hashing; staleness is bounded by the TTL rather than mtime checks.
type Validator struct {
	budgets  Budgets
	loader   Loader
	cache    *gocache.Cache
	compress int64 // target ref byte envelope; 0 disables re-encoding
	logger   zerolog.Logger
}

// Option customizes a Validator.
type Option func(*Validator)

// WithLoader replaces the filesystem loader.
func WithLoader(l Loader) Option { return func(v *Validator) { v.loader = l } }

// WithCompression re-encodes references larger than target bytes.
func WithCompression(target int64) Option { return func(v *Validator) { v.compress = target } }

// New builds a Validator with the given budgets.
func New(budgets Budgets, logger zerolog.Logger, opts ...Option) *Validator {
	v := &Validator{
		budgets: budgets,
		loader:  osLoader{},
		cache:   gocache.New(10*time.Minute, 15*time.Minute),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run validates rows and the reference pack against the budgets and splits
// the request into ordered chunks. Zero references is valid (text-only
// generation). Rows are processed in input order, so chunk boundaries are
// deterministic for a fixed input and budget set.
func (v *Validator) Run(rows []domain.PromptRow, pack domain.ReferencePack) (Report, error) {
	pack.Normalize()
	if err := pack.Validate(); err != nil {
		return Report{}, err
	}

	var report Report
	refs, rawBytes := v.resolveRefs(pack, &report)
	report.UniqueRefs = refs

	var refBytes int64
	for _, ref := range refs {
		refBytes += ref.Bytes
	}

	var rowBytesTotal int64
	for _, row := range rows {
		rowBytesTotal += int64(len(row.Prompt))
	}
	report.BytesBefore = rowBytesTotal + rawBytes
	report.BytesAfter = rowBytesTotal + refBytes

	report.Chunks = v.chunk(rows, refs, refBytes, &report)
	report.OK = len(report.Problems) == 0
	return report, nil
}

// resolveRefs loads, deduplicates and optionally compresses the pack. Refs
// that cannot be loaded become problems; the rest of the pack still resolves.
// rawBytes is the pre-dedup, pre-compression total for the report.
func (v *Validator) resolveRefs(pack domain.ReferencePack, report *Report) ([]Reference, int64) {
	seen := make(map[string]bool)
	refs := make([]Reference, 0, len(pack.Refs))
	var rawBytes int64
	for _, entry := range pack.Refs {
		ref, err := v.loadRef(entry)
		if err != nil {
			report.Problems = append(report.Problems,
				domain.ValidationProblem(fmt.Sprintf("reference %s: %v", entry.Path, err), entry.Path))
			continue
		}
		rawBytes += ref.rawBytes
		if seen[ref.ref.Hash] {
			continue
		}
		seen[ref.ref.Hash] = true
		refs = append(refs, ref.ref)
	}
	return refs, rawBytes
}

type loadedRef struct {
	ref      Reference
	rawBytes int64
}

func (v *Validator) loadRef(entry domain.RefEntry) (loadedRef, error) {
	if cached, ok := v.cache.Get(entry.Path); ok {
		lr := cached.(loadedRef)
		lr.ref.Weight = entry.Weight
		return lr, nil
	}
	data, err := v.loader.Load(entry.Path)
	if err != nil {
		return loadedRef{}, err
	}
	raw := int64(len(data))
	if v.compress > 0 && raw > v.compress {
		if shrunk, ok := reencode(data, v.compress); ok {
			v.logger.Debug().Str("path", entry.Path).
				Int64("before", raw).Int("after", len(shrunk)).
				Msg("preflight: reference re-encoded")
			data = shrunk
		}
	}
	sum := sha256.Sum256(data)
	phash, err := styleguard.PerceptualHash(data)
	if err != nil {
		return loadedRef{}, err
	}
	lr := loadedRef{
		ref: Reference{
			Path:   entry.Path,
			Hash:   hex.EncodeToString(sum[:]),
			PHash:  phash,
			Weight: entry.Weight,
			Bytes:  int64(len(data)),
			Data:   data,
		},
		rawBytes: raw,
	}
	v.cache.SetDefault(entry.Path, lr)
	return lr, nil
}

// reencode walks a JPEG quality ladder until the result fits the target.
// Returns ok=false when even the lowest rung stays oversized or the input
// does not decode; the caller keeps the original bytes then.
func reencode(data []byte, target int64) ([]byte, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	for _, quality := range []int{85, 70, 55, 40} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, false
		}
		if int64(buf.Len()) <= target {
			return buf.Bytes(), true
		}
	}
	return nil, false
}

// chunk is a greedy, order-preserving bin-pack. Each chunk pays the full
// reference cost once; a row adds its prompt bytes and one generated-image
// slot. A row whose prompt plus references alone bust the per-item or per-job
// budget is an unresolvable problem, not a truncation.
func (v *Validator) chunk(rows []domain.PromptRow, refs []Reference, refBytes int64, report *Report) []Chunk {
	var refCount = len(refs)
	var chunks []Chunk
	var cur *Chunk

	open := func() {
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Refs:   refs,
			Bytes:  refBytes,
			Images: refCount,
		})
		cur = &chunks[len(chunks)-1]
	}

	for i, row := range rows {
		rowBytes := int64(len(row.Prompt))
		itemBytes := rowBytes + refBytes
		instance := fmt.Sprintf("row[%d]", i)

		if v.budgets.ItemMaxBytes > 0 && itemBytes > v.budgets.ItemMaxBytes {
			report.Problems = append(report.Problems, domain.BudgetProblem(
				fmt.Sprintf("row and its references total %d bytes, per-item budget is %d", itemBytes, v.budgets.ItemMaxBytes),
				instance))
			continue
		}
		if v.budgets.JobMaxBytes > 0 && itemBytes > v.budgets.JobMaxBytes {
			report.Problems = append(report.Problems, domain.BudgetProblem(
				fmt.Sprintf("row and its references total %d bytes, job budget is %d", itemBytes, v.budgets.JobMaxBytes),
				instance))
			continue
		}
		if v.budgets.MaxImagesPerJob > 0 && refCount+1 > v.budgets.MaxImagesPerJob {
			report.Problems = append(report.Problems, domain.BudgetProblem(
				fmt.Sprintf("references alone occupy %d image slots, budget is %d", refCount, v.budgets.MaxImagesPerJob),
				instance))
			continue
		}

		if cur == nil || !v.fits(cur, rowBytes) {
			open()
		}
		cur.Rows = append(cur.Rows, row)
		cur.Bytes += rowBytes
		cur.Images++
	}

	// A trailing empty chunk can only appear when every row was rejected.
	if len(chunks) > 0 && len(chunks[len(chunks)-1].Rows) == 0 {
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}

func (v *Validator) fits(c *Chunk, rowBytes int64) bool {
	if v.budgets.JobMaxBytes > 0 && c.Bytes+rowBytes > v.budgets.JobMaxBytes {
		return false
	}
	if v.budgets.MaxImagesPerJob > 0 && c.Images+1 > v.budgets.MaxImagesPerJob {
		return false
	}
	if v.budgets.MaxRowsPerChunk > 0 && len(c.Rows)+1 > v.budgets.MaxRowsPerChunk {
		return false
	}
	return true
}
