package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// StyleOnlyInstruction is carried verbatim on every prompt and every
// generation request. Audit tooling matches on the exact text, so it must
// never be paraphrased, reformatted or omitted.
const StyleOnlyInstruction = "Use the attached reference images for style, palette, texture and mood only. Do not copy subject geometry, pose or layout from any reference; the prompt text alone governs subject and composition."

// PromptRow is one remixed prompt derived from a source descriptor. Rows are
// immutable once produced.
type PromptRow struct {
	Prompt      string   `json:"prompt"`
	SourceImage string   `json:"source_image"`
	Tags        []Tag    `json:"tags,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	Strength    *float64 `json:"strength,omitempty"`
}

// CanonicalHash returns a deterministic content hash of the row: SHA-256 over
// NFC-normalized fields in a fixed order, with tags sorted by source and
// value. Two rows with the same content always hash identically, regardless
// of tag ordering or Unicode representation.
func (r PromptRow) CanonicalHash() string {
	h := sha256.New()
	field := func(s string) {
		h.Write([]byte(norm.NFC.String(s)))
		h.Write([]byte{0})
	}
	field(r.Prompt)
	field(r.SourceImage)
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, string(t.Source)+"="+t.Value)
	}
	sort.Strings(tags)
	for _, t := range tags {
		field(t)
	}
	if r.Seed != nil {
		field(strconv.FormatInt(*r.Seed, 10))
	}
	if r.Strength != nil {
		field(strconv.FormatFloat(*r.Strength, 'f', 4, 64))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Attachment is a reference image attached to a generation request as plain
// style context. Purpose must remain AttachmentPurposeStyle; the style guard
// rejects anything else before dispatch.
type Attachment struct {
	Name    string  `json:"name"`
	Data    []byte  `json:"-"`
	Weight  float64 `json:"weight"`
	Purpose string  `json:"purpose"`
}

// AttachmentPurposeStyle is the only attachment purpose the pipeline dispatches.
const AttachmentPurposeStyle = "style"
