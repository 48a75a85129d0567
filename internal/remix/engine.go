package remix

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"stylesafe/internal/domain"
)

// Variation caps. Style and lighting draws are bounded so remixed prompts
// stay recognizably derived from their descriptor.
const (
	MaxPerImageLimit = 100
	maxStyleTerms    = 3
	maxLightingTerms = 2
)

// Options controls one remix run.
type Options struct {
	MaxPerImage      int   `json:"max_per_image" validate:"omitempty,min=1,max=100"`
	Seed             int64 `json:"seed" validate:"min=0"`
	MaxStyleTerms    int   `json:"max_style_terms,omitempty"`
	MaxLightingTerms int   `json:"max_lighting_terms,omitempty"`
}

func (o *Options) normalize() {
	if o.MaxStyleTerms <= 0 || o.MaxStyleTerms > maxStyleTerms {
		o.MaxStyleTerms = maxStyleTerms
	}
	if o.MaxLightingTerms <= 0 || o.MaxLightingTerms > maxLightingTerms {
		o.MaxLightingTerms = maxLightingTerms
	}
}

func (o Options) validate() error {
	if o.MaxPerImage < 1 || o.MaxPerImage > MaxPerImageLimit {
		return fmt.Errorf("%w: max_per_image must be between 1 and %d, got %d", domain.ErrInvalidOptions, MaxPerImageLimit, o.MaxPerImage)
	}
	if o.Seed < 0 || o.Seed > math.MaxUint32 {
		return fmt.Errorf("%w: seed must fit an unsigned 32-bit integer, got %d", domain.ErrInvalidOptions, o.Seed)
	}
	return nil
}

// Lexicons for deterministic swaps. Order matters: the generator indexes into
// these, so reordering entries changes remix output for existing seeds.
var (
	lightingLexicon = []string{
		"soft diffused light",
		"golden hour glow",
		"dramatic rim lighting",
		"overcast ambient light",
		"neon accent lighting",
		"candlelit warmth",
	}
	cameraHints = []string{
		"85mm portrait lens",
		"wide-angle establishing shot",
		"macro close-up",
		"overhead flat lay",
		"low-angle perspective",
	}
	compositionDirectives = []string{
		"rule-of-thirds composition",
		"centered symmetrical composition",
		"dynamic diagonal composition",
		"generous negative space",
		"tight crop on the subject",
	}
)

// Generate deterministically expands descriptors into prompt rows. An empty
// descriptor list yields an empty row list. Invalid options fail
// synchronously with domain.ErrInvalidOptions.
func Generate(descriptors []domain.ImageDescriptor, opts Options) ([]domain.PromptRow, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.normalize()

	r := newRNG(uint32(opts.Seed))
	rows := make([]domain.PromptRow, 0, len(descriptors)*opts.MaxPerImage)
	for _, d := range descriptors {
		for v := 0; v < opts.MaxPerImage; v++ {
			rows = append(rows, composeRow(r, d, opts))
		}
	}
	return rows, nil
}

// composeRow builds one prompt as
// [subject] + [style terms] + [lighting terms] + [optional camera hint] + [composition directive],
// prefixed verbatim with the style-only instruction. Every draw happens in a
// fixed order so the sequence stays reproducible.
func composeRow(r *rng, d domain.ImageDescriptor, opts Options) domain.PromptRow {
	tags := make([]domain.Tag, 0, 8)
	tag := func(value string, source domain.TagSource) {
		tags = append(tags, domain.Tag{Value: value, Source: source, Descriptor: d.Hash})
	}

	subject := r.pick(d.Subjects)
	if subject == "" {
		subject = subjectFromPath(d.Path)
	}
	tag(subject, domain.TagSourceSubject)
	parts := []string{subject}

	styleCount := 1 + r.intn(opts.MaxStyleTerms)
	for _, term := range r.sample(d.Style, styleCount) {
		tag(term, domain.TagSourceStyle)
		parts = append(parts, term)
	}

	lighting := lightingTerms(r, d.Lighting, opts.MaxLightingTerms)
	for _, term := range lighting {
		tag(term, domain.TagSourceLighting)
		parts = append(parts, term)
	}

	if len(d.Palette) > 0 {
		color := d.Palette[0]
		tag(color, domain.TagSourcePalette)
		parts = append(parts, "palette anchored on "+color)
	}

	// The camera draw is consumed unconditionally to keep the sequence stable.
	camera := r.pick(cameraHints)
	if r.next() < 0.5 {
		tag(camera, domain.TagSourceCamera)
		parts = append(parts, camera)
	}

	directive := r.pick(compositionDirectives)
	tag(directive, domain.TagSourceComposition)
	parts = append(parts, directive)

	seed := int64(r.intn(math.MaxInt32))
	strength := math.Round((0.2+0.6*r.next())*100) / 100

	return domain.PromptRow{
		Prompt:      domain.StyleOnlyInstruction + " " + strings.Join(parts, ", "),
		SourceImage: d.Path,
		Tags:        tags,
		Seed:        &seed,
		Strength:    &strength,
	}
}

// lightingTerms keeps the descriptor's own lighting and swaps in up to max
// extra terms from the lexicon, skipping duplicates of the original.
func lightingTerms(r *rng, original string, max int) []string {
	var out []string
	if original != "" {
		out = append(out, original)
	}
	swaps := r.intn(max + 1)
	for _, term := range r.sample(lightingLexicon, swaps) {
		if term == original {
			continue
		}
		out = append(out, term)
	}
	return out
}

func subjectFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	if strings.TrimSpace(stem) == "" {
		return "untitled subject"
	}
	return stem
}
