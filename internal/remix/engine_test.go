package remix

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"stylesafe/internal/domain"
)

func sampleDescriptors() []domain.ImageDescriptor {
	return []domain.ImageDescriptor{
		{
			Path:     "corpus/harbor_dawn.png",
			Hash:     "a1b2c3",
			Width:    1024,
			Height:   768,
			Palette:  []string{"teal", "amber"},
			Subjects: []string{"fishing harbor", "moored boats"},
			Style:    []string{"impressionist", "painterly", "muted", "textured"},
			Lighting: "morning haze",
		},
		{
			Path:     "corpus/market_street.png",
			Hash:     "d4e5f6",
			Width:    800,
			Height:   1200,
			Palette:  []string{"crimson"},
			Subjects: []string{"market street"},
			Style:    []string{"photorealistic", "high contrast"},
			Lighting: "midday sun",
		},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	opts := Options{MaxPerImage: 3, Seed: 42}

	first, err := Generate(sampleDescriptors(), opts)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	second, err := Generate(sampleDescriptors(), opts)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if len(first) != 6 {
		t.Fatalf("expected 6 rows (2 descriptors x 3), got %d", len(first))
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("same seed produced different output:\n%s\n%s", a, b)
	}
}

func TestGeneratePrependsInstructionVerbatim(t *testing.T) {
	rows, err := Generate(sampleDescriptors(), Options{MaxPerImage: 2, Seed: 7})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	for i, row := range rows {
		if !strings.HasPrefix(row.Prompt, domain.StyleOnlyInstruction) {
			t.Fatalf("row %d does not start with the style-only instruction: %q", i, row.Prompt)
		}
	}
}

func TestGenerateDifferentSeedsDiffer(t *testing.T) {
	a, err := Generate(sampleDescriptors(), Options{MaxPerImage: 3, Seed: 1})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	b, err := Generate(sampleDescriptors(), Options{MaxPerImage: 3, Seed: 2})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) == string(bj) {
		t.Fatal("different seeds produced identical output")
	}
}

func TestGenerateTagProvenance(t *testing.T) {
	rows, err := Generate(sampleDescriptors(), Options{MaxPerImage: 1, Seed: 3})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	descByPath := map[string]string{
		"corpus/harbor_dawn.png":   "a1b2c3",
		"corpus/market_street.png": "d4e5f6",
	}
	for _, row := range rows {
		want := descByPath[row.SourceImage]
		if len(row.Tags) == 0 {
			t.Fatalf("row for %s carries no tags", row.SourceImage)
		}
		styleCount, lightingCount := 0, 0
		for _, tag := range row.Tags {
			if tag.Descriptor != want {
				t.Fatalf("tag %q points at descriptor %q, want %q", tag.Value, tag.Descriptor, want)
			}
			switch tag.Source {
			case domain.TagSourceStyle:
				styleCount++
			case domain.TagSourceLighting:
				lightingCount++
			}
			if !strings.Contains(row.Prompt, tag.Value) {
				t.Fatalf("tag %q missing from prompt %q", tag.Value, row.Prompt)
			}
		}
		if styleCount > 3 {
			t.Fatalf("row uses %d style terms, cap is 3", styleCount)
		}
		if lightingCount > 3 { // original lighting plus at most 2 swaps
			t.Fatalf("row uses %d lighting terms, cap is 3", lightingCount)
		}
	}
}

func TestGenerateEmptyDescriptors(t *testing.T) {
	rows, err := Generate(nil, Options{MaxPerImage: 5, Seed: 42})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty row list, got %d rows", len(rows))
	}
}

func TestGenerateRejectsInvalidOptions(t *testing.T) {
	cases := []Options{
		{MaxPerImage: 0, Seed: 1},
		{MaxPerImage: 101, Seed: 1},
		{MaxPerImage: 1, Seed: -1},
	}
	for _, opts := range cases {
		if _, err := Generate(sampleDescriptors(), opts); !errors.Is(err, domain.ErrInvalidOptions) {
			t.Fatalf("options %+v: expected ErrInvalidOptions, got %v", opts, err)
		}
	}
}

func TestRNGSequenceStable(t *testing.T) {
	a, b := newRNG(99), newRNG(99)
	for i := 0; i < 1000; i++ {
		x, y := a.next(), b.next()
		if x != y {
			t.Fatalf("draw %d diverged: %v vs %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of [0,1): %v", i, x)
		}
	}
}
