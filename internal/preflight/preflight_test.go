package preflight

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stylesafe/internal/domain"
)

type mapLoader struct {
	files map[string][]byte
	loads int
}

func (m *mapLoader) Load(path string) ([]byte, error) {
	m.loads++
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

// tinyPNG encodes a small solid-color image; the shade varies the content
// hash between references.
func tinyPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noisyPNG encodes an incompressible image, so its PNG form stays large and
// its JPEG re-encoding shrinks it.
func noisyPNG(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func rows(prompts ...string) []domain.PromptRow {
	out := make([]domain.PromptRow, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, domain.PromptRow{Prompt: p, SourceImage: "src.png"})
	}
	return out
}

func stylePack(paths ...string) domain.ReferencePack {
	pack := domain.ReferencePack{Mode: domain.RefModeStyle}
	for _, p := range paths {
		pack.Refs = append(pack.Refs, domain.RefEntry{Path: p, Weight: 1})
	}
	return pack
}

func TestRunDeduplicatesReferencesByContent(t *testing.T) {
	same := tinyPNG(t, 10)
	loader := &mapLoader{files: map[string][]byte{
		"refs/a.png":      same,
		"refs/a_copy.png": append([]byte(nil), same...),
		"refs/b.png":      tinyPNG(t, 200),
	}}
	v := New(Budgets{}, zerolog.Nop(), WithLoader(loader))

	report, err := v.Run(rows("one"), stylePack("refs/a.png", "refs/a_copy.png", "refs/b.png"))
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.UniqueRefs, 2, "identical bytes under different paths must collapse")
	require.Greater(t, report.BytesBefore, report.BytesAfter, "the duplicate still counts toward bytes before")
}

func TestRunZeroReferencesIsValid(t *testing.T) {
	v := New(Budgets{}, zerolog.Nop(), WithLoader(&mapLoader{}))

	report, err := v.Run(rows("alpha", "beta"), domain.ReferencePack{Mode: domain.RefModeStyle})
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.Chunks, 1)
	require.Equal(t, 2, report.Chunks[0].Images, "one generated-image slot per row")
	require.Equal(t, int64(len("alpha")+len("beta")), report.Chunks[0].Bytes)
}

func TestRunSplitsByMaxRowsPerChunk(t *testing.T) {
	v := New(Budgets{MaxRowsPerChunk: 2}, zerolog.Nop(), WithLoader(&mapLoader{}))

	report, err := v.Run(rows("r0", "r1", "r2", "r3", "r4"), domain.ReferencePack{Mode: domain.RefModeStyle})
	require.NoError(t, err)
	require.Len(t, report.Chunks, 3)

	// Order-preserving: concatenating the chunks reproduces the input.
	var got []string
	for i, c := range report.Chunks {
		require.Equal(t, i, c.Index)
		for _, r := range c.Rows {
			got = append(got, r.Prompt)
		}
	}
	require.Equal(t, []string{"r0", "r1", "r2", "r3", "r4"}, got)
}

func TestRunSplitsByJobBytes(t *testing.T) {
	ref := tinyPNG(t, 50)
	refBytes := int64(len(ref))
	loader := &mapLoader{files: map[string][]byte{"refs/a.png": ref}}

	// Each chunk pays the reference cost once; the budget leaves room for
	// exactly two 10-byte rows on top of it.
	v := New(Budgets{JobMaxBytes: refBytes + 20}, zerolog.Nop(), WithLoader(loader))

	report, err := v.Run(rows(
		strings.Repeat("a", 10),
		strings.Repeat("b", 10),
		strings.Repeat("c", 10),
	), stylePack("refs/a.png"))
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.Chunks, 2)
	require.Len(t, report.Chunks[0].Rows, 2)
	require.Len(t, report.Chunks[1].Rows, 1)
	for _, c := range report.Chunks {
		require.Len(t, c.Refs, 1, "every chunk carries the full reference set")
		require.LessOrEqual(t, c.Bytes, refBytes+20)
	}
}

func TestRunSplitsByImageBudget(t *testing.T) {
	loader := &mapLoader{files: map[string][]byte{
		"refs/a.png": tinyPNG(t, 10),
		"refs/b.png": tinyPNG(t, 20),
	}}
	// 2 refs + 1 generated slot caps each chunk at a single row.
	v := New(Budgets{MaxImagesPerJob: 3}, zerolog.Nop(), WithLoader(loader))

	report, err := v.Run(rows("r0", "r1"), stylePack("refs/a.png", "refs/b.png"))
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.Chunks, 2)
	for _, c := range report.Chunks {
		require.Equal(t, 3, c.Images)
	}
}

func TestRunOversizedRowIsReportedNotTruncated(t *testing.T) {
	v := New(Budgets{ItemMaxBytes: 16}, zerolog.Nop(), WithLoader(&mapLoader{}))

	report, err := v.Run(rows("ok row", strings.Repeat("x", 64), "another ok"), domain.ReferencePack{Mode: domain.RefModeStyle})
	require.NoError(t, err)
	require.False(t, report.OK)
	require.Len(t, report.Problems, 1)
	require.Equal(t, "row[1]", report.Problems[0].Instance)
	require.Equal(t, 413, report.Problems[0].Status)
	require.Contains(t, report.Problems[0].Detail, "split the request")

	// The surviving rows still chunk.
	require.Len(t, report.Chunks, 1)
	require.Len(t, report.Chunks[0].Rows, 2)
	require.Equal(t, "ok row", report.Chunks[0].Rows[0].Prompt)
	require.Equal(t, "another ok", report.Chunks[0].Rows[1].Prompt)
}

func TestRunReferencesBustingImageBudget(t *testing.T) {
	loader := &mapLoader{files: map[string][]byte{
		"refs/a.png": tinyPNG(t, 10),
		"refs/b.png": tinyPNG(t, 20),
	}}
	// Two refs already fill the budget, leaving no slot for any output.
	v := New(Budgets{MaxImagesPerJob: 2}, zerolog.Nop(), WithLoader(loader))

	report, err := v.Run(rows("r0", "r1"), stylePack("refs/a.png", "refs/b.png"))
	require.NoError(t, err)
	require.False(t, report.OK)
	require.Empty(t, report.Chunks)
	require.Len(t, report.Problems, 2)
}

func TestRunUnloadableReferenceBecomesProblem(t *testing.T) {
	loader := &mapLoader{files: map[string][]byte{"refs/a.png": tinyPNG(t, 10)}}
	v := New(Budgets{}, zerolog.Nop(), WithLoader(loader))

	report, err := v.Run(rows("r0"), stylePack("refs/missing.png", "refs/a.png"))
	require.NoError(t, err)
	require.False(t, report.OK)
	require.Len(t, report.Problems, 1)
	require.Equal(t, "refs/missing.png", report.Problems[0].Instance)
	require.Len(t, report.UniqueRefs, 1, "the loadable reference still resolves")
	require.Len(t, report.Chunks, 1)
}

func TestRunCompressesOversizedReferences(t *testing.T) {
	raw := noisyPNG(t)
	const target = 100 << 10
	require.Greater(t, int64(len(raw)), int64(target), "fixture must start oversized")

	loader := &mapLoader{files: map[string][]byte{"refs/noise.png": raw}}
	v := New(Budgets{}, zerolog.Nop(), WithLoader(loader), WithCompression(target))

	report, err := v.Run(rows("r0"), stylePack("refs/noise.png"))
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.UniqueRefs, 1)
	require.LessOrEqual(t, report.UniqueRefs[0].Bytes, int64(target))
	require.Greater(t, report.BytesBefore, report.BytesAfter)
}

func TestRunCachesLoadedReferences(t *testing.T) {
	loader := &mapLoader{files: map[string][]byte{"refs/a.png": tinyPNG(t, 10)}}
	v := New(Budgets{}, zerolog.Nop(), WithLoader(loader))

	_, err := v.Run(rows("r0"), stylePack("refs/a.png"))
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads)

	// Second pass hits the cache but still honors the new weight.
	pack := domain.ReferencePack{Mode: domain.RefModeStyle, Refs: []domain.RefEntry{{Path: "refs/a.png", Weight: 3}}}
	report, err := v.Run(rows("r0"), pack)
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads)
	require.Equal(t, float64(3), report.UniqueRefs[0].Weight)
}

func TestRunRejectsInvalidPack(t *testing.T) {
	v := New(Budgets{}, zerolog.Nop(), WithLoader(&mapLoader{}))
	_, err := v.Run(rows("r0"), domain.ReferencePack{Mode: "freestyle"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunDeterministicChunking(t *testing.T) {
	loader := &mapLoader{files: map[string][]byte{"refs/a.png": tinyPNG(t, 10)}}
	v := New(Budgets{MaxRowsPerChunk: 3}, zerolog.Nop(), WithLoader(loader))

	var prompts []string
	for i := 0; i < 10; i++ {
		prompts = append(prompts, fmt.Sprintf("row %d", i))
	}
	first, err := v.Run(rows(prompts...), stylePack("refs/a.png"))
	require.NoError(t, err)
	second, err := v.Run(rows(prompts...), stylePack("refs/a.png"))
	require.NoError(t, err)
	require.Equal(t, len(first.Chunks), len(second.Chunks))
	for i := range first.Chunks {
		require.Equal(t, first.Chunks[i].Bytes, second.Chunks[i].Bytes)
		require.Equal(t, len(first.Chunks[i].Rows), len(second.Chunks[i].Rows))
	}
}
