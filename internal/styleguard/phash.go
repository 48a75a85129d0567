package styleguard

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	// Decoders for the formats the provider returns.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// dHash grid: a 9x8 luminance downsample yields 64 horizontal gradient bits.
const (
	hashCols = 9
	hashRows = 8
)

// PerceptualHash computes a 64-bit difference hash of the encoded image.
// Perceptually similar images produce hashes with a small Hamming distance.
func PerceptualHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("perceptual hash: decode: %w", err)
	}
	return hashImage(img), nil
}

func hashImage(img image.Image) uint64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Box-average luminance into the grid. Cell boundaries are computed in
	// source coordinates so any input size downsamples cleanly.
	var cells [hashRows][hashCols]float64
	for row := 0; row < hashRows; row++ {
		y0 := b.Min.Y + row*h/hashRows
		y1 := b.Min.Y + (row+1)*h/hashRows
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for col := 0; col < hashCols; col++ {
			x0 := b.Min.X + col*w/hashCols
			x1 := b.Min.X + (col+1)*w/hashCols
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
				}
			}
			cells[row][col] = sum / float64((y1-y0)*(x1-x0))
		}
	}

	var h64 uint64
	for row := 0; row < hashRows; row++ {
		for col := 0; col < hashCols-1; col++ {
			h64 <<= 1
			if cells[row][col+1] > cells[row][col] {
				h64 |= 1
			}
		}
	}
	return h64
}

// Distance returns the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// FormatHash renders a hash as fixed-width hex for manifests and APIs.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHash reverses FormatHash.
func ParseHash(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("perceptual hash: parse %q: %w", s, err)
	}
	return h, nil
}
