package phash

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	"golang.org/x/image/draw"

	"reelpipe/internal/fingerprint"
)

const (
	sampleSize = 32
	blockSize  = 8
)

var cosTable = buildCosTable()

func buildCosTable() [blockSize][sampleSize]float64 {
	var table [blockSize][sampleSize]float64
	for u := 0; u < blockSize; u++ {
		for x := 0; x < sampleSize; x++ {
			table[u][x] = math.Cos(float64(2*x+1) * float64(u) * math.Pi / float64(2*sampleSize))
		}
	}
	return table
}

// FromImage computes a 64-bit DCT perceptual hash. The image is reduced to
// 32x32 grayscale, transformed, and the low-frequency 8x8 block is
// thresholded against the median of its AC coefficients. Bit 63 holds the
// DC term and is always zero.
func FromImage(img image.Image) fingerprint.Fingerprint {
	gray := image.NewGray(image.Rect(0, 0, sampleSize, sampleSize))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var pixels [sampleSize][sampleSize]float64
	for y := 0; y < sampleSize; y++ {
		for x := 0; x < sampleSize; x++ {
			pixels[y][x] = float64(gray.GrayAt(x, y).Y)
		}
	}

	coeffs := make([]float64, 0, blockSize*blockSize)
	for v := 0; v < blockSize; v++ {
		for u := 0; u < blockSize; u++ {
			coeffs = append(coeffs, dct(&pixels, u, v))
		}
	}

	ac := append([]float64(nil), coeffs[1:]...)
	sort.Float64s(ac)
	median := ac[len(ac)/2]

	var hash uint64
	for i := 1; i < len(coeffs); i++ {
		if coeffs[i] > median {
			hash |= 1 << uint(63-i)
		}
	}
	return fingerprint.Fingerprint(hash)
}

// FromFile decodes a PNG or JPEG frame and hashes it.
func FromFile(path string) (fingerprint.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return FromImage(img), nil
}

func dct(pixels *[sampleSize][sampleSize]float64, u, v int) float64 {
	var sum float64
	for y := 0; y < sampleSize; y++ {
		row := cosTable[v][y]
		for x := 0; x < sampleSize; x++ {
			sum += pixels[y][x] * cosTable[u][x] * row
		}
	}
	return alpha(u) * alpha(v) * sum
}

func alpha(k int) float64 {
	if k == 0 {
		return math.Sqrt(1.0 / sampleSize)
	}
	return math.Sqrt(2.0 / sampleSize)
}
