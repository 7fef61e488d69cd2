package mediautil

import (
	"encoding/base64"
	"encoding/binary"
	"image"
	"math"
)

const phashSrcSize = 32 // resize-before-DCT size
const phashLowFreq = 8  // retained low-frequency square

// PerceptualHash computes an 8x8 DCT-based perceptual hash of img and
// returns it base64-encoded as a 64-bit value.
func PerceptualHash(img image.Image) string {
	gray := toGrayscaleMatrix(img, phashSrcSize, phashSrcSize)
	coeffs := dct2D(gray)

	vals := make([]float64, 0, phashLowFreq*phashLowFreq-1)
	for y := 0; y < phashLowFreq; y++ {
		for x := 0; x < phashLowFreq; x++ {
			if x == 0 && y == 0 {
				continue // skip DC term
			}
			vals = append(vals, coeffs[y][x])
		}
	}
	median := medianOf(vals)

	var bits uint64
	bitIdx := uint(0)
	for y := 0; y < phashLowFreq; y++ {
		for x := 0; x < phashLowFreq; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if coeffs[y][x] > median {
				bits |= 1 << bitIdx
			}
			bitIdx++
		}
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	return base64.StdEncoding.EncodeToString(buf[:])
}

// HammingDistance64 counts differing bits between two base64-encoded
// 64-bit perceptual hashes. Malformed input reports
// maximum distance so it never falsely matches.
func HammingDistance64(a, b string) int {
	av, aok := decodeHash(a)
	bv, bok := decodeHash(b)
	if !aok || !bok {
		return 64
	}
	x := av ^ bv
	count := 0
	for x != 0 {
		x &= x - 1
		count++
	}
	return count
}

func decodeHash(s string) (uint64, bool) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(raw), true
}

func toGrayscaleMatrix(img image.Image, w, h int) [][]float64 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		out[y] = make([]float64, w)
		srcY := bounds.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*srcW/w
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			out[y][x] = lum
		}
	}
	return out
}

// dct2D applies a naive separable 2D DCT-II; fine for the fixed 32x32
// input this package always feeds it.
func dct2D(m [][]float64) [][]float64 {
	n := len(m)
	tmp := make([][]float64, n)
	for i := range tmp {
		tmp[i] = dct1D(m[i])
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = tmp[y][x]
		}
		transformed := dct1D(col)
		for y := 0; y < n; y++ {
			out[y][x] = transformed[y]
		}
	}
	return out
}

func dct1D(v []float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += v[i] * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		c := 1.0
		if k == 0 {
			c = 1.0 / math.Sqrt2
		}
		out[k] = sum * c * math.Sqrt(2.0/float64(n))
	}
	return out
}

func medianOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	// insertion sort: vals is always 63 elements, plenty fast.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
