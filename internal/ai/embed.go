package ai

import (
	"image"
	"math"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
)

// EmbeddingInputSize is the aligned face crop size: bounding-box cropped
// and resized rather than 5-point-landmark aligned.
const EmbeddingInputSize = 112

// EmbeddingDim is the face embedding's fixed output dimension.
const EmbeddingDim = 512

// faceCrop extracts and resizes the detection's bounding box (normalized
// 0..1 coordinates against img's actual dimensions) to
// EmbeddingInputSize x EmbeddingInputSize.
func faceCrop(img image.Image, d Detection) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	x1 := bounds.Min.X + int(d.X*float64(w))
	y1 := bounds.Min.Y + int(d.Y*float64(h))
	x2 := x1 + int(d.W*float64(w))
	y2 := y1 + int(d.H*float64(h))
	x1, y1 = clampInt(x1, bounds.Min.X, bounds.Max.X), clampInt(y1, bounds.Min.Y, bounds.Max.Y)
	x2, y2 = clampInt(x2, bounds.Min.X, bounds.Max.X), clampInt(y2, bounds.Min.Y, bounds.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return img
	}

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	rect := image.Rect(x1, y1, x2, y2)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	crop := image.NewRGBA(rect)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			crop.Set(x, y, img.At(x, y))
		}
	}
	return crop
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PreprocessFace resizes a face crop to EmbeddingInputSize and converts it
// to a CHW float32 tensor in [-1, 1] (mean/std 127.5).
func PreprocessFace(img image.Image) []float32 {
	resized := mediautil.ResizeForModel(img, EmbeddingInputSize, EmbeddingInputSize)
	return imageToCHW(resized, EmbeddingInputSize, EmbeddingInputSize, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// L2Normalize scales v to unit length in place and returns it. A
// zero-length vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// imageToCHW converts img to a channel-first float32 tensor, normalizing
// each channel as (pixel - mean) / std.
func imageToCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	data := make([]float32, 3*w*h)
	plane := w * h
	bounds := img.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			data[idx] = (float32(r>>8) - mean[0]) / std[0]
			data[plane+idx] = (float32(g>>8) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(b>>8) - mean[2]) / std[2]
		}
	}
	return data
}
