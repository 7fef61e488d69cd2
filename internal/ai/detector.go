package ai

import (
	"math"
	"sort"
)

// DetectorInputWidth/Height are the fixed input dimensions the face
// detector expects.
const (
	DetectorInputWidth  = 320
	DetectorInputHeight = 240

	DetectorConfidenceThreshold = 0.7
	DetectorNMSIoUThreshold     = 0.3

	centerVariance = 0.1
	sizeVariance   = 0.2
)

// featureMap pairs a stride with the per-cell prior box half-widths (in
// pixels, at the detector's native 320x240 input) it emits, mirroring the
// 3-scales-on-4-feature-maps architecture. This configuration yields
// exactly 4420 priors: 40x30x3 + 20x15x2 + 10x8x2 + 5x4x3.
var featureMaps = []struct {
	stride   int
	minBoxes []float64
}{
	{8, []float64{10, 16, 24}},
	{16, []float64{32, 48}},
	{32, []float64{64, 96}},
	{64, []float64{128, 192, 256}},
}

// prior is one anchor box in normalized (0..1) center-size form.
type prior struct {
	cx, cy, w, h float64
}

// Priors returns the fixed anchor set for the detector's input size,
// generated once and reused across every Detect call.
func Priors() []prior {
	var out []prior
	for _, fm := range featureMaps {
		fmW := ceilDiv(DetectorInputWidth, fm.stride)
		fmH := ceilDiv(DetectorInputHeight, fm.stride)
		for y := 0; y < fmH; y++ {
			for x := 0; x < fmW; x++ {
				cx := (float64(x) + 0.5) / float64(fmW)
				cy := (float64(y) + 0.5) / float64(fmH)
				for _, box := range fm.minBoxes {
					out = append(out, prior{
						cx: cx, cy: cy,
						w: box / DetectorInputWidth,
						h: box / DetectorInputHeight,
					})
				}
			}
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Detection is a single decoded, post-NMS face box in normalized
// coordinates plus a confidence score.
type Detection struct {
	X, Y, W, H float64
	Score      float64
}

// DecodeDetections turns raw location+score tensors into boxes above
// DetectorConfidenceThreshold, then applies NMS at DetectorNMSIoUThreshold.
// locs is 4 floats per prior (cx, cy, w, h offsets); scores is 2 floats
// per prior (background, face).
func DecodeDetections(priors []prior, locs, scores []float32) []Detection {
	var candidates []Detection
	for i, p := range priors {
		faceScore := float64(scores[i*2+1])
		if faceScore < DetectorConfidenceThreshold {
			continue
		}
		lx := float64(locs[i*4+0])
		ly := float64(locs[i*4+1])
		lw := float64(locs[i*4+2])
		lh := float64(locs[i*4+3])

		cx := p.cx + lx*centerVariance*p.w
		cy := p.cy + ly*centerVariance*p.h
		w := p.w * math.Exp(lw*sizeVariance)
		h := p.h * math.Exp(lh*sizeVariance)

		x := cx - w/2
		y := cy - h/2
		candidates = append(candidates, Detection{X: clamp01(x), Y: clamp01(y), W: w, H: h, Score: faceScore})
	}
	return nonMaxSuppress(candidates, DetectorNMSIoUThreshold)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nonMaxSuppress greedily keeps the highest-scoring box and removes any
// remaining box whose IoU with it exceeds the threshold, repeating over
// what's left.
func nonMaxSuppress(boxes []Detection, iouThreshold float64) []Detection {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Score > boxes[j].Score })
	var kept []Detection
	suppressed := make([]bool, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b Detection) float64 {
	ax1, ay1, ax2, ay2 := a.X, a.Y, a.X+a.W, a.Y+a.H
	bx1, by1, bx2, by2 := b.X, b.Y, b.X+b.W, b.Y+b.H

	ix1, iy1 := maxF(ax1, bx1), maxF(ay1, by1)
	ix2, iy2 := minF(ax2, bx2), minF(ay2, by2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.W*a.H + b.W*b.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
