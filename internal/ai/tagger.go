package ai

import (
	"image"
	"math"
	"sort"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
)

// TaggerInputSize is the classifier's fixed square input size
// (MobileNet-class 224x224 RGB).
const TaggerInputSize = 224

// TaggerTopK/TaggerMinProbability bound how many tags a single pass can
// attach and how confident each must be.
const (
	TaggerTopK           = 5
	TaggerMinProbability = 0.05
)

// imageNetMean/imageNetStd are the standard ImageNet normalization
// constants.
var imageNetMean = [3]float32{123.68, 116.78, 103.94}
var imageNetStd = [3]float32{58.4, 57.12, 57.38}

// PreprocessForTagging resizes img to TaggerInputSize and applies ImageNet
// normalization, CHW layout.
func PreprocessForTagging(img image.Image) []float32 {
	resized := mediautil.ResizeForModel(img, TaggerInputSize, TaggerInputSize)
	return imageToCHW(resized, TaggerInputSize, TaggerInputSize, imageNetMean, imageNetStd)
}

// classRange maps a contiguous band of ImageNet-1000 class indices to one
// small vocabulary word. Ranges are illustrative examples; a production
// vocabulary would cover the full 1000-class space.
var classRanges = []struct {
	lo, hi int
	tag    string
}{
	{151, 268, "dog"},
	{281, 285, "cat"},
	{0, 1, "fish"},
	{8, 24, "bird"},
	{339, 376, "animal"},
	{404, 900, "object"},
	{900, 999, "scene"},
}

func tagForClass(classIdx int) (string, bool) {
	for _, r := range classRanges {
		if classIdx >= r.lo && classIdx <= r.hi {
			return r.tag, true
		}
	}
	return "", false
}

// TagPrediction is one (tag name, probability) pair surviving threshold
// and top-k filtering.
type TagPrediction struct {
	Tag         string
	Probability float64
}

// DecodeTags runs softmax over raw classifier logits, maps each surviving
// class through classRanges, deduplicates (multiple class indices can map
// to the same word), and caps at TaggerTopK.
func DecodeTags(logits []float32) []TagPrediction {
	probs := softmax(logits)

	best := map[string]float64{}
	for idx, p := range probs {
		if p < TaggerMinProbability {
			continue
		}
		tag, ok := tagForClass(idx)
		if !ok {
			continue
		}
		if cur, exists := best[tag]; !exists || p > cur {
			best[tag] = p
		}
	}

	out := make([]TagPrediction, 0, len(best))
	for tag, p := range best {
		out = append(out, TagPrediction{Tag: tag, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	if len(out) > TaggerTopK {
		out = out[:TaggerTopK]
	}
	return out
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = e
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
