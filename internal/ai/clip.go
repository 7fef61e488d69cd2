package ai

import (
	"hash/fnv"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
)

// ClipInputSize/ClipEmbeddingDim are CLIP ViT-B/32's fixed image input and
// output dimension.
const (
	ClipInputSize    = 224
	ClipEmbeddingDim = 512

	// ClipMaxTokens is the fixed text-side sequence length CLIP was
	// trained with.
	ClipMaxTokens = 77

	// clipVocabSize bounds the token ids produced by TokenizeText; the
	// text model's embedding table must be at least this large.
	clipVocabSize = 49408
)

// clipMean/clipStd are CLIP's own normalization constants (distinct from
// plain ImageNet).
var clipMean = [3]float32{0.48145466 * 255, 0.4578275 * 255, 0.40821073 * 255}
var clipStd = [3]float32{0.26862954 * 255, 0.26130258 * 255, 0.27577711 * 255}

// PreprocessForClipImage resizes img to ClipInputSize and applies CLIP's
// normalization, CHW layout.
func PreprocessForClipImage(img image.Image) []float32 {
	resized := mediautil.ResizeForModel(img, ClipInputSize, ClipInputSize)
	return imageToCHW(resized, ClipInputSize, ClipInputSize, clipMean, clipStd)
}

// startOfText/endOfText mirror CLIP's BPE tokenizer's two reserved
// boundary tokens (ids 49406/49407 in the published vocabulary); ordinary
// words hash into the remaining id space since bundling the real
// tokenizer.json merge table is out of scope here.
const (
	clipTokenStart = 49406
	clipTokenEnd   = 49407
)

// TokenizeText turns a query into up to ClipMaxTokens int64 ids, bracketed
// with the start/end markers and padded with 0, fed as an int64 tensor.
// It hashes words rather than running a real BPE tokenizer.
func TokenizeText(query string) []int64 {
	words := strings.Fields(strings.ToLower(query))
	ids := make([]int64, ClipMaxTokens)
	ids[0] = clipTokenStart
	pos := 1
	for _, w := range words {
		if pos >= ClipMaxTokens-1 {
			break
		}
		ids[pos] = wordToken(w)
		pos++
	}
	if pos < ClipMaxTokens {
		ids[pos] = clipTokenEnd
	}
	return ids
}

func wordToken(w string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	// Reserve the two boundary ids so ordinary words never collide with
	// them.
	return int64(h.Sum32() % (clipVocabSize - 2))
}

// ScoredMedia is one semantic-search hit.
type ScoredMedia struct {
	MediaID int64
	Score   float64
}

// SemanticSearch compares a query embedding against every stored image
// embedding by cosine similarity, returning the topK highest scoring
// matches. There is no index: query is a linear scan plus top-k sort.
func SemanticSearch(query []float32, candidates map[int64][]float32, topK int) []ScoredMedia {
	out := make([]ScoredMedia, 0, len(candidates))
	for id, emb := range candidates {
		out = append(out, ScoredMedia{MediaID: id, Score: cosineSim(query, emb)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -2
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
