package ai

import (
	"context"
	"image"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
	"github.com/ronimuliawan/Wanderer/internal/store"
)

// Config key names gating each optional pass.
const (
	ConfigFaceEnabled = "ai_face_enabled"
	ConfigTagsEnabled = "ai_tags_enabled"
	ConfigClipEnabled = "ai_clip_enabled"
)

// PollInterval is how long the worker sleeps when there is no item ready
// for any gated pass.
const PollInterval = 2 * time.Second

// Worker is the single-threaded, resumable AI scheduler:
// every iteration re-reads feature flags, requeues items on an off-to-on
// flip, attempts model acquisition under a backoff, pulls the next
// candidate item, and runs whichever passes are gated on. At most one item
// is in flight across all passes.
type Worker struct {
	Store     *store.Store
	ModelsDir string
	Log       *log.Logger

	detector *onnxSessionHolder
	embedder *onnxSessionHolder
	tagger   *onnxSessionHolder
	clipImg  *onnxSessionHolder
	clipTxt  *onnxSessionHolder

	prevFace bool
	prevTags bool
	prevClip bool
}

// onnxSessionHolder tracks one lazily acquired model and the backoff
// state for retrying acquisition after a failure.
type onnxSessionHolder struct {
	session Session
	lastTry time.Time
	lastErr error
}

func New(s *store.Store, modelsDir string, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "[ai] ", log.LstdFlags|log.LUTC)
	}
	return &Worker{Store: s, ModelsDir: modelsDir, Log: logger}
}

// Run loops until ctx is cancelled, checking the cancellation token first
// in every iteration.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		w.runIteration(ctx)
	}
}

func (w *Worker) runIteration(ctx context.Context) {
	faceEnabled := w.flagEnabled(ctx, ConfigFaceEnabled)
	tagsEnabled := w.flagEnabled(ctx, ConfigTagsEnabled)
	clipEnabled := w.flagEnabled(ctx, ConfigClipEnabled)

	w.requeueOnFlip(ctx, ConfigFaceEnabled, &w.prevFace, faceEnabled, w.Store.QueuePendingFaceScans)
	w.requeueOnFlip(ctx, ConfigTagsEnabled, &w.prevTags, tagsEnabled, w.Store.QueuePendingTagScans)
	w.requeueOnFlip(ctx, ConfigClipEnabled, &w.prevClip, clipEnabled, w.Store.QueuePendingClipScans)

	item, err := w.Store.GetNextItemForAI(ctx)
	if err != nil {
		w.Log.Printf("get next item: %v", err)
		sleep(ctx, PollInterval)
		return
	}
	if item == nil {
		sleep(ctx, PollInterval)
		return
	}

	if !mediautil.IsImage(item.MimeType) {
		w.shortCircuit(ctx, *item)
		return
	}

	img := w.loadImage(item.FilePath)
	if img == nil {
		// Unreadable file: treat identically to a non-image so the item
		// doesn't block the scheduler forever.
		w.shortCircuit(ctx, *item)
		return
	}

	if faceEnabled && item.FaceStatus == store.StatusPending {
		w.runFacePass(ctx, *item, img)
	}
	if tagsEnabled && item.TagsStatus == store.StatusPending {
		w.runTagsPass(ctx, *item, img)
	}
	if clipEnabled && item.ClipStatus == store.StatusPending {
		w.runClipPass(ctx, *item, img)
	}
}

func (w *Worker) flagEnabled(ctx context.Context, key string) bool {
	v, err := strconv.ParseBool(w.Store.GetConfigDefault(ctx, key, "false"))
	return err == nil && v
}

func (w *Worker) requeueOnFlip(ctx context.Context, key string, prev *bool, now bool, requeue func(context.Context) (int, error)) {
	if now && !*prev {
		if n, err := requeue(ctx); err != nil {
			w.Log.Printf("requeue %s: %v", key, err)
		} else if n > 0 {
			w.Log.Printf("requeued %d items for %s", n, key)
		}
	}
	*prev = now
}

// shortCircuit marks every still-pending per-feature status done for a
// non-image (or unreadable) item, so GetNextItemForAI stops returning it
// without a model ever running on it.
func (w *Worker) shortCircuit(ctx context.Context, item store.MediaItem) {
	if item.FaceStatus == store.StatusPending {
		_ = w.Store.SetFaceStatus(ctx, item.ID, store.StatusDone)
	}
	if item.TagsStatus == store.StatusPending {
		_ = w.Store.SetTagsStatus(ctx, item.ID, store.StatusDone)
	}
	if item.ClipStatus == store.StatusPending {
		_ = w.Store.SetClipStatus(ctx, item.ID, store.StatusDone)
	}
}

func (w *Worker) loadImage(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

// runFacePass runs detection then, in sequence, embedding+clustering for
// each detected face before marking face_status done -- even a zero-face
// result is done.
func (w *Worker) runFacePass(ctx context.Context, item store.MediaItem, img image.Image) {
	sess, err := w.acquire(ctx, w.detectorHolder(), detectorSpec())
	if err != nil {
		w.Log.Printf("face detector unavailable: %v", err)
		return
	}

	detections, err := w.detectFaces(sess, img)
	if err != nil {
		w.Log.Printf("detect faces media=%d: %v", item.ID, err)
		return
	}

	storeDetections := make([]store.FaceDetection, len(detections))
	for i, d := range detections {
		storeDetections[i] = store.FaceDetection{X: d.X, Y: d.Y, W: d.W, H: d.H, Score: d.Score}
	}
	faceIDs, err := w.Store.ReplaceFacesForMedia(ctx, item.ID, storeDetections)
	if err != nil {
		w.Log.Printf("replace faces media=%d: %v", item.ID, err)
		return
	}

	if len(detections) > 0 {
		embedSess, err := w.acquire(ctx, w.embedderHolder(), embedderSpec())
		if err != nil {
			w.Log.Printf("face embedder unavailable: %v", err)
			return
		}
		for i, d := range detections {
			crop := faceCrop(img, d)
			vec, err := embedSess.Run(PreprocessFace(crop))
			if err != nil {
				w.Log.Printf("embed face media=%d: %v", item.ID, err)
				continue
			}
			L2Normalize(vec)
			if _, err := w.Store.StoreFaceEmbedding(ctx, faceIDs[i], vec); err != nil {
				w.Log.Printf("store face embedding media=%d: %v", item.ID, err)
			}
		}
	}

	if err := w.Store.SetFaceStatus(ctx, item.ID, store.StatusDone); err != nil {
		w.Log.Printf("set face status media=%d: %v", item.ID, err)
	}
}

func (w *Worker) detectFaces(sess Session, img image.Image) ([]Detection, error) {
	resized := mediautil.ResizeForModel(img, DetectorInputWidth, DetectorInputHeight)
	tensor := imageToCHW(resized, DetectorInputWidth, DetectorInputHeight, [3]float32{127, 127, 127}, [3]float32{128, 128, 128})
	out, err := sess.Run(tensor)
	if err != nil {
		return nil, err
	}
	priors := Priors()
	nPriors := len(priors)
	// The detector emits one [cx,cy,w,h] offset and one [bg,face] score
	// pair per prior, concatenated as locs then scores.
	locs := out[:nPriors*4]
	scores := out[nPriors*4:]
	return DecodeDetections(priors, locs, scores), nil
}

func (w *Worker) runTagsPass(ctx context.Context, item store.MediaItem, img image.Image) {
	sess, err := w.acquire(ctx, w.taggerHolder(), taggerSpec())
	if err != nil {
		w.Log.Printf("tagger unavailable: %v", err)
		return
	}
	logits, err := sess.Run(PreprocessForTagging(img))
	if err != nil {
		w.Log.Printf("classify media=%d: %v", item.ID, err)
		return
	}
	predictions := DecodeTags(logits)
	tags := make([]store.TagConfidence, len(predictions))
	for i, p := range predictions {
		tags[i] = store.TagConfidence{Name: p.Tag, Confidence: p.Probability}
	}
	if err := w.Store.SetTagsForMedia(ctx, item.ID, tags); err != nil {
		w.Log.Printf("set tags media=%d: %v", item.ID, err)
		return
	}
	if err := w.Store.SetTagsStatus(ctx, item.ID, store.StatusDone); err != nil {
		w.Log.Printf("set tags status media=%d: %v", item.ID, err)
	}
}

func (w *Worker) runClipPass(ctx context.Context, item store.MediaItem, img image.Image) {
	sess, err := w.acquire(ctx, w.clipImgHolder(), clipImageSpec())
	if err != nil {
		w.Log.Printf("clip image encoder unavailable: %v", err)
		return
	}
	vec, err := sess.Run(PreprocessForClipImage(img))
	if err != nil {
		w.Log.Printf("clip encode media=%d: %v", item.ID, err)
		return
	}
	L2Normalize(vec)
	// SetClipEmbedding also marks clip_status done.
	if err := w.Store.SetClipEmbedding(ctx, item.ID, vec); err != nil {
		w.Log.Printf("set clip embedding media=%d: %v", item.ID, err)
	}
}

// EncodeTextQuery loads (acquiring on demand) the CLIP text encoder and
// returns a normalized embedding for a semantic search query.
func (w *Worker) EncodeTextQuery(ctx context.Context, query string) ([]float32, error) {
	sess, err := w.acquire(ctx, w.clipTxtHolder(), clipTextSpec())
	if err != nil {
		return nil, err
	}
	ids := TokenizeText(query)
	asFloat := make([]float32, len(ids))
	for i, id := range ids {
		asFloat[i] = float32(id)
	}
	vec, err := sess.Run(asFloat)
	if err != nil {
		return nil, err
	}
	return L2Normalize(vec), nil
}

func (w *Worker) detectorHolder() *onnxSessionHolder {
	if w.detector == nil {
		w.detector = &onnxSessionHolder{}
	}
	return w.detector
}

func (w *Worker) embedderHolder() *onnxSessionHolder {
	if w.embedder == nil {
		w.embedder = &onnxSessionHolder{}
	}
	return w.embedder
}

func (w *Worker) taggerHolder() *onnxSessionHolder {
	if w.tagger == nil {
		w.tagger = &onnxSessionHolder{}
	}
	return w.tagger
}

func (w *Worker) clipImgHolder() *onnxSessionHolder {
	if w.clipImg == nil {
		w.clipImg = &onnxSessionHolder{}
	}
	return w.clipImg
}

func (w *Worker) clipTxtHolder() *onnxSessionHolder {
	if w.clipTxt == nil {
		w.clipTxt = &onnxSessionHolder{}
	}
	return w.clipTxt
}

// acquire returns h's already-loaded session, or attempts AcquireModel
// once the backoff since the last failed attempt has elapsed.
func (w *Worker) acquire(ctx context.Context, h *onnxSessionHolder, spec ModelSpec) (Session, error) {
	if h.session != nil {
		return h.session, nil
	}
	if !h.lastTry.IsZero() && time.Since(h.lastTry) < AcquisitionBackoff {
		return nil, h.lastErr
	}
	h.lastTry = time.Now()
	sess, err := AcquireModel(ctx, w.ModelsDir, spec)
	h.lastErr = err
	if err != nil {
		return nil, err
	}
	h.session = sess
	return sess, nil
}

func detectorSpec() ModelSpec {
	return ModelSpec{
		Name:        "face-detector",
		Candidates:  []string{"face-detector.onnx", "face-detector-int8.onnx"},
		MirrorURLs:  []string{"https://huggingface.co/onnx-community/ultraface/resolve/main/face-detector.onnx"},
		InputShape:  []int64{1, 3, DetectorInputHeight, DetectorInputWidth},
		OutputShape: []int64{1, len(Priors())*4 + len(Priors())*2},
	}
}

func embedderSpec() ModelSpec {
	return ModelSpec{
		Name:        "face-embedder",
		Candidates:  []string{"face-embedder.onnx", "face-embedder-int8.onnx"},
		MirrorURLs:  []string{"https://huggingface.co/onnx-community/arcface/resolve/main/face-embedder.onnx"},
		InputShape:  []int64{1, 3, EmbeddingInputSize, EmbeddingInputSize},
		OutputShape: []int64{1, EmbeddingDim},
	}
}

func taggerSpec() ModelSpec {
	return ModelSpec{
		Name:        "tagger",
		Candidates:  []string{"mobilenet-tagger.onnx", "mobilenet-tagger-int8.onnx"},
		MirrorURLs:  []string{"https://huggingface.co/onnx-community/mobilenetv2/resolve/main/mobilenet-tagger.onnx"},
		InputShape:  []int64{1, 3, TaggerInputSize, TaggerInputSize},
		OutputShape: []int64{1, 1000},
	}
}

func clipImageSpec() ModelSpec {
	return ModelSpec{
		Name:        "clip-vision",
		Candidates:  []string{"clip-vit-b32-vision.onnx", "clip-vit-b32-vision-int8.onnx"},
		MirrorURLs:  []string{"https://huggingface.co/Xenova/clip-vit-base-patch32/resolve/main/clip-vit-b32-vision.onnx"},
		InputShape:  []int64{1, 3, ClipInputSize, ClipInputSize},
		OutputShape: []int64{1, ClipEmbeddingDim},
	}
}

func clipTextSpec() ModelSpec {
	return ModelSpec{
		Name:        "clip-text",
		Candidates:  []string{"clip-vit-b32-text.onnx", "clip-vit-b32-text-int8.onnx"},
		MirrorURLs:  []string{"https://huggingface.co/Xenova/clip-vit-base-patch32/resolve/main/clip-vit-b32-text.onnx"},
		InputShape:  []int64{1, ClipMaxTokens},
		OutputShape: []int64{1, ClipEmbeddingDim},
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
