// Package ai implements the background AI worker: lazy
// model acquisition, face detection, face embedding with greedy
// clustering, image-classification tagging, and CLIP dual-encoder
// semantic embedding, all gated by config flags and run as a resumable
// scheduler, built around an ONNX session lifecycle (session options,
// per-model Close, CHW float32 preprocessing).
package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// Tensor is the minimal float32 N-D tensor shape the worker passes to and
// reads from an ONNX session.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Session is one loaded ONNX model, already bound to fixed input/output
// shapes at load time.
type Session interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// onnxSession wraps a yalue/onnxruntime_go advanced session.
type onnxSession struct {
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	inputShape []int64
}

func newONNXSession(modelPath string, inputShape, outputShape []int64, optimize bool) (*onnxSession, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if optimize {
		_ = opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}, opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &onnxSession{session: session, input: inputTensor, output: outputTensor, inputShape: inputShape}, nil
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	copy(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, err
	}
	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (s *onnxSession) Close() error {
	s.session.Destroy()
	s.input.Destroy()
	s.output.Destroy()
	return nil
}

// ModelSpec describes one logical model the worker needs: its candidate
// on-disk filenames in priority order (non-quantized first, then
// quantized fallbacks) and the mirror URLs to fetch it from if absent.
type ModelSpec struct {
	Name         string
	Candidates   []string // filenames under ModelsDir, tried in order
	MirrorURLs   []string // tried in order against Candidates[0]
	InputShape   []int64
	OutputShape  []int64
}

// AcquireModel implements the model acquisition state machine: try each
// candidate file, first through graph optimization, then through a
// typed-but-unoptimized path; download from mirrors if none of the
// candidates exist locally.
func AcquireModel(ctx context.Context, modelsDir string, spec ModelSpec) (Session, error) {
	for _, candidate := range spec.Candidates {
		path := filepath.Join(modelsDir, candidate)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if sess, err := newONNXSession(path, spec.InputShape, spec.OutputShape, true); err == nil {
			return sess, nil
		}
		if sess, err := newONNXSession(path, spec.InputShape, spec.OutputShape, false); err == nil {
			return sess, nil
		}
		// Structural failure: the error is discarded, not logged, and the
		// next candidate file is tried.
	}

	if len(spec.Candidates) == 0 {
		return nil, verr.New(verr.KindNotFound, "no model candidates configured for "+spec.Name)
	}
	dest := filepath.Join(modelsDir, spec.Candidates[0])
	if err := downloadFromMirrors(ctx, spec.MirrorURLs, dest); err != nil {
		return nil, fmt.Errorf("acquire model %s: %w", spec.Name, err)
	}
	return newONNXSession(dest, spec.InputShape, spec.OutputShape, true)
}

// MinPlausibleBytes/MaxPlausibleBytes bound a small-file heuristic that
// rejects an obviously-failed download (an HTML error page, a truncated
// transfer) before it gets treated as a usable model.
const (
	MinPlausibleBytes = 1 << 20        // 1 MiB
	MaxPlausibleBytes = 100 << 20      // 100 MiB
)

func downloadFromMirrors(ctx context.Context, mirrors []string, dest string) error {
	var lastErr error
	for _, url := range mirrors {
		if err := downloadOne(ctx, url, dest); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = verr.New(verr.KindNotFound, "no mirrors configured")
	}
	return lastErr
}

func downloadOne(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror %s: status %d", url, resp.StatusCode)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if n < MinPlausibleBytes || n > MaxPlausibleBytes {
		os.Remove(tmp)
		return fmt.Errorf("mirror %s: implausible size %d bytes", url, n)
	}
	return os.Rename(tmp, dest)
}

// AcquisitionBackoff is the minimum time between model-acquisition
// attempts once one has failed.
const AcquisitionBackoff = 30 * time.Second
