package tensor

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// ORTRuntime is the ONNX Runtime backed implementation of Runtime.
// The process-wide ORT environment is initialized lazily on first use;
// concurrent callers share the same initialization.
type ORTRuntime struct {
	libraryPath string
}

// NewORTRuntime creates a runtime. libraryPath optionally points at the
// onnxruntime shared library; empty uses the platform default lookup.
func NewORTRuntime(libraryPath string) *ORTRuntime {
	return &ORTRuntime{libraryPath: libraryPath}
}

func (r *ORTRuntime) ensureEnv() error {
	envOnce.Do(func() {
		if r.libraryPath != "" {
			ort.SetSharedLibraryPath(r.libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// OpenSession loads the model at modelPath. The first input and output
// reported by the model are used; the det/rec models are single-tensor
// in, single-tensor out.
func (r *ORTRuntime) OpenSession(ctx context.Context, modelPath string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.ensureEnv(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %q: %w", modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %q: no input/output tensors", modelPath)
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session for %q: %w", modelPath, err)
	}
	return &ortSession{sess: sess}, nil
}

// Close is a no-op; the shared environment lives for the process.
func (r *ORTRuntime) Close() error { return nil }

type ortSession struct {
	mu   sync.Mutex
	sess *ort.DynamicAdvancedSession
}

func (s *ortSession) Run(ctx context.Context, in Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.sess.Run([]ort.Value{input}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("run model: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		outputs[0].Destroy()
		return Tensor{}, fmt.Errorf("model produced non-float32 output")
	}
	defer out.Destroy()

	shape := out.GetShape()
	return Tensor{
		Data:  append([]float32(nil), out.GetData()...),
		Shape: append([]int64(nil), shape...),
	}, nil
}

func (s *ortSession) Close() error {
	return s.sess.Destroy()
}
