// Package tensor isolates the numerical backend behind a fixed
// tensor-in/tensor-out contract. Detection and recognition code only
// ever sees Session; the ONNX Runtime adapter lives in ort.go.
package tensor

import "context"

// Tensor is a dense float32 tensor in row-major (NCHW) layout.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NumElements returns the element count implied by the shape.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		if d > 0 {
			n *= d
		}
	}
	return n
}

// Dim returns the i-th shape dimension, or 0 when out of range.
func (t Tensor) Dim(i int) int64 {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// Session runs one loaded model. Implementations are safe for
// sequential use only; callers serialize concurrent runs.
type Session interface {
	Run(ctx context.Context, input Tensor) (Tensor, error)
	Close() error
}

// Runtime opens model sessions from files on disk.
type Runtime interface {
	OpenSession(ctx context.Context, modelPath string) (Session, error)
	Close() error
}
