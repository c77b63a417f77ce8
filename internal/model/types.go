package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/preprocess"
)

// Backend names a model runtime.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendTFLite Backend = "tflite"
)

var (
	ErrArtifactMissing    = errors.New("model artifact not found")
	ErrUnsupportedFormat  = errors.New("unsupported model format")
	ErrBackendUnavailable = errors.New("model backend not compiled in")
	ErrShapeMismatch      = errors.New("model input/output contract mismatch")
	ErrClosed             = errors.New("model runtime closed")
)

// Info describes a loaded artifact and its resolved tensor bindings.
type Info struct {
	Backend     Backend `json:"backend"`
	Path        string  `json:"path"`
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	Classes     int     `json:"classes"`
}

// Runtime runs one forward pass per Infer call. Implementations serialise
// access to their tensor buffers internally; ctx only bounds the wait for a
// free instance and never interrupts a running pass.
type Runtime interface {
	Infer(ctx context.Context, input []float32) ([]float32, error)
	Info() Info
	Close() error
}

// Options configures Open.
type Options struct {
	Path string

	// SharedLibrary is the onnxruntime library to dlopen. Empty uses the
	// platform default search path.
	SharedLibrary string

	// Threads caps intra-op parallelism. 0 leaves the runtime default.
	Threads int

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// InputShape is the tensor shape the preprocessor produces.
func InputShape() []int64 {
	s := preprocess.Shape
	return s[:]
}

// checkInput accepts dims <= 0 as dynamic.
func checkInput(got []int64) error {
	want := InputShape()
	if len(got) != len(want) {
		return fmt.Errorf("%w: input rank %d, want %v", ErrShapeMismatch, len(got), want)
	}
	for i := range want {
		if got[i] > 0 && got[i] != want[i] {
			return fmt.Errorf("%w: input shape %v, want %v", ErrShapeMismatch, got, want)
		}
	}
	return nil
}

// checkOutput requires the flattened output to hold one score per label.
// Dynamic dims count as 1 since the batch is always 1.
func checkOutput(got []int64) ([]int64, error) {
	if len(got) == 0 {
		return nil, fmt.Errorf("%w: scalar output", ErrShapeMismatch)
	}
	shape := make([]int64, len(got))
	n := int64(1)
	for i, d := range got {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
		n *= d
	}
	if n != labels.Count {
		return nil, fmt.Errorf("%w: output shape %v has %d scores, label table has %d",
			ErrShapeMismatch, got, n, labels.Count)
	}
	return shape, nil
}

func checkInputLen(input []float32) error {
	if len(input) != preprocess.Len {
		return fmt.Errorf("%w: got %d input values, want %d", ErrShapeMismatch, len(input), preprocess.Len)
	}
	return nil
}
