package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
)

// The onnxruntime environment is process-wide; every session holds a
// reference and the last Close tears it down.
var ortEnv struct {
	sync.Mutex
	refs int
}

func acquireEnv(lib string) error {
	ortEnv.Lock()
	defer ortEnv.Unlock()

	if ortEnv.refs == 0 {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	ortEnv.refs++
	return nil
}

func releaseEnv() {
	ortEnv.Lock()
	defer ortEnv.Unlock()

	ortEnv.refs--
	if ortEnv.refs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

type onnxRuntime struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	info         Info
}

func openONNX(opts Options) (_ Runtime, err error) {
	if err := acquireEnv(opts.SharedLibrary); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	r := &onnxRuntime{info: Info{Backend: BackendONNX, Path: opts.Path, Classes: labels.Count}}
	defer func() {
		if err != nil {
			r.destroy()
			releaseEnv()
		}
	}()

	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("%w: model has %d inputs and %d outputs, want 1 and 1",
			ErrShapeMismatch, len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("%w: tensors are %v -> %v, want float32", ErrShapeMismatch, in.DataType, out.DataType)
	}
	if err := checkInput(in.Dimensions); err != nil {
		return nil, err
	}
	outputShape, err := checkOutput(out.Dimensions)
	if err != nil {
		return nil, err
	}

	r.info.InputName, r.info.OutputName = in.Name, out.Name
	r.info.InputShape, r.info.OutputShape = InputShape(), outputShape

	r.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(r.info.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	r.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(r.info.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if opts.Threads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	r.session, err = ort.NewAdvancedSession(opts.Path,
		[]string{in.Name}, []string{out.Name},
		[]ort.Value{r.inputTensor}, []ort.Value{r.outputTensor},
		sessOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	opts.logger().Debug("onnx model loaded", "path", opts.Path,
		"input", in.Name, "input_shape", in.Dimensions, "output", out.Name, "output_shape", out.Dimensions)
	return r, nil
}

func (r *onnxRuntime) Infer(_ context.Context, input []float32) ([]float32, error) {
	if err := checkInputLen(input); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, ErrClosed
	}

	copy(r.inputTensor.GetData(), input)
	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	src := r.outputTensor.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (r *onnxRuntime) Info() Info { return r.info }

func (r *onnxRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil
	}
	r.destroy()
	releaseEnv()
	return nil
}

func (r *onnxRuntime) destroy() {
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	if r.inputTensor != nil {
		r.inputTensor.Destroy()
		r.inputTensor = nil
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
		r.outputTensor = nil
	}
}
