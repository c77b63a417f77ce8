//go:build tflite

package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
)

type tfliteRuntime struct {
	mu      sync.Mutex
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	info    Info
}

func openTFLite(opts Options) (_ Runtime, err error) {
	log := opts.logger()
	r := &tfliteRuntime{info: Info{Backend: BackendTFLite, Path: opts.Path, Classes: labels.Count}}
	defer func() {
		if err != nil {
			r.destroy()
		}
	}()

	r.model = tflite.NewModelFromFile(opts.Path)
	if r.model == nil {
		return nil, fmt.Errorf("failed to load TFLite model %s", opts.Path)
	}

	r.options = tflite.NewInterpreterOptions()
	if opts.Threads > 0 {
		r.options.SetNumThread(opts.Threads)
	}
	r.options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Warn("tflite", "msg", msg)
	}, nil)

	r.interp = tflite.NewInterpreter(r.model, r.options)
	if r.interp == nil {
		return nil, fmt.Errorf("failed to create TFLite interpreter")
	}
	if status := r.interp.AllocateTensors(); status != tflite.OK {
		return nil, fmt.Errorf("failed to allocate tensors: status %v", status)
	}

	if n, m := r.interp.GetInputTensorCount(), r.interp.GetOutputTensorCount(); n != 1 || m != 1 {
		return nil, fmt.Errorf("%w: model has %d inputs and %d outputs, want 1 and 1", ErrShapeMismatch, n, m)
	}
	in, out := r.interp.GetInputTensor(0), r.interp.GetOutputTensor(0)
	if in.Type() != tflite.Float32 || out.Type() != tflite.Float32 {
		return nil, fmt.Errorf("%w: tensors are %v -> %v, want float32", ErrShapeMismatch, in.Type(), out.Type())
	}
	if err := checkInput(dims(in)); err != nil {
		return nil, err
	}
	outputShape, err := checkOutput(dims(out))
	if err != nil {
		return nil, err
	}

	r.info.InputName, r.info.OutputName = in.Name(), out.Name()
	r.info.InputShape, r.info.OutputShape = InputShape(), outputShape

	log.Debug("tflite model loaded", "path", opts.Path,
		"input", in.Name(), "input_shape", r.info.InputShape, "output", out.Name(), "output_shape", outputShape)
	return r, nil
}

func dims(t *tflite.Tensor) []int64 {
	out := make([]int64, t.NumDims())
	for i := range out {
		out[i] = int64(t.Dim(i))
	}
	return out
}

func (r *tfliteRuntime) Infer(_ context.Context, input []float32) ([]float32, error) {
	if err := checkInputLen(input); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interp == nil {
		return nil, ErrClosed
	}

	copy(r.interp.GetInputTensor(0).Float32s(), input)
	if status := r.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("inference failed: status %v", status)
	}

	src := r.interp.GetOutputTensor(0).Float32s()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (r *tfliteRuntime) Info() Info { return r.info }

func (r *tfliteRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroy()
	return nil
}

func (r *tfliteRuntime) destroy() {
	if r.interp != nil {
		r.interp.Delete()
		r.interp = nil
	}
	if r.options != nil {
		r.options.Delete()
		r.options = nil
	}
	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}
}
