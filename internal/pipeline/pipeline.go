// Package pipeline composes preprocessing, model inference and
// postprocessing behind a single Classify call shared by every surface.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/postprocess"
	"github.com/Brownie44l1/butterfly-api/internal/preprocess"
)

// ErrClassification matches every error returned by Classify.
var ErrClassification = errors.New("could not identify the image")

// Stage names the step that failed.
type Stage string

const (
	StagePreprocess  Stage = "preprocess"
	StageInfer       Stage = "infer"
	StagePostprocess Stage = "postprocess"
)

// Error carries the failing stage and its cause.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrClassification, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrClassification }

// Pipeline holds the model runtime. It has no other state.
type Pipeline struct {
	runtime model.Runtime
	logger  *slog.Logger
}

func New(runtime model.Runtime, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{runtime: runtime, logger: logger}
}

// Runtime exposes the underlying model for health reporting.
func (p *Pipeline) Runtime() model.Runtime { return p.runtime }

// Classify returns the top-1 prediction for img. It either returns a complete
// prediction or an *Error.
func (p *Pipeline) Classify(ctx context.Context, img image.Image) (postprocess.Prediction, error) {
	output, err := p.forward(ctx, img)
	if err != nil {
		return postprocess.Prediction{}, err
	}
	pred, err := postprocess.Postprocess(output)
	if err != nil {
		return postprocess.Prediction{}, &Error{Stage: StagePostprocess, Err: err}
	}
	return pred, nil
}

// Rank returns the k most probable classes for img.
func (p *Pipeline) Rank(ctx context.Context, img image.Image, k int) ([]postprocess.Prediction, error) {
	output, err := p.forward(ctx, img)
	if err != nil {
		return nil, err
	}
	top, err := postprocess.Rank(output, k)
	if err != nil {
		return nil, &Error{Stage: StagePostprocess, Err: err}
	}
	return top, nil
}

// ClassifyTensor skips preprocessing for callers that already hold a model
// input in NHWC BGR layout.
func (p *Pipeline) ClassifyTensor(ctx context.Context, input []float32) (postprocess.Prediction, error) {
	output, err := p.infer(ctx, input)
	if err != nil {
		return postprocess.Prediction{}, err
	}
	pred, err := postprocess.Postprocess(output)
	if err != nil {
		return postprocess.Prediction{}, &Error{Stage: StagePostprocess, Err: err}
	}
	return pred, nil
}

func (p *Pipeline) forward(ctx context.Context, img image.Image) ([]float32, error) {
	start := time.Now()
	tensor, err := preprocess.Preprocess(img)
	if err != nil {
		return nil, &Error{Stage: StagePreprocess, Err: err}
	}
	p.logger.Debug("preprocessed image", "bounds", img.Bounds(), "shape", tensor.Shape, "elapsed", time.Since(start))
	return p.infer(ctx, tensor.Data)
}

func (p *Pipeline) infer(ctx context.Context, input []float32) ([]float32, error) {
	start := time.Now()
	output, err := p.runtime.Infer(ctx, input)
	if err != nil {
		return nil, &Error{Stage: StageInfer, Err: err}
	}
	p.logger.Debug("inference done", "elapsed", time.Since(start))
	return output, nil
}
