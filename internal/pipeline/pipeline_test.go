package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/preprocess"
)

type stubRuntime struct {
	output []float32
	err    error
	inputs [][]float32
}

func (s *stubRuntime) Infer(_ context.Context, input []float32) ([]float32, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func (s *stubRuntime) Info() model.Info { return model.Info{Backend: "stub", Classes: labels.Count} }
func (s *stubRuntime) Close() error     { return nil }

func fixtureLogits() []float32 {
	out := make([]float32, labels.Count)
	for i := range out {
		out[i] = -10
	}
	out[0], out[1], out[2] = 5, 1, 0
	return out
}

func photo() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestClassifyEndToEnd(t *testing.T) {
	rt := &stubRuntime{output: fixtureLogits()}
	p := New(rt, nil)

	pred, err := p.Classify(context.Background(), photo())
	require.NoError(t, err)
	assert.Equal(t, labels.Names[0], pred.Label)
	assert.InDelta(t, 0.97, pred.Confidence, 0.01)

	require.Len(t, rt.inputs, 1)
	assert.Len(t, rt.inputs[0], preprocess.Len)
}

func TestClassifyLabelAndRange(t *testing.T) {
	for i := 0; i < labels.Count; i += 7 {
		out := make([]float32, labels.Count)
		out[i] = 3
		p := New(&stubRuntime{output: out}, nil)

		pred, err := p.Classify(context.Background(), photo())
		require.NoError(t, err)
		assert.Equal(t, labels.Names[i], pred.Label)
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
	}
}

func TestClassifyPassesPreprocessedTensor(t *testing.T) {
	rt := &stubRuntime{output: fixtureLogits()}
	img := photo()

	_, err := New(rt, nil).Classify(context.Background(), img)
	require.NoError(t, err)

	want, err := preprocess.Preprocess(img)
	require.NoError(t, err)
	assert.Equal(t, want.Data, rt.inputs[0])
}

func TestClassifyStageErrors(t *testing.T) {
	cause := errors.New("runtime exploded")

	tests := []struct {
		name  string
		rt    *stubRuntime
		img   image.Image
		stage Stage
		cause error
	}{
		{"preprocess", &stubRuntime{output: fixtureLogits()}, image.NewRGBA(image.Rect(0, 0, 0, 0)), StagePreprocess, preprocess.ErrEmptyImage},
		{"infer", &stubRuntime{err: cause}, photo(), StageInfer, cause},
		{"postprocess", &stubRuntime{output: make([]float32, 10)}, photo(), StagePostprocess, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := New(tt.rt, nil).Classify(context.Background(), tt.img)
			require.Error(t, err)
			assert.Zero(t, pred)
			assert.ErrorIs(t, err, ErrClassification)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.stage, perr.Stage)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
				assert.Equal(t, tt.cause, errors.Unwrap(err))
			}
		})
	}
}

func TestRank(t *testing.T) {
	p := New(&stubRuntime{output: fixtureLogits()}, nil)

	top, err := p.Rank(context.Background(), photo(), 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{top[0].Index, top[1].Index, top[2].Index})
}

func TestClassifyTensor(t *testing.T) {
	rt := &stubRuntime{output: fixtureLogits()}
	input := make([]float32, preprocess.Len)

	pred, err := New(rt, nil).ClassifyTensor(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "ADONIS", pred.Label)
	assert.Equal(t, input, rt.inputs[0])
}
