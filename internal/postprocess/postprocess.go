// Package postprocess converts raw model scores into a labelled prediction.
package postprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
)

var (
	// ErrClassCount means the model and the label table disagree on the
	// number of classes. It is a deployment error, not a per-request one.
	ErrClassCount = errors.New("model output does not match label table")

	ErrNonFinite = errors.New("model output contains NaN or Inf")
)

// Prediction is the top-1 result.
type Prediction struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Softmax returns exp(x-max)/sum(exp(x-max)). Shifting by the maximum keeps
// exp from overflowing for large logits.
func Softmax(logits []float32) []float64 {
	p := make([]float64, len(logits))
	if len(p) == 0 {
		return p
	}
	for i, v := range logits {
		p[i] = float64(v)
	}
	floats.AddConst(-floats.Max(p), p)
	for i := range p {
		p[i] = math.Exp(p[i])
	}
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// Postprocess applies softmax, picks the arg-max (lowest index on ties) and
// maps it to its label.
func Postprocess(output []float32) (Prediction, error) {
	dist, err := Distribution(output)
	if err != nil {
		return Prediction{}, err
	}
	idx := floats.MaxIdx(dist)
	return Prediction{Index: idx, Label: labels.Names[idx], Confidence: dist[idx]}, nil
}

// Distribution validates output against the label table and returns its
// softmax.
func Distribution(output []float32) ([]float64, error) {
	if len(output) != labels.Count {
		return nil, fmt.Errorf("%w: got %d scores, want %d", ErrClassCount, len(output), labels.Count)
	}
	for i, v := range output {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: index %d", ErrNonFinite, i)
		}
	}
	return Softmax(output), nil
}

// TopK returns the k most probable classes of dist, highest first. Equal
// probabilities keep index order.
func TopK(dist []float64, k int) []Prediction {
	if k <= 0 {
		return nil
	}
	if k > len(dist) {
		k = len(dist)
	}
	idx := make([]int, len(dist))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] > dist[idx[b]] })

	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		name, _ := labels.Name(idx[i])
		out[i] = Prediction{Index: idx[i], Label: name, Confidence: dist[idx[i]]}
	}
	return out
}

// Rank is Postprocess for the k best classes.
func Rank(output []float32, k int) ([]Prediction, error) {
	dist, err := Distribution(output)
	if err != nil {
		return nil, err
	}
	return TopK(dist, k), nil
}
