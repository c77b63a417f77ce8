package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Pool spreads Infer calls over independently loaded runtimes, one per
// worker. A runtime is checked out only for the duration of its forward pass.
type Pool struct {
	all  []Runtime
	free chan Runtime
	done chan struct{}
	once sync.Once
}

// NewPool opens n runtimes with open. If any fails, those already opened are
// closed and the error is returned.
func NewPool(n int, open func() (Runtime, error)) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		all:  make([]Runtime, 0, n),
		free: make(chan Runtime, n),
		done: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		r, err := open()
		if err != nil {
			for _, opened := range p.all {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open runtime %d/%d: %w", i+1, n, err)
		}
		p.all = append(p.all, r)
		p.free <- r
	}
	return p, nil
}

// OpenPool loads n copies of the artifact described by opts.
func OpenPool(n int, opts Options) (*Pool, error) {
	return NewPool(n, func() (Runtime, error) { return Open(opts) })
}

// Infer waits for a free runtime, honouring ctx only while waiting.
func (p *Pool) Infer(ctx context.Context, input []float32) ([]float32, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("waiting for model worker: %w", err)
	}

	select {
	case r := <-p.free:
		defer func() { p.free <- r }()
		return r.Infer(ctx, input)
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for model worker: %w", ctx.Err())
	}
}

// Info reports the first runtime's bindings; all runtimes load the same file.
func (p *Pool) Info() Info { return p.all[0].Info() }

// Size is the number of loaded runtimes.
func (p *Pool) Size() int { return len(p.all) }

// Close waits for in-flight passes to finish and closes every runtime.
func (p *Pool) Close() error {
	var errs []error
	p.once.Do(func() {
		close(p.done)
		for range p.all {
			r := <-p.free
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
