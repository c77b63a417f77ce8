//go:build !tflite

package model

import "fmt"

// openTFLite is replaced when built with -tags tflite, which links
// libtensorflowlite_c.
func openTFLite(opts Options) (Runtime, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags tflite to load %s", ErrBackendUnavailable, opts.Path)
}
