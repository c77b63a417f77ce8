package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open loads the artifact at opts.Path with the backend its extension names.
func Open(opts Options) (Runtime, error) {
	fi, err := os.Stat(opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, opts.Path)
		}
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArtifactMissing, opts.Path)
	}

	backend, err := BackendFor(opts.Path)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendTFLite:
		return openTFLite(opts)
	default:
		return openONNX(opts)
	}
}

// BackendFor picks a backend from the artifact's file extension.
func BackendFor(path string) (Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return BackendONNX, nil
	case ".tflite":
		return BackendTFLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
