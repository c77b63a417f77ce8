// Package imageio decodes user uploads into image.Image values.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoImage     = errors.New("no image provided")
	ErrUndecodable = errors.New("invalid image format. Supported: JPEG, PNG, GIF, WebP, BMP, TIFF")
	ErrTooLarge    = errors.New("image too large")
)

// MaxPixels bounds width*height before the full decode allocates a bitmap.
const MaxPixels = 64 << 20

// Decoded is an image plus the format name reported by the decoder.
type Decoded struct {
	Image  image.Image
	Format string
	Size   int
}

// Decode reads at most limit bytes from r and decodes them. limit <= 0 means
// no limit.
func Decode(r io.Reader, limit int64) (*Decoded, error) {
	if r == nil {
		return nil, ErrNoImage
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory upload.
func DecodeBytes(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUndecodable, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return &Decoded{Image: img, Format: format, Size: len(data)}, nil
}

// DecodeFile opens, decodes and closes path.
func DecodeFile(path string, limit int64) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, limit)
}

// IsInputError reports whether err describes a bad upload rather than a
// server-side failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoImage) || errors.Is(err, ErrUndecodable) || errors.Is(err, ErrTooLarge)
}
