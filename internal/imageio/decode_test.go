package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	d, err := Decode(bytes.NewReader(pngBytes(t, 100, 50)), 0)
	require.NoError(t, err)
	assert.Equal(t, "png", d.Format)
	assert.Equal(t, 100, d.Image.Bounds().Dx())
	assert.Equal(t, 50, d.Image.Bounds().Dy())
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	d, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", d.Format)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeBytes(nil)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = Decode(nil, 0)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = DecodeBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUndecodable)
	assert.True(t, IsInputError(err))

	data := pngBytes(t, 20, 20)
	_, err = Decode(bytes.NewReader(data), int64(len(data)-1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "red.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 4, 4), 0o644))

	d, err := DecodeFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Image.Bounds().Dx())

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsInputError(err))
}
