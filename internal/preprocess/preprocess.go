// Package preprocess turns decoded images into the tensor layout the butterfly
// model was trained on: 224x224 NHWC float32, BGR, Caffe-style mean subtraction.
package preprocess

import (
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Size is the square edge the model consumes.
const Size = 224

// Channels per pixel after conversion.
const Channels = 3

// Mean is subtracted per channel after the RGB to BGR swap, so Mean[0] applies
// to blue. Values are the ImageNet statistics used by Caffe-era ResNet weights.
var Mean = [Channels]float32{103.939, 116.779, 123.68}

// Shape is the fixed input tensor shape: batch, height, width, channels.
var Shape = [4]int64{1, Size, Size, Channels}

// Len is the number of float32 values in an input tensor.
const Len = Size * Size * Channels

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Tensor is a model-ready input. Data is laid out NHWC.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Preprocess runs the full conversion. The step order is part of the model
// contract: RGB conversion, nearest-neighbour resize, float cast, channel
// reversal, mean subtraction, batch dimension.
func Preprocess(img image.Image) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, ErrEmptyImage
	}

	rgb := ToRGB(img)
	resized := Resize(rgb, Size, Size)

	return Tensor{Shape: Shape, Data: toBGRMeanSubtracted(resized)}, nil
}

// ToRGB returns an opaque copy of img anchored at (0,0). Alpha is dropped, not
// composited, so a transparent pixel keeps its straight colour values.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < w; x++ {
				dst.Pix[di+0] = src.Pix[si+0]
				dst.Pix[di+1] = src.Pix[si+1]
				dst.Pix[di+2] = src.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < w; x++ {
				c := src.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				dst.Pix[di+0], dst.Pix[di+1], dst.Pix[di+2], dst.Pix[di+3] = r, g, bl, 0xff
				di += 4
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < w; x++ {
				v := src.Pix[si+x]
				dst.Pix[di+0], dst.Pix[di+1], dst.Pix[di+2], dst.Pix[di+3] = v, v, v, 0xff
				di += 4
			}
		}
	default:
		for y := 0; y < h; y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.Pix[di+0], dst.Pix[di+1], dst.Pix[di+2], dst.Pix[di+3] = c.R, c.G, c.B, 0xff
				di += 4
			}
		}
	}
	return dst
}

// Resize scales img to w x h with nearest-neighbour sampling. Source index is
// floor((dst+0.5) * src/dst), the same rule PIL's NEAREST filter uses.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func toBGRMeanSubtracted(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, w*h*Channels)

	idx := 0
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			r := float32(img.Pix[off+0])
			g := float32(img.Pix[off+1])
			bl := float32(img.Pix[off+2])

			data[idx+0] = bl - Mean[0]
			data[idx+1] = g - Mean[1]
			data[idx+2] = r - Mean[2]

			off += 4
			idx += Channels
		}
	}
	return data
}

// At returns the three channel values stored for pixel (x, y), in BGR order.
func (t Tensor) At(x, y int) [Channels]float32 {
	i := (y*int(t.Shape[2]) + x) * Channels
	return [Channels]float32{t.Data[i], t.Data[i+1], t.Data[i+2]}
}
