// Package painter turns images into model tensors and back.
//
// Style models take a fixed-size 1×3×H×W float32 tensor with RGB values
// in [0,255] and return one of the same layout. The painter resizes the
// input to the model resolution, runs the model and resizes the result to
// a fraction of the original image size.
package painter

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"

	"github.com/tutu-network/painter/internal/domain"
)

// DefaultScale is the output size relative to the input image.
const DefaultScale = 0.5

// Model is the part of a loaded model handle the painter needs.
type Model interface {
	InputSize() (width, height int)
	OutputSize() (width, height int)
	Run(ctx context.Context, input []float32) ([]float32, error)
}

// Painter applies one model to images.
type Painter struct {
	model Model
	scale float64
}

// New returns a Painter for model. A non-positive scale uses DefaultScale.
func New(model Model, scale float64) *Painter {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Painter{model: model, scale: scale}
}

// Paint stylizes img. The result is OutputSize(img bounds, scale).
func (p *Painter) Paint(ctx context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInference)
	}

	inW, inH := p.model.InputSize()
	out, err := p.model.Run(ctx, Preprocess(img, inW, inH))
	if err != nil {
		return nil, err
	}

	outW, outH := p.model.OutputSize()
	styled, err := Postprocess(out, outW, outH)
	if err != nil {
		return nil, err
	}

	w, h := OutputSize(b.Dx(), b.Dy(), p.scale)
	return resize.Resize(uint(w), uint(h), styled, resize.Lanczos3), nil
}

// OutputSize scales w×h, truncating and keeping each side at least 1.
func OutputSize(w, h int, scale float64) (int, int) {
	sw := int(float64(w) * scale)
	sh := int(float64(h) * scale)
	return max(sw, 1), max(sh, 1)
}

// Preprocess resizes img to w×h and lays it out as a flat CHW tensor.
// Transparent pixels are flattened onto white.
func Preprocess(img image.Image, w, h int) []float32 {
	rgba := flatten(img)
	resized := resize.Resize(uint(w), uint(h), rgba, resize.Lanczos3)
	rb := resized.Bounds()

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float32(r >> 8)
			data[plane+i] = float32(g >> 8)
			data[2*plane+i] = float32(b >> 8)
		}
	}
	return data
}

// Postprocess converts a CHW tensor of w×h back into an image, clipping
// values to [0,255].
func Postprocess(data []float32, w, h int) (*image.RGBA, error) {
	plane := w * h
	if w <= 0 || h <= 0 || len(data) != 3*plane {
		return nil, fmt.Errorf("%w: output has %d values, want 3x%dx%d", domain.ErrInference, len(data), w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			img.SetRGBA(x, y, color.RGBA{
				R: clip(data[i]),
				G: clip(data[plane+i]),
				B: clip(data[2*plane+i]),
				A: 0xff,
			})
		}
	}
	return img, nil
}

func clip(v float32) uint8 {
	switch {
	case v != v || v <= 0: // NaN
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
