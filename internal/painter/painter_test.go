package painter

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/painter/internal/domain"
)

// invertModel mirrors the mock engine backend: a square model that
// returns 255-v for every value.
type invertModel struct {
	size int
	err  error
}

func (m invertModel) InputSize() (int, int)  { return m.size, m.size }
func (m invertModel) OutputSize() (int, int) { return m.size, m.size }

func (m invertModel) Run(_ context.Context, in []float32) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = 255 - v
	}
	return out, nil
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestOutputSize(t *testing.T) {
	tests := []struct {
		w, h  int
		scale float64
		wantW int
		wantH int
	}{
		{500, 500, 0.5, 250, 250},
		{640, 480, 0.5, 320, 240},
		{333, 101, 0.5, 166, 50},
		{1, 1, 0.5, 1, 1},
		{100, 50, 1, 100, 50},
	}
	for _, tt := range tests {
		w, h := OutputSize(tt.w, tt.h, tt.scale)
		assert.Equal(t, tt.wantW, w, "width for %dx%d@%v", tt.w, tt.h, tt.scale)
		assert.Equal(t, tt.wantH, h, "height for %dx%d@%v", tt.w, tt.h, tt.scale)
	}
}

func TestPreprocess_Layout(t *testing.T) {
	img := solid(40, 30, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	data := Preprocess(img, 8, 8)
	require.Len(t, data, 3*8*8)

	plane := 8 * 8
	assert.InDelta(t, 10, data[0], 1)
	assert.InDelta(t, 20, data[plane], 1)
	assert.InDelta(t, 30, data[2*plane], 1)
	assert.InDelta(t, 30, data[3*plane-1], 1)
}

func TestPreprocess_TransparentIsWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	data := Preprocess(img, 4, 4)
	for i, v := range data {
		require.InDelta(t, 255, v, 1, "value %d", i)
	}
}

func TestPostprocess_Clips(t *testing.T) {
	data := []float32{
		-20, 300, // R
		12.9, 255, // G
		0, 128.5, // B
	}
	img, err := Postprocess(data, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 0, G: 12, B: 0, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 128, A: 255}, img.RGBAAt(1, 0))
}

func TestPostprocess_WrongLength(t *testing.T) {
	_, err := Postprocess(make([]float32, 10), 2, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInference))
}

func TestPaint_ScalesOutput(t *testing.T) {
	p := New(invertModel{size: 16}, 0.5)

	out, err := p.Paint(context.Background(), solid(500, 500, color.White))
	require.NoError(t, err)
	assert.Equal(t, 250, out.Bounds().Dx())
	assert.Equal(t, 250, out.Bounds().Dy())

	r, g, b, _ := out.At(125, 125).RGBA()
	assert.Less(t, r>>8, uint32(8), "white should invert to black")
	assert.Less(t, g>>8, uint32(8))
	assert.Less(t, b>>8, uint32(8))
}

func TestPaint_DefaultScale(t *testing.T) {
	p := New(invertModel{size: 8}, 0)

	out, err := p.Paint(context.Background(), solid(100, 40, color.Black))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 20), out.Bounds())
}

func TestPaint_ModelError(t *testing.T) {
	boom := errors.New("boom")
	p := New(invertModel{size: 8, err: boom}, 0.5)

	_, err := p.Paint(context.Background(), solid(10, 10, color.Black))
	assert.ErrorIs(t, err, boom)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 2, color.Black)))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, domain.ErrInference)

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, domain.ErrInference)
}

// hugePNG encodes a 1x1 PNG and rewrites its IHDR to declare w x h.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecode_TooManyPixels(t *testing.T) {
	data := hugePNG(t, 50000, 50000)
	require.Less(t, len(data), 1024)

	_, _, err := Decode(data)
	require.ErrorIs(t, err, domain.ErrInference)
	assert.Contains(t, err.Error(), "50000x50000")

	_, _, err = Decode(hugePNG(t, 8000, 5001))
	assert.ErrorIs(t, err, domain.ErrInference)
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(solid(20, 10, color.White), 0)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}
