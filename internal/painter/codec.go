package painter

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Registered input formats.
	_ "image/gif"
	_ "image/png"

	"github.com/tutu-network/painter/internal/domain"
)

// DefaultJPEGQuality matches the quality most image libraries use when
// saving JPEG without an explicit setting.
const DefaultJPEGQuality = 75

// MaxPixels caps the declared size of an input image. The header is
// checked before any pixel data is decoded.
const MaxPixels = 40_000_000

// Decode reads a JPEG, PNG or GIF image. Undecodable or oversized input
// wraps domain.ErrInference.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", domain.ErrInference)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %w", domain.ErrInference, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: image is %dx%d, limit is %d pixels", domain.ErrInference, cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %w", domain.ErrInference, err)
	}
	return img, format, nil
}

// EncodeJPEG encodes img at quality (1-100, out of range uses the default).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
