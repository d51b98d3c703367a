// Package bitmap loads source images into fixed-size RGBA pixel buffers and
// encodes result buffers back into PNG.
package bitmap

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
)

// Bitmap is a row-major, non-premultiplied RGBA buffer.
// len(Pix) == Width*Height*4.
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

// New wraps pix after checking its length against width and height.
func New(pix []byte, width, height int) (*Bitmap, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height*4 {
		return nil, apperr.NewInvalidDimensions("bitmap has %d bytes, %dx%d RGBA needs %d",
			len(pix), width, height, width*height*4)
	}
	return &Bitmap{Width: width, Height: height, Pix: pix}, nil
}

// Image returns an image.NRGBA sharing b's pixels.
func (b *Bitmap) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// EncodePNG encodes b as a PNG image.
func EncodePNG(b *Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
