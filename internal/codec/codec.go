// Package codec converts between interleaved RGBA bitmaps and planar
// [1,3,H,W] float32 tensors.
//
// Encoding drops alpha and divides each channel by 255. Decoding multiplies by
// 255, rounds half away from zero (math.Round), saturates to [0,255] and forces
// alpha to 255. NaN decodes to 0.
package codec

import (
	"math"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

const (
	// Channels is the number of colour planes in an encoded tensor.
	Channels = 3
	// BytesPerPixel is the stride of an RGBA bitmap.
	BytesPerPixel = 4
)

// Planar implements the codec as methods so callers can depend on an interface.
type Planar struct{}

// Encode calls the package-level Encode.
func (Planar) Encode(pix []byte, width, height int) (*tensor.Tensor, error) {
	return Encode(pix, width, height)
}

// Decode calls the package-level Decode.
func (Planar) Decode(t *tensor.Tensor, width, height int) ([]byte, error) {
	return Decode(t, width, height)
}

// Encode converts an RGBA bitmap of width*height pixels into a planar tensor of
// shape [1,3,height,width] with values in [0,1].
func Encode(pix []byte, width, height int) (*tensor.Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, apperr.NewInvalidDimensions("width and height must be positive, got %dx%d", width, height)
	}
	plane := width * height
	if len(pix) != plane*BytesPerPixel {
		return nil, apperr.NewInvalidDimensions("bitmap has %d bytes, %dx%d RGBA needs %d",
			len(pix), width, height, plane*BytesPerPixel)
	}

	data := make([]float32, Channels*plane)
	r, g, b := data[:plane], data[plane:2*plane], data[2*plane:]
	for i := 0; i < plane; i++ {
		px := pix[i*BytesPerPixel : i*BytesPerPixel+3 : i*BytesPerPixel+3]
		r[i] = float32(float64(px[0]) / 255.0)
		g[i] = float32(float64(px[1]) / 255.0)
		b[i] = float32(float64(px[2]) / 255.0)
	}

	return &tensor.Tensor{
		ElementType: tensor.Float32,
		Data:        data,
		Shape:       []int64{1, Channels, int64(height), int64(width)},
	}, nil
}

// Decode converts the first three planes of t into an opaque RGBA bitmap of
// width*height pixels. Extra trailing data is ignored.
func Decode(t *tensor.Tensor, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, apperr.NewInvalidDimensions("width and height must be positive, got %dx%d", width, height)
	}
	if t == nil {
		return nil, apperr.NewInvalidDimensions("nil tensor")
	}
	plane := width * height
	if len(t.Data) < Channels*plane {
		return nil, apperr.NewInvalidDimensions("tensor has %d elements, %dx%d RGB needs at least %d",
			len(t.Data), width, height, Channels*plane)
	}

	r, g, b := t.Data[:plane], t.Data[plane:2*plane], t.Data[2*plane:3*plane]
	pix := make([]byte, plane*BytesPerPixel)
	for i := 0; i < plane; i++ {
		px := pix[i*BytesPerPixel : i*BytesPerPixel+4 : i*BytesPerPixel+4]
		px[0] = ToByte(r[i])
		px[1] = ToByte(g[i])
		px[2] = ToByte(b[i])
		px[3] = 255
	}
	return pix, nil
}

// ToByte denormalizes a single channel value.
func ToByte(v float32) byte {
	f := math.Round(float64(v) * 255)
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return byte(f)
}
