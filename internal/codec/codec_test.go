package codec

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

func TestEncodeConcreteExample(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255,
		0, 255, 0, 128,
	}

	tt, err := Encode(pix, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 1, 2}, tt.Shape)
	assert.Equal(t, tensor.Float32, tt.ElementType)
	assert.Equal(t, []float32{1, 0, 0, 1, 0, 0}, tt.Data)
	assert.NoError(t, tt.Validate())
}

func TestDecodeConcreteExample(t *testing.T) {
	tt := &tensor.Tensor{
		ElementType: tensor.Float32,
		Data:        []float32{1, 0, 0, 1, 0, 0},
		Shape:       []int64{1, 3, 1, 2},
	}

	pix, err := Decode(tt, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 255, 0, 255}, pix)
}

func TestEncodePlanarLayout(t *testing.T) {
	// 2x2 image, each pixel carries its index in R, index+10 in G, index+20 in B.
	pix := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		pix = append(pix, byte(i), byte(i+10), byte(i+20), 7)
	}

	tt, err := Encode(pix, 2, 2)
	require.NoError(t, err)
	require.Len(t, tt.Data, 12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, float64(i)/255, tt.Data[i], 1e-7)
		assert.InDelta(t, float64(i+10)/255, tt.Data[i+4], 1e-7)
		assert.InDelta(t, float64(i+20)/255, tt.Data[i+8], 1e-7)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const w, h = 17, 9
	pix := make([]byte, w*h*4)
	rng.Read(pix)

	tt, err := Encode(pix, w, h)
	require.NoError(t, err)
	out, err := Decode(tt, w, h)
	require.NoError(t, err)
	require.Len(t, out, len(pix))

	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			diff := int(out[i*4+c]) - int(pix[i*4+c])
			assert.LessOrEqualf(t, abs(diff), 1, "pixel %d channel %d", i, c)
		}
		assert.Equal(t, byte(255), out[i*4+3])
	}
}

func TestRoundTripAllByteValues(t *testing.T) {
	pix := make([]byte, 256*4)
	for v := 0; v < 256; v++ {
		pix[v*4], pix[v*4+1], pix[v*4+2], pix[v*4+3] = byte(v), byte(255-v), byte(v), 0
	}

	tt, err := Encode(pix, 256, 1)
	require.NoError(t, err)
	out, err := Decode(tt, 256, 1)
	require.NoError(t, err)

	for v := 0; v < 256; v++ {
		assert.Equal(t, byte(v), out[v*4])
		assert.Equal(t, byte(255-v), out[v*4+1])
		assert.Equal(t, byte(v), out[v*4+2])
		assert.Equal(t, byte(255), out[v*4+3])
	}
}

func TestShapeInvariant(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 5}, {256, 256}, {64, 1}} {
		w, h := dims[0], dims[1]
		tt, err := Encode(make([]byte, w*h*4), w, h)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, int64(h), int64(w)}, tt.Shape)
		assert.Len(t, tt.Data, 3*w*h)

		pix, err := Decode(tt, w, h)
		require.NoError(t, err)
		assert.Len(t, pix, w*h*4)
	}
}

func TestDecodeClamps(t *testing.T) {
	tt := &tensor.Tensor{
		ElementType: tensor.Float32,
		Data:        []float32{2.0, -1.0, 0.5},
		Shape:       []int64{1, 3, 1, 1},
	}

	pix, err := Decode(tt, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 128, 255}, pix)
}

func TestToByte(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want byte
	}{
		{"zero", 0, 0},
		{"one", 1, 255},
		{"above range", 2, 255},
		{"below range", -1, 0},
		{"half rounds away from zero", 0.5, 128},
		{"just below half", 0.49 / 255, 0},
		{"just above half", 0.51 / 255, 1},
		{"negative half", -0.5 / 255, 0},
		{"nan", float32(math.NaN()), 0},
		{"+inf", float32(math.Inf(1)), 255},
		{"-inf", float32(math.Inf(-1)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToByte(tt.in))
		})
	}
}

func TestEncodeRejectsLengthMismatch(t *testing.T) {
	for _, n := range []int{0, 7, 9, 16} {
		tt, err := Encode(make([]byte, n), 2, 1)
		assert.Nil(t, tt, "no partial output on failure")
		require.Error(t, err)
		assert.Truef(t, errors.Is(err, apperr.InvalidDimensions), "len %d", n)
	}
}

func TestEncodeRejectsNonPositiveDims(t *testing.T) {
	_, err := Encode(nil, 0, 0)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))
	_, err = Encode(make([]byte, 4), -1, -1)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))
}

func TestDecodeRejectsShortTensor(t *testing.T) {
	tt := &tensor.Tensor{ElementType: tensor.Float32, Data: make([]float32, 5), Shape: []int64{5}}
	_, err := Decode(tt, 2, 1)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))

	_, err = Decode(nil, 2, 1)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))

	_, err = Decode(tt, 0, 1)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))
}

func TestDecodeIgnoresTrailingData(t *testing.T) {
	tt := &tensor.Tensor{ElementType: tensor.Float32, Data: []float32{1, 1, 1, 0.25}, Shape: []int64{4}}
	pix, err := Decode(tt, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 255, 255, 255}, pix)
}

func TestPlanarImplementsMethods(t *testing.T) {
	var c Planar
	tt, err := c.Encode([]byte{10, 20, 30, 40}, 1, 1)
	require.NoError(t, err)
	pix, err := c.Decode(tt, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 255}, pix)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
