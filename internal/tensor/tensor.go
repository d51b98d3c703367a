// Package tensor provides the typed tensor value exchanged with the inference engine.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
)

// ElementType is the element type of a tensor's data.
type ElementType string

// Float32 is the only element type the pipeline produces or consumes.
const Float32 ElementType = "float32"

// Tensor is a named, shaped float32 array in row-major order.
// len(Data) always equals the product of Shape.
type Tensor struct {
	Name        string
	ElementType ElementType
	Data        []float32
	Shape       []int64
}

// New creates a float32 tensor, validating that data matches shape.
func New(name string, data []float32, shape ...int64) (*Tensor, error) {
	n, err := Elements(shape)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != n {
		return nil, apperr.NewInvalidDimensions("tensor %q has %d elements, shape %v needs %d",
			name, len(data), shape, n)
	}
	return &Tensor{
		Name:        name,
		ElementType: Float32,
		Data:        data,
		Shape:       append([]int64(nil), shape...),
	}, nil
}

// Elements returns the product of shape. Every dimension must be positive.
func Elements(shape []int64) (int64, error) {
	if len(shape) == 0 {
		return 0, apperr.NewInvalidDimensions("empty shape")
	}
	n := int64(1)
	for i, d := range shape {
		if d <= 0 {
			return 0, apperr.NewInvalidDimensions("dimension %d of shape %v is not positive", i, shape)
		}
		n *= d
	}
	return n, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Validate checks the element type and the length invariant.
func (t *Tensor) Validate() error {
	if t == nil {
		return apperr.NewInvalidDimensions("nil tensor")
	}
	if t.ElementType != Float32 {
		return apperr.NewInvalidDimensions("tensor %q has element type %q, want %q", t.Name, t.ElementType, Float32)
	}
	n, err := Elements(t.Shape)
	if err != nil {
		return err
	}
	if int64(len(t.Data)) != n {
		return apperr.NewInvalidDimensions("tensor %q has %d elements, shape %v needs %d",
			t.Name, len(t.Data), t.Shape, n)
	}
	return nil
}

// Rename returns a shallow copy of t carrying a different name.
func (t *Tensor) Rename(name string) *Tensor {
	c := *t
	c.Name = name
	return &c
}

// Stats summarizes a tensor for debug logging.
type Stats struct {
	Shape []int64
	Min   float32
	Max   float32
	Mean  float64
}

// Stats computes min, max and mean over the data. NaN values are skipped.
func (t *Tensor) Stats() Stats {
	s := Stats{Shape: t.Shape}
	if len(t.Data) == 0 {
		return s
	}
	s.Min = float32(math.Inf(1))
	s.Max = float32(math.Inf(-1))
	var sum float64
	var count int
	for _, v := range t.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += float64(v)
		count++
	}
	if count > 0 {
		s.Mean = sum / float64(count)
	}
	return s
}

func (s Stats) String() string {
	dims := make([]string, len(s.Shape))
	for i, d := range s.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("shape=[%s] range=[%.4f, %.4f] mean=%.4f", strings.Join(dims, ","), s.Min, s.Max, s.Mean)
}
