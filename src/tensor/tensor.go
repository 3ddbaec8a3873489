// Package tensor provides the dense tensor values passed across compiled
// artifact boundaries and the constraint checks applied to them.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor is a dense, row-major n-dimensional array. Element values are held
// widened to float64 regardless of DType; DType governs validation and
// rounding on store.
type Tensor struct {
	DType DType
	Shape []int64
	Data  []float64
}

// New allocates a zero-filled tensor.
func New(dtype DType, shape ...int64) *Tensor {
	return &Tensor{DType: dtype, Shape: append([]int64(nil), shape...), Data: make([]float64, NumElements(shape))}
}

// FromValues builds a tensor from values, which must match the shape's size.
func FromValues(dtype DType, shape []int64, values []float64) (*Tensor, error) {
	if n := NumElements(shape); int64(len(values)) != n {
		return nil, fmt.Errorf("tensor: %d values for shape %v (want %d)", len(values), shape, n)
	}
	t := &Tensor{DType: dtype, Shape: append([]int64(nil), shape...), Data: make([]float64, len(values))}
	for i, v := range values {
		t.Data[i] = Round(dtype, v)
	}
	return t, nil
}

// Scalar creates a rank-0 tensor.
func Scalar(dtype DType, v float64) *Tensor {
	return &Tensor{DType: dtype, Data: []float64{Round(dtype, v)}}
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int { return len(t.Shape) }

// Size returns the number of elements
func (t *Tensor) Size() int64 { return NumElements(t.Shape) }

// Equal reports whether both tensors have the same dtype, shape and
// bitwise-identical elements.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.DType != o.DType || !ShapeEqual(t.Shape, o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Data {
		if math.Float64bits(t.Data[i]) != math.Float64bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// String renders the tensor compactly, e.g. "float32[2, 2]{1, 2, 3, 4}".
func (t *Tensor) String() string {
	var b strings.Builder
	b.WriteString(t.DType.String())
	b.WriteString(FormatShape(t.Shape))
	b.WriteByte('{')
	for i, v := range t.Data {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte('}')
	return b.String()
}

// NumElements returns the product of the dimensions; 1 for a scalar.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// ShapeEqual compares two shapes dimension by dimension.
func ShapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatShape renders a shape as "[d0, d1]".
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Round converts v to the precision of dtype.
func Round(dtype DType, v float64) float64 {
	switch dtype.Code {
	case Float:
		if dtype.Bits == 32 {
			return float64(float32(v))
		}
		return v
	case Int, UInt:
		return math.Trunc(v)
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return v
	}
}
