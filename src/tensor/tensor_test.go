package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/gopher-relay/src/errdefs"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		in   string
		want DType
		ok   bool
	}{
		{"float32", Float32, true},
		{"float64", Float64, true},
		{"int32", Int32, true},
		{"uint8", UInt8, true},
		{"bool", Boolean, true},
		{"float", DType{}, false},
		{"int7", DType{}, false},
		{"complex64", DType{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDType(tt.in)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestFromValuesRoundsToDType(t *testing.T) {
	ti, err := FromValues(Int32, []int64{2}, []float64{1.7, -2.2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, ti.Data)

	_, err = FromValues(Float32, []int64{2, 2}, []float64{1, 2, 3})
	require.Error(t, err)
}

func TestTensorEqual(t *testing.T) {
	a, _ := FromValues(Float32, []int64{2}, []float64{1, 2})
	b, _ := FromValues(Float32, []int64{2}, []float64{1, 2})
	c, _ := FromValues(Float64, []int64{2}, []float64{1, 2})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, "float32[2]{1, 2}", a.String())
}

func TestConstraintCheckOrder(t *testing.T) {
	c := Fixed(Float32, 3, 3)

	require.NoError(t, c.Check("conv", 0, New(Float32, 3, 3)))

	err := c.Check("conv", 1, New(Float32, 9))
	require.True(t, errors.Is(err, errdefs.ErrRankMismatch), "got %v", err)

	err = c.Check("conv", 0, New(Float32, 2, 2))
	require.True(t, errors.Is(err, errdefs.ErrShapeMismatch), "got %v", err)
	var e *errdefs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 0, e.Operand)
	assert.Contains(t, err.Error(), "dimension 0")

	err = c.Check("conv", 1, New(Int32, 3, 3))
	require.True(t, errors.Is(err, errdefs.ErrDTypeMismatch), "got %v", err)
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 1, e.Operand)
}

func TestConstraintRejectsShortBuffer(t *testing.T) {
	bad := &Tensor{DType: Float32, Shape: []int64{3, 3}, Data: make([]float64, 4)}
	err := Fixed(Float32, 3, 3).Check("conv", 0, bad)
	assert.True(t, errors.Is(err, errdefs.ErrShapeMismatch))
}

func TestCheckAllArity(t *testing.T) {
	cs := []Constraint{Fixed(Float32, 1), Fixed(Float32, 1)}
	err := CheckAll("f", cs, []*Tensor{New(Float32, 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 operands")
}
