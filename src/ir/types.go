package ir

import (
	"strings"

	"github.com/seuros/gopher-relay/src/tensor"
)

// Type is the static type of an expression.
type Type interface {
	String() string
	typeNode()
}

// TensorType is a tensor of statically known shape and element type.
type TensorType struct {
	Shape []int64
	DType tensor.DType
}

// NewTensorType copies shape into a new TensorType.
func NewTensorType(dtype tensor.DType, shape ...int64) *TensorType {
	return &TensorType{Shape: append([]int64(nil), shape...), DType: dtype}
}

func (*TensorType) typeNode() {}

func (t *TensorType) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = formatInt(d)
	}
	return "Tensor[(" + strings.Join(dims, ", ") + "), " + t.DType.String() + "]"
}

// TypeVar is a type parameter. Identity is by pointer; Name is only a hint.
type TypeVar struct {
	Name string
}

func (*TypeVar) typeNode() {}

func (t *TypeVar) String() string { return t.Name }

// TupleType groups several types.
type TupleType struct {
	Fields []Type
}

func (*TupleType) typeNode() {}

func (t *TupleType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = typeString(f)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func typeString(t Type) string {
	if t == nil {
		return "?"
	}
	return t.String()
}
