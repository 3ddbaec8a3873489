package tensor

import (
	"github.com/seuros/gopher-relay/src/errdefs"
)

// Constraint is the contract a single operand must satisfy at a call
// boundary. A nil Shape accepts any shape of the required rank.
type Constraint struct {
	Rank  int
	Shape []int64
	DType DType
}

// Fixed builds a constraint with a fully known shape.
func Fixed(dtype DType, shape ...int64) Constraint {
	return Constraint{Rank: len(shape), Shape: shape, DType: dtype}
}

// Check validates t against c. Rank is checked first, then each
// dimension, then the element type, so the reported kind names the first
// violated constraint.
func (c Constraint) Check(op string, operand int, t *Tensor) error {
	if t == nil {
		return errdefs.Boundary(errdefs.KindRankMismatch, op, operand, "missing tensor")
	}
	if t.Rank() != c.Rank {
		return errdefs.Boundary(errdefs.KindRankMismatch, op, operand,
			"expected rank %d, got %d", c.Rank, t.Rank())
	}
	if c.Shape != nil {
		for i, want := range c.Shape {
			if t.Shape[i] != want {
				return errdefs.Boundary(errdefs.KindShapeMismatch, op, operand,
					"dimension %d: expected %d, got %d (shape %s)", i, want, t.Shape[i], FormatShape(t.Shape))
			}
		}
	}
	if t.DType != c.DType {
		return errdefs.Boundary(errdefs.KindDTypeMismatch, op, operand,
			"expected %s, got %s", c.DType, t.DType)
	}
	if int64(len(t.Data)) != t.Size() {
		return errdefs.Boundary(errdefs.KindShapeMismatch, op, operand,
			"buffer holds %d elements, shape %s needs %d", len(t.Data), FormatShape(t.Shape), t.Size())
	}
	return nil
}

// CheckAll validates ins against cs positionally. The argument count must match.
func CheckAll(op string, cs []Constraint, ins []*Tensor) error {
	if len(ins) != len(cs) {
		return errdefs.Boundary(errdefs.KindRankMismatch, op, len(ins),
			"expected %d operands, got %d", len(cs), len(ins))
	}
	for i, c := range cs {
		if err := c.Check(op, i, ins[i]); err != nil {
			return err
		}
	}
	return nil
}
