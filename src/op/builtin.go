package op

import (
	"fmt"
	"math"

	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

// Conv3x3 is the name of the lnsconv extern operator.
const Conv3x3 = "lnsconv.conv3x3"

func newBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, o := range builtins() {
		if err := r.Register(o); err != nil {
			panic(err)
		}
	}
	return r
}

func builtins() []*Op {
	return []*Op{
		binary("add", func(a, b float64) (float64, error) { return a + b, nil }),
		binary("subtract", func(a, b float64) (float64, error) { return a - b, nil }),
		binary("multiply", func(a, b float64) (float64, error) { return a * b, nil }),
		binary("maximum", func(a, b float64) (float64, error) { return math.Max(a, b), nil }),
		divide(),
		unary("negative", func(a float64) float64 { return -a }),
		unary("relu", func(a float64) float64 { return math.Max(a, 0) }),
		sum(),
		conv3x3(),
	}
}

// broadcastRel accepts two operands of identical type, or a rank-0
// operand of the same dtype paired with any tensor.
func broadcastRel(name string) TypeRelation {
	return func(args []*ir.TensorType) (*ir.TensorType, error) {
		a, b := args[0], args[1]
		if a.DType != b.DType {
			return nil, fmt.Errorf("%s: dtype mismatch %s vs %s", name, a.DType, b.DType)
		}
		switch {
		case tensor.ShapeEqual(a.Shape, b.Shape):
			return ir.NewTensorType(a.DType, a.Shape...), nil
		case len(b.Shape) == 0:
			return ir.NewTensorType(a.DType, a.Shape...), nil
		case len(a.Shape) == 0:
			return ir.NewTensorType(b.DType, b.Shape...), nil
		}
		return nil, fmt.Errorf("%s: incompatible shapes %s and %s", name,
			tensor.FormatShape(a.Shape), tensor.FormatShape(b.Shape))
	}
}

func elem(t *tensor.Tensor, i int) float64 {
	if len(t.Data) == 1 {
		return t.Data[0]
	}
	return t.Data[i]
}

func binary(name string, f func(a, b float64) (float64, error)) *Op {
	return &Op{
		Name:      name,
		NumInputs: 2,
		Rel:       broadcastRel(name),
		Kernel: func(ins []*tensor.Tensor, out *tensor.Tensor) error {
			for i := range out.Data {
				v, err := f(elem(ins[0], i), elem(ins[1], i))
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				out.Data[i] = tensor.Round(out.DType, v)
			}
			return nil
		},
	}
}

func divide() *Op {
	o := binary("divide", nil)
	o.Kernel = func(ins []*tensor.Tensor, out *tensor.Tensor) error {
		for i := range out.Data {
			b := elem(ins[1], i)
			if b == 0 && !out.DType.IsFloat() {
				return fmt.Errorf("divide: integer division by zero at element %d", i)
			}
			out.Data[i] = tensor.Round(out.DType, elem(ins[0], i)/b)
		}
		return nil
	}
	return o
}

func unary(name string, f func(a float64) float64) *Op {
	return &Op{
		Name:      name,
		NumInputs: 1,
		Rel: func(args []*ir.TensorType) (*ir.TensorType, error) {
			return ir.NewTensorType(args[0].DType, args[0].Shape...), nil
		},
		Kernel: func(ins []*tensor.Tensor, out *tensor.Tensor) error {
			for i := range out.Data {
				out.Data[i] = tensor.Round(out.DType, f(ins[0].Data[i]))
			}
			return nil
		},
	}
}

func sum() *Op {
	return &Op{
		Name:      "sum",
		NumInputs: 1,
		Rel: func(args []*ir.TensorType) (*ir.TensorType, error) {
			return ir.NewTensorType(args[0].DType, 1), nil
		},
		Kernel: func(ins []*tensor.Tensor, out *tensor.Tensor) error {
			var acc float64
			for _, v := range ins[0].Data {
				acc += v
			}
			out.Data[0] = tensor.Round(out.DType, acc)
			return nil
		},
	}
}

// conv3x3 is the lnsconv extern: two 3x3 float32 operands reduced to a
// single float32 by an elementwise product sum. Only host targets carry
// the intrinsic.
func conv3x3() *Op {
	in := tensor.Fixed(tensor.Float32, 3, 3)
	out := tensor.Fixed(tensor.Float32, 1)
	return &Op{
		Name:      Conv3x3,
		NumInputs: 2,
		Rel: func(args []*ir.TensorType) (*ir.TensorType, error) {
			for i, a := range args {
				if a.DType != tensor.Float32 || !tensor.ShapeEqual(a.Shape, in.Shape) {
					return nil, fmt.Errorf("%s: argument %d must be Tensor[(3, 3), float32], got %s", Conv3x3, i, a)
				}
			}
			return ir.NewTensorType(tensor.Float32, 1), nil
		},
		Inputs:  []tensor.Constraint{in, in},
		Output:  &out,
		Targets: []target.Kind{target.LLVM, target.C, target.StackVM},
		Kernel: func(ins []*tensor.Tensor, z *tensor.Tensor) error {
			var acc float64
			for i := range ins[0].Data {
				acc += ins[0].Data[i] * ins[1].Data[i]
			}
			z.Data[0] = tensor.Round(tensor.Float32, acc)
			return nil
		},
	}
}
