// Package lowered holds the values exchanged between the compile engine and
// its collaborators: the lowering result and the compiled artifact.
package lowered

import (
	"fmt"
	"strings"

	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

// TensorDesc describes one tensor crossing a function boundary.
type TensorDesc struct {
	Name  string
	Shape []int64
	DType tensor.DType
}

// Constraint returns the boundary contract a runtime argument must meet.
func (d TensorDesc) Constraint() tensor.Constraint {
	return tensor.Fixed(d.DType, d.Shape...)
}

func (d TensorDesc) String() string {
	return d.Name + ": " + d.DType.String() + tensor.FormatShape(d.Shape)
}

// OperandKind says where an instruction argument comes from.
type OperandKind uint8

const (
	// OperandParam refers to a function parameter by position.
	OperandParam OperandKind = iota
	// OperandTemp refers to the result of an earlier instruction.
	OperandTemp
	// OperandConst is an inline constant.
	OperandConst
)

// Operand is an instruction argument or a function result.
type Operand struct {
	Kind  OperandKind
	Index int
	Const *tensor.Tensor
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandParam:
		return fmt.Sprintf("p%d", o.Index)
	case OperandTemp:
		return fmt.Sprintf("t%d", o.Index)
	default:
		return o.Const.String()
	}
}

// Instr applies Op to Args; its result is temp number equal to its
// position in PrimFunc.Body.
type Instr struct {
	Op   string
	Args []Operand
	Out  TensorDesc
}

// PrimFunc is a straight-line primitive function in SSA form.
type PrimFunc struct {
	Name    string
	Params  []TensorDesc
	Body    []Instr
	Results []Operand
}

// String renders a listing of the function.
func (f *PrimFunc) String() string {
	var b strings.Builder
	b.WriteString("primfn ")
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "p%d %s", i, p)
	}
	b.WriteString(") {\n")
	for i, in := range f.Body {
		args := make([]string, len(in.Args))
		for j, a := range in.Args {
			args[j] = a.String()
		}
		fmt.Fprintf(&b, "  t%d = %s(%s) : %s%s\n", i, in.Op, strings.Join(args, ", "),
			in.Out.DType, tensor.FormatShape(in.Out.Shape))
	}
	results := make([]string, len(f.Results))
	for i, r := range f.Results {
		results[i] = r.String()
	}
	fmt.Fprintf(&b, "  return %s\n}", strings.Join(results, ", "))
	return b.String()
}

// CachedFunc is the result of lowering one source function for one target.
// It is immutable once returned by a Lowerer.
type CachedFunc struct {
	Target   target.Target
	FuncName string
	Inputs   []TensorDesc
	Outputs  []TensorDesc
	Funcs    []*PrimFunc
}

// VisitFields reports every field of the CachedFunc to v in declaration order.
func (c *CachedFunc) VisitFields(v FieldVisitor) {
	v.VisitField("target", c.Target.String())
	v.VisitField("func_name", c.FuncName)
	v.VisitField("inputs", c.Inputs)
	v.VisitField("outputs", c.Outputs)
	names := make([]string, len(c.Funcs))
	for i, f := range c.Funcs {
		names[i] = f.Name
	}
	v.VisitField("funcs", names)
}

// Artifact is a compiled, directly invocable function.
type Artifact interface {
	Invoke(args ...*tensor.Tensor) ([]*tensor.Tensor, error)
}

// FieldVisitor receives named fields from VisitFields.
type FieldVisitor interface {
	VisitField(name string, value interface{})
}

// FieldVisitorFunc adapts a function to FieldVisitor.
type FieldVisitorFunc func(name string, value interface{})

// VisitField calls f.
func (f FieldVisitorFunc) VisitField(name string, value interface{}) { f(name, value) }
