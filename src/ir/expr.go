package ir

import (
	"strconv"

	"github.com/seuros/gopher-relay/src/tensor"
)

// Var is a variable. Identity is by pointer; Name is only a hint and
// plays no part in equality or hashing.
type Var struct {
	Name string
	Type Type
}

// NewVar creates a variable with an optional type annotation.
func NewVar(name string, typ Type) *Var {
	return &Var{Name: name, Type: typ}
}

func (*Var) exprNode() {}

// Accept satisfies the Node interface.
func (n *Var) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitVar(*Var) error }); ok {
		return vv.VisitVar(n)
	}
	return nil
}

// Constant is a literal tensor value.
type Constant struct {
	Value *tensor.Tensor
}

func (*Constant) exprNode() {}

// Accept satisfies the Node interface.
func (n *Constant) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitConstant(*Constant) error }); ok {
		return vv.VisitConstant(n)
	}
	return nil
}

// Call applies a registered operator to arguments.
type Call struct {
	Op   string
	Args []Expr
}

func (*Call) exprNode() {}

// Accept satisfies the Node interface.
func (n *Call) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitCall(*Call) error }); ok {
		return vv.VisitCall(n)
	}
	return nil
}

// Let binds Var to Value within Body.
type Let struct {
	Var   *Var
	Value Expr
	Body  Expr
}

func (*Let) exprNode() {}

// Accept satisfies the Node interface.
func (n *Let) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitLet(*Let) error }); ok {
		return vv.VisitLet(n)
	}
	return nil
}

// If selects one of two branches.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*If) exprNode() {}

// Accept satisfies the Node interface.
func (n *If) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitIf(*If) error }); ok {
		return vv.VisitIf(n)
	}
	return nil
}

// Tuple groups several values.
type Tuple struct {
	Fields []Expr
}

func (*Tuple) exprNode() {}

// Accept satisfies the Node interface.
func (n *Tuple) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitTuple(*Tuple) error }); ok {
		return vv.VisitTuple(n)
	}
	return nil
}

// TupleGetItem projects one field out of a tuple.
type TupleGetItem struct {
	Tuple Expr
	Index int
}

func (*TupleGetItem) exprNode() {}

// Accept satisfies the Node interface.
func (n *TupleGetItem) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitTupleGetItem(*TupleGetItem) error }); ok {
		return vv.VisitTupleGetItem(n)
	}
	return nil
}

// Function is a (possibly polymorphic) function. Params and TypeParams are
// binding sites; RetType may be nil when not annotated.
type Function struct {
	TypeParams []*TypeVar
	Params     []*Var
	RetType    Type
	Body       Expr
}

func (*Function) exprNode() {}

// Accept satisfies the Node interface.
func (n *Function) Accept(v Visitor) error {
	if vv, ok := v.(interface{ VisitFunction(*Function) error }); ok {
		return vv.VisitFunction(n)
	}
	return nil
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
