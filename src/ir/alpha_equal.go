package ir

// AlphaEqual reports whether a and b are structurally identical up to a
// consistent renaming of bound variables and type parameters.
//
// Binding sites (function params, let vars, function type params) are
// paired in traversal order and the pairing must be one-to-one. Variables
// that are free in both expressions are equal only when they are the same
// variable.
func AlphaEqual(a, b Expr) bool {
	eq := newAlphaEqual()
	return eq.expr(a, b)
}

// TypeEqual is AlphaEqual for types; free type parameters compare by identity.
func TypeEqual(a, b Type) bool {
	eq := newAlphaEqual()
	return eq.typ(a, b)
}

type alphaEqual struct {
	vars     map[*Var]*Var
	varsRev  map[*Var]*Var
	tvars    map[*TypeVar]*TypeVar
	tvarsRev map[*TypeVar]*TypeVar
}

func newAlphaEqual() *alphaEqual {
	return &alphaEqual{
		vars:     make(map[*Var]*Var),
		varsRev:  make(map[*Var]*Var),
		tvars:    make(map[*TypeVar]*TypeVar),
		tvarsRev: make(map[*TypeVar]*TypeVar),
	}
}

// bindVar pairs two binding sites. The annotations must agree first.
func (e *alphaEqual) bindVar(a, b *Var) bool {
	if !e.typ(a.Type, b.Type) {
		return false
	}
	if _, ok := e.vars[a]; ok {
		return e.vars[a] == b
	}
	if _, ok := e.varsRev[b]; ok {
		return false
	}
	e.vars[a] = b
	e.varsRev[b] = a
	return true
}

func (e *alphaEqual) bindTypeVar(a, b *TypeVar) bool {
	if m, ok := e.tvars[a]; ok {
		return m == b
	}
	if _, ok := e.tvarsRev[b]; ok {
		return false
	}
	e.tvars[a] = b
	e.tvarsRev[b] = a
	return true
}

func (e *alphaEqual) expr(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Var:
		y, ok := b.(*Var)
		if !ok {
			return false
		}
		if m, bound := e.vars[x]; bound {
			return m == y
		}
		// x is free on the left; it matches only itself, and only if
		// the right side does not treat it as bound.
		_, boundRight := e.varsRev[y]
		return x == y && !boundRight

	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.Value.Equal(y.Value)

	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Op != y.Op || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !e.expr(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true

	case *Let:
		y, ok := b.(*Let)
		if !ok {
			return false
		}
		// The bound var is not in scope in its own value.
		if !e.expr(x.Value, y.Value) {
			return false
		}
		if !e.bindVar(x.Var, y.Var) {
			return false
		}
		return e.expr(x.Body, y.Body)

	case *If:
		y, ok := b.(*If)
		return ok && e.expr(x.Cond, y.Cond) && e.expr(x.Then, y.Then) && e.expr(x.Else, y.Else)

	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !e.expr(x.Fields[i], y.Fields[i]) {
				return false
			}
		}
		return true

	case *TupleGetItem:
		y, ok := b.(*TupleGetItem)
		return ok && x.Index == y.Index && e.expr(x.Tuple, y.Tuple)

	case *Function:
		y, ok := b.(*Function)
		if !ok || len(x.Params) != len(y.Params) || len(x.TypeParams) != len(y.TypeParams) {
			return false
		}
		for i := range x.TypeParams {
			if !e.bindTypeVar(x.TypeParams[i], y.TypeParams[i]) {
				return false
			}
		}
		for i := range x.Params {
			if !e.bindVar(x.Params[i], y.Params[i]) {
				return false
			}
		}
		if !e.typ(x.RetType, y.RetType) {
			return false
		}
		return e.expr(x.Body, y.Body)

	default:
		return false
	}
}

func (e *alphaEqual) typ(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *TensorType:
		y, ok := b.(*TensorType)
		if !ok || x.DType != y.DType || len(x.Shape) != len(y.Shape) {
			return false
		}
		for i := range x.Shape {
			if x.Shape[i] != y.Shape[i] {
				return false
			}
		}
		return true

	case *TypeVar:
		y, ok := b.(*TypeVar)
		if !ok {
			return false
		}
		if m, bound := e.tvars[x]; bound {
			return m == y
		}
		_, boundRight := e.tvarsRev[y]
		return x == y && !boundRight

	case *TupleType:
		y, ok := b.(*TupleType)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !e.typ(x.Fields[i], y.Fields[i]) {
				return false
			}
		}
		return true

	default:
		return false
	}
}
