// Package lower is the reference lowering pipeline. It type-checks a
// source function against the operator registry and flattens it into a
// single fused primitive function.
package lower

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/seuros/gopher-relay/src/errdefs"
	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/op"
	"github.com/seuros/gopher-relay/src/target"
)

const opName = "lower"

// Pipeline lowers source functions. It is safe for concurrent use; the
// only shared state is the table of generated names.
type Pipeline struct {
	registry *op.Registry

	mu    sync.Mutex
	names map[string]int
}

// New creates a pipeline resolving operators in reg, or in the default
// registry when reg is nil.
func New(reg *op.Registry) *Pipeline {
	if reg == nil {
		reg = op.Default()
	}
	return &Pipeline{registry: reg, names: make(map[string]int)}
}

// Lower produces the CachedFunc for fn on t.
func (p *Pipeline) Lower(fn *ir.Function, t target.Target) (*lowered.CachedFunc, error) {
	if fn == nil {
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "nil function")
	}
	if t.IsZero() {
		return nil, errdefs.New(errdefs.KindUnsupportedTarget, opName, "empty target")
	}
	if len(fn.TypeParams) > 0 {
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName,
			"polymorphic function with %d type parameters cannot be scheduled", len(fn.TypeParams))
	}

	b := newBuilder(p.registry)
	inputs := make([]lowered.TensorDesc, len(fn.Params))
	for i, param := range fn.Params {
		tt, ok := param.Type.(*ir.TensorType)
		if !ok {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName,
				"parameter %%%s must have a tensor type, got %s", param.Name, describeType(param.Type))
		}
		inputs[i] = lowered.TensorDesc{Name: param.Name, Shape: tt.Shape, DType: tt.DType}
		b.env[param] = &value{operand: lowered.Operand{Kind: lowered.OperandParam, Index: i}, typ: tt}
	}

	result, err := b.expr(fn.Body)
	if err != nil {
		return nil, err
	}
	if fn.RetType != nil && !ir.TypeEqual(fn.RetType, result.irType()) {
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName,
			"declared return type %s does not match inferred %s", fn.RetType, result.irType())
	}

	var leaves []*value
	result.flatten(&leaves)
	outputs := make([]lowered.TensorDesc, len(leaves))
	results := make([]lowered.Operand, len(leaves))
	for i, leaf := range leaves {
		outputs[i] = lowered.TensorDesc{Name: "out" + strconv.Itoa(i), Shape: leaf.typ.Shape, DType: leaf.typ.DType}
		results[i] = leaf.operand
	}

	name := p.uniqueName(b.baseName())
	prim := &lowered.PrimFunc{Name: name, Params: inputs, Body: b.body, Results: results}
	return &lowered.CachedFunc{
		Target:   t,
		FuncName: name,
		Inputs:   inputs,
		Outputs:  outputs,
		Funcs:    []*lowered.PrimFunc{prim},
	}, nil
}

func (p *Pipeline) uniqueName(base string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, seen := p.names[base]
	p.names[base] = n + 1
	if !seen {
		return base
	}
	return base + "_" + strconv.Itoa(n)
}

// value is the lowered form of an expression: a single tensor operand or
// a tuple of values.
type value struct {
	operand lowered.Operand
	typ     *ir.TensorType
	fields  []*value
	tuple   bool
}

func (v *value) irType() ir.Type {
	if !v.tuple {
		return v.typ
	}
	fields := make([]ir.Type, len(v.fields))
	for i, f := range v.fields {
		fields[i] = f.irType()
	}
	return &ir.TupleType{Fields: fields}
}

func (v *value) flatten(out *[]*value) {
	if !v.tuple {
		*out = append(*out, v)
		return
	}
	for _, f := range v.fields {
		f.flatten(out)
	}
}

type builder struct {
	registry *op.Registry
	env      map[*ir.Var]*value
	body     []lowered.Instr
	numbered map[string]int
	ops      []string
}

func newBuilder(reg *op.Registry) *builder {
	return &builder{
		registry: reg,
		env:      make(map[*ir.Var]*value),
		numbered: make(map[string]int),
	}
}

func (b *builder) baseName() string {
	if len(b.ops) == 0 {
		return "fused_identity"
	}
	parts := make([]string, len(b.ops))
	for i, o := range b.ops {
		parts[i] = strings.ReplaceAll(o, ".", "_")
	}
	return "fused_" + strings.Join(parts, "_")
}

func (b *builder) expr(e ir.Expr) (*value, error) {
	switch n := e.(type) {
	case *ir.Var:
		v, ok := b.env[n]
		if !ok {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "free variable %%%s", n.Name)
		}
		return v, nil
	case *ir.Constant:
		if n.Value == nil {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "constant without a value")
		}
		return &value{
			operand: lowered.Operand{Kind: lowered.OperandConst, Const: n.Value},
			typ:     ir.NewTensorType(n.Value.DType, n.Value.Shape...),
		}, nil
	case *ir.Call:
		return b.call(n)
	case *ir.Let:
		v, err := b.expr(n.Value)
		if err != nil {
			return nil, err
		}
		if n.Var.Type != nil && !ir.TypeEqual(n.Var.Type, v.irType()) {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName,
				"%%%s annotated %s but bound to %s", n.Var.Name, n.Var.Type, v.irType())
		}
		b.env[n.Var] = v
		return b.expr(n.Body)
	case *ir.Tuple:
		out := &value{tuple: true, fields: make([]*value, len(n.Fields))}
		for i, f := range n.Fields {
			fv, err := b.expr(f)
			if err != nil {
				return nil, err
			}
			out.fields[i] = fv
		}
		return out, nil
	case *ir.TupleGetItem:
		tv, err := b.expr(n.Tuple)
		if err != nil {
			return nil, err
		}
		if !tv.tuple {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "projection .%d of a non-tuple", n.Index)
		}
		if n.Index < 0 || n.Index >= len(tv.fields) {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName,
				"tuple index %d out of range for %d fields", n.Index, len(tv.fields))
		}
		return tv.fields[n.Index], nil
	case *ir.If:
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "control flow cannot be fused")
	case *ir.Function:
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "nested functions cannot be fused")
	}
	return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "unsupported expression %T", e)
}

func (b *builder) call(n *ir.Call) (*value, error) {
	o, ok := b.registry.Get(n.Op)
	if !ok {
		return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "unsupported operator %q", n.Op)
	}

	args := make([]lowered.Operand, len(n.Args))
	types := make([]*ir.TensorType, len(n.Args))
	keys := make([]string, len(n.Args))
	for i, a := range n.Args {
		v, err := b.expr(a)
		if err != nil {
			return nil, err
		}
		if v.tuple {
			return nil, errdefs.New(errdefs.KindLoweringFailure, opName, "%s: argument %d is a tuple", n.Op, i)
		}
		args[i] = v.operand
		types[i] = v.typ
		keys[i] = operandKey(v.operand)
	}

	out, err := o.Infer(types)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindLoweringFailure, opName, err)
	}

	key := n.Op + "(" + strings.Join(keys, ",") + ")"
	if idx, ok := b.numbered[key]; ok {
		return &value{operand: lowered.Operand{Kind: lowered.OperandTemp, Index: idx}, typ: out}, nil
	}

	idx := len(b.body)
	b.body = append(b.body, lowered.Instr{
		Op:   n.Op,
		Args: args,
		Out:  lowered.TensorDesc{Name: "t" + strconv.Itoa(idx), Shape: out.Shape, DType: out.DType},
	})
	b.numbered[key] = idx
	b.ops = append(b.ops, n.Op)
	return &value{operand: lowered.Operand{Kind: lowered.OperandTemp, Index: idx}, typ: out}, nil
}

func operandKey(o lowered.Operand) string {
	switch o.Kind {
	case lowered.OperandParam:
		return "p" + strconv.Itoa(o.Index)
	case lowered.OperandTemp:
		return "t" + strconv.Itoa(o.Index)
	default:
		return "c" + o.Const.String()
	}
}

func describeType(t ir.Type) string {
	if t == nil {
		return "no annotation"
	}
	return fmt.Sprint(t)
}
