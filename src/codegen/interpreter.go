// Package codegen is the reference code generator. It binds each
// primitive instruction to its registered kernel and returns an artifact
// that runs the resulting program on the host.
package codegen

import (
	"fmt"

	"github.com/seuros/gopher-relay/src/errdefs"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/op"
	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

const opName = "codegen"

// Interpreter generates host artifacts for CPU-class targets.
type Interpreter struct {
	registry *op.Registry
}

// New creates an interpreter using reg, or the default registry when reg is nil.
func New(reg *op.Registry) *Interpreter {
	if reg == nil {
		reg = op.Default()
	}
	return &Interpreter{registry: reg}
}

// Build compiles funcs for t. The first function is the entry point.
func (i *Interpreter) Build(funcs []*lowered.PrimFunc, t target.Target) (lowered.Artifact, error) {
	if !t.Kind().IsCPU() {
		return nil, &errdefs.Error{
			Kind:    errdefs.KindCodegenFailure,
			Op:      opName,
			Operand: -1,
			Err:     errdefs.New(errdefs.KindUnsupportedTarget, t.String(), "no code generator for %s", t.Kind()),
		}
	}
	if len(funcs) == 0 {
		return nil, errdefs.New(errdefs.KindCodegenFailure, opName, "no functions to compile")
	}

	programs := make([]*program, len(funcs))
	for n, fn := range funcs {
		p, err := i.compile(fn, t)
		if err != nil {
			return nil, err
		}
		programs[n] = p
	}
	return &Artifact{entry: programs[0], target: t}, nil
}

func (i *Interpreter) compile(fn *lowered.PrimFunc, t target.Target) (*program, error) {
	kernels := make([]*op.Op, len(fn.Body))
	for n, in := range fn.Body {
		o, ok := i.registry.Get(in.Op)
		if !ok {
			return nil, errdefs.New(errdefs.KindCodegenFailure, fn.Name, "unknown operator %q", in.Op)
		}
		if !o.SupportsTarget(t.Kind()) {
			return nil, errdefs.New(errdefs.KindCodegenFailure, fn.Name,
				"missing intrinsic for %s on %s", in.Op, t.Kind())
		}
		if len(in.Args) != o.NumInputs {
			return nil, errdefs.New(errdefs.KindCodegenFailure, fn.Name,
				"%s takes %d arguments, instruction has %d", in.Op, o.NumInputs, len(in.Args))
		}
		for _, a := range in.Args {
			if err := checkOperand(fn, a, n); err != nil {
				return nil, err
			}
		}
		kernels[n] = o
	}
	for _, r := range fn.Results {
		if err := checkOperand(fn, r, len(fn.Body)); err != nil {
			return nil, err
		}
	}
	return &program{fn: fn, kernels: kernels}, nil
}

// checkOperand ensures a reads only parameters, constants, or temps
// defined before position pos.
func checkOperand(fn *lowered.PrimFunc, a lowered.Operand, pos int) error {
	switch a.Kind {
	case lowered.OperandParam:
		if a.Index < 0 || a.Index >= len(fn.Params) {
			return errdefs.New(errdefs.KindCodegenFailure, fn.Name, "parameter p%d out of range", a.Index)
		}
	case lowered.OperandTemp:
		if a.Index < 0 || a.Index >= pos {
			return errdefs.New(errdefs.KindCodegenFailure, fn.Name, "temp t%d used before definition", a.Index)
		}
	case lowered.OperandConst:
		if a.Const == nil {
			return errdefs.New(errdefs.KindCodegenFailure, fn.Name, "nil constant")
		}
	default:
		return errdefs.New(errdefs.KindCodegenFailure, fn.Name, "unknown operand kind %d", a.Kind)
	}
	return nil
}

type program struct {
	fn      *lowered.PrimFunc
	kernels []*op.Op
}

// Artifact is a compiled entry function. It is safe for concurrent use.
type Artifact struct {
	entry  *program
	target target.Target
}

// Name returns the entry function name.
func (a *Artifact) Name() string { return a.entry.fn.Name }

// Target returns the target the artifact was built for.
func (a *Artifact) Target() target.Target { return a.target }

// Invoke checks every argument against the entry signature and then runs
// the program. Nothing is computed if any argument is rejected.
func (a *Artifact) Invoke(args ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	fn := a.entry.fn
	if len(args) != len(fn.Params) {
		return nil, errdefs.Boundary(errdefs.KindRankMismatch, fn.Name, len(args),
			"expected %d arguments, got %d", len(fn.Params), len(args))
	}
	for n, p := range fn.Params {
		if err := p.Constraint().Check(fn.Name, n, args[n]); err != nil {
			return nil, err
		}
	}

	temps := make([]*tensor.Tensor, len(fn.Body))
	resolve := func(o lowered.Operand) *tensor.Tensor {
		switch o.Kind {
		case lowered.OperandParam:
			return args[o.Index]
		case lowered.OperandTemp:
			return temps[o.Index]
		default:
			return o.Const
		}
	}

	for n, in := range fn.Body {
		ins := make([]*tensor.Tensor, len(in.Args))
		for j, arg := range in.Args {
			ins[j] = resolve(arg)
		}
		out := tensor.New(in.Out.DType, in.Out.Shape...)
		if err := a.entry.kernels[n].Call(ins, out); err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name, err)
		}
		temps[n] = out
	}

	results := make([]*tensor.Tensor, len(fn.Results))
	for n, r := range fn.Results {
		results[n] = clone(resolve(r))
	}
	return results, nil
}

func clone(t *tensor.Tensor) *tensor.Tensor {
	return &tensor.Tensor{
		DType: t.DType,
		Shape: append([]int64(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}
