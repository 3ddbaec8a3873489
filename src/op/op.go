// Package op is the operator-registration boundary. Each operator declares
// a type relation used during lowering, an optional input/output contract
// enforced before its kernel runs, and the targets it has an intrinsic for.
package op

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seuros/gopher-relay/src/errdefs"
	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

// TypeRelation computes the result type of an application from the
// argument types, or explains why the arguments are unsupported.
type TypeRelation func(args []*ir.TensorType) (*ir.TensorType, error)

// Kernel computes out from ins. Contracts have already been checked.
type Kernel func(ins []*tensor.Tensor, out *tensor.Tensor) error

// Op describes a registered operator.
type Op struct {
	Name      string
	NumInputs int
	Rel       TypeRelation
	// Inputs and Output, when set, are checked on every Call.
	Inputs []tensor.Constraint
	Output *tensor.Constraint
	// Targets restricts code generation to these kinds; nil means any.
	Targets []target.Kind
	Kernel  Kernel
}

// SupportsTarget reports whether the op has an intrinsic for kind.
func (o *Op) SupportsTarget(kind target.Kind) bool {
	if o.Targets == nil {
		return true
	}
	for _, k := range o.Targets {
		if k == kind {
			return true
		}
	}
	return false
}

// Infer applies the type relation after checking arity.
func (o *Op) Infer(args []*ir.TensorType) (*ir.TensorType, error) {
	if len(args) != o.NumInputs {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", o.Name, o.NumInputs, len(args))
	}
	return o.Rel(args)
}

// Call validates ins and out against the declared contract and then runs
// the kernel. No element of out is written when validation fails.
func (o *Op) Call(ins []*tensor.Tensor, out *tensor.Tensor) error {
	if len(ins) != o.NumInputs {
		return errdefs.Boundary(errdefs.KindRankMismatch, o.Name, len(ins),
			"expected %d inputs, got %d", o.NumInputs, len(ins))
	}
	if o.Inputs != nil {
		if err := tensor.CheckAll(o.Name, o.Inputs, ins); err != nil {
			return err
		}
	}
	if o.Output != nil {
		if err := o.Output.Check(o.Name, len(ins), out); err != nil {
			return err
		}
	}
	return o.Kernel(ins, out)
}

// Registry maps operator names to definitions.
// Thread-safe with RWMutex.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Op
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Op)}
}

// Register adds o, failing if the name is taken or the definition is incomplete.
func (r *Registry) Register(o *Op) error {
	if o == nil || o.Name == "" || o.Rel == nil || o.Kernel == nil {
		return fmt.Errorf("op: incomplete operator definition")
	}
	if o.Inputs != nil && len(o.Inputs) != o.NumInputs {
		return fmt.Errorf("op: %s declares %d input constraints for %d inputs", o.Name, len(o.Inputs), o.NumInputs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[o.Name]; exists {
		return fmt.Errorf("op: %s already registered", o.Name)
	}
	r.ops[o.Name] = o
	return nil
}

// Get looks up an operator by name.
func (r *Registry) Get(name string) (*Op, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.ops[name]
	return o, ok
}

// Names lists registered operators in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = newBuiltinRegistry()

// Default returns the process-wide registry holding the builtin operators.
func Default() *Registry { return defaultRegistry }

// Register adds o to the default registry.
func Register(o *Op) error { return defaultRegistry.Register(o) }

// Get looks up name in the default registry.
func Get(name string) (*Op, bool) { return defaultRegistry.Get(name) }

// Names lists the operators of the default registry.
func Names() []string { return defaultRegistry.Names() }
