// Package target describes compilation backends.
package target

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seuros/gopher-relay/src/errdefs"
)

// Kind names a family of backends
type Kind string

const (
	LLVM    Kind = "llvm"
	C       Kind = "c"
	StackVM Kind = "stackvm"
	CUDA    Kind = "cuda"
	OpenCL  Kind = "opencl"
	Vulkan  Kind = "vulkan"
	Metal   Kind = "metal"
)

var knownKinds = map[Kind]bool{
	LLVM: true, C: true, StackVM: true, CUDA: true, OpenCL: true, Vulkan: true, Metal: true,
}

// IsCPU reports whether the kind generates host code.
func (k Kind) IsCPU() bool {
	return k == LLVM || k == C || k == StackVM
}

// Target is an immutable backend descriptor. Two targets are the same
// backend exactly when their canonical strings are equal.
type Target struct {
	kind      Kind
	options   map[string]string
	canonical string
}

// Parse reads a descriptor such as "llvm -mcpu=skylake -mattr=+avx2".
// Options are written "-key=value" or "-flag"; their order is irrelevant.
func Parse(s string) (Target, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Target{}, errdefs.New(errdefs.KindUnsupportedTarget, "", "empty target string")
	}
	kind := Kind(strings.ToLower(fields[0]))
	if !knownKinds[kind] {
		return Target{}, errdefs.New(errdefs.KindUnsupportedTarget, fields[0], "unknown target kind")
	}
	opts := make(map[string]string, len(fields)-1)
	for _, f := range fields[1:] {
		if !strings.HasPrefix(f, "-") || len(f) < 2 {
			return Target{}, errdefs.New(errdefs.KindUnsupportedTarget, string(kind), "malformed option %q", f)
		}
		key, value, _ := strings.Cut(strings.TrimLeft(f, "-"), "=")
		if key == "" {
			return Target{}, errdefs.New(errdefs.KindUnsupportedTarget, string(kind), "malformed option %q", f)
		}
		opts[key] = value
	}
	return newTarget(kind, opts), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Target {
	t, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("target: %v", err))
	}
	return t
}

func newTarget(kind Kind, opts map[string]string) Target {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(kind))
	for _, k := range keys {
		b.WriteString(" -")
		b.WriteString(k)
		if v := opts[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return Target{kind: kind, options: opts, canonical: b.String()}
}

// Kind returns the backend family
func (t Target) Kind() Kind { return t.kind }

// Option returns the value of an option and whether it was set.
func (t Target) Option(key string) (string, bool) {
	v, ok := t.options[key]
	return v, ok
}

// Options returns a copy of the option map.
func (t Target) Options() map[string]string {
	out := make(map[string]string, len(t.options))
	for k, v := range t.options {
		out[k] = v
	}
	return out
}

// String returns the canonical descriptor.
func (t Target) String() string { return t.canonical }

// IsZero reports whether t was never parsed.
func (t Target) IsZero() bool { return t.canonical == "" }
