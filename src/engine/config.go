package engine

import (
	"github.com/seuros/gopher-relay/src/codegen"
	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/lower"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/target"
)

// Lowerer turns a source function into scheduled primitive functions.
type Lowerer interface {
	Lower(fn *ir.Function, t target.Target) (*lowered.CachedFunc, error)
}

// Backend generates an invocable artifact from lowered primitive functions.
type Backend interface {
	Build(funcs []*lowered.PrimFunc, t target.Target) (lowered.Artifact, error)
}

// LowererFunc adapts a function to Lowerer.
type LowererFunc func(fn *ir.Function, t target.Target) (*lowered.CachedFunc, error)

// Lower calls f.
func (f LowererFunc) Lower(fn *ir.Function, t target.Target) (*lowered.CachedFunc, error) {
	return f(fn, t)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(funcs []*lowered.PrimFunc, t target.Target) (lowered.Artifact, error)

// Build calls f.
func (f BackendFunc) Build(funcs []*lowered.PrimFunc, t target.Target) (lowered.Artifact, error) {
	return f(funcs, t)
}

// Config holds configuration options for a CompileEngine
type Config struct {
	// Lowerer is the lowering pipeline invoked on a cache miss
	Lowerer Lowerer

	// Backend is the code generator invoked by JIT
	Backend Backend

	// Logging holds logging configuration
	Logging *LoggingConfig

	// Observability holds telemetry configuration
	Observability *ObservabilityConfig
}

// DefaultConfig wires the reference lowering pipeline and interpreter
// backend with silent logging and default telemetry.
func DefaultConfig() *Config {
	return &Config{
		Lowerer:       lower.New(nil),
		Backend:       codegen.New(nil),
		Logging:       DefaultLoggingConfig(),
		Observability: DefaultObservabilityConfig(),
	}
}

// withDefaults fills every unset field from DefaultConfig.
func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	if c.Lowerer != nil {
		out.Lowerer = c.Lowerer
	}
	if c.Backend != nil {
		out.Backend = c.Backend
	}
	if c.Logging != nil && c.Logging.Logger != nil {
		out.Logging = c.Logging
		if ls, ok := c.Logging.Logger.(LevelSetter); ok {
			ls.SetLevel(c.Logging.Level)
		}
	}
	if c.Observability != nil {
		out.Observability = c.Observability
	}
	return out
}
