// Package testutil provides shared fixtures for tests and benchmarks
package testutil

import (
	"os"
	"testing"

	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/parser"
	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

// Default fixture settings - override via environment variables
var (
	// TargetString is the host target used by tests that need a working backend.
	TargetString = getEnvOrDefault("RELAY_TEST_TARGET", "llvm")
)

// ConvSource lowers to add followed by the lnsconv extern.
const ConvSource = `fn (%x: Tensor[(3, 3), float32], %w: Tensor[(3, 3), float32]) -> Tensor[(1), float32] {
  let %y = add(%x, %w);
  lnsconv.conv3x3(%y, %w)
}`

// ConvSourceRenamed is ConvSource with every bound name changed.
const ConvSourceRenamed = `fn (%a: Tensor[(3, 3), float32], %b: Tensor[(3, 3), float32]) -> Tensor[(1), float32] {
  let %c = add(%a, %b);
  lnsconv.conv3x3(%c, %b)
}`

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Target returns the parsed TargetString.
func Target() target.Target {
	return target.MustParse(TargetString)
}

// Parse parses src or fails the test.
func Parse(tb testing.TB, src string) *ir.Function {
	tb.Helper()
	fn, err := parser.MustNew().Parse(src)
	if err != nil {
		tb.Fatalf("parse: %v", err)
	}
	return fn
}

// Fill returns a tensor with every element set to v.
func Fill(dtype tensor.DType, v float64, shape ...int64) *tensor.Tensor {
	out := tensor.New(dtype, shape...)
	for i := range out.Data {
		out.Data[i] = tensor.Round(dtype, v)
	}
	return out
}
