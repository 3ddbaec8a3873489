package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/tensor"
)

func TestConvertBuildsScopedIR(t *testing.T) {
	p := MustNew()
	fn, err := p.Parse(`fn (%a: Tensor[(3, 3), float32], %b: Tensor[(3, 3), float32]) -> Tensor[(1), float32] {
		let %c = add(%a, %b);
		lnsconv.conv3x3(%c, %b)
	}`)
	require.NoError(t, err)

	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Name)
	assert.True(t, ir.TypeEqual(ir.NewTensorType(tensor.Float32, 3, 3), fn.Params[0].Type))
	assert.True(t, ir.TypeEqual(ir.NewTensorType(tensor.Float32, 1), fn.RetType))

	let, ok := fn.Body.(*ir.Let)
	require.True(t, ok, "body should be a let, got %T", fn.Body)
	value := let.Value.(*ir.Call)
	assert.Equal(t, "add", value.Op)
	assert.Same(t, fn.Params[0], value.Args[0])
	assert.Same(t, fn.Params[1], value.Args[1])

	body := let.Body.(*ir.Call)
	assert.Equal(t, "lnsconv.conv3x3", body.Op)
	assert.Same(t, let.Var, body.Args[0])
}

func TestConvertLiterals(t *testing.T) {
	p := MustNew()
	fn, err := p.Parse(`fn () { (1.5f, 2.0f64, 7, -3i64) }`)
	require.NoError(t, err)

	tup := fn.Body.(*ir.Tuple)
	require.Len(t, tup.Fields, 4)
	want := []*tensor.Tensor{
		tensor.Scalar(tensor.Float32, 1.5),
		tensor.Scalar(tensor.Float64, 2),
		tensor.Scalar(tensor.Int32, 7),
		tensor.Scalar(tensor.Int64, -3),
	}
	for i, w := range want {
		c, ok := tup.Fields[i].(*ir.Constant)
		require.True(t, ok)
		assert.True(t, w.Equal(c.Value), "field %d: got %s want %s", i, c.Value, w)
	}
}

func TestConvertParensAndTuples(t *testing.T) {
	p := MustNew()

	fn, err := p.Parse(`fn (%x: Tensor[(2), float32]) { (%x) }`)
	require.NoError(t, err)
	assert.Same(t, fn.Params[0], fn.Body)

	fn, err = p.Parse(`fn (%x: Tensor[(2), float32]) { (%x,).0 }`)
	require.NoError(t, err)
	get := fn.Body.(*ir.TupleGetItem)
	assert.Equal(t, 0, get.Index)
	assert.Len(t, get.Tuple.(*ir.Tuple).Fields, 1)

	fn, err = p.Parse(`fn () { () }`)
	require.NoError(t, err)
	assert.Empty(t, fn.Body.(*ir.Tuple).Fields)
}

func TestShadowingResolvesInnermost(t *testing.T) {
	p := MustNew()
	fn, err := p.Parse(`fn (%x: Tensor[(2), float32]) { let %x = negative(%x); relu(%x) }`)
	require.NoError(t, err)

	let := fn.Body.(*ir.Let)
	assert.Same(t, fn.Params[0], let.Value.(*ir.Call).Args[0])
	assert.Same(t, let.Var, let.Body.(*ir.Call).Args[0])
	assert.NotSame(t, fn.Params[0], let.Var)
}

func TestParsedRenamingsAreAlphaEqual(t *testing.T) {
	p := MustNew()
	f1, err := p.Parse(`fn [T] (%x: T, %w: Tensor[(3, 3), float32]) { let %y = add(%w, %w); (%x, %y) }`)
	require.NoError(t, err)
	f2, err := p.Parse(`fn [U] (%input: U, %k: Tensor[(3, 3), float32]) { let %acc = add(%k, %k); (%input, %acc) }`)
	require.NoError(t, err)
	f3, err := p.Parse(`fn [U] (%input: U, %k: Tensor[(3, 3), float32]) { let %acc = add(%k, %k); (%acc, %input) }`)
	require.NoError(t, err)

	assert.True(t, ir.AlphaEqual(f1, f2))
	assert.Equal(t, ir.StructuralHash(f1), ir.StructuralHash(f2))
	assert.False(t, ir.AlphaEqual(f1, f3))
}
