// Package parser reads the text form of source functions into the IR.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/tensor"
)

var relayLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "comment", Pattern: `//[^\n]*`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Float", Pattern: `-?\d+\.\d+(f64|f32|f)?`},
	{Name: "Int", Pattern: `-?\d+(i64|i32)?`},
	{Name: "LocalVar", Pattern: `%[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(){}\[\],.:;=]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type Parser struct {
	parser *participle.Parser[Program]
}

func New() (*Parser, error) {
	parser, err := participle.Build[Program](
		participle.Lexer(relayLexer),
		participle.UseLookahead(4),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	return &Parser{parser: parser}, nil
}

// MustNew is like New but panics if the grammar cannot be built.
func MustNew() *Parser {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

// Parse reads a single function.
func (p *Parser) Parse(input string) (*ir.Function, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	program, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	c := newConverter()
	return c.function(program.Func)
}

// Grammar returns the EBNF of the accepted language.
func (p *Parser) Grammar() string {
	return p.parser.String()
}

func validateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("empty input")
	}
	return nil
}

// converter maps the parse tree to IR, resolving names against lexical
// scopes. Every binding site yields a fresh ir.Var or ir.TypeVar.
type converter struct {
	vars  []map[string]*ir.Var
	tvars []map[string]*ir.TypeVar
}

func newConverter() *converter {
	return &converter{}
}

func (c *converter) push() {
	c.vars = append(c.vars, make(map[string]*ir.Var))
	c.tvars = append(c.tvars, make(map[string]*ir.TypeVar))
}

func (c *converter) pop() {
	c.vars = c.vars[:len(c.vars)-1]
	c.tvars = c.tvars[:len(c.tvars)-1]
}

func (c *converter) lookupVar(name string) (*ir.Var, bool) {
	for i := len(c.vars) - 1; i >= 0; i-- {
		if v, ok := c.vars[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *converter) lookupTypeVar(name string) (*ir.TypeVar, bool) {
	for i := len(c.tvars) - 1; i >= 0; i-- {
		if v, ok := c.tvars[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *converter) function(fn *FnExpr) (*ir.Function, error) {
	c.push()
	defer c.pop()

	out := &ir.Function{}
	for _, name := range fn.TypeParams {
		if isKeyword(name) {
			return nil, fmt.Errorf("type parameter %q is a reserved word", name)
		}
		if _, dup := c.tvars[len(c.tvars)-1][name]; dup {
			return nil, fmt.Errorf("duplicate type parameter %q", name)
		}
		tv := &ir.TypeVar{Name: name}
		c.tvars[len(c.tvars)-1][name] = tv
		out.TypeParams = append(out.TypeParams, tv)
	}

	for _, param := range fn.Params {
		name := strings.TrimPrefix(param.Name, "%")
		if _, dup := c.vars[len(c.vars)-1][name]; dup {
			return nil, fmt.Errorf("duplicate parameter %%%s", name)
		}
		typ, err := c.typ(param.Type)
		if err != nil {
			return nil, err
		}
		v := ir.NewVar(name, typ)
		c.vars[len(c.vars)-1][name] = v
		out.Params = append(out.Params, v)
	}

	ret, err := c.typ(fn.RetType)
	if err != nil {
		return nil, err
	}
	out.RetType = ret

	body, err := c.expr(fn.Body)
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func (c *converter) typ(t *TypeExpr) (ir.Type, error) {
	if t == nil {
		return nil, nil
	}
	switch {
	case t.Tensor != nil:
		dtype, err := tensor.ParseDType(t.Tensor.DType)
		if err != nil {
			return nil, err
		}
		for _, d := range t.Tensor.Shape {
			if d < 0 {
				return nil, fmt.Errorf("negative dimension %d in tensor type", d)
			}
		}
		return ir.NewTensorType(dtype, t.Tensor.Shape...), nil
	case t.Tuple != nil:
		fields := make([]ir.Type, len(t.Tuple.Fields))
		for i, f := range t.Tuple.Fields {
			ft, err := c.typ(f)
			if err != nil {
				return nil, err
			}
			fields[i] = ft
		}
		return &ir.TupleType{Fields: fields}, nil
	case t.Var != nil:
		tv, ok := c.lookupTypeVar(*t.Var)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", *t.Var)
		}
		return tv, nil
	}
	return nil, fmt.Errorf("empty type expression")
}

func (c *converter) expr(e *Expr) (ir.Expr, error) {
	switch {
	case e.Let != nil:
		return c.let(e.Let)
	case e.If != nil:
		cond, err := c.expr(e.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := c.expr(e.If.Then)
		if err != nil {
			return nil, err
		}
		els, err := c.expr(e.If.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, Then: then, Else: els}, nil
	case e.Postfix != nil:
		out, err := c.primary(e.Postfix.Primary)
		if err != nil {
			return nil, err
		}
		for _, idx := range e.Postfix.Indices {
			out = &ir.TupleGetItem{Tuple: out, Index: idx}
		}
		return out, nil
	}
	return nil, fmt.Errorf("empty expression")
}

func (c *converter) let(l *LetExpr) (ir.Expr, error) {
	// The value is converted before the name comes into scope.
	value, err := c.expr(l.Value)
	if err != nil {
		return nil, err
	}
	typ, err := c.typ(l.Type)
	if err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(l.Var, "%")
	v := ir.NewVar(name, typ)

	c.push()
	defer c.pop()
	c.vars[len(c.vars)-1][name] = v

	body, err := c.expr(l.Body)
	if err != nil {
		return nil, err
	}
	return &ir.Let{Var: v, Value: value, Body: body}, nil
}

func (c *converter) primary(p *Primary) (ir.Expr, error) {
	switch {
	case p.Fn != nil:
		return c.function(p.Fn)
	case p.Call != nil:
		if !IsValidOpName(p.Call.Op) {
			return nil, fmt.Errorf("invalid operator name %q", p.Call.Op)
		}
		args := make([]ir.Expr, len(p.Call.Args))
		for i, a := range p.Call.Args {
			arg, err := c.expr(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return &ir.Call{Op: p.Call.Op, Args: args}, nil
	case p.Var != nil:
		name := strings.TrimPrefix(*p.Var, "%")
		v, ok := c.lookupVar(name)
		if !ok {
			return nil, fmt.Errorf("unknown variable %%%s", name)
		}
		return v, nil
	case p.Float != nil:
		return parseFloatLiteral(*p.Float)
	case p.Int != nil:
		return parseIntLiteral(*p.Int)
	case p.Paren != nil:
		fields := make([]ir.Expr, len(p.Paren.Fields))
		for i, f := range p.Paren.Fields {
			fe, err := c.expr(f)
			if err != nil {
				return nil, err
			}
			fields[i] = fe
		}
		if len(fields) == 1 && !p.Paren.Trailing {
			return fields[0], nil
		}
		return &ir.Tuple{Fields: fields}, nil
	}
	return nil, fmt.Errorf("empty primary expression")
}

func parseFloatLiteral(s string) (ir.Expr, error) {
	dtype := tensor.Float32
	switch {
	case strings.HasSuffix(s, "f64"):
		dtype, s = tensor.Float64, strings.TrimSuffix(s, "f64")
	case strings.HasSuffix(s, "f32"):
		s = strings.TrimSuffix(s, "f32")
	case strings.HasSuffix(s, "f"):
		s = strings.TrimSuffix(s, "f")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid float literal %q: %w", s, err)
	}
	return &ir.Constant{Value: tensor.Scalar(dtype, v)}, nil
}

func parseIntLiteral(s string) (ir.Expr, error) {
	dtype := tensor.Int32
	bits := 32
	switch {
	case strings.HasSuffix(s, "i64"):
		dtype, bits, s = tensor.Int64, 64, strings.TrimSuffix(s, "i64")
	case strings.HasSuffix(s, "i32"):
		s = strings.TrimSuffix(s, "i32")
	}
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return nil, fmt.Errorf("invalid integer literal %q: %w", s, err)
	}
	return &ir.Constant{Value: tensor.Scalar(dtype, float64(v))}, nil
}
