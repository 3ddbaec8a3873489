package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seuros/gopher-relay/src/tensor"
)

// Printer walks the IR and renders the text form accepted by the parser.
type Printer struct {
	output  strings.Builder
	indent  int
	names   map[*Var]string
	tnames  map[*TypeVar]string
	counter int
}

// NewPrinter creates a new printer instance.
func NewPrinter() *Printer {
	return &Printer{names: make(map[*Var]string), tnames: make(map[*TypeVar]string)}
}

// Print renders a single expression.
func Print(e Expr) string {
	p := NewPrinter()
	p.render(e)
	return p.Output()
}

// Output returns the rendered text.
func (p *Printer) Output() string { return p.output.String() }

func (p *Printer) render(e Expr) {
	if e == nil {
		p.output.WriteString("()")
		return
	}
	_ = e.Accept(p)
}

func (p *Printer) newline() {
	p.output.WriteByte('\n')
	p.output.WriteString(strings.Repeat("  ", p.indent))
}

func (p *Printer) varName(v *Var) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	name := v.Name
	if name == "" {
		p.counter++
		name = "v" + strconv.Itoa(p.counter)
	}
	p.names[v] = name
	return name
}

func (p *Printer) typeName(t Type) string {
	switch x := t.(type) {
	case nil:
		return "?"
	case *TypeVar:
		if n, ok := p.tnames[x]; ok {
			return n
		}
		name := x.Name
		if name == "" {
			p.counter++
			name = "T" + strconv.Itoa(p.counter)
		}
		p.tnames[x] = name
		return name
	case *TupleType:
		parts := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			parts[i] = p.typeName(f)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return t.String()
	}
}

// VisitVar renders a variable reference.
func (p *Printer) VisitVar(n *Var) error {
	p.output.WriteString("%" + p.varName(n))
	return nil
}

// VisitConstant renders scalar literals; other constants use a
// descriptive form that the parser does not accept.
func (p *Printer) VisitConstant(n *Constant) error {
	p.output.WriteString(FormatConstant(n.Value))
	return nil
}

// VisitCall renders an operator application.
func (p *Printer) VisitCall(n *Call) error {
	p.output.WriteString(n.Op)
	p.output.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			p.output.WriteString(", ")
		}
		p.render(a)
	}
	p.output.WriteByte(')')
	return nil
}

// VisitLet renders a binding followed by its body on the next line.
func (p *Printer) VisitLet(n *Let) error {
	p.output.WriteString("let %" + p.varName(n.Var))
	if n.Var.Type != nil {
		p.output.WriteString(": " + p.typeName(n.Var.Type))
	}
	p.output.WriteString(" = ")
	p.render(n.Value)
	p.output.WriteByte(';')
	p.newline()
	p.render(n.Body)
	return nil
}

// VisitIf renders both branches as blocks.
func (p *Printer) VisitIf(n *If) error {
	p.output.WriteString("if (")
	p.render(n.Cond)
	p.output.WriteString(") {")
	p.indent++
	p.newline()
	p.render(n.Then)
	p.indent--
	p.newline()
	p.output.WriteString("} else {")
	p.indent++
	p.newline()
	p.render(n.Else)
	p.indent--
	p.newline()
	p.output.WriteByte('}')
	return nil
}

// VisitTuple renders "(a, b)"; one-field tuples keep a trailing comma.
func (p *Printer) VisitTuple(n *Tuple) error {
	p.output.WriteByte('(')
	for i, f := range n.Fields {
		if i > 0 {
			p.output.WriteString(", ")
		}
		p.render(f)
	}
	if len(n.Fields) == 1 {
		p.output.WriteByte(',')
	}
	p.output.WriteByte(')')
	return nil
}

// VisitTupleGetItem renders "e.N".
func (p *Printer) VisitTupleGetItem(n *TupleGetItem) error {
	p.render(n.Tuple)
	p.output.WriteString("." + strconv.Itoa(n.Index))
	return nil
}

// VisitFunction renders a function with its signature.
func (p *Printer) VisitFunction(n *Function) error {
	p.output.WriteString("fn ")
	if len(n.TypeParams) > 0 {
		names := make([]string, len(n.TypeParams))
		for i, tp := range n.TypeParams {
			names[i] = p.typeName(tp)
		}
		p.output.WriteString("[" + strings.Join(names, ", ") + "] ")
	}
	p.output.WriteByte('(')
	for i, param := range n.Params {
		if i > 0 {
			p.output.WriteString(", ")
		}
		p.output.WriteString("%" + p.varName(param))
		if param.Type != nil {
			p.output.WriteString(": " + p.typeName(param.Type))
		}
	}
	p.output.WriteByte(')')
	if n.RetType != nil {
		p.output.WriteString(" -> " + p.typeName(n.RetType))
	}
	p.output.WriteString(" {")
	p.indent++
	p.newline()
	p.render(n.Body)
	p.indent--
	p.newline()
	p.output.WriteByte('}')
	return nil
}

// FormatConstant renders a literal in its text form.
func FormatConstant(t *tensor.Tensor) string {
	if t == nil {
		return "()"
	}
	if t.Rank() != 0 || len(t.Data) != 1 {
		return fmt.Sprintf("meta[%s]", t)
	}
	v := t.Data[0]
	switch t.DType {
	case tensor.Float32, tensor.Float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		if t.DType == tensor.Float64 {
			return s + "f64"
		}
		return s + "f"
	case tensor.Int64:
		return strconv.FormatInt(int64(v), 10) + "i64"
	default:
		return strconv.FormatInt(int64(v), 10)
	}
}
