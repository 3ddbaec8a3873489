package parser

// Program is a single top-level function.
type Program struct {
	Func *FnExpr `@@`
}

type FnExpr struct {
	TypeParams []string  `"fn" ("[" @Ident ("," @Ident)* "]")?`
	Params     []*Param  `"(" (@@ ("," @@)*)? ")"`
	RetType    *TypeExpr `(Arrow @@)?`
	Body       *Expr     `"{" @@ "}"`
}

type Param struct {
	Name string    `@LocalVar`
	Type *TypeExpr `(":" @@)?`
}

type TypeExpr struct {
	Tensor *TensorTypeExpr `  @@`
	Tuple  *TupleTypeExpr  `| @@`
	Var    *string         `| @Ident`
}

type TensorTypeExpr struct {
	Shape []int64 `"Tensor" "[" "(" (@Int ("," @Int)*)? ","? ")" ","`
	DType string  `@Ident "]"`
}

type TupleTypeExpr struct {
	Fields []*TypeExpr `"(" (@@ ("," @@)*)? ","? ")"`
}

type Expr struct {
	Let     *LetExpr     `  @@`
	If      *IfExpr      `| @@`
	Postfix *PostfixExpr `| @@`
}

type LetExpr struct {
	Var   string    `"let" @LocalVar`
	Type  *TypeExpr `(":" @@)?`
	Value *Expr     `"=" @@ ";"`
	Body  *Expr     `@@`
}

type IfExpr struct {
	Cond *Expr `"if" "(" @@ ")"`
	Then *Expr `"{" @@ "}"`
	Else *Expr `"else" "{" @@ "}"`
}

type PostfixExpr struct {
	Primary *Primary `@@`
	Indices []int    `("." @Int)*`
}

type Primary struct {
	Fn    *FnExpr    `  @@`
	Call  *CallExpr  `| @@`
	Var   *string    `| @LocalVar`
	Float *string    `| @Float`
	Int   *string    `| @Int`
	Paren *ParenExpr `| @@`
}

type CallExpr struct {
	Op   string  `@(Ident ("." Ident)*)`
	Args []*Expr `"(" (@@ ("," @@)*)? ")"`
}

// ParenExpr is a parenthesised expression when it holds exactly one
// field without a trailing comma, and a tuple otherwise.
type ParenExpr struct {
	Fields   []*Expr `"(" (@@ ("," @@)*)?`
	Trailing bool    `@","? ")"`
}
