// Package ir holds the source-function representation consumed by the
// compile engine, together with its alpha-equivalence and structural hash.
package ir

// Node represents a single IR element. It participates in the visitor
// pattern used by the printer.
type Node interface {
	// Accept allows a visitor to process the node.
	Accept(v Visitor) error
}

// Visitor is implemented by types that can handle specific IR nodes. A
// visitor only needs the Visit methods for the nodes it cares about.
type Visitor interface{}

// Expr is a node that produces a value.
type Expr interface {
	Node
	exprNode()
}
