// Package errdefs defines the error kinds shared by the compile engine,
// its collaborators and the operator boundary.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindShapeMismatch
	KindDTypeMismatch
	KindRankMismatch
	KindUnsupportedTarget
	KindLoweringFailure
	KindCodegenFailure
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindShapeMismatch:
		return "ShapeMismatch"
	case KindDTypeMismatch:
		return "DTypeMismatch"
	case KindRankMismatch:
		return "RankMismatch"
	case KindUnsupportedTarget:
		return "UnsupportedTarget"
	case KindLoweringFailure:
		return "LoweringFailure"
	case KindCodegenFailure:
		return "CodegenFailure"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrShapeMismatch     = &Error{Kind: KindShapeMismatch, Operand: -1}
	ErrDTypeMismatch     = &Error{Kind: KindDTypeMismatch, Operand: -1}
	ErrRankMismatch      = &Error{Kind: KindRankMismatch, Operand: -1}
	ErrUnsupportedTarget = &Error{Kind: KindUnsupportedTarget, Operand: -1}
	ErrLoweringFailure   = &Error{Kind: KindLoweringFailure, Operand: -1}
	ErrCodegenFailure    = &Error{Kind: KindCodegenFailure, Operand: -1}
)

// Error carries a failure kind together with the operation and operand
// it was raised for.
type Error struct {
	Kind Kind
	// Op names the operator, function or target involved, if any.
	Op string
	// Operand is the zero-based argument index for boundary errors, -1 otherwise.
	Operand int
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Operand >= 0 && isBoundary(e.Kind) {
		fmt.Fprintf(&b, " (operand %d)", e.Operand)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func isBoundary(k Kind) bool {
	return k == KindShapeMismatch || k == KindDTypeMismatch || k == KindRankMismatch
}

// New creates an error of the given kind that is not tied to an operand.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Operand: -1, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. If err already is an *Error it is returned
// unchanged so collaborator-classified failures keep their kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Operand: -1, Err: err}
}

// Boundary creates an operand-level validation error.
func Boundary(kind Kind, op string, operand int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Operand: operand, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
