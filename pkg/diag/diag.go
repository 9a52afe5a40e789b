// Package diag holds the compile-phase error type shared by the resolver and
// the code generator.
package diag

import (
	"errors"
	"fmt"
	"mathvm/pkg/ast"
	"mathvm/pkg/color"
)

type CompileErrorKind int

const (
	UnresolvedVariable CompileErrorKind = iota + 1
	UnresolvedFunction
	TypeMismatch
	UnsupportedConstruct
	UnresolvedLabel
	Redeclaration
)

func (k CompileErrorKind) String() string {
	switch k {
	case UnresolvedVariable:
		return "UnresolvedVariable"
	case UnresolvedFunction:
		return "UnresolvedFunction"
	case TypeMismatch:
		return "TypeMismatch"
	case UnsupportedConstruct:
		return "UnsupportedConstruct"
	case UnresolvedLabel:
		return "UnresolvedLabel"
	case Redeclaration:
		return "Redeclaration"
	default:
		return "CompileError"
	}
}

// CompileError aborts resolution or generation. Pos is the offending node's location.
type CompileError struct {
	Kind CompileErrorKind
	Pos  ast.Position
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Msg)
}

// Pretty renders the error as a colored one-line diagnostic.
func (e *CompileError) Pretty() string {
	return color.RedText(e.Kind.String()) + " at " + color.Position(e.Pos.Line, e.Pos.Column) + ": " + e.Msg
}

// Errorf builds a CompileError for the node at pos.
func Errorf(kind CompileErrorKind, pos ast.Position, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UndefinedVariable reports a reference no enclosing function declares.
func UndefinedVariable(name string, pos ast.Position) *CompileError {
	return Errorf(UnresolvedVariable, pos, "undefined variable `%s`", name)
}

func UndefinedFunction(name string, pos ast.Position) *CompileError {
	return Errorf(UnresolvedFunction, pos, "undefined function `%s`", name)
}

func Redeclared(what, name string, pos ast.Position) *CompileError {
	return Errorf(Redeclaration, pos, "redeclaration of %s `%s`", what, name)
}

func Mismatch(pos ast.Position, format string, args ...any) *CompileError {
	return Errorf(TypeMismatch, pos, format, args...)
}

// IsKind reports whether err is a CompileError of the given kind.
func IsKind(err error, kind CompileErrorKind) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Kind == kind
}
