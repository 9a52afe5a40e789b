package interpreter

import (
	"errors"
	"fmt"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/color"
)

type RuntimeErrorKind int

const (
	StackUnderflow RuntimeErrorKind = iota + 1
	UnknownOpcode
	MissingEnclosingFrame
	DivisionByZero
	InvalidOperand
	StackOverflow
	MaxStepsExceeded
)

func (k RuntimeErrorKind) String() string {
	switch k {
	case StackUnderflow:
		return "StackUnderflow"
	case UnknownOpcode:
		return "UnknownOpcode"
	case MissingEnclosingFrame:
		return "MissingEnclosingFrame"
	case DivisionByZero:
		return "DivisionByZero"
	case InvalidOperand:
		return "InvalidOperand"
	case StackOverflow:
		return "StackOverflow"
	case MaxStepsExceeded:
		return "MaxStepsExceeded"
	default:
		return "RuntimeError"
	}
}

// RuntimeError is a fatal interpreter error. Function and PC locate the
// faulting instruction.
type RuntimeError struct {
	Kind     RuntimeErrorKind
	Function uint16
	Name     string
	PC       int
	Op       bytecode.Opcode
	Msg      string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s in %s (#%d) at %04d [%s]: %s", e.Kind, e.Name, e.Function, e.PC, e.Op, e.Msg)
}

// Pretty renders the error as a colored one-line diagnostic.
func (e *RuntimeError) Pretty() string {
	return color.RedText(e.Kind.String()) + " in " + color.BlueText(e.Name) +
		" at " + color.YellowText(fmt.Sprintf("%04d", e.PC)) + " " + color.GrayText(e.Op.String()) + ": " + e.Msg
}

var ErrHalted = errors.New("interpreter already halted")

// IsKind reports whether err is a RuntimeError of the given kind.
func IsKind(err error, kind RuntimeErrorKind) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Kind == kind
}
