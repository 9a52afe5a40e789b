package interpreter

import (
	"fmt"
	"io"
	"mathvm/pkg/bytecode"
)

// traceStep wraps step so that every instruction is written to w, together
// with the operand stack depths, before it runs.
func traceStep(w io.Writer, step func(*Interpreter) (bool, error)) func(*Interpreter) (bool, error) {
	return func(i *Interpreter) (bool, error) {
		fr := i.frame
		op := bytecode.OpInvalid
		if code := fr.Function.Code; fr.IP >= 0 && fr.IP < code.Len() {
			op = code.Opcode(fr.IP)
		}
		ints, doubles, strs := i.StackDepths()
		fmt.Fprintf(w, "%s#%d %04d %-14s i=%d d=%d s=%d\n", fr.Function.Name, fr.Function.ID, fr.IP, op, ints, doubles, strs)
		return step(i)
	}
}
