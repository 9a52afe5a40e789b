package bytecode

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// VerifyError reports malformed bytecode found before execution. Op and Err
// are set when the instruction at PC could not be decoded.
type VerifyError struct {
	Function uint16
	Name     string
	PC       int
	Op       Opcode
	Msg      string
	Err      error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify: function %s (#%d) at %04d: %s", e.Name, e.Function, e.PC, e.Msg)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Verify checks a whole program before it is allowed to run: every opcode is
// known, every operand is in range, every branch was resolved and lands on an
// instruction boundary, and no function can run off its end.
func Verify(p *Program) error {
	if len(p.Functions) == 0 {
		return fmt.Errorf("verify: program has no functions")
	}
	if int(p.Entry) >= len(p.Functions) {
		return fmt.Errorf("verify: entry function %d out of range", p.Entry)
	}
	if err := p.CheckLabels(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	for _, f := range p.Functions {
		if err := verifyFunction(p, f); err != nil {
			return err
		}
	}

	log.Debug("Program verified", "functions", len(p.Functions), "constants", len(p.constants))
	return nil
}

func verifyFunction(p *Program, f *Function) error {
	fail := func(pc int, format string, args ...any) error {
		return &VerifyError{Function: f.ID, Name: f.Name, PC: pc, Msg: fmt.Sprintf(format, args...)}
	}

	code := f.Code
	if code.Len() == 0 {
		return fail(0, "empty function body")
	}

	starts := make(map[int]bool)
	var branches []Instruction
	var last Instruction

	for pc := 0; pc < code.Len(); {
		in, err := code.Decode(pc)
		if err != nil {
			return &VerifyError{Function: f.ID, Name: f.Name, PC: pc, Op: in.Op, Msg: err.Error(), Err: err}
		}
		starts[pc] = true

		info, _ := Lookup(in.Op)
		for i, k := range info.Operands {
			switch k {
			case OperandConstID:
				if _, ok := p.Constant(uint16(in.Operands[i])); !ok {
					return fail(pc, "%s: constant %d out of range", in.Op, in.Operands[i])
				}
			case OperandFunction:
				if _, ok := p.FunctionByID(uint16(in.Operands[i])); !ok {
					return fail(pc, "%s: function %d out of range", in.Op, in.Operands[i])
				}
			case OperandSlot:
				owner := f
				if i > 0 {
					owner, _ = p.FunctionByID(uint16(in.Operands[i-1]))
				}
				if int(in.Operands[i]) >= owner.SlotCount() {
					return fail(pc, "%s: slot %d out of range for %s (%d slots)", in.Op, in.Operands[i], owner.Name, owner.SlotCount())
				}
			case OperandOffset:
				if int32(in.Operands[i]) == UnboundOffset {
					return fail(pc, "%s: branch to unresolved label", in.Op)
				}
				branches = append(branches, in)
			}
		}
		if in.Op == OpCall {
			callee, _ := p.FunctionByID(uint16(in.Operands[0]))
			if callee.SlotCount() < len(callee.Params) {
				return fail(pc, "CALL: %s has fewer slots than parameters", callee.Name)
			}
		}

		last = in
		pc += in.Op.Width()
	}

	for _, br := range branches {
		target := br.Target()
		if !starts[target] {
			return fail(br.PC, "%s: target %d is not an instruction boundary", br.Op, target)
		}
	}

	switch last.Op {
	case OpReturn, OpStop, OpJa:
	default:
		return fail(last.PC, "function falls off its end after %s", last.Op)
	}
	return nil
}
