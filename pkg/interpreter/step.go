package interpreter

import (
	"io"
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
)

// coreStep is the main single-step execution function
// it returns (halted, error).
func coreStep(i *Interpreter) (bool, error) {
	fr := i.frame
	code := fr.Function.Code
	pc := fr.IP
	i.pc = pc

	if pc < 0 || pc >= code.Len() {
		i.op = bytecode.OpInvalid
		return false, i.fault(InvalidOperand, "pc %d outside of %s", pc, fr.Function.Name)
	}

	op := code.Opcode(pc)
	i.op = op
	width := op.Width()
	if width == 0 {
		return false, i.fault(UnknownOpcode, "unknown opcode %#02x", byte(op))
	}
	if pc+width > code.Len() {
		return false, i.fault(InvalidOperand, "truncated instruction")
	}
	next := pc + width
	fr.IP = next

	switch op {
	case bytecode.OpDLoad:
		i.doubles.Push(code.DoubleAt(pc + 1))
	case bytecode.OpILoad:
		i.ints.Push(code.Int64At(pc + 1))
	case bytecode.OpSLoad:
		i.strs.Push(code.Uint16At(pc + 1))
	case bytecode.OpILoad0:
		i.ints.Push(0)
	case bytecode.OpILoad1:
		i.ints.Push(1)

	case bytecode.OpIAdd, bytecode.OpISub, bytecode.OpIMul, bytecode.OpIDiv, bytecode.OpIMod,
		bytecode.OpIAOr, bytecode.OpIAAnd, bytecode.OpIAXor:
		l, r, err := i.popInts()
		if err != nil {
			return false, err
		}
		v, err := i.intArith(op, l, r)
		if err != nil {
			return false, err
		}
		i.ints.Push(v)

	case bytecode.OpDAdd, bytecode.OpDSub, bytecode.OpDMul, bytecode.OpDDiv:
		r, err := i.popDouble()
		if err != nil {
			return false, err
		}
		l, err := i.popDouble()
		if err != nil {
			return false, err
		}
		i.doubles.Push(doubleArith(op, l, r))

	case bytecode.OpINeg:
		v, err := i.popInt()
		if err != nil {
			return false, err
		}
		i.ints.Push(-v)
	case bytecode.OpDNeg:
		v, err := i.popDouble()
		if err != nil {
			return false, err
		}
		i.doubles.Push(-v)

	case bytecode.OpIPrint:
		v, err := i.popInt()
		if err != nil {
			return false, err
		}
		if _, err := io.WriteString(i.out, FormatInt(v)); err != nil {
			return false, err
		}
	case bytecode.OpDPrint:
		v, err := i.popDouble()
		if err != nil {
			return false, err
		}
		if _, err := io.WriteString(i.out, FormatDouble(v)); err != nil {
			return false, err
		}
	case bytecode.OpSPrint:
		id, err := i.popString()
		if err != nil {
			return false, err
		}
		s, ok := i.prog.Constant(id)
		if !ok {
			return false, i.fault(InvalidOperand, "string constant %d out of range", id)
		}
		if _, err := io.WriteString(i.out, s); err != nil {
			return false, err
		}

	case bytecode.OpI2D:
		v, err := i.popInt()
		if err != nil {
			return false, err
		}
		i.doubles.Push(float64(v))
	case bytecode.OpD2I:
		v, err := i.popDouble()
		if err != nil {
			return false, err
		}
		i.ints.Push(int64(v))

	case bytecode.OpISwap:
		if !i.ints.Swap() {
			return false, i.fault(StackUnderflow, "integer stack holds fewer than two values")
		}
	case bytecode.OpDSwap:
		if !i.doubles.Swap() {
			return false, i.fault(StackUnderflow, "double stack holds fewer than two values")
		}
	case bytecode.OpSSwap:
		if !i.strs.Swap() {
			return false, i.fault(StackUnderflow, "string stack holds fewer than two values")
		}

	case bytecode.OpIPop:
		if _, err := i.popInt(); err != nil {
			return false, err
		}
	case bytecode.OpDPop:
		if _, err := i.popDouble(); err != nil {
			return false, err
		}
	case bytecode.OpSPop:
		if _, err := i.popString(); err != nil {
			return false, err
		}

	case bytecode.OpLoadIVar, bytecode.OpLoadDVar, bytecode.OpLoadSVar:
		slot, err := i.slot(fr, code.Uint16At(pc+1))
		if err != nil {
			return false, err
		}
		i.load(op, *slot)
	case bytecode.OpStoreIVar, bytecode.OpStoreDVar, bytecode.OpStoreSVar:
		slot, err := i.slot(fr, code.Uint16At(pc+1))
		if err != nil {
			return false, err
		}
		if err := i.store(op, slot); err != nil {
			return false, err
		}

	case bytecode.OpLoadCtxIVar, bytecode.OpLoadCtxDVar, bytecode.OpLoadCtxSVar:
		slot, err := i.ctxSlot(code.Uint16At(pc+1), code.Uint16At(pc+3))
		if err != nil {
			return false, err
		}
		i.load(op, *slot)
	case bytecode.OpStoreCtxIVar, bytecode.OpStoreCtxDVar, bytecode.OpStoreCtxSVar:
		slot, err := i.ctxSlot(code.Uint16At(pc+1), code.Uint16At(pc+3))
		if err != nil {
			return false, err
		}
		if err := i.store(op, slot); err != nil {
			return false, err
		}

	case bytecode.OpJa:
		fr.IP = next + int(code.Int32At(pc+1))
	case bytecode.OpIfICmpNE, bytecode.OpIfICmpE, bytecode.OpIfICmpG,
		bytecode.OpIfICmpGE, bytecode.OpIfICmpL, bytecode.OpIfICmpLE:
		l, r, err := i.popInts()
		if err != nil {
			return false, err
		}
		if compare(op, l, r) {
			fr.IP = next + int(code.Int32At(pc+1))
		}

	case bytecode.OpCall:
		if err := i.call(code.Uint16At(pc+1), next); err != nil {
			return false, err
		}

	case bytecode.OpReturn:
		done := i.popFrame()
		if i.frame == nil {
			// the entry function returned
			return true, nil
		}
		i.frame.IP = done.ReturnToIP

	case bytecode.OpStop:
		return true, nil

	default:
		return false, i.fault(UnknownOpcode, "no handler for %s", op)
	}

	return false, nil
}

// call pushes a frame for the callee and binds its parameters to slots
// 0..n-1 in the order the arguments were pushed.
func (i *Interpreter) call(id uint16, returnTo int) error {
	callee, ok := i.prog.FunctionByID(id)
	if !ok {
		return i.fault(InvalidOperand, "function %d out of range", id)
	}
	if len(callee.Params) > callee.SlotCount() {
		return i.fault(InvalidOperand, "%s has %d parameters but %d slots", callee.Name, len(callee.Params), callee.SlotCount())
	}

	args := make([]uint64, len(callee.Params))
	for p := len(callee.Params) - 1; p >= 0; p-- {
		switch callee.Params[p] {
		case ast.Int:
			v, err := i.popInt()
			if err != nil {
				return err
			}
			args[p] = intSlot(v)
		case ast.Double:
			v, err := i.popDouble()
			if err != nil {
				return err
			}
			args[p] = doubleSlot(v)
		case ast.String:
			v, err := i.popString()
			if err != nil {
				return err
			}
			args[p] = stringSlot(v)
		default:
			return i.fault(InvalidOperand, "parameter %d of %s has type %s", p, callee.Name, callee.Params[p])
		}
	}

	f, err := i.pushFrame(callee, returnTo)
	if err != nil {
		return err
	}
	copy(f.Locals, args)
	return nil
}

func (i *Interpreter) slot(fr *Frame, slot uint16) (*uint64, error) {
	if int(slot) >= len(fr.Locals) {
		return nil, i.fault(InvalidOperand, "slot %d out of range for %s (%d slots)", slot, fr.Function.Name, len(fr.Locals))
	}
	return &fr.Locals[slot], nil
}

// ctxSlot addresses a slot of the nearest active frame of function id.
func (i *Interpreter) ctxSlot(id, slot uint16) (*uint64, error) {
	owner := i.frame.enclosing(id)
	if owner == nil {
		name := "?"
		if fn, ok := i.prog.FunctionByID(id); ok {
			name = fn.Name
		}
		return nil, i.fault(MissingEnclosingFrame, "no active frame of %s (#%d) on the call stack", name, id)
	}
	return i.slot(owner, slot)
}

func (i *Interpreter) load(op bytecode.Opcode, v uint64) {
	switch op {
	case bytecode.OpLoadIVar, bytecode.OpLoadCtxIVar:
		i.ints.Push(slotInt(v))
	case bytecode.OpLoadDVar, bytecode.OpLoadCtxDVar:
		i.doubles.Push(slotDouble(v))
	default:
		i.strs.Push(slotString(v))
	}
}

func (i *Interpreter) store(op bytecode.Opcode, dst *uint64) error {
	switch op {
	case bytecode.OpStoreIVar, bytecode.OpStoreCtxIVar:
		v, err := i.popInt()
		if err != nil {
			return err
		}
		*dst = intSlot(v)
	case bytecode.OpStoreDVar, bytecode.OpStoreCtxDVar:
		v, err := i.popDouble()
		if err != nil {
			return err
		}
		*dst = doubleSlot(v)
	default:
		v, err := i.popString()
		if err != nil {
			return err
		}
		*dst = stringSlot(v)
	}
	return nil
}

// intArith applies an integer opcode. Division truncates toward zero and the
// remainder takes the sign of the dividend.
func (i *Interpreter) intArith(op bytecode.Opcode, l, r int64) (int64, error) {
	switch op {
	case bytecode.OpIAdd:
		return l + r, nil
	case bytecode.OpISub:
		return l - r, nil
	case bytecode.OpIMul:
		return l * r, nil
	case bytecode.OpIDiv:
		if r == 0 {
			return 0, i.fault(DivisionByZero, "%d / 0", l)
		}
		return l / r, nil
	case bytecode.OpIMod:
		if r == 0 {
			return 0, i.fault(DivisionByZero, "%d %% 0", l)
		}
		return l % r, nil
	case bytecode.OpIAOr:
		return l | r, nil
	case bytecode.OpIAAnd:
		return l & r, nil
	default:
		return l ^ r, nil
	}
}

func doubleArith(op bytecode.Opcode, l, r float64) float64 {
	switch op {
	case bytecode.OpDAdd:
		return l + r
	case bytecode.OpDSub:
		return l - r
	case bytecode.OpDMul:
		return l * r
	default:
		return l / r
	}
}

func compare(op bytecode.Opcode, l, r int64) bool {
	switch op {
	case bytecode.OpIfICmpE:
		return l == r
	case bytecode.OpIfICmpNE:
		return l != r
	case bytecode.OpIfICmpG:
		return l > r
	case bytecode.OpIfICmpGE:
		return l >= r
	case bytecode.OpIfICmpL:
		return l < r
	default:
		return l <= r
	}
}

// popInts pops the right operand, then the left one.
func (i *Interpreter) popInts() (l, r int64, err error) {
	if r, err = i.popInt(); err != nil {
		return 0, 0, err
	}
	if l, err = i.popInt(); err != nil {
		return 0, 0, err
	}
	return l, r, nil
}

func (i *Interpreter) popInt() (int64, error) {
	v, ok := i.ints.Pop()
	if !ok {
		return 0, i.fault(StackUnderflow, "integer stack is empty")
	}
	return v, nil
}

func (i *Interpreter) popDouble() (float64, error) {
	v, ok := i.doubles.Pop()
	if !ok {
		return 0, i.fault(StackUnderflow, "double stack is empty")
	}
	return v, nil
}

func (i *Interpreter) popString() (uint16, error) {
	v, ok := i.strs.Pop()
	if !ok {
		return 0, i.fault(StackUnderflow, "string stack is empty")
	}
	return v, nil
}
