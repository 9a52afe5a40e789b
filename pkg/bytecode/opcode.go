package bytecode

import "fmt"

// Opcode is the first byte of every encoded instruction.
type Opcode byte

// Naming: I/D/S prefixes select the integer, double or string operand stack.
const (
	OpInvalid Opcode = iota

	// Constants
	OpDLoad  // push inline double
	OpILoad  // push inline int64
	OpSLoad  // push string constant id
	OpILoad0 // push int 0
	OpILoad1 // push int 1

	// Arithmetic; binary ops pop the right operand first, then the left
	OpDAdd
	OpIAdd
	OpDSub
	OpISub
	OpDMul
	OpIMul
	OpDDiv
	OpIDiv
	OpIMod
	OpDNeg
	OpINeg
	OpIAOr
	OpIAAnd
	OpIAXor

	// Output
	OpIPrint
	OpDPrint
	OpSPrint

	// Conversion and stack shuffling
	OpI2D
	OpD2I
	OpISwap
	OpDSwap
	OpSSwap
	OpIPop
	OpDPop
	OpSPop

	// Locals of the executing frame (slot)
	OpLoadIVar
	OpLoadDVar
	OpLoadSVar
	OpStoreIVar
	OpStoreDVar
	OpStoreSVar

	// Locals of an enclosing function's active frame (function id, slot)
	OpLoadCtxIVar
	OpLoadCtxDVar
	OpLoadCtxSVar
	OpStoreCtxIVar
	OpStoreCtxDVar
	OpStoreCtxSVar

	// Control flow; conditional branches pop right then left and jump if left OP right
	OpJa
	OpIfICmpNE
	OpIfICmpE
	OpIfICmpG
	OpIfICmpGE
	OpIfICmpL
	OpIfICmpLE

	OpCall
	OpReturn
	OpStop

	opCount
)

// OperandKind describes one fixed-width inline operand.
type OperandKind int

const (
	OperandInt64    OperandKind = iota // 8 bytes
	OperandDouble                      // 8 bytes, IEEE-754 bits
	OperandConstID                     // 2 bytes, string constant id
	OperandSlot                        // 2 bytes, local slot id
	OperandFunction                    // 2 bytes, function id
	OperandOffset                      // 4 bytes, signed, relative to the next instruction
)

// Size returns the encoded width of the operand in bytes.
func (k OperandKind) Size() int {
	switch k {
	case OperandInt64, OperandDouble:
		return 8
	case OperandOffset:
		return 4
	default:
		return 2
	}
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Operands []OperandKind
}

// Width returns the full encoded width of an instruction, opcode byte included.
func (i OpcodeInfo) Width() int {
	w := 1
	for _, k := range i.Operands {
		w += k.Size()
	}
	return w
}

var (
	noOperands  []OperandKind
	slotOperand = []OperandKind{OperandSlot}
	ctxOperands = []OperandKind{OperandFunction, OperandSlot}
	jumpOperand = []OperandKind{OperandOffset}
)

var opcodeTable = [opCount]OpcodeInfo{
	OpDLoad:  {"DLOAD", []OperandKind{OperandDouble}},
	OpILoad:  {"ILOAD", []OperandKind{OperandInt64}},
	OpSLoad:  {"SLOAD", []OperandKind{OperandConstID}},
	OpILoad0: {"ILOAD0", noOperands},
	OpILoad1: {"ILOAD1", noOperands},

	OpDAdd:  {"DADD", noOperands},
	OpIAdd:  {"IADD", noOperands},
	OpDSub:  {"DSUB", noOperands},
	OpISub:  {"ISUB", noOperands},
	OpDMul:  {"DMUL", noOperands},
	OpIMul:  {"IMUL", noOperands},
	OpDDiv:  {"DDIV", noOperands},
	OpIDiv:  {"IDIV", noOperands},
	OpIMod:  {"IMOD", noOperands},
	OpDNeg:  {"DNEG", noOperands},
	OpINeg:  {"INEG", noOperands},
	OpIAOr:  {"IAOR", noOperands},
	OpIAAnd: {"IAAND", noOperands},
	OpIAXor: {"IAXOR", noOperands},

	OpIPrint: {"IPRINT", noOperands},
	OpDPrint: {"DPRINT", noOperands},
	OpSPrint: {"SPRINT", noOperands},

	OpI2D:   {"I2D", noOperands},
	OpD2I:   {"D2I", noOperands},
	OpISwap: {"ISWAP", noOperands},
	OpDSwap: {"DSWAP", noOperands},
	OpSSwap: {"SSWAP", noOperands},
	OpIPop:  {"IPOP", noOperands},
	OpDPop:  {"DPOP", noOperands},
	OpSPop:  {"SPOP", noOperands},

	OpLoadIVar:  {"LOADIVAR", slotOperand},
	OpLoadDVar:  {"LOADDVAR", slotOperand},
	OpLoadSVar:  {"LOADSVAR", slotOperand},
	OpStoreIVar: {"STOREIVAR", slotOperand},
	OpStoreDVar: {"STOREDVAR", slotOperand},
	OpStoreSVar: {"STORESVAR", slotOperand},

	OpLoadCtxIVar:  {"LOADCTXIVAR", ctxOperands},
	OpLoadCtxDVar:  {"LOADCTXDVAR", ctxOperands},
	OpLoadCtxSVar:  {"LOADCTXSVAR", ctxOperands},
	OpStoreCtxIVar: {"STORECTXIVAR", ctxOperands},
	OpStoreCtxDVar: {"STORECTXDVAR", ctxOperands},
	OpStoreCtxSVar: {"STORECTXSVAR", ctxOperands},

	OpJa:       {"JA", jumpOperand},
	OpIfICmpNE: {"IFICMPNE", jumpOperand},
	OpIfICmpE:  {"IFICMPE", jumpOperand},
	OpIfICmpG:  {"IFICMPG", jumpOperand},
	OpIfICmpGE: {"IFICMPGE", jumpOperand},
	OpIfICmpL:  {"IFICMPL", jumpOperand},
	OpIfICmpLE: {"IFICMPLE", jumpOperand},

	OpCall:   {"CALL", []OperandKind{OperandFunction}},
	OpReturn: {"RETURN", noOperands},
	OpStop:   {"STOP", noOperands},
}

// Lookup returns the metadata for op; ok is false for unknown opcodes.
func Lookup(op Opcode) (OpcodeInfo, bool) {
	if op == OpInvalid || op >= opCount {
		return OpcodeInfo{}, false
	}
	return opcodeTable[op], true
}

func (op Opcode) String() string {
	if info, ok := Lookup(op); ok {
		return info.Name
	}
	return fmt.Sprintf("OP_%#02x", byte(op))
}

// Width returns the encoded width of op, or 0 for unknown opcodes.
func (op Opcode) Width() int {
	info, ok := Lookup(op)
	if !ok {
		return 0
	}
	return info.Width()
}

// IsBranch reports whether op carries a branch offset.
func (op Opcode) IsBranch() bool {
	return op >= OpJa && op <= OpIfICmpLE
}
