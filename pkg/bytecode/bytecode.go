package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// UnboundOffset is the placeholder written into a branch whose label has not
// been bound yet. Verify rejects any branch still carrying it.
const UnboundOffset int32 = math.MinInt32

var (
	// ErrUnresolvedLabel is returned when a label is still unbound at the end of generation.
	ErrUnresolvedLabel = errors.New("unresolved label")
	ErrUnknownOpcode   = errors.New("unknown opcode")
)

// Bytecode is the append-only instruction buffer of one function.
type Bytecode struct {
	code   []byte
	labels []*Label
}

// Label is a deferred branch target.
type Label struct {
	owner  *Bytecode
	offset int
	bound  bool
	refs   []int // positions of offset operands waiting for the binding
}

// NewBytecode wraps an already encoded buffer, as read back from storage.
func NewBytecode(code []byte) *Bytecode {
	return &Bytecode{code: append([]byte(nil), code...)}
}

// Len returns the current length of the buffer, which is also the offset of
// the next instruction to be emitted.
func (b *Bytecode) Len() int {
	return len(b.code)
}

// Bytes returns the encoded instructions. The slice must not be modified.
func (b *Bytecode) Bytes() []byte {
	return b.code
}

// AddInsn appends an opcode byte.
func (b *Bytecode) AddInsn(op Opcode) {
	b.code = append(b.code, byte(op))
}

func (b *Bytecode) AddInt64(v int64) {
	b.code = binary.LittleEndian.AppendUint64(b.code, uint64(v))
}

func (b *Bytecode) AddDouble(v float64) {
	b.code = binary.LittleEndian.AppendUint64(b.code, math.Float64bits(v))
}

func (b *Bytecode) AddUint16(v uint16) {
	b.code = binary.LittleEndian.AppendUint16(b.code, v)
}

func (b *Bytecode) addInt32(v int32) {
	b.code = binary.LittleEndian.AppendUint32(b.code, uint32(v))
}

// NewLabel creates an unbound label owned by this buffer.
func (b *Bytecode) NewLabel() *Label {
	l := &Label{owner: b}
	b.labels = append(b.labels, l)
	return l
}

// AddBranch appends a branch instruction targeting l. If l is not bound yet
// the offset is patched when it is.
func (b *Bytecode) AddBranch(op Opcode, l *Label) error {
	if !op.IsBranch() {
		return fmt.Errorf("%s is not a branch", op)
	}
	if l.owner != b {
		return fmt.Errorf("label belongs to another function")
	}

	b.AddInsn(op)
	at := b.Len()
	if l.IsBound() {
		b.addInt32(int32(l.offset - (at + 4)))
		return nil
	}
	b.addInt32(UnboundOffset)
	l.refs = append(l.refs, at)
	return nil
}

// Bind binds l to the current end of the buffer.
func (b *Bytecode) Bind(l *Label) error {
	return l.Bind(b.Len())
}

// Bind binds the label to offset and patches every branch emitted so far.
func (l *Label) Bind(offset int) error {
	if l.IsBound() {
		return fmt.Errorf("label already bound to %d", l.offset)
	}
	if offset < 0 || offset > l.owner.Len() {
		return fmt.Errorf("label offset %d out of range [0, %d]", offset, l.owner.Len())
	}
	l.offset = offset
	l.bound = true
	for _, at := range l.refs {
		binary.LittleEndian.PutUint32(l.owner.code[at:], uint32(int32(offset-(at+4))))
	}
	l.refs = nil
	return nil
}

// IsBound reports whether the label has a target.
func (l *Label) IsBound() bool {
	return l.bound
}

// Offset returns the bound target, or -1.
func (l *Label) Offset() int {
	if !l.IsBound() {
		return -1
	}
	return l.offset
}

// Unbound returns the number of labels created on this buffer that were never bound.
func (b *Bytecode) Unbound() int {
	n := 0
	for _, l := range b.labels {
		if !l.IsBound() {
			n++
		}
	}
	return n
}

// Opcode returns the opcode at pc.
func (b *Bytecode) Opcode(pc int) Opcode {
	return Opcode(b.code[pc])
}

func (b *Bytecode) Int64At(pos int) int64 {
	return int64(binary.LittleEndian.Uint64(b.code[pos:]))
}

func (b *Bytecode) DoubleAt(pos int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.code[pos:]))
}

func (b *Bytecode) Uint16At(pos int) uint16 {
	return binary.LittleEndian.Uint16(b.code[pos:])
}

func (b *Bytecode) Int32At(pos int) int32 {
	return int32(binary.LittleEndian.Uint32(b.code[pos:]))
}

// Instruction is one decoded instruction.
type Instruction struct {
	PC       int
	Op       Opcode
	Operands []int64 // Int64, ConstID, Slot, Function and Offset operands
	Double   float64 // set for DLOAD
}

// Target returns the absolute branch target of a decoded branch.
func (in Instruction) Target() int {
	return in.PC + in.Op.Width() + int(in.Operands[0])
}

// Decode decodes the instruction at pc.
func (b *Bytecode) Decode(pc int) (Instruction, error) {
	if pc < 0 || pc >= len(b.code) {
		return Instruction{}, fmt.Errorf("pc %d out of range [0, %d)", pc, len(b.code))
	}
	op := Opcode(b.code[pc])
	info, ok := Lookup(op)
	if !ok {
		return Instruction{PC: pc, Op: op}, fmt.Errorf("%w %#02x", ErrUnknownOpcode, byte(op))
	}
	if pc+info.Width() > len(b.code) {
		return Instruction{PC: pc, Op: op}, fmt.Errorf("truncated %s", op)
	}

	in := Instruction{PC: pc, Op: op}
	pos := pc + 1
	for _, k := range info.Operands {
		switch k {
		case OperandInt64:
			in.Operands = append(in.Operands, b.Int64At(pos))
		case OperandDouble:
			in.Double = b.DoubleAt(pos)
		case OperandOffset:
			in.Operands = append(in.Operands, int64(b.Int32At(pos)))
		default:
			in.Operands = append(in.Operands, int64(b.Uint16At(pos)))
		}
		pos += k.Size()
	}
	return in, nil
}
