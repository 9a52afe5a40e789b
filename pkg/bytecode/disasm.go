package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats a program as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{w: w}
}

// Disassemble dumps the constant pool followed by every function in id order.
func (d *Disassembler) Disassemble(p *Program) error {
	if len(p.constants) > 1 {
		d.startSection()
		fmt.Fprintln(d.w, "constants:")
		for id, s := range p.constants {
			fmt.Fprintf(d.w, "  #%d %s\n", id, strconv.Quote(s))
		}
	}
	for _, f := range p.Functions {
		if err := d.DisassembleFunction(p, f); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleFunction dumps a single function.
func (d *Disassembler) DisassembleFunction(p *Program, f *Function) error {
	d.startSection()

	parent := "-"
	if id, ok := f.ParentID(); ok {
		parent = strconv.Itoa(int(id))
	}
	params := make([]string, 0, len(f.Params))
	for _, t := range f.Params {
		params = append(params, t.String())
	}
	entry := ""
	if f.ID == p.Entry {
		entry = " [entry]"
	}
	fmt.Fprintf(d.w, "func %s #%d (%s) %s parent=%s slots=%d%s\n",
		f.Name, f.ID, strings.Join(params, ", "), f.Returns, parent, f.SlotCount(), entry)

	code := f.Code
	for pc := 0; pc < code.Len(); {
		in, err := code.Decode(pc)
		if err != nil {
			return fmt.Errorf("disassemble %s at %d: %w", f.Name, pc, err)
		}
		operands := d.formatOperands(p, f, in)
		if operands != "" {
			fmt.Fprintf(d.w, "%04d %-14s %s\n", pc, in.Op, operands)
		} else {
			fmt.Fprintf(d.w, "%04d %s\n", pc, in.Op)
		}
		pc += in.Op.Width()
	}
	return nil
}

func (d *Disassembler) formatOperands(p *Program, f *Function, in Instruction) string {
	info, _ := Lookup(in.Op)
	parts := make([]string, 0, len(info.Operands))
	for i, k := range info.Operands {
		switch k {
		case OperandInt64:
			parts = append(parts, strconv.FormatInt(in.Operands[i], 10))
		case OperandDouble:
			parts = append(parts, strconv.FormatFloat(in.Double, 'g', -1, 64))
		case OperandConstID:
			s, _ := p.Constant(uint16(in.Operands[i]))
			parts = append(parts, fmt.Sprintf("#%d ; %s", in.Operands[i], strconv.Quote(s)))
		case OperandSlot:
			owner := f
			if i > 0 {
				owner, _ = p.FunctionByID(uint16(in.Operands[i-1]))
			}
			parts = append(parts, fmt.Sprintf("@%d", in.Operands[i])+slotName(owner, in.Operands[i]))
		case OperandFunction:
			name := "?"
			if f, ok := p.FunctionByID(uint16(in.Operands[i])); ok {
				name = f.Name
			}
			parts = append(parts, fmt.Sprintf("%s#%d", name, in.Operands[i]))
		case OperandOffset:
			if int32(in.Operands[i]) == UnboundOffset {
				parts = append(parts, "-> <unbound>")
			} else {
				parts = append(parts, fmt.Sprintf("-> %04d", in.Target()))
			}
		}
	}
	return strings.Join(parts, " ")
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

// slotName annotates a slot with its variable name. Programs read back from
// storage carry no names.
func slotName(f *Function, slot int64) string {
	if f == nil {
		return ""
	}
	locals := f.Locals()
	if slot < 0 || int(slot) >= len(locals) {
		return ""
	}
	return " ; " + locals[slot].Name
}
