package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"mathvm/pkg/ast"
)

// Binary layout, little-endian:
//
//	u32 function count
//	  per function:
//	    u16 name length, name bytes
//	    u16 parent id + 1 (0: no parent)
//	    u16 slot count
//	    u8 return type, u16 param count, u8 per param type
//	    u32 code length, code bytes
//	u32 constant count
//	  per constant: u32 length, bytes
//	u16 entry function id

// MarshalBinary encodes the program in its persistent form.
func (p *Program) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := &binWriter{w: &buf}

	w.u32(uint32(len(p.Functions)))
	for _, f := range p.Functions {
		w.str16(f.Name)
		parent := uint16(0)
		if id, ok := f.ParentID(); ok {
			parent = id + 1
		}
		w.u16(parent)
		w.u16(uint16(f.SlotCount()))
		w.u8(uint8(f.Returns))
		w.u16(uint16(len(f.Params)))
		for _, t := range f.Params {
			w.u8(uint8(t))
		}
		w.u32(uint32(f.Code.Len()))
		w.raw(f.Code.Bytes())
	}

	w.u32(uint32(len(p.constants)))
	for _, s := range p.constants {
		w.u32(uint32(len(s)))
		w.raw([]byte(s))
	}
	w.u16(p.Entry)

	if w.err != nil {
		return nil, fmt.Errorf("bytecode: marshal: %w", w.err)
	}
	return buf.Bytes(), nil
}

// UnmarshalProgram decodes a program written by MarshalBinary. Local names
// are not persisted; frames only need the slot counts.
func UnmarshalProgram(data []byte) (*Program, error) {
	r := &binReader{r: bytes.NewReader(data)}
	p := &Program{constIndex: make(map[string]uint16)}

	n := r.u32()
	if n > math.MaxUint16 {
		return nil, fmt.Errorf("bytecode: unmarshal: %d functions exceed the id range", n)
	}
	var parents []uint16
	for i := uint32(0); i < n && r.err == nil; i++ {
		f := &Function{ID: uint16(i), locals: make(map[string]*Local)}
		f.Name = r.str16()
		parents = append(parents, r.u16())
		f.slots = int(r.u16())
		f.Returns = ast.Type(r.u8())
		nparams := r.u16()
		for j := uint16(0); j < nparams && r.err == nil; j++ {
			f.Params = append(f.Params, ast.Type(r.u8()))
		}
		f.Code = NewBytecode(r.raw(int(r.u32())))
		p.Functions = append(p.Functions, f)
	}

	nconst := r.u32()
	if nconst > math.MaxUint16+1 {
		return nil, fmt.Errorf("bytecode: unmarshal: %d constants exceed the id range", nconst)
	}
	for i := uint32(0); i < nconst && r.err == nil; i++ {
		s := string(r.raw(int(r.u32())))
		p.constIndex[s] = uint16(len(p.constants))
		p.constants = append(p.constants, s)
	}
	p.Entry = r.u16()

	if r.err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal: %w", r.err)
	}
	if r.r.Len() != 0 {
		return nil, fmt.Errorf("bytecode: unmarshal: %d trailing bytes", r.r.Len())
	}

	for i, parent := range parents {
		if parent == 0 {
			continue
		}
		if int(parent-1) >= len(p.Functions) {
			return nil, fmt.Errorf("bytecode: unmarshal: function %d has unknown parent %d", i, parent-1)
		}
		p.Functions[i].Parent = p.Functions[parent-1]
	}
	return p, nil
}

type binWriter struct {
	w   io.Writer
	err error
}

func (w *binWriter) write(v any) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *binWriter) u8(v uint8)   { w.write(v) }
func (w *binWriter) u16(v uint16) { w.write(v) }
func (w *binWriter) u32(v uint32) { w.write(v) }

func (w *binWriter) raw(b []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
}

func (w *binWriter) str16(s string) {
	if len(s) > 0xffff {
		w.err = errors.New("name too long")
		return
	}
	w.u16(uint16(len(s)))
	w.raw([]byte(s))
}

type binReader struct {
	r   *bytes.Reader
	err error
}

func (r *binReader) read(v any) {
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, v)
	}
}

func (r *binReader) u8() (v uint8)   { r.read(&v); return }
func (r *binReader) u16() (v uint16) { r.read(&v); return }
func (r *binReader) u32() (v uint32) { r.read(&v); return }

func (r *binReader) raw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.r.Len() {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := make([]byte, n)
	_, r.err = io.ReadFull(r.r, b)
	return b
}

func (r *binReader) str16() string {
	return string(r.raw(int(r.u16())))
}
