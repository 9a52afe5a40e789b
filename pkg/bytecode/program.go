package bytecode

import (
	"fmt"
	"math"
	"mathvm/pkg/ast"
)

// Local is a variable bound to a slot of its function's frame.
type Local struct {
	Name string
	Type ast.Type
	Slot uint16
}

// Function is one compiled function: its lexical parent, typed parameters,
// slot assignments and instruction buffer.
type Function struct {
	ID      uint16
	Name    string
	Parent  *Function
	Params  []ast.Type
	Returns ast.Type
	Code    *Bytecode

	locals map[string]*Local
	order  []*Local
	slots  int
}

// ParentID returns the id of the lexically enclosing function.
func (f *Function) ParentID() (uint16, bool) {
	if f.Parent == nil {
		return 0, false
	}
	return f.Parent.ID, true
}

// Declare assigns the next free slot to name. ok is false if name already has a slot.
func (f *Function) Declare(name string, typ ast.Type) (local *Local, ok bool, err error) {
	if l, exists := f.locals[name]; exists {
		return l, false, nil
	}
	if f.slots >= math.MaxUint16 {
		return nil, false, fmt.Errorf("function %s: too many locals", f.Name)
	}

	l := &Local{Name: name, Type: typ, Slot: uint16(f.slots)}
	f.slots++
	f.locals[name] = l
	f.order = append(f.order, l)
	return l, true, nil
}

// Lookup finds a local declared directly in f.
func (f *Function) Lookup(name string) (*Local, bool) {
	l, ok := f.locals[name]
	return l, ok
}

// Locals returns the declared locals in slot order.
func (f *Function) Locals() []*Local {
	return f.order
}

// SlotCount is the size of a frame's locals array for f.
func (f *Function) SlotCount() int {
	return f.slots
}

// Program is the output of one compilation: the function table, the
// interned string constants and the entry function.
type Program struct {
	Functions []*Function
	Entry     uint16

	constants  []string
	constIndex map[string]uint16
}

// NewProgram creates an empty program. The empty string is always constant 0.
func NewProgram() *Program {
	p := &Program{constIndex: make(map[string]uint16)}
	p.MakeStringConstant("")
	return p
}

// AddFunction registers a new function and assigns it the next id.
func (p *Program) AddFunction(name string, parent *Function, params []ast.Param, returns ast.Type) (*Function, error) {
	// a persisted parent is stored as id + 1 in a u16
	if len(p.Functions) >= math.MaxUint16 {
		return nil, fmt.Errorf("too many functions")
	}

	f := &Function{
		ID:      uint16(len(p.Functions)),
		Name:    name,
		Parent:  parent,
		Returns: returns,
		Code:    &Bytecode{},
		locals:  make(map[string]*Local),
	}
	for _, param := range params {
		f.Params = append(f.Params, param.Type)
	}
	p.Functions = append(p.Functions, f)
	return f, nil
}

// FunctionByID returns the function with the given id.
func (p *Program) FunctionByID(id uint16) (*Function, bool) {
	if int(id) >= len(p.Functions) {
		return nil, false
	}
	return p.Functions[id], true
}

// MakeStringConstant interns s and returns its id; duplicates reuse the id.
func (p *Program) MakeStringConstant(s string) (uint16, error) {
	if id, ok := p.constIndex[s]; ok {
		return id, nil
	}
	if len(p.constants) > math.MaxUint16 {
		return 0, fmt.Errorf("too many string constants")
	}

	id := uint16(len(p.constants))
	p.constants = append(p.constants, s)
	p.constIndex[s] = id
	return id, nil
}

// Constant returns the string with the given id.
func (p *Program) Constant(id uint16) (string, bool) {
	if int(id) >= len(p.constants) {
		return "", false
	}
	return p.constants[id], true
}

// Constants returns the constant pool in id order.
func (p *Program) Constants() []string {
	return p.constants
}

// CheckLabels fails if any function still has an unbound label.
func (p *Program) CheckLabels() error {
	for _, f := range p.Functions {
		if n := f.Code.Unbound(); n > 0 {
			return fmt.Errorf("function %s: %d %w(s)", f.Name, n, ErrUnresolvedLabel)
		}
	}
	return nil
}
