package interpreter

import "mathvm/pkg/bytecode"

// Frame represents a function call frame.
type Frame struct {
	Function   *bytecode.Function // function executing in this frame
	IP         int                // instruction pointer for this frame (offset into the function's code)
	Locals     []uint64           // slot values, encoded by the slot's static type
	ReturnToIP int                // IP in caller to continue after return
	Caller     *Frame             // calling frame, nil for the entry frame
}

func newFrame(fn *bytecode.Function, caller *Frame, returnTo int) *Frame {
	return &Frame{
		Function:   fn,
		IP:         0,
		Locals:     make([]uint64, fn.SlotCount()),
		ReturnToIP: returnTo,
		Caller:     caller,
	}
}

// enclosing walks the call chain from f outwards and returns the nearest
// active frame of function id.
func (f *Frame) enclosing(id uint16) *Frame {
	for fr := f; fr != nil; fr = fr.Caller {
		if fr.Function.ID == id {
			return fr
		}
	}
	return nil
}
