package interpreter

import (
	"errors"
	"fmt"
	"io"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/stack"
	"os"

	"github.com/charmbracelet/log"
)

// DefaultMaxDepth bounds the call stack unless WithMaxDepth says otherwise.
const DefaultMaxDepth = 4096

// Interpreter executes a verified Program.
type Interpreter struct {
	prog *bytecode.Program

	frame *Frame // executing frame; callers are reached through Caller
	depth int    // number of active frames

	// operand stacks shared by all frames
	ints    *stack.Stack[int64]
	doubles *stack.Stack[float64]
	strs    *stack.Stack[uint16]

	out io.Writer // output writer for print

	execStep func(*Interpreter) (halted bool, err error)

	verified bool
	started  bool
	halted   bool

	maxSteps int // maximum steps (0 = unlimited)
	steps    int // steps executed
	maxDepth int

	// instruction being executed, for error reports
	pc int
	op bytecode.Opcode
}

type Option func(*Interpreter)

// WithWriter sets the output writer for print statements
func WithWriter(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithMaxSteps sets a maximum number of interpreter steps before failing with MaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(i *Interpreter) { i.maxSteps = n }
}

// WithTrace writes every instruction to w before executing it
func WithTrace(w io.Writer) Option {
	return func(i *Interpreter) { i.execStep = traceStep(w, coreStep) }
}

// WithMaxDepth bounds the number of simultaneously active frames
func WithMaxDepth(n int) Option {
	return func(i *Interpreter) { i.maxDepth = n }
}

// NewInterpreter creates a new Interpreter instance
func NewInterpreter(prog *bytecode.Program, opts ...Option) *Interpreter {
	it := &Interpreter{
		prog:     prog,
		ints:     stack.NewStack[int64](),
		doubles:  stack.NewStack[float64](),
		strs:     stack.NewStack[uint16](),
		maxDepth: DefaultMaxDepth,
	}

	for _, o := range opts {
		o(it)
	}

	if it.out == nil {
		it.out = os.Stdout
	}

	if it.execStep == nil {
		it.execStep = coreStep
	}

	return it
}

// Reset clears runtime state so the program can run again from the start
func (i *Interpreter) Reset() {
	i.frame = nil
	i.depth = 0
	i.ints.Reset()
	i.doubles.Reset()
	i.strs.Reset()
	i.started = false
	i.halted = false
	i.steps = 0
}

// Verify validates the program. Execution never starts on a program that
// fails verification, so unresolved branches are rejected up front.
func (i *Interpreter) Verify() error {
	if i.verified {
		return nil
	}
	if err := bytecode.Verify(i.prog); err != nil {
		return err
	}
	i.verified = true
	return nil
}

// Step executes a single instruction, returning (halted, error)
func (i *Interpreter) Step() (bool, error) {
	if i.halted {
		return true, ErrHalted
	}

	if !i.started {
		if err := i.start(); err != nil {
			return false, err
		}
	}

	if i.maxSteps > 0 && i.steps >= i.maxSteps {
		i.pc = i.frame.IP
		if code := i.frame.Function.Code; i.pc < code.Len() {
			i.op = code.Opcode(i.pc)
		}
		return false, i.fault(MaxStepsExceeded, "limit of %d steps reached", i.maxSteps)
	}

	halted, err := i.execStep(i)
	i.steps++
	if halted || err != nil {
		i.halted = true
	}

	return halted, err
}

// Run executes until halt or error
func (i *Interpreter) Run() error {
	for {
		halted, err := i.Step()
		if err != nil {
			return err
		}

		if halted {
			log.Debug("Interpreter halted", "steps", i.steps)
			return nil
		}
	}
}

func (i *Interpreter) start() error {
	if err := i.Verify(); err != nil {
		var ve *bytecode.VerifyError
		if errors.Is(err, bytecode.ErrUnknownOpcode) && errors.As(err, &ve) {
			return &RuntimeError{Kind: UnknownOpcode, Function: ve.Function, Name: ve.Name, PC: ve.PC, Op: ve.Op, Msg: ve.Msg}
		}
		return fmt.Errorf("program rejected: %w", err)
	}

	entry, _ := i.prog.FunctionByID(i.prog.Entry)
	i.frame = newFrame(entry, nil, 0)
	i.depth = 1
	i.started = true

	log.Debug("Interpreter start", "entry", entry.Name, "functions", len(i.prog.Functions))
	return nil
}

// PC returns the instruction pointer of the executing frame
func (i *Interpreter) PC() int {
	if i.frame == nil {
		return 0
	}
	return i.frame.IP
}

// CurrentFrame returns the executing frame, nil before start
func (i *Interpreter) CurrentFrame() *Frame {
	return i.frame
}

// Depth returns the number of active frames
func (i *Interpreter) Depth() int {
	return i.depth
}

// StackDepths reports the sizes of the integer, double and string operand stacks
func (i *Interpreter) StackDepths() (ints, doubles, strs int) {
	return i.ints.Size(), i.doubles.Size(), i.strs.Size()
}

// Steps returns the number of instructions executed so far
func (i *Interpreter) Steps() int {
	return i.steps
}

// pushFrame pushes a call frame for fn, returning to returnTo in the current frame
func (i *Interpreter) pushFrame(fn *bytecode.Function, returnTo int) (*Frame, error) {
	if i.maxDepth > 0 && i.depth >= i.maxDepth {
		return nil, i.fault(StackOverflow, "call depth limit %d reached calling %s", i.maxDepth, fn.Name)
	}

	f := newFrame(fn, i.frame, returnTo)
	i.frame = f
	i.depth++
	return f, nil
}

// popFrame pops the executing frame
func (i *Interpreter) popFrame() *Frame {
	f := i.frame
	if f == nil {
		return nil
	}

	i.frame = f.Caller
	i.depth--
	return f
}

func (i *Interpreter) fault(kind RuntimeErrorKind, format string, args ...any) *RuntimeError {
	e := &RuntimeError{Kind: kind, PC: i.pc, Op: i.op, Msg: fmt.Sprintf(format, args...)}
	if i.frame != nil {
		e.Function = i.frame.Function.ID
		e.Name = i.frame.Function.Name
	}
	return e
}

// Exec verifies and runs prog, writing print output to w
func Exec(prog *bytecode.Program, w io.Writer, opts ...Option) error {
	it := NewInterpreter(prog, append([]Option{WithWriter(w)}, opts...)...)
	return it.Run()
}
