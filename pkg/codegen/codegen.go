// Package codegen lowers a resolved tree into stack bytecode.
//
// Operands of every binary operator are evaluated left first, then right;
// call arguments are evaluated left to right. A compile-time type stack
// mirrors the static types the runtime per-type stacks will hold and drives
// instruction selection.
package codegen

import (
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/diag"
	"mathvm/pkg/resolver"
	"mathvm/pkg/stack"

	"github.com/charmbracelet/log"
)

// Codegen holds the read-only inputs of a generation pass. Per-function
// state lives in a context passed explicitly through the traversal.
type Codegen struct {
	res  *resolver.Resolution
	prog *bytecode.Program
}

// fnContext is the state of the function currently being generated.
type fnContext struct {
	fn    *bytecode.Function
	code  *bytecode.Bytecode
	types *stack.Stack[ast.Type] // static types of the values on the runtime stacks
	tail  bytecode.Opcode        // last emitted opcode, OpInvalid after a label binding
}

// Generate resolves prog and generates bytecode for every function in it.
func Generate(prog *ast.Program) (*bytecode.Program, error) {
	res, err := resolver.Resolve(prog)
	if err != nil {
		return nil, err
	}
	return GenerateResolved(prog, res)
}

// GenerateResolved generates bytecode for a program already passed through the resolver.
func GenerateResolved(prog *ast.Program, res *resolver.Resolution) (*bytecode.Program, error) {
	c := &Codegen{res: res, prog: res.Program}

	if err := c.function(prog.Top, res.Top); err != nil {
		return nil, err
	}
	if err := c.prog.CheckLabels(); err != nil {
		return nil, diag.Errorf(diag.UnresolvedLabel, prog.Top.Pos(), "%v", err)
	}
	return c.prog, nil
}

func newContext(fn *bytecode.Function) *fnContext {
	return &fnContext{fn: fn, code: fn.Code, types: stack.NewStack[ast.Type]()}
}

// function generates fn's body into its own buffer. Nested declarations
// recurse with a fresh context and leave the caller's untouched.
func (c *Codegen) function(decl *ast.FuncDecl, fn *bytecode.Function) error {
	ctx := newContext(fn)

	if err := c.block(ctx, decl.Body); err != nil {
		return err
	}

	if ctx.tail != bytecode.OpReturn && ctx.tail != bytecode.OpStop {
		if fn.ID == c.prog.Entry {
			ctx.emit(bytecode.OpStop)
		} else {
			// falling off a value-returning function returns the zero value
			if fn.Returns != ast.Void {
				if err := c.zero(ctx, fn.Returns, decl.Pos()); err != nil {
					return err
				}
				ctx.types.Pop()
			}
			ctx.emit(bytecode.OpReturn)
		}
	}

	if n := ctx.code.Unbound(); n > 0 {
		return diag.Errorf(diag.UnresolvedLabel, decl.Pos(), "%d unbound label(s) in %s", n, fn.Name)
	}

	log.Debug("Generated function", "name", fn.Name, "id", fn.ID, "bytes", ctx.code.Len())
	return nil
}

func (ctx *fnContext) emit(op bytecode.Opcode) {
	ctx.code.AddInsn(op)
	ctx.tail = op
}

func (ctx *fnContext) emitSlot(op bytecode.Opcode, slot uint16) {
	ctx.emit(op)
	ctx.code.AddUint16(slot)
}

func (ctx *fnContext) emitCtx(op bytecode.Opcode, fn, slot uint16) {
	ctx.emit(op)
	ctx.code.AddUint16(fn)
	ctx.code.AddUint16(slot)
}

func (ctx *fnContext) branch(op bytecode.Opcode, l *bytecode.Label, pos ast.Position) error {
	if err := ctx.code.AddBranch(op, l); err != nil {
		return diag.Errorf(diag.UnresolvedLabel, pos, "%v", err)
	}
	ctx.tail = op
	return nil
}

func (ctx *fnContext) bind(l *bytecode.Label, pos ast.Position) error {
	if err := ctx.code.Bind(l); err != nil {
		return diag.Errorf(diag.UnresolvedLabel, pos, "%v", err)
	}
	ctx.tail = bytecode.OpInvalid
	return nil
}

func (ctx *fnContext) popType() ast.Type {
	t, ok := ctx.types.Pop()
	if !ok {
		return ast.Invalid
	}
	return t
}

func (ctx *fnContext) topType() ast.Type {
	t, ok := ctx.types.Peek()
	if !ok {
		return ast.Invalid
	}
	return t
}

func (c *Codegen) block(ctx *fnContext, b *ast.Block) error {
	if b == nil {
		return nil
	}
	for _, s := range b.Stmts {
		if err := c.stmt(ctx, s); err != nil {
			return err
		}
		if ctx.types.Size() != 0 {
			return diag.Errorf(diag.TypeMismatch, s.Pos(), "statement leaves %d value(s) on the stack", ctx.types.Size())
		}
	}
	return nil
}

func (c *Codegen) stmt(ctx *fnContext, s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.VarDecl:
		if n.Init == nil {
			return nil
		}
		sym := c.res.Vars[n]
		if err := c.value(ctx, n.Init); err != nil {
			return err
		}
		if err := c.coerce(ctx, sym.Local.Type, n.Pos()); err != nil {
			return err
		}
		return c.storeVar(ctx, sym)

	case *ast.Store:
		return c.store(ctx, n)

	case *ast.ExprStmt:
		if err := c.expr(ctx, n.X); err != nil {
			return err
		}
		for ctx.types.Size() > 0 {
			c.discard(ctx)
		}
		return nil

	case *ast.If:
		return c.ifStmt(ctx, n)

	case *ast.While:
		return c.loop(ctx, n.Cond, nil, n.Body, n.Pos())

	case *ast.For:
		if n.Init != nil {
			if err := c.stmt(ctx, n.Init); err != nil {
				return err
			}
		}
		return c.loop(ctx, n.Cond, n.Post, n.Body, n.Pos())

	case *ast.Return:
		return c.ret(ctx, n)

	case *ast.Print:
		for _, operand := range n.Operands {
			if err := c.value(ctx, operand); err != nil {
				return err
			}
			switch ctx.popType() {
			case ast.Int:
				ctx.emit(bytecode.OpIPrint)
			case ast.Double:
				ctx.emit(bytecode.OpDPrint)
			case ast.String:
				ctx.emit(bytecode.OpSPrint)
			default:
				return noValue(operand)
			}
		}
		return nil

	case *ast.Block:
		return c.block(ctx, n)

	case *ast.FuncDecl:
		fn, ok := c.res.Funcs[n]
		if !ok {
			return unsupported(n)
		}
		return c.function(n, fn)

	default:
		return unsupported(s)
	}
}

func (c *Codegen) store(ctx *fnContext, n *ast.Store) error {
	sym := c.res.Vars[n]

	if n.Op == ast.OpAssign {
		if err := c.value(ctx, n.Value); err != nil {
			return err
		}
	} else {
		// compound assignment: load, evaluate, combine, store
		op, ok := compoundOps[n.Op]
		if !ok {
			return unsupported(n)
		}
		c.loadVar(ctx, sym)
		if err := c.value(ctx, n.Value); err != nil {
			return err
		}
		if err := c.arith(ctx, op, n.Pos()); err != nil {
			return err
		}
	}

	if err := c.coerce(ctx, sym.Local.Type, n.Pos()); err != nil {
		return err
	}
	return c.storeVar(ctx, sym)
}

var compoundOps = map[ast.Op]ast.Op{
	ast.OpIncrSet: ast.OpAdd,
	ast.OpDecrSet: ast.OpSub,
	ast.OpMulSet:  ast.OpMul,
	ast.OpDivSet:  ast.OpDiv,
}

func (c *Codegen) ifStmt(ctx *fnContext, n *ast.If) error {
	if err := c.condition(ctx, n.Cond); err != nil {
		return err
	}
	elseLabel := ctx.code.NewLabel()
	if err := ctx.branch(bytecode.OpIfICmpE, elseLabel, n.Pos()); err != nil {
		return err
	}

	if err := c.block(ctx, n.Then); err != nil {
		return err
	}

	if n.Else == nil {
		return ctx.bind(elseLabel, n.Pos())
	}

	end := ctx.code.NewLabel()
	if err := ctx.branch(bytecode.OpJa, end, n.Pos()); err != nil {
		return err
	}
	if err := ctx.bind(elseLabel, n.Pos()); err != nil {
		return err
	}
	if err := c.block(ctx, n.Else); err != nil {
		return err
	}
	return ctx.bind(end, n.Pos())
}

// loop lowers while and for loops: test at the head, exit when zero, body,
// optional post statement, jump back.
func (c *Codegen) loop(ctx *fnContext, cond ast.Expr, post ast.Stmt, body *ast.Block, pos ast.Position) error {
	head := ctx.code.NewLabel()
	exit := ctx.code.NewLabel()

	if err := ctx.bind(head, pos); err != nil {
		return err
	}
	if err := c.condition(ctx, cond); err != nil {
		return err
	}
	if err := ctx.branch(bytecode.OpIfICmpE, exit, pos); err != nil {
		return err
	}

	if err := c.block(ctx, body); err != nil {
		return err
	}
	if post != nil {
		if err := c.stmt(ctx, post); err != nil {
			return err
		}
	}

	if err := ctx.branch(bytecode.OpJa, head, pos); err != nil {
		return err
	}
	return ctx.bind(exit, pos)
}

// condition evaluates an integer condition and pushes the zero it is compared
// against, ready for an IFICMPE to the false path.
func (c *Codegen) condition(ctx *fnContext, cond ast.Expr) error {
	if err := c.value(ctx, cond); err != nil {
		return err
	}
	if t := ctx.popType(); t != ast.Int {
		return diag.Mismatch(cond.Pos(), "condition must be int, found %s", t)
	}
	ctx.emit(bytecode.OpILoad0)
	return nil
}

func (c *Codegen) ret(ctx *fnContext, n *ast.Return) error {
	if ctx.fn.Returns == ast.Void {
		if n.Value != nil {
			return diag.Mismatch(n.Pos(), "%s returns void but a value is returned", ctx.fn.Name)
		}
		ctx.emit(bytecode.OpReturn)
		return nil
	}

	if n.Value == nil {
		return diag.Mismatch(n.Pos(), "%s must return %s", ctx.fn.Name, ctx.fn.Returns)
	}
	if err := c.value(ctx, n.Value); err != nil {
		return err
	}
	if err := c.coerce(ctx, ctx.fn.Returns, n.Pos()); err != nil {
		return err
	}
	ctx.popType()
	ctx.emit(bytecode.OpReturn)
	return nil
}

// coerce converts the value on top of the type stack to want. Only the
// widening int to double conversion is implicit.
func (c *Codegen) coerce(ctx *fnContext, want ast.Type, pos ast.Position) error {
	have := ctx.topType()
	switch {
	case have == want:
		return nil
	case have == ast.Int && want == ast.Double:
		ctx.emit(bytecode.OpI2D)
		ctx.types.Pop()
		ctx.types.Push(ast.Double)
		return nil
	case have == ast.Invalid || have == ast.Void:
		return diag.Mismatch(pos, "expression has no value, expected %s", want)
	default:
		return diag.Mismatch(pos, "cannot use %s as %s", have, want)
	}
}

// discard pops the top value with the pop opcode of its type.
func (c *Codegen) discard(ctx *fnContext) {
	switch ctx.popType() {
	case ast.Int:
		ctx.emit(bytecode.OpIPop)
	case ast.Double:
		ctx.emit(bytecode.OpDPop)
	case ast.String:
		ctx.emit(bytecode.OpSPop)
	}
}

var (
	loadOps = map[ast.Type][2]bytecode.Opcode{
		ast.Int:    {bytecode.OpLoadIVar, bytecode.OpLoadCtxIVar},
		ast.Double: {bytecode.OpLoadDVar, bytecode.OpLoadCtxDVar},
		ast.String: {bytecode.OpLoadSVar, bytecode.OpLoadCtxSVar},
	}
	storeOps = map[ast.Type][2]bytecode.Opcode{
		ast.Int:    {bytecode.OpStoreIVar, bytecode.OpStoreCtxIVar},
		ast.Double: {bytecode.OpStoreDVar, bytecode.OpStoreCtxDVar},
		ast.String: {bytecode.OpStoreSVar, bytecode.OpStoreCtxSVar},
	}
)

// loadVar pushes a variable. Variables of the function being generated use
// the slot alone; variables of an enclosing function are addressed by
// (owning function id, slot).
func (c *Codegen) loadVar(ctx *fnContext, sym *resolver.Symbol) {
	ops := loadOps[sym.Local.Type]
	if sym.Owner == ctx.fn {
		ctx.emitSlot(ops[0], sym.Local.Slot)
	} else {
		ctx.emitCtx(ops[1], sym.Owner.ID, sym.Local.Slot)
	}
	ctx.types.Push(sym.Local.Type)
}

func (c *Codegen) storeVar(ctx *fnContext, sym *resolver.Symbol) error {
	ops := storeOps[sym.Local.Type]
	if sym.Owner == ctx.fn {
		ctx.emitSlot(ops[0], sym.Local.Slot)
	} else {
		ctx.emitCtx(ops[1], sym.Owner.ID, sym.Local.Slot)
	}
	ctx.popType()
	return nil
}
