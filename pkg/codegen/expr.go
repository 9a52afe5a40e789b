package codegen

import (
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/diag"
)

// Opcodes per operator: index 0 for int operands, 1 for double operands.
// OpInvalid marks an operator with no double form.
var arithOps = map[ast.Op][2]bytecode.Opcode{
	ast.OpAdd:    {bytecode.OpIAdd, bytecode.OpDAdd},
	ast.OpSub:    {bytecode.OpISub, bytecode.OpDSub},
	ast.OpMul:    {bytecode.OpIMul, bytecode.OpDMul},
	ast.OpDiv:    {bytecode.OpIDiv, bytecode.OpDDiv},
	ast.OpMod:    {bytecode.OpIMod, bytecode.OpInvalid},
	ast.OpBitOr:  {bytecode.OpIAOr, bytecode.OpInvalid},
	ast.OpBitAnd: {bytecode.OpIAAnd, bytecode.OpInvalid},
	ast.OpBitXor: {bytecode.OpIAXor, bytecode.OpInvalid},
}

var compareOps = map[ast.Op]bytecode.Opcode{
	ast.OpEq: bytecode.OpIfICmpE,
	ast.OpNe: bytecode.OpIfICmpNE,
	ast.OpGt: bytecode.OpIfICmpG,
	ast.OpGe: bytecode.OpIfICmpGE,
	ast.OpLt: bytecode.OpIfICmpL,
	ast.OpLe: bytecode.OpIfICmpLE,
}

// expr emits e, leaving one value of its static type on the runtime stacks
// (none for a call to a void function) and pushing that type.
func (c *Codegen) expr(ctx *fnContext, e ast.Expr) error {
	switch n := e.(type) {
	case *ast.IntLiteral:
		switch n.Value {
		case 0:
			ctx.emit(bytecode.OpILoad0)
		case 1:
			ctx.emit(bytecode.OpILoad1)
		default:
			ctx.emit(bytecode.OpILoad)
			ctx.code.AddInt64(n.Value)
		}
		ctx.types.Push(ast.Int)
		return nil

	case *ast.DoubleLiteral:
		ctx.emit(bytecode.OpDLoad)
		ctx.code.AddDouble(n.Value)
		ctx.types.Push(ast.Double)
		return nil

	case *ast.StringLiteral:
		id, err := c.prog.MakeStringConstant(n.Value)
		if err != nil {
			return diag.Errorf(diag.UnsupportedConstruct, n.Pos(), "%v", err)
		}
		ctx.emit(bytecode.OpSLoad)
		ctx.code.AddUint16(id)
		ctx.types.Push(ast.String)
		return nil

	case *ast.Load:
		sym, ok := c.res.Vars[n]
		if !ok {
			return diag.UndefinedVariable(n.Name, n.Pos())
		}
		c.loadVar(ctx, sym)
		return nil

	case *ast.BinaryOp:
		switch {
		case n.Op == ast.OpAnd || n.Op == ast.OpOr:
			return c.logical(ctx, n)
		case n.Op.IsComparison():
			return c.compare(ctx, n)
		}
		if err := c.value(ctx, n.Left); err != nil {
			return err
		}
		if err := c.value(ctx, n.Right); err != nil {
			return err
		}
		return c.arith(ctx, n.Op, n.Pos())

	case *ast.UnaryOp:
		return c.unary(ctx, n)

	case *ast.Call:
		return c.call(ctx, n)

	default:
		// native calls included: there is no lowering for them
		return unsupported(e)
	}
}

// arith combines the two topmost values. Mixed int/double operands promote
// the int operand to double; when that operand is the left one it sits
// below the right one, so the converted value is swapped back under it.
func (c *Codegen) arith(ctx *fnContext, op ast.Op, pos ast.Position) error {
	ops, ok := arithOps[op]
	if !ok {
		return diag.Errorf(diag.UnsupportedConstruct, pos, "operator %s has no lowering", op)
	}

	right := ctx.popType()
	left := ctx.popType()
	if !isNumeric(left) || !isNumeric(right) {
		return diag.Mismatch(pos, "operator %s is not defined on %s and %s", op, left, right)
	}

	if left == ast.Int && right == ast.Int {
		ctx.emit(ops[0])
		ctx.types.Push(ast.Int)
		return nil
	}

	if ops[1] == bytecode.OpInvalid {
		return diag.Mismatch(pos, "operator %s requires int operands, found %s and %s", op, left, right)
	}

	switch {
	case left == ast.Int:
		ctx.emit(bytecode.OpI2D)
		ctx.emit(bytecode.OpDSwap)
	case right == ast.Int:
		ctx.emit(bytecode.OpI2D)
	}
	ctx.emit(ops[1])
	ctx.types.Push(ast.Double)
	return nil
}

// compare lowers a comparison through a branch: the true path pushes 1, the
// false path pushes 0, and both meet at the end label.
func (c *Codegen) compare(ctx *fnContext, n *ast.BinaryOp) error {
	if err := c.value(ctx, n.Left); err != nil {
		return err
	}
	if err := c.value(ctx, n.Right); err != nil {
		return err
	}
	right := ctx.popType()
	left := ctx.popType()
	if left != ast.Int || right != ast.Int {
		return diag.Mismatch(n.Pos(), "comparison %s requires int operands, found %s and %s", n.Op, left, right)
	}

	return c.materialize(ctx, compareOps[n.Op], n.Pos())
}

// materialize emits the branch op (which consumes two ints) and turns its
// outcome into 1 when taken, 0 otherwise.
func (c *Codegen) materialize(ctx *fnContext, op bytecode.Opcode, pos ast.Position) error {
	whenTrue := ctx.code.NewLabel()
	end := ctx.code.NewLabel()

	if err := ctx.branch(op, whenTrue, pos); err != nil {
		return err
	}
	ctx.emit(bytecode.OpILoad0)
	if err := ctx.branch(bytecode.OpJa, end, pos); err != nil {
		return err
	}
	if err := ctx.bind(whenTrue, pos); err != nil {
		return err
	}
	ctx.emit(bytecode.OpILoad1)
	if err := ctx.bind(end, pos); err != nil {
		return err
	}
	ctx.types.Push(ast.Int)
	return nil
}

// logical lowers && and || with short-circuit evaluation: the right operand
// is only reached when the left one does not decide the result.
func (c *Codegen) logical(ctx *fnContext, n *ast.BinaryOp) error {
	if err := c.value(ctx, n.Left); err != nil {
		return err
	}
	if t := ctx.popType(); t != ast.Int {
		return diag.Mismatch(n.Left.Pos(), "operand of %s must be int, found %s", n.Op, t)
	}

	evalRight := ctx.code.NewLabel()
	end := ctx.code.NewLabel()

	ctx.emit(bytecode.OpILoad0)
	if n.Op == ast.OpAnd {
		// left != 0: the result is the right operand, else 0
		if err := ctx.branch(bytecode.OpIfICmpNE, evalRight, n.Pos()); err != nil {
			return err
		}
		ctx.emit(bytecode.OpILoad0)
	} else {
		// left == 0: the result is the right operand, else 1
		if err := ctx.branch(bytecode.OpIfICmpE, evalRight, n.Pos()); err != nil {
			return err
		}
		ctx.emit(bytecode.OpILoad1)
	}
	if err := ctx.branch(bytecode.OpJa, end, n.Pos()); err != nil {
		return err
	}

	if err := ctx.bind(evalRight, n.Pos()); err != nil {
		return err
	}
	if err := c.value(ctx, n.Right); err != nil {
		return err
	}
	if t := ctx.popType(); t != ast.Int {
		return diag.Mismatch(n.Right.Pos(), "operand of %s must be int, found %s", n.Op, t)
	}
	if err := ctx.bind(end, n.Pos()); err != nil {
		return err
	}

	ctx.types.Push(ast.Int)
	return nil
}

func (c *Codegen) unary(ctx *fnContext, n *ast.UnaryOp) error {
	if err := c.value(ctx, n.Operand); err != nil {
		return err
	}
	t := ctx.topType()

	switch n.Op {
	case ast.OpSub:
		switch t {
		case ast.Int:
			ctx.emit(bytecode.OpINeg)
		case ast.Double:
			ctx.emit(bytecode.OpDNeg)
		default:
			return diag.Mismatch(n.Pos(), "cannot negate %s", t)
		}
		return nil

	case ast.OpNot:
		if t != ast.Int {
			return diag.Mismatch(n.Pos(), "operand of ! must be int, found %s", t)
		}
		ctx.popType()
		ctx.emit(bytecode.OpILoad0)
		return c.materialize(ctx, bytecode.OpIfICmpE, n.Pos())

	default:
		return unsupported(n)
	}
}

// call evaluates arguments left to right, converting each to its parameter
// type, and emits CALL. The callee binds them to its first slots.
func (c *Codegen) call(ctx *fnContext, n *ast.Call) error {
	callee, ok := c.res.Calls[n]
	if !ok {
		return diag.UndefinedFunction(n.Name, n.Pos())
	}
	if len(n.Args) != len(callee.Params) {
		return diag.Mismatch(n.Pos(), "%s takes %d argument(s), %d given", callee.Name, len(callee.Params), len(n.Args))
	}

	for i, arg := range n.Args {
		if err := c.value(ctx, arg); err != nil {
			return err
		}
		if err := c.coerce(ctx, callee.Params[i], arg.Pos()); err != nil {
			return err
		}
	}
	for range n.Args {
		ctx.popType()
	}

	ctx.emit(bytecode.OpCall)
	ctx.code.AddUint16(callee.ID)
	if callee.Returns != ast.Void {
		ctx.types.Push(callee.Returns)
	}
	return nil
}

// zero pushes the zero value of typ.
func (c *Codegen) zero(ctx *fnContext, typ ast.Type, pos ast.Position) error {
	switch typ {
	case ast.Int:
		ctx.emit(bytecode.OpILoad0)
	case ast.Double:
		ctx.emit(bytecode.OpDLoad)
		ctx.code.AddDouble(0)
	case ast.String:
		ctx.emit(bytecode.OpSLoad)
		ctx.code.AddUint16(0)
	default:
		return diag.Mismatch(pos, "no zero value for %s", typ)
	}
	ctx.types.Push(typ)
	return nil
}

func isNumeric(t ast.Type) bool {
	return t == ast.Int || t == ast.Double
}

// value emits e and requires it to produce exactly one value.
func (c *Codegen) value(ctx *fnContext, e ast.Expr) error {
	before := ctx.types.Size()
	if err := c.expr(ctx, e); err != nil {
		return err
	}
	if ctx.types.Size() != before+1 {
		return noValue(e)
	}
	return nil
}
