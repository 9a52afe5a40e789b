package interpreter_test

import (
	"bytes"
	"errors"
	"math"
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/codegen"
	"mathvm/pkg/interpreter"
	"strings"
	"testing"
)

func generate(t *testing.T, prog *ast.Program) *bytecode.Program {
	t.Helper()
	p, err := codegen.Generate(prog)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return p
}

func run(t *testing.T, prog *ast.Program, opts ...interpreter.Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := interpreter.Exec(generate(t, prog), &out, opts...)
	return out.String(), err
}

func mustRun(t *testing.T, prog *ast.Program) string {
	t.Helper()
	out, err := run(t, prog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name string
		prog *ast.Program
		want string
	}{
		{
			name: "mixed addition",
			prog: ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpAdd, ast.NewInt(1), ast.NewDouble(2.5)))),
			want: "3.5",
		},
		{
			name: "int minus double keeps operand order",
			prog: ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpSub, ast.NewInt(2), ast.NewDouble(0.5)))),
			want: "1.5",
		},
		{
			name: "double minus int",
			prog: ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpSub, ast.NewDouble(0.5), ast.NewInt(2)))),
			want: "-1.5",
		},
		{
			name: "int division truncates",
			prog: ast.NewProgram(ast.NewPrint(
				ast.NewBinary(ast.OpDiv, ast.NewInt(7), ast.NewInt(-2)),
				ast.NewString(" "),
				ast.NewBinary(ast.OpMod, ast.NewInt(-7), ast.NewInt(2)),
			)),
			want: "-3 -1",
		},
		{
			name: "MinInt64 division wraps",
			prog: ast.NewProgram(ast.NewPrint(
				ast.NewBinary(ast.OpDiv, ast.NewInt(math.MinInt64), ast.NewInt(-1)),
				ast.NewString(" "),
				ast.NewBinary(ast.OpMod, ast.NewInt(math.MinInt64), ast.NewInt(-1)),
			)),
			want: "-9223372036854775808 0",
		},
		{
			name: "MinInt64 negation wraps",
			prog: ast.NewProgram(ast.NewPrint(ast.NewUnary(ast.OpSub, ast.NewInt(math.MinInt64)))),
			want: "-9223372036854775808",
		},
		{
			name: "bitwise",
			prog: ast.NewProgram(ast.NewPrint(
				ast.NewBinary(ast.OpBitOr, ast.NewInt(12), ast.NewInt(3)),
				ast.NewBinary(ast.OpBitAnd, ast.NewInt(12), ast.NewInt(6)),
				ast.NewBinary(ast.OpBitXor, ast.NewInt(5), ast.NewInt(1)),
			)),
			want: "1544",
		},
		{
			name: "negation and not",
			prog: ast.NewProgram(ast.NewPrint(
				ast.NewUnary(ast.OpSub, ast.NewInt(4)),
				ast.NewUnary(ast.OpSub, ast.NewDouble(1.25)),
				ast.NewUnary(ast.OpNot, ast.NewInt(0)),
				ast.NewUnary(ast.OpNot, ast.NewInt(7)),
			)),
			want: "-4-1.2510",
		},
		{
			name: "comparisons",
			prog: ast.NewProgram(ast.NewPrint(
				ast.NewBinary(ast.OpLt, ast.NewInt(1), ast.NewInt(2)),
				ast.NewBinary(ast.OpGe, ast.NewInt(1), ast.NewInt(2)),
				ast.NewBinary(ast.OpEq, ast.NewInt(3), ast.NewInt(3)),
				ast.NewBinary(ast.OpNe, ast.NewInt(3), ast.NewInt(3)),
			)),
			want: "1010",
		},
		{
			name: "if true and if false",
			prog: ast.NewProgram(
				ast.NewIf(ast.NewInt(1), ast.NewBlock(ast.NewPrint(ast.NewString("a"))), nil),
				ast.NewIf(ast.NewInt(0),
					ast.NewBlock(ast.NewPrint(ast.NewString("x"))),
					ast.NewBlock(ast.NewPrint(ast.NewString("b")))),
			),
			want: "ab",
		},
		{
			name: "while loop",
			prog: ast.NewProgram(
				ast.NewVar("i", ast.Int, ast.NewInt(0)),
				ast.NewWhile(ast.NewBinary(ast.OpLt, ast.NewLoad("i"), ast.NewInt(3)), ast.NewBlock(
					ast.NewPrint(ast.NewLoad("i")),
					ast.NewStore("i", ast.OpIncrSet, ast.NewInt(1)),
				)),
			),
			want: "012",
		},
		{
			name: "for loop sum",
			prog: ast.NewProgram(
				ast.NewVar("sum", ast.Int, ast.NewInt(0)),
				ast.NewVar("i", ast.Int, nil),
				ast.NewFor(
					ast.NewAssign("i", ast.NewInt(0)),
					ast.NewBinary(ast.OpLt, ast.NewLoad("i"), ast.NewInt(5)),
					ast.NewStore("i", ast.OpIncrSet, ast.NewInt(1)),
					ast.NewBlock(ast.NewStore("sum", ast.OpIncrSet, ast.NewLoad("i"))),
				),
				ast.NewPrint(ast.NewLoad("sum")),
			),
			want: "10",
		},
		{
			name: "double variable widened on store",
			prog: ast.NewProgram(
				ast.NewVar("d", ast.Double, ast.NewInt(2)),
				ast.NewStore("d", ast.OpMulSet, ast.NewDouble(1.5)),
				ast.NewStore("d", ast.OpDivSet, ast.NewInt(2)),
				ast.NewPrint(ast.NewLoad("d")),
			),
			want: "1.5",
		},
		{
			name: "strings",
			prog: ast.NewProgram(
				ast.NewVar("s", ast.String, ast.NewString("hi")),
				ast.NewPrint(ast.NewLoad("s"), ast.NewString(", "), ast.NewInt(3), ast.NewString("\n")),
			),
			want: "hi, 3\n",
		},
		{
			name: "recursion",
			prog: ast.NewProgram(
				ast.NewFunc("fact", ast.Int, []ast.Param{ast.NewParam("n", ast.Int)},
					ast.NewIf(ast.NewBinary(ast.OpLe, ast.NewLoad("n"), ast.NewInt(1)),
						ast.NewBlock(ast.NewReturn(ast.NewInt(1))), nil),
					ast.NewReturn(ast.NewBinary(ast.OpMul, ast.NewLoad("n"),
						ast.NewCall("fact", ast.NewBinary(ast.OpSub, ast.NewLoad("n"), ast.NewInt(1))))),
				),
				ast.NewPrint(ast.NewCall("fact", ast.NewInt(10))),
			),
			want: "3628800",
		},
		{
			name: "arguments bind left to right",
			prog: ast.NewProgram(
				ast.NewFunc("show", ast.Void, []ast.Param{
					ast.NewParam("a", ast.Int),
					ast.NewParam("s", ast.String),
					ast.NewParam("d", ast.Double),
					ast.NewParam("b", ast.Int),
				},
					ast.NewPrint(ast.NewLoad("a"), ast.NewLoad("s"), ast.NewLoad("d"), ast.NewLoad("b")),
				),
				ast.NewExprStmt(ast.NewCall("show", ast.NewInt(1), ast.NewString("-"), ast.NewInt(2), ast.NewInt(3))),
			),
			want: "1-23",
		},
		{
			name: "nested function mutates enclosing local",
			prog: ast.NewProgram(
				ast.NewFunc("outer", ast.Void, nil,
					ast.NewVar("k", ast.Int, ast.NewInt(1)),
					ast.NewFunc("inner", ast.Void, nil,
						ast.NewStore("k", ast.OpMulSet, ast.NewInt(10)),
					),
					ast.NewExprStmt(ast.NewCall("inner")),
					ast.NewExprStmt(ast.NewCall("inner")),
					ast.NewPrint(ast.NewLoad("k")),
				),
				ast.NewExprStmt(ast.NewCall("outer")),
			),
			want: "100",
		},
		{
			name: "shadowed name in nested function",
			prog: ast.NewProgram(
				ast.NewVar("x", ast.Int, ast.NewInt(1)),
				ast.NewFunc("f", ast.Void, nil,
					ast.NewVar("x", ast.String, ast.NewString("inner")),
					ast.NewPrint(ast.NewLoad("x")),
				),
				ast.NewExprStmt(ast.NewCall("f")),
				ast.NewPrint(ast.NewLoad("x")),
			),
			want: "inner1",
		},
		{
			name: "falling off returns zero",
			prog: ast.NewProgram(
				ast.NewFunc("i", ast.Int, nil),
				ast.NewFunc("d", ast.Double, nil),
				ast.NewFunc("s", ast.String, nil),
				ast.NewPrint(ast.NewCall("i"), ast.NewCall("d"), ast.NewCall("s"), ast.NewString("|")),
			),
			want: "00|",
		},
		{
			name: "discarded call result",
			prog: ast.NewProgram(
				ast.NewFunc("one", ast.Double, nil, ast.NewReturn(ast.NewInt(1))),
				ast.NewExprStmt(ast.NewCall("one")),
				ast.NewPrint(ast.NewCall("one")),
			),
			want: "1",
		},
		{
			name: "return from top",
			prog: ast.NewProgram(
				ast.NewPrint(ast.NewString("a")),
				ast.NewReturn(nil),
				ast.NewPrint(ast.NewString("b")),
			),
			want: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRun(t, tt.prog); got != tt.want {
				t.Errorf("output: expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMixedAdditionMatchesLiteral(t *testing.T) {
	mixed := mustRun(t, ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpAdd, ast.NewInt(1), ast.NewDouble(2.5)))))
	literal := mustRun(t, ast.NewProgram(ast.NewPrint(ast.NewDouble(3.5))))
	if mixed != literal {
		t.Errorf("print(1+2.5) = %q, print(3.5) = %q", mixed, literal)
	}
}

// The right operand of && and || must only run when the left one does not
// decide the result; bump counts how often it ran.
func TestShortCircuit(t *testing.T) {
	bump := ast.NewFunc("bump", ast.Int, nil,
		ast.NewStore("c", ast.OpIncrSet, ast.NewInt(1)),
		ast.NewReturn(ast.NewInt(1)),
	)

	tests := []struct {
		name string
		expr ast.Expr
		want string
	}{
		{"and false", ast.NewBinary(ast.OpAnd, ast.NewInt(0), ast.NewCall("bump")), "0 0"},
		{"and true", ast.NewBinary(ast.OpAnd, ast.NewInt(1), ast.NewCall("bump")), "1 1"},
		{"or true", ast.NewBinary(ast.OpOr, ast.NewInt(1), ast.NewCall("bump")), "1 0"},
		{"or false", ast.NewBinary(ast.OpOr, ast.NewInt(0), ast.NewCall("bump")), "1 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := ast.NewProgram(
				ast.NewVar("c", ast.Int, ast.NewInt(0)),
				bump,
				ast.NewPrint(tt.expr, ast.NewString(" "), ast.NewLoad("c")),
			)
			if got := mustRun(t, prog); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	loop := ast.NewProgram(ast.NewWhile(ast.NewInt(1), ast.NewBlock()))
	deep := ast.NewProgram(
		ast.NewFunc("f", ast.Void, nil, ast.NewExprStmt(ast.NewCall("f"))),
		ast.NewExprStmt(ast.NewCall("f")),
	)

	tests := []struct {
		name string
		prog *ast.Program
		opts []interpreter.Option
		kind interpreter.RuntimeErrorKind
	}{
		{
			name: "division by zero",
			prog: ast.NewProgram(
				ast.NewVar("z", ast.Int, ast.NewInt(0)),
				ast.NewPrint(ast.NewBinary(ast.OpDiv, ast.NewInt(1), ast.NewLoad("z"))),
			),
			kind: interpreter.DivisionByZero,
		},
		{
			name: "modulo by zero",
			prog: ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpMod, ast.NewInt(1), ast.NewInt(0)))),
			kind: interpreter.DivisionByZero,
		},
		{
			name: "max steps",
			prog: loop,
			opts: []interpreter.Option{interpreter.WithMaxSteps(100)},
			kind: interpreter.MaxStepsExceeded,
		},
		{
			name: "stack overflow",
			prog: deep,
			opts: []interpreter.Option{interpreter.WithMaxDepth(16)},
			kind: interpreter.StackOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.prog, tt.opts...)
			if !interpreter.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestDoubleDivisionByZero(t *testing.T) {
	out := mustRun(t, ast.NewProgram(ast.NewPrint(ast.NewBinary(ast.OpDiv, ast.NewDouble(1), ast.NewInt(0)))))
	if out != "+Inf" {
		t.Errorf("expected +Inf, got %q", out)
	}
}

// handBuilt returns a program whose entry function has the given code.
func handBuilt(t *testing.T, emit func(p *bytecode.Program, top *bytecode.Function)) *bytecode.Program {
	t.Helper()
	p := bytecode.NewProgram()
	top, err := p.AddFunction(ast.TopName, nil, nil, ast.Void)
	if err != nil {
		t.Fatal(err)
	}
	p.Entry = top.ID
	emit(p, top)
	return p
}

func TestMissingEnclosingFrame(t *testing.T) {
	p := handBuilt(t, func(p *bytecode.Program, top *bytecode.Function) {
		h, _ := p.AddFunction("h", top, nil, ast.Void)
		h.Declare("y", ast.Int)
		h.Code.AddInsn(bytecode.OpReturn)

		// g reads h's local although h is not on the call stack
		g, _ := p.AddFunction("g", top, nil, ast.Void)
		g.Code.AddInsn(bytecode.OpLoadCtxIVar)
		g.Code.AddUint16(h.ID)
		g.Code.AddUint16(0)
		g.Code.AddInsn(bytecode.OpIPrint)
		g.Code.AddInsn(bytecode.OpReturn)

		top.Code.AddInsn(bytecode.OpCall)
		top.Code.AddUint16(g.ID)
		top.Code.AddInsn(bytecode.OpStop)
	})

	err := interpreter.Exec(p, &bytes.Buffer{})
	if !interpreter.IsKind(err, interpreter.MissingEnclosingFrame) {
		t.Fatalf("expected MissingEnclosingFrame, got %v", err)
	}

	var re *interpreter.RuntimeError
	if errors.As(err, &re) && (re.Name != "g" || re.Op != bytecode.OpLoadCtxIVar) {
		t.Errorf("fault reported in %s at %s", re.Name, re.Op)
	}
}

func TestUnresolvedLabelRejected(t *testing.T) {
	p := handBuilt(t, func(p *bytecode.Program, top *bytecode.Function) {
		top.Code.AddInsn(bytecode.OpILoad1)
		top.Code.AddInsn(bytecode.OpIPrint)
		l := top.Code.NewLabel()
		top.Code.AddBranch(bytecode.OpJa, l)
		top.Code.AddInsn(bytecode.OpStop)
	})

	var out bytes.Buffer
	err := interpreter.Exec(p, &out)
	if !errors.Is(err, bytecode.ErrUnresolvedLabel) {
		t.Fatalf("expected unresolved label, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("program ran before verification: %q", out.String())
	}
}

func TestHandBuiltFaults(t *testing.T) {
	tests := []struct {
		name string
		emit func(p *bytecode.Program, top *bytecode.Function)
		kind interpreter.RuntimeErrorKind
	}{
		{
			name: "int underflow",
			emit: func(p *bytecode.Program, top *bytecode.Function) {
				top.Code.AddInsn(bytecode.OpILoad1)
				top.Code.AddInsn(bytecode.OpIAdd)
				top.Code.AddInsn(bytecode.OpStop)
			},
			kind: interpreter.StackUnderflow,
		},
		{
			name: "double swap underflow",
			emit: func(p *bytecode.Program, top *bytecode.Function) {
				top.Code.AddInsn(bytecode.OpDSwap)
				top.Code.AddInsn(bytecode.OpStop)
			},
			kind: interpreter.StackUnderflow,
		},
		{
			name: "string pop underflow",
			emit: func(p *bytecode.Program, top *bytecode.Function) {
				top.Code.AddInsn(bytecode.OpSPop)
				top.Code.AddInsn(bytecode.OpStop)
			},
			kind: interpreter.StackUnderflow,
		},
		{
			name: "call without arguments",
			emit: func(p *bytecode.Program, top *bytecode.Function) {
				f, _ := p.AddFunction("f", top, []ast.Param{ast.NewParam("a", ast.Double)}, ast.Void)
				f.Declare("a", ast.Double)
				f.Code.AddInsn(bytecode.OpReturn)
				top.Code.AddInsn(bytecode.OpCall)
				top.Code.AddUint16(f.ID)
				top.Code.AddInsn(bytecode.OpStop)
			},
			kind: interpreter.StackUnderflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := interpreter.Exec(handBuilt(t, tt.emit), &bytes.Buffer{})
			if !interpreter.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestUnknownOpcode(t *testing.T) {
	p := handBuilt(t, func(p *bytecode.Program, top *bytecode.Function) {
		top.Code.AddInsn(bytecode.Opcode(0xee))
		top.Code.AddInsn(bytecode.OpStop)
	})

	err := interpreter.Exec(p, &bytes.Buffer{})
	if !interpreter.IsKind(err, interpreter.UnknownOpcode) {
		t.Fatalf("expected UnknownOpcode, got %v", err)
	}
	var re *interpreter.RuntimeError
	errors.As(err, &re)
	if re.PC != 0 || re.Op != bytecode.Opcode(0xee) || re.Name != ast.TopName {
		t.Errorf("fault reported in %s at %d [%s]", re.Name, re.PC, re.Op)
	}
}

func TestMaxStepsLocation(t *testing.T) {
	p := handBuilt(t, func(p *bytecode.Program, top *bytecode.Function) {
		top.Code.AddInsn(bytecode.OpILoad1)
		top.Code.AddInsn(bytecode.OpIPop)
		top.Code.AddInsn(bytecode.OpStop)
	})

	err := interpreter.Exec(p, &bytes.Buffer{}, interpreter.WithMaxSteps(1))
	var re *interpreter.RuntimeError
	if !errors.As(err, &re) || re.Kind != interpreter.MaxStepsExceeded {
		t.Fatalf("expected MaxStepsExceeded, got %v", err)
	}
	// the instruction that was not allowed to run
	if re.PC != 1 || re.Op != bytecode.OpIPop {
		t.Errorf("expected IPOP at 1, got %s at %d", re.Op, re.PC)
	}
}

func TestDoubleToInt(t *testing.T) {
	p := handBuilt(t, func(p *bytecode.Program, top *bytecode.Function) {
		top.Code.AddInsn(bytecode.OpDLoad)
		top.Code.AddDouble(-2.7)
		top.Code.AddInsn(bytecode.OpD2I)
		top.Code.AddInsn(bytecode.OpIPrint)
		top.Code.AddInsn(bytecode.OpStop)
	})

	var out bytes.Buffer
	if err := interpreter.Exec(p, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "-2" {
		t.Errorf("expected -2, got %q", out.String())
	}
}

func TestStep(t *testing.T) {
	prog := generate(t, ast.NewProgram(ast.NewPrint(ast.NewInt(5))))

	var out bytes.Buffer
	it := interpreter.NewInterpreter(prog, interpreter.WithWriter(&out))

	// ILOAD 5, IPRINT, STOP
	for n := 1; n <= 3; n++ {
		halted, err := it.Step()
		if err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
		if halted != (n == 3) {
			t.Fatalf("step %d: halted=%v", n, halted)
		}
		if n == 1 {
			if ints, _, _ := it.StackDepths(); ints != 1 {
				t.Errorf("expected one int on the stack, got %d", ints)
			}
		}
	}
	if it.Steps() != 3 {
		t.Errorf("expected 3 steps, got %d", it.Steps())
	}
	if out.String() != "5" {
		t.Errorf("expected 5, got %q", out.String())
	}

	if _, err := it.Step(); !errors.Is(err, interpreter.ErrHalted) {
		t.Errorf("expected ErrHalted, got %v", err)
	}

	it.Reset()
	if err := it.Run(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "55" {
		t.Errorf("expected a second run after Reset, got %q", out.String())
	}
}

func TestTrace(t *testing.T) {
	prog := generate(t, ast.NewProgram(
		ast.NewFunc("f", ast.Void, nil, ast.NewPrint(ast.NewString("x"))),
		ast.NewExprStmt(ast.NewCall("f")),
	))

	var out, trace bytes.Buffer
	if err := interpreter.Exec(prog, &out, interpreter.WithTrace(&trace)); err != nil {
		t.Fatal(err)
	}
	if out.String() != "x" {
		t.Errorf("expected x, got %q", out.String())
	}

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	want := []string{"<top>#0 0000 CALL", "f#1 0000 SLOAD", "f#1 0003 SPRINT", "f#1 0004 RETURN", "<top>#0 0003 STOP"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d trace lines, got:\n%s", len(want), trace.String())
	}
	for n, w := range want {
		if !strings.HasPrefix(lines[n], w) {
			t.Errorf("line %d: expected prefix %q, got %q", n, w, lines[n])
		}
	}
	if !strings.HasSuffix(lines[2], "i=0 d=0 s=1") {
		t.Errorf("expected the string operand in %q", lines[2])
	}
}

func TestRunAfterPersistence(t *testing.T) {
	src := ast.NewProgram(
		ast.NewVar("s", ast.String, ast.NewString("n=")),
		ast.NewFunc("twice", ast.Double, []ast.Param{ast.NewParam("x", ast.Double)},
			ast.NewReturn(ast.NewBinary(ast.OpMul, ast.NewLoad("x"), ast.NewInt(2))),
		),
		ast.NewPrint(ast.NewLoad("s"), ast.NewCall("twice", ast.NewInt(21))),
	)
	prog := generate(t, src)

	data, err := prog.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}

	var direct, reloaded bytes.Buffer
	if err := interpreter.Exec(prog, &direct); err != nil {
		t.Fatal(err)
	}
	if err := interpreter.Exec(loaded, &reloaded); err != nil {
		t.Fatal(err)
	}
	if direct.String() != "n=42" || reloaded.String() != direct.String() {
		t.Errorf("direct %q, reloaded %q", direct.String(), reloaded.String())
	}
}

func TestCallFrames(t *testing.T) {
	prog := generate(t, ast.NewProgram(
		ast.NewFunc("f", ast.Void, []ast.Param{ast.NewParam("a", ast.Int)}, ast.NewPrint(ast.NewLoad("a"))),
		ast.NewExprStmt(ast.NewCall("f", ast.NewInt(7))),
	))

	it := interpreter.NewInterpreter(prog, interpreter.WithWriter(&bytes.Buffer{}))
	if it.CurrentFrame() != nil || it.Depth() != 0 {
		t.Fatalf("frame active before start")
	}

	// ILOAD 7, CALL f
	for n := 0; n < 2; n++ {
		if _, err := it.Step(); err != nil {
			t.Fatal(err)
		}
	}

	fr := it.CurrentFrame()
	if fr.Function.Name != "f" || it.Depth() != 2 || it.PC() != 0 {
		t.Fatalf("in %s depth %d pc %d", fr.Function.Name, it.Depth(), it.PC())
	}
	if fr.Locals[0] != 7 {
		t.Errorf("argument not bound: %v", fr.Locals)
	}
	if fr.Caller.Function.Name != ast.TopName || fr.ReturnToIP != 12 {
		t.Errorf("returns to %s at %d", fr.Caller.Function.Name, fr.ReturnToIP)
	}
	if ints, _, _ := it.StackDepths(); ints != 0 {
		t.Errorf("argument left on the stack")
	}

	if err := it.Run(); err != nil {
		t.Fatal(err)
	}
	if it.Depth() != 1 {
		t.Errorf("expected only the entry frame after STOP, got depth %d", it.Depth())
	}
}
