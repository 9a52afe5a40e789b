package ast

// Constructors for building trees by hand. Positions are left zero; set At on
// the returned node when a location matters.

func NewInt(v int64) *IntLiteral { return &IntLiteral{Value: v} }

func NewDouble(v float64) *DoubleLiteral { return &DoubleLiteral{Value: v} }

func NewString(v string) *StringLiteral { return &StringLiteral{Value: v} }

func NewLoad(name string) *Load { return &Load{Name: name} }

func NewBinary(op Op, left, right Expr) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right}
}

func NewUnary(op Op, operand Expr) *UnaryOp {
	return &UnaryOp{Op: op, Operand: operand}
}

func NewCall(name string, args ...Expr) *Call {
	return &Call{Name: name, Args: args}
}

func NewVar(name string, typ Type, init Expr) *VarDecl {
	return &VarDecl{Name: name, Type: typ, Init: init}
}

func NewAssign(name string, value Expr) *Store {
	return &Store{Name: name, Op: OpAssign, Value: value}
}

func NewStore(name string, op Op, value Expr) *Store {
	return &Store{Name: name, Op: op, Value: value}
}

func NewExprStmt(x Expr) *ExprStmt { return &ExprStmt{X: x} }

func NewPrint(operands ...Expr) *Print { return &Print{Operands: operands} }

func NewIf(cond Expr, then, els *Block) *If {
	return &If{Cond: cond, Then: then, Else: els}
}

func NewWhile(cond Expr, body *Block) *While {
	return &While{Cond: cond, Body: body}
}

func NewFor(init Stmt, cond Expr, post Stmt, body *Block) *For {
	return &For{Init: init, Cond: cond, Post: post, Body: body}
}

func NewReturn(value Expr) *Return { return &Return{Value: value} }

func NewBlock(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

func NewParam(name string, typ Type) Param { return Param{Name: name, Type: typ} }

func NewFunc(name string, returns Type, params []Param, body ...Stmt) *FuncDecl {
	return &FuncDecl{Name: name, Params: params, Returns: returns, Body: NewBlock(body...)}
}

// NewProgram wraps top-level statements into the entry function.
func NewProgram(stmts ...Stmt) *Program {
	return &Program{Top: NewFunc(TopName, Void, nil, stmts...)}
}
