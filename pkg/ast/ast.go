// Package ast defines the scope- and type-annotated tree handed over by the
// parser. Nodes form a closed set: every consumer switches over the concrete
// types exhaustively.
package ast

import "fmt"

// Type is the static type of a variable, parameter, function result or expression.
type Type int

const (
	Invalid Type = iota
	Void
	Int
	Double
	String
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case Int:
		return "int"
	case Double:
		return "double"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// ParseType maps a type keyword to a Type, returning Invalid for unknown names.
func ParseType(s string) Type {
	switch s {
	case "void":
		return Void
	case "int":
		return Int
	case "double":
		return Double
	case "string":
		return String
	default:
		return Invalid
	}
}

// Position is a location in the source text.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Op is an operator token carried by unary, binary and store nodes.
type Op int

const (
	OpIllegal Op = iota

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitOr
	OpBitAnd
	OpBitXor

	OpAnd
	OpOr
	OpNot

	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe

	OpAssign
	OpIncrSet
	OpDecrSet
	OpMulSet
	OpDivSet
)

var opSymbols = map[Op]string{
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "%",
	OpBitOr:   "|",
	OpBitAnd:  "&",
	OpBitXor:  "^",
	OpAnd:     "&&",
	OpOr:      "||",
	OpNot:     "!",
	OpEq:      "==",
	OpNe:      "!=",
	OpGt:      ">",
	OpGe:      ">=",
	OpLt:      "<",
	OpLe:      "<=",
	OpAssign:  "=",
	OpIncrSet: "+=",
	OpDecrSet: "-=",
	OpMulSet:  "*=",
	OpDivSet:  "/=",
}

func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return "illegal"
}

// ParseOp maps an operator symbol back to its Op.
func ParseOp(s string) Op {
	for op, sym := range opSymbols {
		if sym == s {
			return op
		}
	}
	return OpIllegal
}

// IsComparison reports whether o is one of == != > >= < <=.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpLe
}

// Node is implemented by every tree node.
type Node interface {
	Pos() Position
	node()
}

// Expr is a node that produces a value.
type Expr interface {
	Node
	expr()
}

// Stmt is a node executed for its effect.
type Stmt interface {
	Node
	stmt()
}

type (
	IntLiteral struct {
		At    Position
		Value int64
	}

	DoubleLiteral struct {
		At    Position
		Value float64
	}

	StringLiteral struct {
		At    Position
		Value string
	}

	// Load reads a variable.
	Load struct {
		At   Position
		Name string
	}

	BinaryOp struct {
		At    Position
		Op    Op
		Left  Expr
		Right Expr
	}

	UnaryOp struct {
		At      Position
		Op      Op
		Operand Expr
	}

	// Call invokes a function declared in the program.
	Call struct {
		At   Position
		Name string
		Args []Expr
	}

	// NativeCall invokes an externally implemented routine.
	NativeCall struct {
		At   Position
		Name string
		Args []Expr
	}
)

type (
	// VarDecl declares a variable in the enclosing function; Init may be nil.
	VarDecl struct {
		At   Position
		Name string
		Type Type
		Init Expr
	}

	// Store assigns to a variable, optionally combined with an operator (+=, -=, ...).
	Store struct {
		At    Position
		Name  string
		Op    Op
		Value Expr
	}

	ExprStmt struct {
		X Expr
	}

	If struct {
		At   Position
		Cond Expr
		Then *Block
		Else *Block
	}

	While struct {
		At   Position
		Cond Expr
		Body *Block
	}

	// For is a C-style loop; Init and Post may be nil.
	For struct {
		At   Position
		Init Stmt
		Cond Expr
		Post Stmt
		Body *Block
	}

	Return struct {
		At    Position
		Value Expr
	}

	Print struct {
		At       Position
		Operands []Expr
	}

	Block struct {
		At    Position
		Stmts []Stmt
	}

	Param struct {
		Name string
		Type Type
	}

	FuncDecl struct {
		At      Position
		Name    string
		Params  []Param
		Returns Type
		Body    *Block
	}
)

// Program is a whole translation unit. Top is the entry function; its body
// holds the top-level statements.
type Program struct {
	Top *FuncDecl
}

// TopName is the name given to the entry function.
const TopName = "<top>"

func (n *IntLiteral) Pos() Position    { return n.At }
func (n *DoubleLiteral) Pos() Position { return n.At }
func (n *StringLiteral) Pos() Position { return n.At }
func (n *Load) Pos() Position          { return n.At }
func (n *BinaryOp) Pos() Position      { return n.At }
func (n *UnaryOp) Pos() Position       { return n.At }
func (n *Call) Pos() Position          { return n.At }
func (n *NativeCall) Pos() Position    { return n.At }
func (n *VarDecl) Pos() Position       { return n.At }
func (n *Store) Pos() Position         { return n.At }
func (n *ExprStmt) Pos() Position      { return n.X.Pos() }
func (n *If) Pos() Position            { return n.At }
func (n *While) Pos() Position         { return n.At }
func (n *For) Pos() Position           { return n.At }
func (n *Return) Pos() Position        { return n.At }
func (n *Print) Pos() Position         { return n.At }
func (n *Block) Pos() Position         { return n.At }
func (n *FuncDecl) Pos() Position      { return n.At }

func (*IntLiteral) node()    {}
func (*DoubleLiteral) node() {}
func (*StringLiteral) node() {}
func (*Load) node()          {}
func (*BinaryOp) node()      {}
func (*UnaryOp) node()       {}
func (*Call) node()          {}
func (*NativeCall) node()    {}
func (*VarDecl) node()       {}
func (*Store) node()         {}
func (*ExprStmt) node()      {}
func (*If) node()            {}
func (*While) node()         {}
func (*For) node()           {}
func (*Return) node()        {}
func (*Print) node()         {}
func (*Block) node()         {}
func (*FuncDecl) node()      {}

func (*IntLiteral) expr()    {}
func (*DoubleLiteral) expr() {}
func (*StringLiteral) expr() {}
func (*Load) expr()          {}
func (*BinaryOp) expr()      {}
func (*UnaryOp) expr()       {}
func (*Call) expr()          {}
func (*NativeCall) expr()    {}

func (*VarDecl) stmt()  {}
func (*Store) stmt()    {}
func (*ExprStmt) stmt() {}
func (*If) stmt()       {}
func (*While) stmt()    {}
func (*For) stmt()      {}
func (*Return) stmt()   {}
func (*Print) stmt()    {}
func (*Block) stmt()    {}
func (*FuncDecl) stmt() {}
