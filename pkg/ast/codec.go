package ast

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The interchange document is a CBOR tree of wireNode values. Each node names
// its kind; the remaining fields are filled according to that kind.
type wireNode struct {
	Kind   string      `cbor:"kind"`
	Line   int         `cbor:"line,omitempty"`
	Column int         `cbor:"col,omitempty"`
	Name   string      `cbor:"name,omitempty"`
	Op     string      `cbor:"op,omitempty"`
	Type   string      `cbor:"type,omitempty"`
	Int    int64       `cbor:"int,omitempty"`
	Double float64     `cbor:"double,omitempty"`
	Str    string      `cbor:"str,omitempty"`
	Params []wireParam `cbor:"params,omitempty"`
	Left   *wireNode   `cbor:"left,omitempty"`
	Right  *wireNode   `cbor:"right,omitempty"`
	Cond   *wireNode   `cbor:"cond,omitempty"`
	Then   *wireNode   `cbor:"then,omitempty"`
	Else   *wireNode   `cbor:"else,omitempty"`
	Init   *wireNode   `cbor:"init,omitempty"`
	Post   *wireNode   `cbor:"post,omitempty"`
	Body   *wireNode   `cbor:"body,omitempty"`
	List   []*wireNode `cbor:"list,omitempty"`
}

type wireParam struct {
	Name string `cbor:"name"`
	Type string `cbor:"type"`
}

const maxDocumentDepth = 1024

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ast: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{MaxNestedLevels: maxDocumentDepth}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("ast: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Encode serializes a program to its CBOR interchange document.
func Encode(p *Program) ([]byte, error) {
	if p == nil || p.Top == nil {
		return nil, fmt.Errorf("ast: encode: empty program")
	}
	w, err := toWire(p.Top)
	if err != nil {
		return nil, fmt.Errorf("ast: encode: %w", err)
	}
	return encMode.Marshal(w)
}

// Decode parses a CBOR interchange document. The root must be a function
// declaration; it becomes the program's entry function.
func Decode(data []byte) (*Program, error) {
	var w wireNode
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ast: unmarshal document: %w", err)
	}
	n, err := fromWire(&w)
	if err != nil {
		return nil, fmt.Errorf("ast: decode: %w", err)
	}
	top, ok := n.(*FuncDecl)
	if !ok {
		return nil, fmt.Errorf("ast: decode: root is %q, want func", w.Kind)
	}
	return &Program{Top: top}, nil
}

func toWire(n Node) (*wireNode, error) {
	if n == nil {
		return nil, nil
	}
	pos := n.Pos()
	w := &wireNode{Line: pos.Line, Column: pos.Column}

	var err error
	switch n := n.(type) {
	case *IntLiteral:
		w.Kind, w.Int = "int", n.Value
	case *DoubleLiteral:
		w.Kind, w.Double = "double", n.Value
	case *StringLiteral:
		w.Kind, w.Str = "string", n.Value
	case *Load:
		w.Kind, w.Name = "load", n.Name
	case *BinaryOp:
		w.Kind, w.Op = "binary", n.Op.String()
		if w.Left, err = toWire(n.Left); err != nil {
			return nil, err
		}
		w.Right, err = toWire(n.Right)
	case *UnaryOp:
		w.Kind, w.Op = "unary", n.Op.String()
		w.Left, err = toWire(n.Operand)
	case *Call:
		w.Kind, w.Name = "call", n.Name
		w.List, err = exprsToWire(n.Args)
	case *NativeCall:
		w.Kind, w.Name = "native", n.Name
		w.List, err = exprsToWire(n.Args)
	case *VarDecl:
		w.Kind, w.Name, w.Type = "var", n.Name, n.Type.String()
		if n.Init != nil {
			w.Init, err = toWire(n.Init)
		}
	case *Store:
		w.Kind, w.Name, w.Op = "store", n.Name, n.Op.String()
		w.Left, err = toWire(n.Value)
	case *ExprStmt:
		w.Kind = "expr"
		w.Left, err = toWire(n.X)
	case *If:
		w.Kind = "if"
		if w.Cond, err = toWire(n.Cond); err != nil {
			return nil, err
		}
		if w.Then, err = blockToWire(n.Then); err != nil {
			return nil, err
		}
		w.Else, err = blockToWire(n.Else)
	case *While:
		w.Kind = "while"
		if w.Cond, err = toWire(n.Cond); err != nil {
			return nil, err
		}
		w.Body, err = blockToWire(n.Body)
	case *For:
		w.Kind = "for"
		if n.Init != nil {
			if w.Init, err = toWire(n.Init); err != nil {
				return nil, err
			}
		}
		if w.Cond, err = toWire(n.Cond); err != nil {
			return nil, err
		}
		if n.Post != nil {
			if w.Post, err = toWire(n.Post); err != nil {
				return nil, err
			}
		}
		w.Body, err = blockToWire(n.Body)
	case *Return:
		w.Kind = "return"
		if n.Value != nil {
			w.Left, err = toWire(n.Value)
		}
	case *Print:
		w.Kind = "print"
		w.List, err = exprsToWire(n.Operands)
	case *Block:
		w.Kind = "block"
		for _, s := range n.Stmts {
			sw, serr := toWire(s)
			if serr != nil {
				return nil, serr
			}
			w.List = append(w.List, sw)
		}
	case *FuncDecl:
		w.Kind, w.Name, w.Type = "func", n.Name, n.Returns.String()
		for _, p := range n.Params {
			w.Params = append(w.Params, wireParam{Name: p.Name, Type: p.Type.String()})
		}
		w.Body, err = blockToWire(n.Body)
	default:
		return nil, fmt.Errorf("unknown node %T", n)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func blockToWire(b *Block) (*wireNode, error) {
	if b == nil {
		return nil, nil
	}
	return toWire(b)
}

func exprsToWire(list []Expr) ([]*wireNode, error) {
	out := make([]*wireNode, 0, len(list))
	for _, e := range list {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func fromWire(w *wireNode) (Node, error) {
	pos := Position{Line: w.Line, Column: w.Column}

	switch w.Kind {
	case "int":
		return &IntLiteral{At: pos, Value: w.Int}, nil
	case "double":
		return &DoubleLiteral{At: pos, Value: w.Double}, nil
	case "string":
		return &StringLiteral{At: pos, Value: w.Str}, nil
	case "load":
		return &Load{At: pos, Name: w.Name}, nil
	case "binary":
		op, err := wireOp(w, pos)
		if err != nil {
			return nil, err
		}
		left, err := exprFromWire(w.Left, pos)
		if err != nil {
			return nil, err
		}
		right, err := exprFromWire(w.Right, pos)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{At: pos, Op: op, Left: left, Right: right}, nil
	case "unary":
		op, err := wireOp(w, pos)
		if err != nil {
			return nil, err
		}
		operand, err := exprFromWire(w.Left, pos)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{At: pos, Op: op, Operand: operand}, nil
	case "call", "native":
		args, err := exprsFromWire(w.List, pos)
		if err != nil {
			return nil, err
		}
		if w.Kind == "native" {
			return &NativeCall{At: pos, Name: w.Name, Args: args}, nil
		}
		return &Call{At: pos, Name: w.Name, Args: args}, nil
	case "var":
		typ, err := wireType(w.Type, pos)
		if err != nil {
			return nil, err
		}
		d := &VarDecl{At: pos, Name: w.Name, Type: typ}
		if w.Init != nil {
			if d.Init, err = exprFromWire(w.Init, pos); err != nil {
				return nil, err
			}
		}
		return d, nil
	case "store":
		op, err := wireOp(w, pos)
		if err != nil {
			return nil, err
		}
		value, err := exprFromWire(w.Left, pos)
		if err != nil {
			return nil, err
		}
		return &Store{At: pos, Name: w.Name, Op: op, Value: value}, nil
	case "expr":
		x, err := exprFromWire(w.Left, pos)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x}, nil
	case "if":
		cond, err := exprFromWire(w.Cond, pos)
		if err != nil {
			return nil, err
		}
		then, err := blockFromWire(w.Then, pos, true)
		if err != nil {
			return nil, err
		}
		els, err := blockFromWire(w.Else, pos, false)
		if err != nil {
			return nil, err
		}
		return &If{At: pos, Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := exprFromWire(w.Cond, pos)
		if err != nil {
			return nil, err
		}
		body, err := blockFromWire(w.Body, pos, true)
		if err != nil {
			return nil, err
		}
		return &While{At: pos, Cond: cond, Body: body}, nil
	case "for":
		f := &For{At: pos}
		var err error
		if f.Init, err = optStmtFromWire(w.Init); err != nil {
			return nil, err
		}
		if f.Cond, err = exprFromWire(w.Cond, pos); err != nil {
			return nil, err
		}
		if f.Post, err = optStmtFromWire(w.Post); err != nil {
			return nil, err
		}
		if f.Body, err = blockFromWire(w.Body, pos, true); err != nil {
			return nil, err
		}
		return f, nil
	case "return":
		r := &Return{At: pos}
		if w.Left != nil {
			v, err := exprFromWire(w.Left, pos)
			if err != nil {
				return nil, err
			}
			r.Value = v
		}
		return r, nil
	case "print":
		operands, err := exprsFromWire(w.List, pos)
		if err != nil {
			return nil, err
		}
		return &Print{At: pos, Operands: operands}, nil
	case "block":
		b := &Block{At: pos}
		for _, sw := range w.List {
			s, err := stmtFromWire(sw, pos)
			if err != nil {
				return nil, err
			}
			b.Stmts = append(b.Stmts, s)
		}
		return b, nil
	case "func":
		returns, err := wireType(w.Type, pos)
		if err != nil {
			return nil, err
		}
		f := &FuncDecl{At: pos, Name: w.Name, Returns: returns}
		for _, p := range w.Params {
			pt, err := wireType(p.Type, pos)
			if err != nil {
				return nil, err
			}
			f.Params = append(f.Params, Param{Name: p.Name, Type: pt})
		}
		if f.Body, err = blockFromWire(w.Body, pos, true); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%s: unknown node kind %q", pos, w.Kind)
	}
}

func wireOp(w *wireNode, pos Position) (Op, error) {
	op := ParseOp(w.Op)
	if op == OpIllegal {
		return op, fmt.Errorf("%s: unknown operator %q in %s", pos, w.Op, w.Kind)
	}
	return op, nil
}

func wireType(s string, pos Position) (Type, error) {
	t := ParseType(s)
	if t == Invalid {
		return t, fmt.Errorf("%s: unknown type %q", pos, s)
	}
	return t, nil
}

func exprFromWire(w *wireNode, parent Position) (Expr, error) {
	if w == nil {
		return nil, fmt.Errorf("%s: missing expression", parent)
	}
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	e, ok := n.(Expr)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not an expression", n.Pos(), w.Kind)
	}
	return e, nil
}

func exprsFromWire(list []*wireNode, parent Position) ([]Expr, error) {
	out := make([]Expr, 0, len(list))
	for _, w := range list {
		e, err := exprFromWire(w, parent)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func stmtFromWire(w *wireNode, parent Position) (Stmt, error) {
	if w == nil {
		return nil, fmt.Errorf("%s: missing statement", parent)
	}
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	s, ok := n.(Stmt)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a statement", n.Pos(), w.Kind)
	}
	return s, nil
}

func optStmtFromWire(w *wireNode) (Stmt, error) {
	if w == nil {
		return nil, nil
	}
	return stmtFromWire(w, Position{Line: w.Line, Column: w.Column})
}

func blockFromWire(w *wireNode, parent Position, required bool) (*Block, error) {
	if w == nil {
		if required {
			return nil, fmt.Errorf("%s: missing block", parent)
		}
		return nil, nil
	}
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	b, ok := n.(*Block)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a block", n.Pos(), w.Kind)
	}
	return b, nil
}
