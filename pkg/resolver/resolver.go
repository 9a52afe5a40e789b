// Package resolver builds the function hierarchy of a program and assigns
// every variable a slot in the function that declares it.
//
// Names are unique within one function: declaring a name twice anywhere in
// the same function (parameters included) is a Redeclaration. A nested
// function may shadow names of its enclosing functions. On entering a block
// its variable declarations receive slots first, then its nested function
// names are bound, then the statements are resolved in order. References
// resolve by walking the lexical chain outwards from the current function.
package resolver

import (
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/diag"

	"github.com/charmbracelet/log"
)

// Symbol is a resolved variable: the function owning it and its slot there.
type Symbol struct {
	Owner *bytecode.Function
	Local *bytecode.Local
}

// Resolution is the resolver's output, consumed by the code generator.
type Resolution struct {
	Program *bytecode.Program
	Top     *bytecode.Function

	Funcs map[*ast.FuncDecl]*bytecode.Function
	Vars  map[ast.Node]*Symbol // keyed by *ast.Load, *ast.Store and *ast.VarDecl
	Calls map[*ast.Call]*bytecode.Function
}

type funcScope struct {
	fn     *bytecode.Function
	parent *funcScope
	funcs  map[string]*bytecode.Function
}

type resolver struct {
	res *Resolution
}

// Resolve walks the program depth-first and returns the function hierarchy
// with slot assignments. The returned program has empty instruction buffers.
func Resolve(prog *ast.Program) (*Resolution, error) {
	if prog == nil || prog.Top == nil {
		return nil, diag.Errorf(diag.UnsupportedConstruct, ast.Position{}, "empty program")
	}

	r := &resolver{res: &Resolution{
		Program: bytecode.NewProgram(),
		Funcs:   make(map[*ast.FuncDecl]*bytecode.Function),
		Vars:    make(map[ast.Node]*Symbol),
		Calls:   make(map[*ast.Call]*bytecode.Function),
	}}

	top, err := r.declareFunction(prog.Top, nil)
	if err != nil {
		return nil, err
	}
	r.res.Top = top.fn
	r.res.Program.Entry = top.fn.ID

	if err := r.function(prog.Top, top); err != nil {
		return nil, err
	}
	return r.res, nil
}

// declareFunction creates the Function for decl, chained to its lexical parent.
func (r *resolver) declareFunction(decl *ast.FuncDecl, parent *funcScope) (*funcScope, error) {
	var parentFn *bytecode.Function
	if parent != nil {
		parentFn = parent.fn
		if _, exists := parent.funcs[decl.Name]; exists {
			return nil, diag.Redeclared("function", decl.Name, decl.Pos())
		}
	}

	fn, err := r.res.Program.AddFunction(decl.Name, parentFn, decl.Params, decl.Returns)
	if err != nil {
		return nil, diag.Errorf(diag.UnsupportedConstruct, decl.Pos(), "%v", err)
	}
	if parent != nil {
		parent.funcs[decl.Name] = fn
	}
	r.res.Funcs[decl] = fn

	return &funcScope{fn: fn, parent: parent, funcs: make(map[string]*bytecode.Function)}, nil
}

// function assigns parameter slots and resolves the body of a declared function.
func (r *resolver) function(decl *ast.FuncDecl, s *funcScope) error {
	for _, p := range decl.Params {
		if p.Type != ast.Int && p.Type != ast.Double && p.Type != ast.String {
			return diag.Mismatch(decl.Pos(), "parameter `%s` of %s has type %s", p.Name, decl.Name, p.Type)
		}
		if _, err := r.declareVar(s, p.Name, p.Type, decl.Pos()); err != nil {
			return err
		}
	}

	if err := r.block(s, decl.Body); err != nil {
		return err
	}

	log.Debug("Resolved function", "name", decl.Name, "id", s.fn.ID, "slots", s.fn.SlotCount())
	return nil
}

func (r *resolver) declareVar(s *funcScope, name string, typ ast.Type, pos ast.Position) (*bytecode.Local, error) {
	local, ok, err := s.fn.Declare(name, typ)
	if err != nil {
		return nil, diag.Errorf(diag.UnsupportedConstruct, pos, "%v", err)
	}
	if !ok {
		return nil, diag.Redeclared("variable", name, pos)
	}
	return local, nil
}

func (r *resolver) varDecl(s *funcScope, d *ast.VarDecl) error {
	if _, done := r.res.Vars[d]; done {
		return nil
	}
	switch d.Type {
	case ast.Int, ast.Double, ast.String:
	default:
		return diag.Mismatch(d.Pos(), "variable `%s` cannot have type %s", d.Name, d.Type)
	}

	local, err := r.declareVar(s, d.Name, d.Type, d.Pos())
	if err != nil {
		return err
	}
	r.res.Vars[d] = &Symbol{Owner: s.fn, Local: local}
	return nil
}

func (r *resolver) block(s *funcScope, b *ast.Block) error {
	if b == nil {
		return nil
	}

	for _, stmt := range b.Stmts {
		if d, ok := stmt.(*ast.VarDecl); ok {
			if err := r.varDecl(s, d); err != nil {
				return err
			}
		}
	}

	nested := make(map[*ast.FuncDecl]*funcScope)
	for _, stmt := range b.Stmts {
		if d, ok := stmt.(*ast.FuncDecl); ok {
			fs, err := r.declareFunction(d, s)
			if err != nil {
				return err
			}
			nested[d] = fs
		}
	}

	for _, stmt := range b.Stmts {
		if d, ok := stmt.(*ast.FuncDecl); ok {
			if err := r.function(d, nested[d]); err != nil {
				return err
			}
			continue
		}
		if err := r.stmt(s, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) stmt(s *funcScope, stmt ast.Stmt) error {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		if err := r.varDecl(s, n); err != nil {
			return err
		}
		if n.Init != nil {
			return r.expr(s, n.Init)
		}
		return nil
	case *ast.Store:
		if err := r.ref(s, n, n.Name); err != nil {
			return err
		}
		return r.expr(s, n.Value)
	case *ast.ExprStmt:
		return r.expr(s, n.X)
	case *ast.If:
		if err := r.expr(s, n.Cond); err != nil {
			return err
		}
		if err := r.block(s, n.Then); err != nil {
			return err
		}
		return r.block(s, n.Else)
	case *ast.While:
		if err := r.expr(s, n.Cond); err != nil {
			return err
		}
		return r.block(s, n.Body)
	case *ast.For:
		if n.Init != nil {
			if err := r.stmt(s, n.Init); err != nil {
				return err
			}
		}
		if err := r.expr(s, n.Cond); err != nil {
			return err
		}
		if n.Post != nil {
			if err := r.stmt(s, n.Post); err != nil {
				return err
			}
		}
		return r.block(s, n.Body)
	case *ast.Return:
		if n.Value != nil {
			return r.expr(s, n.Value)
		}
		return nil
	case *ast.Print:
		return r.exprs(s, n.Operands)
	case *ast.Block:
		return r.block(s, n)
	case *ast.FuncDecl:
		// only reachable from a for-loop clause; blocks hoist their own
		return diag.Errorf(diag.UnsupportedConstruct, n.Pos(), "function `%s` declared outside a block", n.Name)
	default:
		return diag.Errorf(diag.UnsupportedConstruct, stmt.Pos(), "unknown statement %T", stmt)
	}
}

func (r *resolver) expr(s *funcScope, e ast.Expr) error {
	switch n := e.(type) {
	case *ast.IntLiteral, *ast.DoubleLiteral, *ast.StringLiteral:
		return nil
	case *ast.Load:
		return r.ref(s, n, n.Name)
	case *ast.BinaryOp:
		if err := r.expr(s, n.Left); err != nil {
			return err
		}
		return r.expr(s, n.Right)
	case *ast.UnaryOp:
		return r.expr(s, n.Operand)
	case *ast.Call:
		fn, ok := lookupFunction(s, n.Name)
		if !ok {
			return diag.UndefinedFunction(n.Name, n.Pos())
		}
		r.res.Calls[n] = fn
		return r.exprs(s, n.Args)
	case *ast.NativeCall:
		return r.exprs(s, n.Args)
	default:
		return diag.Errorf(diag.UnsupportedConstruct, e.Pos(), "unknown expression %T", e)
	}
}

func (r *resolver) exprs(s *funcScope, list []ast.Expr) error {
	for _, e := range list {
		if err := r.expr(s, e); err != nil {
			return err
		}
	}
	return nil
}

// ref resolves a variable reference by walking the function-parent chain.
func (r *resolver) ref(s *funcScope, node ast.Node, name string) error {
	for sc := s; sc != nil; sc = sc.parent {
		if local, ok := sc.fn.Lookup(name); ok {
			r.res.Vars[node] = &Symbol{Owner: sc.fn, Local: local}
			return nil
		}
	}
	return diag.UndefinedVariable(name, node.Pos())
}

func lookupFunction(s *funcScope, name string) (*bytecode.Function, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if fn, ok := sc.funcs[name]; ok {
			return fn, true
		}
	}
	return nil, false
}
