package codegen

import (
	"fmt"
	"mathvm/pkg/ast"
	"mathvm/pkg/diag"
)

func unsupported(n ast.Node) *diag.CompileError {
	return diag.Errorf(diag.UnsupportedConstruct, n.Pos(), "no lowering for %s", describe(n))
}

func noValue(e ast.Expr) *diag.CompileError {
	return diag.Mismatch(e.Pos(), "%s does not produce a value", describe(e))
}

func describe(n ast.Node) string {
	switch n := n.(type) {
	case *ast.NativeCall:
		return fmt.Sprintf("native call `%s`", n.Name)
	case *ast.Call:
		return fmt.Sprintf("call to `%s`", n.Name)
	case *ast.UnaryOp:
		return fmt.Sprintf("unary operator %s", n.Op)
	case *ast.Store:
		return fmt.Sprintf("assignment operator %s", n.Op)
	case *ast.FuncDecl:
		return fmt.Sprintf("function `%s`", n.Name)
	default:
		return fmt.Sprintf("%T", n)
	}
}
