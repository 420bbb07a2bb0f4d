package codegen

import (
	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/token"
)

// codegenExpr lowers e and returns its value. On failure a diagnostic has
// been reported, nothing was emitted for the failing node, and ok is false.
func (ctx *Context) codegenExpr(e ast.Expr) (ir.Value, bool) {
	switch d := e.(type) {
	case *ast.NumberLit:
		return ctx.b.FloatConst(d.Value), true
	case *ast.Ident:
		return ctx.codegenIdent(d)
	case *ast.BinaryOp:
		return ctx.codegenBinaryOp(d)
	case *ast.Call:
		return ctx.codegenFuncCall(d)
	case nil:
		ctx.sink.Report(diag.InvalidExpression, token.Token{}, "Missing expression")
		return nil, false
	default:
		ctx.sink.Report(diag.InvalidExpression, e.Pos(), "Unsupported expression %T", e)
		return nil, false
	}
}

// codegenIdent resolves a bare name: a local variable is loaded, a function
// taking no arguments is called. Locals shadow functions.
func (ctx *Context) codegenIdent(d *ast.Ident) (ir.Value, bool) {
	if slot, ok := ctx.currentScope.Lookup(d.Name); ok {
		return ctx.b.Load(slot), true
	}
	fn, ok := ctx.lookupFunc(d.Name)
	if !ok {
		ctx.sink.Report(diag.UnresolvedSymbol, d.Tok, "Undefined variable or function '%s'", d.Name)
		return nil, false
	}
	if arity := ctx.b.Arity(fn); arity != 0 {
		ctx.sink.Report(diag.ArityMismatch, d.Tok, "Function '%s' takes %d argument(s) and cannot be used as a value", d.Name, arity)
		return nil, false
	}
	return ctx.b.Call(fn, nil), true
}

var arithOps = map[ast.BinaryOpKind]ir.Op{
	ast.OpAdd: ir.OpAddF,
	ast.OpSub: ir.OpSubF,
	ast.OpMul: ir.OpMulF,
	ast.OpDiv: ir.OpDivF,
}

func (ctx *Context) codegenBinaryOp(d *ast.BinaryOp) (ir.Value, bool) {
	l, ok := ctx.codegenExpr(d.Lhs)
	var r ir.Value
	if ok {
		r, ok = ctx.codegenExpr(d.Rhs)
	}
	if !ok {
		ctx.sink.Report(diag.InvalidExpression, d.Tok, "Invalid operand to '%s'", d.Op)
		return nil, false
	}

	if d.Op == ast.OpLess {
		return ctx.b.UWToF(ctx.b.CmpULt(l, r)), true
	}
	op, ok := arithOps[d.Op]
	if !ok {
		ctx.sink.Report(diag.InvalidExpression, d.Tok, "Unknown binary operator '%s'", d.Op)
		return nil, false
	}
	return ctx.b.Arith(op, l, r), true
}

func (ctx *Context) codegenFuncCall(d *ast.Call) (ir.Value, bool) {
	name := d.Callee.Name
	fn, ok := ctx.lookupFunc(name)
	if !ok {
		ctx.sink.Report(diag.UnresolvedSymbol, d.Callee.Tok, "Call to undefined function '%s'", name)
		return nil, false
	}
	if arity := ctx.b.Arity(fn); arity != len(d.Args) {
		ctx.sink.Report(diag.ArityMismatch, d.Tok, "Function '%s' expects %d argument(s), got %d", name, arity, len(d.Args))
		return nil, false
	}

	args := make([]ir.Value, 0, len(d.Args))
	failed := false
	for _, arg := range d.Args {
		v, ok := ctx.codegenExpr(arg)
		if !ok {
			failed = true
			continue
		}
		args = append(args, v)
	}
	if failed {
		ctx.sink.Report(diag.InvalidExpression, d.Tok, "Invalid argument in call to '%s'", name)
		return nil, false
	}
	return ctx.b.Call(fn, args), true
}
