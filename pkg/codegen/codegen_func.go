package codegen

import (
	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/ir"
)

// symbolName is the name a function is emitted under.
func (ctx *Context) symbolName(name string) string {
	if name == "main" {
		if ctx.cfg.EntrySymbol != "" {
			return ctx.cfg.EntrySymbol
		}
		return config.EntrySymbol
	}
	return name
}

// declareFunc registers d in the function table and returns the function
// its body belongs to, or nil if d conflicts with an earlier declaration.
//
// A definition may complete an earlier foreign declaration of the same
// arity, and a foreign declaration may repeat one that is already known.
// Everything else that reuses a name is a redeclaration.
func (ctx *Context) declareFunc(d *ast.FuncDecl) *ir.Func {
	if fn, seen := ctx.declared[d]; seen {
		return fn
	}
	fn := ctx.registerFunc(d)
	ctx.declared[d] = fn
	return fn
}

func (ctx *Context) registerFunc(d *ast.FuncDecl) *ir.Func {
	name := d.Name.Name
	arity := len(d.Params)

	e, exists := ctx.funcs[name]
	if !exists {
		params := make([]string, arity)
		for i, p := range d.Params {
			params[i] = p.Name
		}
		fn := ctx.b.DeclareFunc(ctx.symbolName(name), params, !d.IsForeign())
		ctx.funcs[name] = &funcEntry{fn: fn, decl: d, defined: !d.IsForeign()}
		return fn
	}

	if got := ctx.b.Arity(e.fn); got != arity {
		ctx.sink.Report(diag.Redeclaration, d.Name.Tok, "Function '%s' redeclared with %d parameter(s), previously declared with %d", name, arity, got)
		return nil
	}
	switch {
	case d.IsForeign():
		return e.fn
	case !e.defined:
		e.decl, e.defined = d, true
		e.fn.Exported = true
		return e.fn
	default:
		ctx.sink.Report(diag.Redeclaration, d.Name.Tok, "Function '%s' is already defined", name)
		return nil
	}
}

func (ctx *Context) lookupFunc(name string) (*ir.Func, bool) {
	e, ok := ctx.funcs[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

func (ctx *Context) codegenFuncDecl(d *ast.FuncDecl) {
	fn := ctx.declareFunc(d)
	if fn == nil || d.IsForeign() {
		return
	}

	prevFunc, prevScope, prevBlock := ctx.currentFunc, ctx.currentScope, ctx.b.InsertBlock()
	defer func() {
		ctx.currentFunc, ctx.currentScope = prevFunc, prevScope
		ctx.b.SetInsertPoint(prevFunc, prevBlock)
	}()

	ctx.currentFunc = fn
	ctx.currentScope = NewScope()

	entry := ctx.b.AppendBlock(fn, "start")
	ctx.b.SetInsertPoint(fn, entry)

	for i, p := range d.Params {
		slot := ctx.b.Alloc(p.Name)
		ctx.b.Store(ctx.b.Param(fn, i), slot)
		if err := ctx.currentScope.Bind(p.Name, slot); err != nil {
			ctx.sink.Report(diag.Redeclaration, p.Tok, "Duplicate parameter '%s' in function '%s'", p.Name, d.Name.Name)
		}
	}

	if !ctx.codegenStmts(d.Body.Stmts) {
		if bb := ctx.b.InsertBlock(); isReachable(fn, bb) {
			ctx.warn(config.WarnImplicitReturn, d.Name.Tok, "Function '%s' can reach its end; it returns 0 there", d.Name.Name)
		}
		ctx.b.Ret(ctx.b.FloatConst(0))
	}
}

// isReachable reports whether bb is the entry block or the target of a
// branch already emitted in fn.
func isReachable(fn *ir.Func, bb *ir.BasicBlock) bool {
	if fn.Entry() == bb {
		return true
	}
	for _, other := range fn.Blocks {
		for _, l := range other.Successors() {
			if l == bb.Label {
				return true
			}
		}
	}
	return false
}
