package codegen

import (
	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/token"
)

// funcEntry is one row of the function table, keyed by source name.
type funcEntry struct {
	fn      *ir.Func
	decl    *ast.FuncDecl
	defined bool
}

// Context holds the state of lowering one program. It is not safe for
// concurrent use; run one Context per goroutine.
type Context struct {
	cfg  *config.Config
	b    Builder
	sink *diag.Sink

	funcs map[string]*funcEntry
	// declared remembers the outcome of registering each declaration, so a
	// declaration already seen by the pre-scan is not registered twice. A nil
	// value means the declaration was rejected.
	declared map[*ast.FuncDecl]*ir.Func

	currentFunc  *ir.Func
	currentScope *Scope
}

// Result is what lowering produces. OK is false when any error was reported;
// the program is still returned so it can be inspected.
type Result struct {
	Program     *ir.Program
	Diagnostics []*diag.Diagnostic
	Warnings    []*diag.Diagnostic
	OK          bool
}

// Err joins the error diagnostics, or returns nil when lowering succeeded.
func (r *Result) Err() error {
	sink := diag.NewSink()
	sink.Add(r.Diagnostics...)
	return sink.Err()
}

func NewContext(cfg *config.Config) *Context {
	return NewContextWithBuilder(cfg, ir.NewBuilder(cfg.WordSize))
}

func NewContextWithBuilder(cfg *config.Config, b Builder) *Context {
	return &Context{
		cfg:      cfg,
		b:        b,
		sink:     diag.NewSink(),
		funcs:    make(map[string]*funcEntry),
		declared: make(map[*ast.FuncDecl]*ir.Func),
	}
}

// Sink exposes the diagnostics accumulator, so earlier passes (the parser)
// can record into the same list.
func (ctx *Context) Sink() *diag.Sink { return ctx.sink }

func (ctx *Context) GenerateIR(prog *ast.Program) *Result {
	if ctx.cfg.IsFeatureEnabled(config.FeatForwardRefs) {
		ctx.collectFuncs(prog.Stmts)
	}
	for _, stmt := range prog.Stmts {
		ctx.codegenTopLevel(stmt)
	}
	return &Result{
		Program:     ctx.b.Program(),
		Diagnostics: ctx.sink.Diagnostics(),
		Warnings:    ctx.sink.Warnings(),
		OK:          !ctx.sink.Failed(),
	}
}

// collectFuncs registers every function signature up front. Declarations
// inside function bodies are skipped when nested functions are disabled.
func (ctx *Context) collectFuncs(stmts []ast.Stmt) {
	nested := ctx.cfg.IsFeatureEnabled(config.FeatNestedFuncs)
	ast.Walk(stmts, func(s ast.Stmt) bool {
		if d, ok := s.(*ast.FuncDecl); ok {
			ctx.declareFunc(d)
			return nested
		}
		return true
	})
}

func (ctx *Context) codegenTopLevel(stmt ast.Stmt) {
	switch d := stmt.(type) {
	case *ast.FuncDecl:
		ctx.codegenFuncDecl(d)
	case *ast.Block:
		for _, s := range d.Stmts {
			ctx.codegenTopLevel(s)
		}
	case nil:
	default:
		ctx.sink.Report(diag.MisplacedStatement, stmt.Pos(), "Statement outside of a function body")
	}
}

func (ctx *Context) warn(w config.Warning, tok token.Token, format string, args ...any) {
	if ctx.cfg.IsWarningEnabled(w) {
		ctx.sink.Warn(ctx.cfg.Warnings[w].Name, tok, format, args...)
	}
}

// codegenStmts lowers a statement sequence and reports whether it ended in
// a return. Statements after the return are not lowered.
func (ctx *Context) codegenStmts(stmts []ast.Stmt) (terminates bool) {
	for i, stmt := range stmts {
		if ctx.codegenStmt(stmt) {
			if i+1 < len(stmts) {
				ctx.warn(config.WarnUnreachableCode, stmts[i+1].Pos(), "Unreachable code")
			}
			return true
		}
	}
	return false
}

func (ctx *Context) codegenStmt(stmt ast.Stmt) (terminates bool) {
	switch d := stmt.(type) {
	case nil:
		return false
	case *ast.Block:
		return ctx.codegenStmts(d.Stmts)
	case *ast.ExprStmt:
		ctx.codegenExpr(d.Expr)
		return false
	case *ast.VarDecl:
		ctx.codegenVarDecl(d)
		return false
	case *ast.Assign:
		ctx.codegenAssign(d)
		return false
	case *ast.IfElse:
		return ctx.codegenIf(d)
	case *ast.ForLoop:
		return ctx.codegenFor(d)
	case *ast.FuncDecl:
		if !ctx.cfg.IsFeatureEnabled(config.FeatNestedFuncs) {
			ctx.sink.Report(diag.MisplacedStatement, d.Tok, "Nested function '%s' is forbidden by the current feature set (-Fno-nested-funcs)", d.Name.Name)
			return false
		}
		ctx.codegenFuncDecl(d)
		return false
	case *ast.Return:
		return ctx.codegenReturn(d)
	default:
		ctx.sink.Report(diag.InvalidExpression, stmt.Pos(), "Unsupported statement %T", stmt)
		return false
	}
}

func (ctx *Context) codegenVarDecl(d *ast.VarDecl) {
	name := d.Name.Name
	if _, exists := ctx.currentScope.Lookup(name); exists {
		ctx.sink.Report(diag.Redeclaration, d.Name.Tok, "Variable '%s' is already declared in this function", name)
		return
	}
	slot := ctx.b.Alloc(name)

	// The initializer cannot see the name it initializes: it still resolves
	// to whatever the name meant before this declaration.
	var init ir.Value = ctx.b.FloatConst(0)
	ok := true
	if d.Init != nil {
		init, ok = ctx.codegenExpr(d.Init)
	}
	// Bound even when the initializer fails, so later uses do not cascade
	// into unresolved-symbol reports.
	_ = ctx.currentScope.Bind(name, slot)
	if !ok {
		ctx.sink.Report(diag.InvalidExpression, d.Init.Pos(), "Invalid initializer for '%s'", name)
		return
	}
	ctx.b.Store(init, slot)
}

func (ctx *Context) codegenAssign(d *ast.Assign) {
	slot, ok := ctx.currentScope.Lookup(d.Name.Name)
	if !ok {
		ctx.sink.Report(diag.UnresolvedSymbol, d.Name.Tok, "Assignment to undeclared variable '%s'", d.Name.Name)
		return
	}
	val, ok := ctx.codegenExpr(d.Rhs)
	if !ok {
		ctx.sink.Report(diag.InvalidExpression, d.Tok, "Invalid right-hand side in assignment to '%s'", d.Name.Name)
		return
	}
	ctx.b.Store(val, slot)
}

// condValue turns a double into the word a conditional branch tests:
// non-zero and not NaN.
func (ctx *Context) condValue(v ir.Value) ir.Value {
	return ctx.b.CmpONe(v, ctx.b.FloatConst(0))
}

func (ctx *Context) codegenIf(d *ast.IfElse) bool {
	cond, ok := ctx.codegenExpr(d.Cond)
	if !ok {
		ctx.sink.Report(diag.MissingCondition, d.Tok, "Invalid condition in if statement")
		return false
	}

	fn := ctx.currentFunc
	thenBB := ctx.b.AppendBlock(fn, "iftrue")
	var elseBB *ir.BasicBlock
	if d.Else != nil {
		elseBB = ctx.b.AppendBlock(fn, "iffalse")
	}
	endBB := ctx.b.AppendBlock(fn, "ifend")
	falseBB := endBB
	if elseBB != nil {
		falseBB = elseBB
	}

	ctx.b.Jnz(ctx.condValue(cond), thenBB, falseBB)

	ctx.b.SetInsertPoint(fn, thenBB)
	if !ctx.codegenStmt(blockOrNil(d.Then)) {
		ctx.b.Jmp(endBB)
	}

	if elseBB != nil {
		ctx.b.SetInsertPoint(fn, elseBB)
		if !ctx.codegenStmt(blockOrNil(d.Else)) {
			ctx.b.Jmp(endBB)
		}
	}

	// The end block is positioned even when both arms returned; nothing
	// branches to it then, but it still receives the code that follows.
	ctx.b.SetInsertPoint(fn, endBB)
	return false
}

func (ctx *Context) codegenFor(d *ast.ForLoop) bool {
	fn := ctx.currentFunc
	decideBB := ctx.b.AppendBlock(fn, "loopdecide")
	ctx.b.Jmp(decideBB)
	ctx.b.SetInsertPoint(fn, decideBB)

	cond, ok := ctx.codegenExpr(d.Cond)
	if !ok {
		ctx.sink.Report(diag.MissingCondition, d.Tok, "Invalid condition in for loop")
		return false
	}

	bodyBB := ctx.b.AppendBlock(fn, "loop")
	endBB := ctx.b.AppendBlock(fn, "endloop")
	ctx.b.Jnz(ctx.condValue(cond), bodyBB, endBB)

	ctx.b.SetInsertPoint(fn, bodyBB)
	if !ctx.codegenStmt(blockOrNil(d.Body)) {
		ctx.b.Jmp(decideBB)
	}

	ctx.b.SetInsertPoint(fn, endBB)
	return false
}

func (ctx *Context) codegenReturn(d *ast.Return) bool {
	var val ir.Value = ctx.b.FloatConst(0)
	if d.Value != nil {
		v, ok := ctx.codegenExpr(d.Value)
		if ok {
			val = v
		} else {
			ctx.sink.Report(diag.InvalidExpression, d.Tok, "Invalid return value")
		}
	}
	ctx.b.Ret(val)
	return true
}

// blockOrNil keeps a nil *ast.Block from becoming a non-nil ast.Stmt.
func blockOrNil(b *ast.Block) ast.Stmt {
	if b == nil {
		return nil
	}
	return b
}
