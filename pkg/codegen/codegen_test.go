package codegen

import (
	"context"
	"io"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/interp"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/parser"
)

// lower parses and lowers src. The program must verify even when
// diagnostics were reported.
func lower(t *testing.T, src string, flags ...string) *Result {
	t.Helper()
	prog, err := parser.ParseSource(src, 0)
	be.Err(t, err, nil)
	cfg := config.NewConfig()
	for _, f := range flags {
		be.Err(t, cfg.ApplyFlag(f), nil)
	}
	res := NewContext(cfg).GenerateIR(prog)
	be.Err(t, ir.Verify(res.Program), nil)
	return res
}

func mustLower(t *testing.T, src string, flags ...string) *Result {
	t.Helper()
	res := lower(t, src, flags...)
	be.Err(t, res.Err(), nil)
	be.True(t, res.OK)
	return res
}

func call(t *testing.T, res *Result, name string, args ...float64) float64 {
	t.Helper()
	v, err := interp.New(res.Program, interp.Builtins(io.Discard)).Run(context.Background(), name, args...)
	be.Err(t, err, nil)
	return v
}

func labels(fn *ir.Func) []string {
	var out []string
	for _, bb := range fn.Blocks {
		out = append(out, bb.Label.Name)
	}
	return out
}

func countOps(fn *ir.Func, op ir.Op) int {
	n := 0
	for _, bb := range fn.Blocks {
		for _, instr := range bb.Instructions {
			if instr.Op == op {
				n++
			}
		}
	}
	return n
}

func kinds(res *Result) []diag.Kind {
	var out []diag.Kind
	for _, d := range res.Diagnostics {
		out = append(out, d.Kind)
	}
	return out
}

func TestReturnEndsStatementList(t *testing.T) {
	res := mustLower(t, "func main() { return 1; return 2; }")
	fn := res.Program.FindFunc(config.EntrySymbol)

	be.Equal(t, labels(fn), []string{"start"})
	be.Equal(t, countOps(fn, ir.OpRet), 1)
	be.Equal(t, len(res.Warnings), 1)
	be.Equal(t, res.Warnings[0].Msg, "Unreachable code")
	be.Equal(t, res.Warnings[0].Flag, "unreachable-code")
	be.Equal(t, call(t, res, config.EntrySymbol), 1.0)
}

func TestUnreachableWarningCanBeDisabled(t *testing.T) {
	res := mustLower(t, "func main() { return 1; return 2; }", "-Wno-unreachable-code")
	be.Equal(t, len(res.Warnings), 0)
}

func TestReturningArmsDoNotDoubleTerminate(t *testing.T) {
	res := mustLower(t, `func f(x) {
    if (x) { return 1; } else { return 2; }
    return 3;
}`)
	fn := res.Program.FindFunc("f")
	be.Equal(t, labels(fn), []string{"start", "iftrue", "iffalse", "ifend"})
	for _, bb := range fn.Blocks {
		be.True(t, bb.Terminator() != nil)
	}
	be.Equal(t, call(t, res, "f", 5), 1.0)
	be.Equal(t, call(t, res, "f", 0), 2.0)
}

func TestRedeclarationKeepsFirstBinding(t *testing.T) {
	res := lower(t, "func main() { var x = 1; var x = 2; return x; }")

	be.True(t, !res.OK)
	be.Equal(t, kinds(res), []diag.Kind{diag.Redeclaration})
	fn := res.Program.FindFunc(config.EntrySymbol)
	be.Equal(t, countOps(fn, ir.OpAlloc), 1)
	be.Equal(t, call(t, res, config.EntrySymbol), 1.0)
}

func TestDuplicateParameter(t *testing.T) {
	res := lower(t, "func f(a, a) { return a; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.Redeclaration})
	be.Equal(t, call(t, res, "f", 1, 2), 1.0)
}

func TestArityMismatch(t *testing.T) {
	res := lower(t, "foreign f(a);\nfunc main() { return f(); }")
	be.Equal(t, res.Program.FindFunc(config.EntrySymbol).Blocks[0].Instructions[0].Op, ir.OpRet)
	be.Equal(t, countOps(res.Program.FindFunc(config.EntrySymbol), ir.OpCall), 0)
	be.Equal(t, kinds(res), []diag.Kind{diag.ArityMismatch, diag.InvalidExpression})

	res = lower(t, "func g(a) { return a; }\nfunc main() { return g; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.ArityMismatch, diag.InvalidExpression})
	be.Equal(t, res.Diagnostics[0].Msg, "Function 'g' takes 1 argument(s) and cannot be used as a value")
}

func TestBareNameCallsZeroArityFunction(t *testing.T) {
	res := mustLower(t, `func seven() { return 7; }
func main() { return seven + seven(); }`)
	be.Equal(t, countOps(res.Program.FindFunc(config.EntrySymbol), ir.OpCall), 2)
	be.Equal(t, call(t, res, config.EntrySymbol), 14.0)
}

func TestLocalShadowsFunction(t *testing.T) {
	res := mustLower(t, `func x() { return 7; }
func main() {
    var a = x;
    var x = 3;
    return a + x;
}`)
	be.Equal(t, call(t, res, config.EntrySymbol), 10.0)
}

func TestInitializerSeesPriorMeaning(t *testing.T) {
	res := mustLower(t, `func f() { return 5; }
func main() { var f = f + 1; return f; }`)
	be.Equal(t, call(t, res, config.EntrySymbol), 6.0)

	res = lower(t, "func main() { var x = x + 1; return x; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression, diag.InvalidExpression})
	be.Equal(t, res.Diagnostics[0].Msg, "Undefined variable or function 'x'")
	be.Equal(t, res.Diagnostics[2].Msg, "Invalid initializer for 'x'")
	// The failed declaration still binds, so the return does not cascade.
	be.Equal(t, countOps(res.Program.FindFunc(config.EntrySymbol), ir.OpStore), 0)
}

func TestUnresolvedSymbols(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []diag.Kind
		msg  string
	}{
		{"variable", "func main() { return y; }", []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression}, "Undefined variable or function 'y'"},
		{"assignment", "func main() { y = 1; return 0; }", []diag.Kind{diag.UnresolvedSymbol}, "Assignment to undeclared variable 'y'"},
		{"call", "func main() { return g(1); }", []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression}, "Call to undefined function 'g'"},
		{"operand", "func main() { var v = 1 + z; return v; }", []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression, diag.InvalidExpression}, "Undefined variable or function 'z'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, tt.src)
			be.True(t, !res.OK)
			be.Equal(t, kinds(res), tt.want)
			be.Equal(t, res.Diagnostics[0].Msg, tt.msg)
		})
	}
}

func TestFailedOperandSkipsRhs(t *testing.T) {
	res := lower(t, `func g(a) { return a; }
func main() { return nope + g(3); }`)
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression, diag.InvalidExpression})
	be.Equal(t, res.Diagnostics[1].Msg, "Invalid operand to '+'")
	be.Equal(t, countOps(res.Program.FindFunc(config.EntrySymbol), ir.OpCall), 0)
}

func TestIfElseShape(t *testing.T) {
	res := mustLower(t, `func pick(x) {
    var r = 0;
    if (x < 1) { r = 10; } else { r = 20; }
    return r;
}
func half(x) {
    var r = 1;
    if (x < 1) { r = 2; }
    return r;
}`)
	pick := res.Program.FindFunc("pick")
	be.Equal(t, labels(pick), []string{"start", "iftrue", "iffalse", "ifend"})
	jnz := pick.Entry().Terminator()
	be.Equal(t, jnz.Op, ir.OpJnz)
	be.Equal(t, jnz.Args[1].String(), "@iftrue")
	be.Equal(t, jnz.Args[2].String(), "@iffalse")
	be.Equal(t, pick.FindBlock("iftrue").Successors()[0].Name, "ifend")
	be.Equal(t, pick.FindBlock("iffalse").Successors()[0].Name, "ifend")

	half := res.Program.FindFunc("half")
	be.Equal(t, labels(half), []string{"start", "iftrue", "ifend"})
	be.Equal(t, half.Entry().Terminator().Args[2].String(), "@ifend")

	be.Equal(t, call(t, res, "pick", 0), 10.0)
	be.Equal(t, call(t, res, "pick", 3), 20.0)
	be.Equal(t, call(t, res, "half", 0), 2.0)
	be.Equal(t, call(t, res, "half", 3), 1.0)
}

func TestElseIfChainGetsUniqueLabels(t *testing.T) {
	res := mustLower(t, `func sign(x) {
    if (x < 0) { return 0 - 1; } else if (0 < x) { return 1; } else { return 0; }
}`)
	fn := res.Program.FindFunc("sign")
	be.Equal(t, labels(fn), []string{"start", "iftrue", "iffalse", "ifend", "iftrue.1", "iffalse.1", "ifend.1"})
	be.Equal(t, call(t, res, "sign", -4), -1.0)
	be.Equal(t, call(t, res, "sign", 4), 1.0)
	be.Equal(t, call(t, res, "sign", 0), 0.0)
}

func TestLoopReevaluatesCondition(t *testing.T) {
	res := mustLower(t, `func squares(n) {
    var i = 0;
    var s = 0;
    for (i < n) {
        var sq = i * i;
        s = s + sq;
        i = i + 1;
    }
    return s;
}`)
	fn := res.Program.FindFunc("squares")
	be.Equal(t, labels(fn), []string{"start", "loopdecide", "loop", "endloop"})
	be.Equal(t, fn.Entry().Terminator().Args[0].String(), "@loopdecide")
	be.Equal(t, fn.FindBlock("loop").Successors()[0].Name, "loopdecide")
	decide := fn.FindBlock("loopdecide").Successors()
	be.Equal(t, decide[0].Name, "loop")
	be.Equal(t, decide[1].Name, "endloop")

	// Every slot, including the one declared in the body, lives in the entry block.
	be.Equal(t, countOps(fn, ir.OpAlloc), 4)
	for _, instr := range fn.Entry().Instructions[:4] {
		be.Equal(t, instr.Op, ir.OpAlloc)
	}

	be.Equal(t, call(t, res, "squares", 4), 14.0)
	be.Equal(t, call(t, res, "squares", 0), 0.0)
}

func TestReturnInsideLoopBody(t *testing.T) {
	res := mustLower(t, `func first(n) {
    var i = 0;
    for (i < n) { return i + 100; }
    return 0 - 1;
}`)
	fn := res.Program.FindFunc("first")
	be.Equal(t, countOps(fn, ir.OpJmp), 1)
	be.Equal(t, call(t, res, "first", 3), 100.0)
	be.Equal(t, call(t, res, "first", 0), -1.0)
}

func TestForeignDeclaration(t *testing.T) {
	res := mustLower(t, "foreign sin(x);\nfunc main() { return sin(0); }")
	sin := res.Program.FindFunc("sin")
	be.True(t, sin != nil)
	be.Equal(t, sin.Arity(), 1)
	be.Equal(t, len(sin.Blocks), 0)
	be.True(t, !sin.Exported)
	be.Equal(t, call(t, res, config.EntrySymbol), 0.0)
}

func TestForeignThenDefinition(t *testing.T) {
	res := mustLower(t, `foreign twice(x);
func main() { return twice(4); }
func twice(x) { return x * 2; }
foreign twice(x);`)
	fn := res.Program.FindFunc("twice")
	be.True(t, fn.Exported)
	be.True(t, !fn.IsForeign())
	be.Equal(t, len(res.Program.Funcs), 2)
	be.Equal(t, call(t, res, config.EntrySymbol), 8.0)
}

func TestFunctionRedeclaration(t *testing.T) {
	res := lower(t, "func f() { return 1; }\nfunc f() { return 2; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.Redeclaration})
	be.Equal(t, res.Diagnostics[0].Msg, "Function 'f' is already defined")
	be.Equal(t, len(res.Program.Funcs), 1)
	be.Equal(t, call(t, res, "f"), 1.0)

	res = lower(t, "foreign f(x);\nfunc f(x, y) { return x; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.Redeclaration})
	be.Equal(t, res.Program.FindFunc("f").Arity(), 1)
}

func TestMainIsRemapped(t *testing.T) {
	res := mustLower(t, "func main() { return 0; }")
	be.True(t, res.Program.FindFunc(config.EntrySymbol) != nil)
	be.True(t, res.Program.FindFunc("main") == nil)

	cfg := config.NewConfig()
	cfg.EntrySymbol = "entry"
	prog, err := parser.ParseSource("func main() { return 0; }", 0)
	be.Err(t, err, nil)
	res = NewContext(cfg).GenerateIR(prog)
	be.True(t, res.Program.FindFunc("entry") != nil)
}

func TestForwardReferences(t *testing.T) {
	src := `func main() { return later(2); }
func later(x) { return x + 1; }`

	res := lower(t, src)
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression})

	res = mustLower(t, src, "-Fforward-refs")
	be.Equal(t, call(t, res, config.EntrySymbol), 3.0)
}

func TestNestedFunctions(t *testing.T) {
	src := `func outer() {
    func inner(y) { return y * 3; }
    return inner(2) + 1;
}`
	res := mustLower(t, src)
	be.Equal(t, labels(res.Program.FindFunc("inner")), []string{"start"})
	be.Equal(t, call(t, res, "outer"), 7.0)

	res = lower(t, src, "-Fno-nested-funcs")
	be.Equal(t, kinds(res), []diag.Kind{diag.MisplacedStatement, diag.UnresolvedSymbol, diag.InvalidExpression, diag.InvalidExpression})
	be.True(t, res.Program.FindFunc("inner") == nil)
}

func TestForwardRefsRespectNestedFuncs(t *testing.T) {
	src := `func outer() {
    var r = inner();
    func inner() { return 4; }
    return r;
}`
	res := mustLower(t, src, "-Fforward-refs")
	be.Equal(t, call(t, res, "outer"), 4.0)

	res = lower(t, src, "-Fforward-refs", "-Fno-nested-funcs")
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression, diag.MisplacedStatement})
	be.True(t, res.Program.FindFunc("inner") == nil)
}

func TestTopLevelStatement(t *testing.T) {
	res := lower(t, "var x = 1;\n{ func f() { return 2; } }\nf();")
	be.Equal(t, kinds(res), []diag.Kind{diag.MisplacedStatement, diag.MisplacedStatement})
	be.Equal(t, res.Diagnostics[0].Msg, "Statement outside of a function body")
	be.Equal(t, call(t, res, "f"), 2.0)
}

func TestInvalidConditions(t *testing.T) {
	res := lower(t, "func main() { for (missing) { return 5; } return 1; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.MissingCondition})
	fn := res.Program.FindFunc(config.EntrySymbol)
	be.Equal(t, labels(fn), []string{"start", "loopdecide"})
	be.Equal(t, call(t, res, config.EntrySymbol), 1.0)

	res = lower(t, "func main() { if (nope(1)) { return 5; } return 1; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.MissingCondition})
	be.Equal(t, labels(res.Program.FindFunc(config.EntrySymbol)), []string{"start"})
}

func TestImplicitReturn(t *testing.T) {
	res := mustLower(t, "func f() { var x = 4; }")
	be.Equal(t, len(res.Warnings), 0)
	be.Equal(t, call(t, res, "f"), 0.0)

	res = mustLower(t, "func f() { var x = 4; }", "-Wimplicit-return")
	be.Equal(t, len(res.Warnings), 1)
	be.Equal(t, res.Warnings[0].Flag, "implicit-return")

	// Nothing branches to the join block, so the trailing ret is not reachable.
	res = mustLower(t, "func g(x) { if (x) { return 1; } else { return 2; } }", "-Wimplicit-return")
	be.Equal(t, len(res.Warnings), 0)
}

func TestComparisonSemantics(t *testing.T) {
	res := mustLower(t, `func lt(a, b) { return a < b; }
func truthy(x) { if (x) { return 1; } return 0; }
func nan() { return 0 / 0; }`)
	be.Equal(t, call(t, res, "lt", 1, 2), 1.0)
	be.Equal(t, call(t, res, "lt", 2, 1), 0.0)
	be.Equal(t, call(t, res, "lt", 2, 2), 0.0)

	nan := call(t, res, "nan")
	be.Equal(t, call(t, res, "lt", nan, 1), 1.0)
	be.Equal(t, call(t, res, "truthy", nan), 0.0)
	be.Equal(t, call(t, res, "truthy", -0.5), 1.0)
}

// countingBuilder records how many calls were emitted through the interface.
type countingBuilder struct {
	*ir.Builder
	calls int
}

func (b *countingBuilder) Call(fn *ir.Func, args []ir.Value) ir.Value {
	b.calls++
	return b.Builder.Call(fn, args)
}

func TestFailedArgumentEmitsNoCall(t *testing.T) {
	cfg := config.NewConfig()
	b := &countingBuilder{Builder: ir.NewBuilder(cfg.WordSize)}
	prog := &ast.Program{Stmts: []ast.Stmt{
		ast.Foreign("g", "a", "b"),
		ast.Func("h", nil, ast.Body(ast.Ret(ast.Num(1)))),
		ast.Func("main", nil, ast.Body(
			ast.Do(ast.CallOf("g", ast.CallOf("h"), ast.Name("missing"))),
			ast.Ret(ast.CallOf("h")),
		)),
	}}
	res := NewContextWithBuilder(cfg, b).GenerateIR(prog)

	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression})
	// The first argument, h(), is lowered before the failure is known; only
	// the call to g itself is dropped.
	be.Equal(t, b.calls, 2)
	be.Err(t, ir.Verify(res.Program), nil)
}

func TestScopeIsPerFunction(t *testing.T) {
	res := lower(t, `func a() { var v = 1; return v; }
func b() { return v; }`)
	be.Equal(t, kinds(res), []diag.Kind{diag.UnresolvedSymbol, diag.InvalidExpression})
}

func TestBlocksDoNotOpenScopes(t *testing.T) {
	res := mustLower(t, `func f(x) {
    if (x) { var inner = 5; }
    { var other = 6; }
    return other;
}`)
	be.Equal(t, call(t, res, "f", 1), 6.0)

	res = lower(t, "func f(x) { if (x) { var v = 1; } var v = 2; return v; }")
	be.Equal(t, kinds(res), []diag.Kind{diag.Redeclaration})
}
