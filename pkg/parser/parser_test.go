package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nalgeon/be"

	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/token"
)

// ignoreTokens compares trees by shape only.
var ignoreTokens = cmpopts.IgnoreTypes(token.Token{})

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := ParseSource(src, 0)
	be.Err(t, err, nil)
	return prog
}

func TestParseFunc(t *testing.T) {
	prog := parse(t, `
foreign sin(x);
func f(a, b) {
    var y = a + b * 2;
    y = y - 1;
    return y;
}`)
	want := []ast.Stmt{
		ast.Foreign("sin", "x"),
		ast.Func("f", []string{"a", "b"}, ast.Body(
			ast.Var("y", ast.Bin(ast.OpAdd, ast.Name("a"), ast.Bin(ast.OpMul, ast.Name("b"), ast.Num(2)))),
			ast.Set("y", ast.Bin(ast.OpSub, ast.Name("y"), ast.Num(1))),
			ast.Ret(ast.Name("y")),
		)),
	}
	if diff := cmp.Diff(want, prog.Stmts, ignoreTokens); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want ast.Expr
	}{
		{"1 - 2 - 3;", ast.Bin(ast.OpSub, ast.Bin(ast.OpSub, ast.Num(1), ast.Num(2)), ast.Num(3))},
		{"1 + 2 < 3 * 4;", ast.Bin(ast.OpLess, ast.Bin(ast.OpAdd, ast.Num(1), ast.Num(2)), ast.Bin(ast.OpMul, ast.Num(3), ast.Num(4)))},
		{"8 / (2 - 1);", ast.Bin(ast.OpDiv, ast.Num(8), ast.Bin(ast.OpSub, ast.Num(2), ast.Num(1)))},
		{"g(1, h(), x);", ast.CallOf("g", ast.Num(1), ast.CallOf("h"), ast.Name("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			prog := parse(t, tt.src)
			be.Equal(t, len(prog.Stmts), 1)
			got := prog.Stmts[0].(*ast.ExprStmt).Expr
			if diff := cmp.Diff(tt.want, got, ignoreTokens); diff != "" {
				t.Errorf("expr mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestControlFlow(t *testing.T) {
	prog := parse(t, `func main() {
    if (x < 1) { return 1; } else if (x < 2) { return 2; } else { return 3; }
    for (i < 3) { i = i + 1; }
    return;
}`)
	body := prog.Stmts[0].(*ast.FuncDecl).Body.Stmts
	be.Equal(t, len(body), 3)

	ifs := body[0].(*ast.IfElse)
	be.Equal(t, len(ifs.Else.Stmts), 1)
	nested, ok := ifs.Else.Stmts[0].(*ast.IfElse)
	be.True(t, ok)
	be.True(t, nested.Else != nil)

	loop := body[1].(*ast.ForLoop)
	be.Equal(t, len(loop.Body.Stmts), 1)

	ret := body[2].(*ast.Return)
	be.True(t, ret.Value == nil)
}

func TestPositionsRecorded(t *testing.T) {
	prog := parse(t, "func main() {\n    return missing(1);\n}")
	ret := prog.Stmts[0].(*ast.FuncDecl).Body.Stmts[0].(*ast.Return)
	be.Equal(t, ret.Tok.Line, 2)
	be.Equal(t, ret.Tok.Column, 5)
	call := ret.Value.(*ast.Call)
	be.Equal(t, call.Callee.Tok.Column, 12)
}

func TestSyntaxRecovery(t *testing.T) {
	prog, err := ParseSource(`func main() {
    var = 3;
    var y = 2;
    return y +;
}
}
func other() { return 1; }`, 0)
	be.True(t, err != nil)

	errs := diag.Unpack(err)
	be.Equal(t, len(errs), 3)
	for _, d := range errs {
		be.Equal(t, d.Kind, diag.Syntax)
	}
	be.Equal(t, errs[0].Msg, "Expected variable name after 'var'.")
	be.Equal(t, errs[2].Msg, "Unexpected '}' at top level.")

	// Both functions survive, and main keeps its good statement.
	be.Equal(t, len(prog.Stmts), 2)
	mainBody := prog.Stmts[0].(*ast.FuncDecl).Body.Stmts
	be.Equal(t, len(mainBody), 1)
	be.Equal(t, mainBody[0].(*ast.VarDecl).Name.Name, "y")
	be.Equal(t, prog.Stmts[1].(*ast.FuncDecl).Name.Name, "other")
}

func TestEmptyStatement(t *testing.T) {
	prog := parse(t, "func main() { ; ; return 0; }")
	be.Equal(t, len(prog.Stmts[0].(*ast.FuncDecl).Body.Stmts), 1)
}

func TestOverflowingLiteral(t *testing.T) {
	prog, err := ParseSource("func main() { return 1e400; }", 0)
	errs := diag.Unpack(err)
	be.Equal(t, len(errs), 1)
	be.Equal(t, errs[0].Kind, diag.Syntax)
	be.Equal(t, errs[0].Msg, "Number literal out of range: 1e400")

	ret := prog.Stmts[0].(*ast.FuncDecl).Body.Stmts[0].(*ast.Return)
	be.Equal(t, ret.Value.(*ast.NumberLit).Value, 0.0)
}
