package codegen

import (
	"math"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/parser"
)

const backendSrc = `foreign sin(x);
func main() { return 1; }
func wave(x) {
    var y = sin(x) * 2;
    if (y < 0.5) { y = 0; }
    for (x < y) { x = x + 1; }
    return y;
}`

func TestSelectBackend(t *testing.T) {
	for _, name := range []string{"qbe", "llvm"} {
		b, err := SelectBackend(name)
		be.Err(t, err, nil)
		be.True(t, b != nil)
	}
	_, err := SelectBackend("c")
	be.Err(t, err, "unsupported backend 'c'")
}

func TestQBEText(t *testing.T) {
	res := mustLower(t, backendSrc)
	out, err := NewQBEBackend().GenerateIR(res.Program, config.NewConfig())
	be.Err(t, err, nil)

	for _, want := range []string{
		"\nexport function d $_anc_main() {\n@start\n\tret d_1.0\n}\n",
		"\nexport function d $wave(d %p_x.0) {\n@start\n",
		"\t%x.1 =l alloc8 8\n",
		"\tstored %p_x.0, %x.1\n",
		"call $sin(d %t",
		"cuod ",
		"cltd ",
		" =w or ",
		" =w cod ",
		" =w cned ",
		" =w and ",
		" =d uwtof ",
		"\tjnz ",
		"\tjmp @loopdecide\n",
		"d_0.5",
	} {
		be.True(t, strings.Contains(out, want))
	}
	// Foreign functions are left to the linker.
	be.True(t, !strings.Contains(out, "function d $sin"))
}

func TestQBEPointerWidth(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetTarget("linux", "arm", "qbe/rv32")
	be.Equal(t, cfg.WordSize, 4)

	prog, err := parser.ParseSource("func f() { var a = 1; return a; }", 0)
	be.Err(t, err, nil)
	res := NewContext(cfg).GenerateIR(prog)
	out, err := NewQBEBackend().GenerateIR(res.Program, cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(out, "\t%a.1 =w alloc8 8\n"))
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0.5, "0.5"},
		{-3, "-3.0"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		be.Equal(t, formatFloat(tt.in), tt.want)
	}
}

func TestQBERejectsNonFiniteConstants(t *testing.T) {
	for _, x := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		b := ir.NewBuilder(8)
		fn := b.DeclareFunc("f", nil, true)
		b.SetInsertPoint(fn, b.AppendBlock(fn, "start"))
		b.Ret(b.FloatConst(x))

		_, err := NewQBEBackend().GenerateIR(b.Program(), config.NewConfig())
		be.Err(t, err, "has no QBE literal")
	}
}

func TestLLVMText(t *testing.T) {
	res := mustLower(t, backendSrc)
	out, err := NewLLVMBackend().GenerateIR(res.Program, config.NewConfig())
	be.Err(t, err, nil)

	for _, want := range []string{
		"declare double @sin(",
		"define double @_anc_main()",
		"define double @wave(double %p_x.0)",
		"alloca double",
		"call double @sin(double ",
		"fmul double ",
		"fcmp ult double ",
		"fcmp one double ",
		"uitofp i1 ",
		"br label %loopdecide",
		"ret double ",
	} {
		be.True(t, strings.Contains(out, want))
	}
}

func TestLLVMGenerateMatchesText(t *testing.T) {
	res := mustLower(t, backendSrc)
	cfg := config.NewConfig()
	text, err := NewLLVMBackend().GenerateIR(res.Program, cfg)
	be.Err(t, err, nil)
	buf, err := NewLLVMBackend().Generate(res.Program, cfg)
	be.Err(t, err, nil)
	be.Equal(t, buf.String(), text)
}
