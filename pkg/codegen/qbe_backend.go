package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/ir"
)

type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	currentFn *ir.Func
}

func NewQBEBackend() Backend { return &qbeBackend{} }

func (b *qbeBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = prog

	if err := b.gen(); err != nil {
		return "", err
	}
	return qbeIRBuilder.String(), nil
}

func (b *qbeBackend) gen() error {
	for _, fn := range b.prog.Funcs {
		// Foreign functions are resolved by the linker.
		if fn.IsForeign() {
			continue
		}
		if err := b.genFunc(fn); err != nil {
			return err
		}
	}
	return nil
}

func (b *qbeBackend) genFunc(fn *ir.Func) error {
	b.currentFn = fn
	linkage := ""
	if fn.Exported {
		linkage = "export "
	}
	fmt.Fprintf(b.out, "\n%sfunction %s $%s(", linkage, b.formatType(fn.ReturnType), fn.Name)

	for i, p := range fn.Params {
		fmt.Fprintf(b.out, "%s %s", b.formatType(p.Typ), b.formatValue(p.Val))
		if i < len(fn.Params)-1 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(") {\n")

	for _, block := range fn.Blocks {
		if err := b.genBlock(block); err != nil {
			return err
		}
	}

	b.out.WriteString("}\n")
	return nil
}

func (b *qbeBackend) genBlock(block *ir.BasicBlock) error {
	fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
	for _, instr := range block.Instructions {
		if err := b.genInstr(instr); err != nil {
			return fmt.Errorf("$%s @%s: %w", b.currentFn.Name, block.Label.Name, err)
		}
	}
	return nil
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) error {
	for _, arg := range instr.Args {
		if c, ok := arg.(*ir.FloatConst); ok && (math.IsInf(c.Value, 0) || math.IsNaN(c.Value)) {
			return fmt.Errorf("constant %v has no QBE literal", c.Value)
		}
	}

	switch instr.Op {
	case ir.OpCall:
		b.genCall(instr)
		return nil
	case ir.OpCULt:
		// QBE has no unordered less-than: lt or unordered.
		b.genCmpPair(instr, "cuod", "cltd", "or")
		return nil
	case ir.OpCONe:
		b.genCmpPair(instr, "cod", "cned", "and")
		return nil
	}

	opStr, err := b.formatOp(instr)
	if err != nil {
		return err
	}
	b.out.WriteString("\t")
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}
	b.out.WriteString(opStr)
	for i, arg := range instr.Args {
		b.out.WriteString(" ")
		if arg != nil {
			b.out.WriteString(b.formatValue(arg))
		}
		if i < len(instr.Args)-1 {
			b.out.WriteString(",")
		}
	}
	b.out.WriteString("\n")
	return nil
}

// genCmpPair emits two double comparisons into scratch temporaries and
// combines them with a word operation into the instruction's result.
func (b *qbeBackend) genCmpPair(instr *ir.Instruction, first, second, combine string) {
	res := b.formatValue(instr.Result)
	l, r := b.formatValue(instr.Args[0]), b.formatValue(instr.Args[1])
	fmt.Fprintf(b.out, "\t%s_a =w %s %s, %s\n", res, first, l, r)
	fmt.Fprintf(b.out, "\t%s_b =w %s %s, %s\n", res, second, l, r)
	fmt.Fprintf(b.out, "\t%s =w %s %s_a, %s_b\n", res, combine, res, res)
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	b.out.WriteString("\t")
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}
	fmt.Fprintf(b.out, "call %s(", b.formatValue(instr.Args[0]))
	for i, arg := range instr.Args[1:] {
		argType := ir.TypeD
		if i < len(instr.ArgTypes) {
			argType = instr.ArgTypes[i]
		}
		fmt.Fprintf(b.out, "%s %s", b.formatType(argType), b.formatValue(arg))
		if i < len(instr.Args)-2 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case *ir.Const:
		return strconv.FormatInt(val.Value, 10)
	case *ir.FloatConst:
		return b.formatType(val.Typ) + "_" + formatFloat(val.Value)
	case *ir.Global:
		return "$" + val.Name
	case *ir.Temporary:
		if val.Name != "" {
			return fmt.Sprintf("%%%s.%d", val.Name, val.ID)
		}
		return fmt.Sprintf("%%t%d", val.ID)
	case *ir.Label:
		return "@" + val.Name
	default:
		return ""
	}
}

// formatFloat spells a finite double the way QBE's d_ literals accept it.
func formatFloat(x float64) string {
	s := strconv.FormatFloat(x, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (b *qbeBackend) formatType(t ir.Type) string {
	switch t {
	case ir.TypeW:
		return "w"
	case ir.TypeL:
		return "l"
	case ir.TypeD:
		return "d"
	case ir.TypePtr:
		if b.prog != nil && b.prog.WordSize == 4 {
			return "w"
		}
		return "l"
	default:
		return ""
	}
}

func (b *qbeBackend) formatOp(instr *ir.Instruction) (string, error) {
	typeStr := b.formatType(instr.Typ)
	switch instr.Op {
	case ir.OpAlloc:
		if instr.Align <= 4 {
			return "alloc4", nil
		}
		if instr.Align <= 8 {
			return "alloc8", nil
		}
		return "alloc16", nil
	case ir.OpLoad:
		return "load" + typeStr, nil
	case ir.OpStore:
		return "store" + typeStr, nil
	case ir.OpAddF:
		return "add", nil
	case ir.OpSubF:
		return "sub", nil
	case ir.OpMulF:
		return "mul", nil
	case ir.OpDivF:
		return "div", nil
	case ir.OpUWToF:
		return "uwtof", nil
	case ir.OpJmp:
		return "jmp", nil
	case ir.OpJnz:
		return "jnz", nil
	case ir.OpRet:
		return "ret", nil
	default:
		return "", fmt.Errorf("no QBE instruction for %s", instr.Op)
	}
}
