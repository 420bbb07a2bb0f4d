package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a readable listing of p, one function after another.
func Fprint(w io.Writer, p *Program) error {
	var sb strings.Builder
	for i, fn := range p.Funcs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		writeFunc(&sb, fn)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (p *Program) String() string {
	var sb strings.Builder
	_ = Fprint(&sb, p)
	return sb.String()
}

func writeFunc(sb *strings.Builder, fn *Func) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %s", p.Typ, p.Val)
	}
	sig := fmt.Sprintf("function %s $%s(%s)", fn.ReturnType, fn.Name, strings.Join(params, ", "))
	if fn.IsForeign() {
		fmt.Fprintf(sb, "foreign %s\n", sig)
		return
	}
	if fn.Exported {
		sb.WriteString("export ")
	}
	sb.WriteString(sig + " {\n")
	for _, bb := range fn.Blocks {
		fmt.Fprintf(sb, "%s\n", bb.Label)
		for _, instr := range bb.Instructions {
			sb.WriteString("\t" + instr.String() + "\n")
		}
	}
	sb.WriteString("}\n")
}

func (instr *Instruction) String() string {
	args := make([]string, len(instr.Args))
	for i, a := range instr.Args {
		args[i] = a.String()
	}
	text := instr.Op.String()
	switch instr.Op {
	case OpStore, OpRet:
		text += " " + instr.Typ.String()
	case OpCULt, OpCONe, OpUWToF:
		text += " " + instr.OperandType.String()
	}
	if len(args) > 0 {
		text += " " + strings.Join(args, ", ")
	}
	if instr.Result != nil {
		return fmt.Sprintf("%s =%s %s", instr.Result, instr.Typ, text)
	}
	return text
}
