package codegen

import (
	"bytes"
	"fmt"
	"strings"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/ir"
)

type llvmBackend struct {
	m      *llir.Module
	funcs  map[string]*llir.Func
	values map[string]value.Value
	blocks map[string]*llir.Block
}

func NewLLVMBackend() Backend { return &llvmBackend{} }

// Generate returns the LLVM IR module as text; assembling it is left to an
// external llc or clang.
func (b *llvmBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	text, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(text), nil
}

func (b *llvmBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	b.m = llir.NewModule()
	b.funcs = make(map[string]*llir.Func, len(prog.Funcs))

	// Every signature first, so calls can refer to functions defined later.
	for _, fn := range prog.Funcs {
		params := make([]*llir.Param, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = llir.NewParam(localName(p.Val), types.Double)
		}
		f := b.m.NewFunc(fn.Name, types.Double, params...)
		if !fn.IsForeign() && !fn.Exported {
			f.Linkage = enum.LinkageInternal
		}
		b.funcs[fn.Name] = f
	}

	for _, fn := range prog.Funcs {
		if fn.IsForeign() {
			continue
		}
		if err := b.genFunc(fn); err != nil {
			return "", fmt.Errorf("llvm: $%s: %w", fn.Name, err)
		}
	}
	return b.m.String(), nil
}

func localName(v ir.Value) string { return strings.TrimPrefix(v.String(), "%") }

func (b *llvmBackend) genFunc(fn *ir.Func) error {
	f := b.funcs[fn.Name]
	b.values = make(map[string]value.Value)
	b.blocks = make(map[string]*llir.Block, len(fn.Blocks))

	for i, p := range fn.Params {
		b.values[p.Val.String()] = f.Params[i]
	}
	for _, bb := range fn.Blocks {
		b.blocks[bb.Label.Name] = f.NewBlock(bb.Label.Name)
	}
	for _, bb := range fn.Blocks {
		blk := b.blocks[bb.Label.Name]
		for _, instr := range bb.Instructions {
			if err := b.genInstr(blk, instr); err != nil {
				return fmt.Errorf("@%s: %w", bb.Label.Name, err)
			}
		}
	}
	return nil
}

func (b *llvmBackend) operand(v ir.Value) (value.Value, error) {
	switch val := v.(type) {
	case *ir.FloatConst:
		return constant.NewFloat(types.Double, val.Value), nil
	case *ir.Const:
		return constant.NewInt(types.I64, val.Value), nil
	case *ir.Temporary:
		if lv, ok := b.values[val.String()]; ok {
			return lv, nil
		}
		return nil, fmt.Errorf("use of undefined temporary %s", val)
	default:
		return nil, fmt.Errorf("unsupported operand %s", v)
	}
}

func (b *llvmBackend) operands(args []ir.Value) ([]value.Value, error) {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		v, err := b.operand(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (b *llvmBackend) block(v ir.Value) (*llir.Block, error) {
	l, ok := v.(*ir.Label)
	if !ok {
		return nil, fmt.Errorf("branch target %s is not a label", v)
	}
	blk, ok := b.blocks[l.Name]
	if !ok {
		return nil, fmt.Errorf("branch to unknown block @%s", l.Name)
	}
	return blk, nil
}

type namedValue interface {
	value.Value
	SetName(name string)
}

func (b *llvmBackend) genInstr(blk *llir.Block, instr *ir.Instruction) error {
	var res namedValue
	switch instr.Op {
	case ir.OpAlloc:
		res = blk.NewAlloca(types.Double)
	case ir.OpLoad:
		ptr, err := b.operand(instr.Args[0])
		if err != nil {
			return err
		}
		res = blk.NewLoad(types.Double, ptr)
	case ir.OpStore:
		args, err := b.operands(instr.Args)
		if err != nil {
			return err
		}
		blk.NewStore(args[0], args[1])
	case ir.OpAddF, ir.OpSubF, ir.OpMulF, ir.OpDivF:
		args, err := b.operands(instr.Args)
		if err != nil {
			return err
		}
		switch instr.Op {
		case ir.OpAddF:
			res = blk.NewFAdd(args[0], args[1])
		case ir.OpSubF:
			res = blk.NewFSub(args[0], args[1])
		case ir.OpMulF:
			res = blk.NewFMul(args[0], args[1])
		default:
			res = blk.NewFDiv(args[0], args[1])
		}
	case ir.OpCULt, ir.OpCONe:
		args, err := b.operands(instr.Args)
		if err != nil {
			return err
		}
		pred := enum.FPredULT
		if instr.Op == ir.OpCONe {
			pred = enum.FPredONE
		}
		res = blk.NewFCmp(pred, args[0], args[1])
	case ir.OpUWToF:
		x, err := b.operand(instr.Args[0])
		if err != nil {
			return err
		}
		res = blk.NewUIToFP(x, types.Double)
	case ir.OpJmp:
		target, err := b.block(instr.Args[0])
		if err != nil {
			return err
		}
		blk.NewBr(target)
	case ir.OpJnz:
		cond, err := b.operand(instr.Args[0])
		if err != nil {
			return err
		}
		if it, ok := cond.Type().(*types.IntType); ok && it.BitSize != 1 {
			cond = blk.NewICmp(enum.IPredNE, cond, constant.NewInt(it, 0))
		}
		ifTrue, err := b.block(instr.Args[1])
		if err != nil {
			return err
		}
		ifFalse, err := b.block(instr.Args[2])
		if err != nil {
			return err
		}
		blk.NewCondBr(cond, ifTrue, ifFalse)
	case ir.OpRet:
		x, err := b.operand(instr.Args[0])
		if err != nil {
			return err
		}
		blk.NewRet(x)
	case ir.OpCall:
		g, ok := instr.Args[0].(*ir.Global)
		if !ok {
			return fmt.Errorf("call through non-global %s", instr.Args[0])
		}
		callee, ok := b.funcs[g.Name]
		if !ok {
			return fmt.Errorf("call to undeclared function $%s", g.Name)
		}
		args, err := b.operands(instr.Args[1:])
		if err != nil {
			return err
		}
		res = blk.NewCall(callee, args...)
	default:
		return fmt.Errorf("no LLVM instruction for %s", instr.Op)
	}

	if res != nil && instr.Result != nil {
		res.SetName(localName(instr.Result))
		b.values[instr.Result.String()] = res
	}
	return nil
}
