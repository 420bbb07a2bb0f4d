package ir

import (
	"fmt"
)

// Builder appends instructions to a Program one block at a time. It keeps a
// single insertion point; every emitting method writes at the end of the
// current block.
type Builder struct {
	prog  *Program
	fn    *Func
	block *BasicBlock
}

func NewBuilder(wordSize int) *Builder {
	return &Builder{prog: &Program{WordSize: wordSize}}
}

func (b *Builder) Program() *Program { return b.prog }

// DeclareFunc registers a function signature. Every parameter and the return
// value are doubles.
func (b *Builder) DeclareFunc(name string, params []string, exported bool) *Func {
	fn := &Func{Name: name, ReturnType: TypeD, Exported: exported}
	for i, p := range params {
		fn.Params = append(fn.Params, &Param{Name: p, Typ: TypeD, Val: &Temporary{Name: "p_" + p, ID: i}})
	}
	b.prog.Funcs = append(b.prog.Funcs, fn)
	return fn
}

func (b *Builder) Arity(fn *Func) int { return fn.Arity() }

func (b *Builder) Param(fn *Func, i int) Value { return fn.Params[i].Val }

// AppendBlock adds a block to fn. Labels are unique per function: the first
// block named "then" is "then", later ones get a numeric suffix.
func (b *Builder) AppendBlock(fn *Func, name string) *BasicBlock {
	if fn.labelCounts == nil {
		fn.labelCounts = make(map[string]int)
	}
	label := name
	if n := fn.labelCounts[name]; n > 0 {
		label = fmt.Sprintf("%s.%d", name, n)
	}
	fn.labelCounts[name]++
	bb := &BasicBlock{Label: &Label{Name: label}}
	fn.Blocks = append(fn.Blocks, bb)
	return bb
}

// SetInsertPoint moves emission to the end of bb, inside fn.
func (b *Builder) SetInsertPoint(fn *Func, bb *BasicBlock) {
	b.fn = fn
	b.block = bb
}

func (b *Builder) InsertBlock() *BasicBlock { return b.block }
func (b *Builder) InsertFunc() *Func        { return b.fn }

func (b *Builder) newTemp() *Temporary {
	b.fn.tempCount++
	return &Temporary{ID: b.fn.tempCount}
}

func (b *Builder) addInstr(instr *Instruction) {
	if b.block == nil {
		panic("ir: instruction emitted without an insertion point")
	}
	b.block.Instructions = append(b.block.Instructions, instr)
}

// Alloc reserves a double-sized stack slot. The alloc is placed in the entry
// block after any earlier allocs, wherever the insertion point currently is.
func (b *Builder) Alloc(name string) Value {
	entry := b.fn.Entry()
	b.fn.tempCount++
	slot := &Temporary{Name: name, ID: b.fn.tempCount}
	instr := &Instruction{
		Op: OpAlloc, Typ: TypePtr, Result: slot,
		Args: []Value{&Const{Value: SizeOfType(TypeD, b.prog.WordSize)}}, Align: 8,
	}
	i := 0
	for i < len(entry.Instructions) && entry.Instructions[i].Op == OpAlloc {
		i++
	}
	entry.Instructions = append(entry.Instructions, nil)
	copy(entry.Instructions[i+1:], entry.Instructions[i:])
	entry.Instructions[i] = instr
	return slot
}

func (b *Builder) Load(ptr Value) Value {
	res := b.newTemp()
	b.addInstr(&Instruction{Op: OpLoad, Typ: TypeD, Result: res, Args: []Value{ptr}})
	return res
}

func (b *Builder) Store(v, ptr Value) {
	b.addInstr(&Instruction{Op: OpStore, Typ: TypeD, Args: []Value{v, ptr}})
}

// Arith emits one of OpAddF, OpSubF, OpMulF or OpDivF.
func (b *Builder) Arith(op Op, l, r Value) Value {
	if !op.IsArith() {
		panic(fmt.Sprintf("ir: %s is not an arithmetic operation", op))
	}
	res := b.newTemp()
	b.addInstr(&Instruction{Op: op, Typ: TypeD, Result: res, Args: []Value{l, r}})
	return res
}

func (b *Builder) cmp(op Op, l, r Value) Value {
	res := b.newTemp()
	b.addInstr(&Instruction{Op: op, Typ: TypeW, OperandType: TypeD, Result: res, Args: []Value{l, r}})
	return res
}

func (b *Builder) CmpULt(l, r Value) Value { return b.cmp(OpCULt, l, r) }
func (b *Builder) CmpONe(l, r Value) Value { return b.cmp(OpCONe, l, r) }

// UWToF converts a 0/1 comparison result to 0.0/1.0.
func (b *Builder) UWToF(v Value) Value {
	res := b.newTemp()
	b.addInstr(&Instruction{Op: OpUWToF, Typ: TypeD, OperandType: TypeW, Result: res, Args: []Value{v}})
	return res
}

func (b *Builder) Jmp(target *BasicBlock) {
	b.addInstr(&Instruction{Op: OpJmp, Args: []Value{target.Label}})
}

func (b *Builder) Jnz(cond Value, ifTrue, ifFalse *BasicBlock) {
	b.addInstr(&Instruction{Op: OpJnz, OperandType: TypeW, Args: []Value{cond, ifTrue.Label, ifFalse.Label}})
}

func (b *Builder) Call(fn *Func, args []Value) Value {
	res := b.newTemp()
	callArgs := append([]Value{&Global{Name: fn.Name}}, args...)
	argTypes := make([]Type, len(args))
	for i := range argTypes {
		argTypes[i] = TypeD
	}
	b.addInstr(&Instruction{Op: OpCall, Typ: TypeD, Result: res, Args: callArgs, ArgTypes: argTypes})
	return res
}

func (b *Builder) Ret(v Value) {
	b.addInstr(&Instruction{Op: OpRet, Typ: TypeD, Args: []Value{v}})
}

func (b *Builder) FloatConst(x float64) Value {
	return &FloatConst{Value: x, Typ: TypeD}
}
