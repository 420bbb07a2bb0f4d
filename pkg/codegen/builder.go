package codegen

import (
	"github.com/xplshn/ganc/pkg/ir"
)

// Builder is what lowering needs from an instruction builder. Every value is
// a double; comparisons produce a word that must be widened with UWToF
// before it can be used as a value.
type Builder interface {
	Program() *ir.Program

	DeclareFunc(name string, params []string, exported bool) *ir.Func
	Arity(fn *ir.Func) int
	Param(fn *ir.Func, i int) ir.Value

	AppendBlock(fn *ir.Func, name string) *ir.BasicBlock
	SetInsertPoint(fn *ir.Func, bb *ir.BasicBlock)
	InsertBlock() *ir.BasicBlock
	InsertFunc() *ir.Func

	// Alloc places a slot in the entry block of the current function.
	Alloc(name string) ir.Value
	Load(ptr ir.Value) ir.Value
	Store(v, ptr ir.Value)

	Arith(op ir.Op, l, r ir.Value) ir.Value
	CmpULt(l, r ir.Value) ir.Value
	CmpONe(l, r ir.Value) ir.Value
	UWToF(v ir.Value) ir.Value

	Jmp(target *ir.BasicBlock)
	Jnz(cond ir.Value, ifTrue, ifFalse *ir.BasicBlock)
	Call(fn *ir.Func, args []ir.Value) ir.Value
	Ret(v ir.Value)

	FloatConst(x float64) ir.Value
}

var _ Builder = (*ir.Builder)(nil)
