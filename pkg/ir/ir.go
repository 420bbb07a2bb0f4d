package ir

import (
	"strconv"
)

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpCULt // unordered less-than: true if either operand is NaN
	OpCONe // ordered not-equal: false if either operand is NaN
	OpUWToF
	OpJmp
	OpJnz
	OpRet
	OpCall
)

var opNames = [...]string{
	OpAlloc: "alloc",
	OpLoad:  "load",
	OpStore: "store",
	OpAddF:  "add",
	OpSubF:  "sub",
	OpMulF:  "mul",
	OpDivF:  "div",
	OpCULt:  "cult",
	OpCONe:  "cone",
	OpUWToF: "uwtof",
	OpJmp:   "jmp",
	OpJnz:   "jnz",
	OpRet:   "ret",
	OpCall:  "call",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// IsTerminator reports whether op ends a basic block.
func (op Op) IsTerminator() bool {
	return op == OpJmp || op == OpJnz || op == OpRet
}

// IsArith reports whether op is one of the float arithmetic operations.
func (op Op) IsArith() bool {
	return op >= OpAddF && op <= OpDivF
}

type Type int

const (
	TypeNone Type = iota
	TypeW         // word (32-bit), the result of comparisons
	TypeL         // long (64-bit)
	TypeD         // double float (64-bit), the type of every language value
	TypePtr       // address of a stack slot
)

func (t Type) String() string {
	switch t {
	case TypeW:
		return "w"
	case TypeL:
		return "l"
	case TypeD:
		return "d"
	case TypePtr:
		return "ptr"
	}
	return ""
}

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }

type FloatConst struct {
	Value float64
	Typ   Type
}

type Global struct{ Name string }

type Temporary struct {
	Name string
	ID   int
}

type Label struct{ Name string }

func (c *Const) isValue()      {}
func (f *FloatConst) isValue() {}
func (g *Global) isValue()     {}
func (t *Temporary) isValue()  {}
func (l *Label) isValue()      {}

func (c *Const) String() string { return strconv.FormatInt(c.Value, 10) }
func (f *FloatConst) String() string {
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}
func (g *Global) String() string { return "$" + g.Name }
func (t *Temporary) String() string {
	if t.Name != "" {
		return "%" + t.Name + "." + strconv.Itoa(t.ID)
	}
	return "%t" + strconv.Itoa(t.ID)
}
func (l *Label) String() string { return "@" + l.Name }

// Func is one function of a Program. A Func without blocks is a foreign
// declaration.
type Func struct {
	Name       string
	Params     []*Param
	ReturnType Type
	Exported   bool
	Blocks     []*BasicBlock

	tempCount   int
	labelCounts map[string]int
}

type Param struct {
	Name string
	Typ  Type
	Val  Value
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

type Instruction struct {
	Op          Op
	Typ         Type
	OperandType Type
	Result      Value
	Args        []Value
	ArgTypes    []Type
	Align       int
}

type Program struct {
	Funcs    []*Func
	WordSize int
}

func (f *Func) Arity() int { return len(f.Params) }

func (f *Func) IsForeign() bool { return len(f.Blocks) == 0 }

// Entry returns the first block, or nil for a foreign declaration.
func (f *Func) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// FindBlock returns the block with the given label name.
func (f *Func) FindBlock(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label.Name == name {
			return b
		}
	}
	return nil
}

// Terminator returns the last instruction of b if it ends the block.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Successors returns the labels b branches to.
func (b *BasicBlock) Successors() []*Label {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	var succ []*Label
	for _, a := range term.Args {
		if l, ok := a.(*Label); ok {
			succ = append(succ, l)
		}
	}
	return succ
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func SizeOfType(t Type, wordSize int) int64 {
	switch t {
	case TypeW:
		return 4
	case TypeL, TypeD:
		return 8
	case TypePtr:
		return int64(wordSize)
	default:
		return int64(wordSize)
	}
}
