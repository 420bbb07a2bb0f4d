// Package interp executes a lowered ir.Program directly. It stands in for
// the native runtime in tests and behind the driver's --run flag.
package interp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xplshn/ganc/pkg/ir"
)

// Foreign implements a function the program declares but does not define.
type Foreign func(args []float64) (float64, error)

// DefaultStepLimit bounds the number of instructions one Run may execute.
const DefaultStepLimit = 10_000_000

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrNoForeign       = errors.New("no implementation for foreign function")
	ErrArity           = errors.New("wrong number of arguments")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrMalformed       = errors.New("malformed IR")
)

type Machine struct {
	prog    *ir.Program
	foreign map[string]Foreign
	// StepLimit caps executed instructions; zero or less means no limit.
	StepLimit int
	steps     int
}

func New(prog *ir.Program, foreign map[string]Foreign) *Machine {
	if foreign == nil {
		foreign = map[string]Foreign{}
	}
	return &Machine{prog: prog, foreign: foreign, StepLimit: DefaultStepLimit}
}

// Steps returns how many instructions the last Run executed.
func (m *Machine) Steps() int { return m.steps }

// Run calls the function emitted under name and returns its result.
func (m *Machine) Run(ctx context.Context, name string, args ...float64) (float64, error) {
	m.steps = 0
	return m.call(ctx, name, args, 0)
}

const maxDepth = 10_000

type frame struct {
	fn     *ir.Func
	temps  map[string]float64
	slots  map[string]*float64
	blocks map[string]*ir.BasicBlock
}

func (m *Machine) call(ctx context.Context, name string, args []float64, depth int) (float64, error) {
	fn := m.prog.FindFunc(name)
	if fn == nil {
		if f, ok := m.foreign[name]; ok {
			return f(args)
		}
		return 0, fmt.Errorf("%w: $%s", ErrUnknownFunction, name)
	}
	if len(args) != fn.Arity() {
		return 0, fmt.Errorf("%w: $%s takes %d, got %d", ErrArity, name, fn.Arity(), len(args))
	}
	if fn.IsForeign() {
		f, ok := m.foreign[name]
		if !ok {
			return 0, fmt.Errorf("%w: $%s", ErrNoForeign, name)
		}
		return f(args)
	}
	if depth >= maxDepth {
		return 0, fmt.Errorf("$%s: call depth exceeds %d", name, maxDepth)
	}

	fr := &frame{
		fn:     fn,
		temps:  make(map[string]float64),
		slots:  make(map[string]*float64),
		blocks: make(map[string]*ir.BasicBlock, len(fn.Blocks)),
	}
	for _, bb := range fn.Blocks {
		fr.blocks[bb.Label.Name] = bb
	}
	for i, p := range fn.Params {
		fr.temps[p.Val.String()] = args[i]
	}
	return m.exec(ctx, fr, depth)
}

func (m *Machine) exec(ctx context.Context, fr *frame, depth int) (float64, error) {
	bb := fr.fn.Entry()
	for {
		next, ret, done, err := m.execBlock(ctx, fr, bb, depth)
		if err != nil {
			return 0, fmt.Errorf("$%s @%s: %w", fr.fn.Name, bb.Label.Name, err)
		}
		if done {
			return ret, nil
		}
		bb = next
	}
}

func (m *Machine) execBlock(ctx context.Context, fr *frame, bb *ir.BasicBlock, depth int) (next *ir.BasicBlock, ret float64, done bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}
	for _, instr := range bb.Instructions {
		m.steps++
		if m.StepLimit > 0 && m.steps > m.StepLimit {
			return nil, 0, false, ErrStepLimit
		}
		switch instr.Op {
		case ir.OpAlloc:
			fr.slots[instr.Result.String()] = new(float64)
		case ir.OpLoad:
			slot, err := fr.slot(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			fr.temps[instr.Result.String()] = *slot
		case ir.OpStore:
			v, err := fr.value(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			slot, err := fr.slot(instr.Args[1])
			if err != nil {
				return nil, 0, false, err
			}
			*slot = v
		case ir.OpAddF, ir.OpSubF, ir.OpMulF, ir.OpDivF, ir.OpCULt, ir.OpCONe:
			l, err := fr.value(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			r, err := fr.value(instr.Args[1])
			if err != nil {
				return nil, 0, false, err
			}
			fr.temps[instr.Result.String()] = binary(instr.Op, l, r)
		case ir.OpUWToF:
			v, err := fr.value(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			fr.temps[instr.Result.String()] = v
		case ir.OpCall:
			g, ok := instr.Args[0].(*ir.Global)
			if !ok {
				return nil, 0, false, fmt.Errorf("%w: call through %s", ErrMalformed, instr.Args[0])
			}
			args := make([]float64, len(instr.Args)-1)
			for i, a := range instr.Args[1:] {
				if args[i], err = fr.value(a); err != nil {
					return nil, 0, false, err
				}
			}
			res, err := m.call(ctx, g.Name, args, depth+1)
			if err != nil {
				return nil, 0, false, err
			}
			fr.temps[instr.Result.String()] = res
		case ir.OpRet:
			v, err := fr.value(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			return nil, v, true, nil
		case ir.OpJmp:
			target, err := fr.block(instr.Args[0])
			return target, 0, false, err
		case ir.OpJnz:
			c, err := fr.value(instr.Args[0])
			if err != nil {
				return nil, 0, false, err
			}
			arg := instr.Args[2]
			if c != 0 {
				arg = instr.Args[1]
			}
			target, err := fr.block(arg)
			return target, 0, false, err
		default:
			return nil, 0, false, fmt.Errorf("%w: unknown op %s", ErrMalformed, instr.Op)
		}
	}
	return nil, 0, false, fmt.Errorf("%w: block falls off its end", ErrMalformed)
}

// binary evaluates an arithmetic op or a comparison; comparisons yield 1 or 0.
func binary(op ir.Op, l, r float64) float64 {
	switch op {
	case ir.OpAddF:
		return l + r
	case ir.OpSubF:
		return l - r
	case ir.OpMulF:
		return l * r
	case ir.OpDivF:
		return l / r
	case ir.OpCULt:
		return boolToFloat(l < r || math.IsNaN(l) || math.IsNaN(r))
	case ir.OpCONe:
		return boolToFloat(l != r && !math.IsNaN(l) && !math.IsNaN(r))
	}
	return math.NaN()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (fr *frame) value(v ir.Value) (float64, error) {
	switch val := v.(type) {
	case *ir.FloatConst:
		return val.Value, nil
	case *ir.Const:
		return float64(val.Value), nil
	case *ir.Temporary:
		x, ok := fr.temps[val.String()]
		if !ok {
			return 0, fmt.Errorf("%w: use of undefined temporary %s", ErrMalformed, val)
		}
		return x, nil
	}
	return 0, fmt.Errorf("%w: %s is not a value", ErrMalformed, v)
}

func (fr *frame) slot(v ir.Value) (*float64, error) {
	if t, ok := v.(*ir.Temporary); ok {
		if s, ok := fr.slots[t.String()]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a stack slot", ErrMalformed, v)
}

func (fr *frame) block(v ir.Value) (*ir.BasicBlock, error) {
	if l, ok := v.(*ir.Label); ok {
		if bb, ok := fr.blocks[l.Name]; ok {
			return bb, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown branch target %s", ErrMalformed, v)
}
