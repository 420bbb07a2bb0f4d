package ir

import (
	"errors"
	"fmt"
)

// Verify checks the structural rules every lowered Program must satisfy:
// each block ends in exactly one terminator, branches name blocks of the same
// function, allocs live in the entry block, temporaries are defined before
// the backend sees them, and calls match the arity of a declared function.
func Verify(p *Program) error {
	var errs []error
	seen := make(map[string]bool, len(p.Funcs))
	for _, fn := range p.Funcs {
		if seen[fn.Name] {
			errs = append(errs, fmt.Errorf("function $%s declared twice", fn.Name))
		}
		seen[fn.Name] = true
		errs = append(errs, verifyFunc(p, fn)...)
	}
	return errors.Join(errs...)
}

func verifyFunc(p *Program, fn *Func) []error {
	var errs []error
	errorf := func(bb *BasicBlock, format string, args ...any) {
		loc := "$" + fn.Name
		if bb != nil {
			loc += " @" + bb.Label.Name
		}
		errs = append(errs, fmt.Errorf("%s: %s", loc, fmt.Sprintf(format, args...)))
	}

	labels := make(map[string]bool, len(fn.Blocks))
	defined := make(map[string]bool)
	for _, param := range fn.Params {
		defined[param.Val.String()] = true
	}
	for _, bb := range fn.Blocks {
		if labels[bb.Label.Name] {
			errorf(bb, "duplicate label")
		}
		labels[bb.Label.Name] = true
		for _, instr := range bb.Instructions {
			if instr.Result != nil {
				defined[instr.Result.String()] = true
			}
		}
	}

	for i, bb := range fn.Blocks {
		if len(bb.Instructions) == 0 {
			errorf(bb, "empty block")
			continue
		}
		if bb.Terminator() == nil {
			errorf(bb, "block does not end in a terminator")
		}
		for j, instr := range bb.Instructions {
			if instr.Op.IsTerminator() && j != len(bb.Instructions)-1 {
				errorf(bb, "terminator %s at position %d is followed by %d more instruction(s)", instr.Op, j, len(bb.Instructions)-1-j)
			}
			if instr.Op == OpAlloc && i != 0 {
				errorf(bb, "alloc outside the entry block")
			}
			for _, arg := range instr.Args {
				switch a := arg.(type) {
				case *Label:
					if !labels[a.Name] {
						errorf(bb, "branch to unknown block @%s", a.Name)
					}
				case *Temporary:
					if !defined[a.String()] {
						errorf(bb, "use of undefined temporary %s", a)
					}
				}
			}
			if instr.Op == OpCall {
				errs = append(errs, verifyCall(p, fn, bb, instr)...)
			}
		}
	}
	return errs
}

func verifyCall(p *Program, fn *Func, bb *BasicBlock, instr *Instruction) []error {
	if len(instr.Args) == 0 {
		return []error{fmt.Errorf("$%s @%s: call without a callee", fn.Name, bb.Label.Name)}
	}
	g, ok := instr.Args[0].(*Global)
	if !ok {
		return []error{fmt.Errorf("$%s @%s: call through a non-global %s", fn.Name, bb.Label.Name, instr.Args[0])}
	}
	callee := p.FindFunc(g.Name)
	if callee == nil {
		return []error{fmt.Errorf("$%s @%s: call to undeclared function $%s", fn.Name, bb.Label.Name, g.Name)}
	}
	if got := len(instr.Args) - 1; got != callee.Arity() {
		return []error{fmt.Errorf("$%s @%s: call to $%s with %d argument(s), want %d", fn.Name, bb.Label.Name, g.Name, got, callee.Arity())}
	}
	return nil
}
