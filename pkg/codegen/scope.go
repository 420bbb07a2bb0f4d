package codegen

import (
	"fmt"

	"github.com/xplshn/ganc/pkg/ir"
)

// Scope maps the variable names of one function to their stack slots.
// Blocks do not open new scopes: a name declared anywhere in a function is
// visible until the function ends.
type Scope struct {
	slots map[string]ir.Value
}

func NewScope() *Scope { return &Scope{slots: make(map[string]ir.Value)} }

// ErrRedeclared is returned by Bind when the name already has a slot.
type ErrRedeclared struct{ Name string }

func (e *ErrRedeclared) Error() string {
	return fmt.Sprintf("'%s' is already declared in this function", e.Name)
}

func (s *Scope) Lookup(name string) (ir.Value, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}

// Bind records slot for name. If name is already bound the first binding is
// kept and an *ErrRedeclared is returned.
func (s *Scope) Bind(name string, slot ir.Value) error {
	if _, exists := s.slots[name]; exists {
		return &ErrRedeclared{Name: name}
	}
	s.slots[name] = slot
	return nil
}

func (s *Scope) Len() int { return len(s.slots) }
