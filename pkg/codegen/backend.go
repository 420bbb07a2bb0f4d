package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the target
	// assembly or intermediate language as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
	// GenerateIR produces the backend's own textual IR without assembling it.
	GenerateIR(prog *ir.Program, cfg *config.Config) (string, error)
}

// SelectBackend returns the backend registered under name.
func SelectBackend(name string) (Backend, error) {
	switch name {
	case "qbe":
		return NewQBEBackend(), nil
	case "llvm":
		return NewLLVMBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend '%s'", name)
	}
}
