//go:build !windows

package codegen

import (
	"runtime"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/ganc/pkg/config"
)

func TestQBEAssemble(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetTarget(runtime.GOOS, runtime.GOARCH, "qbe")
	res := mustLower(t, backendSrc)

	asm, err := NewQBEBackend().Generate(res.Program, cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(asm.String(), "_anc_main"))
	be.True(t, strings.Contains(asm.String(), "wave"))
}
