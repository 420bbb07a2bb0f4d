package config

import (
	"bytes"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/ganc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	be.True(t, cfg.IsWarningEnabled(WarnUnreachableCode))
	be.True(t, !cfg.IsWarningEnabled(WarnImplicitReturn))
	be.True(t, !cfg.IsFeatureEnabled(FeatForwardRefs))
	be.True(t, cfg.IsFeatureEnabled(FeatNestedFuncs))
	be.Equal(t, cfg.EntrySymbol, EntrySymbol)
	be.Equal(t, cfg.BackendName, "qbe")
}

func TestApplyFlag(t *testing.T) {
	cfg := NewConfig()

	be.Err(t, cfg.ApplyFlag("-Wimplicit-return"), nil)
	be.True(t, cfg.IsWarningEnabled(WarnImplicitReturn))

	be.Err(t, cfg.ApplyFlag("-Wno-unreachable-code"), nil)
	be.True(t, !cfg.IsWarningEnabled(WarnUnreachableCode))

	be.Err(t, cfg.ApplyFlag("-Fforward-refs"), nil)
	be.True(t, cfg.IsFeatureEnabled(FeatForwardRefs))

	be.Err(t, cfg.ApplyFlag("-Fno-nested-funcs"), nil)
	be.True(t, !cfg.IsFeatureEnabled(FeatNestedFuncs))

	be.Err(t, cfg.ApplyFlag("-Wall"), nil)
	for w := Warning(0); w < WarnCount; w++ {
		be.True(t, cfg.IsWarningEnabled(w))
	}
	be.Err(t, cfg.ApplyFlag("-Wno-all"), nil)
	for w := Warning(0); w < WarnCount; w++ {
		be.True(t, !cfg.IsWarningEnabled(w))
	}

	be.Err(t, cfg.ApplyFlag("-Wbogus"), "unknown warning 'bogus'")
	be.Err(t, cfg.ApplyFlag("-Fbogus"), "unknown feature 'bogus'")
}

func TestSetTarget(t *testing.T) {
	tests := []struct {
		target   string
		want     string
		wordSize int
		align    int
	}{
		{"qbe/amd64_sysv", "amd64_sysv", 8, 16},
		{"qbe/arm64_apple", "arm64_apple", 8, 16},
		{"qbe/rv32", "rv32", 4, 8},
		{"llvm/arm", "arm", 4, 8},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var log bytes.Buffer
			cfg := NewConfig()
			cfg.Log = &log
			cfg.SetTarget("linux", "amd64", tt.target)
			be.Equal(t, cfg.BackendTarget, tt.want)
			be.Equal(t, cfg.WordSize, tt.wordSize)
			be.Equal(t, cfg.StackAlignment, tt.align)
			be.Equal(t, log.String(), "ganc: info: using specified target '"+tt.want+"'\n")
		})
	}

	cfg := NewConfig()
	cfg.SetTarget("linux", "amd64", "llvm")
	be.Equal(t, cfg.BackendName, "llvm")
	be.True(t, cfg.BackendTarget != "")
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("ganc")
	warnings, features := cfg.SetupFlagGroups(fs)
	be.Equal(t, len(warnings), int(WarnCount))
	be.Equal(t, len(features), int(FeatCount))
	be.True(t, warnings[WarnUnreachableCode].Default)

	err := fs.Parse([]string{"-Wimplicit-return", "-Wno-unreachable-code", "-Fforward-refs", "main.anc"})
	be.Err(t, err, nil)
	cfg.ApplyFlagGroups(warnings, features)

	be.True(t, cfg.IsWarningEnabled(WarnImplicitReturn))
	be.True(t, !cfg.IsWarningEnabled(WarnUnreachableCode))
	be.True(t, cfg.IsFeatureEnabled(FeatForwardRefs))
	be.True(t, cfg.IsFeatureEnabled(FeatNestedFuncs))
}
