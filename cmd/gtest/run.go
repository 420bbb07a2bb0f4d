package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xplshn/ganc/pkg/codegen"
	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/interp"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/parser"
)

// directivePrefix starts a comment line carrying -W/-F switches for the
// file it appears in, e.g. "// gtest: -Fforward-refs -Wno-unreachable-code".
const directivePrefix = "// gtest:"

func directives(src string) []string {
	var flags []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, directivePrefix); ok {
			flags = append(flags, strings.Fields(rest)...)
		}
	}
	return flags
}

func compileAndRun(file string) (*TargetResult, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return runSource(filepath.Base(file), string(src))
}

// runSource compiles src, hashes its QBE IL and interprets its entry
// function. A program that fails to compile is a result, not an error.
func runSource(name, src string) (*TargetResult, error) {
	cfg := config.NewConfig()
	for _, f := range directives(src) {
		if err := cfg.ApplyFlag(f); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	start := time.Now()
	prog, stderr := compile(cfg, name, src)
	result := &TargetResult{Compile: Execution{Stderr: stderr, Duration: time.Since(start)}}
	if prog == nil {
		result.Compile.ExitCode = 1
		return result, nil
	}

	qbe, err := codegen.NewQBEBackend().GenerateIR(prog, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	result.QBEHash = hashString(qbe)

	if prog.FindFunc(cfg.EntrySymbol) != nil {
		result.Runs = []TestRun{{Name: "main", Result: runEntry(cfg, prog)}}
	}
	return result, nil
}

// compile returns the verified program, or nil when any error was reported,
// together with the rendered diagnostics.
func compile(cfg *config.Config, name, src string) (*ir.Program, string) {
	var stderr strings.Builder
	ast, err := parser.ParseSource(src, 0)
	if err != nil {
		for _, d := range diag.Unpack(err) {
			fmt.Fprintf(&stderr, "%s:%s\n", name, d)
		}
		return nil, stderr.String()
	}

	res := codegen.NewContext(cfg).GenerateIR(ast)
	for _, d := range res.Warnings {
		fmt.Fprintf(&stderr, "%s:%d:%d: warning: %s [-W%s]\n", name, d.Tok.Line, d.Tok.Column, d.Msg, d.Flag)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(&stderr, "%s:%s\n", name, d)
	}
	if !res.OK {
		return nil, stderr.String()
	}
	if err := ir.Verify(res.Program); err != nil {
		fmt.Fprintf(&stderr, "%s: malformed IR: %v\n", name, err)
		return nil, stderr.String()
	}
	return res.Program, stderr.String()
}

// runEntry interprets the entry function *runs times and keeps the fastest
// run. Output that changes between runs is flagged.
func runEntry(cfg *config.Config, prog *ir.Program) Execution {
	var first Execution
	var durations []time.Duration
	for i := 0; i < *runs; i++ {
		exec := runOnce(cfg, prog)
		if i == 0 {
			first = exec
		} else if exec.Stdout != first.Stdout || exec.Stderr != first.Stderr || exec.ExitCode != first.ExitCode {
			first.UnstableOutput = true
			break
		}
		if exec.ExitCode != 0 || exec.TimedOut {
			break
		}
		durations = append(durations, exec.Duration)
	}
	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		first.Duration = durations[0]
	}
	return first
}

func runOnce(cfg *config.Config, prog *ir.Program) Execution {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var stdout bytes.Buffer
	m := interp.New(prog, interp.Builtins(&stdout))
	start := time.Now()
	v, err := m.Run(ctx, cfg.EntrySymbol)
	exec := Execution{Duration: time.Since(start), Steps: m.Steps()}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		exec.TimedOut = true
		exec.ExitCode = -1
	case err != nil:
		exec.ExitCode = 1
		exec.Stderr = err.Error() + "\n"
	default:
		fmt.Fprintf(&stdout, "%f\n", v)
	}
	exec.Stdout = stdout.String()
	return exec
}
