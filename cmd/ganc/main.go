package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goforj/godump"

	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/cli"
	"github.com/xplshn/ganc/pkg/codegen"
	"github.com/xplshn/ganc/pkg/config"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/interp"
	"github.com/xplshn/ganc/pkg/ir"
	"github.com/xplshn/ganc/pkg/parser"
	"github.com/xplshn/ganc/pkg/token"
	"github.com/xplshn/ganc/pkg/util"
)

var emitExt = map[string]string{
	"asm":  ".s",
	"qbe":  ".ssa",
	"llvm": ".ll",
}

func main() {
	app := cli.NewApp("ganc")
	app.Synopsis = "[options] <input.anc> ..."
	app.Description = "A compiler for the ancient language: every value is a double, every function returns one. Lowers to QBE or LLVM IR, or interprets the result directly."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/ganc>"

	var (
		outFile   string
		target    string
		emit      string
		entry     string
		dumpIR    bool
		dumpAST   bool
		run       bool
		verbose   bool
		wall      bool
		stepLimit int
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>; '-' writes to stdout.", "file")
	fs.String(&target, "target", "t", "qbe", "Set the backend and target ABI.", "backend/target")
	fs.String(&emit, "emit", "", "asm", "Output kind: asm, qbe or llvm.", "kind")
	fs.String(&entry, "entry", "", config.EntrySymbol, "Symbol a source function named main is emitted under.", "symbol")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump the intermediate representation and exit.")
	fs.Bool(&dumpAST, "dump-ast", "", false, "Dump the parsed syntax tree and exit.")
	fs.Bool(&run, "run", "r", false, "Interpret the program's main function and print its result.")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage on stderr.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")
	fs.Int(&stepLimit, "max-steps", "", interp.DefaultStepLimit, "Instruction budget for --run; 0 means unlimited.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if verbose {
			cfg.Log = os.Stderr
		}
		if wall {
			if err := cfg.ApplyFlag("-Wall"); err != nil {
				util.Error(token.Token{FileIndex: -1}, "%v", err)
			}
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)
		cfg.EntrySymbol = entry

		if _, ok := emitExt[emit]; !ok {
			util.Error(token.Token{FileIndex: -1}, "unknown --emit kind '%s' (want asm, qbe or llvm)", emit)
		}
		if len(inputFiles) == 0 {
			util.Error(token.Token{FileIndex: -1}, "no input files specified.")
		}

		infof(cfg, "parsing %d source file(s)...", len(inputFiles))
		prog := parseFiles(inputFiles)

		if dumpAST {
			godump.Dump(prog)
			return nil
		}

		infof(cfg, "creating intermediate representation...")
		res := codegen.NewContext(cfg).GenerateIR(prog)
		util.PrintDiagnostics(os.Stderr, res.Diagnostics, res.Warnings)
		if !res.OK {
			return fmt.Errorf("%d error(s)", len(res.Diagnostics))
		}
		if err := ir.Verify(res.Program); err != nil {
			util.Error(token.Token{FileIndex: -1}, "internal error: lowering produced malformed IR:\n%v", err)
		}

		if dumpIR {
			return ir.Fprint(os.Stdout, res.Program)
		}
		if run {
			return runProgram(cfg, res.Program, stepLimit)
		}

		infof(cfg, "generating %s with the '%s' backend...", emit, cfg.BackendName)
		text, err := emitProgram(cfg, res.Program, emit)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "code generation failed: %v", err)
		}

		if outFile == "" {
			outFile = strings.TrimSuffix(filepath.Base(inputFiles[0]), filepath.Ext(inputFiles[0])) + emitExt[emit]
		}
		if err := writeOutput(outFile, text); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		if outFile != "-" {
			infof(cfg, "wrote '%s' (%s)", outFile, humanize.Bytes(uint64(len(text))))
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func infof(cfg *config.Config, format string, args ...any) {
	if cfg.Log != nil {
		fmt.Fprintf(cfg.Log, "ganc: info: "+format+"\n", args...)
	}
}

// parseFiles reads and parses every input. Syntax errors are printed and
// stop the run once all files have been parsed.
func parseFiles(paths []string) *ast.Program {
	records := make([]util.SourceFileRecord, 0, len(paths))
	contents := make([]string, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
		}
		records = append(records, util.SourceFileRecord{Name: path, Content: []rune(string(content))})
		contents = append(contents, string(content))
	}
	util.SetSourceFiles(records)

	prog := &ast.Program{}
	var syntaxErrs []*diag.Diagnostic
	for i, src := range contents {
		p, err := parser.ParseSource(src, i)
		syntaxErrs = append(syntaxErrs, diag.Unpack(err)...)
		prog.Stmts = append(prog.Stmts, p.Stmts...)
	}
	if len(syntaxErrs) > 0 {
		util.PrintDiagnostics(os.Stderr, syntaxErrs, nil)
		os.Exit(1)
	}
	return prog
}

func emitProgram(cfg *config.Config, prog *ir.Program, emit string) (string, error) {
	switch emit {
	case "qbe", "llvm":
		backend, err := codegen.SelectBackend(emit)
		if err != nil {
			return "", err
		}
		return backend.GenerateIR(prog, cfg)
	default:
		backend, err := codegen.SelectBackend(cfg.BackendName)
		if err != nil {
			return "", err
		}
		buf, err := backend.Generate(prog, cfg)
		if err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

func writeOutput(path, text string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runProgram(cfg *config.Config, prog *ir.Program, stepLimit int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := interp.New(prog, interp.Builtins(os.Stdout))
	m.StepLimit = stepLimit
	result, err := m.Run(ctx, cfg.EntrySymbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ganc: run: %v\n", err)
		return err
	}
	infof(cfg, "executed %s instruction(s)", humanize.Comma(int64(m.Steps())))
	fmt.Printf("%f\n", result)
	return nil
}
