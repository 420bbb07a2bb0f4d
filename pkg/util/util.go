package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/token"
)

// Color enables ANSI colours in diagnostics. It defaults to whether stderr
// is a terminal.
var Color = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

const (
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

func paint(code, s string) string {
	if !Color {
		return s
	}
	return code + s + ansiReset
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "ganc", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), paint(ansiGreen, caret))
}

func location(tok token.Token) string {
	filename, line, col := findFileAndLine(tok)
	if line == 0 {
		return filename
	}
	return fmt.Sprintf("%s:%d:%d", filename, line, col)
}

// PrintDiagnostic writes one diagnostic with its source line.
func PrintDiagnostic(w io.Writer, d *diag.Diagnostic) {
	if d.Kind == diag.Warning {
		fmt.Fprintf(w, "%s: %s %s", location(d.Tok), paint(ansiYellow, "warning:"), d.Msg)
		if d.Flag != "" {
			fmt.Fprintf(w, " [-W%s]", d.Flag)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "%s: %s %s [%s]\n", location(d.Tok), paint(ansiRed, "error:"), d.Msg, d.Kind)
	}
	printErrorLine(w, d.Tok)
}

// PrintDiagnostics writes warnings first, then errors.
func PrintDiagnostics(w io.Writer, errs, warnings []*diag.Diagnostic) {
	for _, d := range warnings {
		PrintDiagnostic(w, d)
	}
	for _, d := range errs {
		PrintDiagnostic(w, d)
	}
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s: %s ", location(tok), paint(ansiRed, "error:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printErrorLine(os.Stderr, tok)
	os.Exit(1)
}
