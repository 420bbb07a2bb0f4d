// Package diag collects the semantic and syntax diagnostics reported while a
// program is parsed and lowered. Reporting never aborts the pass: callers
// record a diagnostic, substitute a failure sentinel and keep going so that
// every error of a run is surfaced at once.
package diag

import (
	"errors"
	"fmt"

	"github.com/xplshn/ganc/pkg/token"
)

// Kind classifies a diagnostic.
type Kind int

const (
	Syntax Kind = iota
	UnresolvedSymbol
	Redeclaration
	ArityMismatch
	InvalidExpression
	MissingCondition
	MisplacedStatement
	Warning
)

var kindNames = map[Kind]string{
	Syntax:             "syntax",
	UnresolvedSymbol:   "unresolved-symbol",
	Redeclaration:      "redeclaration",
	ArityMismatch:      "arity-mismatch",
	InvalidExpression:  "invalid-expression",
	MissingCondition:   "missing-condition",
	MisplacedStatement: "misplaced-statement",
	Warning:            "warning",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Diagnostic is a single report. Tok locates it in the source; a zero token
// means the location is unknown.
type Diagnostic struct {
	Kind Kind
	Tok  token.Token
	Msg  string
	// Flag names the -W switch that enabled a warning.
	Flag string
}

func Newf(kind Kind, tok token.Token, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

func (d *Diagnostic) Error() string {
	if d.Tok.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
	}
	return fmt.Sprintf("%d:%d: %s: %s", d.Tok.Line, d.Tok.Column, d.Kind, d.Msg)
}

// Sink accumulates the diagnostics of one compilation pass.
type Sink struct {
	errs     []*Diagnostic
	warnings []*Diagnostic
}

func NewSink() *Sink { return &Sink{} }

// Report records an error and returns it.
func (s *Sink) Report(kind Kind, tok token.Token, format string, args ...any) *Diagnostic {
	d := Newf(kind, tok, format, args...)
	s.errs = append(s.errs, d)
	return d
}

// Add records already built diagnostics, e.g. the ones a parser returned.
func (s *Sink) Add(ds ...*Diagnostic) {
	for _, d := range ds {
		if d.Kind == Warning {
			s.warnings = append(s.warnings, d)
		} else {
			s.errs = append(s.errs, d)
		}
	}
}

// Warn records a warning. Warnings never fail the pass.
func (s *Sink) Warn(flag string, tok token.Token, format string, args ...any) {
	d := Newf(Warning, tok, format, args...)
	d.Flag = flag
	s.warnings = append(s.warnings, d)
}

func (s *Sink) Diagnostics() []*Diagnostic { return s.errs }
func (s *Sink) Warnings() []*Diagnostic    { return s.warnings }

// Failed reports whether any error was recorded.
func (s *Sink) Failed() bool { return len(s.errs) > 0 }

// Count returns how many errors of the given kind were recorded.
func (s *Sink) Count(kind Kind) int {
	n := 0
	for _, d := range s.errs {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Err joins all recorded errors, or returns nil when there are none.
func (s *Sink) Err() error {
	if len(s.errs) == 0 {
		return nil
	}
	errs := make([]error, len(s.errs))
	for i, d := range s.errs {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// Unpack returns the diagnostics inside err, descending into joined errors.
// Errors that are not diagnostics are skipped.
func Unpack(err error) []*Diagnostic {
	if err == nil {
		return nil
	}
	if d, ok := err.(*Diagnostic); ok {
		return []*Diagnostic{d}
	}
	var out []*Diagnostic
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			out = append(out, Unpack(e)...)
		}
	}
	return out
}
