package inline

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// Diagnostic is one non-fatal problem found while inlining.
type Diagnostic struct {
	Origin string
	Line   int
	Column int
	Err    error
}

func (d Diagnostic) String() string {
	var pe *CSSParseError
	if errors.As(d.Err, &pe) {
		return pe.Error()
	}
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", d.Origin, d.Line, d.Column, d.Err)
	}
	return fmt.Sprintf("%s: %v", d.Origin, d.Err)
}

// Diagnostics collects the diagnostics of one run and mirrors them to a
// logger. It is passed explicitly to every stage that can report.
type Diagnostics struct {
	mu      sync.Mutex
	logger  *log.Logger
	verbose bool
	items   []Diagnostic
}

// NewDiagnostics returns a sink writing to logger; a nil logger discards
// output but still records. With verbose set, Tracef lines are logged too.
func NewDiagnostics(logger *log.Logger, verbose bool) *Diagnostics {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Diagnostics{logger: logger, verbose: verbose}
}

// Add records d and logs it under tag.
func (d *Diagnostics) Add(tag string, diag Diagnostic) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.items = append(d.items, diag)
	d.mu.Unlock()
	d.logger.Printf("%s %s", tag, diag)
}

// CSSError records a stylesheet parse error at line:col of origin.
func (d *Diagnostics) CSSError(origin string, line, col int, msg string) {
	d.Add("CSS", Diagnostic{
		Origin: origin,
		Line:   line,
		Column: col,
		Err:    &CSSParseError{Origin: origin, Line: line, Column: col, Msg: msg},
	})
}

// CSSFailure records err as a stylesheet problem at line:col of origin.
func (d *Diagnostics) CSSFailure(origin string, line, col int, err error) {
	d.Add("CSS", Diagnostic{
		Origin: origin,
		Line:   line,
		Column: col,
		Err:    &CSSParseError{Origin: origin, Line: line, Column: col, Err: err},
	})
}

// Tracef logs progress information when verbose output is enabled.
func (d *Diagnostics) Tracef(tag, format string, args ...any) {
	if d == nil || !d.verbose {
		return
	}
	d.logger.Printf(tag+" "+format, args...)
}

// List returns a copy of the recorded diagnostics in report order.
func (d *Diagnostics) List() []Diagnostic {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Diagnostic(nil), d.items...)
}

// Len returns the number of recorded diagnostics.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
