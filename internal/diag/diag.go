// Package diag carries forward the teacher's progress-narration idiom
// (fmt.Printf("DEBUG: ...") scattered through internal/services) as a small
// writer-backed logger instead of bare stdout/stderr prints, so the CLI's
// --quiet flag can silence it without deleting the narration.
package diag

import (
	"fmt"
	"io"
	"os"
)

// Logger writes forensic progress narration to an underlying writer.
// Construct one with New; the zero value has no writer.
type Logger struct {
	w       io.Writer
	verbose bool
	quiet   bool
}

// New returns a Logger writing to w. If w is nil, os.Stderr is used.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{w: w}
}

// SetVerbose enables Debugf output.
func (l *Logger) SetVerbose(v bool) { l.verbose = v }

// SetQuiet suppresses all output except Errorf.
func (l *Logger) SetQuiet(q bool) { l.quiet = q }

// Infof prints a progress message, mirroring the source tool's
// fprintf(stderr, ...) narration ("Opening file...", "Reading block...").
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.quiet {
		return
	}
	fmt.Fprintf(l.w, format+"\n", args...)
}

// Debugf prints a verbose-only diagnostic.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.quiet || !l.verbose {
		return
	}
	fmt.Fprintf(l.w, "DEBUG: "+format+"\n", args...)
}

// Errorf always prints, even in quiet mode.
func (l *Logger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, format+"\n", args...)
}

// Default is a package-level logger writing to os.Stderr. The CLI commands
// do not use it; each builds its own Logger from its flags.
var Default = New(os.Stderr)
