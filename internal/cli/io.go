package cli

import (
	"fmt"
	"io"
)

// IO is the output of one command. Warnings queued with [IO.Warn] go to
// stderr ahead of the first stdout line and again when the command finishes.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	flushed  bool
}

// NewIO returns an IO writing to out and errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn queues a warning about a document or a review result, such as a
// document that fails the marker check or a correction that could not be
// applied. hint tells the user how to follow up. The command still prints
// its output, but exits with status 1.
func (o *IO) Warn(problem, hint string) {
	o.warnings = append(o.warnings, problem+": "+hint)
}

// Println writes a line to stdout.
func (o *IO) Println(a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes a line to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish repeats the queued warnings on stderr and returns the exit status:
// 1 when there were warnings, 0 otherwise.
func (o *IO) Finish() int {
	o.flushWarnings()

	if len(o.warnings) == 0 {
		return 0
	}

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	return 1
}

func (o *IO) flushWarnings() {
	if o.flushed || len(o.warnings) == 0 {
		return
	}

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	o.flushed = true
}
