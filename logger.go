package htmltree

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// Logger is the diagnostic logging interface the parser uses when a caller
// installs one via WithLogger. It is satisfied directly by
// github.com/hashicorp/go-hclog.Logger, so callers can pass an hclog logger
// without an adapter:
//
//	doc, err := htmltree.Parse(html, htmltree.WithLogger(hclog.Default()))
//
// The parser only ever calls Debug/Warn: Debug for recoverable-but-notable
// recovery steps (foster parenting, a script element handed to the host),
// Warn for conditions that indicate the input is significantly malformed
// even though parsing continues (the adoption agency hitting its iteration
// limit, elements left open at end of input).
type Logger interface {
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

// NewLogger returns a structured Logger writing to output (stderr if nil),
// at Debug level so every diagnostic the parser emits is visible. Callers
// wanting level or format control should construct an hclog.Logger
// themselves and pass it to WithLogger directly.
func NewLogger(name string, output io.Writer) Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.Debug,
		Output: output,
	})
}

// noopLogger is the default Logger: discards everything.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
