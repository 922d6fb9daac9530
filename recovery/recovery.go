// Package recovery defines the pluggable error-recovery policy applied
// while reading damaged PDF files.
package recovery

import "context"

// Context is the context passed to recovery decisions. Callers deep in
// the scanner may pass nil when no context is available.
type Context = context.Context

// Strategy decides how parsing proceeds after an error.
type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

// Location identifies where in the file the error occurred.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail aborts the operation.
	ActionFail Action = iota
	// ActionSkip drops the offending construct and continues.
	ActionSkip
	// ActionFix applies a best-effort correction and continues.
	ActionFix
	// ActionWarn records the error but still reports it to the caller.
	ActionWarn
)
