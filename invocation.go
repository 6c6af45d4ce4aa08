package ludus

import "time"

// Invocation records one finished tool process. It lives for a single
// controller call and is never persisted.
type Invocation struct {
	Command  Command
	Stdout   string // empty when stdout was streamed to a caller writer
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Succeeded reports whether the tool exited zero.
func (i Invocation) Succeeded() bool {
	return i.ExitCode == 0
}
