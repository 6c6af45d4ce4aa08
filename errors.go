package ludus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned when a call is rejected before any process is spawned.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrInstanceExists is returned when instance-create targets an existing instance without overwrite.
var ErrInstanceExists = errors.New("instance already exists")

// ErrInstanceNotFound is returned when the named instance does not exist.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrInstanceExecution is returned for any non-zero exit not covered by a more specific error.
var ErrInstanceExecution = errors.New("instance command failed")

// ErrConfigKey is returned when a configuration key path is invalid for the instance.
var ErrConfigKey = errors.New("invalid configuration key")

// ErrTimeout is returned when the configured invocation timeout expires.
var ErrTimeout = errors.New("invocation timed out")

// ErrMalformedOutput is returned when the tool exits zero but its stdout cannot be read back.
var ErrMalformedOutput = errors.New("malformed tool output")

// ErrToolUnavailable is returned when a verb cannot be resolved to an executable.
var ErrToolUnavailable = errors.New("ludus tool is not available")

// CommandError describes a non-zero exit of the wrapped tool. Unwrap yields
// the sentinel for the failure kind, so callers match with errors.Is and
// reach the diagnostics with errors.As.
type CommandError struct {
	kind     error
	Verb     string  // tool verb, e.g. instance-create
	Instance string  // instance the call targeted
	Stderr   string  // captured error stream, verbatim
	KeyPath  KeyPath // offending key path for ErrConfigKey; nil if unknown
	ExitCode int
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v: exit code %d", e.Verb, e.Instance, e.kind, e.ExitCode)
	if len(e.KeyPath) > 0 {
		fmt.Fprintf(&b, ": key %q", e.KeyPath.String())
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Unwrap returns the failure kind sentinel.
func (e *CommandError) Unwrap() error {
	return e.kind
}

// invalidArg wraps ErrInvalidArgument with a formatted reason.
func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
