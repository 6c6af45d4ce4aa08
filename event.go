package ludus

import "time"

// EventType identifies the kind of event emitted by a Session.
type EventType int

const (
	// EventStarted is emitted once the invocation has been built.
	// Data contains the command line.
	EventStarted EventType = iota

	// EventOutput is emitted for each line of instance stdout.
	// Data contains the line content.
	EventOutput

	// EventExited is emitted when instance-run exits zero.
	EventExited

	// EventError is emitted when the run fails.
	// Data contains the error message and Err the error itself.
	EventError
)

// String returns a lower-case name for the event type.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventOutput:
		return "output"
	case EventExited:
		return "exited"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle or output event emitted by a Session.
//
// Ordering:
//   - Success: Started → Output* → Exited
//   - Failure: Started → Output* → Error
//
// After the terminal event the channel is closed.
type Event struct {
	Time time.Time
	Err  error
	Data string
	Type EventType
	Code int
}
