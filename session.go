package ludus

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"
)

// eventChannelBuffer is the size of the event channel buffer.
// Output events may be dropped under sustained backpressure; one slot is
// always kept for the terminal event.
const eventChannelBuffer = 256

// Session is a running instance-run started by Controller.StartInstance.
// The caller owns the Session and is responsible for calling Stop or Wait.
//
// Events and Wait are independent consumption paths; neither requires the other.
// Stop is idempotent.
type Session struct {
	exitErr  error
	cancel   context.CancelFunc
	events   chan Event
	done     chan struct{}
	id       string
	instance string
	// mu guards exitCode and exitErr.
	mu       sync.Mutex
	once     sync.Once // guards done channel close
	exitCode int
}

// newSession creates a Session and starts its goroutines.
//
//  1. run goroutine: calls runFn, stores exitCode/exitErr under mu, cancels
//     the invocation context, closes the pipe writer.
//  2. event goroutine: reads stdout lines from the pipe, emits EventOutput,
//     closes done, then emits the terminal event and closes the channel.
//
// done is closed before the terminal event is emitted, so Wait never blocks
// on event consumption. preamble events are emitted before the goroutines start.
func newSession(
	id string,
	instance string,
	cancel context.CancelFunc,
	runFn func(stdout io.Writer) (int, error),
	preamble []Event,
) *Session {
	s := &Session{
		id:       id,
		instance: instance,
		cancel:   cancel,
		events:   make(chan Event, eventChannelBuffer),
		done:     make(chan struct{}),
	}

	for _, e := range preamble {
		s.emitLifecycle(e)
	}

	pr, pw := io.Pipe()

	go func() {
		code, err := runFn(pw)
		// Commit results before closing the pipe: EOF on the reader side
		// guarantees the event goroutine observes them.
		s.mu.Lock()
		s.exitCode = code
		s.exitErr = err
		s.mu.Unlock()
		s.cancel()
		_ = pw.Close()
	}()

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.emitOutput(Event{
				Type: EventOutput,
				Data: scanner.Text(),
				Time: time.Now(),
			})
		}
		// Drain anything the scanner refused (overlong line) so the writer never blocks.
		_, _ = io.Copy(io.Discard, pr)
		_ = pr.Close()

		s.mu.Lock()
		code := s.exitCode
		err := s.exitErr
		s.mu.Unlock()

		s.once.Do(func() { close(s.done) })

		var terminal Event
		if err != nil {
			terminal = Event{
				Type: EventError,
				Data: err.Error(),
				Err:  err,
				Code: code,
				Time: time.Now(),
			}
		} else {
			terminal = Event{
				Type: EventExited,
				Code: code,
				Time: time.Now(),
			}
		}
		// emitOutput keeps one slot free, so this send never blocks.
		s.events <- terminal
		close(s.events)
	}()

	return s
}

// emitLifecycle sends a lifecycle event, blocking until buffered. Only used
// for preamble events while the buffer is still empty.
func (s *Session) emitLifecycle(e Event) {
	s.events <- e
}

// emitOutput sends an output event, dropping it when only the slot kept
// for the terminal event is left. The event goroutine is the only sender.
func (s *Session) emitOutput(e Event) {
	if len(s.events) >= cap(s.events)-1 {
		return
	}
	s.events <- e
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Instance returns the name of the instance being run.
func (s *Session) Instance() string {
	return s.instance
}

// Events returns a receive-only channel of typed events. The channel is
// closed after the terminal event, which is always delivered. Output
// events may be dropped when the consumer falls behind; pass
// RunOptions.Stdout for a lossless copy of the output.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Stop cancels the run (SIGTERM, then SIGKILL after the grace period) and
// blocks until the process has exited or ctx expires. Stopping a finished
// session returns nil.
func (s *Session) Stop(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until instance-run exits and returns its exit code and the
// typed error RunInstance would have returned.
func (s *Session) Wait() (int, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exitErr
}
