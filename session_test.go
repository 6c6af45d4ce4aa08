//go:build testing

package ludus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectEvents drains all events from the channel until it is closed.
// Fails the test if the channel does not close within the timeout.
func collectEvents(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-deadline:
			t.Fatalf("events channel did not close within %v; collected so far: %v", timeout, got)
			return got
		}
	}
}

// waitForDone blocks until Wait returns or the timeout expires.
func waitForDone(t *testing.T, s *Session, timeout time.Duration) (int, error) {
	t.Helper()
	type result struct {
		code int
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		code, err := s.Wait()
		ch <- result{code, err}
	}()
	select {
	case r := <-ch:
		return r.code, r.err
	case <-time.After(timeout):
		t.Fatalf("Wait did not return within %v", timeout)
		return -1, nil
	}
}

func noopCancel() {}

// immediateRunFn returns a runFn that exits immediately with the given code/err.
func immediateRunFn(code int, err error) func(io.Writer) (int, error) {
	return func(io.Writer) (int, error) {
		return code, err
	}
}

// writingRunFn returns a runFn that writes lines, then exits with code/err.
func writingRunFn(lines []string, code int, err error) func(io.Writer) (int, error) {
	return func(w io.Writer) (int, error) {
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		return code, err
	}
}

// ctxRunFn returns a runFn that blocks until ctx ends, like a process killed on cancel.
func ctxRunFn(ctx context.Context) func(io.Writer) (int, error) {
	return func(io.Writer) (int, error) {
		<-ctx.Done()
		return -1, ctx.Err()
	}
}

func TestSession_IDAndInstance(t *testing.T) {
	s := newSession("test-session-id", "a", noopCancel, immediateRunFn(0, nil), nil)
	assert.Equal(t, "test-session-id", s.ID())
	assert.Equal(t, "a", s.Instance())
	collectEvents(t, s.Events(), 2*time.Second)
}

func TestSession_NoPreamble_Exited(t *testing.T) {
	s := newSession("sid", "a", noopCancel, immediateRunFn(0, nil), nil)
	events := collectEvents(t, s.Events(), 2*time.Second)

	require.Len(t, events, 1)
	assert.Equal(t, EventExited, events[0].Type)
	assert.Equal(t, 0, events[0].Code)
}

func TestSession_Preamble_EmittedFirst(t *testing.T) {
	preamble := []Event{{Type: EventStarted, Data: "instance-run a", Time: time.Now()}}
	s := newSession("sid", "a", noopCancel, writingRunFn([]string{"hello"}, 0, nil), preamble)
	events := collectEvents(t, s.Events(), 2*time.Second)

	require.Len(t, events, 3)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, "instance-run a", events[0].Data)
	assert.Equal(t, EventOutput, events[1].Type)
	assert.Equal(t, EventExited, events[2].Type)
}

func TestSession_Output_InOrder(t *testing.T) {
	lines := []string{"line one", "line two", "line three"}
	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 0, nil), nil)
	events := collectEvents(t, s.Events(), 2*time.Second)

	var output []string
	for _, e := range events {
		if e.Type == EventOutput {
			output = append(output, e.Data)
		}
	}
	assert.Equal(t, lines, output)
	assert.Equal(t, EventExited, events[len(events)-1].Type)
}

func TestSession_RunError_EmitsEventError(t *testing.T) {
	runErr := &CommandError{kind: ErrInstanceExecution, Verb: VerbInstanceRun, Instance: "a", ExitCode: 3, Stderr: "boom"}
	s := newSession("sid", "a", noopCancel, immediateRunFn(3, runErr), nil)
	events := collectEvents(t, s.Events(), 2*time.Second)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, 3, last.Code)
	assert.ErrorIs(t, last.Err, ErrInstanceExecution)
	assert.Contains(t, last.Data, "boom")
	for _, e := range events {
		assert.NotEqual(t, EventExited, e.Type)
	}
}

func TestSession_Wait_ReturnsResult(t *testing.T) {
	runErr := errors.New("spawn failed")
	s := newSession("sid", "a", noopCancel, immediateRunFn(-1, runErr), nil)
	code, err := waitForDone(t, s, 2*time.Second)
	assert.Equal(t, -1, code)
	assert.ErrorIs(t, err, runErr)
	collectEvents(t, s.Events(), 2*time.Second)
}

func TestSession_Stop_CancelsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSession("sid", "a", cancel, ctxRunFn(ctx), nil)

	require.NoError(t, s.Stop(context.Background()))

	code, err := waitForDone(t, s, 2*time.Second)
	assert.Equal(t, -1, code)
	assert.ErrorIs(t, err, context.Canceled)
	collectEvents(t, s.Events(), 2*time.Second)
}

func TestSession_Stop_Idempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	counting := func() {
		calls.Add(1)
		cancel()
	}
	s := newSession("sid", "a", counting, ctxRunFn(ctx), nil)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	// One call from the first Stop, one from the run goroutine on exit; the
	// second Stop short-circuits on the done channel.
	assert.Equal(t, int32(2), calls.Load())
	collectEvents(t, s.Events(), 2*time.Second)
}

func TestSession_Stop_ContextExpires(t *testing.T) {
	neverUnblock := make(chan struct{})
	blocking := func(io.Writer) (int, error) {
		<-neverUnblock
		return 0, nil
	}
	s := newSession("sid", "a", noopCancel, blocking, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(neverUnblock)
	collectEvents(t, s.Events(), 2*time.Second)
}

func TestSession_EventTime_NonZero(t *testing.T) {
	s := newSession("sid", "a", noopCancel, writingRunFn([]string{"hello"}, 0, nil), nil)
	for _, e := range collectEvents(t, s.Events(), 2*time.Second) {
		assert.False(t, e.Time.IsZero(), "event %s has zero Time", e.Type)
	}
}

func TestSession_EmitOutput_DropsWhenFull(t *testing.T) {
	lineCount := eventChannelBuffer * 3
	lines := make([]string, lineCount)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 0, nil), nil)
	events := collectEvents(t, s.Events(), 5*time.Second)

	outputCount := 0
	hasTerminal := false
	for _, e := range events {
		switch e.Type {
		case EventOutput:
			outputCount++
		case EventExited, EventError:
			hasTerminal = true
		}
	}
	assert.LessOrEqual(t, outputCount, lineCount)
	assert.True(t, hasTerminal, "terminal event missing")

	code, err := waitForDone(t, s, 2*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestSession_TerminalEvent_DeliveredWhenBufferFull(t *testing.T) {
	lines := make([]string, 600)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 0, nil), nil)
	// Nobody reads events until the run has finished.
	code, err := waitForDone(t, s, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	events := collectEvents(t, s.Events(), 2*time.Second)
	require.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), eventChannelBuffer)
	last := events[len(events)-1]
	assert.Equal(t, EventExited, last.Type)
	assert.Equal(t, 0, last.Code)
	for _, e := range events[:len(events)-1] {
		assert.Equal(t, EventOutput, e.Type)
	}
}

func TestSession_TerminalError_DeliveredWhenBufferFull(t *testing.T) {
	lines := make([]string, eventChannelBuffer*2)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	runErr := &CommandError{kind: ErrInstanceExecution, Verb: VerbInstanceRun, Instance: "a", ExitCode: 3}

	preamble := []Event{{Type: EventStarted, Time: time.Now()}}
	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 3, runErr), preamble)
	_, _ = waitForDone(t, s, 5*time.Second)

	events := collectEvents(t, s.Events(), 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, EventStarted, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.ErrorIs(t, last.Err, ErrInstanceExecution)
}

func TestSession_Wait_ExitCode_NotStale_AfterHighVolume(t *testing.T) {
	lines := make([]string, eventChannelBuffer*2)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 42, nil), nil)
	code, err := waitForDone(t, s, 5*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 42, code)
}

func TestSession_Wait_DoesNotDeadlock_WhenEventsNotConsumed(t *testing.T) {
	lines := make([]string, eventChannelBuffer*3)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	s := newSession("sid", "a", noopCancel, writingRunFn(lines, 0, nil), nil)
	code, err := waitForDone(t, s, 5*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 0, code)
}
