package governor

import (
	"context"
	"fmt"
	"time"
)

// Task is a unit of outbound work. It receives a background context (the
// scheduler imposes no timeout; wrap the body in your own deadline if needed)
// and returns a result or an error. Panics inside the task are recovered and
// treated as ordinary failures.
type Task func(ctx context.Context) (any, error)

// State describes where a job is in its lifecycle.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle is the pending result of a scheduled task. It settles exactly once,
// with either the task's result or its terminal error.
type Handle struct {
	done   chan struct{}
	result any
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed once the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the job settles or ctx is canceled. Canceling ctx
// abandons the wait only; the job itself keeps running.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) settle(result any, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// job is the scheduler's internal view of one submission. All fields except
// handle are guarded by the owning scheduler's mutex.
type job struct {
	id         uint64
	task       Task
	handle     *Handle
	state      State
	attempt    int // task invocations so far
	enqueuedAt time.Time
	lastErr    error
}

// invoke runs the task, converting a panic into an error so a misbehaving
// task cannot take down the scheduler or leak a concurrency slot.
func invoke(t Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t(context.Background())
}

// JobEvent is published on the event bus for job lifecycle transitions.
type JobEvent struct {
	Site     string        `json:"site"`
	ID       uint64        `json:"id"`
	Attempt  int           `json:"attempt"`
	State    string        `json:"state"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
