package sched

import (
	"context"
	"fmt"
	"sync/atomic"

	"reqflow/pkg/api"
)

type taskState int32

const (
	taskCreated taskState = iota
	taskStarted
	taskWaiting
	taskTerminated
)

// Task carries exactly one request through its operation. It runs on its own
// goroutine; while the adapter call waits for I/O the goroutine is parked on
// the runtime netpoller, which is the task's readiness-driven suspension.
type Task struct {
	id      string
	req     api.Request
	adapter api.Adapter
	gen     uint64 // scheduler generation at admission; stale outcomes are discarded

	state atomic.Int32
	res   api.Result
	err   error
}

func newTask(req api.Request, adapter api.Adapter, gen uint64) *Task {
	return &Task{id: req.ID, req: req, adapter: adapter, gen: gen}
}

// start launches the task goroutine. Starting a task twice, or restarting a
// terminated one, violates the scheduler's invariants and fails fast.
func (t *Task) start(ctx context.Context, finished chan<- *Task) {
	if !t.state.CompareAndSwap(int32(taskCreated), int32(taskStarted)) {
		panic(fmt.Errorf("%w: task %s started in state %d",
			ErrInternalConsistency, t.id, t.state.Load()))
	}
	go t.run(ctx, finished)
}

func (t *Task) run(ctx context.Context, finished chan<- *Task) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("panic: %v", r)
		}
		t.state.Store(int32(taskTerminated))
		finished <- t
	}()

	t.state.Store(int32(taskWaiting))
	t.res, t.err = t.adapter.Execute(ctx, t.req)
}

func (t *Task) terminated() bool {
	return taskState(t.state.Load()) == taskTerminated
}
