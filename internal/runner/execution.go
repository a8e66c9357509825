package runner

import (
	"context"
	"sync"

	"github.com/amarbel-llc/songbook/internal/task"
)

// Execution is a task run in progress. It is created by Runner.Start and
// completes exactly once.
type Execution struct {
	ID   string
	Task *task.Task

	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	result   Result
	finished bool
}

func newExecution(id string, t *task.Task, total int, cancel context.CancelFunc) *Execution {
	return &Execution{
		ID:       id,
		Task:     t,
		progress: newProgress(total),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Done is closed once the execution has a terminal result.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution is done and returns its result.
func (e *Execution) Wait() Result {
	<-e.done
	r, _ := e.Result()
	return r
}

// Result returns the terminal result, or false while still running.
func (e *Execution) Result() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.finished
}

// Cancel stops the running process, if any, and prevents further
// invocations. The execution still completes with a Failed result.
func (e *Execution) Cancel() {
	e.cancel()
}

func (e *Execution) Progress() *Progress {
	return e.progress
}

func (e *Execution) finish(r Result) {
	e.mu.Lock()
	e.result = r
	e.finished = true
	e.mu.Unlock()
	close(e.done)
}
