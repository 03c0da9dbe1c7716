package starlark

import (
	"sync"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds a single script run. Zero disables the bound.
const DefaultMaxSteps uint64 = 10_000_000

// ThreadPool hands out Starlark threads for script runs. Each thread is
// given a fresh step budget so a runaway loop in one script is cancelled
// without affecting the next run.
type ThreadPool struct {
	mu       sync.Mutex
	idle     []*starlark.Thread
	capacity int
	maxSteps uint64
}

// NewThreadPool creates a pool keeping at most capacity idle threads,
// each run limited to maxSteps Starlark steps.
func NewThreadPool(capacity int, maxSteps uint64) *ThreadPool {
	if capacity <= 0 {
		capacity = 4
	}
	return &ThreadPool{
		idle:     make([]*starlark.Thread, 0, capacity),
		capacity: capacity,
		maxSteps: maxSteps,
	}
}

// Get returns an idle thread or a new one, named for error reports and
// printing through print.
func (p *ThreadPool) Get(name string, print func(string)) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.idle); n > 0 {
		thread = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = &starlark.Thread{}
	}
	thread.Name = name
	thread.Print = func(_ *starlark.Thread, msg string) {
		if print != nil {
			print(msg)
		}
	}
	// The step counter is cumulative over the thread's lifetime.
	if p.maxSteps > 0 {
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.maxSteps)
	}
	return thread
}

// Put returns a thread for reuse. Only threads whose run finished without
// cancellation may be returned; a cancelled thread stays cancelled.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	thread.Name = ""
	thread.Print = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) < p.capacity {
		p.idle = append(p.idle, thread)
	}
}

// Idle returns the number of pooled threads.
func (p *ThreadPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
