package starlark

import (
	"go.starlark.net/starlark"
)

const (
	// DefaultMaxSteps bounds the work of a single expression evaluation.
	DefaultMaxSteps = 1_000_000
	// DefaultPoolSize is the number of idle threads a pool keeps.
	DefaultPoolSize = 10
)

// ThreadPool keeps idle Starlark threads for reuse across renders of one
// template. It is safe for concurrent use.
type ThreadPool struct {
	idle     chan *starlark.Thread
	maxSteps uint64
}

// NewThreadPool creates a pool keeping at most maxSize idle threads.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = DefaultPoolSize
	}
	return &ThreadPool{idle: make(chan *starlark.Thread, maxSize), maxSteps: DefaultMaxSteps}
}

// Get takes an idle thread or creates one. name shows up in Starlark errors.
// Every Get grants the thread a fresh step budget.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	var thread *starlark.Thread
	select {
	case thread = <-p.idle:
	default:
		thread = &starlark.Thread{Print: func(*starlark.Thread, string) {}}
	}
	thread.Name = name
	thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.maxSteps)
	return thread
}

// Put returns thread to the pool, dropping it when the pool is full.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	thread.Name = ""
	select {
	case p.idle <- thread:
	default:
	}
}

// Size returns the number of idle threads.
func (p *ThreadPool) Size() int { return len(p.idle) }
