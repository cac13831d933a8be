package concurrent

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"
)

// KeyedExecutor runs tasks one at a time per key, in submission order, while tasks
// for different keys run in parallel up to the limiter's bound. A key owns a goroutine
// only while it has queued work.
//
// A task must not call Do for its own key: it would wait on itself.
type KeyedExecutor struct {
	limiter Limiter
	onError func(key string, err error)

	mu      sync.Mutex
	queues  map[string][]*keyedTask
	drained *sync.Cond

	pending   atomic.Int64
	processed atomic.Int64
}

type keyedTask struct {
	fn   func() error
	done chan error
}

// NewKeyedExecutor creates an executor running at most maxConcurrency tasks at once.
// onError receives failures and recovered panics of tasks queued with Submit.
func NewKeyedExecutor(maxConcurrency int, onError func(key string, err error)) *KeyedExecutor {
	e := &KeyedExecutor{
		limiter: NewLimiter(maxConcurrency),
		onError: onError,
		queues:  make(map[string][]*keyedTask),
	}
	e.drained = sync.NewCond(&e.mu)
	return e
}

// Submit queues fn behind every task already queued for key and returns immediately.
func (e *KeyedExecutor) Submit(key string, fn func() error) {
	e.enqueue(key, &keyedTask{fn: fn})
}

// Do queues fn like Submit and waits for its result. The task still runs if ctx ends first.
func (e *KeyedExecutor) Do(ctx context.Context, key string, fn func() error) error {
	t := &keyedTask{fn: fn, done: make(chan error, 1)}
	e.enqueue(key, t)
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every queue is drained, including tasks submitted while waiting.
// It may be called while other goroutines keep submitting.
func (e *KeyedExecutor) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queues) > 0 {
		e.drained.Wait()
	}
}

// Pending is the number of queued or running tasks.
func (e *KeyedExecutor) Pending() int64 {
	return e.pending.Load()
}

// Processed is the number of tasks finished since start.
func (e *KeyedExecutor) Processed() int64 {
	return e.processed.Load()
}

func (e *KeyedExecutor) enqueue(key string, t *keyedTask) {
	e.pending.Inc()
	e.mu.Lock()
	defer e.mu.Unlock()
	q, running := e.queues[key]
	e.queues[key] = append(q, t)
	if !running {
		go e.drain(key)
	}
}

func (e *KeyedExecutor) drain(key string) {
	for {
		e.mu.Lock()
		q := e.queues[key]
		if len(q) == 0 {
			delete(e.queues, key)
			if len(e.queues) == 0 {
				e.drained.Broadcast()
			}
			e.mu.Unlock()
			return
		}
		t := q[0]
		q[0] = nil
		e.queues[key] = q[1:]
		e.mu.Unlock()
		e.run(key, t)
	}
}

func (e *KeyedExecutor) run(key string, t *keyedTask) {
	e.limiter.Add()
	var (
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { err = t.fn() })
	e.limiter.Done()
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	e.pending.Dec()
	e.processed.Inc()
	if t.done != nil {
		t.done <- err
		return
	}
	if err != nil && e.onError != nil {
		e.onError(key, err)
	}
}
