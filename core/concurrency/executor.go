// File: core/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free
// per-worker queues with a global overflow channel. All pool mutations go
// through a single management goroutine, so the worker set never changes
// concurrently with itself.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-streams/api"
)

// TaskFunc is the unit of work accepted by the Executor.
type TaskFunc = func()

const localQueueDepth = 1024

var _ api.Executor = (*Executor)(nil)

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue   chan TaskFunc
	queues        atomic.Value // []*LockFreeQueue[TaskFunc], swapped on resize
	next          atomic.Uint64
	closeCh       chan struct{}
	closed        atomic.Bool
	resizeRequest chan int

	mu      sync.Mutex
	workers []*worker
	wg      sync.WaitGroup
}

// NewExecutor creates an Executor with numWorkers workers; zero or
// negative means one per CPU.
func NewExecutor(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue:   make(chan TaskFunc, numWorkers*4),
		closeCh:       make(chan struct{}),
		resizeRequest: make(chan int),
	}
	queues := make([]*LockFreeQueue[TaskFunc], numWorkers)
	e.workers = make([]*worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		queues[i] = NewLockFreeQueue[TaskFunc](localQueueDepth)
		w := newWorker(e, queues[i])
		e.workers[i] = w
		e.wg.Add(1)
		go w.run(&e.wg)
	}
	e.queues.Store(queues)
	e.wg.Add(1)
	go e.manage()
	return e
}

// Submit enqueues a task: round-robin over the local queues, spilling
// into the global channel when the chosen queue is full.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	queues := e.queues.Load().([]*LockFreeQueue[TaskFunc])
	if n := len(queues); n > 0 {
		idx := int(e.next.Add(1) % uint64(n))
		if queues[idx].Enqueue(task) {
			return nil
		}
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorSaturated
	}
}

// Resize requests a new worker count. Asynchronous; no-op after Close.
func (e *Executor) Resize(newCount int) {
	select {
	case e.resizeRequest <- newCount:
	case <-e.closeCh:
	}
}

// NumWorkers returns the active worker count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Close shuts the executor down and waits for every worker to exit.
// Tasks still queued are dropped.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.closeCh)
	e.mu.Lock()
	for _, w := range e.workers {
		close(w.stopCh)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Executor) manage() {
	defer e.wg.Done()
	for {
		select {
		case <-e.closeCh:
			return
		case newCount := <-e.resizeRequest:
			e.applyResize(newCount)
		}
	}
}

func (e *Executor) applyResize(newCount int) {
	if newCount <= 0 {
		newCount = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	current := len(e.workers)
	switch {
	case newCount > current:
		old := e.queues.Load().([]*LockFreeQueue[TaskFunc])
		queues := append([]*LockFreeQueue[TaskFunc](nil), old...)
		for i := current; i < newCount; i++ {
			q := NewLockFreeQueue[TaskFunc](localQueueDepth)
			queues = append(queues, q)
			w := newWorker(e, q)
			e.workers = append(e.workers, w)
			e.wg.Add(1)
			go w.run(&e.wg)
		}
		e.queues.Store(queues)
	case newCount < current:
		old := e.queues.Load().([]*LockFreeQueue[TaskFunc])
		e.queues.Store(append([]*LockFreeQueue[TaskFunc](nil), old[:newCount]...))
		removed := e.workers[newCount:]
		e.workers = e.workers[:newCount]
		for _, w := range removed {
			close(w.stopCh)
		}
		for _, w := range removed {
			<-w.stoppedCh
			e.drainRetired(w.localQueue)
		}
	}
}

// drainRetired moves what a retired worker left behind into the global
// queue, running tasks inline when the channel is full.
func (e *Executor) drainRetired(q *LockFreeQueue[TaskFunc]) {
	for {
		task, ok := q.Dequeue()
		if !ok {
			return
		}
		select {
		case e.globalQueue <- task:
		default:
			task()
		}
	}
}

// worker drains its local queue first, then the global channel.
type worker struct {
	executor   *Executor
	localQueue *LockFreeQueue[TaskFunc]
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

func newWorker(e *Executor, q *LockFreeQueue[TaskFunc]) *worker {
	return &worker{
		executor:   e,
		localQueue: q,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer func() {
		wg.Done()
		close(w.stoppedCh)
	}()
	for {
		select {
		case <-w.stopCh:
			return
		default:
			if task, ok := w.localQueue.Dequeue(); ok {
				w.safeExecute(task)
				continue
			}
			select {
			case task := <-w.executor.globalQueue:
				w.safeExecute(task)
			case <-w.stopCh:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// safeExecute keeps a panicking task from killing the worker.
func (w *worker) safeExecute(task TaskFunc) {
	defer func() { _ = recover() }()
	task()
}
