// File: core/concurrency/executor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitGroupWithin(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timeout waiting for tasks")
	}
}

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	e := NewExecutor(4)
	defer e.Close()

	const tasks = 200
	var wg sync.WaitGroup
	var count atomic.Int64
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		for {
			err := e.Submit(func() {
				count.Add(1)
				wg.Done()
			})
			if err == nil {
				break
			}
			if errors.Is(err, ErrExecutorClosed) {
				t.Fatalf("submit failed: %v", err)
			}
			runtime.Gosched()
		}
	}
	waitGroupWithin(t, &wg, 5*time.Second)
	if got := count.Load(); got != tasks {
		t.Fatalf("ran %d tasks, want %d", got, tasks)
	}
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(1)
	e.Close()
	if err := e.Submit(func() {}); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestExecutorDefaultsToCPUCount(t *testing.T) {
	e := NewExecutor(0)
	defer e.Close()
	if got := e.NumWorkers(); got != runtime.NumCPU() {
		t.Fatalf("NumWorkers() = %d, want %d", got, runtime.NumCPU())
	}
}

func waitWorkerCount(t *testing.T, e *Executor, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.NumWorkers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("NumWorkers() = %d, want %d", e.NumWorkers(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExecutorResize(t *testing.T) {
	e := NewExecutor(2)
	defer e.Close()

	e.Resize(4)
	waitWorkerCount(t, e, 4)

	e.Resize(1)
	waitWorkerCount(t, e, 1)

	// The shrunken pool still runs work.
	var wg sync.WaitGroup
	wg.Add(1)
	if err := e.Submit(func() { wg.Done() }); err != nil {
		t.Fatalf("submit after shrink: %v", err)
	}
	waitGroupWithin(t, &wg, 5*time.Second)
}

func TestExecutorSurvivesPanickingTask(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	if err := e.Submit(func() {
		defer wg.Done()
		panic("task panic")
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(func() { wg.Done() }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitGroupWithin(t, &wg, 5*time.Second)
}
