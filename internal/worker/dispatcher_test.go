package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 16})

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := d.Submit(Job{Task: func() {
			ran.Add(1)
			wg.Done()
		}})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not finish")
	}
	if got := ran.Load(); got != 10 {
		t.Fatalf("ran %d jobs, want 10", got)
	}
}

func TestSubmitRejectsWhenSaturated(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})

	block := make(chan struct{})
	release := make(chan struct{})
	// Occupy the single worker.
	if err := d.Submit(Job{Task: func() {
		close(block)
		<-release
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-block

	// Fill the queue, then expect ErrBusy instead of blocking.
	sawBusy := false
	for i := 0; i < 5; i++ {
		if err := d.Submit(Job{Task: func() {}}); errors.Is(err, ErrBusy) {
			sawBusy = true
			break
		}
	}
	close(release)
	if !sawBusy {
		t.Fatal("saturated dispatcher never returned ErrBusy")
	}
}

func TestSubmitRequiresTask(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	if err := d.Submit(Job{}); err == nil {
		t.Fatal("Submit accepted a job without a task")
	}
}
