package rtos

import (
	"errors"
	"testing"
	"time"
)

func TestJobRunsOnWorkerThread(t *testing.T) {
	k := newRunningKernel(t, Config{})
	done := make(chan struct{})
	if err := k.Job(func() { close(done) }); err != nil {
		t.Fatalf("Job: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestJobRunsInFIFOOrder(t *testing.T) {
	k := newRunningKernel(t, Config{})
	var rec orderRecorder
	lastDone := make(chan struct{})
	for i, name := range []string{"a", "b", "c"} {
		name := name
		last := i == 2
		if err := k.Job(func() {
			rec.record(name)
			if last {
				close(lastDone)
			}
		}); err != nil {
			t.Fatalf("Job(%s): %v", name, err)
		}
	}
	select {
	case <-lastDone:
	case <-time.After(time.Second):
		t.Fatal("jobs never finished")
	}
	got := rec.snapshot()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
}

func TestJobPanicIsRecoveredAndWorkerKeepsRunning(t *testing.T) {
	k := newRunningKernel(t, Config{})
	if err := k.Job(func() { panic("boom") }); err != nil {
		t.Fatalf("Job: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	if err := k.Job(func() { close(done) }); err != nil {
		t.Fatalf("Job after panic: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker thread did not survive a panicking job")
	}
}

func TestJobBacklogRejectsOverflow(t *testing.T) {
	// An unstarted kernel never runs its job worker thread, so every
	// submitted job simply piles up in the backlog until it is full.
	k := newTestKernel(t, Config{})

	var lastErr error
	for i := 0; i < jobQueueCapacity+10; i++ {
		if err := k.Job(func() {}); err != nil {
			lastErr = err
			break
		}
	}
	if !errors.Is(lastErr, ErrFull) {
		t.Errorf("expected ErrFull once the backlog filled, got %v", lastErr)
	}
}
