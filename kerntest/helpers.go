// Package kerntest provides test utilities for code built on rtos: a
// harness that brings up a Kernel on a fake clock, and assertion
// helpers in the style of the teacher's testing helpers — t.Helper()
// plus t.Errorf, no assertion library.
package kerntest

import (
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/plasmakit/rtos"
)

// Harness bundles a running Kernel with the fake clock driving it, and
// the stop function that shuts the scheduler down at the end of a test.
type Harness struct {
	K     *rtos.Kernel
	Clock *clockz.FakeClock

	t    *testing.T
	done chan struct{}
}

// New constructs a Kernel on a fresh FakeClock, calls Init, and starts
// the scheduler on a background goroutine. cfg is optional: pass a
// zero-value rtos.Config (its Clock field is overwritten with the fake
// clock regardless of what's passed).
func New(t *testing.T, cfg rtos.Config) *Harness {
	t.Helper()

	clock := clockz.NewFakeClock()
	cfg.Clock = clock

	k := rtos.NewKernel(cfg)
	if err := k.Init(); err != nil {
		t.Fatalf("kerntest: Init: %v", err)
	}

	h := &Harness{K: k, Clock: clock, t: t, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = k.Start()
	}()

	t.Cleanup(h.Stop)
	return h
}

// Stop halts the scheduler and releases observability resources. Safe
// to call more than once.
func (h *Harness) Stop() {
	h.K.Stop()
	<-h.done
	_ = h.K.Close()
}

// Tick advances the kernel's tick counter n times, synchronously —
// equivalent to n back-to-back hardware timer interrupts.
func (h *Harness) Tick(n int) {
	for i := 0; i < n; i++ {
		h.K.Tick()
	}
}

// Advance moves the fake clock forward by d and blocks until every
// timer and After channel armed against it has fired, for harnesses
// built with Config.SimulateInterrupts so the tick IRQ actually runs.
func (h *Harness) Advance(d time.Duration) {
	h.Clock.Advance(d)
	h.Clock.BlockUntilReady()
}

// AssertEventually polls cond every interval until it returns true or
// timeout elapses, failing the test if it never does. Use this instead
// of a fixed sleep whenever a test needs to observe the effect of a
// scheduling decision made on another goroutine.
func AssertEventually(t *testing.T, timeout, interval time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("kerntest: timed out waiting for condition: %s", msg)
			return
		}
		time.Sleep(interval)
	}
}

// AssertThreadExits waits up to timeout for th to exit and asserts its
// return code matches want.
func AssertThreadExits(t *testing.T, th *rtos.Thread, timeout time.Duration, want int) {
	t.Helper()
	select {
	case <-th.Done():
	case <-time.After(timeout):
		t.Errorf("kerntest: thread %q did not exit within %s", th.Name(), timeout)
		return
	}
	if got := th.ReturnCode(); got != want {
		t.Errorf("kerntest: thread %q exited with code %d, want %d", th.Name(), got, want)
	}
}

// AssertThreadBlocked waits up to timeout for th to reach the blocked
// state (pending on a semaphore, mutex, or queue).
func AssertThreadBlocked(t *testing.T, th *rtos.Thread, timeout time.Duration) {
	t.Helper()
	AssertEventually(t, timeout, time.Millisecond, func() bool {
		return th.State() == rtos.ThreadBlocked
	}, th.Name()+" to block")
}

// AssertInvariants fails the test if the kernel's scheduling structures
// violate any of their structural invariants (list ordering, state/list
// membership agreement). Call it after any operation a test suspects of
// corrupting scheduler state.
func AssertInvariants(t *testing.T, k *rtos.Kernel) {
	t.Helper()
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("kerntest: %v", err)
	}
}

// AssertNoError fails the test if err is non-nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("kerntest: %s: unexpected error: %v", msg, err)
	}
}

// AssertErrorIs fails the test unless err wraps target.
func AssertErrorIs(t *testing.T, err, target error, msg string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("kerntest: %s: got error %v, want one wrapping %v", msg, err, target)
	}
}
