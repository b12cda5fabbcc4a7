package rtos

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by kernel operations. Callers should use
// errors.Is against these rather than comparing against the original's
// bare -1/0 return codes.
var (
	// ErrTimeout is returned when a Pend or Get times out before the
	// resource became available.
	ErrTimeout = errors.New("rtos: operation timed out")

	// ErrFull is returned when a non-blocking Send finds the queue at
	// capacity.
	ErrFull = errors.New("rtos: queue full")

	// ErrEmpty is returned when a non-blocking Get finds the queue empty.
	ErrEmpty = errors.New("rtos: queue empty")

	// ErrExhausted is returned when a heap has no free block large enough
	// to satisfy an allocation.
	ErrExhausted = errors.New("rtos: heap exhausted")

	// ErrInvalidHandle is returned when a HeapID, *Thread, *Semaphore, or
	// similar handle does not refer to a live object.
	ErrInvalidHandle = errors.New("rtos: invalid handle")

	// ErrNotOwner is returned when a thread other than the mutex's owner
	// calls Post.
	ErrNotOwner = errors.New("rtos: mutex not owned by caller")
)

// KernelError wraps a sentinel error with the component and operation
// that produced it, matching the classification in the failure model:
// timeout, capacity, or invariant violation.
type KernelError struct {
	Op   string
	Name string
	Err  error
}

func (e *KernelError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("rtos: %s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("rtos: %s: %v", e.Op, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

func newKernelError(op, name string, err error) *KernelError {
	return &KernelError{Op: op, Name: name, Err: err}
}

// AssertFailure is the panic value raised by assertFail. Fatal invariant
// violations panic through this single path rather than being silently
// ignored, matching the original's OS_Assert breakpoint hook.
type AssertFailure struct {
	Component string
	Message   string
}

func (a *AssertFailure) Error() string {
	return fmt.Sprintf("rtos: assertion failed in %s: %s", a.Component, a.Message)
}

// assertFail is the kernel's single fatal-invariant-violation path. It
// fires the configured OnAssertFailed hook (if any) before panicking, so
// a host that wants to downgrade fatal assertions to a log line in
// production builds can do so by registering a hook that never returns.
func (k *Kernel) assertFail(component, format string, args ...any) {
	failure := &AssertFailure{Component: component, Message: fmt.Sprintf(format, args...)}
	if k.onAssertFailed != nil {
		k.onAssertFailed(failure)
	}
	panic(failure)
}
