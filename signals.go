package rtos

import "github.com/zoobzio/capitan"

// Signal constants for kernel-significant events. Signals follow the
// pattern: <component>.<event>, mirroring how the kernel's structured
// log stream is organized.
var (
	SignalThreadCreated      = capitan.NewSignal("thread.created", "Thread created")
	SignalThreadExited       = capitan.NewSignal("thread.exited", "Thread exited")
	SignalThreadStackOverrun = capitan.NewSignal("thread.stack-overrun", "Thread stack overrun")

	SignalSemaphoreTimeout = capitan.NewSignal("semaphore.timeout", "Semaphore wait timed out")
	SignalSemaphoreDeleted = capitan.NewSignal("semaphore.deleted", "Semaphore deleted")

	SignalMutexContended = capitan.NewSignal("mutex.contended", "Mutex contended")

	SignalQueueFull  = capitan.NewSignal("mqueue.full", "Message queue full")
	SignalQueueEmpty = capitan.NewSignal("mqueue.empty", "Message queue empty")

	SignalTimerFired   = capitan.NewSignal("timer.fired", "Timer fired")
	SignalTimerStarted = capitan.NewSignal("timer.started", "Timer started")
	SignalTimerStopped = capitan.NewSignal("timer.stopped", "Timer stopped")

	SignalHeapExhausted = capitan.NewSignal("heap.exhausted", "Heap exhausted")
	SignalHeapCreated   = capitan.NewSignal("heap.created", "Heap created")

	SignalISRDispatched = capitan.NewSignal("isr.dispatched", "ISR dispatched")
	SignalISRRegistered = capitan.NewSignal("isr.registered", "ISR registered")

	SignalAssertFailed = capitan.NewSignal("kernel.assert-failed", "Kernel assertion failed")
)

// Common field keys, using capitan's primitive key types to avoid custom
// struct serialization at the log sink.
var (
	FieldName  = capitan.NewStringKey("name")
	FieldError = capitan.NewStringKey("error")

	FieldThreadName = capitan.NewStringKey("thread")
	FieldPriority   = capitan.NewIntKey("priority")
	FieldReturnCode = capitan.NewIntKey("return_code")

	FieldSemaphoreCount = capitan.NewIntKey("count")
	FieldWaiters        = capitan.NewIntKey("waiters")

	FieldMutexDepth = capitan.NewIntKey("depth")

	FieldQueueUsed     = capitan.NewIntKey("used")
	FieldQueueCapacity = capitan.NewIntKey("capacity")

	FieldTimerRestart = capitan.NewIntKey("restart_ticks")
	FieldTick         = capitan.NewIntKey("tick")

	FieldHeapID       = capitan.NewIntKey("heap_id")
	FieldHeapFree     = capitan.NewIntKey("heap_free_bytes")
	FieldHeapRequest  = capitan.NewIntKey("requested_bytes")

	FieldISRNumber = capitan.NewIntKey("isr_number")
)
