package rtos

import "github.com/zoobzio/clockz"

// Configuration constants. The original reads these as C preprocessor
// #defines fixed at compile time; a Go module cannot recompile itself
// per deployment the way embedded firmware is rebuilt per board, so
// Config is a construction parameter to NewKernel instead.
const (
	// StackDefault is the stack size, in bytes, used when ThreadCreate is
	// given a zero stack size.
	StackDefault = 4096
	// StackMinimum is the smallest stack size ThreadCreate accepts.
	StackMinimum = 512

	// ThreadPriorityIdle is the fixed priority of the per-CPU idle thread.
	// Nothing may run at this priority except the idle thread itself.
	ThreadPriorityIdle = 0
	// ThreadPriorityMax is the highest (most urgent) priority a thread may
	// be created or promoted to.
	ThreadPriorityMax = 255

	// InfoSlots is the number of user-defined info words carried per
	// thread (ThreadInfoGet/ThreadInfoSet).
	InfoSlots = 4

	// ReservedSemaphoreCount is the number of semaphores handed out from
	// Kernel.reserved before any heap exists to allocate further ones
	// from. Init uses exactly two of them (sleep, lock) before the first
	// heap is registered.
	ReservedSemaphoreCount = 2

	// HeapTableSize is the number of heap-table slots (HeapID values 0..7).
	HeapTableSize = 8

	// cpuAny marks a thread as not pinned to any particular logical CPU.
	cpuAny = -1

	// CPUAny, passed to Thread.SetCPUAffinity, lets the scheduler run the
	// thread on whichever CPU reschedules first.
	CPUAny = cpuAny
)

// HeapID identifies a registered heap by a small integer key, never
// mixed with a *Heap pointer. Alloc resolves a HeapID through
// Kernel.heapTable before ever touching allocator internals; the zero
// value is HeapSystem. AllocFor allocates from a thread's bound heap.
type HeapID int

// Well-known heap slots, mirroring the original's HEAP_SYSTEM/GENERAL/
// SMALL/UI constants.
const (
	HeapSystem  HeapID = 0
	HeapGeneral HeapID = 1
	HeapSmall   HeapID = 2
	HeapUI      HeapID = 3
)

// Config configures a new Kernel. Zero-value fields fall back to sane
// defaults in NewKernel.
type Config struct {
	// CPUCount is the number of logical CPUs the scheduler manages. 0
	// defaults to 1. Values above 1 run the big-lock multi-CPU mode: every
	// CPU shares Kernel.lock, there is no real IPI, and a reschedule on
	// another logical CPU is modeled by setting that CPU's needReschedule
	// flag, which takes effect at its next preemption point.
	CPUCount int

	// StackDefault overrides the default thread stack size. 0 uses
	// the package constant StackDefault.
	StackDefault int

	// Clock is the time source driving Tick and all timeout deadlines.
	// Nil defaults to clockz.RealClock. Tests inject clockz.NewFakeClock()
	// to advance ticks deterministically.
	Clock clockz.Clock

	// SimulateInterrupts, when true, runs a goroutine that drives
	// Kernel.Service off Clock instead of requiring a caller to supply
	// real hardware IRQs — the Go equivalent of the original's
	// OS_IdleSimulateIsr thread, used by cmd/ksim and the test suite.
	SimulateInterrupts bool

	// TickInterval is the simulated hardware-timer period used when
	// SimulateInterrupts is set. 0 defaults to one millisecond.
	TickInterval int64

	// OnAssertFailed, if set, is invoked before a fatal invariant
	// violation panics. The panic happens as soon as the handler
	// returns; a handler that returns cannot suppress it, it can only
	// observe the failure first.
	OnAssertFailed func(*AssertFailure)
}

func (c Config) cpuCount() int {
	if c.CPUCount <= 0 {
		return 1
	}
	return c.CPUCount
}

func (c Config) stackDefault() int {
	if c.StackDefault <= 0 {
		return StackDefault
	}
	return c.StackDefault
}

func (c Config) clock() clockz.Clock {
	if c.Clock == nil {
		return clockz.RealClock
	}
	return c.Clock
}
