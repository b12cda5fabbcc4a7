// Package rtos implements a preemptive, priority-based real-time
// executive: a thread scheduler, counting semaphores, recursive mutexes,
// bounded message queues, one-shot and periodic timers, an internal
// heap allocator, and an interrupt-dispatch layer.
//
// A single *Kernel owns every piece of mutable scheduling state — the
// ready list, the timeout list, the timer list, the heap table — behind
// one critical-section lock, exactly as the original firmware keeps all
// of this behind one hardware interrupt-disable/enable pair. Construct
// one with NewKernel, bring it up with Init, and hand control to the
// scheduler with Start.
package rtos

import (
	"sync"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Kernel holds every piece of global scheduling state the original
// scatters across file-static C variables. Every mutating method takes
// Kernel.lock (see critical.go) before touching it.
type Kernel struct {
	config Config

	lock sync.Mutex

	heapTable [HeapTableSize]*Heap

	current      []*Thread // per-CPU currently running thread
	readyHead    *Thread   // priority list, descending priority, FIFO within priority
	timeoutHead  *Thread   // deadline-sorted timeout list
	timerHead    *Timer    // deadline-sorted timer list

	isr             [32]ISRFunc
	insideInterrupt []bool // per-CPU
	needReschedule  []bool // per-CPU
	interruptMask   uint32

	reserved     [ReservedSemaphoreCount]Semaphore
	reservedUsed int

	time        Tick
	swapEnabled bool

	needToFree *Thread // deferred self-free slot

	// The two reserved semaphores Init creates before any heap exists.
	// sleepSem backs Thread.Sleep; lockSem is carried for parity with the
	// original's list-guard semaphore, whose role the Go port's critical
	// section (Kernel.lock) plays directly.
	sleepSem *Semaphore
	lockSem  *Semaphore

	idle []*Thread // per-CPU idle threads

	jobOnce sync.Once
	jobSem  *Semaphore
	jobList []func()

	timerOnce   sync.Once
	timerSem    *Semaphore
	timerThread *Thread

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookRegistries

	onAssertFailed func(*AssertFailure)

	started bool
	stopCh  chan struct{}
}

// NewKernel constructs a Kernel from cfg. The kernel is not running
// threads yet; call Init to create the reserved primitives and the
// system heap, then Start to hand control to the scheduler.
func NewKernel(cfg Config) *Kernel {
	n := cfg.cpuCount()
	k := &Kernel{
		config:          cfg,
		current:         make([]*Thread, n),
		insideInterrupt: make([]bool, n),
		needReschedule:  make([]bool, n),
		idle:            make([]*Thread, n),
		clock:           cfg.clock(),
		metrics:         newMetrics(),
		tracer:          tracez.New(),
		hooks:           newHookRegistries(),
		onAssertFailed:  cfg.OnAssertFailed,
		stopCh:          make(chan struct{}),
	}
	return k
}

// Metrics returns the kernel's metrics registry.
func (k *Kernel) Metrics() *metricz.Registry { return k.metrics }

// Tracer returns the kernel's tracer.
func (k *Kernel) Tracer() *tracez.Tracer { return k.tracer }

// Close releases the kernel's observability resources. Call after Stop.
func (k *Kernel) Close() error {
	k.tracer.Close()
	k.hooks.Close()
	return nil
}

// CPUCount returns the number of logical CPUs this kernel schedules
// across.
func (k *Kernel) CPUCount() int { return len(k.current) }
