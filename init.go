package rtos

import (
	"fmt"
	"runtime"
	"time"
)

// systemHeapSize is the arena size Init carves out for HeapSystem, the
// heap every other heap and every reserved allocation ultimately traces
// back to before a caller registers anything larger.
const systemHeapSize = 64 * 1024

// defaultTickInterval is the simulated hardware-timer period used by
// SimulateInterrupts when Config.TickInterval is zero.
const defaultTickInterval = time.Millisecond

// Init brings a freshly constructed Kernel up to the point where Start
// can hand control to the scheduler: it creates the two semaphores the
// kernel needs before any heap exists (sleep, lock — consuming exactly
// Kernel.reserved's two slots), carves out and registers the system
// heap, binds the tick IRQ to Kernel.Tick, and creates one idle thread
// per configured CPU. Call Init exactly once, before Start.
func (k *Kernel) Init() error {
	sleepSem, err := k.SemaphoreCreate("kernel.sleep", 0)
	if err != nil {
		return err
	}
	k.sleepSem = sleepSem

	lockSem, err := k.SemaphoreCreate("kernel.lock", 1)
	if err != nil {
		return err
	}
	k.lockSem = lockSem

	heap, err := k.HeapCreate("system", systemHeapSize)
	if err != nil {
		return err
	}
	if err := k.Register(HeapSystem, heap); err != nil {
		return err
	}

	if err := k.InterruptRegister(TickIRQ, k.tickISR); err != nil {
		return err
	}

	for cpu := 0; cpu < k.CPUCount(); cpu++ {
		idle, err := k.ThreadCreate(fmt.Sprintf("idle%d", cpu), ThreadPriorityIdle, func(self *Thread, _ any) {
			k.idleLoop(self)
		}, nil, 0)
		if err != nil {
			return err
		}
		withCritical(k, func() bool {
			k.priorityRemove(idle) // idle threads are pickNext's fallback, never ready-list members
			idle.cpuLock = cpu
			k.idle[cpu] = idle
			return true
		})
	}
	return nil
}

// idleLoop is the per-CPU idle thread's body: there is nothing to run,
// so spin checking for a pending reschedule and yield the goroutine
// scheduler between checks, the Go stand-in for the original's
// wait-for-interrupt idle loop.
func (k *Kernel) idleLoop(self *Thread) {
	for {
		withCritical(k, func() bool {
			k.maybeReschedule(self.cpu)
			return true
		})
		runtime.Gosched()
	}
}

// Start hands control to the scheduler: every CPU's initial thread
// (whatever Init's idle creation and any ThreadCreate calls made before
// Start left at the head of the ready list) is restored, and — if
// Config.SimulateInterrupts is set — a goroutine begins driving the
// tick IRQ off Config.Clock. Start blocks until Stop is called.
func (k *Kernel) Start() error {
	k.lock.Lock()
	if k.started {
		k.lock.Unlock()
		return newKernelError("kernel.start", "", ErrInvalidHandle)
	}
	k.started = true
	k.swapEnabled = true
	firsts := make([]*Thread, len(k.current))
	for cpu := range k.current {
		next := k.pickNext(cpu)
		k.current[cpu] = next
		next.cpu = cpu
		next.state = ThreadRunning
		firsts[cpu] = next
	}
	k.lock.Unlock()

	if k.config.SimulateInterrupts {
		go k.simulateInterrupts()
	}

	for _, t := range firsts {
		t.ctx.restore()
	}

	<-k.stopCh
	return nil
}

// Stop releases the goroutine blocked in Start. It does not tear down
// threads or the heap — pair with Close to release observability
// resources once every kernel thread goroutine has been allowed to
// wind down.
func (k *Kernel) Stop() {
	k.lock.Lock()
	if !k.started {
		k.lock.Unlock()
		return
	}
	k.started = false
	k.lock.Unlock()
	close(k.stopCh)
}

// simulateInterrupts drives the tick IRQ off k.clock instead of real
// hardware, the Go equivalent of the original's idle-task software ISR
// simulation used by the simulator and the test suite.
func (k *Kernel) simulateInterrupts() {
	interval := defaultTickInterval
	if k.config.TickInterval > 0 {
		interval = time.Duration(k.config.TickInterval) * time.Millisecond
	}
	for {
		select {
		case <-k.stopCh:
			return
		case <-k.clock.After(interval):
			k.Service(0, 1<<TickIRQ)
		}
	}
}
