package rtos

import (
	"context"
	"runtime"
)

// Tick is kernel time: a free-running counter that wraps. Absolute
// deadlines are always expressed as a Tick; use tickBefore to compare
// two of them safely across a wraparound.
type Tick uint32

// tickBefore reports whether a happened strictly before b, correctly
// across a wraparound, by comparing their signed difference rather than
// their raw values.
func tickBefore(a, b Tick) bool {
	return int32(a-b) < 0 //nolint:gosec // intentional wrap-safe comparison
}

// ThreadState is the scheduling state of a Thread.
type ThreadState int

const (
	// ThreadPending is a newly created thread that has never run.
	ThreadPending ThreadState = iota
	// ThreadReady is runnable, sitting in the priority list.
	ThreadReady
	// ThreadRunning is the thread currently holding a CPU's baton.
	ThreadRunning
	// ThreadBlocked is waiting on a semaphore, mutex, queue, or sleep.
	ThreadBlocked
	// ThreadExited has returned from its entry function or called Exit.
	ThreadExited
)

// ThreadFunc is a kernel thread's entry point. It receives its own
// *Thread handle as self, which is how this port performs every
// operation the original addresses through the global OS_ThreadSelf():
// Sleep, Exit, PriorityGet/Set, and InfoGet/Set are all methods on
// *Thread rather than calls keyed off an implicit "current thread"
// global, because Go has no portable goroutine-local storage to recover
// that implicit context from. See DESIGN.md.
type ThreadFunc func(self *Thread, arg any)

// Thread is one schedulable unit of execution. Its scheduling fields
// (state, list links, semaphorePending, ticksTimeout) are only ever
// touched with Kernel.lock held.
type Thread struct {
	k *Kernel

	name     string
	priority uint8
	state    ThreadState
	ctx      *Context

	fn  ThreadFunc
	arg any

	semaphorePending *Semaphore
	ticksTimeout     Tick
	returnCode       int

	info [InfoSlots]any

	cpu     int // which logical CPU this thread last ran/runs on
	cpuLock int // cpuAny, or pinned to a specific CPU

	processID   int
	heapBinding HeapID

	stack []byte // vestigial: stands in for the original's co-allocated stack region

	// priority list (ready queue), descending priority, FIFO within a
	// priority tier.
	prev, next *Thread
	onReadyList bool

	// timeout list, sorted by ticksTimeout ascending (wrap-safe).
	prevTimeout, nextTimeout *Thread
	onTimeoutList            bool

	// semaphore/mutex wait list, priority-ordered. A thread is never on
	// both the ready list and a wait list at once, but each gets its own
	// intrusive fields for clarity over reusing prev/next.
	waitPrev, waitNext *Thread
	onWaitList         bool

	exitCh chan struct{}
}

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// threadName labels t for spans and signals, tolerating the nil thread
// context interrupt-side callers pass.
func threadName(t *Thread) string {
	if t == nil {
		return "isr"
	}
	return t.name
}

// SetCPUAffinity pins the thread to one logical CPU, or releases the
// pin with CPUAny. The scheduler skips pinned threads when picking work
// for every other CPU. Out-of-range values are ignored.
func (t *Thread) SetCPUAffinity(cpu int) {
	withCritical(t.k, func() bool {
		if cpu != cpuAny && (cpu < 0 || cpu >= t.k.CPUCount()) {
			return false
		}
		t.cpuLock = cpu
		return true
	})
}

// State returns the thread's current scheduling state.
func (t *Thread) State() ThreadState {
	return withCritical(t.k, func() ThreadState { return t.state })
}

// PriorityGet returns the thread's current scheduling priority.
func (t *Thread) PriorityGet() uint8 {
	return withCritical(t.k, func() uint8 { return t.priority })
}

// PrioritySet changes the thread's scheduling priority, re-inserting it
// into the ready list at its new priority tier if it is currently
// ready. A change that makes a higher-priority thread runnable requests
// a reschedule.
func (t *Thread) PrioritySet(p uint8) {
	withCritical(t.k, func() bool {
		if t.priority == p {
			return true
		}
		wasReady := t.onReadyList
		if wasReady {
			t.k.priorityRemove(t)
		}
		t.priority = p
		if wasReady {
			t.k.priorityInsert(t)
		}
		t.k.requestReschedule(t.cpu)
		return true
	})
}

// InfoGet returns the value stored in one of the thread's four
// user-defined info slots.
func (t *Thread) InfoGet(slot int) any {
	return withCritical(t.k, func() any {
		if slot < 0 || slot >= InfoSlots {
			return nil
		}
		return t.info[slot]
	})
}

// InfoSet stores v in one of the thread's four user-defined info slots.
func (t *Thread) InfoSet(slot int, v any) {
	withCritical(t.k, func() bool {
		if slot < 0 || slot >= InfoSlots {
			return false
		}
		t.info[slot] = v
		return true
	})
}

// Done returns a channel closed once the thread has exited, for code
// outside the kernel (tests, the simulator) that needs to wait for a
// thread to finish without its own dedicated kernel primitive.
func (t *Thread) Done() <-chan struct{} { return t.exitCh }

// ReturnCode returns the code the thread exited with, or 0 if it is
// still running.
func (t *Thread) ReturnCode() int {
	return withCritical(t.k, func() int { return t.returnCode })
}

// Exit terminates the calling thread with the given return code. It
// never returns to its caller: threadExit hands the baton to whatever
// runs next, and Goexit stops this goroutine right there so the thread
// body can't fall through and have run's own trailing exit call fire a
// second time. Cleanup of the thread descriptor happens via the
// deferred needToFree slot, because a thread cannot reclaim the very
// stack bookkeeping it is still executing on.
func (t *Thread) Exit(code int) {
	t.k.threadExit(t, code)
	runtime.Goexit()
}

// Sleep suspends the calling thread for ticks kernel ticks. Implemented
// as a Pend with a timeout on a dedicated sleep semaphore that nothing
// ever posts, matching the original: sleep always resolves by timeout,
// never by a spurious post.
func (t *Thread) Sleep(ticks uint32) {
	_ = t.k.SemaphorePend(t, t.k.sleepSem, ticks)
}

// ThreadCreate creates a new thread at the given priority, running fn
// with the given argument on a stack of stackSize bytes (0 uses the
// kernel's configured default). The thread is inserted into the ready
// list in the Ready state before ThreadCreate returns; it does not run
// until the scheduler gets to it.
func (k *Kernel) ThreadCreate(name string, priority uint8, fn ThreadFunc, arg any, stackSize int) (*Thread, error) {
	if stackSize <= 0 {
		stackSize = k.config.stackDefault()
	} else if stackSize < StackMinimum {
		return nil, newKernelError("thread.create", name, ErrInvalidHandle)
	}

	_, span := k.tracer.StartSpan(context.Background(), SpanThreadCreate)
	span.SetTag(TagThreadName, name)
	span.SetTag(TagPriority, itoa(int(priority)))
	defer span.Finish()

	stack := make([]byte, stackSize)
	for i := range stack {
		stack[i] = stackCanary
	}

	t := &Thread{
		k:           k,
		name:        name,
		priority:    priority,
		state:       ThreadPending,
		ctx:         newContext(),
		fn:          fn,
		arg:         arg,
		cpuLock:     cpuAny,
		heapBinding: HeapGeneral,
		stack:       stack,
		exitCh:      make(chan struct{}),
	}

	go t.run()

	withCritical(k, func() bool {
		t.state = ThreadReady
		k.priorityInsert(t)
		k.requestReschedule(cpuAny)
		return true
	})

	k.metrics.Counter(MetricThreadsCreated).Inc()
	emitInfo(context.Background(), SignalThreadCreated, FieldThreadName.Field(name), FieldPriority.Field(int(priority)))
	return t, nil
}

// stackCanary is the byte ThreadCreate paints the stack region with.
// The low words must still hold it every time the thread gives up the
// CPU; anything else means something scribbled past the bottom of an
// adjacent allocation.
const stackCanary = 0xcd

// checkStack verifies the canary at the low end of the thread's stack
// region. An overrun is fatal. Caller holds k.lock.
func (t *Thread) checkStack() {
	for i := 0; i < 4 && i < len(t.stack); i++ {
		if t.stack[i] != stackCanary {
			emitError(context.Background(), SignalThreadStackOverrun, FieldThreadName.Field(t.name))
			t.k.assertFail("thread", "stack overrun detected on %q", t.name)
		}
	}
}

// run is the goroutine body backing every kernel thread. It parks on
// its own context until the scheduler first restores it, runs the
// entry function to completion, and then exits the kernel on the
// thread's behalf.
func (t *Thread) run() {
	t.ctx.save()
	t.fn(t, t.arg)
	t.k.threadExit(t, 0)
}

// threadExit removes t from any list it's on, hands its stack off to
// the deferred-free slot, picks a replacement thread to run, and hands
// the baton to it. It returns once the handoff is done; its callers then
// end the goroutine backing t (run by returning, Exit via Goexit).
func (k *Kernel) threadExit(t *Thread, code int) {
	k.lock.Lock()
	t.returnCode = code
	t.state = ThreadExited
	if t.onReadyList {
		k.priorityRemove(t)
	}
	if t.onTimeoutList {
		k.timeoutRemove(t)
	}

	// Deferred free of self: t cannot reclaim the stack slice it is
	// still executing on, so the *previous* occupant of needToFree (if
	// any) is released now, and t takes its place for the next exit to
	// release.
	if prev := k.needToFree; prev != nil {
		prev.stack = nil
	}
	k.needToFree = t

	cpu := t.cpu
	k.current[cpu] = nil
	next := k.pickNext(cpu)
	k.current[cpu] = next
	next.state = ThreadRunning
	k.lock.Unlock()

	k.metrics.Counter(MetricThreadsExited).Inc()
	emitInfo(context.Background(), SignalThreadExited, FieldThreadName.Field(t.name), FieldReturnCode.Field(code))
	_ = k.hooks.threadExit.Emit(context.Background(), HookThreadExit, ThreadExitEvent{
		Name:       t.name,
		ReturnCode: code,
		Timestamp:  k.clock.Now(),
	})
	close(t.exitCh)

	next.ctx.restore()
}

// priorityInsert splices t into the ready list, descending priority,
// FIFO within a priority tier (inserted at the tail of its tier).
// Caller holds k.lock.
func (k *Kernel) priorityInsert(t *Thread) {
	t.onReadyList = true
	if k.readyHead == nil {
		k.readyHead = t
		t.prev, t.next = nil, nil
		return
	}
	var prev *Thread
	cur := k.readyHead
	for cur != nil && cur.priority >= t.priority {
		prev = cur
		cur = cur.next
	}
	t.prev, t.next = prev, cur
	if prev == nil {
		k.readyHead = t
	} else {
		prev.next = t
	}
	if cur != nil {
		cur.prev = t
	}
}

// priorityRemove splices t out of the ready list. Caller holds k.lock.
func (k *Kernel) priorityRemove(t *Thread) {
	if !t.onReadyList {
		return
	}
	if t.prev == nil {
		k.readyHead = t.next
	} else {
		t.prev.next = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	t.prev, t.next = nil, nil
	t.onReadyList = false
}

// timeoutInsert splices t into the timeout list, sorted by ticksTimeout
// ascending with wrap-safe comparison. Caller holds k.lock.
func (k *Kernel) timeoutInsert(t *Thread) {
	t.onTimeoutList = true
	var prev *Thread
	cur := k.timeoutHead
	for cur != nil && !tickBefore(t.ticksTimeout, cur.ticksTimeout) {
		prev = cur
		cur = cur.nextTimeout
	}
	t.prevTimeout, t.nextTimeout = prev, cur
	if prev == nil {
		k.timeoutHead = t
	} else {
		prev.nextTimeout = t
	}
	if cur != nil {
		cur.prevTimeout = t
	}
}

// timeoutRemove splices t out of the timeout list. Caller holds k.lock.
func (k *Kernel) timeoutRemove(t *Thread) {
	if !t.onTimeoutList {
		return
	}
	if t.prevTimeout == nil {
		k.timeoutHead = t.nextTimeout
	} else {
		t.prevTimeout.nextTimeout = t.nextTimeout
	}
	if t.nextTimeout != nil {
		t.nextTimeout.prevTimeout = t.prevTimeout
	}
	t.prevTimeout, t.nextTimeout = nil, nil
	t.onTimeoutList = false
}

// Time returns the current kernel tick count.
func (k *Kernel) Time() Tick {
	return withCritical(k, func() Tick { return k.time })
}

// Tick advances kernel time by one, wakes every thread whose timeout
// has elapsed, and requests a round-robin reschedule: at each running
// thread's next preemption point it goes to the back of its priority
// tier, so equal-priority peers rotate once per tick. Called by the
// interrupt-dispatch layer's tick handler (see isr.go); never call
// this from more than one goroutine concurrently with itself.
func (k *Kernel) Tick() {
	withCritical(k, func() bool {
		k.time++
		k.metrics.Gauge(MetricTick).Set(float64(k.time))
		for t := k.timeoutHead; t != nil; {
			next := t.nextTimeout
			if tickBefore(k.time, t.ticksTimeout) {
				break
			}
			k.wakeTimedOut(t)
			t = next
		}
		k.requestReschedule(cpuAny)
		return true
	})
}

// wakeTimedOut removes t from whatever it was waiting on with a timeout
// return code and makes it ready again. Caller holds k.lock.
func (k *Kernel) wakeTimedOut(t *Thread) {
	k.timeoutRemove(t)
	if sem := t.semaphorePending; sem != nil {
		sem.waitRemove(t)
		sem.count++
		t.semaphorePending = nil
	}
	t.returnCode = -1
	t.state = ThreadReady
	k.priorityInsert(t)
	k.requestReschedule(cpuAny)
}
