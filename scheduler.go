package rtos

// pickNext removes and returns the highest-priority ready thread
// eligible to run on cpu (unpinned, or pinned to cpu), or that CPU's
// idle thread if the ready list holds nothing eligible. Caller holds
// k.lock.
func (k *Kernel) pickNext(cpu int) *Thread {
	cur := k.readyHead
	for cur != nil {
		if cur.cpuLock == cpuAny || cur.cpuLock == cpu {
			k.priorityRemove(cur)
			return cur
		}
		cur = cur.next
	}
	return k.idle[cpu]
}

// requestReschedule flags cpu (or, with cpuAny, every CPU) as needing a
// reschedule the next time its running thread reaches a preemption
// point. Used by contexts — ISR dispatch, Tick — that cannot perform
// the actual context swap themselves because they are not running as
// one of the kernel's own thread goroutines.
func (k *Kernel) requestReschedule(cpu int) {
	if cpu == cpuAny {
		for i := range k.needReschedule {
			k.needReschedule[i] = true
		}
	} else {
		k.needReschedule[cpu] = true
	}
}

// reschedule performs the actual context swap on cpu if the ready list
// holds something more eligible than whatever is currently running
// there. Caller holds k.lock on entry; k.lock is still held on return,
// but is released and reacquired across the handoff itself so the
// thread being switched to can touch kernel state without deadlocking
// against this goroutine.
//
// This is the single canonical reschedule path for every CPU count,
// per the design decision to carry one Reschedule implementation
// parameterized by CPU count rather than the original's separate
// single-CPU and multi-CPU code paths.
func (k *Kernel) reschedule(cpu int) {
	self := k.current[cpu]
	k.needReschedule[cpu] = false

	// A thread giving up the CPU without blocking goes back on the ready
	// list at the tail of its priority tier, so pickNext applies the
	// selection rule: a strictly higher-priority thread always wins, and
	// an equal-priority peer wins only because it was queued first —
	// which is the round-robin rotation. A blocked thread is already on
	// its semaphore's wait list and stays off the ready list. The idle
	// thread is pickNext's fallback and is never a ready-list member.
	if self != nil && self != k.idle[cpu] {
		self.checkStack()
	}
	if self != nil && self.state == ThreadRunning && self != k.idle[cpu] {
		self.state = ThreadReady
		k.priorityInsert(self)
	}

	next := k.pickNext(cpu)
	if next == self {
		self.state = ThreadRunning
		return
	}

	k.metrics.Counter(MetricContextSwitches).Inc()
	k.current[cpu] = next
	next.cpu = cpu
	next.state = ThreadRunning

	k.lock.Unlock()
	next.ctx.restore()
	self.ctx.save()
	k.lock.Lock()
}

// maybeReschedule calls reschedule(cpu) only if swapping is enabled and
// a reschedule has been requested for cpu; reschedule itself then keeps
// the current occupant if nothing more eligible is ready. Post (and so
// Send) calls this at its tail, and the idle loop calls it repeatedly,
// so a higher-priority thread woken as a side effect runs immediately,
// the same way the original calls OS_ThreadReschedule unconditionally
// at the end of OS_SemaphorePost.
func (k *Kernel) maybeReschedule(cpu int) {
	if !k.swapEnabled || !k.needReschedule[cpu] {
		return
	}
	k.reschedule(cpu)
}

// insideInterruptAny reports whether any CPU is currently inside
// interrupt-service context. Used to gate ISR-unsafe operations
// (Pend, and so Get, with any timeout; heap operations) regardless of
// which CPU the caller happens to be running on, matching the
// original's single-flag InterruptInside check extended to N CPUs.
func (k *Kernel) insideInterruptAny() bool {
	for _, inside := range k.insideInterrupt {
		if inside {
			return true
		}
	}
	return false
}
