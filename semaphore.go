package rtos

import "context"

// NoWait, used as a Pend/Get timeout, requests a non-blocking attempt:
// fail immediately with ErrTimeout rather than waiting.
const NoWait uint32 = 0

// WaitForever, used as a Pend/Get timeout, requests an unbounded wait:
// never time out, block until posted to or deleted.
const WaitForever uint32 = 0xffffffff

// Semaphore is a counting semaphore with a priority-ordered wait list.
// count >= 0 iff the wait list is empty; count < 0 iff its magnitude
// equals the number of waiters.
type Semaphore struct {
	k        *Kernel
	name     string
	count    int32
	waitHead *Thread
	deleted  bool
}

// waitInsert splices t into the semaphore's wait list, priority
// order descending, FIFO within a tier. Caller holds k.lock.
func (s *Semaphore) waitInsert(t *Thread) {
	t.onWaitList = true
	var prev *Thread
	cur := s.waitHead
	for cur != nil && cur.priority >= t.priority {
		prev = cur
		cur = cur.waitNext
	}
	t.waitPrev, t.waitNext = prev, cur
	if prev == nil {
		s.waitHead = t
	} else {
		prev.waitNext = t
	}
	if cur != nil {
		cur.waitPrev = t
	}
}

// waitRemove splices t out of the semaphore's wait list. Caller holds
// k.lock.
func (s *Semaphore) waitRemove(t *Thread) {
	if !t.onWaitList {
		return
	}
	if t.waitPrev == nil {
		s.waitHead = t.waitNext
	} else {
		t.waitPrev.waitNext = t.waitNext
	}
	if t.waitNext != nil {
		t.waitNext.waitPrev = t.waitPrev
	}
	t.waitPrev, t.waitNext = nil, nil
	t.onWaitList = false
}

// SemaphoreCreate creates a counting semaphore with the given initial
// count. Before the system heap exists, Init hands out the first
// ReservedSemaphoreCount calls from a static array instead — see
// Kernel.reserved.
func (k *Kernel) SemaphoreCreate(name string, count int32) (*Semaphore, error) {
	return withCriticalErr(k, func() (*Semaphore, error) {
		if k.reservedUsed < len(k.reserved) {
			sem := &k.reserved[k.reservedUsed]
			k.reservedUsed++
			sem.k = k
			sem.name = name
			sem.count = count
			return sem, nil
		}
		return &Semaphore{k: k, name: name, count: count}, nil
	})
}

// SemaphoreDelete deletes sem. Every pending waiter is woken and its
// Pend returns an error; Pend and Post calls made after deletion fail
// with ErrInvalidHandle.
func (k *Kernel) SemaphoreDelete(sem *Semaphore) error {
	withCritical(k, func() bool {
		sem.deleted = true
		waiters := 0
		for w := sem.waitHead; w != nil; w = w.waitNext {
			waiters++
		}
		for w := sem.waitHead; w != nil; {
			next := w.waitNext
			sem.waitRemove(w)
			if w.onTimeoutList {
				k.timeoutRemove(w)
			}
			w.semaphorePending = nil
			w.returnCode = -1
			w.state = ThreadReady
			k.priorityInsert(w)
			w = next
		}
		k.requestReschedule(cpuAny)
		emitInfo(context.Background(), SignalSemaphoreDeleted,
			FieldName.Field(sem.name),
			FieldSemaphoreCount.Field(int(sem.count)),
			FieldWaiters.Field(waiters))
		return true
	})
	return nil
}

// SemaphorePend acquires sem, blocking the calling thread self for up
// to timeout ticks (NoWait for a non-blocking attempt, WaitForever to
// wait indefinitely). Blocking is forbidden from interrupt context; a
// nil self is accepted only with NoWait, since there is no thread to
// park.
func (k *Kernel) SemaphorePend(self *Thread, sem *Semaphore, timeout uint32) error {
	ctx, span := k.tracer.StartSpan(context.Background(), SpanSemaphorePend)
	span.SetTag(TagThreadName, threadName(self))
	defer span.Finish()

	k.lock.Lock()
	if k.insideInterruptAny() {
		k.lock.Unlock()
		k.assertFail("semaphore", "Pend called from interrupt context")
	}
	if sem.deleted {
		k.lock.Unlock()
		return newKernelError("semaphore.pend", sem.name, ErrInvalidHandle)
	}

	sem.count--
	if sem.count >= 0 {
		k.lock.Unlock()
		span.SetTag(TagResult, "acquired")
		return nil
	}

	if timeout == NoWait {
		sem.count++
		k.lock.Unlock()
		span.SetTag(TagTimedOut, "true")
		return newKernelError("semaphore.pend", sem.name, ErrTimeout)
	}

	if self == nil {
		sem.count++
		k.lock.Unlock()
		k.assertFail("semaphore", "blocking Pend without a thread context")
	}

	self.semaphorePending = sem
	sem.waitInsert(self)
	if timeout != WaitForever {
		self.ticksTimeout = k.time + Tick(timeout)
		k.timeoutInsert(self)
	}
	self.state = ThreadBlocked
	cpu := self.cpu
	k.reschedule(cpu)
	k.lock.Unlock()

	if self.returnCode == -1 {
		self.returnCode = 0
		k.metrics.Counter(MetricSemaphoreTimeouts).Inc()
		emitWarn(ctx, SignalSemaphoreTimeout, FieldName.Field(sem.name), FieldThreadName.Field(self.name))
		span.SetTag(TagTimedOut, "true")
		return newKernelError("semaphore.pend", sem.name, ErrTimeout)
	}
	span.SetTag(TagResult, "acquired")
	return nil
}

// SemaphorePost releases sem, waking the highest-priority waiter if
// any. self is the calling thread, used to decide whether the post
// should immediately yield to a newly-woken higher-priority thread;
// pass nil when posting from interrupt-service context, where a swap
// can only be requested, never performed directly.
func (k *Kernel) SemaphorePost(self *Thread, sem *Semaphore) error {
	_, span := k.tracer.StartSpan(context.Background(), SpanSemaphorePost)
	span.SetTag(TagThreadName, threadName(self))
	defer span.Finish()

	k.lock.Lock()
	if sem.deleted {
		k.lock.Unlock()
		return newKernelError("semaphore.post", sem.name, ErrInvalidHandle)
	}

	sem.count++
	if sem.count <= 0 {
		if woken := sem.waitHead; woken != nil {
			sem.waitRemove(woken)
			if woken.onTimeoutList {
				k.timeoutRemove(woken)
			}
			woken.semaphorePending = nil
			woken.returnCode = 0
			woken.state = ThreadReady
			k.priorityInsert(woken)
			k.requestReschedule(cpuAny)
		}
	}

	if self != nil {
		k.maybeReschedule(self.cpu)
	}
	k.lock.Unlock()
	return nil
}
