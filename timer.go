package rtos

import "context"

// Timer fires once after its initial delay and, if restartTicks is
// nonzero, every restartTicks thereafter. One global list, sorted by
// absolute deadline, is driven by a single dedicated kernel thread that
// pends on a private semaphore with a computed timeout equal to the
// delta until the next deadline — reusing the same Pend/timeout
// machinery every other blocking call uses rather than a separate
// polling loop.
type Timer struct {
	k *Kernel

	name         string
	timeoutAbs   Tick
	restartTicks uint32
	active       bool

	callback func(*Timer, uint32)
	info     uint32

	queue   *MQueue
	payload []uint32

	prev, next *Timer
}

// Name returns the timer's name.
func (tm *Timer) Name() string { return tm.name }

// ensureTimerThread lazily creates the timer service's semaphore and
// dedicated thread on first use, mirroring the original's
// SemaphoreTimer == nil lazy-init check — the first two timer-service
// resources the kernel needs don't exist until the first TimerCreate
// call, exactly like the job dispatcher's first-call lazy worker.
func (k *Kernel) ensureTimerThread() {
	k.timerOnce.Do(func() {
		sem, _ := k.SemaphoreCreate("timer.wake", 0)
		k.timerSem = sem
		t, _ := k.ThreadCreate("timer", ThreadPriorityMax-1, func(self *Thread, _ any) {
			k.timerThreadLoop(self)
		}, nil, 0)
		k.timerThread = t
	})
}

// TimerCreate creates an inactive timer. callback, if non-nil, is
// invoked (outside the kernel's critical section) every time the timer
// fires, once for a one-shot timer (restartTicks == 0) or repeatedly
// for a periodic one.
func (k *Kernel) TimerCreate(name string, restartTicks uint32, callback func(*Timer, uint32)) (*Timer, error) {
	k.ensureTimerThread()
	return &Timer{k: k, name: name, restartTicks: restartTicks, callback: callback}, nil
}

// SetCallback replaces tm's fire callback.
func (tm *Timer) SetCallback(callback func(*Timer, uint32)) {
	withCritical(tm.k, func() bool { tm.callback = callback; return true })
}

// SetQueue attaches an mqueue that receives payload every time tm
// fires, in addition to (or instead of) invoking its callback. payload
// must have exactly q's configured slotWords words.
func (tm *Timer) SetQueue(q *MQueue, payload []uint32) {
	withCritical(tm.k, func() bool {
		tm.queue = q
		tm.payload = payload
		return true
	})
}

// TimerDelete stops tm if active and releases it.
func (k *Kernel) TimerDelete(tm *Timer) error {
	return k.TimerStop(tm)
}

// TimerStart (re)starts tm so it first fires after initialTicks ticks
// from now.
func (k *Kernel) TimerStart(tm *Timer, initialTicks uint32) error {
	k.lock.Lock()
	if tm.active {
		k.timerRemove(tm)
	}
	tm.timeoutAbs = k.time + Tick(initialTicks)
	tm.active = true
	k.timerInsert(tm)
	k.lock.Unlock()

	emitInfo(context.Background(), SignalTimerStarted, FieldName.Field(tm.name), FieldTimerRestart.Field(int(tm.restartTicks)))
	k.wakeTimerThread()
	return nil
}

// TimerStop deactivates tm. A no-op if tm is already inactive.
func (k *Kernel) TimerStop(tm *Timer) error {
	k.lock.Lock()
	if !tm.active {
		k.lock.Unlock()
		return nil
	}
	k.timerRemove(tm)
	tm.active = false
	k.lock.Unlock()

	emitInfo(context.Background(), SignalTimerStopped, FieldName.Field(tm.name))
	return nil
}

// wakeTimerThread nudges the timer thread to recompute its wait delta
// immediately — used whenever the list's head may have changed to a
// sooner deadline than whatever the thread is currently waiting on. A
// spurious wake is harmless: the thread just recomputes and finds the
// same delta.
func (k *Kernel) wakeTimerThread() {
	if k.timerSem == nil {
		return
	}
	_ = k.SemaphorePost(nil, k.timerSem)
}

// timerInsert splices tm into the timer list, sorted by timeoutAbs
// ascending with wrap-safe comparison. Caller holds k.lock.
func (k *Kernel) timerInsert(tm *Timer) {
	var prev *Timer
	cur := k.timerHead
	for cur != nil && !tickBefore(tm.timeoutAbs, cur.timeoutAbs) {
		prev = cur
		cur = cur.next
	}
	tm.prev, tm.next = prev, cur
	if prev == nil {
		k.timerHead = tm
	} else {
		prev.next = tm
	}
	if cur != nil {
		cur.prev = tm
	}
}

// timerRemove splices tm out of the timer list. Caller holds k.lock.
func (k *Kernel) timerRemove(tm *Timer) {
	if tm.prev == nil {
		if k.timerHead == tm {
			k.timerHead = tm.next
		}
	} else {
		tm.prev.next = tm.next
	}
	if tm.next != nil {
		tm.next.prev = tm.prev
	}
	tm.prev, tm.next = nil, nil
}

// timerThreadLoop is the dedicated timer thread's body: wait until the
// next deadline (or forever, if no timer is active), then fire every
// timer whose deadline has passed.
func (k *Kernel) timerThreadLoop(self *Thread) {
	for {
		k.lock.Lock()
		head := k.timerHead
		var wait uint32
		if head != nil {
			if tickBefore(head.timeoutAbs, k.time) || head.timeoutAbs == k.time {
				wait = NoWait
			} else {
				wait = uint32(head.timeoutAbs - k.time)
			}
		}
		k.lock.Unlock()

		if head == nil {
			_ = k.SemaphorePend(self, k.timerSem, WaitForever)
		} else if wait != NoWait {
			_ = k.SemaphorePend(self, k.timerSem, wait)
		}
		k.fireDueTimers(self)
	}
}

// fireDueTimers pops and fires every timer whose deadline has passed,
// reinserting periodic timers with their next deadline before invoking
// their callback — so a callback that itself calls TimerStop observes
// a consistent, already-rescheduled timer list.
func (k *Kernel) fireDueTimers(self *Thread) {
	_, span := k.tracer.StartSpan(context.Background(), SpanTimerTick)
	defer span.Finish()

	for {
		k.lock.Lock()
		head := k.timerHead
		if head == nil || tickBefore(k.time, head.timeoutAbs) {
			k.lock.Unlock()
			return
		}
		k.timerRemove(head)
		head.active = false
		deadline := head.timeoutAbs
		periodic := head.restartTicks > 0
		if periodic {
			head.timeoutAbs = k.time + Tick(head.restartTicks)
			head.active = true
			k.timerInsert(head)
		}
		callback := head.callback
		queue := head.queue
		payload := head.payload
		info := head.info
		k.lock.Unlock()

		k.metrics.Counter(MetricTimerFires).Inc()
		emitInfo(context.Background(), SignalTimerFired,
			FieldName.Field(head.name),
			FieldTick.Field(int(deadline)))
		_ = k.hooks.timerFire.Emit(context.Background(), HookTimerFire, TimerFireEvent{
			Name:      head.name,
			Periodic:  periodic,
			Timestamp: k.clock.Now(),
		})

		if callback != nil {
			callback(head, info)
		}
		if queue != nil && payload != nil {
			_ = k.MQueueSend(self, queue, payload)
		}
	}
}
