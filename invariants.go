package rtos

import "fmt"

// CheckInvariants walks the kernel's scheduling structures and reports
// the first structural violation found, or nil. It takes the critical
// section for the duration, so it observes a consistent snapshot; test
// instrumentation calls it after every mutating operation.
//
// Checked: the ready list is sorted strictly by descending priority and
// contains no currently running thread; the timeout list is sorted by
// absolute deadline (wrap-safe); the timer list likewise, with every
// linked timer active; and no thread is on both the ready list and a
// wait list.
func (k *Kernel) CheckInvariants() error {
	return withCritical(k, func() error {
		for t := k.readyHead; t != nil; t = t.next {
			if t.next != nil && t.next.priority > t.priority {
				return fmt.Errorf("rtos: ready list out of order: %q(%d) before %q(%d)",
					t.name, t.priority, t.next.name, t.next.priority)
			}
			if t.onWaitList {
				return fmt.Errorf("rtos: thread %q is on both the ready list and a wait list", t.name)
			}
			if t.state != ThreadReady {
				return fmt.Errorf("rtos: thread %q on the ready list in state %d", t.name, t.state)
			}
			for _, cur := range k.current {
				if cur == t {
					return fmt.Errorf("rtos: running thread %q is also on the ready list", t.name)
				}
			}
		}
		for t := k.timeoutHead; t != nil; t = t.nextTimeout {
			if t.nextTimeout != nil && tickBefore(t.nextTimeout.ticksTimeout, t.ticksTimeout) {
				return fmt.Errorf("rtos: timeout list out of order at %q", t.name)
			}
		}
		for tm := k.timerHead; tm != nil; tm = tm.next {
			if !tm.active {
				return fmt.Errorf("rtos: inactive timer %q linked into the timer list", tm.name)
			}
			if tm.next != nil && tickBefore(tm.next.timeoutAbs, tm.timeoutAbs) {
				return fmt.Errorf("rtos: timer list out of order at %q", tm.name)
			}
		}
		return nil
	})
}
