package rtos

// Context is the Go stand-in for the original's jmp_buf-based register
// save area. Real hardware backs a context switch with setjmp/longjmp
// and a disable/enable pair around the register save; there is no
// portable equivalent of "two returns from one call site" once the code
// runs under the Go runtime's own scheduler instead of directly on a
// single-core part.
//
// Instead, every kernel thread runs on its own goroutine, and the
// scheduler's critical section (Kernel.lock) ensures at most one
// thread's goroutine is ever doing kernel work at a time. A context
// switch is an unbuffered channel rendezvous: the thread giving up the
// CPU calls save, which blocks the calling goroutine until some later
// restore call hands the baton back; the thread receiving the CPU is
// woken by a restore call made by whichever goroutine is driving the
// reschedule. Exactly one of save/restore is ever in flight per
// Context, so the rendezvous can never deliver the baton to two
// goroutines at once — that property is what stands in for "one CPU,
// one register file."
type Context struct {
	resume chan struct{}
}

func newContext() *Context {
	return &Context{resume: make(chan struct{})}
}

// save parks the calling goroutine until a later restore call on this
// same Context hands the baton back. Callers must not hold Kernel.lock
// when calling save — the whole point of releasing it first is so the
// thread save is handing off to can reacquire it without deadlocking
// against this one.
func (c *Context) save() {
	<-c.resume
}

// restore hands the baton to the goroutine parked in save. It is a
// synchronous rendezvous: restore returns as soon as the other
// goroutine's save call has received, at which point that goroutine is
// running and this one should stop touching shared kernel state.
func (c *Context) restore() {
	c.resume <- struct{}{}
}
