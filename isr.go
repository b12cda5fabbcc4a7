package rtos

import "context"

// ISRFunc is an interrupt handler: given the IRQ number that fired, it
// does whatever ISR-safe work is needed (Post, Send, mask changes) and
// returns without blocking. Exactly the restriction the original
// places on code run with interrupts disabled.
type ISRFunc func(irq int)

// TickIRQ is the IRQ number Init binds to Kernel.Tick — by convention,
// the hardware timer line. Registering a handler at this slot yourself
// replaces the kernel's own tick delivery, so don't, unless you're
// also calling Tick() yourself from the replacement.
const TickIRQ = 0

// ExceptionIRQ is the table slot reserved for synchronous exceptions
// (syscall, breakpoint). The platform trap shim dispatches these
// through the same table as hardware lines; nothing in this package
// raises them itself.
const ExceptionIRQ = 31

// InterruptRegister binds fn as the handler for irq (0..31). Replacing
// an existing handler is allowed; passing a nil fn unregisters it.
func (k *Kernel) InterruptRegister(irq int, fn ISRFunc) error {
	if irq < 0 || irq >= len(k.isr) {
		return newKernelError("isr.register", "", ErrInvalidHandle)
	}
	withCritical(k, func() bool {
		k.isr[irq] = fn
		return true
	})
	emitInfo(context.Background(), SignalISRRegistered, FieldISRNumber.Field(irq))
	return nil
}

// InterruptMaskSet disables irq: Service will no longer dispatch to its
// handler even if the irq's pending bit is set, until MaskClear.
func (k *Kernel) InterruptMaskSet(irq int) error {
	if irq < 0 || irq >= len(k.isr) {
		return newKernelError("isr.mask_set", "", ErrInvalidHandle)
	}
	withCritical(k, func() bool {
		k.interruptMask |= 1 << uint(irq)
		return true
	})
	return nil
}

// InterruptMaskClear re-enables irq.
func (k *Kernel) InterruptMaskClear(irq int) error {
	if irq < 0 || irq >= len(k.isr) {
		return newKernelError("isr.mask_clear", "", ErrInvalidHandle)
	}
	withCritical(k, func() bool {
		k.interruptMask &^= 1 << uint(irq)
		return true
	})
	return nil
}

// Status returns the current disabled-interrupt mask: bit i set means
// IRQ i is currently masked off.
func (k *Kernel) Status() uint32 {
	return withCritical(k, func() uint32 { return k.interruptMask })
}

// Service dispatches every set, unmasked bit of pending to its
// registered handler, in ascending IRQ order, with that CPU marked as
// inside interrupt context for the duration — which is what makes
// Pend, Get (with any timeout), and every heap entry point refuse to run
// from inside a handler. Service is how both real hardware (via a thin
// trap-handler shim outside this package) and the simulated interrupt
// driver (Config.SimulateInterrupts) feed the kernel IRQs.
func (k *Kernel) Service(cpu int, pending uint32) {
	ctx, span := k.tracer.StartSpan(context.Background(), SpanInterruptService)
	defer span.Finish()

	k.lock.Lock()
	active := pending &^ k.interruptMask
	k.insideInterrupt[cpu] = true
	handlers := k.isr
	k.lock.Unlock()

	for irq := 0; irq < 32; irq++ {
		bit := uint32(1) << uint(irq)
		if active&bit == 0 {
			continue
		}
		fn := handlers[irq]
		if fn == nil {
			// A pending line with no handler would re-enter Service on
			// every dispatch forever; mask it off instead.
			_ = k.InterruptMaskSet(irq)
			continue
		}
		k.metrics.Counter(MetricISRDispatches).Inc()
		span.SetTag(TagISRNumber, itoa(irq))
		emitInfo(ctx, SignalISRDispatched, FieldISRNumber.Field(irq))
		fn(irq)
	}

	k.lock.Lock()
	k.insideInterrupt[cpu] = false
	k.lock.Unlock()
}

// tickISR is the handler Init binds to TickIRQ.
func (k *Kernel) tickISR(_ int) {
	k.Tick()
}
