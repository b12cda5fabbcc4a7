package rtos

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys. These are the mechanism external drivers (UART,
// Ethernet, and the rest of the out-of-scope device layer) would
// subscribe to kernel lifecycle events through, without the kernel
// importing them.
const (
	HookThreadExit   = hookz.Key("kernel.thread_exit")
	HookTimerFire    = hookz.Key("kernel.timer_fire")
	HookHeapExhausted = hookz.Key("kernel.heap_exhausted")
)

// ThreadExitEvent is emitted via hookz whenever a thread finishes
// running, successfully or via a fatal return.
type ThreadExitEvent struct {
	Name       string
	ReturnCode int
	Timestamp  time.Time
}

// TimerFireEvent is emitted whenever a timer's deadline is reached, just
// before its callback (if any) is invoked.
type TimerFireEvent struct {
	Name      string
	Periodic  bool
	Timestamp time.Time
}

// HeapExhaustedEvent is emitted whenever an allocation request cannot be
// satisfied by any free block in the target heap.
type HeapExhaustedEvent struct {
	HeapID    HeapID
	Requested int
	FreeBytes int
	Timestamp time.Time
}

// hookRegistries bundles the three typed hook registries the kernel
// exposes. Kept together so NewKernel can construct and Close them as a
// unit, matching the teacher's per-connector hookz.Hooks[T] field.
type hookRegistries struct {
	threadExit *hookz.Hooks[ThreadExitEvent]
	timerFire  *hookz.Hooks[TimerFireEvent]
	heapExhaust *hookz.Hooks[HeapExhaustedEvent]
}

func newHookRegistries() *hookRegistries {
	return &hookRegistries{
		threadExit:  hookz.New[ThreadExitEvent](),
		timerFire:   hookz.New[TimerFireEvent](),
		heapExhaust: hookz.New[HeapExhaustedEvent](),
	}
}

func (h *hookRegistries) Close() {
	h.threadExit.Close()
	h.timerFire.Close()
	h.heapExhaust.Close()
}

// OnThreadExit registers a handler invoked whenever any thread in this
// kernel exits.
func (k *Kernel) OnThreadExit(handler func(context.Context, ThreadExitEvent) error) error {
	_, err := k.hooks.threadExit.Hook(HookThreadExit, handler)
	return err
}

// OnTimerFire registers a handler invoked whenever any timer in this
// kernel fires.
func (k *Kernel) OnTimerFire(handler func(context.Context, TimerFireEvent) error) error {
	_, err := k.hooks.timerFire.Hook(HookTimerFire, handler)
	return err
}

// OnHeapExhausted registers a handler invoked whenever a heap allocation
// fails for lack of a large-enough free block.
func (k *Kernel) OnHeapExhausted(handler func(context.Context, HeapExhaustedEvent) error) error {
	_, err := k.hooks.heapExhaust.Hook(HookHeapExhausted, handler)
	return err
}
