package rtos

import "github.com/zoobzio/tracez"

// Span keys and tags for the kernel's tracez spans. Named after the
// operation they wrap, matching the teacher's "<connector>.<verb>"
// convention.
const (
	SpanSemaphorePend     = tracez.Key("semaphore.pend")
	SpanSemaphorePost     = tracez.Key("semaphore.post")
	SpanHeapAlloc         = tracez.Key("heap.alloc")
	SpanHeapFree          = tracez.Key("heap.free")
	SpanInterruptService  = tracez.Key("isr.service")
	SpanThreadCreate      = tracez.Key("thread.create")
	SpanTimerTick         = tracez.Key("timer.tick")
	SpanMutexPend         = tracez.Key("mutex.pend")
	SpanQueueSend         = tracez.Key("mqueue.send")
	SpanQueueGet          = tracez.Key("mqueue.get")
)

const (
	TagThreadName  = tracez.Tag("thread")
	TagPriority    = tracez.Tag("priority")
	TagResult      = tracez.Tag("result")
	TagTimedOut    = tracez.Tag("timed_out")
	TagHeapID      = tracez.Tag("heap_id")
	TagBytes       = tracez.Tag("bytes")
	TagISRNumber   = tracez.Tag("isr_number")
	TagQueueName   = tracez.Tag("queue")
)
