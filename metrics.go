package rtos

import "github.com/zoobzio/metricz"

// Metric keys registered on Kernel.metrics. Several of them are updated
// while Kernel.lock is held: the heap gauges and alloc-failure counter
// (Alloc, Free), the tick gauge (Tick), and the context-switch counter
// (reschedule).
const (
	MetricContextSwitches    = metricz.Key("kernel.context_switches.total")
	MetricThreadsCreated     = metricz.Key("kernel.threads_created.total")
	MetricThreadsExited      = metricz.Key("kernel.threads_exited.total")
	MetricSemaphoreTimeouts  = metricz.Key("kernel.semaphore_timeouts.total")
	MetricMutexContentions   = metricz.Key("kernel.mutex_contentions.total")
	MetricQueueFullRejects   = metricz.Key("kernel.queue_full_rejects.total")
	MetricQueueEmptyRejects  = metricz.Key("kernel.queue_empty_rejects.total")
	MetricTimerFires         = metricz.Key("kernel.timer_fires.total")
	MetricISRDispatches      = metricz.Key("kernel.isr_dispatches.total")
	MetricJobsDispatched     = metricz.Key("kernel.jobs_dispatched.total")
	MetricHeapFreeBytes      = metricz.Key("kernel.heap_free_bytes")
	MetricHeapLargestRun     = metricz.Key("kernel.heap_largest_free_run")
	MetricHeapAllocFailures  = metricz.Key("kernel.heap_alloc_failures.total")
	MetricTick               = metricz.Key("kernel.tick")
)

// newMetrics builds a fresh registry with every kernel counter and gauge
// pre-registered, matching the teacher's pattern of registering all keys
// a connector might emit up front in its constructor.
func newMetrics() *metricz.Registry {
	m := metricz.New()
	m.Counter(MetricContextSwitches)
	m.Counter(MetricThreadsCreated)
	m.Counter(MetricThreadsExited)
	m.Counter(MetricSemaphoreTimeouts)
	m.Counter(MetricMutexContentions)
	m.Counter(MetricQueueFullRejects)
	m.Counter(MetricQueueEmptyRejects)
	m.Counter(MetricTimerFires)
	m.Counter(MetricISRDispatches)
	m.Counter(MetricJobsDispatched)
	m.Counter(MetricHeapAllocFailures)
	m.Gauge(MetricHeapFreeBytes)
	m.Gauge(MetricHeapLargestRun)
	m.Gauge(MetricTick)
	return m
}
