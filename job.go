package rtos

import "context"

// jobQueueCapacity mirrors the original's 100-slot, 4-word timer
// message queue sizing for background work: a bounded backlog of
// pending jobs before Job starts rejecting new work with ErrFull.
const jobQueueCapacity = 100

// ensureJobWorker lazily creates the job dispatcher's backlog and
// dedicated worker thread on first use, via sync.Once — the same
// lazy-create-on-first-call pattern the timer service uses for its own
// dedicated thread, grounded on the original's "is the thread already
// running" check before spinning one up.
//
// A Go func() cannot be represented as a fixed-width word payload the
// way a real mqueue moves uint32s, so the backlog here is a plain
// kernel-lock-guarded slice rather than an *MQueue; the worker still
// blocks on a dedicated Semaphore via SemaphorePend exactly like every
// other blocking kernel primitive, so it participates in scheduling
// instead of parking on a bare Go channel outside the kernel's
// knowledge of who is runnable.
func (k *Kernel) ensureJobWorker() {
	k.jobOnce.Do(func() {
		sem, _ := k.SemaphoreCreate("job.wake", 0)
		k.jobSem = sem
		t, _ := k.ThreadCreate("job-worker", ThreadPriorityIdle+1, func(self *Thread, _ any) {
			k.jobWorkerLoop(self)
		}, nil, 0)
		_ = t
	})
}

// Job enqueues fn to run asynchronously on the kernel's dedicated job
// worker thread, decoupling the caller from direct execution the way a
// driver's ISR hands deferred work off to thread context. Job never
// blocks: if the backlog is full, it returns ErrFull immediately.
func (k *Kernel) Job(fn func()) error {
	k.ensureJobWorker()

	k.lock.Lock()
	if len(k.jobList) >= jobQueueCapacity {
		k.lock.Unlock()
		return newKernelError("job.dispatch", "job-worker", ErrFull)
	}
	k.jobList = append(k.jobList, fn)
	k.lock.Unlock()

	k.metrics.Counter(MetricJobsDispatched).Inc()
	return k.SemaphorePost(nil, k.jobSem)
}

// jobWorkerLoop is the job worker thread's body: wait for work, pull
// one closure off the backlog, and run it, forever.
func (k *Kernel) jobWorkerLoop(self *Thread) {
	for {
		if err := k.SemaphorePend(self, k.jobSem, WaitForever); err != nil {
			continue
		}

		k.lock.Lock()
		var fn func()
		if len(k.jobList) > 0 {
			fn = k.jobList[0]
			k.jobList = k.jobList[1:]
		}
		k.lock.Unlock()

		if fn == nil {
			continue
		}
		runJob(fn)
	}
}

func runJob(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			emitError(context.Background(), SignalAssertFailed, FieldError.Field("job panicked"))
		}
	}()
	fn()
}
