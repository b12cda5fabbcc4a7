package rtos

import "context"

// Mutex is a recursive mutual-exclusion lock layered on a binary
// semaphore: depth > 0 iff owner != nil, and a thread that already
// owns the mutex may Pend it again without blocking, provided it calls
// Post an equal number of times.
type Mutex struct {
	name  string
	inner *Semaphore
	owner *Thread
	depth int
}

// MutexCreate creates an unlocked recursive mutex.
func (k *Kernel) MutexCreate(name string) (*Mutex, error) {
	sem, err := k.SemaphoreCreate(name, 1)
	if err != nil {
		return nil, err
	}
	return &Mutex{name: name, inner: sem}, nil
}

// MutexDelete deletes m, waking any pending waiter with an error.
func (k *Kernel) MutexDelete(m *Mutex) error {
	return k.SemaphoreDelete(m.inner)
}

// MutexPend acquires m, blocking self for up to timeout ticks if it is
// held by another thread. If self already owns m, the call succeeds
// immediately and increments the recursion depth — unbounded priority
// inversion under contention is carried unchanged from the original;
// this port does not add priority inheritance.
func (k *Kernel) MutexPend(self *Thread, m *Mutex, timeout uint32) error {
	_, span := k.tracer.StartSpan(context.Background(), SpanMutexPend)
	span.SetTag(TagThreadName, self.name)
	defer span.Finish()

	k.lock.Lock()
	if m.owner == self {
		m.depth++
		k.lock.Unlock()
		return nil
	}
	contended := m.owner != nil
	depth := m.depth
	k.lock.Unlock()

	if contended {
		k.metrics.Counter(MetricMutexContentions).Inc()
		emitInfo(context.Background(), SignalMutexContended,
			FieldName.Field(m.name),
			FieldThreadName.Field(self.name),
			FieldMutexDepth.Field(depth))
	}

	if err := k.SemaphorePend(self, m.inner, timeout); err != nil {
		return err
	}

	k.lock.Lock()
	m.owner = self
	m.depth = 1
	k.lock.Unlock()
	return nil
}

// MutexPost releases one level of recursion on m. Once depth reaches
// zero the mutex is unlocked and the next waiter, if any, is woken.
// Returns ErrNotOwner if called by a thread other than the current
// owner.
func (k *Kernel) MutexPost(self *Thread, m *Mutex) error {
	k.lock.Lock()
	if m.owner != self {
		k.lock.Unlock()
		return newKernelError("mutex.post", m.name, ErrNotOwner)
	}
	m.depth--
	if m.depth > 0 {
		k.lock.Unlock()
		return nil
	}
	m.owner = nil
	k.lock.Unlock()

	return k.SemaphorePost(self, m.inner)
}
