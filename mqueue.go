package rtos

import (
	"context"
	"errors"
)

// MQueue is a fixed-slot bounded message queue: capacity slots of
// slotWords uint32 words each, stored in a single preallocated circular
// buffer. A message queue's semaphore counts available (unread)
// messages; Send posts to it, Get pends on it.
type MQueue struct {
	k    *Kernel
	name string
	sem  *Semaphore

	capacity  int
	slotWords int

	used, readIdx, writeIdx int
	storage                 []uint32
}

// MQueueCreate creates a queue holding up to capacity messages of
// slotWords uint32 words each.
func (k *Kernel) MQueueCreate(name string, capacity, slotWords int) (*MQueue, error) {
	if capacity <= 0 || slotWords <= 0 {
		return nil, newKernelError("mqueue.create", name, ErrInvalidHandle)
	}
	sem, err := k.SemaphoreCreate(name, 0)
	if err != nil {
		return nil, err
	}
	return &MQueue{
		k:         k,
		name:      name,
		sem:       sem,
		capacity:  capacity,
		slotWords: slotWords,
		storage:   make([]uint32, capacity*slotWords),
	}, nil
}

// MQueueDelete deletes q, waking any pending Get with an error.
func (k *Kernel) MQueueDelete(q *MQueue) error {
	return k.SemaphoreDelete(q.sem)
}

// MQueueSend copies msg (exactly q's configured slotWords) into the
// next free slot and posts to the queue's semaphore. Send never blocks
// — it is ISR-safe — and fails with ErrFull if the queue is at
// capacity. Pass self as nil when calling from interrupt-service
// context.
func (k *Kernel) MQueueSend(self *Thread, q *MQueue, msg []uint32) error {
	_, span := k.tracer.StartSpan(context.Background(), SpanQueueSend)
	span.SetTag(TagQueueName, q.name)
	defer span.Finish()

	if len(msg) != q.slotWords {
		return newKernelError("mqueue.send", q.name, ErrInvalidHandle)
	}

	k.lock.Lock()
	if q.used >= q.capacity {
		used := q.used
		k.lock.Unlock()
		k.metrics.Counter(MetricQueueFullRejects).Inc()
		emitWarn(context.Background(), SignalQueueFull,
			FieldName.Field(q.name),
			FieldQueueUsed.Field(used),
			FieldQueueCapacity.Field(q.capacity))
		return newKernelError("mqueue.send", q.name, ErrFull)
	}
	base := q.writeIdx * q.slotWords
	copy(q.storage[base:base+q.slotWords], msg)
	q.writeIdx = (q.writeIdx + 1) % q.capacity
	q.used++
	k.lock.Unlock()

	return k.SemaphorePost(self, q.sem)
}

// MQueueGet blocks self for up to timeout ticks waiting for a message,
// copies it into buf (which must be at least slotWords long), and
// returns the number of words copied. Returns ErrEmpty for a
// non-blocking (NoWait) attempt against an empty queue, or ErrTimeout
// if a bounded wait expires.
func (k *Kernel) MQueueGet(self *Thread, q *MQueue, timeout uint32, buf []uint32) (int, error) {
	_, span := k.tracer.StartSpan(context.Background(), SpanQueueGet)
	span.SetTag(TagQueueName, q.name)
	defer span.Finish()

	if len(buf) < q.slotWords {
		return 0, newKernelError("mqueue.get", q.name, ErrInvalidHandle)
	}

	if err := k.SemaphorePend(self, q.sem, timeout); err != nil {
		if errors.Is(err, ErrTimeout) && timeout == NoWait {
			k.metrics.Counter(MetricQueueEmptyRejects).Inc()
			emitWarn(context.Background(), SignalQueueEmpty, FieldName.Field(q.name))
			return 0, newKernelError("mqueue.get", q.name, ErrEmpty)
		}
		return 0, err
	}

	k.lock.Lock()
	base := q.readIdx * q.slotWords
	n := copy(buf, q.storage[base:base+q.slotWords])
	q.readIdx = (q.readIdx + 1) % q.capacity
	q.used--
	k.lock.Unlock()

	return n, nil
}
