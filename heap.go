package rtos

import (
	"context"
	"strconv"
	"unsafe"
)

// heapMagic marks the header written immediately before every block this
// allocator hands out, so Free can detect a double-free or a pointer
// that never came from this heap.
const heapMagic = 0xdec0ded1

// heapAlign is the allocation granularity; every block size and free-list
// node is rounded up to a multiple of this.
const heapAlign = 16

// blockHeader precedes every allocated span inside a Heap's arena. It is
// written into the arena itself rather than tracked in a side table —
// the point of an embedded allocator is to not lean on the host
// allocator for its own bookkeeping.
type blockHeader struct {
	owner *Heap
	size  int
	magic uint32
}

// heapNode is the free-list node written into the arena at the start of
// every free block. The free list is singly linked and kept sorted by
// address so Free's coalescing pass only ever has to look at the node
// immediately before and after the block being freed.
type heapNode struct {
	next *heapNode
	size int // size of this free block, in bytes, header included
}

const (
	blockHeaderSize = int(unsafe.Sizeof(blockHeader{}))
	heapNodeSize    = int(unsafe.Sizeof(heapNode{}))
)

// Heap is a fixed-size arena carved out at HeapCreate time and managed
// with a first-fit, address-sorted, coalescing free list — no
// allocations on top of the host allocator after creation.
type Heap struct {
	name      string
	arena     []byte
	freeHead  *heapNode
	id        HeapID
	alternate *Heap
	k         *Kernel
}

func roundUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

func nodeAt(arena []byte, off int) *heapNode {
	return (*heapNode)(unsafe.Pointer(&arena[off]))
}

func headerAt(arena []byte, off int) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&arena[off]))
}

func offsetOf(arena []byte, p unsafe.Pointer) int {
	return int(uintptr(p) - uintptr(unsafe.Pointer(&arena[0])))
}

// HeapCreate carves out a new arena of size bytes and seeds it with one
// free block spanning the whole thing.
func (k *Kernel) HeapCreate(name string, size int) (*Heap, error) {
	if size < heapNodeSize {
		return nil, newKernelError("heap.create", name, ErrExhausted)
	}
	h := &Heap{
		name:  name,
		arena: make([]byte, roundUp(size, heapAlign)),
		k:     k,
	}
	root := nodeAt(h.arena, 0)
	root.next = nil
	root.size = len(h.arena)
	h.freeHead = root

	emitInfo(context.Background(), SignalHeapCreated, FieldName.Field(name))
	return h, nil
}

// HeapDestroy releases h. Any HeapID slots bound to h are cleared.
func (k *Kernel) HeapDestroy(h *Heap) {
	withCritical(k, func() bool {
		for i := range k.heapTable {
			if k.heapTable[i] == h {
				k.heapTable[i] = nil
			}
		}
		return true
	})
}

// Register binds h to the small integer key id (HeapSystem, HeapGeneral,
// ...) so Alloc can be called with a HeapID instead of a *Heap.
func (k *Kernel) Register(id HeapID, h *Heap) error {
	if id < 0 || int(id) >= HeapTableSize {
		return newKernelError("heap.register", h.name, ErrInvalidHandle)
	}
	withCritical(k, func() bool {
		h.id = id
		k.heapTable[id] = h
		return true
	})
	return nil
}

// heapByID resolves id through the heap table. Callers must hold
// k.lock.
func (k *Kernel) heapByID(id HeapID) (*Heap, error) {
	if id < 0 || int(id) >= HeapTableSize || k.heapTable[id] == nil {
		return nil, ErrInvalidHandle
	}
	return k.heapTable[id], nil
}

// Alloc allocates size bytes from the heap bound to id using a
// first-fit, address-sorted search of the free list. Forbidden from
// interrupt context, matching the original: an ISR that needs memory
// must have had it handed to it ahead of time.
func (k *Kernel) Alloc(id HeapID, size int) ([]byte, error) {
	ctx, span := k.tracer.StartSpan(context.Background(), SpanHeapAlloc)
	span.SetTag(TagHeapID, itoa(int(id)))
	span.SetTag(TagBytes, itoa(size))
	defer span.Finish()

	return withCriticalErr(k, func() ([]byte, error) {
		if k.insideInterruptAny() {
			k.assertFail("heap", "Alloc called from interrupt context")
		}
		h, err := k.heapByID(id)
		if err != nil {
			return nil, newKernelError("heap.alloc", "", err)
		}
		// Walk the alternate chain on exhaustion. The hop bound keeps a
		// misconfigured cycle of alternates from spinning forever.
		for hh, hops := h, 0; hh != nil && hops < HeapTableSize; hh, hops = hh.alternate, hops+1 {
			block, ok := hh.allocLocked(size)
			if !ok {
				continue
			}
			k.metrics.Gauge(MetricHeapFreeBytes).Set(float64(hh.freeBytesLocked()))
			k.metrics.Gauge(MetricHeapLargestRun).Set(float64(hh.largestRunLocked()))
			return block, nil
		}
		k.metrics.Counter(MetricHeapAllocFailures).Inc()
		emitWarn(ctx, SignalHeapExhausted,
			FieldHeapID.Field(int(id)),
			FieldHeapRequest.Field(size),
			FieldHeapFree.Field(h.freeBytesLocked()))
		_ = k.hooks.heapExhaust.Emit(ctx, HookHeapExhausted, HeapExhaustedEvent{
			HeapID:    id,
			Requested: size,
			FreeBytes: h.freeBytesLocked(),
			Timestamp: k.clock.Now(),
		})
		return nil, newKernelError("heap.alloc", h.name, ErrExhausted)
	})
}

// AllocFor allocates from the calling thread's bound heap, the common
// case where the caller doesn't care which arena backs the block.
func (k *Kernel) AllocFor(t *Thread, size int) ([]byte, error) {
	return k.Alloc(t.heapBinding, size)
}

// HeapAlternate sets other as h's fallback: an Alloc that exhausts h
// retries on other (and on other's own alternate in turn) before
// failing. Pass nil to clear the fallback.
func (k *Kernel) HeapAlternate(h, other *Heap) {
	withCritical(k, func() bool {
		h.alternate = other
		return true
	})
}

// allocLocked performs the first-fit search and split. Caller holds
// k.lock.
func (h *Heap) allocLocked(size int) ([]byte, bool) {
	need := roundUp(blockHeaderSize+size, heapAlign)

	var prev *heapNode
	node := h.freeHead
	for node != nil {
		if node.size >= need {
			off := offsetOf(h.arena, unsafe.Pointer(node))
			remaining := node.size - need

			if remaining >= heapNodeSize {
				// Split: shrink this free node in place, hand out the tail.
				node.size = remaining
				allocOff := off + remaining
				hdr := headerAt(h.arena, allocOff)
				hdr.owner = h
				hdr.size = need
				hdr.magic = heapMagic
				start := allocOff + blockHeaderSize
				return h.arena[start : start+size : allocOff+need], true
			}

			// Exact-ish fit: consume the whole node.
			if prev == nil {
				h.freeHead = node.next
			} else {
				prev.next = node.next
			}
			hdr := headerAt(h.arena, off)
			hdr.owner = h
			hdr.size = node.size
			hdr.magic = heapMagic
			start := off + blockHeaderSize
			end := off + node.size
			return h.arena[start : start+size : end], true
		}
		prev = node
		node = node.next
	}
	return nil, false
}

// Free returns a block previously returned by Alloc to its owning heap.
// The owner is recovered from the block header written immediately
// before the slice, so the caller does not need to know which heap the
// block came from.
func (k *Kernel) Free(block []byte) error {
	if len(block) == 0 {
		return nil
	}
	hdrPtr := unsafe.Pointer(uintptr(unsafe.Pointer(&block[0])) - uintptr(blockHeaderSize))
	hdr := (*blockHeader)(hdrPtr)

	_, span := k.tracer.StartSpan(context.Background(), SpanHeapFree)
	defer span.Finish()

	return withCritical(k, func() error {
		if k.insideInterruptAny() {
			k.assertFail("heap", "Free called from interrupt context")
		}
		if hdr.magic != heapMagic || hdr.owner == nil {
			k.assertFail("heap", "Free called on corrupt or already-freed block")
		}
		h := hdr.owner
		off := offsetOf(h.arena, hdrPtr)
		hdr.magic = 0
		hdr.owner = nil
		h.freeLocked(off, hdr.size)
		k.metrics.Gauge(MetricHeapFreeBytes).Set(float64(h.freeBytesLocked()))
		k.metrics.Gauge(MetricHeapLargestRun).Set(float64(h.largestRunLocked()))
		span.SetTag(TagHeapID, itoa(int(h.id)))
		return nil
	})
}

// freeLocked splices the block at [off, off+size) back into the
// address-sorted free list, coalescing with an immediately-adjacent
// predecessor and/or successor. Caller holds k.lock.
func (h *Heap) freeLocked(off, size int) {
	var prev *heapNode
	node := h.freeHead
	for node != nil && offsetOf(h.arena, unsafe.Pointer(node)) < off {
		prev = node
		node = node.next
	}

	freed := nodeAt(h.arena, off)
	freed.size = size
	freed.next = node

	if prev == nil {
		h.freeHead = freed
	} else {
		prev.next = freed
	}

	// Coalesce with successor.
	if node != nil {
		nodeOff := offsetOf(h.arena, unsafe.Pointer(node))
		if off+freed.size == nodeOff {
			freed.size += node.size
			freed.next = node.next
		}
	}
	// Coalesce with predecessor.
	if prev != nil {
		prevOff := offsetOf(h.arena, unsafe.Pointer(prev))
		if prevOff+prev.size == off {
			prev.size += freed.size
			prev.next = freed.next
		}
	}
}

// freeBytesLocked sums the free list. Caller holds k.lock.
func (h *Heap) freeBytesLocked() int {
	total := 0
	for n := h.freeHead; n != nil; n = n.next {
		total += n.size
	}
	return total
}

// largestRunLocked returns the largest single free block, the upper
// bound on what the next Alloc can satisfy without an alternate heap.
// Caller holds k.lock.
func (h *Heap) largestRunLocked() int {
	largest := 0
	for n := h.freeHead; n != nil; n = n.next {
		if n.size > largest {
			largest = n.size
		}
	}
	return largest
}

// WithHeap runs fn with the calling thread's heap binding temporarily
// switched to id, restoring the previous binding afterward even if fn
// panics. This is how a thread makes one allocation from a non-default
// heap (e.g. the small-object heap) without every AllocFor call
// needing an explicit HeapID.
func (k *Kernel) WithHeap(t *Thread, id HeapID, fn func()) {
	prev := t.heapBinding
	t.heapBinding = id
	defer func() { t.heapBinding = prev }()
	fn()
}

func itoa(n int) string { return strconv.Itoa(n) }
