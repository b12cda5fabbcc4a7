package rtos

import (
	"errors"
	"testing"
)

func TestHeapAllocReturnsRequestedLength(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("scratch", 4096)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	block, err := k.Alloc(HeapUI, 100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(block) != 100 {
		t.Errorf("len(block) = %d, want 100", len(block))
	}
}

func TestHeapAllocFailsWhenExhausted(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("tiny", 128)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := k.Alloc(HeapUI, 4096); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestHeapFreeAndReallocReusesSpace(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("reuse", 2048)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := k.Alloc(HeapUI, 256)
	if err != nil {
		t.Fatalf("Alloc a: %v", err)
	}
	if err := k.Free(a); err != nil {
		t.Fatalf("Free a: %v", err)
	}
	b, err := k.Alloc(HeapUI, 256)
	if err != nil {
		t.Fatalf("Alloc b after free: %v", err)
	}
	if len(b) != 256 {
		t.Errorf("len(b) = %d, want 256", len(b))
	}
}

func TestHeapCoalescesAdjacentFreedBlocks(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("coalesce", 2048)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := k.Alloc(HeapUI, 512)
	if err != nil {
		t.Fatalf("Alloc a: %v", err)
	}
	b, err := k.Alloc(HeapUI, 512)
	if err != nil {
		t.Fatalf("Alloc b: %v", err)
	}
	if err := k.Free(a); err != nil {
		t.Fatalf("Free a: %v", err)
	}
	if err := k.Free(b); err != nil {
		t.Fatalf("Free b: %v", err)
	}
	if _, err := k.Alloc(HeapUI, 1000); err != nil {
		t.Errorf("expected the two freed 512-byte blocks to coalesce into a run big enough for 1000 bytes: %v", err)
	}
}

func TestHeapFreeOfCorruptBlockAsserts(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("corrupt", 512)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	block, err := k.Alloc(HeapUI, 64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := k.Free(block); err != nil {
		t.Fatalf("first Free: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a double-free to panic via assertFail")
		}
	}()
	_ = k.Free(block)
}

func TestWithHeapSwitchesBinding(t *testing.T) {
	k := newTestKernel(t, Config{})
	h, err := k.HeapCreate("alt", 2048)
	if err != nil {
		t.Fatalf("HeapCreate: %v", err)
	}
	if err := k.Register(HeapUI, h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	th, err := k.ThreadCreate("binder", 100, func(self *Thread, _ any) {}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	before := th.heapBinding
	k.WithHeap(th, HeapUI, func() {
		if th.heapBinding != HeapUI {
			t.Errorf("heapBinding inside WithHeap = %v, want HeapUI", th.heapBinding)
		}
		if _, err := k.AllocFor(th, 64); err != nil {
			t.Errorf("AllocFor inside WithHeap: %v", err)
		}
	})
	if th.heapBinding != before {
		t.Errorf("heapBinding after WithHeap = %v, want restored to %v", th.heapBinding, before)
	}
}

func TestHeapAlternateSatisfiesExhaustedAlloc(t *testing.T) {
	k := newTestKernel(t, Config{})
	small, err := k.HeapCreate("small", 256)
	if err != nil {
		t.Fatalf("HeapCreate small: %v", err)
	}
	big, err := k.HeapCreate("big", 8192)
	if err != nil {
		t.Fatalf("HeapCreate big: %v", err)
	}
	if err := k.Register(HeapSmall, small); err != nil {
		t.Fatalf("Register small: %v", err)
	}
	if err := k.Register(HeapUI, big); err != nil {
		t.Fatalf("Register big: %v", err)
	}

	if _, err := k.Alloc(HeapSmall, 1024); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted before an alternate is set, got %v", err)
	}

	k.HeapAlternate(small, big)
	block, err := k.Alloc(HeapSmall, 1024)
	if err != nil {
		t.Fatalf("Alloc with alternate set: %v", err)
	}
	if len(block) != 1024 {
		t.Errorf("len(block) = %d, want 1024", len(block))
	}
	if err := k.Free(block); err != nil {
		t.Errorf("Free of alternate-heap block: %v", err)
	}

	k.HeapAlternate(small, nil)
	if _, err := k.Alloc(HeapSmall, 1024); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted after clearing the alternate, got %v", err)
	}
}
