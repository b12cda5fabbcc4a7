package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/plasmakit/rtos"
)

// scenario is one self-contained exercise of the kernel, run against a
// freshly booted instance and reporting a pass/fail verdict — the
// command-line equivalent of the test suite's scenario tests, useful
// for poking at the kernel interactively without `go test`.
type scenario struct {
	name string
	desc string
	run  func(k *rtos.Kernel) error
}

var allScenarios = []scenario{
	{"preempt", "a higher-priority thread created while a lower one runs preempts it", scenarioPreempt},
	{"sem-timeout", "a semaphore Pend with nobody to post it returns ErrTimeout", scenarioSemTimeout},
	{"mutex-recursive", "a thread may Pend a mutex it already owns without blocking", scenarioMutexRecursive},
	{"queue-bounded", "a full message queue rejects Send with ErrFull and drains in order", scenarioQueueBounded},
	{"timer-periodic", "a periodic timer fires once per restart interval", scenarioTimerPeriodic},
	{"heap-coalesce", "freeing two adjacent blocks lets a larger allocation succeed", scenarioHeapCoalesce},
}

func bootKernel(cpus int) (*rtos.Kernel, func(), error) {
	k := rtos.NewKernel(rtos.Config{CPUCount: cpus, SimulateInterrupts: true, TickInterval: 1})
	if err := k.Init(); err != nil {
		return nil, nil, err
	}
	done := make(chan error, 1)
	go func() { done <- k.Start() }()
	stop := func() {
		k.Stop()
		<-done
		_ = k.Close()
	}
	return k, stop, nil
}

func scenarioPreempt(k *rtos.Kernel) error {
	var mu sync.Mutex
	var order []string

	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	started := make(chan struct{})
	low, err := k.ThreadCreate("low", 10, func(self *rtos.Thread, _ any) {
		record("low-start")
		close(started)
		self.Sleep(5)
		record("low-resume")
	}, nil, 0)
	if err != nil {
		return err
	}

	<-started
	high, err := k.ThreadCreate("high", 200, func(_ *rtos.Thread, _ any) {
		record("high-ran")
	}, nil, 0)
	if err != nil {
		return err
	}

	select {
	case <-high.Done():
	case <-time.After(time.Second):
		return fmt.Errorf("high-priority thread never ran")
	}
	select {
	case <-low.Done():
	case <-time.After(2 * time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		fmt.Printf("  [%d] %s\n", i, n)
	}
	if len(order) < 2 || order[len(order)-1] != "low-resume" {
		return fmt.Errorf("unexpected ordering: %v", order)
	}
	return nil
}

func scenarioSemTimeout(k *rtos.Kernel) error {
	sem, err := k.SemaphoreCreate("ksim.nobody-posts", 0)
	if err != nil {
		return err
	}
	resultCh := make(chan error, 1)
	_, err = k.ThreadCreate("waiter", 100, func(self *rtos.Thread, _ any) {
		resultCh <- k.SemaphorePend(self, sem, 3)
	}, nil, 0)
	if err != nil {
		return err
	}
	select {
	case gotErr := <-resultCh:
		fmt.Printf("  Pend returned: %v\n", gotErr)
		if gotErr == nil {
			return fmt.Errorf("expected a timeout error, got nil")
		}
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("waiter never returned")
	}
}

func scenarioMutexRecursive(k *rtos.Kernel) error {
	m, err := k.MutexCreate("ksim.recursive")
	if err != nil {
		return err
	}
	doneCh := make(chan error, 1)
	_, err = k.ThreadCreate("owner", 100, func(self *rtos.Thread, _ any) {
		if err := k.MutexPend(self, m, rtos.WaitForever); err != nil {
			doneCh <- err
			return
		}
		if err := k.MutexPend(self, m, rtos.WaitForever); err != nil {
			doneCh <- err
			return
		}
		if err := k.MutexPost(self, m); err != nil {
			doneCh <- err
			return
		}
		doneCh <- k.MutexPost(self, m)
	}, nil, 0)
	if err != nil {
		return err
	}
	select {
	case err := <-doneCh:
		return err
	case <-time.After(time.Second):
		return fmt.Errorf("owner thread deadlocked re-acquiring its own mutex")
	}
}

func scenarioQueueBounded(k *rtos.Kernel) error {
	q, err := k.MQueueCreate("ksim.bounded", 2, 1)
	if err != nil {
		return err
	}
	if err := k.MQueueSend(nil, q, []uint32{1}); err != nil {
		return err
	}
	if err := k.MQueueSend(nil, q, []uint32{2}); err != nil {
		return err
	}
	if err := k.MQueueSend(nil, q, []uint32{3}); err == nil {
		return fmt.Errorf("expected ErrFull sending to a full queue")
	}
	buf := make([]uint32, 1)
	doneCh := make(chan error, 1)
	_, err = k.ThreadCreate("drain", 100, func(self *rtos.Thread, _ any) {
		for i := 0; i < 2; i++ {
			n, err := k.MQueueGet(self, q, rtos.WaitForever, buf)
			if err != nil {
				doneCh <- err
				return
			}
			fmt.Printf("  got %d word(s): %v\n", n, buf[:n])
		}
		doneCh <- nil
	}, nil, 0)
	if err != nil {
		return err
	}
	select {
	case err := <-doneCh:
		return err
	case <-time.After(time.Second):
		return fmt.Errorf("drain thread never finished")
	}
}

func scenarioTimerPeriodic(k *rtos.Kernel) error {
	var fires int32Counter
	tm, err := k.TimerCreate("ksim.periodic", 2, func(_ *rtos.Timer, _ uint32) {
		fires.add(1)
	})
	if err != nil {
		return err
	}
	if err := k.TimerStart(tm, 2); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	_ = k.TimerStop(tm)
	got := fires.get()
	fmt.Printf("  timer fired %d times in 20ms\n", got)
	if got < 2 {
		return fmt.Errorf("expected at least 2 fires, got %d", got)
	}
	return nil
}

func scenarioHeapCoalesce(k *rtos.Kernel) error {
	h, err := k.HeapCreate("ksim.scratch", 4096)
	if err != nil {
		return err
	}
	if err := k.Register(rtos.HeapUI, h); err != nil {
		return err
	}
	a, err := k.Alloc(rtos.HeapUI, 512)
	if err != nil {
		return err
	}
	b, err := k.Alloc(rtos.HeapUI, 512)
	if err != nil {
		return err
	}
	if err := k.Free(a); err != nil {
		return err
	}
	if err := k.Free(b); err != nil {
		return err
	}
	big, err := k.Alloc(rtos.HeapUI, 1000)
	if err != nil {
		return fmt.Errorf("coalesced allocation failed: %w", err)
	}
	fmt.Printf("  allocated %d bytes after coalescing two 512-byte frees\n", len(big))
	return k.Free(big)
}

// int32Counter is a tiny goroutine-safe counter for scenario callbacks
// invoked from the timer thread concurrently with the scenario's own
// polling loop.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) add(d int) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
