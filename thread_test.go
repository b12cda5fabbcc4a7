package rtos

import (
	"testing"
	"time"
)

func TestThreadCreateRunsAndExits(t *testing.T) {
	k := newRunningKernel(t, Config{})
	th, err := k.ThreadCreate("once", 100, func(_ *Thread, _ any) {}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread never exited")
	}
	if th.ReturnCode() != 0 {
		t.Errorf("ReturnCode() = %d, want 0", th.ReturnCode())
	}
}

func TestThreadExitWithCode(t *testing.T) {
	k := newRunningKernel(t, Config{})
	th, err := k.ThreadCreate("exiter", 100, func(self *Thread, _ any) {
		self.Exit(7)
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread never exited")
	}
	if th.ReturnCode() != 7 {
		t.Errorf("ReturnCode() = %d, want 7", th.ReturnCode())
	}
}

func TestThreadCreateRejectsUndersizedStack(t *testing.T) {
	k := newRunningKernel(t, Config{})
	if _, err := k.ThreadCreate("too-small", 100, func(_ *Thread, _ any) {}, nil, StackMinimum-1); err == nil {
		t.Error("expected an error for a stack smaller than StackMinimum")
	}
}

func TestHigherPriorityThreadPreemptsLower(t *testing.T) {
	k := newRunningKernel(t, Config{})
	var rec orderRecorder
	lowStarted := make(chan struct{})
	releaseSem, err := k.SemaphoreCreate("release", 0)
	if err != nil {
		t.Fatalf("SemaphoreCreate: %v", err)
	}

	_, err = k.ThreadCreate("low", 10, func(self *Thread, _ any) {
		rec.record("low-start")
		close(lowStarted)
		_ = k.SemaphorePend(self, releaseSem, WaitForever)
		rec.record("low-resume")
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate low: %v", err)
	}

	select {
	case <-lowStarted:
	case <-time.After(time.Second):
		t.Fatal("low thread never started")
	}

	highDone := make(chan struct{})
	_, err = k.ThreadCreate("high", 200, func(_ *Thread, _ any) {
		rec.record("high-ran")
		close(highDone)
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate high: %v", err)
	}

	select {
	case <-highDone:
	case <-time.After(time.Second):
		t.Fatal("high-priority thread never ran")
	}

	if err := k.SemaphorePost(nil, releaseSem); err != nil {
		t.Fatalf("SemaphorePost: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 3 || got[0] != "low-start" || got[1] != "high-ran" || got[2] != "low-resume" {
		t.Errorf("order = %v, want [low-start high-ran low-resume]", got)
	}
}

func TestPrioritySetUpdatesPriority(t *testing.T) {
	k := newRunningKernel(t, Config{})
	th, err := k.ThreadCreate("adjustable", 50, func(_ *Thread, _ any) {}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	select {
	case <-th.Done():
	case <-time.After(time.Second):
	}
	th2, err := k.ThreadCreate("blocker", 1, func(self *Thread, _ any) {
		sem, _ := k.SemaphoreCreate("never-posted", 0)
		_ = k.SemaphorePend(self, sem, WaitForever)
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	th2.PrioritySet(250)
	if got := th2.PriorityGet(); got != 250 {
		t.Errorf("PriorityGet() = %d, want 250", got)
	}
}

func TestPostYieldsOnlyToHigherPriorityWaiter(t *testing.T) {
	k := newRunningKernel(t, Config{})
	var rec orderRecorder
	sem, err := k.SemaphoreCreate("yield-check", 0)
	if err != nil {
		t.Fatalf("SemaphoreCreate: %v", err)
	}

	_, err = k.ThreadCreate("waiter-low", 50, func(self *Thread, _ any) {
		_ = k.SemaphorePend(self, sem, WaitForever)
		rec.record("low-woke")
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate waiter-low: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	posterDone := make(chan struct{})
	_, err = k.ThreadCreate("poster", 150, func(self *Thread, _ any) {
		_ = k.SemaphorePost(self, sem)
		// The woken waiter is lower priority, so the post must not have
		// yielded: this record lands before the waiter runs.
		rec.record("poster-continued")
		close(posterDone)
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate poster: %v", err)
	}

	select {
	case <-posterDone:
	case <-time.After(time.Second):
		t.Fatal("poster never continued past its Post call")
	}
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 2 })

	got := rec.snapshot()
	if got[0] != "poster-continued" || got[1] != "low-woke" {
		t.Errorf("order = %v, want [poster-continued low-woke]", got)
	}
}

func TestSetCPUAffinityPinsThread(t *testing.T) {
	k := newRunningKernel(t, Config{})
	ran := make(chan int, 1)
	th, err := k.ThreadCreate("pinned", 100, func(self *Thread, _ any) {
		ran <- self.cpu
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	th.SetCPUAffinity(0)
	select {
	case cpu := <-ran:
		if cpu != 0 {
			t.Errorf("pinned thread ran on cpu %d, want 0", cpu)
		}
	case <-time.After(time.Second):
		t.Fatal("pinned thread never ran")
	}
	th.SetCPUAffinity(CPUAny)
}

func TestThreadInfoSlots(t *testing.T) {
	k := newRunningKernel(t, Config{})
	th, err := k.ThreadCreate("info", 100, func(_ *Thread, _ any) {}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}
	th.InfoSet(0, "hello")
	if got := th.InfoGet(0); got != "hello" {
		t.Errorf("InfoGet(0) = %v, want %q", got, "hello")
	}
	if got := th.InfoGet(InfoSlots + 1); got != nil {
		t.Errorf("InfoGet out of range = %v, want nil", got)
	}
}

func TestThreadSleepBlocksForTicks(t *testing.T) {
	k := newTestKernel(t, Config{})
	done := make(chan error, 1)
	go func() { done <- k.Start() }()
	t.Cleanup(func() { k.Stop(); <-done })

	woke := make(chan struct{})
	th, err := k.ThreadCreate("sleeper", 100, func(self *Thread, _ any) {
		self.Sleep(5)
		close(woke)
	}, nil, 0)
	if err != nil {
		t.Fatalf("ThreadCreate: %v", err)
	}

	select {
	case <-woke:
		t.Fatal("sleeper woke before any ticks were delivered")
	case <-time.After(20 * time.Millisecond):
	}

	for i := 0; i < 10; i++ {
		k.Tick()
	}

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke after ticks were delivered")
	}
	_ = th
}
