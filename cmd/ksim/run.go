package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plasmakit/rtos"
)

var (
	runCPUs     int
	runDuration string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Boot a kernel under simulated interrupts and report metrics",
		Long:  `Boots an rtos.Kernel with SimulateInterrupts on, lets it idle for the given duration, then reports its metrics snapshot and shuts down cleanly.`,
		RunE:  runRun,
	}
)

func init() {
	runCmd.Flags().IntVar(&runCPUs, "cpus", 1, "number of logical CPUs to schedule across")
	runCmd.Flags().StringVar(&runDuration, "duration", "1s", "how long to let the kernel idle before shutting down")
}

func runRun(_ *cobra.Command, _ []string) error {
	d, err := time.ParseDuration(runDuration)
	if err != nil {
		return fmt.Errorf("invalid --duration: %w", err)
	}

	k := rtos.NewKernel(rtos.Config{
		CPUCount:           runCPUs,
		SimulateInterrupts: true,
		TickInterval:       1,
	})
	if err := k.Init(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Close()

	done := make(chan error, 1)
	go func() { done <- k.Start() }()

	fmt.Printf("booted %d CPU(s), idling for %s...\n", runCPUs, d)
	time.Sleep(d)

	k.Stop()
	<-done

	printMetrics(k)
	return nil
}

func printMetrics(k *rtos.Kernel) {
	m := k.Metrics()
	fmt.Println("metrics:")
	fmt.Printf("  %-34s %v\n", rtos.MetricContextSwitches, m.Counter(rtos.MetricContextSwitches).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricThreadsCreated, m.Counter(rtos.MetricThreadsCreated).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricThreadsExited, m.Counter(rtos.MetricThreadsExited).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricSemaphoreTimeouts, m.Counter(rtos.MetricSemaphoreTimeouts).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricMutexContentions, m.Counter(rtos.MetricMutexContentions).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricQueueFullRejects, m.Counter(rtos.MetricQueueFullRejects).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricQueueEmptyRejects, m.Counter(rtos.MetricQueueEmptyRejects).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricTimerFires, m.Counter(rtos.MetricTimerFires).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricISRDispatches, m.Counter(rtos.MetricISRDispatches).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricJobsDispatched, m.Counter(rtos.MetricJobsDispatched).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricHeapAllocFailures, m.Counter(rtos.MetricHeapAllocFailures).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricHeapFreeBytes, m.Gauge(rtos.MetricHeapFreeBytes).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricHeapLargestRun, m.Gauge(rtos.MetricHeapLargestRun).Value())
	fmt.Printf("  %-34s %v\n", rtos.MetricTick, m.Gauge(rtos.MetricTick).Value())
}
