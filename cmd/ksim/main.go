// Command ksim is a command-line simulator for the rtos kernel: it
// boots a Kernel with simulated hardware interrupts driving the tick
// line and runs named scenarios against it, printing metrics and
// pass/fail results the way a board-support-package smoke test would
// against real silicon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	rootCmd = &cobra.Command{
		Use:     "ksim",
		Short:   "Simulator and scenario runner for the rtos kernel",
		Long:    `ksim boots an rtos.Kernel on simulated hardware interrupts and runs scenario workloads against it, the way a board-support-package smoke test exercises real silicon before first boot.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available scenarios",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("Available scenarios:")
		for _, s := range allScenarios {
			fmt.Printf("  %-18s %s\n", s.name, s.desc)
		}
	},
}
