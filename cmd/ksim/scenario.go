package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario [name]",
	Short: "Run one or all scenarios against a freshly booted kernel",
	Long:  `Boots a fresh kernel, runs the named scenario (or every scenario, if none is given) against it, and reports pass/fail.`,
	RunE:  runScenario,
}

func runScenario(_ *cobra.Command, args []string) error {
	targets := allScenarios
	if len(args) > 0 {
		targets = nil
		for _, s := range allScenarios {
			if s.name == args[0] {
				targets = append(targets, s)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("unknown scenario %q (see ksim list)", args[0])
		}
	}

	failures := 0
	for _, s := range targets {
		fmt.Printf("=== %s: %s\n", s.name, s.desc)
		k, stop, err := bootKernel(1)
		if err != nil {
			fmt.Printf("--- FAIL %s: boot: %v\n", s.name, err)
			failures++
			continue
		}
		runErr := s.run(k)
		stop()
		if runErr != nil {
			fmt.Printf("--- FAIL %s: %v\n", s.name, runErr)
			failures++
			continue
		}
		fmt.Printf("--- PASS %s\n", s.name)
	}

	if failures > 0 {
		return fmt.Errorf("%d scenario(s) failed", failures)
	}
	return nil
}
