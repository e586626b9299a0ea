package main

import (
	"fmt"

	"github.com/sarchlab/cprsim/insts"
	"github.com/sarchlab/cprsim/timing/stats"
)

var branchKindNames = [...]string{
	insts.BranchNone:         "none",
	insts.BranchCond:         "conditional",
	insts.BranchDirect:       "direct",
	insts.BranchCallDirect:   "call-direct",
	insts.BranchIndirect:     "indirect",
	insts.BranchCallIndirect: "call-indirect",
	insts.BranchReturn:       "return",
}

var fuKindNames = [...]string{
	stats.FUBranch:      "branch",
	stats.FULoadStore:   "load/store",
	stats.FUIntSimple:   "int-simple",
	stats.FUIntComplex:  "int-complex",
	stats.FUFPLoadStore: "fp-load/store",
	stats.FUFPArith:     "fp-arith",
	stats.FUMoveToFP:    "move-to-fp",
}

// printTimingReport prints a cycle/CPI breakdown plus stall and flush
// counts, per-functional-unit dispatch counts, and per-branch-kind
// mispredict counts for one run.
func printTimingReport(path string, exitCode int64, s *stats.Stats) {
	cycles := s.Cycles
	if cycles == 0 {
		cycles = 1
	}
	cpi := float64(s.Cycles) / float64(maxUint64(s.Instructions, 1))

	fmt.Printf("\n")
	fmt.Printf("Program:     %s\n", path)
	fmt.Printf("Exit code:   %d\n", exitCode)
	fmt.Printf("Instructions: %d\n", s.Instructions)
	fmt.Printf("Cycles:      %d\n", s.Cycles)
	fmt.Printf("CPI:         %.3f\n", cpi)
	fmt.Printf("Stalls:      %d (%.1f%%)\n", s.Stalls, 100*float64(s.Stalls)/float64(cycles))
	fmt.Printf("Flushes:     %d\n", s.Flushes)

	fmt.Printf("\nDispatches by functional unit:\n")
	for kind, name := range fuKindNames {
		if n := s.FUDispatches[kind]; n > 0 {
			fmt.Printf("  %-14s %d\n", name, n)
		}
	}

	fmt.Printf("\nMispredicts by branch kind:\n")
	any := false
	for kind, name := range branchKindNames {
		if kind >= len(s.Mispredicts) {
			continue
		}
		if n := s.Mispredicts[kind]; n > 0 {
			fmt.Printf("  %-14s %d\n", name, n)
			any = true
		}
	}
	if !any {
		fmt.Printf("  (none)\n")
	}
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
