// Package core provides the cycle-accurate, speculative out-of-order CPU
// core model: a checkpoint-renaming, multi-lane Pipeline (pipeline.go)
// wrapped in a small Core facade the rest of the tree (cmd/cprsim,
// config-driven batch runs) constructs against.
package core

import (
	"github.com/sarchlab/cprsim/config"
	"github.com/sarchlab/cprsim/emu"
	"github.com/sarchlab/cprsim/timing/stats"
)

// Stats mirrors timing/stats.Stats' scalar counters for callers that
// don't need the per-PC histogram or per-functional-unit breakdown.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Flushes      uint64
}

// Core is a single out-of-order CPU core: a Pipeline sharing the given
// register file and memory with its caller, the architectural state the
// pipeline's retire stage commits into.
type Core struct {
	Pipeline *Pipeline

	regFile *emu.RegFile
	memory  *emu.Memory
}

// NewCore creates a Core with the built-in default configuration.
func NewCore(regFile *emu.RegFile, memory *emu.Memory) *Core {
	return NewCoreWithConfig(config.Default(), regFile, memory)
}

// NewCoreWithConfig creates a Core sized by cfg, for a caller (cmd/cprsim,
// a batch sweep) that loaded a non-default configuration.
func NewCoreWithConfig(cfg *config.Config, regFile *emu.RegFile, memory *emu.Memory) *Core {
	return &Core{
		Pipeline: NewPipeline(cfg, regFile, memory),
		regFile:  regFile,
		memory:   memory,
	}
}

// SetPC sets the program counter.
func (c *Core) SetPC(pc uint64) {
	c.Pipeline.SetPC(pc)
}

// Tick executes one pipeline cycle.
func (c *Core) Tick() {
	c.Pipeline.Tick()
}

// Halted returns true if the core has halted (e.g., due to exit syscall).
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.Pipeline.ExitCode()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := c.Pipeline.Stats()
	return Stats{
		Cycles:       s.Cycles,
		Instructions: s.Instructions,
		Stalls:       s.Stalls,
		Flushes:      s.Flushes,
	}
}

// FullStats returns the complete run statistics, including the retired-PC
// histogram, per-functional-unit dispatch counts and per-branch-kind
// mispredict counts.
func (c *Core) FullStats() *stats.Stats {
	return c.Pipeline.Stats()
}

// Run executes the core until it halts.
// Returns the exit code.
func (c *Core) Run() int64 {
	return c.Pipeline.Run()
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	return c.Pipeline.RunCycles(cycles)
}

// Reset clears all core state.
func (c *Core) Reset() {
	c.Pipeline.Reset()
}
