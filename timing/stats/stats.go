// Package stats accumulates the per-run counters the core reports
// alongside a simulation's exit code: cycle/instruction counts, a
// retired-PC histogram, per-functional-unit-type dispatch counts,
// front-end stall cycles, and a misprediction tally split by branch
// kind, so a caller can tell a conditional-branch-heavy mispredict rate
// apart from an indirect-call one.
package stats

import "github.com/sarchlab/cprsim/insts"

// Stats is a mutable accumulator; the core owns one instance per run and
// calls its record methods from the pipeline stages as instructions
// move through them.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Flushes      uint64

	// PCHistogram counts how many times each retired PC appeared, for
	// finding hot loops in a trace.
	PCHistogram map[uint64]uint64

	// FUDispatches counts how many instructions dispatched to each
	// functional-unit type.
	FUDispatches [numFUKinds]uint64

	// Mispredicts counts retire-time recovery by branch kind.
	Mispredicts [numBranchKinds]uint64
}

// FUKind mirrors lanes.FUType without importing it, so this package has
// no dependency on the execution-lanes model.
type FUKind int

const (
	FUBranch FUKind = iota
	FULoadStore
	FUIntSimple
	FUIntComplex
	FUFPLoadStore
	FUFPArith
	FUMoveToFP
	numFUKinds
)

const numBranchKinds = int(insts.BranchReturn) + 1

// New creates an empty Stats.
func New() *Stats {
	return &Stats{PCHistogram: make(map[uint64]uint64)}
}

// Reset clears every counter back to zero, for Core.Reset.
func (s *Stats) Reset() {
	*s = Stats{PCHistogram: make(map[uint64]uint64)}
}

// Tick records one simulated cycle.
func (s *Stats) Tick() { s.Cycles++ }

// Stall records one cycle where the front end or rename stage could not
// make forward progress.
func (s *Stats) Stall() { s.Stalls++ }

// Flush records one squash (full or selective).
func (s *Stats) Flush() { s.Flushes++ }

// Retire records one committed instruction's PC.
func (s *Stats) Retire(pc uint64) {
	s.Instructions++
	s.PCHistogram[pc]++
}

// Dispatch records one instruction steered to fu.
func (s *Stats) Dispatch(fu FUKind) {
	if fu >= 0 && int(fu) < len(s.FUDispatches) {
		s.FUDispatches[fu]++
	}
}

// Mispredict records a retire-time recovery for a branch of kind k.
func (s *Stats) Mispredict(k insts.BranchKind) {
	if int(k) < len(s.Mispredicts) {
		s.Mispredicts[k]++
	}
}
