// Package fetch implements the two-stage fetch front end: Fetch1 predicts
// the next-fetch PC and issues the instruction-cache access; Fetch2
// drains the cache hierarchy's response, decodes, and assembles a bundle
// of payload entries for dispatch. Fetch does not detect misfetches: a
// predicted-taken branch with no BTB or trace-cache target continues
// sequentially, a stale target is followed as given, and in both cases
// the pipeline recovers when the branch retires with a different next PC.
package fetch

import (
	"github.com/sarchlab/cprsim/emu"
	"github.com/sarchlab/cprsim/insts"
	"github.com/sarchlab/cprsim/timing/btb"
	"github.com/sarchlab/cprsim/timing/cache"
	"github.com/sarchlab/cprsim/timing/gshare"
	"github.com/sarchlab/cprsim/timing/ras"
	"github.com/sarchlab/cprsim/timing/tracecache"
)

// Bundle is one cycle's worth of fetched, decoded instructions.
type Bundle struct {
	PCs   []uint64
	Insts []insts.Instruction

	// Predicted next-fetch PC for the cycle after this bundle, and
	// whether fetch must stall this cycle waiting on an outstanding
	// instruction-cache miss.
	NextPC  uint64
	Stalled bool

	// Per-bundle predictor snapshot, for the branch queue entry of any
	// branch in this bundle.
	CondBHR  uint64
	IndirBHR uint64
	RASTOS   uint64
}

// Unit is the fetch front end.
type Unit struct {
	decoder *insts.Decoder
	hier    *cache.Hierarchy
	Cond    *gshare.Predictor
	Indir   *gshare.Predictor
	RAS     *ras.Stack
	BTB     *btb.BTB
	Trace   *tracecache.Cache

	pc      uint64
	pending bool
	pendingResolve uint64
	width   int
}

// Config bundles the fetch-width and predictor-structure choices.
type Config struct {
	Width          int
	CondPCBits     uint64
	CondBHRBits    uint64
	IndirPCBits    uint64
	IndirBHRBits   uint64
	RASEntries     uint64
	BTBEntries     int
	BTBBanks       int
	BTBAssoc       int
	TraceMode      tracecache.Mode
	TraceSets      int
	TraceWays      int
}

// New creates a Unit wired to the given cache hierarchy and starting PC.
func New(cfg Config, hier *cache.Hierarchy, startPC uint64) *Unit {
	return &Unit{
		decoder: insts.NewDecoder(),
		hier:    hier,
		Cond:    gshare.New(cfg.CondPCBits, cfg.CondBHRBits),
		Indir:   gshare.New(cfg.IndirPCBits, cfg.IndirBHRBits),
		RAS:     ras.New(cfg.RASEntries),
		BTB:     btb.New(cfg.BTBEntries, cfg.BTBBanks, cfg.BTBAssoc),
		Trace:   tracecache.New(cfg.TraceMode, cfg.TraceSets, cfg.TraceWays),
		pc:      startPC,
		width:   cfg.Width,
	}
}

// PC returns the current fetch PC.
func (u *Unit) PC() uint64 { return u.pc }

// SetPC redirects fetch, e.g. on a misprediction recovery.
func (u *Unit) SetPC(pc uint64) {
	u.pc = pc
	u.pending = false
}

// Fetch1 issues the instruction-cache access for the current fetch PC.
// Next-PC prediction happens in Fetch2.
func (u *Unit) Fetch1(cycle uint64) (resolveCycle uint64, hit bool) {
	hit, resolve := u.hier.AccessI(cycle, u.pc, 4*u.width)
	if !hit {
		u.pending = true
		u.pendingResolve = resolve
	}
	return resolve, hit
}

// Fetch2 drains a completed fetch access, decodes up to Width
// instructions, and predicts the PC for the following cycle. mem
// supplies the raw instruction words (the cache hierarchy only times the
// access; fetched bytes still come from the functional memory model).
func (u *Unit) Fetch2(cycle uint64, mem *emu.Memory) Bundle {
	if u.pending && cycle < u.pendingResolve {
		return Bundle{Stalled: true}
	}
	u.pending = false

	bundle := Bundle{
		CondBHR:  u.Cond.BHR(),
		IndirBHR: u.Indir.BHR(),
		RASTOS:   u.RAS.TOS(),
	}

	startPC := u.pc
	pc := u.pc
	for i := 0; i < u.width; i++ {
		word := mem.Read32(pc)
		inst := u.decoder.Decode(word)
		bundle.PCs = append(bundle.PCs, pc)
		bundle.Insts = append(bundle.Insts, *inst)

		if inst.IsBranch() {
			next, stop := u.predictBranch(pc, inst)
			pc = next
			if stop {
				break
			}
			continue
		}
		pc += 4
	}

	bundle.NextPC = pc
	u.pc = pc
	u.Trace.Train(startPC, pc)
	return bundle
}

// predictBranch advances pc past a branch using the predictor stack,
// returning the predicted next-fetch PC and whether fetch should stop
// extending the bundle past this branch (any taken branch ends the
// bundle, since the rest of the fetch-width budget would be wasted
// fetching down the not-taken path).
func (u *Unit) predictBranch(pc uint64, inst *insts.Instruction) (next uint64, stop bool) {
	kind := inst.Kind()

	switch {
	case kind.IsConditional():
		taken := u.Cond.Predict(pc)
		u.Cond.UpdateBHR(taken)
		if !taken {
			return pc + 4, false
		}
		if e, ok := u.BTB.Lookup(pc); ok {
			return e.Target, true
		}
		if next, ok := u.Trace.Lookup(pc); ok {
			return next, true
		}
		// Misfetch: predicted taken but neither the BTB nor the trace
		// cache has a target yet. Fetch continues sequentially; recovery
		// happens when the branch retires.
		return pc + 4, true

	case kind == insts.BranchDirect, kind == insts.BranchCallDirect:
		target := pc + uint64(inst.BranchOffset)
		if kind.IsCall() {
			u.RAS.Push(pc + 4)
		}
		u.BTB.Update(pc, kind, target)
		return target, true

	case kind == insts.BranchReturn:
		target := u.RAS.Pop()
		return target, true

	case kind.IsIndirect(): // BR/BLR
		if kind.IsCall() {
			u.RAS.Push(pc + 4)
		}
		predicted := u.Indir.Predict(pc)
		u.Indir.UpdateBHR(predicted)
		if e, ok := u.BTB.Lookup(pc); ok && e.Kind == kind {
			return e.Target, true
		}
		if next, ok := u.Trace.Lookup(pc); ok {
			return next, true
		}
		return pc + 4, true

	default:
		return pc + 4, false
	}
}
