package core

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/cprsim/config"
	"github.com/sarchlab/cprsim/emu"
	"github.com/sarchlab/cprsim/insts"
	"github.com/sarchlab/cprsim/internal/invariant"
	"github.com/sarchlab/cprsim/internal/tracelog"
	"github.com/sarchlab/cprsim/timing/bq"
	"github.com/sarchlab/cprsim/timing/cache"
	"github.com/sarchlab/cprsim/timing/fetch"
	"github.com/sarchlab/cprsim/timing/issuequeue"
	"github.com/sarchlab/cprsim/timing/lanes"
	"github.com/sarchlab/cprsim/timing/latency"
	"github.com/sarchlab/cprsim/timing/lsu"
	"github.com/sarchlab/cprsim/timing/payload"
	"github.com/sarchlab/cprsim/timing/rename"
	"github.com/sarchlab/cprsim/timing/stats"
)

// maxRunCycles bounds Run() against a program that never reaches an exit
// syscall, so a bug in a simulated binary can't hang the host process.
const maxRunCycles = 100_000_000

// fetchLatch holds one cycle's fetched bundle between Fetch2 producing it
// and rename/dispatch draining it, since a stall (a full payload/issue
// queue, or an exhausted checkpoint/physical-register budget) can leave
// part of a bundle undrained for more than one cycle.
type fetchLatch struct {
	valid bool
	bundle fetch.Bundle
	pos    int
}

// Pipeline is the out-of-order execution core: a speculative front end
// (timing/fetch) feeding a checkpoint-renaming back end
// (timing/rename, timing/bq, timing/lsu, timing/issuequeue,
// timing/lanes), retiring in program order against an emu.Emulator
// reference model that supplies the actual computed values and control
// flow outcomes this timing-only model never computes itself.
type Pipeline struct {
	cfg *config.Config
	log zerolog.Logger

	regFile *emu.RegFile
	memory  *emu.Memory
	hier    *cache.Hierarchy

	fetchU  *fetch.Unit
	payload *payload.Buffer
	renamer *rename.Renamer
	bq      *bq.Queue
	lsu     *lsu.Unit
	iq      *issuequeue.Queue
	lanes   *lanes.Lanes
	lat     *latency.Table

	// checker is the reference model retirement delegates value
	// computation and control-flow resolution to. It shares this
	// Pipeline's *emu.Memory directly (emu.Emulator.LoadProgram adopts a
	// *Memory by reference), so a retiring store's effect on memory is
	// the checker's Step writing through that shared pointer; only the
	// register file needs explicit sync, since RegFile has no internal
	// pointers for Step to alias incorrectly.
	checker *emu.Emulator

	stats *stats.Stats

	latch fetchLatch

	fetchWaiting bool

	instrsSinceCheckpoint uint64

	halted   bool
	exitCode int64
}

// NewPipeline builds a Pipeline over the given configuration, sharing
// regFile and memory with the caller (the architectural state retire
// commits into).
func NewPipeline(cfg *config.Config, regFile *emu.RegFile, memory *emu.Memory) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Pipeline{
		cfg:     cfg,
		regFile: regFile,
		memory:  memory,
		log:     tracelog.Discard,
	}
	p.rebuild()
	return p
}

// SetLogger installs a trace sink for retire/squash events.
func (p *Pipeline) SetLogger(log zerolog.Logger) { p.log = log }

func (p *Pipeline) rebuild() {
	pp := p.cfg.Pipeline

	backing := cache.NewMemoryBacking(p.memory)
	p.hier = cache.NewHierarchy(p.cfg.Hierarchy, backing)
	p.fetchU = fetch.New(p.cfg.Fetch, p.hier, p.regFile.PC)
	p.payload = payload.New(pp.PayloadEntries)
	p.renamer = rename.New(32, pp.NumPhysicalRegs, pp.NumCheckpoints)
	p.bq = bq.New(pp.PayloadEntries)
	p.lsu = lsu.New(pp.LQEntries, pp.SQEntries, pp.MDPEntries)
	p.iq = issuequeue.New(pp.IssueQueueEntries, issuequeue.PositionDefault)
	p.lat = latency.NewTableWithConfig(p.cfg.Timing)
	p.lanes = lanes.New(pp.IssueWidth, p.cfg.Lanes)
	p.stats = stats.New()

	p.checker = emu.NewEmulator()
	p.checker.LoadProgram(p.regFile.PC, p.memory)

	p.latch = fetchLatch{}
	p.fetchWaiting = false
	p.instrsSinceCheckpoint = 0
	p.halted = false
	p.exitCode = 0
}

// PC returns the current fetch PC.
func (p *Pipeline) PC() uint64 { return p.fetchU.PC() }

// SetPC redirects the fetch unit, discarding anything latched but not
// yet dispatched.
func (p *Pipeline) SetPC(pc uint64) {
	p.fetchU.SetPC(pc)
	p.regFile.PC = pc
	p.latch = fetchLatch{}
	p.fetchWaiting = false
}

// Halted reports whether the core has retired an exiting syscall.
func (p *Pipeline) Halted() bool { return p.halted }

// ExitCode returns the program's exit code once Halted.
func (p *Pipeline) ExitCode() int64 { return p.exitCode }

// Stats returns the accumulated run statistics.
func (p *Pipeline) Stats() *stats.Stats { return p.stats }

// Reset discards all in-flight state and starts over at the current PC.
func (p *Pipeline) Reset() {
	p.rebuild()
}

// Run ticks until the core halts, returning the exit code (-1 if it
// never does within maxRunCycles).
func (p *Pipeline) Run() int64 {
	for i := uint64(0); i < maxRunCycles; i++ {
		if p.halted {
			return p.exitCode
		}
		p.Tick()
	}
	return -1
}

// RunCycles ticks the core `cycles` times, stopping early if it halts.
// Returns true if the core is still running afterward.
func (p *Pipeline) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles; i++ {
		if p.halted {
			return false
		}
		p.Tick()
	}
	return !p.halted
}

// Tick advances the core by one cycle. Stages are processed in reverse
// pipeline order (retire first, fetch1 last) so that a stage run later
// in program order this cycle observes state an earlier stage already
// updated this same cycle, matching how the reference model's own
// per-cycle update loop is ordered.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}
	p.stats.Tick()
	cycle := p.stats.Cycles
	p.hier.Tick(cycle)

	p.retireStep()
	if p.halted {
		return
	}
	p.writebackStep(cycle)
	p.lanes.Advance()
	p.issueStep(cycle)
	p.renameStep()
	p.fetch2Step(cycle)
	p.fetch1Step(cycle)
}

// writebackStep drains every lane's completed instruction, marking its
// payload entry retirement-eligible and waking dependent issue-queue
// entries.
func (p *Pipeline) writebackStep(cycle uint64) {
	for _, c := range p.lanes.Writeback() {
		e := p.payload.At(c.PayloadIdx)
		e.Completed = true
		if e.HasDest {
			p.renamer.SetReady(e.PhysDest)
			p.iq.Wakeup(e.PhysDest, cycle)
		}
		p.renamer.SetComplete(e.CheckpointID)
	}
}

// issueStep selects ready issue-queue entries and steers them into
// execution lanes. An entry that loses the race for a lane (every
// eligible lane already occupied this cycle) is re-added to the queue,
// already-ready, to retry next cycle.
func (p *Pipeline) issueStep(cycle uint64) {
	for _, e := range p.iq.Select(cycle, p.cfg.Pipeline.IssueWidth) {
		entry := p.payload.At(e.PayloadIdx)
		fu := lanes.Classify(&entry.Inst, p.lat)
		lane := p.lanes.Dispatch(fu, e.PayloadIdx, entry.CheckpointID, -1)
		if lane < 0 {
			p.iq.Add(e.PayloadIdx, e.Src1, e.Src2, true, true)
			continue
		}
		entry.Issued = true
		entry.Executing = true
		p.stats.Dispatch(stats.FUKind(fu))
	}
}

// renameStep drains the fetch latch into the payload buffer, renaming
// each instruction and installing its bookkeeping in the branch queue /
// load-store unit / issue queue, stopping at the first instruction that
// can't make forward progress this cycle.
func (p *Pipeline) renameStep() {
	if !p.latch.valid {
		return
	}
	b := p.latch.bundle
	for p.latch.pos < len(b.Insts) {
		i := p.latch.pos
		predicted := b.NextPC
		if i+1 < len(b.PCs) {
			predicted = b.PCs[i+1]
		}
		if !p.renameOne(b.PCs[i], b.Insts[i], predicted, b.CondBHR, b.IndirBHR, b.RASTOS) {
			p.stats.Stall()
			return
		}
		p.latch.pos++
	}
	p.latch = fetchLatch{}
}

func usesRm(f insts.Format) bool {
	switch f {
	case insts.FormatDPReg, insts.FormatCondSelect, insts.FormatDataProc2Src,
		insts.FormatDataProc3Src, insts.FormatCondCmp:
		return true
	default:
		return false
	}
}

// renameOne attempts to rename and dispatch a single instruction into
// the back end, reporting whether it succeeded. It stalls (returns
// false without side effects beyond what already committed) if the
// payload buffer, checkpoint ring, physical register free list, issue
// queue, or load/store queue has no room.
func (p *Pipeline) renameOne(pc uint64, inst insts.Instruction, predictedNextPC, fetchCondBHR, fetchIndirBHR, fetchRASTOS uint64) bool {
	if p.payload.Full() || p.renamer.StallReg(1) || p.iq.FreeSlots() == 0 {
		return false
	}

	var entry payload.Entry
	entry.PC = pc
	entry.Inst = inst
	entry.Classify()

	needsCkpt := rename.NeedsCheckpoint(entry.IsLoad, entry.IsStore, entry.IsBranch, entry.IsAMO, entry.IsCSR) ||
		p.renamer.LiveCheckpoints() == 0
	periodic := !needsCkpt && p.cfg.Pipeline.MaxInstrsBetweenCheckpoints > 0 &&
		p.instrsSinceCheckpoint >= p.cfg.Pipeline.MaxInstrsBetweenCheckpoints
	if (needsCkpt || periodic) && p.renamer.StallCheckpoint(1) {
		return false
	}

	if entry.IsLoad && p.lsu.LQFull() {
		return false
	}
	if entry.IsStore && p.lsu.SQFull() {
		return false
	}

	if needsCkpt || periodic {
		p.renamer.Checkpoint()
		p.instrsSinceCheckpoint = 0
	}
	p.instrsSinceCheckpoint++

	entry.CheckpointID = p.renamer.CurrentCheckpoint(entry.IsLoad, entry.IsStore, entry.IsBranch, entry.IsAMO, entry.IsCSR)
	entry.BranchMask = p.renamer.BranchMask()
	entry.BranchID = -1

	var src1, src2 uint8
	src1Ready, src2Ready := true, true
	switch {
	case entry.IsStore:
		src1 = p.renamer.RenameSrc(inst.Rn)
		src1Ready = p.renamer.IsReady(src1)
		src2 = p.renamer.RenameSrc(inst.Rd)
		src2Ready = p.renamer.IsReady(src2)
	default:
		src1 = p.renamer.RenameSrc(inst.Rn)
		src1Ready = p.renamer.IsReady(src1)
		if usesRm(inst.Format) || entry.IsLoad {
			src2 = p.renamer.RenameSrc(inst.Rm)
			src2Ready = p.renamer.IsReady(src2)
		}
	}

	if entry.HasDest {
		newPhys, oldPhys := p.renamer.RenameDst(entry.LogicalDest)
		entry.PhysDest = newPhys
		entry.PrevPhys = oldPhys
	}

	if entry.IsLoad {
		entry.HasLQ = true
		entry.LQIndex = p.lsu.AllocLoad(pc)
	}
	if entry.IsStore {
		entry.HasSQ = true
		entry.SQIndex = p.lsu.AllocStore()
	}

	lqIdx, lqPhase := p.lsu.LQTail()
	sqIdx, sqPhase := p.lsu.SQTail()
	entry.LQTailIdx, entry.LQTailPhase = lqIdx, lqPhase
	entry.SQTailIdx, entry.SQTailPhase = sqIdx, sqPhase

	if entry.IsBranch {
		tag := p.bq.Push()
		bqe := p.bq.At(tag)
		bqe.Kind = inst.Kind()
		bqe.PreciseCondBHR = fetchCondBHR
		bqe.PreciseIndirBHR = fetchIndirBHR
		bqe.PreciseRASTOS = fetchRASTOS
		bqe.FetchPC = pc
		bqe.FetchCondBHR = fetchCondBHR
		bqe.FetchIndirBHR = fetchIndirBHR
		bqe.NextPC = predictedNextPC

		entry.HasBQ = true
		entry.BQIndex = tag.Index
		entry.BQPhase = tag.Phase
		entry.BranchID = int8(tag.Index)
		entry.PredictedNextPC = predictedNextPC
		entry.PreciseCondBHR = fetchCondBHR
		entry.PreciseIndirBHR = fetchIndirBHR
		entry.PreciseRASTOS = fetchRASTOS
	}

	idx := p.payload.Alloc()
	*p.payload.At(idx) = entry
	p.iq.Add(idx, src1, src2, src1Ready, src2Ready)
	return true
}

func (p *Pipeline) fetch2Step(cycle uint64) {
	if !p.fetchWaiting {
		return
	}
	b := p.fetchU.Fetch2(cycle, p.memory)
	if b.Stalled {
		return
	}
	p.fetchWaiting = false
	if len(b.Insts) == 0 {
		return
	}
	p.latch = fetchLatch{valid: true, bundle: b}
}

func (p *Pipeline) fetch1Step(cycle uint64) {
	if p.fetchWaiting || p.latch.valid || p.halted {
		return
	}
	p.fetchU.Fetch1(cycle)
	p.fetchWaiting = true
}

// retireStep commits up to RetireWidth instructions from the payload
// head, each in two parts: the architectural bookkeeping (freeing
// registers, draining the load/store and branch queues) and the
// delegation to the reference model that actually computes the
// instruction's effect and reveals whether a retiring branch's
// predicted direction was correct.
func (p *Pipeline) retireStep() {
	for n := 0; n < p.cfg.Pipeline.RetireWidth; n++ {
		cid, _, _, _, _, _, _, ok := p.renamer.Precommit()
		if !ok {
			return
		}
		head, hasHead := p.payload.Head()
		if !hasHead {
			return
		}
		entry := p.payload.At(head)
		invariant.Assert(entry.CheckpointID == cid, "retire: payload head checkpoint %d does not match precommit head %d", entry.CheckpointID, cid)
		if !entry.Completed {
			return
		}

		p.commitEntry(entry, cid)

		actualPC, halted, exitCode := p.finalizeEntry(entry)
		if halted {
			p.halted = true
			p.exitCode = exitCode
			return
		}

		if entry.IsBranch && actualPC != entry.PredictedNextPC {
			p.stats.Mispredict(entry.Inst.Kind())
			p.squash(entry, cid, actualPC)
			p.freeDrainedCheckpoints(cid)
			p.stats.Flush()
			return
		}

		p.freeDrainedCheckpoints(cid)
	}
}

// commitEntry performs the non-speculative bookkeeping for a retiring
// instruction: freeing its overwritten physical register, and draining
// its load/store/branch-queue slot.
func (p *Pipeline) commitEntry(entry *payload.Entry, cid int) {
	if entry.HasDest {
		p.renamer.Commit(entry.LogicalDest)
	}
	if entry.IsLoad {
		p.lsu.RetireLoad()
		p.lsu.TrainNoViolation(entry.PC)
	}
	if entry.IsStore {
		p.lsu.RetireStore()
	}
	if entry.IsBranch {
		p.bq.Pop()
	}
	p.stats.Retire(entry.PC)
	tracelog.Retire(&p.log, p.stats.Cycles, cid, entry.PC, entry.IsBranch)
	p.payload.Retire()
}

// finalizeEntry delegates value computation and control-flow resolution
// to the reference model, syncing the register file around the call
// since RegFile carries no pointers for Step to alias incorrectly.
func (p *Pipeline) finalizeEntry(entry *payload.Entry) (actualNextPC uint64, halted bool, exitCode int64) {
	*p.checker.RegFile() = *p.regFile
	result := p.checker.Step()
	*p.regFile = *p.checker.RegFile()

	if result.Exited {
		return 0, true, result.ExitCode
	}
	if result.Err != nil {
		return 0, true, -1
	}

	actualNextPC = p.regFile.PC
	if entry.IsBranch {
		p.trainBranch(entry, actualNextPC)
	}
	return actualNextPC, false, 0
}

// trainBranch updates the conditional predictor with the ground-truth
// outcome the reference model just revealed, deferred to retire since
// the outcome isn't known for certain until here. Only the conditional
// predictor is trained here; fetch's predictBranch (timing/fetch/fetch.go)
// installs BTB entries for direct branches, and nothing trains
// indirect-branch targets.
func (p *Pipeline) trainBranch(entry *payload.Entry, actualNextPC uint64) {
	kind := entry.Inst.Kind()
	if !kind.IsConditional() {
		return
	}
	taken := actualNextPC != entry.PC+4
	p.fetchU.Cond.Train(entry.PC, entry.PreciseCondBHR, taken)
}

// squash recovers from a retiring branch's misprediction: the branch's
// own commit already happened, so renamer.Rollback(cid, true) discards
// only what was renamed after cid's checkpoint (matching "cid resolved
// correctly, only what's younger needs discarding"), and every
// structure downstream of the branch is flushed outright since nothing
// left in flight can be older than it.
func (p *Pipeline) squash(entry *payload.Entry, cid int, actualNextPC uint64) {
	p.renamer.Rollback(cid, true)

	p.iq.Flush(func(int) bool { return false })
	p.lanes.Flush(func(int) bool { return false })
	p.payload.SquashBack(0)
	p.bq.Flush()
	p.lsu.Restore(entry.LQTailIdx, entry.LQTailPhase, entry.SQTailIdx, entry.SQTailPhase)

	p.fetchU.Cond.SetBHR(entry.PreciseCondBHR)
	p.fetchU.Indir.SetBHR(entry.PreciseIndirBHR)
	p.fetchU.RAS.SetTOS(entry.PreciseRASTOS)
	if entry.Inst.Kind().IsConditional() {
		taken := actualNextPC != entry.PC+4
		p.fetchU.Cond.UpdateBHR(taken)
	}
	p.fetchU.SetPC(actualNextPC)
	p.regFile.PC = actualNextPC

	p.latch = fetchLatch{}
	p.fetchWaiting = false

	tracelog.Squash(&p.log, p.stats.Cycles, actualNextPC, true, entry.BranchMask)
}

// freeDrainedCheckpoints advances the checkpoint ring head past cid once
// every instruction it covers has retired (the payload no longer has an
// entry belonging to it).
func (p *Pipeline) freeDrainedCheckpoints(cid int) {
	if head, ok := p.payload.Head(); ok && p.payload.At(head).CheckpointID == cid {
		return
	}
	if headCk, ok := p.renamer.HeadCheckpoint(); !ok || headCk != cid {
		return
	}
	p.renamer.FreeCheckpoint()
}
