// Package rename implements register renaming with checkpoint-based
// recovery: a rename map table over a physical register file with
// reference counts, a free list, and a ring of checkpoints keyed by a
// global branch mask (GBM) bit, so a misprediction or other squash can
// restore the map table and free list to their exact pre-branch state
// without walking the reorder buffer.
package rename

// PhysReg is a physical register number.
type PhysReg = uint8

const maxBranches = 64 // GBM is a uint64: one bit per in-flight branch/checkpoint

// prfEntry is one physical register's value, ready bit, mapping status,
// and the reference count of in-flight instructions (renamed sources
// plus live checkpoints) that still need its value.
type prfEntry struct {
	value    uint64
	ready    bool
	unmapped bool // true once freed back to the free list
	refs     uint64
}

// Checkpoint is one entry of the checkpoint buffer: the shadow copy of
// the RMT and unmapped bits, the free-list head snapshot, and counters
// used to detect when every instruction a checkpoint covers has drained
// (so the checkpoint's registers can finally be reclaimed).
type Checkpoint struct {
	rmt           []PhysReg
	unmapped      []bool
	freeHead      int
	freeHeadPhase bool

	UncompletedInstrs uint64
	Loads             uint64
	Stores            uint64
	Branches          uint64
	AMO               bool
	CSR               bool
	Exception         bool
}

// Renamer owns the RMT, free list, PRF, and checkpoint buffer.
type Renamer struct {
	numLogical int

	rmt []PhysReg
	prf []prfEntry

	freeList            []PhysReg
	flHead, flTail      int
	flHeadPhase, flTailPhase bool

	// gbm tracks which checkpoint ring slots are currently occupied (one
	// bit per slot); it is a derived view of [ckHead, ckTail), kept
	// incrementally, used by BranchMask/StallCheckpoint and by the issue
	// queue's squash(mask) to identify which in-flight entries a given
	// checkpoint's rollback invalidates.
	gbm                      uint64
	checkpoints              []Checkpoint
	ckHead, ckTail           int
	ckHeadPhase, ckTailPhase bool
}

// New creates a Renamer for numLogical logical registers, numPhysical
// physical registers, and up to numBranches concurrently-unresolved
// branches (checkpoints). numPhysical must exceed numLogical so every
// logical register can be renamed while leaving registers free; 1 <=
// numBranches <= 64.
func New(numLogical, numPhysical, numBranches int) *Renamer {
	if numPhysical <= numLogical {
		panic("rename: numPhysical must exceed numLogical")
	}
	if numBranches < 1 || numBranches > maxBranches {
		panic("rename: numBranches must be in [1, 64]")
	}

	r := &Renamer{
		numLogical:  numLogical,
		rmt:         make([]PhysReg, numLogical),
		prf:         make([]prfEntry, numPhysical),
		checkpoints: make([]Checkpoint, numBranches),
	}

	// Logical register i initially maps to physical register i; the
	// remaining physical registers start free and unmapped.
	for i := 0; i < numLogical; i++ {
		r.rmt[i] = PhysReg(i)
		r.prf[i].ready = true
	}
	for p := numLogical; p < numPhysical; p++ {
		r.prf[p].unmapped = true
		r.freeList = append(r.freeList, PhysReg(p))
	}
	r.flTail = len(r.freeList)
	return r
}

// StallReg reports whether fewer than bundleDst free physical registers
// remain, in which case the rename stage must stall.
func (r *Renamer) StallReg(bundleDst int) bool {
	return r.freeCount() < bundleDst
}

func (r *Renamer) freeCount() int {
	if r.flTail >= r.flHead {
		if r.flHeadPhase == r.flTailPhase {
			return r.flTail - r.flHead
		}
	}
	n := r.flTail - r.flHead
	if n <= 0 {
		n += len(r.freeList)
	}
	return n
}

// BranchMask returns the GBM, the set of unresolved branches an
// instruction renamed right now would depend on.
func (r *Renamer) BranchMask() uint64 { return r.gbm }

// RenameSrc maps a logical source register to its current physical
// register and increments that register's reference count.
func (r *Renamer) RenameSrc(logReg uint8) PhysReg {
	p := r.rmt[logReg]
	r.IncRefs(p)
	return p
}

// RenameDst allocates a free physical register for a logical destination,
// remaps the RMT, and returns the newly allocated register. The caller
// (payload/active-list entry) is responsible for remembering the
// previous mapping if it needs to free it at commit.
func (r *Renamer) RenameDst(logReg uint8) (newPhys, oldPhys PhysReg) {
	newPhys = r.popFree()
	oldPhys = r.rmt[logReg]
	r.rmt[logReg] = newPhys
	r.prf[newPhys].unmapped = false
	r.prf[newPhys].ready = false
	return newPhys, oldPhys
}

func (r *Renamer) popFree() PhysReg {
	if r.freeCount() == 0 {
		panic("rename: popFree on an empty free list")
	}
	p := r.freeList[r.flHead]
	r.flHead++
	if r.flHead == len(r.freeList) {
		r.flHead = 0
		r.flHeadPhase = !r.flHeadPhase
	}
	return p
}

func (r *Renamer) pushFree(p PhysReg) {
	r.freeList[r.flTail] = p
	r.flTail++
	if r.flTail == len(r.freeList) {
		r.flTail = 0
		r.flTailPhase = !r.flTailPhase
	}
}

// IncRefs/DecRefs track how many in-flight consumers (renamed sources,
// live checkpoints) still need phys's value; a register is only returned
// to the free list once its ref count is zero and it has been unmapped.
func (r *Renamer) IncRefs(phys PhysReg) { r.prf[phys].refs++ }

func (r *Renamer) DecRefs(phys PhysReg) {
	e := &r.prf[phys]
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 && e.unmapped {
		r.pushFree(phys)
	}
}

// Commit retires logical register lreg against the head checkpoint: the
// physical register recorded in head's RMT snapshot for lreg loses the
// reference that snapshot held on its behalf, and is unmapped unless the
// architectural RMT still maps lreg to it (i.e. it was renamed again
// since the checkpoint was taken, and the newer mapping is the live one).
func (r *Renamer) Commit(lreg uint8) {
	head, ok := r.HeadCheckpoint()
	if !ok {
		panic("rename: Commit called with no live checkpoint")
	}
	ck := &r.checkpoints[head]
	if ck.UncompletedInstrs != 0 {
		panic("rename: Commit called before head checkpoint finished")
	}
	if r.checkpointCount() <= 1 {
		panic("rename: Commit called with no next checkpoint to advance into")
	}
	phys := ck.rmt[lreg]
	r.DecRefs(phys)
	if r.rmt[lreg] != phys {
		r.Unmap(phys)
	}
}

// Map/Unmap mark a physical register as holding a live (mapped) value or
// as retired (eligible for reclaim once its ref count drains).
func (r *Renamer) Map(phys PhysReg)   { r.prf[phys].unmapped = false }
func (r *Renamer) Unmap(phys PhysReg) {
	e := &r.prf[phys]
	e.unmapped = true
	if e.refs == 0 {
		r.pushFree(phys)
	}
}

// IsReady/ClearReady/SetReady/Read/Write are the PRF's register-file
// contract used by issue, execute, and writeback.
func (r *Renamer) IsReady(phys PhysReg) bool   { return r.prf[phys].ready }
func (r *Renamer) ClearReady(phys PhysReg)     { r.prf[phys].ready = false }
func (r *Renamer) SetReady(phys PhysReg)       { r.prf[phys].ready = true }
func (r *Renamer) Read(phys PhysReg) uint64    { return r.prf[phys].value }
func (r *Renamer) Write(phys PhysReg, v uint64) {
	r.prf[phys].value = v
}

// StallCheckpoint reports whether fewer than bundleCkpts free checkpoints
// remain.
func (r *Renamer) StallCheckpoint(bundleCkpts int) bool {
	return len(r.checkpoints)-r.checkpointCount() < bundleCkpts
}

func (r *Renamer) checkpointCount() int {
	if r.ckTail >= r.ckHead {
		if r.ckHeadPhase == r.ckTailPhase {
			return r.ckTail - r.ckHead
		}
	}
	n := r.ckTail - r.ckHead
	if n <= 0 {
		n += len(r.checkpoints)
	}
	return n
}

// LiveCheckpoints returns the number of checkpoints currently in flight,
// for callers (the pipeline's rename stage) deciding whether this is the
// very first instruction and therefore needs a checkpoint regardless of
// its own classification.
func (r *Renamer) LiveCheckpoints() int { return r.checkpointCount() }

func (r *Renamer) ringNext(i int) int {
	i++
	if i == len(r.checkpoints) {
		i = 0
	}
	return i
}

func (r *Renamer) ringPrev(i int) int {
	i--
	if i < 0 {
		i = len(r.checkpoints) - 1
	}
	return i
}

// distance returns how many ring steps forward from to reaches to, in
// [0, len(checkpoints)).
func (r *Renamer) distance(from, to int) int {
	d := to - from
	if d < 0 {
		d += len(r.checkpoints)
	}
	return d
}

// liveCheckpoint reports whether id currently names an occupied ring slot.
func (r *Renamer) liveCheckpoint(id int) bool {
	return r.checkpointCount() > 0 && r.distance(r.ckHead, id) < r.checkpointCount()
}

// HeadCheckpoint returns the oldest live checkpoint id, the one that
// reflects architectural state, if any checkpoint is in flight.
func (r *Renamer) HeadCheckpoint() (id int, ok bool) {
	if r.checkpointCount() == 0 {
		return 0, false
	}
	return r.ckHead, true
}

// Checkpoint allocates the next checkpoint-ring slot for a new unresolved
// branch (or other checkpoint-triggering instruction), snapshots the RMT,
// unmapped bits, and free-list head, and returns the checkpoint/branch ID.
// Every currently-mapped physical register must survive until this
// checkpoint resolves, since a rollback may need to restore it, so the
// snapshot itself counts as a consumer of each one.
func (r *Renamer) Checkpoint() int {
	if r.StallCheckpoint(1) {
		panic("rename: Checkpoint called with no free checkpoint slot")
	}
	id := r.ckTail
	r.ckTail = r.ringNext(r.ckTail)
	if r.ckTail == 0 {
		r.ckTailPhase = !r.ckTailPhase
	}
	r.gbm |= 1 << uint(id)

	ck := &r.checkpoints[id]
	ck.rmt = append(ck.rmt[:0], r.rmt...)
	ck.unmapped = ck.unmapped[:0]
	for _, p := range r.prf {
		ck.unmapped = append(ck.unmapped, p.unmapped)
	}
	ck.freeHead, ck.freeHeadPhase = r.flHead, r.flHeadPhase
	ck.UncompletedInstrs = 0
	ck.Loads, ck.Stores, ck.Branches = 0, 0, 0
	ck.AMO, ck.CSR, ck.Exception = false, false, false

	for _, p := range r.rmt {
		r.IncRefs(p)
	}
	return id
}

// CurrentCheckpoint returns the id of the checkpoint interval a newly
// renamed instruction falls into (the ring's current tail-1 slot),
// incrementing its per-class counters and its uncompleted-instruction
// counter. Called once per renamed instruction, not just on checkpoint
// triggers.
func (r *Renamer) CurrentCheckpoint(load, store, branch, amo, csr bool) int {
	id := r.ringPrev(r.ckTail)
	ck := &r.checkpoints[id]
	if load {
		ck.Loads++
	}
	if store {
		ck.Stores++
	}
	if branch {
		ck.Branches++
	}
	if amo {
		ck.AMO = true
	}
	if csr {
		ck.CSR = true
	}
	ck.UncompletedInstrs++
	return id
}

// FreeCheckpoint advances the checkpoint ring's head, releasing the
// snapshot's own hold on every physical register it referenced, and
// returns the freed id. Called once the checkpoint's covered
// instructions have all committed.
func (r *Renamer) FreeCheckpoint() int {
	if r.checkpointCount() == 0 {
		panic("rename: FreeCheckpoint on an empty checkpoint ring")
	}
	id := r.ckHead
	for _, p := range r.checkpoints[id].rmt {
		r.DecRefs(p)
	}
	r.gbm &^= 1 << uint(id)
	r.ckHead = r.ringNext(r.ckHead)
	if r.ckHead == 0 {
		r.ckHeadPhase = !r.ckHeadPhase
	}
	return id
}

// SetComplete decrements checkpoint id's uncompleted-instruction counter,
// called at writeback for every instruction that was in flight when the
// checkpoint was taken.
func (r *Renamer) SetComplete(id int) {
	if r.checkpoints[id].UncompletedInstrs > 0 {
		r.checkpoints[id].UncompletedInstrs--
	}
}

// Rollback restores the RMT, free-list head, and unmapped bits from
// checkpoint cid's snapshot (or cid+1's, when next is true and cid+1 is
// itself a live checkpoint — used when cid resolved correctly and only
// checkpoints strictly younger than it need discarding). Every live
// checkpoint strictly younger than the restore point is squashed:
// use-counts are decremented for every PR its RMT snapshot referenced,
// and it is removed from the ring (tail reset to restore+1). The restore
// point's own counters/flags are zeroed so it can keep serving as the
// current checkpoint. It returns the squashed ids as a bitmask, and the
// summed load/store/branch counts of every checkpoint still live between
// head and the restore point (for LSU tail restoration and branch-queue
// pruning).
func (r *Renamer) Rollback(cid int, next bool) (loads, stores, branches, squashMask uint64) {
	restore := cid
	if next && r.liveCheckpoint(r.ringNext(cid)) {
		restore = r.ringNext(cid)
	}

	ck := &r.checkpoints[restore]
	copy(r.rmt, ck.rmt)
	for i := range r.prf {
		if i < len(ck.unmapped) {
			r.prf[i].unmapped = ck.unmapped[i]
		}
	}
	r.flHead, r.flHeadPhase = ck.freeHead, ck.freeHeadPhase

	discardFrom := r.ringNext(restore)
	n := r.distance(discardFrom, r.ckTail)
	for i, idx := 0, discardFrom; i < n; i, idx = i+1, r.ringNext(idx) {
		squashMask |= 1 << uint(idx)
		for _, p := range r.checkpoints[idx].rmt {
			r.DecRefs(p)
		}
		r.gbm &^= 1 << uint(idx)
	}

	for i, idx := 0, r.ckHead; i <= r.distance(r.ckHead, restore); i, idx = i+1, r.ringNext(idx) {
		c := &r.checkpoints[idx]
		loads += c.Loads
		stores += c.Stores
		branches += c.Branches
	}

	ck.UncompletedInstrs = 0
	ck.Loads, ck.Stores, ck.Branches = 0, 0, 0
	ck.AMO, ck.CSR, ck.Exception = false, false, false

	r.ckTail = r.ringNext(restore)
	if r.ckTail >= r.ckHead {
		r.ckTailPhase = r.ckHeadPhase
	} else {
		r.ckTailPhase = !r.ckHeadPhase
	}
	return
}

// Squash rolls all renamer state back to the head checkpoint, discarding
// every later checkpoint, and reports the same aggregates Rollback does.
// Matches precise-exception and full-pipeline-flush recovery, where
// nothing past the oldest in-flight checkpoint can be trusted.
func (r *Renamer) Squash() (loads, stores, branches, squashMask uint64) {
	head, ok := r.HeadCheckpoint()
	if !ok {
		return 0, 0, 0, 0
	}
	return r.Rollback(head, false)
}

// Precommit reports the head checkpoint's id and counters if it is
// eligible to retire this cycle: at least one younger checkpoint must
// still be in flight (or the head must carry a posted exception), and
// every instruction the head covers must have completed.
func (r *Renamer) Precommit() (cid int, loads, stores, branches uint64, amo, csr, exception, ok bool) {
	if r.checkpointCount() == 0 {
		return 0, 0, 0, 0, false, false, false, false
	}
	head := r.ckHead
	ck := &r.checkpoints[head]
	if !(r.checkpointCount() > 1 || ck.Exception) {
		return 0, 0, 0, 0, false, false, false, false
	}
	if ck.UncompletedInstrs != 0 {
		return 0, 0, 0, 0, false, false, false, false
	}
	return head, ck.Loads, ck.Stores, ck.Branches, ck.AMO, ck.CSR, ck.Exception, true
}

// SetException/GetException/SetLoadViolation/SetBranchMisprediction/
// SetValueMisprediction flag a checkpoint's status bits; the active-list
// equivalents live on the payload entry itself in this design, so these
// forward to the owning checkpoint for the aggregate exception flag used
// by precommit-time squash decisions.
func (r *Renamer) SetException(id int)        { r.checkpoints[id].Exception = true }
func (r *Renamer) GetException(id int) bool   { return r.checkpoints[id].Exception }

// NeedsCheckpoint reports whether an instruction with these
// classification flags requires a checkpoint: a branch, or an AMO/CSR
// instruction under the serializing-checkpoint policy. Callers decide
// whether to call Checkpoint() based on this classification.
func NeedsCheckpoint(load, store, branch, amo, csr bool) bool {
	return branch || amo || csr
}
