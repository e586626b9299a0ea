// Package payload holds the in-flight instruction arena: a fixed ring of
// entries threaded by index rather than pointer, so every other pipeline
// structure (issue queue, LSU, branch queue) can refer to an instruction
// by a small integer instead of carrying the instruction around.
package payload

import "github.com/sarchlab/cprsim/insts"

// Entry is one in-flight instruction's bookkeeping: per-slot pipeline
// fields plus the active-list fields a checkpoint/recovery core needs —
// destination-register identity, completion/exception status,
// instruction-class flags, and the branch mask that was the Global
// Branch Mask's value at rename time.
type Entry struct {
	Valid bool

	PC   uint64
	Inst insts.Instruction

	HasDest     bool
	LogicalDest uint8
	PhysDest    uint8
	PrevPhys    uint8 // physical register LogicalDest mapped to before this rename

	Completed bool
	Exception bool
	LoadViolation bool

	IsLoad   bool
	IsStore  bool
	IsBranch bool
	IsAMO    bool
	IsCSR    bool

	BranchMask uint64 // GBM snapshot at rename time
	BranchID   int8   // -1 unless this entry is itself an unresolved branch

	// Issue/execute bookkeeping, set by the issue queue / lanes as the
	// entry moves through the pipeline.
	Issued    bool
	Executing bool

	// CheckpointID names the checkpoint this entry was renamed under,
	// for retire-time bulk commit and squash-mask membership tests.
	CheckpointID int

	// HasBQ/BQIndex/BQPhase identify this entry's branch-queue slot when
	// IsBranch is set. PredictedNextPC is the fetch-time prediction, kept
	// here so retirement can compare it against the architectural PC the
	// reference model produces.
	HasBQ           bool
	BQIndex         int
	BQPhase         bool
	PredictedNextPC uint64

	// HasLQ/LQIndex and HasSQ/SQIndex identify this entry's load/store
	// queue slot when IsLoad/IsStore is set.
	HasLQ   bool
	LQIndex int
	HasSQ   bool
	SQIndex int

	// Precise predictor state (BHR/RAS-TOS as they stood immediately
	// before this branch entered the pipeline) and the LQ/SQ tail
	// snapshot at rename time, duplicated from the branch queue entry
	// onto the payload entry itself so retire-time recovery never needs
	// to read back through an already-popped branch-queue slot.
	PreciseCondBHR  uint64
	PreciseIndirBHR uint64
	PreciseRASTOS   uint64
	LQTailIdx       int
	LQTailPhase     bool
	SQTailIdx       int
	SQTailPhase     bool
}

// Reset clears an entry back to its zero, invalid state for reuse.
func (e *Entry) Reset() {
	*e = Entry{}
}

// Classify stamps the instruction-class flags from the decoded opcode.
func (e *Entry) Classify() {
	e.IsBranch = e.Inst.IsBranch()
	e.IsLoad = e.Inst.Op == insts.OpLDR || e.Inst.Op == insts.OpLDRB ||
		e.Inst.Op == insts.OpLDRSB || e.Inst.Op == insts.OpLDRH ||
		e.Inst.Op == insts.OpLDRSH || e.Inst.Op == insts.OpLDP ||
		e.Inst.Op == insts.OpLDRLit || e.Inst.Op == insts.OpLDRQ
	e.IsStore = e.Inst.Op == insts.OpSTR || e.Inst.Op == insts.OpSTRB ||
		e.Inst.Op == insts.OpSTRH || e.Inst.Op == insts.OpSTP ||
		e.Inst.Op == insts.OpSTRQ
	e.IsCSR = e.Inst.IsSerializing()

	switch {
	case e.IsBranch:
		e.LogicalDest, e.HasDest = e.Inst.DestReg()
	case e.IsStore, e.IsCSR,
		e.Inst.Op == insts.OpUnknown, e.Inst.Op == insts.OpNOP, e.Inst.Op == insts.OpBRK:
		e.HasDest = false
	default:
		e.HasDest = true
		e.LogicalDest = e.Inst.Rd
	}
}

// Buffer is a fixed-capacity ring of Entry, indexed by payload index
// rather than pointer. Head/tail track the occupied window in program
// order; entries outside [head, tail) are stale and must not be read.
type Buffer struct {
	entries []Entry
	head    int
	tail    int
	count   int
}

// New creates a Buffer with the given number of slots.
func New(capacity int) *Buffer {
	return &Buffer{entries: make([]Entry, capacity)}
}

// Capacity returns the number of slots in the buffer.
func (b *Buffer) Capacity() int { return len(b.entries) }

// Len returns the number of currently occupied slots.
func (b *Buffer) Len() int { return b.count }

// Full reports whether the buffer has no free slot.
func (b *Buffer) Full() bool { return b.count == len(b.entries) }

// Empty reports whether the buffer has no occupied slot.
func (b *Buffer) Empty() bool { return b.count == 0 }

// Alloc reserves the next slot in program order and returns its index.
// The caller must check Full() first; Alloc panics on overflow since that
// indicates a dispatch-width/stall bug upstream.
func (b *Buffer) Alloc() int {
	if b.Full() {
		panic("payload: Alloc on a full buffer")
	}
	idx := b.tail
	b.tail = (b.tail + 1) % len(b.entries)
	b.count++
	b.entries[idx].Valid = true
	return idx
}

// At returns a pointer to the entry at idx for in-place mutation.
func (b *Buffer) At(idx int) *Entry {
	return &b.entries[idx]
}

// Head returns the index of the oldest occupied slot (the next to
// retire), and whether the buffer is non-empty.
func (b *Buffer) Head() (idx int, ok bool) {
	if b.Empty() {
		return 0, false
	}
	return b.head, true
}

// Retire releases the oldest occupied slot, clearing it for reuse.
func (b *Buffer) Retire() {
	if b.Empty() {
		panic("payload: Retire on an empty buffer")
	}
	b.entries[b.head].Reset()
	b.head = (b.head + 1) % len(b.entries)
	b.count--
}

// SquashBack rolls the tail back so that only the keepCount oldest
// entries (counted from head) survive a squash, invalidating everything
// younger.
func (b *Buffer) SquashBack(keepCount int) {
	for b.count > keepCount {
		b.tail = (b.tail - 1 + len(b.entries)) % len(b.entries)
		b.count--
		b.entries[b.tail].Reset()
	}
}

// Index returns the payload index of the n-th entry from head (0 is the
// oldest/next-to-retire entry), for iterating the occupied window in
// program order.
func (b *Buffer) Index(n int) int {
	return (b.head + n) % len(b.entries)
}
