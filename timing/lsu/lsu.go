// Package lsu implements the load/store unit: a circular load queue (LQ)
// and store queue (SQ) with speculative memory disambiguation,
// store-to-load forwarding, a memory-dependence predictor that decides
// when a load should stall for an address-unknown older store, and a
// load-violation check used to catch a younger load that raced ahead of
// an older conflicting store.
package lsu

// LoadEntry is one in-flight load's disambiguation state.
type LoadEntry struct {
	Valid      bool
	Addr       uint64
	AddrAvail  bool
	Size       uint64
	ValueAvail bool
	Value      uint64
	MDPStall   bool // memory-dependence predictor says: stall until SQ clears
	SQIndex    int  // SQ tail snapshot at issue time, for disambiguate()
	SQPhase    bool
}

// StoreEntry is one in-flight store's disambiguation state.
type StoreEntry struct {
	Valid      bool
	Addr       uint64
	AddrAvail  bool
	Size       uint64
	ValueAvail bool
	Value      uint64
}

// Unit is the load/store unit's queues.
type Unit struct {
	LQ                 []LoadEntry
	SQ                 []StoreEntry
	lqHead, lqTail     int
	lqHeadPhase, lqTailPhase bool
	sqHead, sqTail     int
	sqHeadPhase, sqTailPhase bool

	mdp *Predictor
}

// New creates a Unit with the given LQ/SQ sizes and memory-dependence
// predictor table size.
func New(lqSize, sqSize, mdpEntries int) *Unit {
	return &Unit{
		LQ:  make([]LoadEntry, lqSize),
		SQ:  make([]StoreEntry, sqSize),
		mdp: NewPredictor(mdpEntries),
	}
}

// AllocLoad reserves the next LQ slot, snapshotting the current SQ tail
// so disambiguate() knows which stores are logically older. pc is used
// to query the memory-dependence predictor for whether this load should
// conservatively stall on an address-unknown older store.
func (u *Unit) AllocLoad(pc uint64) (idx int) {
	idx = u.lqTail
	u.lqTail = mod(u.lqTail+1, len(u.LQ))
	if u.lqTail == 0 {
		u.lqTailPhase = !u.lqTailPhase
	}
	u.LQ[idx] = LoadEntry{
		Valid:    true,
		SQIndex:  u.sqTail,
		SQPhase:  u.sqTailPhase,
		MDPStall: u.mdp.ShouldStall(pc),
	}
	return idx
}

// AllocStore reserves the next SQ slot.
func (u *Unit) AllocStore() (idx int) {
	idx = u.sqTail
	u.sqTail = mod(u.sqTail+1, len(u.SQ))
	if u.sqTail == 0 {
		u.sqTailPhase = !u.sqTailPhase
	}
	u.SQ[idx] = StoreEntry{Valid: true}
	return idx
}

func mod(v, m int) int {
	return ((v % m) + m) % m
}

// Disambiguate walks the SQ backward from lqIndex's snapshot toward the
// SQ head, looking for the youngest older store this load conflicts
// with. It mirrors the reference algorithm exactly: stall is returned
// true when a conflict exists but the answer can't yet be determined
// (address unknown and the predictor says be conservative, or the
// address matches but the store's value isn't ready yet); forward is
// true when a matching, ready store is found to forward from (storeIdx);
// partial is true for the "sizes differ" case, which this simulator
// resolves by forwarding anyway rather than stalling (the reference
// model's documented kluge to avoid a disambiguation deadlock).
func (u *Unit) Disambiguate(lqIndex int) (stall, forward, partial bool, storeIdx int) {
	load := &u.LQ[lqIndex]

	if load.SQIndex == u.sqHead && load.SQPhase == u.sqHeadPhase {
		return false, false, false, 0
	}

	entry := load.SQIndex
	for {
		entry = mod(entry-1, len(u.SQ))
		store := &u.SQ[entry]

		maxSize := load.Size
		if store.Size > maxSize {
			maxSize = store.Size
		}
		mask := ^(maxSize - 1)

		if !store.AddrAvail {
			if load.MDPStall {
				return true, false, false, 0
			}
		} else if (store.Addr & mask) == (load.Addr & mask) {
			if store.Size != load.Size {
				// Sizes differ under a matching coarse address: forward
				// rather than stall, to avoid deadlocking disambiguation
				// when a partial-width store can never fully resolve the
				// load's dependence by waiting.
				return false, true, true, entry
			}
			if !store.ValueAvail {
				return true, false, false, 0
			}
			return false, true, false, entry
		}

		if entry == u.sqHead {
			break
		}
	}
	return false, false, false, 0
}

// LoadViolation scans the LQ from loadFrom (the oldest load younger than
// a just-resolved store) to the tail, looking for a load that already
// read a value conflicting with sqIndex's store address — a speculative
// disambiguation mistake that must squash the load (and everything after
// it) at retirement.
func (u *Unit) LoadViolation(sqIndex int, loadFrom int, loadFromPhase bool) (misp bool, loadEntry int) {
	entry, phase := loadFrom, loadFromPhase
	store := &u.SQ[sqIndex]

	for !(entry == u.lqTail && phase == u.lqTailPhase) {
		load := &u.LQ[entry]
		maxSize := store.Size
		if load.Size > maxSize {
			maxSize = load.Size
		}
		mask := ^(maxSize - 1)

		match := load.AddrAvail && (store.Addr&mask) == (load.Addr&mask)
		if match && load.ValueAvail {
			return true, entry
		}
		if match {
			u.mdp.Train(store.Addr, true) // late match: next time, stall
		}

		entry = mod(entry+1, len(u.LQ))
		if entry == 0 {
			phase = !phase
		}
	}
	return false, 0
}

// TrainNoViolation reports that a load cleared disambiguation without
// ever conflicting, so the predictor can relax its stall confidence.
func (u *Unit) TrainNoViolation(pc uint64) {
	u.mdp.Train(pc, false)
}

// Restore truncates the LQ/SQ tails back to the indices recorded on a
// branch's payload entry at rename time, discarding every load/store
// younger than the mispredicted branch. Entries between the new tail and
// the old one are cleared so a stale Valid bit can't be mistaken for a
// live entry by a later Disambiguate/LoadViolation scan.
func (u *Unit) Restore(lqIndex int, lqPhase bool, sqIndex int, sqPhase bool) {
	for u.lqTail != lqIndex || u.lqTailPhase != lqPhase {
		u.lqTail = mod(u.lqTail-1, len(u.LQ))
		if u.lqTail == len(u.LQ)-1 {
			u.lqTailPhase = !u.lqTailPhase
		}
		u.LQ[u.lqTail] = LoadEntry{}
	}
	for u.sqTail != sqIndex || u.sqTailPhase != sqPhase {
		u.sqTail = mod(u.sqTail-1, len(u.SQ))
		if u.sqTail == len(u.SQ)-1 {
			u.sqTailPhase = !u.sqTailPhase
		}
		u.SQ[u.sqTail] = StoreEntry{}
	}
}

// LQTail/SQTail snapshot the current LQ/SQ tail (index, phase), recorded on
// a branch's payload entry at rename time so Restore can truncate back to
// this exact point on a later misprediction.
func (u *Unit) LQTail() (index int, phase bool) { return u.lqTail, u.lqTailPhase }
func (u *Unit) SQTail() (index int, phase bool) { return u.sqTail, u.sqTailPhase }

// LQHead/SQHead expose the head (index, phase) for retire-time train+commit
// work-unit draining.
func (u *Unit) LQHead() (index int, phase bool) { return u.lqHead, u.lqHeadPhase }
func (u *Unit) SQHead() (index int, phase bool) { return u.sqHead, u.sqHeadPhase }

// RetireLoad/RetireStore advance the LQ/SQ head past a committed entry,
// clearing it for reuse.
func (u *Unit) RetireLoad() {
	u.LQ[u.lqHead] = LoadEntry{}
	u.lqHead = mod(u.lqHead+1, len(u.LQ))
	if u.lqHead == 0 {
		u.lqHeadPhase = !u.lqHeadPhase
	}
}

func (u *Unit) RetireStore() StoreEntry {
	s := u.SQ[u.sqHead]
	u.SQ[u.sqHead] = StoreEntry{}
	u.sqHead = mod(u.sqHead+1, len(u.SQ))
	if u.sqHead == 0 {
		u.sqHeadPhase = !u.sqHeadPhase
	}
	return s
}

// LQEmpty/SQEmpty report whether the load/store queue has any entry left
// to train+commit for the retiring checkpoint's work-unit accounting.
func (u *Unit) LQEmpty() bool { return u.lqHead == u.lqTail && u.lqHeadPhase == u.lqTailPhase }
func (u *Unit) SQEmpty() bool { return u.sqHead == u.sqTail && u.sqHeadPhase == u.sqTailPhase }

// LQFull/SQFull report whether the load/store queue has no free slot, so
// the rename stage knows to stall a load/store instruction rather than
// allocate past capacity.
func (u *Unit) LQFull() bool { return u.lqHead == u.lqTail && u.lqHeadPhase != u.lqTailPhase }
func (u *Unit) SQFull() bool { return u.sqHead == u.sqTail && u.sqHeadPhase != u.sqTailPhase }
