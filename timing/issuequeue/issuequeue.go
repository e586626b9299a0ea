// Package issuequeue implements out-of-order instruction selection:
// wakeup of operands as their producers complete, and select among ready
// entries under a configurable policy (lowest slot index first by
// default, or oldest-first by program order under AgeBased, the `-b`
// option semantics) when more entries are ready than the lanes can
// accept in a cycle.
package issuequeue

// Policy selects how Select breaks ties among ready entries.
type Policy uint8

const (
	// PositionDefault always prefers the lowest slot index among ready
	// entries — the queue's natural (enqueue) order, cheap to implement
	// in hardware and the default absent `-b`.
	PositionDefault Policy = iota
	// AgeBased prefers the oldest entry by program order (the `-b`
	// option), tracked via a sequence number stamped at Add time.
	AgeBased
)

// Entry is one issue-queue slot.
type Entry struct {
	Valid       bool
	PayloadIdx  int
	Src1, Src2  uint8
	Src1Ready   bool
	Src2Ready   bool
	Seq         uint64 // program-order sequence number, for AgeBased select
	WakeupCycle uint64 // the cycle this entry's sources are forwarded, for 1-cycle vs L-cycle wakeup timing
}

// Ready reports whether both source operands are available.
func (e *Entry) Ready() bool { return e.Src1Ready && e.Src2Ready }

// Queue is a pool of issue-queue entries, not a FIFO: entries are added
// in any free slot and removed from any slot once issued, since issue
// order is determined by readiness, not arrival order.
type Queue struct {
	entries []Entry
	policy  Policy
	seq     uint64
}

// New creates a Queue with the given number of slots and tie-break
// policy.
func New(capacity int, policy Policy) *Queue {
	return &Queue{entries: make([]Entry, capacity), policy: policy}
}

// Capacity returns the number of slots.
func (q *Queue) Capacity() int { return len(q.entries) }

// FreeSlots returns how many slots are currently unoccupied.
func (q *Queue) FreeSlots() int {
	n := 0
	for i := range q.entries {
		if !q.entries[i].Valid {
			n++
		}
	}
	return n
}

// Add installs a new entry in the first free slot and returns its index.
// The caller must check FreeSlots() first.
func (q *Queue) Add(payloadIdx int, src1, src2 uint8, src1Ready, src2Ready bool) int {
	for i := range q.entries {
		if !q.entries[i].Valid {
			q.seq++
			q.entries[i] = Entry{
				Valid: true, PayloadIdx: payloadIdx,
				Src1: src1, Src2: src2,
				Src1Ready: src1Ready, Src2Ready: src2Ready,
				Seq: q.seq,
			}
			return i
		}
	}
	panic("issuequeue: Add with no free slot")
}

// Wakeup marks every waiting entry whose source matches phys as ready;
// an entry whose sources are then all ready becomes selectable from
// readyAtCycle onward (an absolute cycle, not a delay).
func (q *Queue) Wakeup(phys uint8, readyAtCycle uint64) {
	for i := range q.entries {
		e := &q.entries[i]
		if !e.Valid {
			continue
		}
		if e.Src1 == phys {
			e.Src1Ready = true
		}
		if e.Src2 == phys {
			e.Src2Ready = true
		}
		if e.Src1Ready && e.Src2Ready {
			e.WakeupCycle = readyAtCycle
		}
	}
}

// Select picks up to width ready entries (whose wakeup cycle has already
// passed) to issue this cycle, removing them from the queue, broken by
// the queue's configured Policy.
func (q *Queue) Select(cycle uint64, width int) []Entry {
	var candidates []int
	for i := range q.entries {
		e := &q.entries[i]
		if e.Valid && e.Ready() && e.WakeupCycle <= cycle {
			candidates = append(candidates, i)
		}
	}

	if q.policy == AgeBased {
		for a := 0; a < len(candidates); a++ {
			for b := a + 1; b < len(candidates); b++ {
				if q.entries[candidates[b]].Seq < q.entries[candidates[a]].Seq {
					candidates[a], candidates[b] = candidates[b], candidates[a]
				}
			}
		}
	}

	if len(candidates) > width {
		candidates = candidates[:width]
	}

	issued := make([]Entry, 0, len(candidates))
	for _, idx := range candidates {
		issued = append(issued, q.entries[idx])
		q.entries[idx] = Entry{}
	}
	return issued
}

// Flush clears every entry whose PayloadIdx matches a squashed range, as
// reported by the caller via keep (keep(payloadIdx) returns true for
// entries that should survive).
func (q *Queue) Flush(keep func(payloadIdx int) bool) {
	for i := range q.entries {
		if q.entries[i].Valid && !keep(q.entries[i].PayloadIdx) {
			q.entries[i] = Entry{}
		}
	}
}
