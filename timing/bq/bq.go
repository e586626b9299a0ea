// Package bq implements the branch queue: a circular FIFO of in-flight
// branch contexts, one per unresolved branch, used to restore predictor
// state precisely on a misprediction. A "tag" (index, phase) pair
// identifies a slot uniquely across ring wraps.
package bq

import "github.com/sarchlab/cprsim/insts"

// Entry captures everything needed to train the predictors from where
// the prediction was made, and to roll them back precisely on a squash.
type Entry struct {
	Kind insts.BranchKind

	// Precise predictor state to roll back to if this branch is squashed:
	// the BHR/TOS as they stood immediately before this branch entered
	// the pipeline.
	PreciseCondBHR  uint64
	PreciseIndirBHR uint64
	PreciseRASTOS   uint64

	// State the prediction was made from, for training.
	FetchPC      uint64
	FetchCondBHR uint64
	FetchIndirBHR uint64

	Taken    bool
	NextPC   uint64
	Mispredicted bool

	// Marked is set by Mark to flag this branch as already verified
	// against the reference model, and read back by IsMarked. The
	// pipeline calls neither, and retirement trains the predictor
	// regardless of it.
	Marked bool
}

// Tag identifies a branch queue slot across wraps: Index alone is
// ambiguous once the queue wraps, so Phase (toggled on each wrap)
// disambiguates a stale tag from a live one at the same index.
type Tag struct {
	Index int
	Phase bool
}

// Queue is a circular FIFO of branch contexts.
type Queue struct {
	entries    []Entry
	head, tail int
	headPhase  bool
	tailPhase  bool
	count      int
}

// New creates a Queue with the given capacity (the maximum number of
// unresolved branches in flight at once).
func New(capacity int) *Queue {
	return &Queue{entries: make([]Entry, capacity)}
}

// Capacity returns the number of slots.
func (q *Queue) Capacity() int { return len(q.entries) }

// Full reports whether the queue has no free slot.
func (q *Queue) Full() bool { return q.count == len(q.entries) }

// Empty reports whether the queue has no occupied slot.
func (q *Queue) Empty() bool { return q.count == 0 }

// Push allocates the next slot for a newly predicted branch and returns
// its tag. The caller fills in the Entry via At(tag).
func (q *Queue) Push() Tag {
	if q.Full() {
		panic("bq: Push on a full queue")
	}
	tag := Tag{Index: q.tail, Phase: q.tailPhase}
	q.entries[tag.Index] = Entry{}
	q.tail++
	if q.tail == len(q.entries) {
		q.tail = 0
		q.tailPhase = !q.tailPhase
	}
	q.count++
	return tag
}

// At returns a pointer to the entry at tag for in-place mutation.
func (q *Queue) At(tag Tag) *Entry {
	return &q.entries[tag.Index]
}

// Pop retires the oldest (head) branch and returns its tag.
func (q *Queue) Pop() Tag {
	if q.Empty() {
		panic("bq: Pop on an empty queue")
	}
	tag := Tag{Index: q.head, Phase: q.headPhase}
	q.head++
	if q.head == len(q.entries) {
		q.head = 0
		q.headPhase = !q.headPhase
	}
	q.count--
	return tag
}

// HeadTag returns the tag of the oldest occupied slot without popping it.
func (q *Queue) HeadTag() (tag Tag, ok bool) {
	if q.Empty() {
		return Tag{}, false
	}
	return Tag{Index: q.head, Phase: q.headPhase}, true
}

// Rollback sets tail to the squashing branch's tag, discarding that slot
// and every branch younger than it; the caller pushes again to re-insert
// the resolved branch. doChecks verifies the target
// tag is actually still live (between head and tail) before rolling
// back, matching the reference model's defensive check.
func (q *Queue) Rollback(tag Tag, doChecks bool) {
	if doChecks && !q.contains(tag) {
		panic("bq: Rollback to a tag that is not in the live window")
	}
	q.tail = tag.Index
	q.tailPhase = tag.Phase
	// Recompute count from the new tail relative to head.
	if q.tail >= q.head {
		if q.tailPhase == q.headPhase {
			q.count = q.tail - q.head
		} else {
			q.count = len(q.entries) - q.head + q.tail
		}
	} else {
		q.count = len(q.entries) - q.head + q.tail
	}
}

func (q *Queue) contains(tag Tag) bool {
	if q.Empty() {
		return false
	}
	if q.head < q.tail {
		return tag.Index >= q.head && tag.Index < q.tail && tag.Phase == q.headPhase
	}
	// wrapped
	inHeadHalf := tag.Index >= q.head && tag.Phase == q.headPhase
	inTailHalf := tag.Index < q.tail && tag.Phase == q.tailPhase
	return inHeadHalf || inTailHalf
}

// Mark flags the entry at tag as already-verified. doChecks mirrors
// Rollback's defensive check that tag still names a live slot.
func (q *Queue) Mark(tag Tag, doChecks bool) {
	if doChecks && !q.contains(tag) {
		panic("bq: Mark on a tag that is not in the live window")
	}
	q.entries[tag.Index].Marked = true
}

// IsMarked reports whether the entry at tag has already been verified.
func (q *Queue) IsMarked(tag Tag) bool {
	return q.entries[tag.Index].Marked
}

// Flush empties the queue entirely, returning how many entries were
// discarded.
func (q *Queue) Flush() int {
	n := q.count
	q.head, q.tail = 0, 0
	q.headPhase, q.tailPhase = false, false
	q.count = 0
	return n
}

// Len returns the number of occupied slots.
func (q *Queue) Len() int { return q.count }
