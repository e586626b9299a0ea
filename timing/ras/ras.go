// Package ras implements the return-address stack speculative predictor:
// a circular buffer of return addresses pushed by calls and popped by
// returns, exposing its top-of-stack index so the core can checkpoint and
// restore it on a squash.
package ras

// Stack is a circular-buffer return-address stack.
type Stack struct {
	entries []uint64
	tos     uint64 // index of the most-recently-pushed entry
	size    uint64
}

// New creates a Stack with the given number of entries.
func New(size uint64) *Stack {
	if size == 0 {
		size = 1
	}
	return &Stack{entries: make([]uint64, size), size: size}
}

// Push records a call's return address as the new top of stack.
func (s *Stack) Push(addr uint64) {
	s.tos = (s.tos + 1) % s.size
	s.entries[s.tos] = addr
}

// Pop returns the predicted return address and retires it from the
// stack. Calling Pop on an empty conceptual stack (more returns than
// calls seen) simply yields whatever is circularly underneath; RAS
// predictors are speculative by nature and the core always verifies
// against the functional model.
func (s *Stack) Pop() uint64 {
	addr := s.entries[s.tos]
	s.tos = (s.tos - 1 + s.size) % s.size
	return addr
}

// Peek examines the predicted return address without popping it.
func (s *Stack) Peek() uint64 {
	return s.entries[s.tos]
}

// TOS returns the current top-of-stack index, for checkpointing.
func (s *Stack) TOS() uint64 { return s.tos }

// SetTOS restores a previously saved top-of-stack index, e.g. on a
// misprediction recovery.
func (s *Stack) SetTOS(tos uint64) { s.tos = tos % s.size }
