// Package gshare implements a gshare conditional-branch predictor: a
// table of 2-bit saturating counters indexed by XOR(PC, branch history
// register), generalized to configurable PC/BHR bit widths.
package gshare

// Counter states for the 2-bit saturating predictor.
const (
	StrongNotTaken uint8 = 0
	WeakNotTaken   uint8 = 1
	WeakTaken      uint8 = 2
	StrongTaken    uint8 = 3
)

// Predictor is a gshare-indexed table of 2-bit counters plus the
// speculative branch history register used to index it.
type Predictor struct {
	counters []uint8
	bhr      uint64
	bhrMSB   uint64
	pcMask   uint64
	bhrShamt uint64
}

// New creates a predictor with a pcBits-wide PC field and a bhrBits-wide
// branch history register folded into the index via XOR.
func New(pcBits, bhrBits uint64) *Predictor {
	size := uint64(1) << pcBits
	var shamt uint64
	if pcBits > bhrBits {
		shamt = pcBits - bhrBits
	}
	return &Predictor{
		counters: make([]uint8, size),
		pcMask:   size - 1,
		bhrShamt: shamt,
		bhrMSB:   uint64(1) << (bhrBits - 1),
	}
}

// TableSize returns the number of counter entries.
func (p *Predictor) TableSize() int { return len(p.counters) }

// Index computes the gshare index for pc using the predictor's own
// speculative BHR.
func (p *Predictor) Index(pc uint64) uint64 {
	return p.index(pc, p.bhr)
}

// IndexWithBHR computes the gshare index for pc using a caller-supplied
// BHR snapshot, for training a counter from the BHR recorded at fetch
// time rather than whatever the BHR has become since.
func (p *Predictor) IndexWithBHR(pc, bhr uint64) uint64 {
	return p.index(pc, bhr)
}

func (p *Predictor) index(pc, bhr uint64) uint64 {
	return (pc ^ (bhr << p.bhrShamt)) & p.pcMask
}

// Predict returns the taken/not-taken prediction at pc using the
// speculative BHR, without updating any state.
func (p *Predictor) Predict(pc uint64) bool {
	return p.counters[p.Index(pc)] >= WeakTaken
}

// Train updates the counter the prediction for (pc, bhr) actually came
// from, per the rule that a predictor must always be trained at the same
// index it was read from, not wherever the BHR has drifted to since.
func (p *Predictor) Train(pc, bhr uint64, taken bool) {
	idx := p.index(pc, bhr)
	c := p.counters[idx]
	if taken {
		if c < StrongTaken {
			c++
		}
	} else {
		if c > StrongNotTaken {
			c--
		}
	}
	p.counters[idx] = c
}

// UpdateBHR shifts a resolved outcome into the predictor's own
// speculative BHR.
func (p *Predictor) UpdateBHR(taken bool) {
	p.bhr = p.UpdateMyBHR(p.bhr, taken)
}

// UpdateMyBHR returns bhr shifted left with taken folded in at bit 0, for
// updating a caller-owned BHR snapshot (e.g. one carried per in-flight
// branch) without touching the predictor's own speculative BHR.
func (p *Predictor) UpdateMyBHR(bhr uint64, taken bool) uint64 {
	bhr <<= 1
	if taken {
		bhr |= 1
	}
	return bhr & (p.bhrMSB<<1 - 1)
}

// BHR returns the predictor's current speculative branch history
// register, for checkpointing.
func (p *Predictor) BHR() uint64 { return p.bhr }

// SetBHR restores the speculative branch history register, e.g. on a
// misprediction recovery.
func (p *Predictor) SetBHR(bhr uint64) { p.bhr = bhr }
