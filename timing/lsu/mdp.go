package lsu

// Predictor is the memory-dependence predictor: a PC-indexed table of
// saturating counters that decides whether a load should conservatively
// stall behind an address-unknown older store. It trains toward
// "stall" on an observed violation (a late store/load address match)
// and relaxes toward "don't stall" when a load clears without conflict.
type Predictor struct {
	counters []uint8
	mask     uint64
}

const (
	mdpMax = 3 // 2-bit saturating counter, same shape as gshare's
)

// NewPredictor creates a Predictor with the given number of entries
// (rounded up to a power of two).
func NewPredictor(entries int) *Predictor {
	size := 1
	for size < entries {
		size <<= 1
	}
	if size == 0 {
		size = 1
	}
	return &Predictor{counters: make([]uint8, size), mask: uint64(size - 1)}
}

func (p *Predictor) index(pc uint64) uint64 {
	return pc & p.mask
}

// ShouldStall reports whether pc's counter has saturated toward "stall".
func (p *Predictor) ShouldStall(pc uint64) bool {
	return p.counters[p.index(pc)] >= 2
}

// Train moves pc's counter toward stall (violation observed) or away
// from it (a load cleared without any conflict).
func (p *Predictor) Train(pc uint64, violation bool) {
	idx := p.index(pc)
	c := p.counters[idx]
	if violation {
		if c < mdpMax {
			c++
		}
	} else if c > 0 {
		c--
	}
	p.counters[idx] = c
}
