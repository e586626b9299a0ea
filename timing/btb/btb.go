// Package btb implements the branch target buffer: a 3-D bank/set/way
// array with true-LRU replacement.
package btb

import "github.com/sarchlab/cprsim/insts"

// Entry is one BTB slot: metadata for hit/miss and replacement, plus the
// branch's classification and predicted target.
type Entry struct {
	Valid bool
	Tag   uint64
	LRU   uint64 // higher = more recently used

	Kind   insts.BranchKind
	Target uint64
}

// BTB is a banks x sets x ways array of Entry, indexed by PC.
type BTB struct {
	banks, sets, assoc int
	log2banks          uint64
	log2sets           uint64
	table              [][][]Entry // [bank][set][way]
	clock              uint64      // monotonically increasing LRU timestamp source
}

// New creates a BTB with numEntries total entries split across banks
// banks and assoc ways per set (sets = numEntries / (banks*assoc)).
func New(numEntries, banks, assoc int) *BTB {
	if banks < 1 {
		banks = 1
	}
	if assoc < 1 {
		assoc = 1
	}
	sets := numEntries / (banks * assoc)
	if sets < 1 {
		sets = 1
	}
	table := make([][][]Entry, banks)
	for b := range table {
		table[b] = make([][]Entry, sets)
		for s := range table[b] {
			table[b][s] = make([]Entry, assoc)
		}
	}
	return &BTB{
		banks: banks, sets: sets, assoc: assoc,
		log2banks: log2(uint64(banks)),
		log2sets:  log2(uint64(sets)),
		table:     table,
	}
}

func log2(v uint64) uint64 {
	var n uint64
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// convert splits pc into its bank and within-bank index (the remaining
// high bits serve as the tag).
func (t *BTB) convert(pc uint64) (bank, index uint64) {
	shifted := pc >> 2 // instructions are 4-byte aligned
	bank = shifted & (uint64(t.banks) - 1)
	index = shifted >> t.log2banks
	return bank, index
}

func (t *BTB) setAndTag(index uint64) (set, tag uint64) {
	return index & (uint64(t.sets) - 1), index >> t.log2sets
}

// Lookup searches for pc's entry. ok is false on a miss.
func (t *BTB) Lookup(pc uint64) (e Entry, ok bool) {
	bank, index := t.convert(pc)
	set, tag := t.setAndTag(index)
	row := t.table[bank][set]
	for way := range row {
		if row[way].Valid && row[way].Tag == tag {
			t.updateLRU(bank, set, way)
			return row[way], true
		}
	}
	return Entry{}, false
}

// Update installs or refreshes pc's entry with kind/target, evicting the
// true-LRU way in its set if no way is free or already holds this tag.
func (t *BTB) Update(pc uint64, kind insts.BranchKind, target uint64) {
	bank, index := t.convert(pc)
	set, tag := t.setAndTag(index)
	row := t.table[bank][set]

	way := -1
	for i := range row {
		if row[i].Valid && row[i].Tag == tag {
			way = i
			break
		}
	}
	if way == -1 {
		way = t.findVictim(bank, set)
	}
	row[way] = Entry{Valid: true, Tag: tag, Kind: kind, Target: target}
	t.updateLRU(bank, set, way)
}

// Invalidate removes pc's entry, if present.
func (t *BTB) Invalidate(pc uint64) {
	bank, index := t.convert(pc)
	set, tag := t.setAndTag(index)
	row := t.table[bank][set]
	for way := range row {
		if row[way].Valid && row[way].Tag == tag {
			row[way] = Entry{}
		}
	}
}

func (t *BTB) findVictim(bank, set uint64) int {
	row := t.table[bank][set]
	for way := range row {
		if !row[way].Valid {
			return way
		}
	}
	victim := 0
	oldest := row[0].LRU
	for way := 1; way < len(row); way++ {
		if row[way].LRU < oldest {
			oldest = row[way].LRU
			victim = way
		}
	}
	return victim
}

func (t *BTB) updateLRU(bank, set uint64, way int) {
	t.clock++
	t.table[bank][set][way].LRU = t.clock
}
