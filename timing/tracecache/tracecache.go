// Package tracecache implements the fetch unit's trace cache, in two
// modes: an "oracle" mode that always supplies the correct next-fetch
// PC (useful for isolating other components' effects when measuring
// timing), and a tagged-associative mode that behaves like a real trace
// predictor with hits/misses/training.
package tracecache

// Mode selects how the cache answers a lookup.
type Mode uint8

const (
	// Oracle always returns the true next-fetch PC handed to Train,
	// regardless of what was looked up — it exists to let the rest of
	// the pipeline be timed as if fetch were perfect.
	Oracle Mode = iota
	// Tagged is a real tagged-associative predictor: it must be trained
	// before it can hit, and can return a stale prediction.
	Tagged
)

type entry struct {
	valid bool
	tag   uint64
	next  uint64
	lru   uint64
}

// Cache predicts the next fetch PC for an entry (start-of-block) PC.
type Cache struct {
	mode  Mode
	sets  int
	ways  int
	table [][]entry
	clock uint64

	oracleNext uint64
	oracleSet  bool
}

// New creates a Cache with the given number of sets/ways. mode selects
// Oracle or Tagged behavior.
func New(mode Mode, sets, ways int) *Cache {
	if sets < 1 {
		sets = 1
	}
	if ways < 1 {
		ways = 1
	}
	table := make([][]entry, sets)
	for i := range table {
		table[i] = make([]entry, ways)
	}
	return &Cache{mode: mode, sets: sets, ways: ways, table: table}
}

// Lookup predicts the next fetch PC after pc. ok is false on a Tagged
// miss; Oracle mode is always ok once Train has been called at least
// once.
func (c *Cache) Lookup(pc uint64) (next uint64, ok bool) {
	if c.mode == Oracle {
		return c.oracleNext, c.oracleSet
	}

	set := pc % uint64(c.sets)
	tag := pc / uint64(c.sets)
	row := c.table[set]
	for way := range row {
		if row[way].valid && row[way].tag == tag {
			c.touch(int(set), way)
			return row[way].next, true
		}
	}
	return 0, false
}

// Train records the true outcome: pc's block was followed by next.
func (c *Cache) Train(pc, next uint64) {
	if c.mode == Oracle {
		c.oracleNext = next
		c.oracleSet = true
		return
	}

	set := pc % uint64(c.sets)
	tag := pc / uint64(c.sets)
	row := c.table[set]

	way := -1
	for i := range row {
		if row[i].valid && row[i].tag == tag {
			way = i
			break
		}
	}
	if way == -1 {
		way = c.findVictim(int(set))
	}
	row[way] = entry{valid: true, tag: tag, next: next}
	c.touch(int(set), way)
}

func (c *Cache) findVictim(set int) int {
	row := c.table[set]
	for way := range row {
		if !row[way].valid {
			return way
		}
	}
	victim := 0
	oldest := row[0].lru
	for way := 1; way < len(row); way++ {
		if row[way].lru < oldest {
			oldest = row[way].lru
			victim = way
		}
	}
	return victim
}

func (c *Cache) touch(set, way int) {
	c.clock++
	c.table[set][way].lru = c.clock
}
