package cache

// MHSR is a miss-handling status register set: it tracks outstanding
// line-fill misses for one cache level so the level can report a
// resolve cycle to callers without re-fetching from backing storage on
// every retry, and so it can signal a structural stall when all miss
// ports are already in use (a "miss under miss" beyond capacity).
type MHSR struct {
	ports     int
	inflight  map[uint64]uint64 // block-aligned addr -> resolve cycle
}

// NewMHSR creates an MHSR set with the given number of miss ports.
func NewMHSR(ports int) *MHSR {
	if ports < 1 {
		ports = 1
	}
	return &MHSR{ports: ports, inflight: make(map[uint64]uint64)}
}

// Allocate registers a miss for blockAddr that resolves at cycle+latency.
// If a miss for the same block is already outstanding, its existing
// resolve cycle is returned (the two accesses merge onto one MHSR entry).
// If no port is free and the block isn't already outstanding, ok is false:
// the caller must stall and retry next cycle without consuming a port.
func (m *MHSR) Allocate(cycle, blockAddr, latency uint64) (resolveCycle uint64, ok bool) {
	if rc, exists := m.inflight[blockAddr]; exists {
		return rc, true
	}
	if len(m.inflight) >= m.ports {
		return 0, false
	}
	rc := cycle + latency
	m.inflight[blockAddr] = rc
	return rc, true
}

// Retire releases any miss ports whose fill has completed by cycle.
func (m *MHSR) Retire(cycle uint64) {
	for addr, rc := range m.inflight {
		if cycle >= rc {
			delete(m.inflight, addr)
		}
	}
}

// Pending reports whether blockAddr already has an outstanding fill and,
// if so, its resolve cycle.
func (m *MHSR) Pending(blockAddr uint64) (resolveCycle uint64, pending bool) {
	rc, ok := m.inflight[blockAddr]
	return rc, ok
}

// FreePorts returns the number of unused miss ports.
func (m *MHSR) FreePorts() int {
	return m.ports - len(m.inflight)
}
