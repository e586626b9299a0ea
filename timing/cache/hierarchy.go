package cache

// cacheBacking adapts a *Cache to the BackingStore interface so one cache
// level can sit behind another in a hierarchy. Reads/writes move in
// 8-byte (or smaller, for a final partial chunk) pieces since Cache's
// Read/Write operate on a uint64 payload. No timing is propagated here:
// Access on the issuing level charges only its own MissLatency for "the
// rest of the hierarchy", a hit or miss in a lower level adds no cycles,
// and no lower-level MHSR is allocated.
type cacheBacking struct {
	cache *Cache
}

func (b *cacheBacking) Read(addr uint64, size int) []byte {
	out := make([]byte, size)
	for off := 0; off < size; {
		chunk := size - off
		if chunk > 8 {
			chunk = 8
		}
		result := b.cache.Read(addr+uint64(off), chunk)
		for i := 0; i < chunk; i++ {
			out[off+i] = byte(result.Data >> (i * 8))
		}
		off += chunk
	}
	return out
}

func (b *cacheBacking) Write(addr uint64, data []byte) {
	for off := 0; off < len(data); {
		chunk := len(data) - off
		if chunk > 8 {
			chunk = 8
		}
		var v uint64
		for i := 0; i < chunk; i++ {
			v |= uint64(data[off+i]) << (i * 8)
		}
		b.cache.Write(addr+uint64(off), chunk, v)
		off += chunk
	}
}

// Hierarchy composes an L1-I, L1-D, L2, and L3 from the generic cache
// timing model (Cache.Access), the way the core is expected to (spec §1,
// §2 C13). L2 and L3 are shared by L1-I and L1-D misses. Either level is
// left out (falling straight through to memory) by clearing HasL2 or
// HasL3 in HierarchyConfig; the CLI has no switch for this.
type Hierarchy struct {
	L1I, L1D *Cache
	L2, L3   *Cache // nil if that level doesn't exist (HasL2/HasL3 false)

	mhsrI, mhsrD, mhsr2, mhsr3 *MHSR
	memLatency                 uint64
}

// HierarchyConfig bundles per-level cache configs, MHSR port counts, and
// whether L2/L3 are present.
type HierarchyConfig struct {
	L1I, L1D, L2, L3   Config
	HasL2, HasL3       bool
	MHSRsI, MHSRsD     int
	MHSRs2, MHSRs3     int
	MemoryLatency      uint64
}

// DefaultHierarchyConfig composes timing/cache's M2-derived per-level
// defaults (the Default*Config constructors) plus L3 and main-memory
// latency, consistent with timing/latency.DefaultTimingConfig.
func DefaultHierarchyConfig() HierarchyConfig {
	return HierarchyConfig{
		L1I:           DefaultL1IConfig(),
		L1D:           DefaultL1DConfig(),
		L2:            DefaultL2Config(),
		L3:            Config{Size: 32 * 1024 * 1024, Associativity: 16, BlockSize: 128, HitLatency: 30, MissLatency: 150},
		HasL2:         true,
		HasL3:         true,
		MHSRsI:        4,
		MHSRsD:        8,
		MHSRs2:        16,
		MHSRs3:        16,
		MemoryLatency: 150,
	}
}

// NewHierarchy builds a cache hierarchy backed by mem. L2/L3 chain into
// each other and finally into mem according to HasL2/HasL3.
func NewHierarchy(cfg HierarchyConfig, mem BackingStore) *Hierarchy {
	h := &Hierarchy{
		mhsrI:      NewMHSR(cfg.MHSRsI),
		mhsrD:      NewMHSR(cfg.MHSRsD),
		mhsr2:      NewMHSR(cfg.MHSRs2),
		mhsr3:      NewMHSR(cfg.MHSRs3),
		memLatency: cfg.MemoryLatency,
	}

	backing := mem
	if cfg.HasL3 {
		h.L3 = New(cfg.L3, mem)
		backing = &cacheBacking{cache: h.L3}
	}
	if cfg.HasL2 {
		h.L2 = New(cfg.L2, backing)
		backing = &cacheBacking{cache: h.L2}
	}
	h.L1I = New(cfg.L1I, backing)
	h.L1D = New(cfg.L1D, backing)
	return h
}

// AccessI performs an instruction fetch through L1-I (and transitively
// L2/L3 on a miss, via the Cache's own backing-store chain), returning
// whether it hit in L1-I and the cycle the whole access resolves.
func (h *Hierarchy) AccessI(cycle, addr uint64, size int) (hit bool, resolveCycle uint64) {
	return h.L1I.Access(cycle, addr, size, false, h.mhsrI)
}

// AccessD performs a data access through L1-D.
func (h *Hierarchy) AccessD(cycle, addr uint64, size int, isWrite bool) (hit bool, resolveCycle uint64) {
	return h.L1D.Access(cycle, addr, size, isWrite, h.mhsrD)
}

// Tick retires completed misses across every level's MHSR, freeing ports.
func (h *Hierarchy) Tick(cycle uint64) {
	h.mhsrI.Retire(cycle)
	h.mhsrD.Retire(cycle)
	h.mhsr2.Retire(cycle)
	h.mhsr3.Retire(cycle)
}
