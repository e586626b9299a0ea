package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cprsim/emu"
	"github.com/sarchlab/cprsim/timing/cache"
)

var _ = Describe("Hierarchy", func() {
	var (
		h      *cache.Hierarchy
		memory *emu.Memory
	)

	BeforeEach(func() {
		memory = emu.NewMemory()
		backing := cache.NewMemoryBacking(memory)
		cfg := cache.HierarchyConfig{
			L1I:    cache.Config{Size: 1024, Associativity: 2, BlockSize: 64, HitLatency: 1, MissLatency: 10},
			L1D:    cache.Config{Size: 1024, Associativity: 2, BlockSize: 64, HitLatency: 1, MissLatency: 10},
			L2:     cache.Config{Size: 4096, Associativity: 4, BlockSize: 64, HitLatency: 5, MissLatency: 40},
			L3:     cache.Config{Size: 16384, Associativity: 8, BlockSize: 64, HitLatency: 15, MissLatency: 100},
			HasL2:  true,
			HasL3:  true,
			MHSRsI: 2, MHSRsD: 2, MHSRs2: 4, MHSRs3: 4,
			MemoryLatency: 100,
		}
		h = cache.NewHierarchy(cfg, backing)
	})

	It("misses through L1-I on a cold fetch", func() {
		memory.Write32(0x2000, 0x91000000)

		hit, resolve := h.AccessI(0, 0x2000, 4)
		Expect(hit).To(BeFalse())
		Expect(resolve).To(Equal(uint64(10)))
	})

	It("hits L1-D once a line has been filled and retried", func() {
		memory.Write64(0x3000, 0xABCD)

		_, resolve := h.AccessD(0, 0x3000, 8, false)
		h.Tick(resolve)

		hit, _ := h.AccessD(resolve, 0x3000, 8, false)
		Expect(hit).To(BeTrue())
	})

	It("separates L1-I and L1-D miss tracking", func() {
		memory.Write32(0x4000, 1)
		memory.Write64(0x4000, 2)

		h.AccessI(0, 0x4000, 4)
		h.AccessD(0, 0x4000, 8, false)

		// distinct MHSR sets: neither should have been force-merged
		_, okI := h.AccessI(1, 0x4000, 4)
		_, okD := h.AccessD(1, 0x4000, 8, false)
		Expect(okI).To(BeNumerically(">", 0))
		Expect(okD).To(BeNumerically(">", 0))
	})
})
