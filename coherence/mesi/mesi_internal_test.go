package mesi

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/instruction"
	"github.com/sarchlab/snoopsim/request"
	"github.com/sarchlab/snoopsim/stats"
)

type testClock struct{ cycle uint64 }

func (c *testClock) Now() uint64 { return c.cycle }
func (c *testClock) tick()       { c.cycle++ }

// runFor ticks sys numTicks times, feeding incoming only on the first
// tick, and returns every completed request seen across all of them.
func runFor(sys *System, clock *testClock, incoming []request.MemoryRequest, numTicks int) []request.MemoryRequest {
	var all []request.MemoryRequest
	for i := 0; i < numTicks; i++ {
		clock.tick()
		batch := incoming
		incoming = nil
		all = append(all, sys.Tick(batch)...)
	}
	return all
}

var _ = Describe("MESI memory system", func() {
	var (
		geo   geometry.Geometry
		clock *testClock
	)

	BeforeEach(func() {
		var err error
		geo, err = geometry.New(1024, 2, 32)
		Expect(err).NotTo(HaveOccurred())
		clock = &testClock{}
	})

	Describe("two-core read share", func() {
		It("supplies the block cache-to-cache and marks both lines shared", func() {
			report := stats.NewReport("MESI", 2)
			sys := New(geo, 2, report, clock)

			load0 := request.NewMemoryRequest(0, instruction.Load, 0x0)
			completed := runFor(sys, clock, []request.MemoryRequest{load0}, 101)
			Expect(completed).To(HaveLen(1))
			Expect(report.Cores[0].CacheMisses).To(Equal(1))

			setIdx, way0, ok := sys.eng.Arrays[0].Lookup(0x0)
			Expect(ok).To(BeTrue())
			Expect(sys.eng.Arrays[0].Line(setIdx, way0).State).To(Equal(Exclusive))

			load1 := request.NewMemoryRequest(1, instruction.Load, 0x0)
			completed = runFor(sys, clock, []request.MemoryRequest{load1}, 100)
			Expect(completed).To(HaveLen(1))
			Expect(report.SharedAccess).To(BeNumerically(">=", 1))

			_, way0After, ok0 := sys.eng.Arrays[0].Lookup(0x0)
			Expect(ok0).To(BeTrue())
			Expect(sys.eng.Arrays[0].Line(setIdx, way0After).State).To(Equal(Shared))

			_, way1, ok1 := sys.eng.Arrays[1].Lookup(0x0)
			Expect(ok1).To(BeTrue())
			Expect(sys.eng.Arrays[1].Line(setIdx, way1).State).To(Equal(Shared))
		})
	})

	Describe("write-invalidate", func() {
		It("invalidates the remote Shared copy and becomes Modified", func() {
			report := stats.NewReport("MESI", 2)
			sys := New(geo, 2, report, clock)

			setIdx, way := geo.Set(0x0), 0
			line0 := sys.eng.Arrays[0].Line(setIdx, way)
			line0.Tag, line0.State = geo.Tag(0x0), Shared
			line1 := sys.eng.Arrays[1].Line(setIdx, way)
			line1.Tag, line1.State = geo.Tag(0x0), Shared

			store0 := request.NewMemoryRequest(0, instruction.Store, 0x0)
			completed := runFor(sys, clock, []request.MemoryRequest{store0}, 2)
			Expect(completed).To(HaveLen(1))
			Expect(report.BusInvalidationsOrUpdates).To(Equal(1))
			Expect(line0.State).To(Equal(Modified))
			Expect(line1.State).To(Equal(Invalid))
		})
	})

	Describe("LRU eviction with dirty write-back", func() {
		It("charges a write-back before the miss fetch", func() {
			geoSmall, err := geometry.New(64, 2, 32) // one set, two ways
			Expect(err).NotTo(HaveOccurred())
			report := stats.NewReport("MESI", 1)
			sys := New(geoSmall, 1, report, clock)

			loadA := request.NewMemoryRequest(0, instruction.Load, 0x0)
			runFor(sys, clock, []request.MemoryRequest{loadA}, 101)

			storeA := request.NewMemoryRequest(0, instruction.Store, 0x0)
			runFor(sys, clock, []request.MemoryRequest{storeA}, 1)
			setIdx, way, ok := sys.eng.Arrays[0].Lookup(0x0)
			Expect(ok).To(BeTrue())
			Expect(sys.eng.Arrays[0].Line(setIdx, way).State).To(Equal(Modified))

			loadB := request.NewMemoryRequest(0, instruction.Load, 0x20)
			runFor(sys, clock, []request.MemoryRequest{loadB}, 101)

			trafficBefore := report.BusDataTrafficBytes
			loadC := request.NewMemoryRequest(0, instruction.Load, 0x40)
			runFor(sys, clock, []request.MemoryRequest{loadC}, 201)

			// Eviction of the Modified line charges a write-back
			// (BlockBytes) on top of the miss fetch (BlockBytes).
			Expect(report.BusDataTrafficBytes - trafficBefore).To(Equal(2 * geoSmall.BlockBytes))

			_, _, stillThere := sys.eng.Arrays[0].Lookup(0x0)
			Expect(stillThere).To(BeFalse())
		})
	})

	Describe("idempotence of silent loads", func() {
		It("produces zero bus traffic and zero misses on repeated hits", func() {
			report := stats.NewReport("MESI", 1)
			sys := New(geo, 1, report, clock)

			load := request.NewMemoryRequest(0, instruction.Load, 0x0)
			runFor(sys, clock, []request.MemoryRequest{load}, 101)

			trafficBefore := report.BusDataTrafficBytes
			missesBefore := report.Cores[0].CacheMisses

			for i := 0; i < 5; i++ {
				again := request.NewMemoryRequest(0, instruction.Load, 0x0)
				runFor(sys, clock, []request.MemoryRequest{again}, 1)
			}

			Expect(report.BusDataTrafficBytes).To(Equal(trafficBefore))
			Expect(report.Cores[0].CacheMisses).To(Equal(missesBefore))
		})
	})
})
