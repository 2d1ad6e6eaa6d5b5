package driver_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/snoopsim/coherence"
	"github.com/sarchlab/snoopsim/driver"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/instruction"
)

func repeatLoad(addr uint32, n int) []instruction.Instruction {
	insts := make([]instruction.Instruction, n)
	for i := range insts {
		insts[i] = instruction.NewLoad(addr)
	}
	return insts
}

var _ = Describe("end-to-end simulation scenarios", func() {
	var geo geometry.Geometry

	BeforeEach(func() {
		var err error
		geo, err = geometry.New(1024, 2, 32)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("single-core hit storm", func() {
		It("charges one miss and ninety-nine silent hits", func() {
			traces := [][]instruction.Instruction{repeatLoad(0x0, 100)}

			sim, err := driver.NewSimulation(coherence.MESI, geo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(report.OverallExecutionCycles).To(Equal(200))
			Expect(report.Cores[0].CacheMisses).To(Equal(1))
			Expect(report.Cores[0].CacheHits).To(Equal(99))
			Expect(report.BusDataTrafficBytes).To(Equal(geo.BlockBytes))
			Expect(report.PrivateAccess).To(BeNumerically(">=", 1))
			Expect(report.SharedAccess).To(Equal(0))
		})
	})

	Describe("two-core read share", func() {
		It("classifies the second core's load as a shared access", func() {
			traces := [][]instruction.Instruction{
				{instruction.NewLoad(0x0)},
				{instruction.NewCompute(150), instruction.NewLoad(0x0)},
			}

			sim, err := driver.NewSimulation(coherence.MESI, geo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Cores[0].CacheMisses).To(Equal(1))
			Expect(report.Cores[1].CacheMisses).To(Equal(1))
			Expect(report.SharedAccess).To(BeNumerically(">=", 1))
		})
	})

	Describe("MESI write-invalidate", func() {
		It("invalidates a remote shared copy when one core stores", func() {
			traces := [][]instruction.Instruction{
				{
					instruction.NewLoad(0x0),
					instruction.NewCompute(200),
					instruction.NewStore(0x0),
				},
				{instruction.NewCompute(150), instruction.NewLoad(0x0)},
			}

			sim, err := driver.NewSimulation(coherence.MESI, geo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(report.BusInvalidationsOrUpdates).To(BeNumerically(">=", 1))
		})
	})

	Describe("Dragon write-update", func() {
		It("broadcasts an update instead of invalidating on a store", func() {
			traces := [][]instruction.Instruction{
				{
					instruction.NewLoad(0x0),
					instruction.NewCompute(200),
					instruction.NewStore(0x0),
				},
				{instruction.NewCompute(150), instruction.NewLoad(0x0)},
			}

			sim, err := driver.NewSimulation(coherence.Dragon, geo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(report.BusInvalidationsOrUpdates).To(BeNumerically(">=", 1))
			Expect(report.SharedAccess).To(BeNumerically(">=", 1))
		})
	})

	Describe("LRU eviction with dirty write-back", func() {
		It("writes back a dirty victim before fetching its replacement", func() {
			smallGeo, err := geometry.New(64, 2, 32) // one set, two ways
			Expect(err).NotTo(HaveOccurred())

			traces := [][]instruction.Instruction{
				{
					instruction.NewLoad(0x0),
					instruction.NewStore(0x0),
					instruction.NewLoad(0x20),
					instruction.NewLoad(0x40),
				},
			}

			sim, err := driver.NewSimulation(coherence.MESI, smallGeo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Cores[0].CacheMisses).To(Equal(3))
			// The third load evicts the dirty Modified line (0x0): a
			// write-back plus the new block's fetch, both BlockBytes.
			Expect(report.BusDataTrafficBytes).To(Equal(4 * smallGeo.BlockBytes))
		})
	})

	Describe("all cores converge", func() {
		It("reports the slowest core's path as the overall cycle count", func() {
			traces := make([][]instruction.Instruction, 4)
			for i := range traces {
				traces[i] = []instruction.Instruction{
					instruction.NewLoad(uint32(i) * 0x1000),
					instruction.NewStore(uint32(i) * 0x1000),
					instruction.NewCompute(10),
				}
			}

			sim, err := driver.NewSimulation(coherence.MESI, geo, traces)
			Expect(err).NotTo(HaveOccurred())

			report, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			for i := range traces {
				Expect(report.Cores[i].LoadStoreInstructions).To(Equal(2))
				Expect(report.Cores[i].ComputeInstructions).To(Equal(1))
				Expect(report.Cores[i].ComputeCycles).To(BeNumerically(">=", 10))
			}
			Expect(report.OverallExecutionCycles).To(BeNumerically(">=", 10))
		})
	})
})
