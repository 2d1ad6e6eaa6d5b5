// Package driver advances the per-core execution FSM one global cycle at
// a time and ticks the memory system with whatever each core emitted.
// It owns the only mutable global state in the simulator: the cycle
// counter and the aggregated Report.
package driver

import (
	"context"
	"fmt"

	"github.com/sarchlab/snoopsim/coherence"
	"github.com/sarchlab/snoopsim/coherence/dragon"
	"github.com/sarchlab/snoopsim/coherence/mesi"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/instruction"
	"github.com/sarchlab/snoopsim/request"
	"github.com/sarchlab/snoopsim/stats"
)

// Mode is a core's position in its per-tick FSM.
type Mode int

const (
	Loading Mode = iota
	Executing
	Blocked
	Completed
)

func (m Mode) String() string {
	switch m {
	case Loading:
		return "Loading"
	case Executing:
		return "Executing"
	case Blocked:
		return "Blocked"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

type core struct {
	num          int
	instructions []instruction.Instruction
	currInst     int
	mode         Mode
	inFlight     *request.MemoryRequest
}

func newCore(num int, instructions []instruction.Instruction) *core {
	return &core{num: num, instructions: instructions}
}

func (c *core) current() *instruction.Instruction {
	return &c.instructions[c.currInst]
}

// tick advances c by one global cycle, appending a memory request to
// pending if it emitted one this cycle. It returns early once c reaches
// Completed, skipping the rest of this core's work for the tick.
func (c *core) tick(report *stats.Report, pending *[]request.MemoryRequest) {
	cs := &report.Cores[c.num]

	if c.mode == Loading {
		if c.currInst >= len(c.instructions) {
			c.mode = Completed
			return
		}
		switch c.current().Kind {
		case instruction.Compute:
			cs.ComputeInstructions++
			c.mode = Executing
		default:
			cs.LoadStoreInstructions++
			c.mode = Blocked
		}
	}

	inst := c.current()
	inst.ExecutionCycles++

	if c.mode == Executing {
		if inst.ExecutionCycles >= inst.ComputeCycles {
			cs.ComputeCycles += inst.ExecutionCycles
			c.currInst++
			if c.currInst >= len(c.instructions) {
				c.mode = Completed
			} else {
				c.mode = Loading
			}
		}
	}

	if c.mode == Blocked && c.inFlight == nil {
		// Emit exactly once on the Loading → Blocked transition: the
		// guard above only lets a fresh request through, never a repeat
		// of one still in flight.
		req := request.NewMemoryRequest(c.num, inst.Kind, inst.Address)
		c.inFlight = &req
		*pending = append(*pending, req)
	}
}

// Simulation owns the global cycle counter, the per-core FSMs and the
// Report every memory-system Tick call mutates in place.
type Simulation struct {
	cores    []*core
	mem      coherence.MemorySystem
	report   *stats.Report
	cycle    uint64
	numCores int
}

// NewSimulation builds a Simulation for proto over geo, with traces
// already loaded into per-core instruction slices.
func NewSimulation(proto coherence.Protocol, geo geometry.Geometry, traces [][]instruction.Instruction) (*Simulation, error) {
	numCores := len(traces)
	if numCores == 0 {
		return nil, fmt.Errorf("driver: no core traces supplied")
	}

	report := stats.NewReport(proto.String(), numCores)

	sim := &Simulation{
		report:   report,
		numCores: numCores,
	}

	sim.cores = make([]*core, numCores)
	for i, trace := range traces {
		sim.cores[i] = newCore(i, trace)
	}

	switch proto {
	case coherence.MESI:
		sim.mem = mesi.New(geo, numCores, report, sim)
	case coherence.Dragon:
		sim.mem = dragon.New(geo, numCores, report, sim)
	default:
		return nil, fmt.Errorf("driver: unknown protocol %v", proto)
	}

	return sim, nil
}

// Now implements coherence.Clock: the cycle value live for the tick
// currently being processed.
func (s *Simulation) Now() uint64 {
	return s.cycle
}

// Report returns the Report being accumulated; valid to call mid-run for
// progress inspection, and always valid after Run returns.
func (s *Simulation) Report() *stats.Report {
	return s.report
}

// Run drives the simulation to completion, or until ctx is cancelled.
// The returned Report is the same pointer every Tick call mutated;
// OverallExecutionCycles is the cycle count at the tick every core first
// reached Completed.
func (s *Simulation) Run(ctx context.Context) (*stats.Report, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("driver: run cancelled: %w", err)
		}

		var pending []request.MemoryRequest
		for _, c := range s.cores {
			if c.mode == Completed {
				continue
			}
			c.tick(s.report, &pending)
		}

		completed := s.mem.Tick(pending)
		for _, req := range completed {
			c := s.cores[req.CoreNum]
			inst := c.current()
			s.report.Cores[c.num].IdleCycles += inst.ExecutionCycles
			c.inFlight = nil
			c.currInst++
			if c.currInst >= len(c.instructions) {
				c.mode = Completed
			} else {
				c.mode = Loading
			}
		}

		s.cycle++

		if s.allCompleted() {
			s.report.OverallExecutionCycles = int(s.cycle)
			return s.report, nil
		}
	}
}

func (s *Simulation) allCompleted() bool {
	for _, c := range s.cores {
		if c.mode != Completed {
			return false
		}
	}
	return true
}
