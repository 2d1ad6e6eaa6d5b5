// Package mesi implements the MESI invalidation coherence protocol:
// BusRd/BusRdX transactions over the shared coherence engine.
package mesi

import (
	"log"

	"github.com/sarchlab/snoopsim/cacheline"
	"github.com/sarchlab/snoopsim/coherence"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/instruction"
	"github.com/sarchlab/snoopsim/request"
	"github.com/sarchlab/snoopsim/stats"
)

// Line states: Invalid, Exclusive, Shared, Modified.
const (
	Invalid                       = cacheline.Invalid
	Exclusive cacheline.LineState = 1
	Shared    cacheline.LineState = 2
	Modified  cacheline.LineState = 3
)

// StateString names a line state for logs and diagnostics.
func StateString(s cacheline.LineState) string {
	switch s {
	case Invalid:
		return "Invalid"
	case Exclusive:
		return "Exclusive"
	case Shared:
		return "Shared"
	case Modified:
		return "Modified"
	default:
		return "Unknown"
	}
}

// System is a MESI memory system: one per simulation run, shared by all
// cores.
type System struct {
	eng coherence.Engine
}

// New builds a MESI System over geo for numCores cores, reporting into
// report and stamping LastUsed from clock.
func New(geo geometry.Geometry, numCores int, report *stats.Report, clock coherence.Clock) *System {
	return &System{eng: coherence.NewEngine(geo, numCores, report, clock)}
}

// Tick implements coherence.MemorySystem.
func (s *System) Tick(incoming []request.MemoryRequest) []request.MemoryRequest {
	return s.eng.Tick(s, incoming)
}

// HandleIncomingRequest implements coherence.Hooks, classifying a
// freshly-arrived request as a hit or a miss against the requesting
// core's own line.
func (s *System) HandleIncomingRequest(req request.MemoryRequest) {
	arr := s.eng.Arrays[req.CoreNum]
	setIdx, way, ok := arr.Lookup(req.Address)
	if ok {
		s.handleHit(req, setIdx, way)
		return
	}
	s.handleMiss(req, setIdx)
}

func (s *System) handleHit(req request.MemoryRequest, setIdx, way int) {
	arr := s.eng.Arrays[req.CoreNum]
	line := arr.Line(setIdx, way)
	s.eng.Report.Cores[req.CoreNum].CacheHits++

	if req.Kind == instruction.Load {
		if line.State == Shared {
			s.eng.Report.SharedAccess++
		} else {
			s.eng.Report.PrivateAccess++
		}
		line.LastUsed = s.eng.Clock.Now()
		s.eng.EnqueueHit(req)
		return
	}

	if line.State == Exclusive || line.State == Modified {
		s.eng.Report.PrivateAccess++
		line.State = Modified
		line.LastUsed = s.eng.Clock.Now()
		s.eng.EnqueueHit(req)
		return
	}

	// Store from Shared: need to invalidate everyone else first.
	s.eng.Report.SharedAccess++
	tx := request.NewBusTransaction(req, request.ReadExclusive, setIdx, way, 0)
	s.eng.EnqueueBusTransaction(tx)
}

func (s *System) handleMiss(req request.MemoryRequest, setIdx int) {
	arr := s.eng.Arrays[req.CoreNum]
	s.eng.Report.Cores[req.CoreNum].CacheMisses++

	way := arr.PickVictim(setIdx)
	line := arr.Line(setIdx, way)

	startingCycles := 0
	if line.State == Modified {
		startingCycles += coherence.WriteBackCycles
		s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
	}

	line.Tag = s.eng.Geo.Tag(req.Address)
	line.State = Invalid // pre-allocation; real state lands during bus processing.

	op := request.Read
	if req.Kind == instruction.Store {
		op = request.ReadExclusive
	}
	tx := request.NewBusTransaction(req, op, setIdx, way, startingCycles)
	s.eng.EnqueueBusTransaction(tx)
}

// ProcessBusTransaction implements coherence.Hooks, resolving a
// transaction against every other core's cache once it reaches the
// head of the bus queue.
func (s *System) ProcessBusTransaction(tx *request.BusTransaction) {
	switch tx.Op {
	case request.Read:
		s.processBusRd(tx)
	case request.ReadExclusive:
		s.processBusRdX(tx)
	default:
		log.Panicf("mesi: unexpected bus op %s on a MESI transaction", tx.Op)
	}
	tx.Processed = true
}

func (s *System) processBusRd(tx *request.BusTransaction) {
	coreNum := tx.Request.CoreNum
	line := s.eng.Arrays[coreNum].Line(tx.SetIdx, tx.Way)

	for _, other := range s.eng.OtherArrays(coreNum) {
		otherSetIdx, otherWay, ok := other.Array.Lookup(tx.Request.Address)
		if !ok {
			continue
		}
		otherLine := other.Array.Line(otherSetIdx, otherWay)

		switch otherLine.State {
		case Modified:
			tx.RemainingCycles += coherence.WriteBackCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
			fallthrough
		case Exclusive, Shared:
			tx.RemainingCycles += coherence.BlockTransferCycles(s.eng.Geo.WordsPerBlock) + coherence.HitCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		default:
			log.Panicf("mesi: bus-supplied copy for core %d found in state %s", other.CoreNum, StateString(otherLine.State))
		}

		s.eng.Report.SharedAccess++
		now := s.eng.Clock.Now()
		line.State = Shared
		line.LastUsed = now
		otherLine.State = Shared
		otherLine.LastUsed = now
		return
	}

	// No other cache held a copy: fetch from memory.
	s.eng.Report.PrivateAccess++
	line.State = Exclusive
	line.LastUsed = s.eng.Clock.Now()
	tx.RemainingCycles += coherence.MemCycles + coherence.HitCycles
	s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
}

func (s *System) processBusRdX(tx *request.BusTransaction) {
	coreNum := tx.Request.CoreNum
	line := s.eng.Arrays[coreNum].Line(tx.SetIdx, tx.Way)

	s.eng.Report.BusInvalidationsOrUpdates++

	foundOther := false
	for _, other := range s.eng.OtherArrays(coreNum) {
		otherSetIdx, otherWay, ok := other.Array.Lookup(tx.Request.Address)
		if !ok {
			continue
		}
		otherLine := other.Array.Line(otherSetIdx, otherWay)
		if otherLine.State == Modified {
			tx.RemainingCycles += coherence.WriteBackCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		}
		otherLine.State = Invalid
		foundOther = true
	}

	if foundOther {
		s.eng.Report.SharedAccess++
	} else {
		s.eng.Report.PrivateAccess++
	}

	if line.State == Invalid {
		if foundOther {
			tx.RemainingCycles += coherence.BlockTransferCycles(s.eng.Geo.WordsPerBlock)
		} else {
			tx.RemainingCycles += coherence.MemCycles
		}
		s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
	}

	line.State = Modified
	line.LastUsed = s.eng.Clock.Now()
	tx.RemainingCycles += coherence.HitCycles
}
