// Package dragon implements the Dragon write-update coherence protocol:
// a Read bus transaction for load misses and an Update bus transaction
// that broadcasts stores to every other sharer.
package dragon

import (
	"log"

	"github.com/sarchlab/snoopsim/cacheline"
	"github.com/sarchlab/snoopsim/coherence"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/instruction"
	"github.com/sarchlab/snoopsim/request"
	"github.com/sarchlab/snoopsim/stats"
)

// Line states: Invalid, Exclusive, SharedClean, SharedModified,
// Modified.
const (
	Invalid                            = cacheline.Invalid
	Exclusive      cacheline.LineState = 1
	SharedClean    cacheline.LineState = 2
	SharedModified cacheline.LineState = 3
	Modified       cacheline.LineState = 4
)

// PerWordUpdateCycles is the cost of broadcasting one dirtied word to a
// sharer.
const PerWordUpdateCycles = 2

// StateString names a line state for logs and diagnostics.
func StateString(s cacheline.LineState) string {
	switch s {
	case Invalid:
		return "Invalid"
	case Exclusive:
		return "Exclusive"
	case SharedClean:
		return "SharedClean"
	case SharedModified:
		return "SharedModified"
	case Modified:
		return "Modified"
	default:
		return "Unknown"
	}
}

// System is a Dragon memory system: one per simulation run, shared by all
// cores.
type System struct {
	eng coherence.Engine
}

// New builds a Dragon System over geo for numCores cores, reporting into
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
		if line.State == SharedClean || line.State == SharedModified {
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

	// Store from SharedClean/SharedModified: broadcast an update,
	// deferring the state transition to bus processing.
	tx := request.NewBusTransaction(req, request.Update, setIdx, way, 0)
	s.eng.EnqueueBusTransaction(tx)
}

func (s *System) handleMiss(req request.MemoryRequest, setIdx int) {
	arr := s.eng.Arrays[req.CoreNum]
	s.eng.Report.Cores[req.CoreNum].CacheMisses++

	way := arr.PickVictim(setIdx)
	line := arr.Line(setIdx, way)

	startingCycles := 0
	if line.State == Modified || line.State == SharedModified {
		startingCycles += coherence.WriteBackCycles
		s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
	}

	line.Tag = s.eng.Geo.Tag(req.Address)
	line.State = Invalid // pre-allocation; real state lands during bus processing.

	op := request.Read
	if req.Kind == instruction.Store {
		op = request.Update
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
		s.processLoadMiss(tx)
	case request.Update:
		s.processStore(tx)
	default:
		log.Panicf("dragon: unexpected bus op %s on a Dragon transaction", tx.Op)
	}
	tx.Processed = true
}

func (s *System) processLoadMiss(tx *request.BusTransaction) {
	coreNum := tx.Request.CoreNum
	line := s.eng.Arrays[coreNum].Line(tx.SetIdx, tx.Way)

	foundOther := false
	for _, other := range s.eng.OtherArrays(coreNum) {
		otherSetIdx, otherWay, ok := other.Array.Lookup(tx.Request.Address)
		if !ok {
			continue
		}
		otherLine := other.Array.Line(otherSetIdx, otherWay)

		switch otherLine.State {
		case Modified, SharedModified:
			tx.RemainingCycles += coherence.WriteBackCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
			otherLine.State = SharedModified
		case Exclusive:
			otherLine.State = SharedClean
		case SharedClean:
			// Already a clean sharer; no transition needed.
		default:
			log.Panicf("dragon: bus-supplied copy for core %d found in state %s", other.CoreNum, StateString(otherLine.State))
		}
		otherLine.LastUsed = s.eng.Clock.Now()
		foundOther = true
	}

	if foundOther {
		s.eng.Report.SharedAccess++
		tx.RemainingCycles += coherence.BlockTransferCycles(s.eng.Geo.WordsPerBlock) + coherence.HitCycles
		s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		line.State = SharedClean
	} else {
		s.eng.Report.PrivateAccess++
		tx.RemainingCycles += coherence.MemCycles + coherence.HitCycles
		s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		line.State = Exclusive
	}
	line.LastUsed = s.eng.Clock.Now()
}

func (s *System) processStore(tx *request.BusTransaction) {
	coreNum := tx.Request.CoreNum
	line := s.eng.Arrays[coreNum].Line(tx.SetIdx, tx.Way)
	requesterHadLine := line.State != Invalid

	s.eng.Report.BusInvalidationsOrUpdates++

	foundOther := false
	blockTransferCharged := false
	for _, other := range s.eng.OtherArrays(coreNum) {
		otherSetIdx, otherWay, ok := other.Array.Lookup(tx.Request.Address)
		if !ok {
			continue
		}
		otherLine := other.Array.Line(otherSetIdx, otherWay)

		if otherLine.State == Modified || otherLine.State == SharedModified {
			tx.RemainingCycles += coherence.WriteBackCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		}
		otherLine.State = SharedClean
		otherLine.LastUsed = s.eng.Clock.Now()

		tx.RemainingCycles += PerWordUpdateCycles
		s.eng.Report.LogBusTraffic(geometry.WordSizeBytes)

		if !requesterHadLine && !blockTransferCharged {
			tx.RemainingCycles += coherence.BlockTransferCycles(s.eng.Geo.WordsPerBlock)
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
			blockTransferCharged = true
		}

		foundOther = true
	}

	if foundOther {
		s.eng.Report.SharedAccess++
		line.State = SharedModified
	} else {
		s.eng.Report.PrivateAccess++
		if !requesterHadLine {
			tx.RemainingCycles += coherence.MemCycles
			s.eng.Report.LogBusTraffic(s.eng.Geo.BlockBytes)
		}
		line.State = Modified
	}

	line.LastUsed = s.eng.Clock.Now()
	tx.RemainingCycles += coherence.HitCycles
}
