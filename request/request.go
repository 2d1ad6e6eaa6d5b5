// Package request defines the value types that flow between the
// processor driver and the memory system: memory requests and the bus
// transactions they spawn.
package request

import (
	"github.com/rs/xid"

	"github.com/sarchlab/snoopsim/instruction"
)

// MemoryRequest is created by the processor driver and consumed by the
// memory system. Ownership transfers to the memory system on emission;
// the driver never mutates a request it has emitted, it only watches for
// it to come back through a completion batch.
type MemoryRequest struct {
	ID      string
	CoreNum int
	Kind    instruction.Kind // Load or Store only
	Address uint32
}

// NewMemoryRequest stamps a fresh, globally unique ID onto a request. The
// driver's duplicate-emission guard allows one outstanding request per
// core and never compares IDs: the ID exists purely for trace/debug
// correlation.
func NewMemoryRequest(coreNum int, kind instruction.Kind, addr uint32) MemoryRequest {
	return MemoryRequest{
		ID:      xid.New().String(),
		CoreNum: coreNum,
		Kind:    kind,
		Address: addr,
	}
}

// BusOp normalises the coherence actions both protocols issue onto the
// shared bus queue into one enum, so coherence's tick machinery can stay
// protocol-agnostic. MESI only ever issues Read/ReadExclusive; Dragon
// issues Read/Update.
type BusOp int

const (
	// Read is a load miss: BusRd in MESI terms.
	Read BusOp = iota
	// ReadExclusive is a store that needs sole ownership: BusRdX in MESI
	// terms.
	ReadExclusive
	// Update is Dragon's write-update broadcast.
	Update
)

func (op BusOp) String() string {
	switch op {
	case Read:
		return "Read"
	case ReadExclusive:
		return "ReadExclusive"
	case Update:
		return "Update"
	default:
		return "Unknown"
	}
}

// BusTransaction is a single coherence action serialised through the
// FIFO bus queue. It is processed at most once across its lifetime;
// RemainingCycles is monotone-decreasing from the moment Processed flips
// true.
type BusTransaction struct {
	ID      string
	Request MemoryRequest
	Op      BusOp
	SetIdx  int
	Way     int

	Processed       bool
	RemainingCycles int
}

// NewBusTransaction creates a transaction with startingCycles already
// budgeted (e.g. a pending dirty write-back charged before the
// transaction is even processed).
func NewBusTransaction(req MemoryRequest, op BusOp, setIdx, way, startingCycles int) *BusTransaction {
	return &BusTransaction{
		ID:              xid.New().String(),
		Request:         req,
		Op:              op,
		SetIdx:          setIdx,
		Way:             way,
		RemainingCycles: startingCycles,
	}
}
