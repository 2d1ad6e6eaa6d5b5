// Package coherence provides the machinery shared by every snooping
// coherence protocol: the FIFO bus queue, the parallel non-bus pool, and
// the tick discipline that drains both. Protocol packages
// (coherence/mesi, coherence/dragon) hold an Engine and supply the two
// operations every snooping protocol needs to classify and settle a
// request: HandleIncomingRequest and ProcessBusTransaction.
package coherence

import (
	"github.com/sarchlab/snoopsim/cacheline"
	"github.com/sarchlab/snoopsim/geometry"
	"github.com/sarchlab/snoopsim/request"
	"github.com/sarchlab/snoopsim/stats"
)

// Fixed cycle costs shared by every protocol.
const (
	HitCycles       = 1
	MemCycles       = 100
	WriteBackCycles = 100
)

// BlockTransferCycles is the cost of a cache-to-cache block transfer:
// 2 cycles per word in the block.
func BlockTransferCycles(wordsPerBlock int) int {
	return 2 * wordsPerBlock
}

// Protocol names the coherence family a MemorySystem implements.
type Protocol int

const (
	MESI Protocol = iota
	Dragon
)

func (p Protocol) String() string {
	switch p {
	case MESI:
		return "MESI"
	case Dragon:
		return "DRAGON"
	default:
		return "UNKNOWN"
	}
}

// ParseProtocol parses the case-sensitive CLI protocol name.
func ParseProtocol(s string) (Protocol, bool) {
	switch s {
	case "MESI":
		return MESI, true
	case "DRAGON":
		return Dragon, true
	default:
		return 0, false
	}
}

// Clock is the minimal accessor the cache array needs to stamp LastUsed.
// Keeping it this narrow lets the driver own the real cycle counter
// without the protocol packages reaching for a package-level global.
type Clock interface {
	Now() uint64
}

// MemorySystem is the single capability every protocol exposes to the
// processor driver. The driver never needs to know which protocol it is
// driving, only that it can hand it a batch of requests and get back
// whichever ones settled this cycle.
type MemorySystem interface {
	// Tick absorbs incoming requests and advances one cycle of bus/non
	// -bus work, returning whichever requests completed this cycle.
	Tick(incoming []request.MemoryRequest) (completed []request.MemoryRequest)
}

// Hooks is the two-operation capability set a protocol package supplies
// to Engine. Keeping it to exactly these two keeps Engine from ever
// needing to know a line state, a bus op, or anything else protocol
// -specific.
type Hooks interface {
	// HandleIncomingRequest classifies one freshly-arrived request into a
	// non-bus completion, the non-bus pool, or a new bus transaction.
	HandleIncomingRequest(req request.MemoryRequest)
	// ProcessBusTransaction runs once, the first cycle a transaction is
	// at the head of the FIFO. Implementations must set tx.Processed.
	ProcessBusTransaction(tx *request.BusTransaction)
}

type nonBusEntry struct {
	req       request.MemoryRequest
	remaining int
}

// Engine is held by every protocol's System and owns the geometry,
// per-core cache arrays, the shared Report, the bus FIFO and the non-bus
// pool. It has no notion of MESI/Dragon state values; only cacheline.
// Invalid is meaningful to it.
type Engine struct {
	Geo    geometry.Geometry
	Arrays []*cacheline.Array
	Report *stats.Report
	Clock  Clock

	busQueue []*request.BusTransaction
	nonBus   []nonBusEntry
}

// NewEngine allocates an Engine for numCores cores sharing geo.
func NewEngine(geo geometry.Geometry, numCores int, report *stats.Report, clock Clock) Engine {
	arrays := make([]*cacheline.Array, numCores)
	for i := range arrays {
		arrays[i] = cacheline.NewArray(geo)
	}
	return Engine{
		Geo:    geo,
		Arrays: arrays,
		Report: report,
		Clock:  clock,
	}
}

// EnqueueHit schedules a request that resolved without the bus: it drains
// HitCycles cycles in parallel with whatever is at the head of the bus
// queue.
func (e *Engine) EnqueueHit(req request.MemoryRequest) {
	e.nonBus = append(e.nonBus, nonBusEntry{req: req, remaining: HitCycles})
}

// EnqueueBusTransaction appends a new transaction to the FIFO. It is not
// processed until it reaches the head.
func (e *Engine) EnqueueBusTransaction(tx *request.BusTransaction) {
	e.busQueue = append(e.busQueue, tx)
}

// OtherCore pairs a core index with its cache array, for a protocol's
// bus-processing snoop loop.
type OtherCore struct {
	CoreNum int
	Array   *cacheline.Array
}

// OtherArrays returns every core's cache array except coreNum's, in core
// -index order.
func (e *Engine) OtherArrays(coreNum int) []OtherCore {
	others := make([]OtherCore, 0, len(e.Arrays)-1)
	for i, a := range e.Arrays {
		if i == coreNum {
			continue
		}
		others = append(others, OtherCore{CoreNum: i, Array: a})
	}
	return others
}

// Tick runs one cycle of the shared machinery: classify incoming
// requests, drain the non-bus pool, and process/drain the bus queue
// head, all within the same cycle.
func (e *Engine) Tick(hooks Hooks, incoming []request.MemoryRequest) []request.MemoryRequest {
	var completed []request.MemoryRequest

	for _, req := range incoming {
		hooks.HandleIncomingRequest(req)
	}

	if len(e.nonBus) > 0 {
		kept := e.nonBus[:0]
		for _, entry := range e.nonBus {
			entry.remaining--
			if entry.remaining <= 0 {
				completed = append(completed, entry.req)
			} else {
				kept = append(kept, entry)
			}
		}
		e.nonBus = kept
	}

	if len(e.busQueue) > 0 {
		head := e.busQueue[0]
		if !head.Processed {
			hooks.ProcessBusTransaction(head)
		}
		head.RemainingCycles--
		if head.RemainingCycles <= 0 {
			completed = append(completed, head.Request)
			e.busQueue = e.busQueue[1:]
		}
	}

	return completed
}
