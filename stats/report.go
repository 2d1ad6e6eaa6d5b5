// Package stats collects the counters the memory system and processor
// driver accumulate during a run into one Report, owned by the driver and
// passed by pointer into the memory system.
package stats

import (
	"fmt"
	"io"
	"strings"
)

// CoreStats holds the per-core counters the driver and memory system
// accumulate over a run.
type CoreStats struct {
	ComputeInstructions   int
	ComputeCycles         int
	LoadStoreInstructions int
	IdleCycles            int
	CacheHits             int
	CacheMisses           int
}

// HitRate returns CacheHits / (CacheHits + CacheMisses), 0 if no memory
// op resolved yet.
func (c CoreStats) HitRate() float64 {
	total := c.CacheHits + c.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(c.CacheHits) / float64(total)
}

// Report aggregates per-core and global statistics for one run. The
// driver owns exactly one Report and threads a pointer to it through
// every Tick call, so no counter lives as a package-level global.
type Report struct {
	Protocol string

	OverallExecutionCycles int
	Cores                  []CoreStats

	BusDataTrafficBytes       int
	BusInvalidationsOrUpdates int
	PrivateAccess             int
	SharedAccess              int
}

// NewReport allocates a zeroed Report for numCores cores.
func NewReport(protocol string, numCores int) *Report {
	return &Report{
		Protocol: protocol,
		Cores:    make([]CoreStats, numCores),
	}
}

// AccessRates returns the private/shared access rates; both are zero if
// no access has been classified yet.
func (r *Report) AccessRates() (private, shared float64) {
	total := r.PrivateAccess + r.SharedAccess
	if total == 0 {
		return 0, 0
	}
	return float64(r.PrivateAccess) / float64(total),
		float64(r.SharedAccess) / float64(total)
}

// WriteTo renders the plain-text report dump.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Report (%s):\n", r.Protocol)
	fmt.Fprintf(&b, "Overall Execution Cycles: %d\n", r.OverallExecutionCycles)

	for i, c := range r.Cores {
		fmt.Fprintf(&b, "Core %d\n", i)
		fmt.Fprintf(&b, "\tNum Compute Inst: %d\n", c.ComputeInstructions)
		fmt.Fprintf(&b, "\tCompute Cycles: %d\n", c.ComputeCycles)
		fmt.Fprintf(&b, "\tNum Load Store Inst: %d\n", c.LoadStoreInstructions)
		fmt.Fprintf(&b, "\tIdle Cycles: %d\n", c.IdleCycles)
		fmt.Fprintf(&b, "\tNum Cache Hits: %d\n", c.CacheHits)
		fmt.Fprintf(&b, "\tNum Cache Misses: %d\n", c.CacheMisses)
		fmt.Fprintf(&b, "\tCache Hit Rate: %.5f\n", c.HitRate())
	}

	fmt.Fprintf(&b, "Total Bus Data Traffic (Bytes): %d\n", r.BusDataTrafficBytes)
	fmt.Fprintf(&b, "Total Bus Invalidations/Updates: %d\n", r.BusInvalidationsOrUpdates)
	fmt.Fprintf(&b, "Total Private Data Access: %d\n", r.PrivateAccess)
	fmt.Fprintf(&b, "Total Shared Data Access: %d\n", r.SharedAccess)

	private, shared := r.AccessRates()
	fmt.Fprintf(&b, "Private Data Access Rate: %.5f\n", private)
	fmt.Fprintf(&b, "Shared Data Access Rate: %.5f\n", shared)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// String renders the same text WriteTo does, for log lines and tests.
func (r *Report) String() string {
	var b strings.Builder
	_, _ = r.WriteTo(&b)
	return b.String()
}

// LogBusTraffic records bytes of traffic crossing the bus: a block fetch,
// write-back or per-word update, logged exactly once at the point the
// cycles for that transfer are added.
func (r *Report) LogBusTraffic(bytes int) {
	r.BusDataTrafficBytes += bytes
}
