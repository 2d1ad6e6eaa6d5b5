// Package cacheline implements the per-core set-associative tag+state
// array shared by every coherence protocol. It knows nothing about what
// the state values mean beyond "Invalid or not"; the active protocol
// owns the domain of LineState.
package cacheline

import (
	"github.com/sarchlab/snoopsim/geometry"
)

// LineState is an opaque per-protocol state tag. The zero value must
// always mean Invalid: a freshly allocated Line starts Invalid.
type LineState int

// Invalid is the state every protocol agrees on: the line holds no valid
// copy of any block. It is always the zero value of LineState.
const Invalid LineState = 0

// Line is one way within one set.
type Line struct {
	Tag      uint32
	State    LineState
	LastUsed uint64
}

// Array is one core's L1 cache: NumSets sets of Associativity ways each.
type Array struct {
	geo  geometry.Geometry
	sets [][]Line
}

// NewArray allocates an Array shaped by geo. Every line starts Invalid.
func NewArray(geo geometry.Geometry) *Array {
	sets := make([][]Line, geo.NumSets)
	for i := range sets {
		sets[i] = make([]Line, geo.Associativity)
	}
	return &Array{geo: geo, sets: sets}
}

// Geometry returns the geometry this array was built from.
func (a *Array) Geometry() geometry.Geometry {
	return a.geo
}

// Lookup returns the way within addr's set whose tag matches and whose
// state is not Invalid. ok is false on a miss. Search order is
// irrelevant: tags are unique within a set across non-Invalid ways by
// construction.
func (a *Array) Lookup(addr uint32) (setIdx, way int, ok bool) {
	setIdx = a.geo.Set(addr)
	tag := a.geo.Tag(addr)
	set := a.sets[setIdx]
	for i := range set {
		if set[i].State != Invalid && set[i].Tag == tag {
			return setIdx, i, true
		}
	}
	return setIdx, 0, false
}

// Line returns a pointer to the line at (setIdx, way) for in-place
// mutation by the coherence protocol.
func (a *Array) Line(setIdx, way int) *Line {
	return &a.sets[setIdx][way]
}

// PickVictim returns the way to evict for a miss in setIdx: any Invalid
// way first, else the way with the smallest LastUsed (LRU), ties broken
// by the lowest way index.
func (a *Array) PickVictim(setIdx int) int {
	set := a.sets[setIdx]

	for way := range set {
		if set[way].State == Invalid {
			return way
		}
	}

	lruWay := 0
	lruUsed := set[0].LastUsed
	for way := 1; way < len(set); way++ {
		if set[way].LastUsed < lruUsed {
			lruWay = way
			lruUsed = set[way].LastUsed
		}
	}
	return lruWay
}
