package assign

import (
	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/targets"
	"github.com/ameisner/fiberassign/tiles"
)

// Assignment is the mutable per-tile, per-location target mapping
// together with the bookkeeping the passes need: the inverse
// target-to-slots map, per-petal kind counters, and the set of tiles
// already committed as observed.
type Assignment struct {
	hw  *hardware.Hardware
	tl  *tiles.Tiles
	mtl *targets.MTL

	// TileLoc maps tile id -> location id -> assigned target.
	TileLoc map[int32]map[int32]int64

	// TargetTile maps target id -> tile id -> location id.
	TargetTile map[int64]map[int32]int32

	// kindCount maps tile id -> petal -> target type -> assigned count.
	kindCount map[int32]map[int32]map[targets.TargetType]int

	committed map[int32]bool
}

// NewAssignment creates an empty assignment table over the given tile
// list.
func NewAssignment(hw *hardware.Hardware, tl *tiles.Tiles, mtl *targets.MTL) *Assignment {
	a := &Assignment{
		hw:         hw,
		tl:         tl,
		mtl:        mtl,
		TileLoc:    make(map[int32]map[int32]int64, tl.Len()),
		TargetTile: make(map[int64]map[int32]int32),
		kindCount:  make(map[int32]map[int32]map[targets.TargetType]int, tl.Len()),
		committed:  make(map[int32]bool, tl.Len()),
	}
	for _, tileID := range tl.ID {
		a.TileLoc[tileID] = make(map[int32]int64)
		a.kindCount[tileID] = make(map[int32]map[targets.TargetType]int)
	}
	return a
}

// Get returns the target assigned to a slot, if any.
func (a *Assignment) Get(tile, loc int32) (int64, bool) {
	id, ok := a.TileLoc[tile][loc]
	return id, ok
}

// Assign records a target on a slot and updates the inverse map and
// the petal kind counter. The slot must be empty.
func (a *Assignment) Assign(tile, loc int32, id int64) {
	a.TileLoc[tile][loc] = id
	if a.TargetTile[id] == nil {
		a.TargetTile[id] = make(map[int32]int32)
	}
	a.TargetTile[id][tile] = loc

	petal := a.hw.Petal[loc]
	if a.kindCount[tile][petal] == nil {
		a.kindCount[tile][petal] = make(map[targets.TargetType]int)
	}
	if tg, ok := a.mtl.Get(id); ok {
		a.kindCount[tile][petal][tg.Type]++
	}
}

// Unassign clears a slot, reversing the bookkeeping of Assign. It is a
// no-op on an empty slot.
func (a *Assignment) Unassign(tile, loc int32) {
	id, ok := a.TileLoc[tile][loc]
	if !ok {
		return
	}
	delete(a.TileLoc[tile], loc)
	delete(a.TargetTile[id], tile)
	if len(a.TargetTile[id]) == 0 {
		delete(a.TargetTile, id)
	}

	petal := a.hw.Petal[loc]
	if tg, ok := a.mtl.Get(id); ok {
		a.kindCount[tile][petal][tg.Type]--
	}
}

// KindCount returns how many targets of the given type are assigned on
// one petal of a tile.
func (a *Assignment) KindCount(tile, petal int32, ty targets.TargetType) int {
	return a.kindCount[tile][petal][ty]
}

// Committed reports whether a tile has been committed as observed.
func (a *Assignment) Committed(tile int32) bool {
	return a.committed[tile]
}

// uncommittedObs counts how many not-yet-committed tiles currently
// hold an assignment of the target. Together with the remaining
// budget, this bounds further assignments.
func (a *Assignment) uncommittedObs(id int64) int {
	n := 0
	for tile := range a.TargetTile[id] {
		if !a.committed[tile] {
			n++
		}
	}
	return n
}

// AssignedCount returns the total number of filled slots across all
// tiles.
func (a *Assignment) AssignedCount() int {
	n := 0
	for _, locs := range a.TileLoc {
		n += len(locs)
	}
	return n
}
