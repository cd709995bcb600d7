package hardware

import (
	"sync"

	"github.com/ameisner/fiberassign/geom"
)

// PlacedPositioner is the result of placing one positioner in a batch
// operation: the two arm polygons and whether the pose was reachable.
type PlacedPositioner struct {
	Theta geom.Shape
	Phi   geom.Shape
	OK    bool
}

// armsIntersect tests the three polygon pairs that can touch between
// two placed positioners. The central theta bodies never reach each
// other, so theta-theta is skipped.
func armsIntersect(a, b *PlacedPositioner) bool {
	if geom.Intersect(a.Phi, b.Phi) {
		return true
	}
	if geom.Intersect(a.Theta, b.Phi) {
		return true
	}
	if geom.Intersect(b.Theta, a.Phi) {
		return true
	}
	return false
}

// CollideXY reports whether two positioners interfere when each puts
// its fiber at the given focal-plane position. An unreachable pose
// counts as a collision: the configuration cannot be accepted either
// way.
func (hw *Hardware) CollideXY(loc1 int32, xy1 geom.Point, loc2 int32, xy2 geom.Point) bool {
	theta1, phi1, ok := hw.LocPositionXY(loc1, xy1)
	if !ok {
		return true
	}
	theta2, phi2, ok := hw.LocPositionXY(loc2, xy2)
	if !ok {
		return true
	}
	a := PlacedPositioner{Theta: theta1, Phi: phi1, OK: true}
	b := PlacedPositioner{Theta: theta2, Phi: phi2, OK: true}
	return armsIntersect(&a, &b)
}

// CollideThetaPhi is CollideXY starting from arm angles.
func (hw *Hardware) CollideThetaPhi(loc1 int32, theta1, phi1 float64, loc2 int32, theta2, phi2 float64) bool {
	st1, sp1, ok := hw.LocPositionThetaPhi(loc1, theta1, phi1)
	if !ok {
		return true
	}
	st2, sp2, ok := hw.LocPositionThetaPhi(loc2, theta2, phi2)
	if !ok {
		return true
	}
	a := PlacedPositioner{Theta: st1, Phi: sp1, OK: true}
	b := PlacedPositioner{Theta: st2, Phi: sp2, OK: true}
	return armsIntersect(&a, &b)
}

// CollideXYEdges reports whether a positioner placed at the given
// position hits the static GFA or petal boundary of its location. Only
// the phi arm is tested; the theta body never reaches the edges.
func (hw *Hardware) CollideXYEdges(loc int32, xy geom.Point) bool {
	_, shpPhi, ok := hw.LocPositionXY(loc, xy)
	if !ok {
		return true
	}
	if geom.Intersect(shpPhi, hw.GFAExcl[loc]) {
		return true
	}
	if geom.Intersect(shpPhi, hw.PetalExcl[loc]) {
		return true
	}
	return false
}

// LocPositionXYMulti places many positioners in parallel.
func (hw *Hardware) LocPositionXYMulti(locs []int32, xys []geom.Point, threads int) []PlacedPositioner {
	out := make([]PlacedPositioner, len(locs))
	parallelFor(len(locs), threads, func(i int) {
		out[i].Theta, out[i].Phi, out[i].OK = hw.LocPositionXY(locs[i], xys[i])
	})
	return out
}

// LocPositionThetaPhiMulti places many positioners from arm angles in
// parallel.
func (hw *Hardware) LocPositionThetaPhiMulti(locs []int32, theta, phi []float64, threads int) []PlacedPositioner {
	out := make([]PlacedPositioner, len(locs))
	parallelFor(len(locs), threads, func(i int) {
		out[i].Theta, out[i].Phi, out[i].OK = hw.LocPositionThetaPhi(locs[i], theta[i], phi[i])
	})
	return out
}

// checkPairs builds the deduplicated unordered neighbor pairs among
// the supplied locations, as indices into the input slice.
func (hw *Hardware) checkPairs(locs []int32) [][2]int {
	locIndex := make(map[int32]int, len(locs))
	for i, lid := range locs {
		locIndex[lid] = i
	}
	seen := make(map[[2]int32]bool)
	var pairs [][2]int
	for _, lid := range locs {
		for _, nb := range hw.Neighbors[lid] {
			if _, present := locIndex[nb]; !present {
				continue
			}
			low, high := lid, nb
			if high < low {
				low, high = high, low
			}
			key := [2]int32{low, high}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, [2]int{locIndex[low], locIndex[high]})
		}
	}
	return pairs
}

// CheckCollisionsXY places every supplied positioner and tests all
// neighboring pairs among them. The result marks each index whose
// positioner participates in at least one collision (or cannot reach
// its position), so the caller can back the bad ones out.
func (hw *Hardware) CheckCollisionsXY(locs []int32, xys []geom.Point, threads int) []bool {
	placed := hw.LocPositionXYMulti(locs, xys, threads)
	return hw.collidePairs(locs, placed, threads)
}

// CheckCollisionsThetaPhi is CheckCollisionsXY starting from arm
// angles.
func (hw *Hardware) CheckCollisionsThetaPhi(locs []int32, theta, phi []float64, threads int) []bool {
	placed := hw.LocPositionThetaPhiMulti(locs, theta, phi, threads)
	return hw.collidePairs(locs, placed, threads)
}

func (hw *Hardware) collidePairs(locs []int32, placed []PlacedPositioner, threads int) []bool {
	pairs := hw.checkPairs(locs)
	result := make([]bool, len(locs))

	// Marking both members of a colliding pair is a disjunctive OR
	// into shared slots; serialize it.
	var mu sync.Mutex
	parallelFor(len(pairs), threads, func(p int) {
		i, j := pairs[p][0], pairs[p][1]
		hit := !placed[i].OK || !placed[j].OK || armsIntersect(&placed[i], &placed[j])
		if hit {
			mu.Lock()
			result[i] = true
			result[j] = true
			mu.Unlock()
		}
	})
	for i := range placed {
		if !placed[i].OK {
			result[i] = true
		}
	}
	return result
}
