// Package assign builds the per-tile availability map and runs the
// fiber assignment passes over the tile sequence.
package assign

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/targets"
	"github.com/ameisner/fiberassign/tiles"
)

// TileLoc addresses one positioner slot on one tile.
type TileLoc struct {
	Tile int32
	Loc  int32
}

// Availability records which targets each (tile, location) slot can
// reach, the inverse map, and the projected focal-plane position of
// every candidate target per tile.
type Availability struct {
	// TileLoc maps tile id -> location id -> candidate target ids,
	// ordered by (priority desc, subpriority desc, id asc).
	TileLoc map[int32]map[int32][]int64

	// TargetAvail maps a target to every slot that can reach it, in
	// tile sequence order then ascending location id.
	TargetAvail map[int64][]TileLoc

	// XY maps tile id -> target id -> projected focal-plane position.
	XY map[int32]map[int64]geom.Point
}

// Build computes the availability map. For each tile the sky index
// provides a candidate superset, candidates are projected onto the
// focal plane in parallel, and each science positioner keeps the ones
// inside its patrol area that pass the kinematic and boundary checks.
func Build(ctx context.Context, log logging.Logger, hw *hardware.Hardware, tl *tiles.Tiles, mtl *targets.MTL, index targets.SkyIndex, threads int) *Availability {
	if log == nil {
		log = logging.Noop()
	}
	ctx, span := otel.Tracer("fiberassign/assign").Start(ctx, "availability.build",
		trace.WithAttributes(
			attribute.Int("tiles", tl.Len()),
			attribute.Int("targets", mtl.Len()),
		))
	defer span.End()

	av := &Availability{
		TileLoc:     make(map[int32]map[int32][]int64, tl.Len()),
		TargetAvail: make(map[int64][]TileLoc),
		XY:          make(map[int32]map[int64]geom.Point, tl.Len()),
	}

	posLocs := hw.DeviceLocations(hardware.DeviceTypePOS)

	for ti := range tl.ID {
		tileID := tl.ID[ti]
		av.TileLoc[tileID] = make(map[int32][]int64)

		near := index.Near(tl.RA[ti], tl.Dec[ti], hardware.FocalplaneRadiusDeg)

		// Exact per-target filters on the superset from the index.
		candIDs := make([]int64, 0, len(near))
		ras := make([]float64, 0, len(near))
		decs := make([]float64, 0, len(near))
		for _, id := range near {
			tg, ok := mtl.Get(id)
			if !ok {
				continue
			}
			if tg.ObsCond&tl.ObsCond[ti] == 0 {
				continue
			}
			if tg.Done() {
				continue
			}
			candIDs = append(candIDs, id)
			ras = append(ras, tg.RA)
			decs = append(decs, tg.Dec)
		}

		xys := hw.RadecToXYMulti(tl.RA[ti], tl.Dec[ti], tl.Theta[ti], ras, decs, threads)

		tileXY := make(map[int64]geom.Point, len(candIDs))
		for k, id := range candIDs {
			tileXY[id] = xys[k]
		}
		av.XY[tileID] = tileXY

		navail := 0
		for _, loc := range posLocs {
			if hw.State[loc] != hardware.StateOK {
				continue
			}
			center := hw.CenterMM[loc]
			patrol := hw.ThetaArm[loc] + hw.PhiArm[loc] - hardware.PatrolBufferMM
			sqPatrol := patrol * patrol

			var reach []int64
			for k, id := range candIDs {
				xy := xys[k]
				if geom.SqDist(center, xy) > sqPatrol {
					continue
				}
				if hw.PositionXYBad(loc, xy) {
					continue
				}
				if hw.CollideXYEdges(loc, xy) {
					continue
				}
				reach = append(reach, id)
			}
			if len(reach) == 0 {
				continue
			}
			sortCandidates(mtl, reach)
			av.TileLoc[tileID][loc] = reach
			navail += len(reach)
		}

		log.Debug(ctx, "tile availability computed",
			logging.Int("tile", int(tileID)),
			logging.Int("candidates", len(candIDs)),
			logging.Int("available", navail),
		)
	}

	// Inverse map, in deterministic tile-sequence order.
	for ti := range tl.ID {
		tileID := tl.ID[ti]
		for _, loc := range posLocs {
			for _, id := range av.TileLoc[tileID][loc] {
				av.TargetAvail[id] = append(av.TargetAvail[id], TileLoc{Tile: tileID, Loc: loc})
			}
		}
	}

	return av
}

// sortCandidates orders target ids by priority descending,
// subpriority descending, then id ascending.
func sortCandidates(mtl *targets.MTL, ids []int64) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := mtl.Get(ids[i])
		b, _ := mtl.Get(ids[j])
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Subpriority != b.Subpriority {
			return a.Subpriority > b.Subpriority
		}
		return a.ID < b.ID
	})
}

// Remove drops a target from every slot on tiles strictly after the
// given sequence position, both from the per-slot candidate lists and
// from the inverse map.
func (av *Availability) Remove(id int64, tl *tiles.Tiles, afterOrder int) {
	kept := av.TargetAvail[id][:0]
	for _, slot := range av.TargetAvail[id] {
		if tl.Order[slot.Tile] <= afterOrder {
			kept = append(kept, slot)
			continue
		}
		cands := av.TileLoc[slot.Tile][slot.Loc]
		for i, cid := range cands {
			if cid == id {
				av.TileLoc[slot.Tile][slot.Loc] = append(cands[:i:i], cands[i+1:]...)
				break
			}
		}
	}
	av.TargetAvail[id] = kept
}
