package assign

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/internal/observability"
	"github.com/ameisner/fiberassign/targets"
	"github.com/ameisner/fiberassign/tiles"
)

// Config tunes the assignment engine.
type Config struct {
	// StandardsPerPetal and SkiesPerPetal are the calibration quotas
	// enforced per petal on every tile.
	StandardsPerPetal int
	SkiesPerPetal     int

	// Threads records the kernel worker bound of the run. The engine
	// itself is strictly sequential and does not read it.
	Threads int
}

// Engine runs the assignment passes over the tile sequence. All
// sweeps iterate tiles in sequence order and locations in ascending id
// order; candidate lists carry their own priority ordering. Given
// identical inputs the result is byte-identical regardless of the
// thread count used by the geometry kernels.
type Engine struct {
	hw    *hardware.Hardware
	tl    *tiles.Tiles
	mtl   *targets.MTL
	avail *Availability
	asn   *Assignment

	log     logging.Logger
	metrics *observability.EngineCollector
	tracer  trace.Tracer
	cfg     Config

	// Science positioner locations, ascending.
	locs []int32
}

// New creates an engine over a freshly built availability map. The
// metrics collector may be nil.
func New(log logging.Logger, hw *hardware.Hardware, tl *tiles.Tiles, mtl *targets.MTL, avail *Availability, metrics *observability.EngineCollector, cfg Config) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{
		hw:      hw,
		tl:      tl,
		mtl:     mtl,
		avail:   avail,
		asn:     NewAssignment(hw, tl, mtl),
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("fiberassign/assign"),
		cfg:     cfg,
		locs:    hw.DeviceLocations(hardware.DeviceTypePOS),
	}
}

// Assignment exposes the engine-owned assignment table.
func (e *Engine) Assignment() *Assignment {
	return e.asn
}

// Run executes the full pass sequence: initial assignment with the
// fewest-options-first heuristic, redistribution, the improvement
// sweep, then per tile in sequence the calibration quota fill, the
// leftover fill, and the observation commit.
func (e *Engine) Run(ctx context.Context) error {
	e.pass(ctx, "new_assign", func(ctx context.Context) error {
		e.NewAssignFibers(ctx)
		return nil
	})
	e.pass(ctx, "redistribute", func(ctx context.Context) error {
		e.RedistributeTF(ctx)
		return nil
	})
	e.pass(ctx, "improve", func(ctx context.Context) error {
		e.Improve(ctx)
		return nil
	})

	for ti := range e.tl.ID {
		tileID := e.tl.ID[ti]
		e.AssignSFSS(ctx, tileID)
		e.AssignUnused(ctx, tileID)
		if err := e.UpdatePlanFromOneObs(ctx, tileID); err != nil {
			return fmt.Errorf("assign: commit of tile %d: %w", tileID, err)
		}
	}

	unassigned := 0
	for _, tileID := range e.tl.ID {
		for _, loc := range e.locs {
			if e.hw.State[loc] != hardware.StateOK {
				continue
			}
			if _, ok := e.asn.Get(tileID, loc); !ok {
				unassigned++
			}
		}
	}
	if e.metrics != nil {
		e.metrics.SetUnassigned(unassigned)
	}
	e.log.Info(ctx, "assignment complete",
		logging.Int("assigned", e.asn.AssignedCount()),
		logging.Int("unassigned", unassigned),
	)
	return nil
}

func (e *Engine) pass(ctx context.Context, name string, fn func(context.Context) error) {
	ctx, span := e.tracer.Start(ctx, "pass."+name,
		trace.WithAttributes(attribute.Int("tiles", e.tl.Len())))
	defer span.End()

	start := time.Now()
	before := e.asn.AssignedCount()
	_ = fn(ctx)
	if e.metrics != nil {
		e.metrics.ObservePass(name, time.Since(start), e.asn.AssignedCount()-before)
	}
	e.log.Debug(ctx, "pass finished",
		logging.String("pass", name),
		logging.Int("assigned_delta", e.asn.AssignedCount()-before),
	)
}

// canAssign reports whether a candidate target can be placed on an
// empty slot: once per tile, within its observation budget, and
// without colliding with already-assigned neighboring positioners.
func (e *Engine) canAssign(tile, loc int32, tg *targets.Target) bool {
	if _, onTile := e.asn.TargetTile[tg.ID][tile]; onTile {
		return false
	}
	if e.asn.uncommittedObs(tg.ID) >= int(tg.NObsRemaining) {
		return false
	}
	xy, ok := e.avail.XY[tile][tg.ID]
	if !ok {
		return false
	}
	for _, nb := range e.hw.Neighbors[loc] {
		nbID, assigned := e.asn.Get(tile, nb)
		if !assigned {
			continue
		}
		if e.hw.CollideXY(loc, xy, nb, e.avail.XY[tile][nbID]) {
			return false
		}
	}
	return true
}

// SimpleAssign fills every empty slot with the best available science
// target, sweeping tiles in sequence and locations in ascending order.
func (e *Engine) SimpleAssign(ctx context.Context) {
	for _, tileID := range e.tl.ID {
		for _, loc := range e.locs {
			e.assignBest(tileID, loc, targets.TypeScience)
		}
	}
}

// NewAssignFibers is SimpleAssign with a local fairness heuristic:
// within each tile, locations with fewer candidates are resolved
// first, which reduces starvation of poorly-covered positioners.
func (e *Engine) NewAssignFibers(ctx context.Context) {
	for _, tileID := range e.tl.ID {
		order := append([]int32(nil), e.locs...)
		sort.SliceStable(order, func(i, j int) bool {
			ni := len(e.avail.TileLoc[tileID][order[i]])
			nj := len(e.avail.TileLoc[tileID][order[j]])
			if ni != nj {
				return ni < nj
			}
			return order[i] < order[j]
		})
		for _, loc := range order {
			e.assignBest(tileID, loc, targets.TypeScience)
		}
	}
}

// assignBest assigns the highest-ranked assignable candidate of the
// given kind to an empty slot. It reports whether an assignment was
// made.
func (e *Engine) assignBest(tile, loc int32, kind targets.TargetType) bool {
	if _, ok := e.asn.Get(tile, loc); ok {
		return false
	}
	for _, id := range e.avail.TileLoc[tile][loc] {
		tg, ok := e.mtl.Get(id)
		if !ok || tg.Type&kind == 0 {
			continue
		}
		if !e.canAssign(tile, loc, tg) {
			continue
		}
		e.asn.Assign(tile, loc, id)
		return true
	}
	return false
}

// Improve sweeps the unassigned science slots and attempts
// steal-and-reassign moves that increase the number of fulfilled
// targets.
func (e *Engine) Improve(ctx context.Context) {
	e.improveKind(ctx, targets.TypeScience)
}

// ImproveFromKind is the improvement sweep restricted to slots that
// could take targets of the given kind.
func (e *Engine) ImproveFromKind(ctx context.Context, kind targets.TargetType) {
	e.improveKind(ctx, kind)
}

func (e *Engine) improveKind(ctx context.Context, kind targets.TargetType) {
	for _, tileID := range e.tl.ID {
		for _, loc := range e.locs {
			if _, ok := e.asn.Get(tileID, loc); ok {
				continue
			}
			if e.assignBest(tileID, loc, kind) {
				continue
			}
			e.stealFor(tileID, loc, kind)
		}
	}
}

// stealFor tries to fill an empty slot by moving one of its candidate
// targets here from another slot that has a fallback of its own. The
// move is executed only when it nets one more fulfilled target; any
// partial state is rolled back.
func (e *Engine) stealFor(tile, loc int32, kind targets.TargetType) bool {
	for _, id := range e.avail.TileLoc[tile][loc] {
		tg, ok := e.mtl.Get(id)
		if !ok || tg.Type&kind == 0 {
			continue
		}
		for _, held := range e.heldSlots(id) {
			if e.asn.Committed(held.Tile) {
				continue
			}
			e.asn.Unassign(held.Tile, held.Loc)
			if !e.canAssign(tile, loc, tg) {
				e.asn.Assign(held.Tile, held.Loc, id)
				continue
			}
			e.asn.Assign(tile, loc, id)
			if e.fallbackAssign(held.Tile, held.Loc, id) {
				return true
			}
			e.asn.Unassign(tile, loc)
			e.asn.Assign(held.Tile, held.Loc, id)
		}
	}
	return false
}

// fallbackAssign fills a just-vacated slot with any assignable
// candidate other than the moved target.
func (e *Engine) fallbackAssign(tile, loc int32, exclude int64) bool {
	for _, id := range e.avail.TileLoc[tile][loc] {
		if id == exclude {
			continue
		}
		tg, ok := e.mtl.Get(id)
		if !ok {
			continue
		}
		if !e.canAssign(tile, loc, tg) {
			continue
		}
		e.asn.Assign(tile, loc, id)
		return true
	}
	return false
}

// heldSlots returns the slots currently holding a target, committed
// tiles included, ordered by tile sequence then ascending location.
func (e *Engine) heldSlots(id int64) []TileLoc {
	var out []TileLoc
	for tile, loc := range e.asn.TargetTile[id] {
		out = append(out, TileLoc{Tile: tile, Loc: loc})
	}
	sort.Slice(out, func(i, j int) bool {
		oi := e.tl.Order[out[i].Tile]
		oj := e.tl.Order[out[j].Tile]
		if oi != oj {
			return oi < oj
		}
		return out[i].Loc < out[j].Loc
	})
	return out
}

// RedistributeTF moves assigned science targets to alternative slots
// when doing so frees the original slot for a target that is not
// served anywhere yet.
func (e *Engine) RedistributeTF(ctx context.Context) {
	for _, tileID := range e.tl.ID {
		for _, loc := range e.locs {
			id, ok := e.asn.Get(tileID, loc)
			if !ok || e.asn.Committed(tileID) {
				continue
			}
			tg, ok := e.mtl.Get(id)
			if !ok || !tg.IsScience() {
				continue
			}

			e.asn.Unassign(tileID, loc)

			var newSlot TileLoc
			moved := false
			for _, slot := range e.avail.TargetAvail[id] {
				if slot.Tile == tileID && slot.Loc == loc {
					continue
				}
				if e.asn.Committed(slot.Tile) {
					continue
				}
				if _, occupied := e.asn.Get(slot.Tile, slot.Loc); occupied {
					continue
				}
				if !e.canAssign(slot.Tile, slot.Loc, tg) {
					continue
				}
				e.asn.Assign(slot.Tile, slot.Loc, id)
				newSlot = slot
				moved = true
				break
			}
			if !moved {
				e.asn.Assign(tileID, loc, id)
				continue
			}

			// The move only pays off if the freed slot serves a target
			// with no observation anywhere yet.
			filled := false
			for _, candID := range e.avail.TileLoc[tileID][loc] {
				if candID == id {
					continue
				}
				cand, ok := e.mtl.Get(candID)
				if !ok || !cand.IsScience() {
					continue
				}
				if len(e.asn.TargetTile[candID]) > 0 {
					continue
				}
				if !e.canAssign(tileID, loc, cand) {
					continue
				}
				e.asn.Assign(tileID, loc, candID)
				filled = true
				break
			}
			if !filled {
				// Roll the move back; nothing was gained.
				e.asn.Unassign(newSlot.Tile, newSlot.Loc)
				e.asn.Assign(tileID, loc, id)
			}
		}
	}
}

// AssignSFSS tops up the per-petal standard star and sky fiber quotas
// on a tile from the still-unassigned slots. A shortfall is reported
// but is not an error.
func (e *Engine) AssignSFSS(ctx context.Context, tile int32) {
	for petal := int32(0); petal < e.hw.NPetal; petal++ {
		needSS := e.cfg.StandardsPerPetal - e.asn.KindCount(tile, petal, targets.TypeStandard)
		needSF := e.cfg.SkiesPerPetal - e.asn.KindCount(tile, petal, targets.TypeSky)

		for _, loc := range e.hw.PetalLocations[petal] {
			if needSS <= 0 && needSF <= 0 {
				break
			}
			if e.hw.DeviceType[loc] != hardware.DeviceTypePOS {
				continue
			}
			if _, ok := e.asn.Get(tile, loc); ok {
				continue
			}
			for _, id := range e.avail.TileLoc[tile][loc] {
				tg, ok := e.mtl.Get(id)
				if !ok {
					continue
				}
				if needSS > 0 && tg.IsStandard() && e.canAssign(tile, loc, tg) {
					e.asn.Assign(tile, loc, id)
					needSS--
					break
				}
				if needSF > 0 && tg.IsSky() && e.canAssign(tile, loc, tg) {
					e.asn.Assign(tile, loc, id)
					needSF--
					break
				}
			}
		}

		if needSS > 0 || needSF > 0 {
			e.log.Warn(ctx, "petal calibration quota not met",
				logging.Int("tile", int(tile)),
				logging.Int("petal", int(petal)),
				logging.Int("missing_standards", max(needSS, 0)),
				logging.Int("missing_skies", max(needSF, 0)),
			)
		}
	}
}

// AssignUnused parks any remaining unassigned positioners on safe or
// supplementary targets.
func (e *Engine) AssignUnused(ctx context.Context, tile int32) {
	for _, loc := range e.locs {
		if _, ok := e.asn.Get(tile, loc); ok {
			continue
		}
		for _, id := range e.avail.TileLoc[tile][loc] {
			tg, ok := e.mtl.Get(id)
			if !ok || (!tg.IsSafe() && !tg.IsSuppl()) {
				continue
			}
			if !e.canAssign(tile, loc, tg) {
				continue
			}
			e.asn.Assign(tile, loc, id)
			break
		}
		if _, ok := e.asn.Get(tile, loc); !ok {
			e.log.Debug(ctx, "location left unassigned",
				logging.Int("tile", int(tile)),
				logging.Int("loc", int(loc)),
			)
		}
	}
}

// UpdatePlanFromOneObs commits a tile as observed: every assigned
// target consumes one observation, and targets whose budget reaches
// zero are dropped from the availability of all subsequent tiles.
func (e *Engine) UpdatePlanFromOneObs(ctx context.Context, tile int32) error {
	ti := e.tl.Order[tile]
	e.asn.committed[tile] = true

	for _, loc := range e.locs {
		id, ok := e.asn.Get(tile, loc)
		if !ok {
			continue
		}
		if err := e.mtl.Decrement(id); err != nil {
			return err
		}
		tg, _ := e.mtl.Get(id)
		if tg.Done() {
			e.avail.Remove(id, e.tl, ti)
		}
	}
	return nil
}
