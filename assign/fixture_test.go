package assign

import (
	"context"
	"testing"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/targets"
	"github.com/ameisner/fiberassign/tiles"
)

// fpConfig builds a minimal focal-plane table: science positioners with
// 3 mm arms, unconstrained angle ranges, a small square theta body and
// a thin rectangular phi arm.
func fpConfig(centers []geom.Point) hardware.Config {
	n := len(centers)
	cfg := hardware.Config{}
	for i := 0; i < n; i++ {
		cfg.Location = append(cfg.Location, int32(i+1))
		cfg.Petal = append(cfg.Petal, 0)
		cfg.Device = append(cfg.Device, int32(i))
		cfg.Slitblock = append(cfg.Slitblock, 0)
		cfg.Blockfiber = append(cfg.Blockfiber, int32(i))
		cfg.Fiber = append(cfg.Fiber, int32(i))
		cfg.DeviceType = append(cfg.DeviceType, hardware.DeviceTypePOS)
		cfg.XMM = append(cfg.XMM, centers[i].X)
		cfg.YMM = append(cfg.YMM, centers[i].Y)
		cfg.State = append(cfg.State, hardware.StateOK)

		cfg.ThetaOffsetDeg = append(cfg.ThetaOffsetDeg, 0)
		cfg.ThetaMinDeg = append(cfg.ThetaMinDeg, -180)
		cfg.ThetaMaxDeg = append(cfg.ThetaMaxDeg, 180)
		cfg.ThetaArm = append(cfg.ThetaArm, 3)
		cfg.PhiOffsetDeg = append(cfg.PhiOffsetDeg, 0)
		cfg.PhiMinDeg = append(cfg.PhiMinDeg, -180)
		cfg.PhiMaxDeg = append(cfg.PhiMaxDeg, 180)
		cfg.PhiArm = append(cfg.PhiArm, 3)

		cfg.ExclTheta = append(cfg.ExclTheta, geom.NewShape([]geom.Point{
			{X: -0.4, Y: -0.4}, {X: 0.4, Y: -0.4}, {X: 0.4, Y: 0.4}, {X: -0.4, Y: 0.4},
		}))
		cfg.ExclPhi = append(cfg.ExclPhi, geom.NewShape([]geom.Point{
			{X: 0, Y: -0.05}, {X: 3, Y: -0.05}, {X: 3, Y: 0.05}, {X: 0, Y: 0.05},
		}))
		cfg.ExclGFA = append(cfg.ExclGFA, geom.Shape{})
		cfg.ExclPetal = append(cfg.ExclPetal, geom.Shape{})
	}
	return cfg
}

func testHW(t *testing.T, centers []geom.Point) *hardware.Hardware {
	t.Helper()
	hw, err := hardware.New(context.Background(), logging.Noop(), fpConfig(centers))
	if err != nil {
		t.Fatalf("hardware.New: %v", err)
	}
	return hw
}

// testTiles builds a tile sequence where every tile shares one pointing
// and accepts dark-time targets.
func testTiles(t *testing.T, ids []int32, ra, dec float64) *tiles.Tiles {
	t.Helper()
	n := len(ids)
	ras := make([]float64, n)
	decs := make([]float64, n)
	conds := make([]uint8, n)
	thetas := make([]float64, n)
	for i := range ids {
		ras[i] = ra
		decs[i] = dec
		conds[i] = targets.ObsDark
	}
	tl, err := tiles.New(context.Background(), logging.Noop(), ids, ras, decs, conds, thetas)
	if err != nil {
		t.Fatalf("tiles.New: %v", err)
	}
	return tl
}

func testMTL(t *testing.T, list []targets.Target) *targets.MTL {
	t.Helper()
	m, err := targets.NewMTL(context.Background(), logging.Noop(), list)
	if err != nil {
		t.Fatalf("targets.NewMTL: %v", err)
	}
	return m
}

// emptyAvail allocates an availability map with the per-tile inner maps
// ready to be filled by addCand.
func emptyAvail(tl *tiles.Tiles) *Availability {
	av := &Availability{
		TileLoc:     make(map[int32]map[int32][]int64),
		TargetAvail: make(map[int64][]TileLoc),
		XY:          make(map[int32]map[int64]geom.Point),
	}
	for _, tileID := range tl.ID {
		av.TileLoc[tileID] = make(map[int32][]int64)
		av.XY[tileID] = make(map[int64]geom.Point)
	}
	return av
}

// addCand registers one candidate on one slot. Callers append in
// priority order per slot and in tile sequence order per target, the
// same orders Build produces.
func addCand(av *Availability, tile, loc int32, id int64, xy geom.Point) {
	av.TileLoc[tile][loc] = append(av.TileLoc[tile][loc], id)
	av.TargetAvail[id] = append(av.TargetAvail[id], TileLoc{Tile: tile, Loc: loc})
	av.XY[tile][id] = xy
}
