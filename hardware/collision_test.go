package hardware

import (
	"context"
	"testing"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/internal/logging"
)

func TestCollideXYBothFibersOnSamePoint(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	target := geom.Point{X: 3, Y: 0}
	if !hw.CollideXY(1, target, 2, target) {
		t.Fatal("two fibers on the same point must collide")
	}
}

func TestCollideXYSymmetry(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	cases := []struct{ a, b geom.Point }{
		{geom.Point{X: 3, Y: 0}, geom.Point{X: 3, Y: 0}},
		{geom.Point{X: 4, Y: 0}, geom.Point{X: 8, Y: 0}},
		{geom.Point{X: 2, Y: 1}, geom.Point{X: 5, Y: -1}},
	}
	for _, c := range cases {
		ab := hw.CollideXY(1, c.a, 2, c.b)
		ba := hw.CollideXY(2, c.b, 1, c.a)
		if ab != ba {
			t.Fatalf("collide(%v,%v)=%v but collide(%v,%v)=%v", c.a, c.b, ab, c.b, c.a, ba)
		}
	}
}

func TestCollideXYSeparatedFibers(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	if hw.CollideXY(1, geom.Point{X: 4, Y: 0}, 2, geom.Point{X: 8, Y: 0}) {
		t.Fatal("well separated arms must not collide")
	}
}

func TestCollideXYUnreachableCountsAsCollision(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	if !hw.CollideXY(1, geom.Point{X: 50, Y: 0}, 2, geom.Point{X: 8, Y: 0}) {
		t.Fatal("an unreachable pose must count as a collision")
	}
}

func TestCollideThetaPhiMatchesXY(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	cases := []struct{ a, b geom.Point }{
		{geom.Point{X: 3, Y: 0}, geom.Point{X: 3, Y: 0}},
		{geom.Point{X: 4, Y: 0}, geom.Point{X: 8, Y: 0}},
		{geom.Point{X: 2, Y: 1}, geom.Point{X: 5, Y: -1}},
	}
	for _, c := range cases {
		th1, ph1, ok := hw.LocThetaPhi(1, c.a)
		if !ok {
			t.Fatalf("no arm solution for %v", c.a)
		}
		th2, ph2, ok := hw.LocThetaPhi(2, c.b)
		if !ok {
			t.Fatalf("no arm solution for %v", c.b)
		}
		fromXY := hw.CollideXY(1, c.a, 2, c.b)
		fromAngles := hw.CollideThetaPhi(1, th1, ph1, 2, th2, ph2)
		if fromXY != fromAngles {
			t.Fatalf("collide(%v,%v): xy=%v angles=%v", c.a, c.b, fromXY, fromAngles)
		}
	}
}

func TestCollideThetaPhiOutOfRangeCountsAsCollision(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	// phi of 10 rad wraps to well outside the allowed range.
	if !hw.CollideThetaPhi(1, 0, 10.0, 2, 0, 0) {
		t.Fatal("an out-of-range pose must count as a collision")
	}
}

func TestCollideXYEdgesAgainstGFA(t *testing.T) {
	cfg := testConfig([]geom.Point{{X: 0, Y: 0}})
	// Petal 3 has zero net rotation, so the GFA polygon stays where the
	// table puts it.
	cfg.Petal[0] = 3
	cfg.ExclGFA[0] = geom.NewShape([]geom.Point{
		{X: 2, Y: -1}, {X: 4, Y: -1}, {X: 4, Y: 1}, {X: 2, Y: 1},
	})

	hw, err := New(context.Background(), logging.Noop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !hw.CollideXYEdges(1, geom.Point{X: 3, Y: 0}) {
		t.Fatal("phi arm crossing the GFA polygon must collide")
	}
	if hw.CollideXYEdges(1, geom.Point{X: -3, Y: 0}) {
		t.Fatal("phi arm on the far side must clear the GFA polygon")
	}
}

func TestCheckCollisionsXYMarksBothMembers(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 100, Y: 0}})

	locs := []int32{1, 2, 3}
	xys := []geom.Point{{X: 3, Y: 0}, {X: 3, Y: 0}, {X: 103, Y: 0}}

	hit := hw.CheckCollisionsXY(locs, xys, 4)
	if !hit[0] || !hit[1] {
		t.Fatalf("colliding pair not marked: %v", hit)
	}
	if hit[2] {
		t.Fatal("isolated positioner wrongly marked")
	}
}

func TestCheckCollisionsThetaPhiMarksBothMembers(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 100, Y: 0}})

	locs := []int32{1, 2, 3}
	xys := []geom.Point{{X: 3, Y: 0}, {X: 3, Y: 0}, {X: 103, Y: 0}}
	theta := make([]float64, len(locs))
	phi := make([]float64, len(locs))
	for i, loc := range locs {
		var ok bool
		theta[i], phi[i], ok = hw.LocThetaPhi(loc, xys[i])
		if !ok {
			t.Fatalf("no arm solution for loc %d at %v", loc, xys[i])
		}
	}

	hit := hw.CheckCollisionsThetaPhi(locs, theta, phi, 4)
	if !hit[0] || !hit[1] {
		t.Fatalf("colliding pair not marked: %v", hit)
	}
	if hit[2] {
		t.Fatal("isolated positioner wrongly marked")
	}
}

func TestCheckCollisionsXYCleanBatch(t *testing.T) {
	hw := testHardware(t, []geom.Point{{X: 0, Y: 0}, {X: 6, Y: 0}})

	hit := hw.CheckCollisionsXY([]int32{1, 2}, []geom.Point{{X: 4, Y: 0}, {X: 8, Y: 0}}, 2)
	for i, h := range hit {
		if h {
			t.Fatalf("index %d marked in a collision-free batch", i)
		}
	}
}
