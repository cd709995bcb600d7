package assign

import (
	"context"
	"testing"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/targets"
)

func TestRedistributeMovesTargetToLaterTile(t *testing.T) {
	// Target A is visible on both tiles, target B only on the first.
	// After the initial sweep A sits on tile 1 and B is unserved; the
	// redistribution pass moves A to tile 2 and frees tile 1 for B.
	hw := testHW(t, []geom.Point{{X: 0, Y: 0}})
	tl := testTiles(t, []int32{1, 2}, 10, 0)
	mtl := testMTL(t, []targets.Target{
		{ID: 100, Type: targets.TypeScience, ObsCond: targets.ObsDark, NObsRemaining: 1, Priority: 2},
		{ID: 101, Type: targets.TypeScience, ObsCond: targets.ObsDark, NObsRemaining: 1, Priority: 1},
	})

	av := emptyAvail(tl)
	addCand(av, 1, 1, 100, geom.Point{X: 4, Y: 0})
	addCand(av, 1, 1, 101, geom.Point{X: -4, Y: 0})
	addCand(av, 2, 1, 100, geom.Point{X: 4, Y: 0})

	eng := New(logging.Noop(), hw, tl, mtl, av, nil, Config{Threads: 1})
	ctx := context.Background()
	eng.NewAssignFibers(ctx)

	asn := eng.Assignment()
	if id, ok := asn.Get(1, 1); !ok || id != 100 {
		t.Fatalf("Get(1,1) = %d,%v after initial sweep, want 100", id, ok)
	}

	eng.RedistributeTF(ctx)
	if id, ok := asn.Get(1, 1); !ok || id != 101 {
		t.Fatalf("Get(1,1) = %d,%v after redistribute, want 101", id, ok)
	}
	if id, ok := asn.Get(2, 1); !ok || id != 100 {
		t.Fatalf("Get(2,1) = %d,%v after redistribute, want 100", id, ok)
	}
}

func TestRedistributeRollsBackWhenNothingGained(t *testing.T) {
	// Same layout without target B: moving A frees nothing, so A must
	// end up back on tile 1.
	hw := testHW(t, []geom.Point{{X: 0, Y: 0}})
	tl := testTiles(t, []int32{1, 2}, 10, 0)
	mtl := testMTL(t, []targets.Target{
		{ID: 100, Type: targets.TypeScience, ObsCond: targets.ObsDark, NObsRemaining: 1},
	})

	av := emptyAvail(tl)
	addCand(av, 1, 1, 100, geom.Point{X: 4, Y: 0})
	addCand(av, 2, 1, 100, geom.Point{X: 4, Y: 0})

	eng := New(logging.Noop(), hw, tl, mtl, av, nil, Config{Threads: 1})
	ctx := context.Background()
	eng.NewAssignFibers(ctx)
	eng.RedistributeTF(ctx)

	asn := eng.Assignment()
	if id, ok := asn.Get(1, 1); !ok || id != 100 {
		t.Fatalf("Get(1,1) = %d,%v, want 100 restored", id, ok)
	}
	if _, ok := asn.Get(2, 1); ok {
		t.Fatal("tile 2 must stay empty after the rollback")
	}
	if asn.AssignedCount() != 1 {
		t.Fatalf("AssignedCount = %d, want 1", asn.AssignedCount())
	}
}

func TestRedistributeSkipsNonScienceAssignments(t *testing.T) {
	hw := testHW(t, []geom.Point{{X: 0, Y: 0}})
	tl := testTiles(t, []int32{1, 2}, 10, 0)
	mtl := testMTL(t, []targets.Target{
		{ID: 200, Type: targets.TypeStandard, ObsCond: targets.ObsDark, NObsRemaining: 1},
	})

	av := emptyAvail(tl)
	addCand(av, 1, 1, 200, geom.Point{X: 4, Y: 0})
	addCand(av, 2, 1, 200, geom.Point{X: 4, Y: 0})

	eng := New(logging.Noop(), hw, tl, mtl, av, nil, Config{Threads: 1})
	ctx := context.Background()
	eng.Assignment().Assign(1, 1, 200)
	eng.RedistributeTF(ctx)

	if id, ok := eng.Assignment().Get(1, 1); !ok || id != 200 {
		t.Fatalf("Get(1,1) = %d,%v, want the standard star untouched", id, ok)
	}
}
