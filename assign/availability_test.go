package assign

import (
	"context"
	"slices"
	"testing"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/targets"
)

// buildAvail runs Build over a fixed pointing at (10, 0) with the sky
// index derived from the same catalog.
func buildAvail(t *testing.T, centers []geom.Point, tileIDs []int32, list []targets.Target) (*Availability, *targets.MTL) {
	t.Helper()
	hw := testHW(t, centers)
	tl := testTiles(t, tileIDs, 10, 0)
	mtl := testMTL(t, list)
	av := Build(context.Background(), logging.Noop(), hw, tl, mtl, targets.NewTree(mtl), 1)
	return av, mtl
}

func TestBuildKeepsReachableTarget(t *testing.T) {
	// A target 0.01 degrees from the tile center projects a couple of
	// millimetres from the focal-plane origin, inside the patrol disk of
	// a positioner at the origin.
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{1},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1},
		},
	)

	if !slices.Equal(av.TileLoc[1][1], []int64{100}) {
		t.Fatalf("TileLoc[1][1] = %v, want [100]", av.TileLoc[1][1])
	}
	if len(av.TargetAvail[100]) != 1 || av.TargetAvail[100][0] != (TileLoc{Tile: 1, Loc: 1}) {
		t.Fatalf("TargetAvail[100] = %v", av.TargetAvail[100])
	}
	if _, ok := av.XY[1][100]; !ok {
		t.Fatal("projected position missing from XY map")
	}
}

func TestBuildRejectsOutOfPatrolTarget(t *testing.T) {
	// The same central target is far outside the 5.8 mm patrol disk of a
	// positioner 100 mm off axis.
	av, _ := buildAvail(t,
		[]geom.Point{{X: 100, Y: 0}},
		[]int32{1},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1},
		},
	)

	if len(av.TileLoc[1][1]) != 0 {
		t.Fatalf("TileLoc[1][1] = %v, want empty", av.TileLoc[1][1])
	}
	if len(av.TargetAvail[100]) != 0 {
		t.Fatalf("TargetAvail[100] = %v, want empty", av.TargetAvail[100])
	}
}

func TestBuildFiltersObsCond(t *testing.T) {
	// The tile observes in dark time; a bright-only target is excluded
	// even though it is geometrically reachable.
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{1},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsBright, Type: targets.TypeScience, NObsRemaining: 1},
		},
	)

	if len(av.TileLoc[1][1]) != 0 {
		t.Fatalf("bright-only target leaked into a dark tile: %v", av.TileLoc[1][1])
	}
}

func TestBuildFiltersExhaustedTargets(t *testing.T) {
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{1},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 0},
		},
	)

	if len(av.TileLoc[1][1]) != 0 {
		t.Fatalf("exhausted target leaked into availability: %v", av.TileLoc[1][1])
	}
}

func TestBuildOrdersCandidates(t *testing.T) {
	// Priority descending, subpriority descending, then id ascending.
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{1},
		[]targets.Target{
			{ID: 1, RA: 10.005, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1, Priority: 5, Subpriority: 0.9},
			{ID: 2, RA: 9.995, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1, Priority: 5, Subpriority: 0.2},
			{ID: 3, RA: 10, Dec: 0.005, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1, Priority: 10},
			{ID: 4, RA: 10, Dec: -0.005, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 1, Priority: 5, Subpriority: 0.2},
		},
	)

	if !slices.Equal(av.TileLoc[1][1], []int64{3, 1, 2, 4}) {
		t.Fatalf("TileLoc[1][1] = %v, want [3 1 2 4]", av.TileLoc[1][1])
	}
}

func TestBuildTargetAvailFollowsTileSequence(t *testing.T) {
	// Tiles 5 and 3 share one pointing; the inverse map lists slots in
	// sequence order, not id order.
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{5, 3},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 2},
		},
	)

	want := []TileLoc{{Tile: 5, Loc: 1}, {Tile: 3, Loc: 1}}
	if !slices.Equal(av.TargetAvail[100], want) {
		t.Fatalf("TargetAvail[100] = %v, want %v", av.TargetAvail[100], want)
	}
}

func TestRemoveDropsLaterTilesOnly(t *testing.T) {
	tl := testTiles(t, []int32{5, 3}, 10, 0)
	av, _ := buildAvail(t,
		[]geom.Point{{X: 0, Y: 0}},
		[]int32{5, 3},
		[]targets.Target{
			{ID: 100, RA: 10.01, Dec: 0, ObsCond: targets.ObsDark, Type: targets.TypeScience, NObsRemaining: 2},
		},
	)

	av.Remove(100, tl, 0)

	if !slices.Equal(av.TargetAvail[100], []TileLoc{{Tile: 5, Loc: 1}}) {
		t.Fatalf("TargetAvail[100] = %v, want only the first tile", av.TargetAvail[100])
	}
	if !slices.Equal(av.TileLoc[5][1], []int64{100}) {
		t.Fatalf("TileLoc[5][1] = %v, want [100]", av.TileLoc[5][1])
	}
	if slices.Contains(av.TileLoc[3][1], 100) {
		t.Fatalf("TileLoc[3][1] = %v still contains the removed target", av.TileLoc[3][1])
	}
}
