package targets

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// SkyIndex answers radius queries on the celestial sphere. Near may
// return a superset of the targets within the radius; callers
// re-filter with exact geometry.
type SkyIndex interface {
	Near(raDeg, decDeg, radiusDeg float64) []int64
}

// Tree is the default in-process SkyIndex: a k-d tree over target unit
// vectors, with angular radii converted to chord lengths.
type Tree struct {
	tree *kdtree.Tree
}

// NewTree indexes every target in the catalog.
func NewTree(m *MTL) *Tree {
	pts := make(skyPoints, 0, m.Len())
	for _, id := range m.IDs() {
		tg, _ := m.Get(id)
		pts = append(pts, skyPoint{vec: unitVector(tg.RA, tg.Dec), id: id})
	}
	if len(pts) == 0 {
		return &Tree{}
	}
	return &Tree{tree: kdtree.New(pts, false)}
}

// Near returns the ids of all indexed targets within the angular
// radius of the given sky direction, sorted ascending.
func (t *Tree) Near(raDeg, decDeg, radiusDeg float64) []int64 {
	if t.tree == nil {
		return nil
	}
	q := skyPoint{vec: unitVector(raDeg, decDeg)}

	// An angular separation maps to a chord through the unit sphere;
	// the keeper works in squared chord length. The small inflation
	// keeps borderline targets in the superset.
	chord := 2.0 * math.Sin(radiusDeg*math.Pi/180.0/2.0)
	keeper := kdtree.NewDistKeeper(chord*chord*(1.0+1e-12) + 1e-15)
	t.tree.NearestSet(keeper, q)

	var ids []int64
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		ids = append(ids, c.Comparable.(skyPoint).id)
	}
	slices.Sort(ids)
	return ids
}

func unitVector(raDeg, decDeg float64) [3]float64 {
	degToRad := math.Pi / 180.0
	incRad := (90.0 - decDeg) * degToRad
	raRad := raDeg * degToRad
	sinInc := math.Sin(incRad)
	return [3]float64{
		sinInc * math.Cos(raRad),
		sinInc * math.Sin(raRad),
		math.Cos(incRad),
	}
}

// skyPoint is one indexed target on the unit sphere.
type skyPoint struct {
	vec [3]float64
	id  int64
}

func (p skyPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(skyPoint)
	return p.vec[d] - q.vec[d]
}

func (p skyPoint) Dims() int { return 3 }

func (p skyPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(skyPoint)
	var sum float64
	for i := range p.vec {
		d := p.vec[i] - q.vec[i]
		sum += d * d
	}
	return sum
}

// skyPoints implements kdtree.Interface over a slice of skyPoint.
type skyPoints []skyPoint

func (p skyPoints) Index(i int) kdtree.Comparable { return p[i] }

func (p skyPoints) Len() int { return len(p) }

func (p skyPoints) Pivot(d kdtree.Dim) int {
	return skyPlane{points: p, Dim: d}.Pivot()
}

func (p skyPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// skyPlane sorts skyPoints along a single dimension for pivot
// selection.
type skyPlane struct {
	kdtree.Dim
	points skyPoints
}

func (p skyPlane) Less(i, j int) bool {
	return p.points[i].vec[p.Dim] < p.points[j].vec[p.Dim]
}

func (p skyPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p skyPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

func (p skyPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func (p skyPlane) Len() int { return len(p.points) }
