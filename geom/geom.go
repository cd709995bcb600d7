// Package geom provides the 2D primitives used by the focal-plane
// hardware model: points, rigid transforms, and polygonal shapes with a
// circular bounding region for cheap intersection rejection.
package geom

import "math"

// Point is a position or displacement on the focal plane, in millimetres.
type Point struct {
	X, Y float64
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the Euclidean norm of p.
func (p Point) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// SqNorm returns the squared Euclidean norm of p.
func (p Point) SqNorm() float64 {
	return p.X*p.X + p.Y*p.Y
}

// Dist returns the distance between two points.
func Dist(p, q Point) float64 {
	return p.Sub(q).Norm()
}

// SqDist returns the squared distance between two points.
func SqDist(p, q Point) float64 {
	return p.Sub(q).SqNorm()
}

// CosSin bundles the cosine and sine of a rotation angle so callers can
// compute them once and reuse them across many vertices.
type CosSin struct {
	Cos, Sin float64
}

// AngleToCosSin returns the rotation pair for an angle in radians.
func AngleToCosSin(ang float64) CosSin {
	return CosSin{Cos: math.Cos(ang), Sin: math.Sin(ang)}
}

func rotatePoint(p Point, cs CosSin) Point {
	return Point{
		X: cs.Cos*p.X - cs.Sin*p.Y,
		Y: cs.Sin*p.X + cs.Cos*p.Y,
	}
}

// Circle is a circular region, used both as a shape primitive and as the
// bounding disk of a polygon.
type Circle struct {
	Center Point
	Radius float64
}

// Shape is a closed polygon with a bounding circle. The Axis point is the
// pivot used by Rotation; Transl moves it along with the vertices, so
// after translating a phi-arm template by the theta arm length the shape
// rotates about the elbow, not the origin.
type Shape struct {
	Axis   Point
	Points []Point
	Bound  Circle
}

// NewShape builds a Shape from polygon vertices. The bounding circle is
// centered on the vertex centroid with radius reaching the farthest
// vertex. The rotation axis starts at the origin.
func NewShape(points []Point) Shape {
	s := Shape{Points: make([]Point, len(points))}
	copy(s.Points, points)
	if len(points) == 0 {
		return s
	}
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(points))
	c.Y /= float64(len(points))
	r := 0.0
	for _, p := range points {
		if d := Dist(c, p); d > r {
			r = d
		}
	}
	s.Bound = Circle{Center: c, Radius: r}
	return s
}

// Copy returns a deep copy of the shape. Placement code copies the
// per-location templates so the originals are never mutated.
func (s Shape) Copy() Shape {
	out := s
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

// Transl translates the shape, its bounding circle, and its rotation
// axis by v.
func (s *Shape) Transl(v Point) {
	for i := range s.Points {
		s.Points[i] = s.Points[i].Add(v)
	}
	s.Bound.Center = s.Bound.Center.Add(v)
	s.Axis = s.Axis.Add(v)
}

// RotationOrigin rotates the shape about the origin.
func (s *Shape) RotationOrigin(cs CosSin) {
	for i := range s.Points {
		s.Points[i] = rotatePoint(s.Points[i], cs)
	}
	s.Bound.Center = rotatePoint(s.Bound.Center, cs)
	s.Axis = rotatePoint(s.Axis, cs)
}

// Rotation rotates the shape about its current axis point.
func (s *Shape) Rotation(cs CosSin) {
	for i := range s.Points {
		s.Points[i] = rotatePoint(s.Points[i].Sub(s.Axis), cs).Add(s.Axis)
	}
	s.Bound.Center = rotatePoint(s.Bound.Center.Sub(s.Axis), cs).Add(s.Axis)
}

// orientation of the ordered triple (a, b, c): positive for counter
// clockwise, negative for clockwise, zero for collinear.
func orientation(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, p Point) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}

// segmentsCross reports whether segments ab and cd intersect, including
// collinear overlap and shared endpoints.
func segmentsCross(a, b, c, d Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if ((o1 > 0) != (o2 > 0)) && ((o3 > 0) != (o4 > 0)) && o1 != 0 && o2 != 0 && o3 != 0 && o4 != 0 {
		return true
	}
	if o1 == 0 && onSegment(a, b, c) {
		return true
	}
	if o2 == 0 && onSegment(a, b, d) {
		return true
	}
	if o3 == 0 && onSegment(c, d, a) {
		return true
	}
	if o4 == 0 && onSegment(c, d, b) {
		return true
	}
	return false
}

// contains reports whether p lies inside the polygon by ray casting.
func contains(poly []Point, p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi := poly[i]
		pj := poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xCross := pj.X + (p.Y-pj.Y)*(pi.X-pj.X)/(pi.Y-pj.Y)
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Intersect reports whether two shapes overlap: any edge of one crosses
// an edge of the other, or one polygon contains a vertex of the other.
// The bounding circles reject distant pairs before any edge test runs.
func Intersect(a, b Shape) bool {
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return false
	}
	if Dist(a.Bound.Center, b.Bound.Center) > a.Bound.Radius+b.Bound.Radius {
		return false
	}
	na := len(a.Points)
	nb := len(b.Points)
	for i := 0; i < na; i++ {
		p1 := a.Points[i]
		p2 := a.Points[(i+1)%na]
		for j := 0; j < nb; j++ {
			q1 := b.Points[j]
			q2 := b.Points[(j+1)%nb]
			if segmentsCross(p1, p2, q1, q2) {
				return true
			}
		}
	}
	if contains(a.Points, b.Points[0]) {
		return true
	}
	if contains(b.Points, a.Points[0]) {
		return true
	}
	return false
}
