package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// halfHeight is the equilateral triangle height per unit side length.
var halfHeight = math.Sqrt(3) / 2

// Circle is a disc around Center.
type Circle struct {
	Center Point
	Radius float64
}

// NewCircle validates the radius and returns the circle.
func NewCircle(center Point, radius float64) (Circle, error) {
	if err := validateExtent("circle radius", center, radius); err != nil {
		return Circle{}, err
	}
	return Circle{Center: center, Radius: radius}, nil
}

// SignedDistance subtracts the radius from the distance to the centre.
func (c Circle) SignedDistance(p Point) float64 {
	return Distance(p, c.Center) - c.Radius
}

func (c Circle) Kind() Kind      { return KindCircle }
func (c Circle) Position() Point { return c.Center }
func (c Circle) Extent() float64 { return c.Radius }

// Bounds returns the axis aligned box enclosing the circle.
func (c Circle) Bounds() r2.Box {
	return r2.NewBox(c.Center.X-c.Radius, c.Center.Y-c.Radius, c.Center.X+c.Radius, c.Center.Y+c.Radius)
}

func (Circle) shape() {}

// Square is an axis aligned square with full side length Size.
type Square struct {
	Center Point
	Size   float64
}

// NewSquare validates the side length and returns the square.
func NewSquare(center Point, size float64) (Square, error) {
	if err := validateExtent("square size", center, size); err != nil {
		return Square{}, err
	}
	return Square{Center: center, Size: size}, nil
}

// SignedDistance is the exact box distance: the per-axis excess over the half
// extent, combined so interior points stay negative.
func (s Square) SignedDistance(p Point) float64 {
	half := s.Size / 2
	d := r2.Sub(absElem(r2.Sub(p, s.Center)), Point{X: half, Y: half})
	inside := math.Min(math.Max(d.X, d.Y), 0)
	return inside + r2.Norm(maxElem(d, 0))
}

func (s Square) Kind() Kind      { return KindSquare }
func (s Square) Position() Point { return s.Center }
func (s Square) Extent() float64 { return s.Size }

// Bounds returns the square itself.
func (s Square) Bounds() r2.Box {
	half := s.Size / 2
	return r2.NewBox(s.Center.X-half, s.Center.Y-half, s.Center.X+half, s.Center.Y+half)
}

func (Square) shape() {}

// Triangle is an equilateral triangle with side Size centred on Center. The
// apex points toward negative Y, which is "up" on a screen.
type Triangle struct {
	Center Point
	Size   float64
}

// NewTriangle validates the side length and returns the triangle.
func NewTriangle(center Point, size float64) (Triangle, error) {
	if err := validateExtent("triangle size", center, size); err != nil {
		return Triangle{}, err
	}
	return Triangle{Center: center, Size: size}, nil
}

// Vertices returns the base-left, base-right and apex corners.
func (t Triangle) Vertices() [3]Point {
	half := t.Size / 2
	rise := halfHeight * t.Size / 2
	return [3]Point{
		{X: t.Center.X - half, Y: t.Center.Y + rise},
		{X: t.Center.X + half, Y: t.Center.Y + rise},
		{X: t.Center.X, Y: t.Center.Y - rise},
	}
}

// SignedDistance takes the closest edge distance and negates it for interior points.
func (t Triangle) SignedDistance(p Point) float64 {
	v := t.Vertices()
	//1.- Measure the unsigned distance to each edge and keep the smallest.
	d := math.Min(SegmentDistance(p, v[0], v[1]), math.Min(SegmentDistance(p, v[1], v[2]), SegmentDistance(p, v[2], v[0])))
	//2.- Flip the sign once the orientation test places the point inside.
	if PointInTriangle(p, v[0], v[1], v[2]) {
		return -d
	}
	return d
}

func (t Triangle) Kind() Kind      { return KindTriangle }
func (t Triangle) Position() Point { return t.Center }
func (t Triangle) Extent() float64 { return t.Size }

// Bounds returns the box spanned by the three vertices.
func (t Triangle) Bounds() r2.Box {
	v := t.Vertices()
	return r2.NewBox(v[0].X, v[2].Y, v[1].X, v[0].Y)
}

func (Triangle) shape() {}
