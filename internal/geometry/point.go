package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a position or offset on the tracing plane.
type Point = r2.Vec

// Pt is shorthand for constructing a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return r2.Norm(r2.Sub(a, b))
}

// Finite reports whether both coordinates are finite numbers.
func Finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func absElem(p Point) Point {
	return Point{X: math.Abs(p.X), Y: math.Abs(p.Y)}
}

func maxElem(p Point, v float64) Point {
	return Point{X: math.Max(p.X, v), Y: math.Max(p.Y, v)}
}
