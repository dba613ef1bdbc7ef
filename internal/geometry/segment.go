package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// SegmentDistance returns the unsigned distance from p to the segment ab. A
// zero-length segment degrades to the distance from p to a.
func SegmentDistance(p, a, b Point) float64 {
	pa := r2.Sub(p, a)
	ba := r2.Sub(b, a)
	denom := r2.Dot(ba, ba)
	if denom == 0 {
		return r2.Norm(pa)
	}
	//1.- Project onto the segment and clamp so the nearest point stays between the endpoints.
	h := math.Max(0, math.Min(1, r2.Dot(pa, ba)/denom))
	return r2.Norm(r2.Sub(pa, r2.Scale(h, ba)))
}

// PointInTriangle reports whether p lies inside or on the triangle abc. The
// winding of the vertices does not matter; points collinear with an edge count
// as inside.
func PointInTriangle(p, a, b, c Point) bool {
	d1 := orient(p, a, b)
	d2 := orient(p, b, c)
	d3 := orient(p, c, a)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// orient is twice the signed area of the triangle pab.
func orient(p, a, b Point) float64 {
	return r2.Cross(r2.Sub(p, b), r2.Sub(a, b))
}
