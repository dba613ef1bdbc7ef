package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/geometry"
)

// Scene is an immutable, ordered collection of primitives. Order only affects
// draw order; distance queries ignore it.
type Scene struct {
	shapes []geometry.Shape
}

// New copies the provided shapes into a scene, skipping nil entries.
func New(shapes ...geometry.Shape) *Scene {
	kept := make([]geometry.Shape, 0, len(shapes))
	for _, shape := range shapes {
		if shape != nil {
			kept = append(kept, shape)
		}
	}
	return &Scene{shapes: kept}
}

// Empty returns a scene without shapes.
func Empty() *Scene {
	return &Scene{}
}

// Len reports how many shapes the scene holds.
func (s *Scene) Len() int {
	if s == nil {
		return 0
	}
	return len(s.shapes)
}

// Shapes returns a copy of the shapes in draw order.
func (s *Scene) Shapes() []geometry.Shape {
	if s == nil {
		return nil
	}
	out := make([]geometry.Shape, len(s.shapes))
	copy(out, s.shapes)
	return out
}

// Shape returns the shape at index i. The second result is false when i is
// out of range.
func (s *Scene) Shape(i int) (geometry.Shape, bool) {
	if i < 0 || i >= s.Len() {
		return nil, false
	}
	return s.shapes[i], true
}

// Distance returns the smallest signed distance from p to any shape. An empty
// scene reports +Inf so marchers fall through to their travel limit.
func (s *Scene) Distance(p geometry.Point) float64 {
	_, d := s.Nearest(p)
	return d
}

// Sample implements the marcher's field contract.
func (s *Scene) Sample(p geometry.Point) float64 {
	return s.Distance(p)
}

// Nearest returns the index and signed distance of the closest shape, or -1 and
// +Inf when the scene is empty. Ties resolve to the earliest shape.
func (s *Scene) Nearest(p geometry.Point) (int, float64) {
	index, best := -1, math.Inf(1)
	if s == nil {
		return index, best
	}
	for i, shape := range s.shapes {
		if d := shape.SignedDistance(p); d < best {
			index, best = i, d
		}
	}
	return index, best
}

// Replace returns a new scene with the shape at index i swapped for shape. The
// receiver is left untouched.
func (s *Scene) Replace(i int, shape geometry.Shape) (*Scene, error) {
	if shape == nil {
		return nil, fmt.Errorf("replacement shape must not be nil")
	}
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("shape index %d out of range [0,%d)", i, s.Len())
	}
	next := s.Shapes()
	next[i] = shape
	return &Scene{shapes: next}, nil
}

// Bounds returns the box enclosing every shape. The second result is false for
// an empty scene.
func (s *Scene) Bounds() (r2.Box, bool) {
	if s.Len() == 0 {
		return r2.Box{}, false
	}
	box := s.shapes[0].Bounds()
	for _, shape := range s.shapes[1:] {
		next := shape.Bounds()
		box = r2.Box{
			Min: r2.Vec{X: math.Min(box.Min.X, next.Min.X), Y: math.Min(box.Min.Y, next.Min.Y)},
			Max: r2.Vec{X: math.Max(box.Max.X, next.Max.X), Y: math.Max(box.Max.Y, next.Max.Y)},
		}
	}
	return box, true
}
