// Package sdfxbridge converts scenes to and from the github.com/deadsy/sdfx
// SDF2 representation so they can be cross-checked against, or marched
// through, the sdfx kernel.
package sdfxbridge

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/scene"
	"sdfmarch/tracer/internal/simulation"
)

// ErrEmptyScene is returned when a union is requested for a scene without shapes.
var ErrEmptyScene = errors.New("sdfx union requires at least one shape")

// Compile-time interface checks.
var (
	_ sdf.SDF2                       = (*SceneSDF2)(nil)
	_ simulation.SignedDistanceField = Field{}
)

// Field wraps an sdfx SDF2 so the marcher can sample it.
type Field struct {
	s sdf.SDF2
}

// NewField adapts s into a marcher field.
func NewField(s sdf.SDF2) Field {
	return Field{s: s}
}

// Sample evaluates the wrapped SDF2. A missing SDF behaves like empty space.
func (f Field) Sample(p geometry.Point) float64 {
	if f.s == nil {
		return math.Inf(1)
	}
	return f.s.Evaluate(toVec(p))
}

// SceneSDF2 exposes a native scene through the sdfx SDF2 interface.
type SceneSDF2 struct {
	scene *scene.Scene
}

// NewSceneSDF2 wraps sc for use with sdfx renderers and operators.
func NewSceneSDF2(sc *scene.Scene) *SceneSDF2 {
	return &SceneSDF2{scene: sc}
}

// Evaluate returns the scene distance at p.
func (s *SceneSDF2) Evaluate(p v2.Vec) float64 {
	return s.scene.Distance(geometry.Pt(p.X, p.Y))
}

// BoundingBox returns the union of shape bounds, or a zero box for an empty scene.
func (s *SceneSDF2) BoundingBox() sdf.Box2 {
	box, ok := s.scene.Bounds()
	if !ok {
		return sdf.Box2{}
	}
	return toBox(box)
}

// ShapeToSDF2 builds the sdfx primitive equivalent to shape.
func ShapeToSDF2(shape geometry.Shape) (sdf.SDF2, error) {
	if shape == nil {
		return nil, errors.New("shape is required")
	}
	switch shape.Kind() {
	case geometry.KindCircle:
		circle, err := sdf.Circle2D(shape.Extent())
		if err != nil {
			return nil, fmt.Errorf("sdfx circle: %w", err)
		}
		return sdf.Transform2D(circle, sdf.Translate2d(toVec(shape.Position()))), nil
	case geometry.KindSquare:
		//1.- An exact polygon distance matches the axis-aligned box formula.
		box := shape.Bounds()
		return polygon([]geometry.Point{
			box.Min,
			geometry.Pt(box.Max.X, box.Min.Y),
			box.Max,
			geometry.Pt(box.Min.X, box.Max.Y),
		})
	case geometry.KindTriangle:
		triangle, ok := shape.(geometry.Triangle)
		if !ok {
			return nil, fmt.Errorf("unexpected triangle type %T", shape)
		}
		vertices := triangle.Vertices()
		return polygon(vertices[:])
	default:
		return nil, fmt.Errorf("unsupported shape kind %s", shape.Kind())
	}
}

// SceneToSDF2 unions every shape of sc into a single sdfx SDF2.
func SceneToSDF2(sc *scene.Scene) (sdf.SDF2, error) {
	shapes := sc.Shapes()
	if len(shapes) == 0 {
		return nil, ErrEmptyScene
	}
	parts := make([]sdf.SDF2, 0, len(shapes))
	for i, shape := range shapes {
		part, err := ShapeToSDF2(shape)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return sdf.Union2D(parts...), nil
}

// FieldForScene converts sc into a marcher field backed by sdfx. An empty
// scene yields a field that is empty space everywhere.
func FieldForScene(sc *scene.Scene) (Field, error) {
	s, err := SceneToSDF2(sc)
	if errors.Is(err, ErrEmptyScene) {
		return Field{}, nil
	}
	if err != nil {
		return Field{}, err
	}
	return NewField(s), nil
}

func polygon(points []geometry.Point) (sdf.SDF2, error) {
	vertices := make([]v2.Vec, len(points))
	for i, p := range points {
		vertices[i] = toVec(p)
	}
	s, err := sdf.Polygon2D(vertices)
	if err != nil {
		return nil, fmt.Errorf("sdfx polygon: %w", err)
	}
	return s, nil
}

func toVec(p geometry.Point) v2.Vec {
	return v2.Vec{X: p.X, Y: p.Y}
}

func toBox(box r2.Box) sdf.Box2 {
	return sdf.Box2{Min: v2.Vec{X: box.Min.X, Y: box.Min.Y}, Max: v2.Vec{X: box.Max.X, Y: box.Max.Y}}
}
