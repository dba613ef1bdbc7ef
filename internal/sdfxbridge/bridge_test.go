package sdfxbridge

import (
	"errors"
	"math"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/scene"
	"sdfmarch/tracer/internal/simulation"
)

func samplePoints() []geometry.Point {
	var out []geometry.Point
	for x := -40.0; x <= 240; x += 17 {
		for y := -40.0; y <= 240; y += 19 {
			out = append(out, geometry.Pt(x, y))
		}
	}
	return out
}

func TestCircleAndSquareMatchNativeDistances(t *testing.T) {
	shapes := []geometry.Shape{
		geometry.Circle{Center: geometry.Pt(60, 80), Radius: 30},
		geometry.Square{Center: geometry.Pt(150, 120), Size: 70},
	}
	for _, shape := range shapes {
		s, err := ShapeToSDF2(shape)
		if err != nil {
			t.Fatalf("%s: %v", shape.Kind(), err)
		}
		for _, p := range samplePoints() {
			want := shape.SignedDistance(p)
			got := s.Evaluate(v2.Vec{X: p.X, Y: p.Y})
			if math.Abs(got-want) > 1e-6 {
				t.Fatalf("%s at %+v: expected %f, got %f", shape.Kind(), p, want, got)
			}
		}
	}
}

func TestTriangleSignAgrees(t *testing.T) {
	triangle := geometry.Triangle{Center: geometry.Pt(100, 100), Size: 90}
	s, err := ShapeToSDF2(triangle)
	if err != nil {
		t.Fatalf("triangle: %v", err)
	}
	for _, p := range samplePoints() {
		want := triangle.SignedDistance(p)
		if math.Abs(want) < 1e-6 {
			continue
		}
		got := s.Evaluate(v2.Vec{X: p.X, Y: p.Y})
		if (want < 0) != (got < 0) {
			t.Fatalf("triangle at %+v: native %f vs sdfx %f disagree on sign", p, want, got)
		}
	}
}

func TestSceneSDF2ExposesNativeScene(t *testing.T) {
	sc := scene.New(
		geometry.Circle{Center: geometry.Pt(0, 0), Radius: 10},
		geometry.Square{Center: geometry.Pt(100, 0), Size: 20},
	)
	wrapped := NewSceneSDF2(sc)
	if got := wrapped.Evaluate(v2.Vec{X: 50, Y: 0}); math.Abs(got-40) > 1e-12 {
		t.Fatalf("expected 40, got %f", got)
	}
	box := wrapped.BoundingBox()
	if box.Min.X != -10 || box.Max.X != 110 || box.Min.Y != -10 || box.Max.Y != 10 {
		t.Fatalf("unexpected bounding box %+v", box)
	}
	if empty := NewSceneSDF2(scene.Empty()).BoundingBox(); empty.Min != empty.Max {
		t.Fatalf("expected degenerate box for empty scene, got %+v", empty)
	}
}

func TestMarchThroughSdfxMatchesNative(t *testing.T) {
	sc := scene.New(
		geometry.Circle{Center: geometry.Pt(300, 0), Radius: 25},
		geometry.Square{Center: geometry.Pt(0, 300), Size: 60},
	)
	field, err := FieldForScene(sc)
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	params := simulation.Params{MaxSteps: 200, MaxTravel: 5000, MinDistance: 0.01}
	for _, angle := range []float64{0, math.Pi / 2} {
		ray := simulation.NewRay(geometry.Pt(0, 0), angle)
		native := simulation.March(sc, ray, params)
		bridged := simulation.March(field, ray, params)
		if native.Termination != bridged.Termination {
			t.Fatalf("angle %f: termination %s vs %s", angle, native.Termination, bridged.Termination)
		}
		if geometry.Distance(native.Terminal(), bridged.Terminal()) > 1e-6 {
			t.Fatalf("angle %f: terminal %+v vs %+v", angle, native.Terminal(), bridged.Terminal())
		}
	}
}

func TestEmptySceneConversions(t *testing.T) {
	if _, err := SceneToSDF2(scene.Empty()); !errors.Is(err, ErrEmptyScene) {
		t.Fatalf("expected ErrEmptyScene, got %v", err)
	}
	field, err := FieldForScene(scene.Empty())
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	if !math.IsInf(field.Sample(geometry.Pt(1, 2)), 1) {
		t.Fatal("expected empty field to be +Inf")
	}
	if _, err := ShapeToSDF2(nil); err == nil {
		t.Fatal("expected nil shape to fail")
	}
}
