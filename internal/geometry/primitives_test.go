package geometry

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestCircleSignedDistanceMatchesAnalytic(t *testing.T) {
	circle, err := NewCircle(Pt(100, 100), 20)
	if err != nil {
		t.Fatalf("new circle: %v", err)
	}
	cases := []struct {
		point    Point
		expected float64
	}{
		{point: Pt(100, 100), expected: -20},
		{point: Pt(120, 100), expected: 0},
		{point: Pt(100, 80), expected: 0},
		{point: Pt(110, 100), expected: -10},
		{point: Pt(0, 100), expected: 80},
		{point: Pt(103, 104), expected: -15},
	}
	for _, tc := range cases {
		if got := circle.SignedDistance(tc.point); math.Abs(got-tc.expected) > tolerance {
			t.Fatalf("expected %f at %+v, got %f", tc.expected, tc.point, got)
		}
	}
}

func TestCircleDistanceIsRotationallySymmetric(t *testing.T) {
	circle := Circle{Center: Pt(-4, 7), Radius: 3}
	for i := 0; i < 32; i++ {
		angle := float64(i) * math.Pi / 16
		//1.- Sample the boundary, an inner ring and an outer ring at the same bearing.
		for _, radius := range []float64{1, 3, 9} {
			p := Pt(-4+radius*math.Cos(angle), 7+radius*math.Sin(angle))
			if got := circle.SignedDistance(p); math.Abs(got-(radius-3)) > tolerance {
				t.Fatalf("expected %f at angle %f, got %f", radius-3, angle, got)
			}
		}
	}
}

func TestSquareSignedDistance(t *testing.T) {
	square := Square{Center: Pt(10, 10), Size: 8}
	cases := []struct {
		name     string
		point    Point
		expected float64
	}{
		{name: "centre", point: Pt(10, 10), expected: -4},
		{name: "edge", point: Pt(14, 10), expected: 0},
		{name: "inside near edge", point: Pt(13, 11), expected: -1},
		{name: "outside axis", point: Pt(20, 10), expected: 6},
		{name: "outside corner", point: Pt(17, 18), expected: 5},
	}
	for _, tc := range cases {
		if got := square.SignedDistance(tc.point); math.Abs(got-tc.expected) > tolerance {
			t.Fatalf("%s: expected %f, got %f", tc.name, tc.expected, got)
		}
	}
}

func TestSquareCentreDistanceIsHalfSize(t *testing.T) {
	for _, size := range []float64{0.5, 1, 50, 73.25, 100} {
		square := Square{Center: Pt(3, -2), Size: size}
		if got := square.SignedDistance(square.Center); math.Abs(got+size/2) > tolerance {
			t.Fatalf("expected %f for size %f, got %f", -size/2, size, got)
		}
	}
}

func TestTriangleVerticesAndSign(t *testing.T) {
	triangle := Triangle{Center: Pt(0, 0), Size: 2}
	v := triangle.Vertices()
	k := math.Sqrt(3) / 2
	if v[0] != Pt(-1, k) || v[1] != Pt(1, k) || v[2] != Pt(0, -k) {
		t.Fatalf("unexpected vertices %+v", v)
	}
	if got := triangle.SignedDistance(Pt(0, 0)); got >= 0 {
		t.Fatalf("expected centre to be inside, got %f", got)
	}
	//1.- Directly below the base the distance is the vertical gap.
	if got := triangle.SignedDistance(Pt(0, k+3)); math.Abs(got-3) > tolerance {
		t.Fatalf("expected 3 below the base, got %f", got)
	}
	//2.- Beyond the apex the nearest feature is the apex vertex itself.
	if got := triangle.SignedDistance(Pt(0, -k-2)); math.Abs(got-2) > tolerance {
		t.Fatalf("expected 2 above the apex, got %f", got)
	}
	for _, vertex := range v {
		if got := triangle.SignedDistance(vertex); math.Abs(got) > tolerance {
			t.Fatalf("expected vertex %+v on boundary, got %f", vertex, got)
		}
	}
}

func TestTriangleInteriorDistanceIsInradiusAtCentroid(t *testing.T) {
	triangle := Triangle{Center: Pt(5, 5), Size: 6}
	v := triangle.Vertices()
	centroid := Pt((v[0].X+v[1].X+v[2].X)/3, (v[0].Y+v[1].Y+v[2].Y)/3)
	inradius := 6 / (2 * math.Sqrt(3))
	if got := triangle.SignedDistance(centroid); math.Abs(got+inradius) > tolerance {
		t.Fatalf("expected %f at centroid, got %f", -inradius, got)
	}
}

func TestSegmentDistanceClampsAndGuardsDegenerate(t *testing.T) {
	a, b := Pt(0, 0), Pt(10, 0)
	cases := []struct {
		point    Point
		expected float64
	}{
		{point: Pt(5, 3), expected: 3},
		{point: Pt(-3, 4), expected: 5},
		{point: Pt(13, -4), expected: 5},
	}
	for _, tc := range cases {
		if got := SegmentDistance(tc.point, a, b); math.Abs(got-tc.expected) > tolerance {
			t.Fatalf("expected %f, got %f", tc.expected, got)
		}
	}
	got := SegmentDistance(Pt(3, 4), Pt(0, 0), Pt(0, 0))
	if math.IsNaN(got) || math.Abs(got-5) > tolerance {
		t.Fatalf("expected degenerate segment distance 5, got %f", got)
	}
}

func TestPointInTriangleTreatsCollinearAsInside(t *testing.T) {
	a, b, c := Pt(0, 0), Pt(4, 0), Pt(0, 4)
	if !PointInTriangle(Pt(2, 0), a, b, c) {
		t.Fatal("expected point on edge to count as inside")
	}
	if !PointInTriangle(Pt(1, 1), c, b, a) {
		t.Fatal("expected interior point inside regardless of winding")
	}
	if PointInTriangle(Pt(3, 3), a, b, c) {
		t.Fatal("expected point beyond hypotenuse to be outside")
	}
}

func TestConstructorsRejectNonPositiveExtent(t *testing.T) {
	for _, kind := range Kinds {
		for _, extent := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			if _, err := New(kind, Pt(0, 0), extent); err == nil {
				t.Fatalf("expected %s with extent %v to be rejected", kind, extent)
			}
		}
		shape, err := New(kind, Pt(1, 2), 4)
		if err != nil {
			t.Fatalf("new %s: %v", kind, err)
		}
		if shape.Kind() != kind || shape.Position() != Pt(1, 2) || shape.Extent() != 4 {
			t.Fatalf("unexpected %s shape %+v", kind, shape)
		}
	}
	if _, err := NewCircle(Pt(math.NaN(), 0), 1); err == nil {
		t.Fatal("expected non-finite centre to be rejected")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, kind := range Kinds {
		parsed, err := ParseKind(kind.String())
		if err != nil || parsed != kind {
			t.Fatalf("expected %s, got %v (%v)", kind, parsed, err)
		}
	}
	if _, err := ParseKind("hexagon"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestBoundsEncloseShapes(t *testing.T) {
	shapes := []Shape{
		Circle{Center: Pt(10, 10), Radius: 5},
		Square{Center: Pt(10, 10), Size: 10},
		Triangle{Center: Pt(10, 10), Size: 10},
	}
	for _, shape := range shapes {
		box := shape.Bounds()
		if box.Empty() {
			t.Fatalf("expected non-empty bounds for %s", shape.Kind())
		}
		if !box.Contains(shape.Position()) {
			t.Fatalf("expected %s bounds to contain its position", shape.Kind())
		}
	}
}
