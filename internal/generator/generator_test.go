package generator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/geometry"
)

func viewport() r2.Box {
	return r2.NewBox(0, 0, 1280, 720)
}

func TestGenerateRespectsExclusionAndMargin(t *testing.T) {
	rng := NewSource(42)
	for n := 0; n < 40; n++ {
		req := DefaultRequest(float64(n), viewport())
		shapes, report := Generate(rng, req)
		if len(shapes) != n || report.Placed != n || report.Dropped != 0 {
			t.Fatalf("expected %d shapes, got %d (%+v)", n, len(shapes), report)
		}
		for _, shape := range shapes {
			centre := shape.Position()
			//1.- No centre may land within the exclusion disc around the ray origin.
			if geometry.Distance(centre, req.ExclusionCenter) <= req.ExclusionRadius {
				t.Fatalf("shape centre %+v inside exclusion radius", centre)
			}
			//2.- Centres stay inside the bounds shrunk by the margin.
			if centre.X < 50 || centre.X > 1230 || centre.Y < 50 || centre.Y > 670 {
				t.Fatalf("shape centre %+v outside margin", centre)
			}
		}
	}
}

func TestGenerateSizesFollowKind(t *testing.T) {
	shapes, _ := Generate(NewSource(7), DefaultRequest(300, viewport()))
	seen := map[geometry.Kind]int{}
	for _, shape := range shapes {
		seen[shape.Kind()]++
		switch shape.Kind() {
		case geometry.KindCircle:
			if shape.Extent() < 25 || shape.Extent() > 50 {
				t.Fatalf("circle radius %f out of range", shape.Extent())
			}
		case geometry.KindSquare, geometry.KindTriangle:
			if shape.Extent() < 50 || shape.Extent() > 100 {
				t.Fatalf("%s size %f out of range", shape.Kind(), shape.Extent())
			}
		}
	}
	for _, kind := range geometry.Kinds {
		if seen[kind] == 0 {
			t.Fatalf("expected at least one %s in 300 draws", kind)
		}
	}
}

func TestGenerateDropsUnplaceableShapes(t *testing.T) {
	//1.- The shrunk bounds sit entirely inside the exclusion disc.
	req := DefaultRequest(4, r2.NewBox(0, 0, 200, 200))
	req.MaxAttempts = 25
	shapes, report := Generate(NewSource(1), req)
	if len(shapes) != 0 {
		t.Fatalf("expected no shapes, got %d", len(shapes))
	}
	if report.Requested != 4 || report.Dropped != 4 || report.Attempts != 100 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	a, _ := Generate(NewSource(99), DefaultRequest(8, viewport()))
	b, _ := Generate(NewSource(99), DefaultRequest(8, viewport()))
	if len(a) != len(b) {
		t.Fatalf("expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical shape %d, got %+v and %+v", i, a[i], b[i])
		}
	}
}

func TestShapeCount(t *testing.T) {
	cases := []struct {
		raw      float64
		expected int
	}{
		{raw: 0, expected: 0},
		{raw: -3, expected: 0},
		{raw: math.NaN(), expected: 0},
		{raw: 5, expected: 5},
		{raw: 5.2, expected: 6},
		{raw: 0.1, expected: 1},
		{raw: MaxCount - 0.5, expected: MaxCount},
		{raw: 1e12, expected: MaxCount},
		{raw: math.Inf(1), expected: MaxCount},
	}
	for _, tc := range cases {
		if got := ShapeCount(tc.raw); got != tc.expected {
			t.Fatalf("expected %d for %v, got %d", tc.expected, tc.raw, got)
		}
	}
}

func TestGenerateCapsHugeRequests(t *testing.T) {
	req := DefaultRequest(1e12, viewport())
	shapes, report := Generate(NewSource(5), req)
	if report.Requested != MaxCount {
		t.Fatalf("expected request clamped to %d, got %d", MaxCount, report.Requested)
	}
	if len(shapes) > MaxCount || report.Placed+report.Dropped != MaxCount {
		t.Fatalf("expected at most %d shapes, got %d (%+v)", MaxCount, len(shapes), report)
	}
}

func TestRandomCountRange(t *testing.T) {
	rng := NewSource(3)
	for i := 0; i < 100; i++ {
		got := RandomCount(rng, DefaultCountMin, DefaultCountMax)
		if got < 5 || got >= 10 {
			t.Fatalf("expected count in [5,10), got %f", got)
		}
	}
}

func TestShrinkCollapsesNarrowAxis(t *testing.T) {
	lo, hi := shrink(0, 60, 50)
	if lo != 30 || hi != 30 {
		t.Fatalf("expected collapse to 30, got [%f,%f]", lo, hi)
	}
}
