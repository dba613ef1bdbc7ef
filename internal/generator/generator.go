package generator

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/geometry"
)

const (
	// DefaultMargin keeps shape centres away from the bounds edges.
	DefaultMargin = 50
	// DefaultExclusionRadius keeps shapes clear of the shared ray origin.
	DefaultExclusionRadius = 150
	// DefaultMaxAttempts caps rejection sampling per shape.
	DefaultMaxAttempts = 1000

	DefaultRadiusMin = 25
	DefaultRadiusMax = 50
	DefaultSizeMin   = 50
	DefaultSizeMax   = 100

	// DefaultCountMin and DefaultCountMax bound RandomCount draws.
	DefaultCountMin = 5
	DefaultCountMax = 10

	// MaxCount is the most shapes a single request can produce.
	MaxCount = 1000
)

// Source is the slice of *rand.Rand the generator consumes.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// NewSource returns a deterministic PCG-backed source for seed.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Request describes one batch of random shapes.
type Request struct {
	// Count is rounded up, so fractional counts behave like a "for i < n" loop.
	Count           float64
	Bounds          r2.Box
	ExclusionCenter geometry.Point
	// ExclusionRadius rejects centres at or within this distance of ExclusionCenter.
	ExclusionRadius float64
	Margin          float64
	RadiusMin       float64
	RadiusMax       float64
	SizeMin         float64
	SizeMax         float64
	MaxAttempts     int
}

// DefaultRequest fills in the reference ranges and excludes the centre of bounds.
func DefaultRequest(count float64, bounds r2.Box) Request {
	return Request{
		Count:           count,
		Bounds:          bounds,
		ExclusionCenter: bounds.Center(),
		ExclusionRadius: DefaultExclusionRadius,
		Margin:          DefaultMargin,
		RadiusMin:       DefaultRadiusMin,
		RadiusMax:       DefaultRadiusMax,
		SizeMin:         DefaultSizeMin,
		SizeMax:         DefaultSizeMax,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// Report accounts for what a Generate call produced.
type Report struct {
	Requested int
	Placed    int
	// Dropped counts shapes abandoned after MaxAttempts rejected centres.
	Dropped  int
	Attempts int
}

// ShapeCount converts a caller supplied count into an integer in [0, MaxCount].
func ShapeCount(raw float64) int {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw >= MaxCount {
		return MaxCount
	}
	return int(math.Ceil(raw))
}

// RandomCount draws a count uniformly from [min, max).
func RandomCount(rng Source, min, max int) float64 {
	if max < min {
		min, max = max, min
	}
	return float64(min) + rng.Float64()*float64(max-min)
}

// Generate places random circles, squares and triangles inside the request
// bounds. Centres falling within the exclusion radius are resampled; a shape
// whose centre cannot be placed within MaxAttempts draws is dropped, so no
// returned shape ever violates the exclusion.
func Generate(rng Source, req Request) ([]geometry.Shape, Report) {
	req = req.normalized()
	report := Report{Requested: ShapeCount(req.Count)}
	shapes := make([]geometry.Shape, 0, report.Requested)
	xLo, xHi := shrink(req.Bounds.Min.X, req.Bounds.Max.X, req.Margin)
	yLo, yHi := shrink(req.Bounds.Min.Y, req.Bounds.Max.Y, req.Margin)

	for i := 0; i < report.Requested; i++ {
		//1.- Pick the kind first so kinds stay uniform regardless of placement failures.
		kind := geometry.Kinds[rng.IntN(len(geometry.Kinds))]

		//2.- Rejection-sample the centre against the exclusion disc.
		center, placed := geometry.Point{}, false
		for attempt := 0; attempt < req.MaxAttempts; attempt++ {
			report.Attempts++
			center = geometry.Pt(uniform(rng, xLo, xHi), uniform(rng, yLo, yHi))
			if geometry.Distance(center, req.ExclusionCenter) > req.ExclusionRadius {
				placed = true
				break
			}
		}
		if !placed {
			report.Dropped++
			continue
		}

		//3.- Size the primitive from the range matching its kind.
		extent := uniform(rng, req.SizeMin, req.SizeMax)
		if kind == geometry.KindCircle {
			extent = uniform(rng, req.RadiusMin, req.RadiusMax)
		}
		shape, err := geometry.New(kind, center, extent)
		if err != nil {
			report.Dropped++
			continue
		}
		shapes = append(shapes, shape)
	}
	report.Placed = len(shapes)
	return shapes, report
}

func (r Request) normalized() Request {
	if r.Margin < 0 || math.IsNaN(r.Margin) {
		r.Margin = 0
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if !(r.RadiusMin > 0) || !(r.RadiusMax > 0) {
		r.RadiusMin, r.RadiusMax = DefaultRadiusMin, DefaultRadiusMax
	}
	if !(r.SizeMin > 0) || !(r.SizeMax > 0) {
		r.SizeMin, r.SizeMax = DefaultSizeMin, DefaultSizeMax
	}
	return r
}

// shrink pulls both edges in by margin, collapsing to the midpoint when the
// interval is too narrow.
func shrink(lo, hi, margin float64) (float64, float64) {
	if hi < lo {
		lo, hi = hi, lo
	}
	lo, hi = lo+margin, hi-margin
	if hi < lo {
		mid := (lo + hi) / 2
		return mid, mid
	}
	return lo, hi
}

func uniform(rng Source, lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + rng.Float64()*(hi-lo)
}
