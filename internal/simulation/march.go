package simulation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/geometry"
)

const (
	// DefaultMaxSteps bounds how many distance evaluations a single march performs.
	DefaultMaxSteps = 200
	// DefaultMinDistance is the surface tolerance that ends a march as a hit.
	DefaultMinDistance = 0.01
	// DefaultTravelFactor scales the viewport diagonal into the travel limit.
	DefaultTravelFactor = 10
	// DefaultMaxTravel is used when neither the caller nor a viewport supplies a travel limit.
	DefaultMaxTravel = 1e4
)

// SignedDistanceField exposes the sampling contract for marching queries.
type SignedDistanceField interface {
	Sample(point geometry.Point) float64
}

// SampleFunc adapts a function into a SignedDistanceField.
type SampleFunc func(geometry.Point) float64

// Sample invokes the wrapped sampling function.
func (s SampleFunc) Sample(point geometry.Point) float64 {
	return s(point)
}

// Ray is a half line starting at Origin heading along the unit Direction.
type Ray struct {
	Origin    geometry.Point
	Direction geometry.Point
}

// NewRay builds a ray leaving origin at angle radians from the +X axis.
func NewRay(origin geometry.Point, angle float64) Ray {
	return Ray{Origin: origin, Direction: geometry.Pt(math.Cos(angle), math.Sin(angle))}
}

// RayTowards aims a ray from origin at target. Coincident points yield angle zero.
func RayTowards(origin, target geometry.Point) (Ray, float64) {
	angle := math.Atan2(target.Y-origin.Y, target.X-origin.X)
	return NewRay(origin, angle), angle
}

// At returns the point reached after travelling distance along the ray.
func (r Ray) At(distance float64) geometry.Point {
	return r2.Add(r.Origin, r2.Scale(distance, r.Direction))
}

// Angle reports the heading of the ray direction.
func (r Ray) Angle() float64 {
	return math.Atan2(r.Direction.Y, r.Direction.X)
}

// Params bounds a single march.
type Params struct {
	MaxSteps    int
	MaxTravel   float64
	MinDistance float64
}

// DefaultParams returns the reference limits with the fallback travel distance.
func DefaultParams() Params {
	return Params{MaxSteps: DefaultMaxSteps, MaxTravel: DefaultMaxTravel, MinDistance: DefaultMinDistance}
}

// ParamsForViewport sizes the travel limit at ten diagonals of the viewport so
// rays that miss everything still terminate.
func ParamsForViewport(width, height float64) Params {
	params := DefaultParams()
	if diagonal := math.Hypot(width, height); diagonal > 0 && !math.IsInf(diagonal, 0) {
		params.MaxTravel = DefaultTravelFactor * diagonal
	}
	return params
}

// Validate reports every out-of-range limit.
func (p Params) Validate() error {
	var errs []error
	if p.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max steps must be positive, got %d", p.MaxSteps))
	}
	if !(p.MaxTravel > 0) {
		errs = append(errs, fmt.Errorf("max travel must be positive, got %v", p.MaxTravel))
	}
	if !(p.MinDistance > 0) || math.IsInf(p.MinDistance, 0) {
		errs = append(errs, fmt.Errorf("min distance must be a small positive number, got %v", p.MinDistance))
	}
	return errors.Join(errs...)
}

// normalized swaps unusable limits for the defaults.
func (p Params) normalized() Params {
	if p.MaxSteps <= 0 {
		p.MaxSteps = DefaultMaxSteps
	}
	if !(p.MaxTravel > 0) {
		p.MaxTravel = DefaultMaxTravel
	}
	if !(p.MinDistance > 0) || math.IsInf(p.MinDistance, 0) {
		p.MinDistance = DefaultMinDistance
	}
	return p
}

// Termination explains why a march stopped.
type Termination int

const (
	// TerminationHit means the last sample came within MinDistance of a surface
	// (or started inside one).
	TerminationHit Termination = iota
	// TerminationTravelLimit means the accumulated distance reached MaxTravel.
	TerminationTravelLimit
	// TerminationStepLimit means MaxSteps evaluations ran without another condition firing.
	TerminationStepLimit
)

func (t Termination) String() string {
	switch t {
	case TerminationHit:
		return "hit"
	case TerminationTravelLimit:
		return "travel_limit"
	case TerminationStepLimit:
		return "step_limit"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

// Result is the ordered output of one march.
type Result struct {
	Ray Ray
	// Samples starts with the ray origin and ends with the terminal point.
	Samples []geometry.Point
	// Distances[i] is the field value evaluated at Samples[i]. A march that
	// exhausts its step budget leaves the terminal sample unevaluated.
	Distances     []float64
	TotalDistance float64
	Steps         int
	Termination   Termination
}

// Terminal returns the last sample of the march.
func (r Result) Terminal() geometry.Point {
	if len(r.Samples) == 0 {
		return r.Ray.Origin
	}
	return r.Samples[len(r.Samples)-1]
}

// Hit reports whether the march ended near a surface.
func (r Result) Hit() bool {
	return r.Termination == TerminationHit
}

// March sphere-traces field along ray. Each step moves strictly along the
// original direction by the distance sampled at the current position; the
// march stops without appending a sample once the accumulated distance reaches
// MaxTravel or the sampled distance drops below MinDistance.
func March(field SignedDistanceField, ray Ray, params Params) Result {
	params = params.normalized()
	result := Result{
		Ray:         ray,
		Samples:     make([]geometry.Point, 1, 16),
		Distances:   make([]float64, 0, 16),
		Termination: TerminationStepLimit,
	}
	result.Samples[0] = ray.Origin
	if field == nil {
		field = SampleFunc(func(geometry.Point) float64 { return math.Inf(1) })
	}

	position := ray.Origin
	total := 0.0
	for step := 0; step < params.MaxSteps; step++ {
		//1.- Sample the field where the ray currently stands.
		d := field.Sample(position)
		total += d
		result.Steps++
		result.Distances = append(result.Distances, d)
		//2.- Stop on a near-surface sample or once the travel budget is spent.
		if d < params.MinDistance {
			result.Termination = TerminationHit
			break
		}
		if total >= params.MaxTravel {
			result.Termination = TerminationTravelLimit
			break
		}
		//3.- Advance from the origin by the accumulated distance.
		position = ray.At(total)
		result.Samples = append(result.Samples, position)
	}
	result.TotalDistance = total
	return result
}
