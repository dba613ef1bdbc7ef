package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Kind tags the concrete primitive behind a Shape.
type Kind int

const (
	KindCircle Kind = iota
	KindSquare
	KindTriangle
)

// Kinds lists every primitive kind in declaration order.
var Kinds = [...]Kind{KindCircle, KindSquare, KindTriangle}

func (k Kind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindSquare:
		return "square"
	case KindTriangle:
		return "triangle"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(raw string) (Kind, error) {
	for _, kind := range Kinds {
		if kind.String() == raw {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown shape kind %q", raw)
}

// Shape is a closed set of signed distance primitives. Only Circle, Square and
// Triangle implement it.
type Shape interface {
	// SignedDistance is negative inside the shape, zero on its boundary and
	// positive outside.
	SignedDistance(p Point) float64
	Kind() Kind
	Position() Point
	// Extent is the radius for circles and the side length otherwise.
	Extent() float64
	Bounds() r2.Box

	shape()
}

// New builds the primitive identified by kind.
func New(kind Kind, centre Point, extent float64) (Shape, error) {
	switch kind {
	case KindCircle:
		return NewCircle(centre, extent)
	case KindSquare:
		return NewSquare(centre, extent)
	case KindTriangle:
		return NewTriangle(centre, extent)
	default:
		return nil, fmt.Errorf("unknown shape kind %d", int(kind))
	}
}

func validateExtent(name string, centre Point, value float64) error {
	if !Finite(centre) {
		return fmt.Errorf("%s centre must be finite, got (%v, %v)", name, centre.X, centre.Y)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%s must be a positive finite number, got %v", name, value)
	}
	return nil
}
