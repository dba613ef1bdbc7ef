package driver

import "sdfmarch/tracer/internal/geometry"

// Event is one input to the animation state. The set of events is closed.
type Event interface {
	event()
}

// Tick advances the animation by one frame.
type Tick struct{}

// Toggle flips between running and paused.
type Toggle struct{}

// PointerMoved records the pointer; while paused the ray follows it.
type PointerMoved struct {
	Target geometry.Point
}

// AdjustRotationSpeed adds Delta radians per tick to the rotation speed.
type AdjustRotationSpeed struct {
	Delta float64
}

// Reset regenerates the scene with Count shapes, or with a count drawn from
// the configured range when Random is set. A zero Count clears the scene.
type Reset struct {
	Count  float64
	Random bool
}

func (Tick) event()                {}
func (Toggle) event()              {}
func (PointerMoved) event()        {}
func (AdjustRotationSpeed) event() {}
func (Reset) event()               {}

// EventName labels an event for logs and traces.
func EventName(ev Event) string {
	switch ev.(type) {
	case Tick:
		return "tick"
	case Toggle:
		return "toggle"
	case PointerMoved:
		return "pointer_moved"
	case AdjustRotationSpeed:
		return "adjust_rotation_speed"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}
