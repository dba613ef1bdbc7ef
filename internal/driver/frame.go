package driver

import (
	"encoding/json"
	"fmt"
	"math"

	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/simulation"
)

// Frame is one published animation step. Frames are shared between
// subscribers and must be treated as read-only.
type Frame struct {
	Seq           uint64
	Mode          Mode
	Angle         float64
	RotationSpeed float64
	SceneVersion  uint64
	Shapes        []geometry.Shape
	Result        simulation.Result
	Trail         []geometry.Point
	// Nearest is the index of the shape closest to the terminal point, or -1.
	Nearest int
}

// WirePoint is the JSON form of a point.
type WirePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WireShape is the JSON form of a primitive.
type WireShape struct {
	Kind     string      `json:"kind"`
	Center   WirePoint   `json:"center"`
	Radius   float64     `json:"radius,omitempty"`
	Size     float64     `json:"size,omitempty"`
	Vertices []WirePoint `json:"vertices,omitempty"`
}

// WireSample carries one march position with its draw index and the distance
// sampled there. Distance is omitted when it was not evaluated or is not finite.
type WireSample struct {
	Index    int      `json:"index"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Distance *float64 `json:"distance,omitempty"`
}

// WireMarch is the JSON form of a march result.
type WireMarch struct {
	Origin        WirePoint    `json:"origin"`
	Direction     WirePoint    `json:"direction"`
	Samples       []WireSample `json:"samples"`
	TotalDistance *float64     `json:"total_distance,omitempty"`
	Steps         int          `json:"steps"`
	Termination   string       `json:"termination"`
	Hit           bool         `json:"hit"`
}

// WireFrame is the JSON form of a Frame.
type WireFrame struct {
	Seq           uint64      `json:"seq"`
	Mode          string      `json:"mode"`
	Angle         float64     `json:"angle"`
	RotationSpeed float64     `json:"rotation_speed"`
	SceneVersion  uint64      `json:"scene_version"`
	Shapes        []WireShape `json:"shapes"`
	March         WireMarch   `json:"march"`
	Trail         []WirePoint `json:"trail"`
	Nearest       int         `json:"nearest_shape"`
}

// EncodeFrame renders a frame as JSON.
func EncodeFrame(frame Frame) ([]byte, error) {
	payload, err := json.Marshal(ToWire(frame))
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}
	return payload, nil
}

// DecodeFrame parses a JSON frame produced by EncodeFrame.
func DecodeFrame(payload []byte) (WireFrame, error) {
	var frame WireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return WireFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// ToWire converts a frame into its JSON shape.
func ToWire(frame Frame) WireFrame {
	trail := make([]WirePoint, len(frame.Trail))
	for i, p := range frame.Trail {
		trail[i] = wirePoint(p)
	}
	return WireFrame{
		Seq:           frame.Seq,
		Mode:          frame.Mode.String(),
		Angle:         frame.Angle,
		RotationSpeed: frame.RotationSpeed,
		SceneVersion:  frame.SceneVersion,
		Shapes:        EncodeShapes(frame.Shapes),
		March:         EncodeResult(frame.Result),
		Trail:         trail,
		Nearest:       frame.Nearest,
	}
}

// EncodeShapes converts shapes into their JSON shape in draw order.
func EncodeShapes(shapes []geometry.Shape) []WireShape {
	out := make([]WireShape, 0, len(shapes))
	for _, shape := range shapes {
		wire := WireShape{Kind: shape.Kind().String(), Center: wirePoint(shape.Position())}
		switch v := shape.(type) {
		case geometry.Circle:
			wire.Radius = v.Radius
		case geometry.Square:
			wire.Size = v.Size
		case geometry.Triangle:
			wire.Size = v.Size
			for _, vertex := range v.Vertices() {
				wire.Vertices = append(wire.Vertices, wirePoint(vertex))
			}
		}
		out = append(out, wire)
	}
	return out
}

// EncodeResult converts a march result into its JSON shape.
func EncodeResult(result simulation.Result) WireMarch {
	samples := make([]WireSample, len(result.Samples))
	for i, p := range result.Samples {
		samples[i] = WireSample{Index: i, X: p.X, Y: p.Y}
		if i < len(result.Distances) {
			samples[i].Distance = finite(result.Distances[i])
		}
	}
	return WireMarch{
		Origin:        wirePoint(result.Ray.Origin),
		Direction:     wirePoint(result.Ray.Direction),
		Samples:       samples,
		TotalDistance: finite(result.TotalDistance),
		Steps:         result.Steps,
		Termination:   result.Termination.String(),
		Hit:           result.Hit(),
	}
}

// Point converts the wire form back into a geometry point.
func (p WirePoint) Point() geometry.Point {
	return geometry.Pt(p.X, p.Y)
}

func wirePoint(p geometry.Point) WirePoint {
	return WirePoint{X: p.X, Y: p.Y}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
