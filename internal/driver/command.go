package driver

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sdfmarch/tracer/internal/generator"
	"sdfmarch/tracer/internal/geometry"
)

// Command types accepted from clients.
const (
	CommandReset            = "reset"
	CommandSetRotationSpeed = "set_rotation_speed"
	CommandToggle           = "toggle"
	CommandMarchTowards     = "march_towards"
)

// Command is the client-facing form of an event. A reset without a count
// draws a random one; an explicit zero clears the scene.
type Command struct {
	Type  string   `json:"type"`
	Count *float64 `json:"count,omitempty"`
	Delta float64  `json:"delta,omitempty"`
	X     float64  `json:"x,omitempty"`
	Y     float64  `json:"y,omitempty"`
}

// ResetCommand requests a scene of exactly count shapes.
func ResetCommand(count float64) Command {
	return Command{Type: CommandReset, Count: &count}
}

// DecodeCommand parses and validates a JSON command.
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if _, err := cmd.Event(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Kind returns the normalised command type.
func (c Command) Kind() string {
	return strings.ToLower(strings.TrimSpace(c.Type))
}

// Event maps the command onto its driver event.
func (c Command) Event() (Event, error) {
	switch c.Kind() {
	case CommandReset:
		if c.Count == nil {
			return Reset{Random: true}, nil
		}
		count := *c.Count
		switch {
		case math.IsNaN(count) || math.IsInf(count, 0):
			return nil, fmt.Errorf("reset count must be finite, got %v", count)
		case count < 0:
			return nil, fmt.Errorf("reset count must not be negative, got %v", count)
		case count > generator.MaxCount:
			return nil, fmt.Errorf("%w: %v exceeds %d", ErrTooManyShapes, count, generator.MaxCount)
		}
		return Reset{Count: count}, nil
	case CommandSetRotationSpeed:
		if math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
			return nil, fmt.Errorf("rotation delta must be finite, got %v", c.Delta)
		}
		return AdjustRotationSpeed{Delta: c.Delta}, nil
	case CommandToggle:
		return Toggle{}, nil
	case CommandMarchTowards:
		target := geometry.Pt(c.X, c.Y)
		if !geometry.Finite(target) {
			return nil, fmt.Errorf("march target must be finite, got (%v, %v)", c.X, c.Y)
		}
		return PointerMoved{Target: target}, nil
	case "":
		return nil, fmt.Errorf("command type is required")
	default:
		return nil, fmt.Errorf("unknown command type %q", c.Type)
	}
}
