package grpc

import (
	"context"

	"sdfmarch/tracer/internal/driver"
)

// FrameSource exposes subscription semantics for the driver's frame fan-out.
type FrameSource interface {
	Subscribe() (<-chan driver.Frame, func())
}

// CommandSink ingests viewer commands into the driver queue.
type CommandSink interface {
	SubmitCommand(ctx context.Context, cmd driver.Command) error
}

// Bridge aggregates the dependencies required by the gRPC service.
type Bridge interface {
	FrameSource
	CommandSink
}
