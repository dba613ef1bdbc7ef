package main

import (
	"context"
	"errors"

	"sdfmarch/tracer/internal/driver"
	grpcstream "sdfmarch/tracer/internal/grpc"
)

// engineBridge joins the frame fan-out and the driver queue for the gRPC service.
type engineBridge struct {
	frames *driver.Broadcaster
	engine *driver.Driver
}

// Subscribe registers a gRPC stream with the frame broadcaster.
func (b *engineBridge) Subscribe() (<-chan driver.Frame, func()) {
	return b.frames.Subscribe()
}

// SubmitCommand routes a decoded command through the same queue the websocket uses.
func (b *engineBridge) SubmitCommand(ctx context.Context, cmd driver.Command) error {
	if b == nil || b.engine == nil {
		return errors.New("driver unavailable")
	}
	return b.engine.SubmitCommand(ctx, cmd)
}

var _ grpcstream.Bridge = (*engineBridge)(nil)
