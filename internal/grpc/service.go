// Package grpc exposes the driver's frame stream and command queue over gRPC.
package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/logging"
)

const (
	commandSubmitTimeout = 250 * time.Millisecond
	defaultStreamRateHz  = 20
)

// EncodingHeader carries the frame codec name in StreamFrames response headers.
const EncodingHeader = "x-frame-encoding"

// Option customises the behaviour of the gRPC service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the default payload compressor.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithStreamRate sets how many frames per second each stream may send.
func WithStreamRate(hz int) Option {
	return func(s *Service) {
		if hz > 0 {
			s.rateHz = hz
		}
	}
}

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Service implements TracerServer on top of the driver bridge.
type Service struct {
	bridge     Bridge
	compressor Compressor
	rateHz     int
	newTicker  tickerFactory
	log        *logging.Logger
}

// NewService wires the gRPC service to the driver bridge and optional settings.
func NewService(bridge Bridge, opts ...Option) *Service {
	service := &Service{
		bridge:     bridge,
		compressor: NewGZIPCompressor(),
		rateHz:     defaultStreamRateHz,
		newTicker:  defaultTickerFactory,
		log:        logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.log = service.log.With(logging.String("component", "grpc"))
	return service
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// StreamFrames relays the most recent driver frame at the throttled cadence.
// Frames published between ticks are coalesced; only the newest is sent.
func (s *Service) StreamFrames(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s == nil || s.bridge == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	ctx := stream.Context()
	frames, unsubscribe := s.bridge.Subscribe()
	defer unsubscribe()

	if err := stream.SendHeader(metadata.Pairs(EncodingHeader, s.compressor.Name())); err != nil {
		return err
	}

	tickCh, stop := s.newTicker(time.Second / time.Duration(s.rateHz))
	defer stop()

	var (
		latest       *driver.Frame
		sourceClosed bool
	)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case frame, ok := <-frames:
			if !ok {
				sourceClosed = true
				frames = nil
				if latest == nil {
					return nil
				}
				continue
			}
			latest = &frame
		case <-tickCh:
			if latest == nil {
				if sourceClosed {
					return nil
				}
				continue
			}
			payload, err := driver.EncodeFrame(*latest)
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame: %v", err)
			}
			compressed, err := s.compressor.Compress(payload)
			if err != nil {
				return status.Errorf(codes.Internal, "compress frame: %v", err)
			}
			latest = nil
			if err := stream.Send(wrapperspb.Bytes(compressed)); err != nil {
				return err
			}
		}
	}
}

// SubmitCommand decodes a command struct and queues it on the driver.
func (s *Service) SubmitCommand(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s == nil || s.bridge == nil {
		return nil, status.Error(codes.FailedPrecondition, "commands unavailable")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	payload, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode command: %v", err)
	}
	cmd, err := driver.DecodeCommand(payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	submitCtx, cancel := context.WithTimeout(ctx, commandSubmitTimeout)
	defer cancel()
	if err := s.bridge.SubmitCommand(submitCtx, cmd); err != nil {
		s.log.Warn("grpc command rejected", logging.String("type", cmd.Kind()), logging.Error(err))
		switch {
		case errors.Is(err, driver.ErrStopped):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, "command queue busy")
		case errors.Is(err, context.Canceled):
			return nil, status.Error(codes.Canceled, "command cancelled")
		default:
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return &emptypb.Empty{}, nil
}

var _ TracerServer = (*Service)(nil)
