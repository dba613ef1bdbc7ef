package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Fully qualified RPC names.
const (
	ServiceName         = "sdfmarch.v1.TracerService"
	StreamFramesMethod  = "/" + ServiceName + "/StreamFrames"
	SubmitCommandMethod = "/" + ServiceName + "/SubmitCommand"
)

// TracerServer is the server API for the tracer service. Messages are
// well-known protobuf types so no generated code is required.
type TracerServer interface {
	StreamFrames(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	SubmitCommand(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes the tracer service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TracerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitCommand", Handler: submitCommandHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
	},
	Metadata: "sdfmarch/v1/tracer.proto",
}

// Register attaches srv to the registrar.
func Register(registrar grpc.ServiceRegistrar, srv TracerServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func submitCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TracerServer).SubmitCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitCommandMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TracerServer).SubmitCommand(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TracerServer).StreamFrames(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

// Client is a thin client for the tracer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StreamFrames opens the compressed frame stream.
func (c *Client) StreamFrames(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamFramesMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// SubmitCommand sends one command encoded as a protobuf Struct.
func (c *Client) SubmitCommand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SubmitCommandMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
