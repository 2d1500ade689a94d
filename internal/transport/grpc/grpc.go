// Package grpc implements the gRPC transport for polyglot.
//
// The service is polyglot.v1.Router with a unary Route method, a unary
// Voices method, and a bidirectional Stream method carrying incremental
// update messages. Messages are JSON encoded with a forced codec, so the
// service needs no generated protobuf code; clients must use the same
// codec (see Dial).
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/transport"
	"github.com/nadzzz/polyglot/internal/voice"
)

const serviceName = "polyglot.v1.Router"

// jsonCodec encodes gRPC messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// RouteReply is the response of Route. Result is nil when the unit was dropped.
type RouteReply struct {
	Result *message.RouteResult `json:"result,omitempty"`
}

// VoicesRequest is the (empty) request of Voices.
type VoicesRequest struct{}

// VoicesReply lists the supported languages.
type VoicesReply struct {
	Default string                 `json:"default"`
	Voices  map[string]voice.Voice `json:"voices"`
}

// StreamReply is sent for every update message received on a stream.
type StreamReply struct {
	Frames []*message.RouteResult `json:"frames"`
	Error  string                 `json:"error,omitempty"`
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis, handler)
}

// Serve serves on an existing listener until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	t.server.RegisterService(&serviceDesc, &server{handler: handler})

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// routerServer is the service implementation contract used by serviceDesc.
type routerServer interface {
	Route(ctx context.Context, req *message.RouteRequest) (*RouteReply, error)
	Voices(ctx context.Context, req *VoicesRequest) (*VoicesReply, error)
	Stream(stream grpc.ServerStream) error
}

type server struct {
	handler transport.Handler
}

func (s *server) Route(ctx context.Context, req *message.RouteRequest) (*RouteReply, error) {
	unit, err := req.Unit()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid audio: %v", err)
	}
	out, err := s.handler.Route(ctx, unit)
	if err != nil {
		if errors.Is(err, router.ErrSynthesis) {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return nil, status.Error(codes.Unknown, err.Error())
	}
	if out == nil {
		return &RouteReply{}, nil
	}
	return &RouteReply{Result: message.NewRouteResult(out)}, nil
}

func (s *server) Voices(context.Context, *VoicesRequest) (*VoicesReply, error) {
	m := s.handler.Voices()
	return &VoicesReply{Default: m.Default(), Voices: m.Voices()}, nil
}

func (s *server) Stream(ss grpc.ServerStream) error {
	stream := s.handler.OpenStream()
	for {
		var um message.UpdateMessage
		if err := ss.RecvMsg(&um); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		reply := StreamReply{Frames: []*message.RouteResult{}}
		frames, err := stream.Process(ss.Context(), um)
		for i := range frames {
			reply.Frames = append(reply.Frames, message.NewRouteResult(&frames[i]))
		}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := ss.SendMsg(&reply); err != nil {
			return err
		}
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*routerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Route", Handler: routeHandler},
		{MethodName: "Voices", Handler: voicesHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       func(srv any, ss grpc.ServerStream) error { return srv.(routerServer).Stream(ss) },
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "polyglot/v1/router",
}

func routeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.RouteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(routerServer).Route(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Route"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(routerServer).Route(ctx, req.(*message.RouteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func voicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VoicesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(routerServer).Voices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Voices"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(routerServer).Voices(ctx, req.(*VoicesRequest))
	}
	return interceptor(ctx, in, info, handler)
}
