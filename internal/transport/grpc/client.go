package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nadzzz/polyglot/internal/message"
)

// Client calls a polyglot gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Without options the connection is
// plaintext; the JSON codec is always applied.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})))

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Route routes one unit. The result is nil when the server dropped it.
func (c *Client) Route(ctx context.Context, req *message.RouteRequest) (*message.RouteResult, error) {
	var reply RouteReply
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Route", req, &reply); err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Voices lists the server's supported languages.
func (c *Client) Voices(ctx context.Context) (*VoicesReply, error) {
	var reply VoicesReply
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Voices", &VoicesRequest{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ClientStream is an open incremental session.
type ClientStream struct {
	stream grpc.ClientStream
}

// Stream opens an incremental session.
func (c *Client) Stream(ctx context.Context) (*ClientStream, error) {
	desc := &serviceDesc.Streams[0]
	s, err := c.conn.NewStream(ctx, desc, "/"+serviceName+"/Stream")
	if err != nil {
		return nil, err
	}
	return &ClientStream{stream: s}, nil
}

// Send delivers an update message and waits for its reply.
func (s *ClientStream) Send(um message.UpdateMessage) (*StreamReply, error) {
	if err := s.stream.SendMsg(um); err != nil {
		return nil, err
	}
	var reply StreamReply
	if err := s.stream.RecvMsg(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// CloseSend ends the session.
func (s *ClientStream) CloseSend() error { return s.stream.CloseSend() }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
