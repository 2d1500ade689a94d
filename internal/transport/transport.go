// Package transport defines the interface for pluggable request transports.
//
// Each transport (gRPC, HTTP/WebSocket) implements this interface and
// delivers requests to a Handler. The handler doesn't care how units
// arrive; it only works with the Transport contract.
package transport

import (
	"context"

	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/voice"
)

// Stream is an incremental session: updates in, audio frames out.
type Stream interface {
	Process(ctx context.Context, um message.UpdateMessage) ([]message.AudioIU, error)
}

// Handler processes units on behalf of every transport.
type Handler interface {
	// Route resolves and synthesizes one unit. A nil unit means it was dropped.
	Route(ctx context.Context, u message.Unit) (*message.AudioIU, error)

	// OpenStream starts an incremental session.
	OpenStream() Stream

	// Voices returns the voice mapping.
	Voices() *voice.Mapping
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and hands them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
