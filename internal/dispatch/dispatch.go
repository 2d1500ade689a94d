// Package dispatch connects transports to the language router.
//
// The dispatcher is the transport.Handler every transport delivers to:
// single units go straight to the router, and each incremental stream gets
// its own pipeline module so buffered text never leaks between streams.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/pipeline"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/transport"
	"github.com/nadzzz/polyglot/internal/voice"
)

// Dispatcher is the central routing engine.
type Dispatcher struct {
	router        *router.Router
	frameDuration time.Duration
}

// New creates a new Dispatcher over r emitting stream frames of frameDuration.
func New(r *router.Router, frameDuration time.Duration) *Dispatcher {
	return &Dispatcher{router: r, frameDuration: frameDuration}
}

// Route processes a single unit through the router.
func (d *Dispatcher) Route(ctx context.Context, u message.Unit) (*message.AudioIU, error) {
	start := time.Now()
	logger := slog.With("unit_id", u.ID)

	out, err := d.router.Route(ctx, u)
	if err != nil {
		if errors.Is(err, router.ErrSynthesis) {
			logger.Error("synthesis failed", "error", err)
		}
		return nil, err
	}
	if out == nil {
		logger.Debug("unit dropped")
		return nil, nil
	}

	logger.Info("unit routed",
		"language", out.Language,
		"voice", out.Voice,
		"audio", out.Duration(),
		"duration", time.Since(start))
	return out, nil
}

// OpenStream starts an incremental session backed by its own module.
func (d *Dispatcher) OpenStream() transport.Stream {
	return &stream{module: pipeline.New(d, d.frameDuration)}
}

// Voices returns the router's voice mapping.
func (d *Dispatcher) Voices() *voice.Mapping { return d.router.Voices() }

type stream struct {
	module *pipeline.Module
}

func (s *stream) Process(ctx context.Context, um message.UpdateMessage) ([]message.AudioIU, error) {
	return s.module.Process(ctx, um)
}
