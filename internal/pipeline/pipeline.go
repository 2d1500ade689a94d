// Package pipeline implements the incremental multilingual TTS module.
//
// The module buffers incoming text units until the input is committed or
// the buffered text contains sentence-final punctuation, routes the buffered
// text as one unit, and splits the synthesized audio into fixed-length
// frames. A Module keeps per-stream state and must not be shared between
// concurrent streams.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/polyglot/internal/message"
)

// DefaultFrameDuration is the playback length of one emitted frame.
const DefaultFrameDuration = 200 * time.Millisecond

// sentenceEnd triggers synthesis of the buffered text.
const sentenceEnd = ".!?"

// Router is the part of router.Router the module needs.
type Router interface {
	Route(ctx context.Context, u message.Unit) (*message.AudioIU, error)
}

// Module is the incremental TTS module for one stream.
type Module struct {
	router        Router
	frameDuration time.Duration

	current []message.TextIU
	latest  *message.TextIU
}

// New creates a module emitting frames of frameDuration (DefaultFrameDuration when zero).
func New(r Router, frameDuration time.Duration) *Module {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	return &Module{router: r, frameDuration: frameDuration}
}

// CurrentText returns the buffered units joined by single spaces.
func (m *Module) CurrentText() string {
	parts := make([]string, 0, len(m.current))
	for _, iu := range m.current {
		parts = append(parts, iu.Text)
	}
	return strings.Join(parts, " ")
}

// Process applies an update message and returns the audio frames it
// produced. A batch that fails synthesis is discarded and processing
// continues with the remaining updates; the failures are returned joined
// alongside the frames of the batches that succeeded.
func (m *Module) Process(ctx context.Context, um message.UpdateMessage) ([]message.AudioIU, error) {
	var (
		frames []message.AudioIU
		errs   []error
	)

	for _, u := range um {
		final := false

		switch u.Type {
		case message.UpdateAdd:
			iu := u.IU
			m.current = append(m.current, iu)
			m.latest = &iu
			final = iu.Committed
		case message.UpdateRevoke:
			m.revoke(u.IU.ID)
		case message.UpdateCommit:
			final = true
		}

		text := m.CurrentText()
		if strings.TrimSpace(text) == "" {
			if final {
				m.current = nil
			}
			continue
		}
		if !final && !strings.ContainsAny(text, sentenceEnd) {
			continue
		}

		unit := message.Unit{ID: m.latestID(), Text: text, Language: m.language()}
		m.current = nil

		out, err := m.router.Route(ctx, unit)
		if err != nil {
			slog.Debug("batch discarded", "unit_id", unit.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if out == nil {
			continue
		}
		frames = append(frames, m.split(out)...)
	}

	return frames, errors.Join(errs...)
}

func (m *Module) revoke(id string) {
	for i, iu := range m.current {
		if iu.ID == id {
			m.current = append(m.current[:i], m.current[i+1:]...)
			return
		}
	}
	slog.Debug("revoke for unknown unit", "unit_id", id)
}

func (m *Module) latestID() string {
	if m.latest == nil {
		return ""
	}
	return m.latest.ID
}

// language returns the most recent known language in the buffered batch.
func (m *Module) language() message.Language {
	for i := len(m.current) - 1; i >= 0; i-- {
		if m.current[i].Language.Known {
			return m.current[i].Language
		}
	}
	return message.Unknown
}

// split cuts the unit's audio into frames of frameDuration, zero-padding
// the last one. Units without audio are returned as a single frame.
func (m *Module) split(iu *message.AudioIU) []message.AudioIU {
	width := iu.SampleWidth * max(iu.Channels, 1)
	frameBytes := int(float64(iu.SampleRate)*m.frameDuration.Seconds()) * width
	if frameBytes <= 0 || !iu.HasAudio() {
		return []message.AudioIU{*iu}
	}

	frames := make([]message.AudioIU, 0, (len(iu.Audio)+frameBytes-1)/frameBytes)
	for off := 0; off < len(iu.Audio); off += frameBytes {
		chunk := make([]byte, frameBytes)
		copy(chunk, iu.Audio[off:min(off+frameBytes, len(iu.Audio))])

		frame := *iu
		frame.ID = uuid.NewString()
		frame.Audio = chunk
		frames = append(frames, frame)
	}
	return frames
}
