// Package tts defines the interface for text-to-speech synthesis.
//
// Polyglot synthesizes every unit in the language the router resolved for
// it. A Loader turns a voice from the voice mapping into a Model; loading
// can be slow, so the router loads each voice once and keeps the Model for
// the process lifetime.
package tts

import (
	"context"
	"errors"

	"github.com/nadzzz/polyglot/internal/voice"
)

// ErrEmptyText is returned when asked to synthesize blank text.
var ErrEmptyText = errors.New("empty text for synthesis")

// Result holds the output of TTS synthesis.
type Result struct {
	// Audio is raw PCM, little endian.
	Audio []byte

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int

	// SampleWidth is the number of bytes per sample (typically 2).
	SampleWidth int
}

// Model synthesizes speech with one loaded voice.
type Model interface {
	// Name identifies the underlying voice model. Cache keys are derived from it.
	Name() string

	// Synthesize generates PCM audio from the given text.
	Synthesize(ctx context.Context, text string) (*Result, error)

	// Close releases any resources held by the model.
	Close() error
}

// Loader prepares a Model for a voice. Load may block for a long time.
type Loader interface {
	Load(ctx context.Context, v voice.Voice) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, v voice.Voice) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, v voice.Voice) (Model, error) { return f(ctx, v) }
