// Package router resolves the language of incoming units and synthesizes
// them with the matching voice.
//
// Resolution never fails: an explicit language is trusted, text without one
// is run through the detector, and anything unsupported or undetectable
// falls back to the default language. Only synthesis failures reach the
// caller, wrapped in ErrSynthesis.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nadzzz/polyglot/internal/config"
	"github.com/nadzzz/polyglot/internal/langid"
	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

// ErrSynthesis wraps model load and synthesis failures.
var ErrSynthesis = errors.New("synthesis failed")

// Options are fixed at construction.
type Options struct {
	// AudioPolicy decides what happens to audio-only units without a
	// language: config.AudioPolicyDefault or config.AudioPolicyDrop.
	AudioPolicy string

	// ForceLanguage, when supported, overrides every other source of language.
	ForceLanguage string
}

// Router is the language router. It is safe for concurrent use.
type Router struct {
	voices      *voice.Mapping
	detector    langid.Detector
	loader      tts.Loader
	audioPolicy string
	force       string

	mu     sync.Mutex
	models map[string]tts.Model // language code -> loaded model; append-only
	loads  singleflight.Group
}

// New creates a router over a voice mapping, a detector and a model loader.
func New(voices *voice.Mapping, detector langid.Detector, loader tts.Loader, opts Options) *Router {
	r := &Router{
		voices:      voices,
		detector:    detector,
		loader:      loader,
		audioPolicy: opts.AudioPolicy,
		models:      make(map[string]tts.Model),
	}
	if r.audioPolicy == "" {
		r.audioPolicy = config.AudioPolicyDefault
	}
	if opts.ForceLanguage != "" {
		if voices.Supported(opts.ForceLanguage) {
			r.force = voice.Normalize(opts.ForceLanguage)
		} else {
			slog.Warn("ignoring unsupported forced language", "language", opts.ForceLanguage)
		}
	}
	return r
}

// Voices returns the router's voice mapping.
func (r *Router) Voices() *voice.Mapping { return r.voices }

// Resolve determines the language a unit will be synthesized in. It reports
// false when the unit produces no output.
func (r *Router) Resolve(u message.Unit) (string, bool) {
	if !u.HasText() && !u.HasAudio() {
		return "", false
	}
	if r.force != "" {
		return r.force, true
	}

	logger := slog.With("unit_id", u.ID)

	switch {
	case u.Language.Known:
		if code, ok := r.supported(u.Language.Code); ok {
			return code, true
		}
		logger.Warn("unsupported language, using default", "language", u.Language.Code, "default", r.voices.Default())
		return r.voices.Default(), true

	case u.HasText():
		detected, err := r.detector.Detect(u.Text)
		if err != nil {
			logger.Warn("language detection failed, using default", "error", err, "default", r.voices.Default())
			return r.voices.Default(), true
		}
		if code, ok := r.supported(detected); ok {
			logger.Debug("language detected", "language", code)
			return code, true
		}
		logger.Warn("detected unsupported language, using default", "language", detected, "default", r.voices.Default())
		return r.voices.Default(), true

	default:
		if r.audioPolicy == config.AudioPolicyDrop {
			logger.Debug("dropping audio-only unit without language")
			return "", false
		}
		return r.voices.Default(), true
	}
}

func (r *Router) supported(code string) (string, bool) {
	if !r.voices.Supported(code) {
		return "", false
	}
	return voice.Normalize(code), true
}

// Route resolves the unit's language and synthesizes its text with the
// mapped voice. It returns nil, nil when the unit is dropped. Audio-only
// units are passed through tagged with the resolved language.
func (r *Router) Route(ctx context.Context, u message.Unit) (*message.AudioIU, error) {
	code, ok := r.Resolve(u)
	if !ok {
		return nil, nil
	}

	if !u.HasText() {
		return &message.AudioIU{
			ID:          uuid.NewString(),
			GroundedIn:  u.ID,
			Language:    code,
			Audio:       u.Audio,
			SampleRate:  u.SampleRate,
			Channels:    u.Channels,
			SampleWidth: u.SampleWidth,
		}, nil
	}

	v, _ := r.voices.Lookup(code)
	model, err := r.model(ctx, code, v)
	if err != nil {
		return nil, fmt.Errorf("%w: loading voice %q for %q: %w", ErrSynthesis, v.Name, code, err)
	}

	res, err := model.Synthesize(ctx, u.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: voice %q: %w", ErrSynthesis, v.Name, err)
	}

	slog.Debug("unit synthesized", "unit_id", u.ID, "language", code, "voice", v.Name, "pcm_bytes", len(res.Audio))
	return &message.AudioIU{
		ID:          uuid.NewString(),
		GroundedIn:  u.ID,
		Text:        u.Text,
		Language:    code,
		Voice:       v.Name,
		Audio:       res.Audio,
		SampleRate:  res.SampleRate,
		Channels:    res.Channels,
		SampleWidth: res.SampleWidth,
	}, nil
}

// model returns the loaded model for code, loading it on first use.
// Concurrent first uses of the same language share one load.
func (r *Router) model(ctx context.Context, code string, v voice.Voice) (tts.Model, error) {
	r.mu.Lock()
	m, ok := r.models[code]
	r.mu.Unlock()
	if ok {
		return m, nil
	}

	val, err, _ := r.loads.Do(code, func() (any, error) {
		r.mu.Lock()
		if m, ok := r.models[code]; ok {
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()

		// The load is shared by every caller waiting on this language, so
		// one caller going away must not fail the others. Loaders bound
		// the call with their own timeout.
		m, err := r.loader.Load(context.WithoutCancel(ctx), v)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.models[code] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(tts.Model), nil
}

// Loaded returns the language codes whose models are loaded.
func (r *Router) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.models))
	for code := range r.models {
		codes = append(codes, code)
	}
	return codes
}

// Close releases every loaded model.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for code, m := range r.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s model: %w", code, err))
		}
	}
	return errors.Join(errs...)
}
