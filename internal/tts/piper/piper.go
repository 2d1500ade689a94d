// Package piper implements the TTS Loader using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. Loading a voice
// asks the server to describe itself and checks the voice is installed;
// synthesis streams PCM chunks back over a fresh connection per request.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/polyglot/internal/config"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

const (
	defaultTimeout = 30 * time.Second
	dialTimeout    = 10 * time.Second
)

// Loader implements tts.Loader for Piper servers.
type Loader struct {
	endpoint string // default host:port of the Piper Wyoming server
	timeout  time.Duration
}

// New creates a new Piper loader from config. Per-language endpoints are
// carried by the voices themselves; see Voices.
func New(cfg config.PiperConfig) *Loader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Loader{
		endpoint: cleanEndpoint(cfg.Endpoint),
		timeout:  timeout,
	}
}

// Voices converts the Piper voice, speaker and endpoint settings into
// voice mapping overrides.
func Voices(cfg config.PiperConfig) map[string]voice.Voice {
	out := make(map[string]voice.Voice)
	for lang, name := range cfg.Voices {
		v := out[lang]
		v.Name = name
		out[lang] = v
	}
	for lang, speaker := range cfg.Speakers {
		v := out[lang]
		v.Speaker = speaker
		out[lang] = v
	}
	for lang, ep := range cfg.Endpoints {
		v := out[lang]
		v.Endpoint = cleanEndpoint(ep)
		out[lang] = v
	}
	return out
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// Load checks that the voice's server is reachable and, when the server
// lists its voices, that the voice is installed.
func (l *Loader) Load(ctx context.Context, v voice.Voice) (tts.Model, error) {
	endpoint := cleanEndpoint(v.Endpoint)
	if endpoint == "" {
		endpoint = l.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for voice %q", v.Name)
	}

	start := time.Now()
	conn, r, err := l.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := writeEvent(conn, wyomingEvent{Type: "describe"}, nil); err != nil {
		return nil, fmt.Errorf("sending describe event: %w", err)
	}

	var installed []string
	for {
		evt, _, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper info: %w", err)
		}
		if evt.Type == "info" {
			installed = voiceNames(evt.Data)
			break
		}
		slog.Debug("piper event before info", "type", evt.Type)
	}

	if len(installed) > 0 && !contains(installed, v.Name) {
		return nil, fmt.Errorf("voice %q is not installed on %s", v.Name, endpoint)
	}

	slog.Info("piper voice loaded", "voice", v.Name, "endpoint", endpoint, "duration", time.Since(start))
	return &Model{loader: l, voice: v, endpoint: endpoint}, nil
}

func (l *Loader) dial(ctx context.Context, endpoint string) (net.Conn, *bufio.Reader, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to piper: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(l.timeout))
	}
	return conn, bufio.NewReader(conn), nil
}

// voiceNames extracts voice names from an info event:
// {"tts": [{"name": "piper", "voices": [{"name": "en_US-lessac-medium", ...}]}]}
func voiceNames(data map[string]any) []string {
	var names []string
	programs, _ := data["tts"].([]any)
	for _, p := range programs {
		prog, _ := p.(map[string]any)
		voices, _ := prog["voices"].([]any)
		for _, v := range voices {
			vm, _ := v.(map[string]any)
			if name, ok := vm["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Model is one Piper voice on one endpoint.
type Model struct {
	loader   *Loader
	voice    voice.Voice
	endpoint string
}

// Name returns the Piper voice name, qualified by speaker when one is set.
func (m *Model) Name() string {
	if m.voice.Speaker != "" {
		return m.voice.Name + "#" + m.voice.Speaker
	}
	return m.voice.Name
}

// Synthesize sends text to the Piper server and returns the synthesized PCM.
func (m *Model) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", m.voice.Name, "endpoint", m.endpoint)

	conn, r, err := m.loader.dial(ctx, m.endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	voiceData := map[string]any{"name": m.voice.Name}
	if m.voice.Speaker != "" {
		voiceData["speaker"] = m.voice.Speaker
	}
	synthEvent := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": voiceData,
		},
	}
	if err := writeEvent(conn, synthEvent, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// Read response events: audio-start → audio-chunk* → audio-stop
	var (
		pcmBuf bytes.Buffer
		result = tts.Result{SampleRate: 22050, Channels: 1, SampleWidth: 2}
	)

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start", "audio-chunk":
			result.SampleRate = intField(evt.Data, "rate", result.SampleRate)
			result.Channels = intField(evt.Data, "channels", result.Channels)
			result.SampleWidth = intField(evt.Data, "width", result.SampleWidth)
			if len(payload) > 0 {
				pcmBuf.Write(payload)
			}

		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcmBuf.Len(), "rate", result.SampleRate)
			result.Audio = pcmBuf.Bytes()
			return &result, nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// Close is a no-op; connections are per-request.
func (m *Model) Close() error { return nil }
