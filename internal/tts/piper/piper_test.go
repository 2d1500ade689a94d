package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/polyglot/internal/config"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

// fakePiper is a minimal Wyoming server answering describe and synthesize.
type fakePiper struct {
	ln       net.Listener
	voices   []string
	failText string
	synth    chan map[string]any
}

func newFakePiper(t *testing.T, voices ...string) *fakePiper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakePiper{ln: ln, voices: voices, synth: make(chan map[string]any, 8)}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakePiper) addr() string { return f.ln.Addr().String() }

func (f *fakePiper) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakePiper) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	evt, _, err := readEvent(r)
	if err != nil {
		return
	}

	switch evt.Type {
	case "describe":
		voices := make([]any, 0, len(f.voices))
		for _, v := range f.voices {
			voices = append(voices, map[string]any{"name": v, "installed": true})
		}
		_ = writeEvent(conn, wyomingEvent{Type: "info", Data: map[string]any{
			"tts": []any{map[string]any{"name": "piper", "voices": voices}},
		}}, nil)

	case "synthesize":
		f.synth <- evt.Data
		if text, _ := evt.Data["text"].(string); text == f.failText {
			_ = writeEvent(conn, wyomingEvent{Type: "error", Data: map[string]any{"text": "model crashed"}}, nil)
			return
		}
		format := map[string]any{"rate": 16000, "width": 2, "channels": 1}
		_ = writeEvent(conn, wyomingEvent{Type: "audio-start", Data: format}, nil)
		_ = writeEvent(conn, wyomingEvent{Type: "audio-chunk", Data: format}, []byte{1, 2, 3, 4})
		_ = writeEvent(conn, wyomingEvent{Type: "audio-chunk", Data: format}, []byte{5, 6})
		_ = writeEvent(conn, wyomingEvent{Type: "audio-stop"}, nil)
	}
}

func TestLoadAndSynthesize(t *testing.T) {
	srv := newFakePiper(t, "fr_FR-siwis-medium", "en_US-lessac-medium")
	l := New(config.PiperConfig{Endpoint: "tcp://" + srv.addr(), Timeout: 5 * time.Second})

	ctx := context.Background()
	m, err := l.Load(ctx, voice.Voice{Name: "fr_FR-siwis-medium"})
	require.NoError(t, err)
	assert.Equal(t, "fr_FR-siwis-medium", m.Name())

	res, err := m.Synthesize(ctx, "Bonjour tout le monde")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, res.Audio)
	assert.Equal(t, 16000, res.SampleRate)
	assert.Equal(t, 1, res.Channels)
	assert.Equal(t, 2, res.SampleWidth)

	sent := <-srv.synth
	assert.Equal(t, "Bonjour tout le monde", sent["text"])
	assert.Equal(t, map[string]any{"name": "fr_FR-siwis-medium"}, sent["voice"])
	require.NoError(t, m.Close())
}

func TestLoadRejectsMissingVoice(t *testing.T) {
	srv := newFakePiper(t, "en_US-lessac-medium")
	l := New(config.PiperConfig{Endpoint: srv.addr()})

	_, err := l.Load(context.Background(), voice.Voice{Name: "de_DE-thorsten-medium"})
	assert.ErrorContains(t, err, "not installed")
}

func TestLoadAcceptsServerWithoutVoiceList(t *testing.T) {
	srv := newFakePiper(t)
	l := New(config.PiperConfig{Endpoint: srv.addr()})

	_, err := l.Load(context.Background(), voice.Voice{Name: "anything"})
	assert.NoError(t, err)
}

func TestLoadPrefersVoiceEndpoint(t *testing.T) {
	srv := newFakePiper(t, "de_DE-thorsten-medium")
	l := New(config.PiperConfig{Endpoint: "127.0.0.1:1"})

	m, err := l.Load(context.Background(), voice.Voice{Name: "de_DE-thorsten-medium", Endpoint: srv.addr()})
	require.NoError(t, err)
	assert.Equal(t, srv.addr(), m.(*Model).endpoint)
}

func TestLoadNoEndpoint(t *testing.T) {
	l := New(config.PiperConfig{})
	_, err := l.Load(context.Background(), voice.Voice{Name: "x"})
	assert.ErrorContains(t, err, "no piper endpoint")
}

func TestSynthesizeSpeakerAndErrors(t *testing.T) {
	srv := newFakePiper(t)
	srv.failText = "boom"
	l := New(config.PiperConfig{Endpoint: srv.addr()})

	m, err := l.Load(context.Background(), voice.Voice{Name: "multi", Speaker: "p225"})
	require.NoError(t, err)
	assert.Equal(t, "multi#p225", m.Name())

	_, err = m.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	sent := <-srv.synth
	assert.Equal(t, map[string]any{"name": "multi", "speaker": "p225"}, sent["voice"])

	_, err = m.Synthesize(context.Background(), "boom")
	assert.ErrorContains(t, err, "model crashed")

	_, err = m.Synthesize(context.Background(), "  ")
	assert.ErrorIs(t, err, tts.ErrEmptyText)
}

func TestVoices(t *testing.T) {
	got := Voices(config.PiperConfig{
		Voices:    map[string]string{"fr": "fr_FR-upmc-medium"},
		Speakers:  map[string]string{"fr": "jessica"},
		Endpoints: map[string]string{"fr": "tcp://piper-fr:10200", "de": "piper-de:10200"},
	})
	assert.Equal(t, voice.Voice{Name: "fr_FR-upmc-medium", Speaker: "jessica", Endpoint: "piper-fr:10200"}, got["fr"])
	assert.Equal(t, voice.Voice{Endpoint: "piper-de:10200"}, got["de"])
}

func TestWyomingRoundTripInlineData(t *testing.T) {
	// Older peers send data inline in the header line.
	raw := `{"type":"audio-start","data":{"rate":8000}}` + "\n"
	evt, payload, err := readEvent(bufio.NewReader(bytes.NewBufferString(raw)))
	require.NoError(t, err)
	assert.Equal(t, "audio-start", evt.Type)
	assert.Equal(t, 8000, intField(evt.Data, "rate", 0))
	assert.Nil(t, payload)

	_, _, err = readEvent(bufio.NewReader(bytes.NewBufferString("not json\n")))
	assert.Error(t, err)
}

func TestReadEventRejectsOversizedPayload(t *testing.T) {
	raw := fmt.Sprintf(`{"type":"audio-chunk","payload_length":%d}`, maxEventPayload+1) + "\n"
	_, _, err := readEvent(bufio.NewReader(bytes.NewBufferString(raw)))
	assert.ErrorContains(t, err, "invalid wyoming lengths")
}
