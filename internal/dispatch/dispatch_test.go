package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/polyglot/internal/langid"
	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

type stubModel struct{ name string }

func (m stubModel) Name() string { return m.name }

func (m stubModel) Synthesize(_ context.Context, text string) (*tts.Result, error) {
	if text == "boom." {
		return nil, errors.New("boom")
	}
	return &tts.Result{Audio: make([]byte, 8), SampleRate: 10, Channels: 1, SampleWidth: 2}, nil
}

func (m stubModel) Close() error { return nil }

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	voices, err := voice.New(voice.Defaults, nil, "en")
	require.NoError(t, err)

	det := langid.DetectorFunc(func(string) (string, error) { return "", langid.ErrUndetermined })
	loader := tts.LoaderFunc(func(_ context.Context, v voice.Voice) (tts.Model, error) {
		return stubModel{name: v.Name}, nil
	})
	return New(router.New(voices, det, loader, router.Options{}), 200*time.Millisecond)
}

func TestRoute(t *testing.T) {
	d := newDispatcher(t)

	out, err := d.Route(context.Background(), message.Unit{ID: "u1", Text: "Guten Tag", Language: message.Known("de")})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "de", out.Language)
	assert.Equal(t, "u1", out.GroundedIn)

	out, err = d.Route(context.Background(), message.Unit{ID: "u2"})
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = d.Route(context.Background(), message.Unit{ID: "u3", Text: "boom."})
	assert.ErrorIs(t, err, router.ErrSynthesis)
}

func TestStreamsAreIndependent(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	a := d.OpenStream()
	b := d.OpenStream()

	frames, err := a.Process(ctx, message.Add(message.TextIU{ID: "a1", Text: "Hello"}))
	require.NoError(t, err)
	assert.Empty(t, frames)

	// Committing b must not flush a's buffered text.
	frames, err = b.Process(ctx, message.UpdateMessage{{Type: message.UpdateCommit}})
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = a.Process(ctx, message.Add(message.TextIU{ID: "a2", Text: "world."}))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "Hello world.", frames[0].Text)
	assert.Equal(t, "en", frames[0].Language)
}

func TestVoices(t *testing.T) {
	d := newDispatcher(t)
	assert.Equal(t, "en", d.Voices().Default())
	assert.True(t, d.Voices().Supported("fr"))
}
