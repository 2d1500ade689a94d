package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/polyglot/internal/dispatch"
	"github.com/nadzzz/polyglot/internal/langid"
	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

type stubModel struct{ name string }

func (m stubModel) Name() string { return m.name }

func (m stubModel) Synthesize(_ context.Context, text string) (*tts.Result, error) {
	if text == "fail." || text == "fail" {
		return nil, errors.New("model crashed")
	}
	// 10 Hz, 16-bit mono: 4 bytes per 200ms frame.
	return &tts.Result{Audio: make([]byte, 6), SampleRate: 10, Channels: 1, SampleWidth: 2}, nil
}

func (m stubModel) Close() error { return nil }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	voices, err := voice.New(voice.Defaults, nil, "en")
	require.NoError(t, err)

	det := langid.DetectorFunc(func(text string) (string, error) {
		if strings.HasPrefix(text, "Bonjour") {
			return "fr", nil
		}
		return "sw", nil
	})
	loader := tts.LoaderFunc(func(_ context.Context, v voice.Voice) (tts.Model, error) {
		return stubModel{name: v.Name}, nil
	})
	d := dispatch.New(router.New(voices, det, loader, router.Options{}), 200*time.Millisecond)

	srv := httptest.NewServer(New(0, nil).routes(d))
	t.Cleanup(srv.Close)
	return srv
}

func postRoute(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/route", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouteDetectsLanguage(t *testing.T) {
	srv := newServer(t)

	resp := postRoute(t, srv, `{"text":"Bonjour tout le monde","language":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res message.RouteResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "fr", res.Language)
	assert.Equal(t, "fr_FR-siwis-medium", res.Voice)
	assert.Equal(t, "Bonjour tout le monde", res.Text)
	assert.Equal(t, "audio/wav", res.ContentType)

	wav, err := base64.StdEncoding.DecodeString(res.Audio)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Len(t, wav, 44+6)
}

func TestRouteUnsupportedFallsBack(t *testing.T) {
	srv := newServer(t)

	resp := postRoute(t, srv, `{"text":"...","language":"xx"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res message.RouteResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "en", res.Language)
}

func TestRouteEmptyIsDropped(t *testing.T) {
	srv := newServer(t)
	resp := postRoute(t, srv, `{"text":""}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRouteErrors(t *testing.T) {
	srv := newServer(t)

	resp := postRoute(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postRoute(t, srv, `{"text":"fail","language":"de"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var e errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Contains(t, e.Error, "model crashed")
}

func TestVoices(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/v1/voices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var v voicesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "en", v.Default)
	assert.Equal(t, "de_DE-thorsten-medium", v.Voices["de"].Name)
}

func TestStream(t *testing.T) {
	srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(raw string) streamReply {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		var reply streamReply
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	reply := send(`[{"type":"add","iu":{"id":"1","text":"Hallo","language":"de"}}]`)
	assert.Empty(t, reply.Frames)
	assert.Empty(t, reply.Error)

	reply = send(`[{"type":"add","iu":{"id":"2","text":"Welt."}}]`)
	require.Len(t, reply.Frames, 2)
	for _, f := range reply.Frames {
		assert.Equal(t, "de", f.Language)
		assert.Equal(t, "2", f.GroundedIn)
	}

	reply = send(`[{"type":"explode"}]`)
	assert.Contains(t, reply.Error, "invalid update message")

	reply = send(`[{"type":"add","iu":{"id":"3","text":"fail."}}]`)
	assert.Contains(t, reply.Error, "model crashed")
	assert.Empty(t, reply.Frames)

	// The session survives errors.
	reply = send(`[{"type":"add","iu":{"id":"4","text":"Bonjour"}},{"type":"commit","iu":{}}]`)
	require.Len(t, reply.Frames, 2)
	assert.Equal(t, "fr", reply.Frames[0].Language)
}

func TestStreamRejectsCrossOrigin(t *testing.T) {
	srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.Nil(t, checkOrigin(nil))

	check := checkOrigin([]string{"App.example.com:3000"})
	assert.True(t, check(req("https://app.example.com:3000")))
	assert.False(t, check(req("https://evil.example")))
	assert.True(t, check(req("")))

	all := checkOrigin([]string{"*"})
	assert.True(t, all(req("https://evil.example")))
}
