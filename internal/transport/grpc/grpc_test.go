package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

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
	if text == "fail" {
		return nil, errors.New("model crashed")
	}
	return &tts.Result{Audio: []byte{1, 2, 3, 4}, SampleRate: 10, Channels: 1, SampleWidth: 2}, nil
}

func (m stubModel) Close() error { return nil }

func newClient(t *testing.T) *Client {
	t.Helper()
	voices, err := voice.New(voice.Defaults, nil, "en")
	require.NoError(t, err)

	det := langid.DetectorFunc(func(string) (string, error) { return "es", nil })
	loader := tts.LoaderFunc(func(_ context.Context, v voice.Voice) (tts.Model, error) {
		return stubModel{name: v.Name}, nil
	})
	d := dispatch.New(router.New(voices, det, loader, router.Options{}), 200*time.Millisecond)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	tr := New(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Serve(ctx, lis, d)
	}()

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
	})
	return c
}

func TestRoute(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	res, err := c.Route(ctx, &message.RouteRequest{Text: "Hola a todos"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "es", res.Language)
	assert.Equal(t, "es_ES-mls_10246-low", res.Voice)
	assert.Equal(t, "audio/wav", res.ContentType)

	res, err = c.Route(ctx, &message.RouteRequest{Text: "hi", Language: message.Known("xx")})
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)

	res, err = c.Route(ctx, &message.RouteRequest{Text: ""})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRouteErrors(t *testing.T) {
	c := newClient(t)

	_, err := c.Route(context.Background(), &message.RouteRequest{Text: "fail"})
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = c.Route(context.Background(), &message.RouteRequest{Audio: "%%%"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestVoices(t *testing.T) {
	c := newClient(t)

	v, err := c.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "en", v.Default)
	assert.Contains(t, v.Voices, "fr")
}

func TestStream(t *testing.T) {
	c := newClient(t)

	s, err := c.Stream(context.Background())
	require.NoError(t, err)

	reply, err := s.Send(message.Add(message.TextIU{ID: "1", Text: "Hola"}))
	require.NoError(t, err)
	assert.Empty(t, reply.Frames)

	reply, err = s.Send(message.Add(message.TextIU{ID: "2", Text: "amigos!"}))
	require.NoError(t, err)
	require.Len(t, reply.Frames, 1)
	assert.Equal(t, "es", reply.Frames[0].Language)
	assert.Equal(t, "Hola amigos!", reply.Frames[0].Text)

	reply, err = s.Send(message.UpdateMessage{
		{Type: message.UpdateAdd, IU: message.TextIU{ID: "3", Text: "fail"}},
		{Type: message.UpdateCommit},
	})
	require.NoError(t, err)
	assert.Contains(t, reply.Error, "model crashed")

	require.NoError(t, s.CloseSend())
}
