// Package http implements the HTTP/WebSocket transport for polyglot.
//
// This transport exposes a REST API for routing single units and a
// WebSocket endpoint for incremental streams. It is best suited for web
// clients and dialogue frameworks that prefer HTTP-based communication.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/polyglot/internal/message"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/transport"
	"github.com/nadzzz/polyglot/internal/voice"
)

const maxBodyBytes = 25 << 20 // 25 MB

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new HTTP transport on the given port. allowedOrigins lists
// the Origin hosts allowed to open WebSocket streams; "*" allows any, and
// an empty list keeps the same-origin check.
func New(port int, allowedOrigins []string) *Transport {
	return &Transport{
		port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// checkOrigin returns nil for an empty list, which makes gorilla apply its
// same-origin check.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	hosts := make(map[string]bool, len(allowed))
	for _, h := range allowed {
		if h == "*" {
			return func(*http.Request) bool { return true }
		}
		hosts[strings.ToLower(h)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return hosts[strings.ToLower(u.Host)]
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (t *Transport) routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/route", func(w http.ResponseWriter, r *http.Request) {
		t.handleRoute(w, r, handler)
	})
	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		t.handleVoices(w, r, handler)
	})
	mux.HandleFunc("GET /v1/stream", func(w http.ResponseWriter, r *http.Request) {
		t.handleStream(w, r, handler)
	})

	// Swagger UI serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// handleRoute processes a POST /v1/route request.
//
// @Summary     Route and synthesize one unit
// @Description Resolves the unit's language (explicit, detected, or the default fallback)
// @Description and synthesizes its text with the matching voice. Units without text or
// @Description audio are dropped and answered with 204.
// @Tags        route
// @Accept      json
// @Produce     json
// @Param       unit  body      message.RouteRequest  true  "Unit to route"
// @Success     200   {object}  message.RouteResult   "Synthesized unit"
// @Success     204   "Unit dropped"
// @Failure     400   {object}  errorResponse  "Invalid request body"
// @Failure     500   {object}  errorResponse  "Synthesis failed"
// @Router      /v1/route [post]
func (t *Transport) handleRoute(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req message.RouteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	unit, err := req.Unit()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audio: "+err.Error())
		return
	}

	out, err := handler.Route(r.Context(), unit)
	if err != nil {
		if !errors.Is(err, router.ErrSynthesis) {
			slog.Error("route failed", "error", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, message.NewRouteResult(out))
}

// voicesResponse lists the supported languages.
type voicesResponse struct {
	Default string                 `json:"default"`
	Voices  map[string]voice.Voice `json:"voices"`
}

// handleVoices processes a GET /v1/voices request.
//
// @Summary     List supported languages
// @Tags        voices
// @Produce     json
// @Success     200  {object}  voicesResponse
// @Router      /v1/voices [get]
func (t *Transport) handleVoices(w http.ResponseWriter, _ *http.Request, handler transport.Handler) {
	m := handler.Voices()
	writeJSON(w, http.StatusOK, voicesResponse{Default: m.Default(), Voices: m.Voices()})
}

// streamReply is sent for every update message received on a stream.
type streamReply struct {
	Frames []*message.RouteResult `json:"frames"`
	Error  string                 `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket carrying an incremental session.
// Each text message from the client is a JSON update message; each reply
// carries the frames it produced. Errors are reported in the reply and the
// session continues.
//
// @Summary     Incremental TTS stream
// @Description WebSocket. Send JSON arrays of {"type": "add"|"revoke"|"commit", "iu": {...}};
// @Description receive {"frames": [...], "error": "..."} per message.
// @Tags        stream
// @Router      /v1/stream [get]
func (t *Transport) handleStream(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	logger := slog.With("remote", r.RemoteAddr)
	logger.Info("stream opened")
	defer logger.Info("stream closed")

	stream := handler.OpenStream()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("stream read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply := streamReply{Frames: []*message.RouteResult{}}

		var um message.UpdateMessage
		if err := json.Unmarshal(data, &um); err != nil {
			reply.Error = "invalid update message: " + err.Error()
		} else {
			frames, err := stream.Process(r.Context(), um)
			for i := range frames {
				reply.Frames = append(reply.Frames, message.NewRouteResult(&frames[i]))
			}
			if err != nil {
				reply.Error = err.Error()
			}
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("stream write failed", "error", err)
			return
		}
	}
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
