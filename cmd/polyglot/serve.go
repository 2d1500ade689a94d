package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nadzzz/polyglot/docs"
	"github.com/nadzzz/polyglot/internal/dispatch"
	"github.com/nadzzz/polyglot/internal/health"
	"github.com/nadzzz/polyglot/internal/transport"
	grpctransport "github.com/nadzzz/polyglot/internal/transport/grpc"
	httptransport "github.com/nadzzz/polyglot/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the routing daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("polyglot starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, cleanup, err := newRouter(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() {
		if err := r.Close(); err != nil {
			slog.Error("closing models", "error", err)
		}
	}()

	slog.Info("voices configured",
		"languages", r.Voices().Codes(),
		"default", r.Voices().Default(),
		"audio_policy", cfg.Router.AudioPolicy)

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, cfg.Transports.HTTP.AllowedOrigins))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	dispatcher := dispatch.New(r, cfg.Router.FrameDuration)

	healthServer := health.New(cfg.Server.HealthPort, r.Loaded)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("polyglot ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("polyglot stopped")
	return nil
}
