// Polyglot is a multilingual text-to-speech language router. It resolves
// the language of incoming text, picks the matching Piper voice, and serves
// synthesized audio over HTTP, WebSocket and gRPC.
//
// Usage:
//
//	polyglot serve [--config configs/polyglot.yaml]
//	polyglot say "Bonjour tout le monde" -o bonjour.wav
//	polyglot voices
//
// @title       polyglot API
// @version     1.0
// @description Multilingual TTS language router.
// @BasePath    /
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nadzzz/polyglot/internal/config"
	"github.com/nadzzz/polyglot/internal/langid"
	"github.com/nadzzz/polyglot/internal/router"
	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/tts/cache"
	"github.com/nadzzz/polyglot/internal/tts/piper"
	"github.com/nadzzz/polyglot/internal/voice"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:           "polyglot",
		Short:         "Multilingual TTS language router",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// .env is optional; values feed POLYGLOT_* and ${VAR} references.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "polyglot %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (e.g. configs/polyglot.yaml)")
	rootCmd.AddCommand(serveCmd, sayCmd, voicesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("polyglot failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}

// voiceMapping builds the effective voice mapping from defaults and config.
func voiceMapping(cfg *config.Config) (*voice.Mapping, error) {
	return voice.New(voice.Defaults, piper.Voices(cfg.TTS.Piper), cfg.Router.DefaultLanguage)
}

// newRouter wires the voice mapping, detector, and Piper loader (behind the
// synthesis cache when enabled) into a router. The returned cleanup closes
// the cache.
func newRouter(cfg *config.Config) (*router.Router, func(), error) {
	voices, err := voiceMapping(cfg)
	if err != nil {
		return nil, nil, err
	}

	detector, err := langid.New(cfg.Detector)
	if err != nil {
		return nil, nil, err
	}

	var loader tts.Loader = piper.New(cfg.TTS.Piper)
	cleanup := func() {}
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Dir, cfg.Cache.CompressionLevel)
		if err != nil {
			return nil, nil, err
		}
		loader = cache.Loader(loader, c)
		cleanup = func() { _ = c.Close() }
		slog.Info("synthesis cache enabled", "dir", c.Dir(), "compression_level", cfg.Cache.CompressionLevel)
	}

	r := router.New(voices, detector, loader, router.Options{
		AudioPolicy:   cfg.Router.AudioPolicy,
		ForceLanguage: cfg.Router.ForceLanguage,
	})
	return r, cleanup, nil
}
