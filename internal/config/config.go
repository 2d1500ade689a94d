// Package config handles loading and validating the polyglot configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the polyglot daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Router     RouterConfig     `mapstructure:"router"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`

	// AllowedOrigins lists the Origin hosts (e.g. "app.example.com:3000")
	// that may open the WebSocket stream; "*" allows any. Empty means
	// same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Audio policies for units that carry audio but no language attribute.
const (
	AudioPolicyDefault = "default" // assign the default language
	AudioPolicyDrop    = "drop"    // produce no output
)

// RouterConfig configures language resolution and the incremental module.
type RouterConfig struct {
	DefaultLanguage string        `mapstructure:"default_language"` // ISO-639-1 fallback language
	ForceLanguage   string        `mapstructure:"force_language"`   // synthesize everything in this language when set
	AudioPolicy     string        `mapstructure:"audio_policy"`     // "default" or "drop"
	FrameDuration   time.Duration `mapstructure:"frame_duration"`   // length of emitted audio frames
}

// DetectorConfig configures text language identification.
type DetectorConfig struct {
	Languages           []string `mapstructure:"languages"` // ISO-639-1 codes; empty means all
	MinRelativeDistance float64  `mapstructure:"min_relative_distance"`
	LowAccuracy         bool     `mapstructure:"low_accuracy"`
	Preload             bool     `mapstructure:"preload"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend string      `mapstructure:"backend"` // "piper"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence and Endpoint
// is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
	Speakers  map[string]string `mapstructure:"speakers"`  // ISO-639-1 language code -> speaker of a multi-speaker voice
	Timeout   time.Duration     `mapstructure:"timeout"`   // per-request deadline when the caller sets none
}

// CacheConfig configures the on-disk synthesis cache.
type CacheConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Dir              string `mapstructure:"dir"`
	CompressionLevel int    `mapstructure:"compression_level"` // zstd level, 0 disables compression
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./polyglot.yaml, ./configs/polyglot.yaml, /etc/polyglot/polyglot.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.allowed_origins", []string{})
	v.SetDefault("router.default_language", "en")
	v.SetDefault("router.force_language", "")
	v.SetDefault("router.audio_policy", AudioPolicyDefault)
	v.SetDefault("router.frame_duration", 200*time.Millisecond)
	v.SetDefault("detector.languages", []string{})
	v.SetDefault("detector.min_relative_distance", 0.0)
	v.SetDefault("detector.low_accuracy", false)
	v.SetDefault("detector.preload", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.timeout", 30*time.Second)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "~/.cache/polyglot")
	v.SetDefault("cache.compression_level", 3)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("polyglot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/polyglot")
	}

	// Environment variables: POLYGLOT_ROUTER_DEFAULT_LANGUAGE, POLYGLOT_TTS_PIPER_ENDPOINT, etc.
	v.SetEnvPrefix("POLYGLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; env vars and defaults are sufficient.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.TTS.Piper.Endpoint = resolveEnvRef(cfg.TTS.Piper.Endpoint)
	for lang, ep := range cfg.TTS.Piper.Endpoints {
		cfg.TTS.Piper.Endpoints[lang] = resolveEnvRef(ep)
	}
	cfg.Cache.Dir = resolveEnvRef(cfg.Cache.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Router.AudioPolicy {
	case AudioPolicyDefault, AudioPolicyDrop:
	default:
		return fmt.Errorf("router.audio_policy must be %q or %q, got %q",
			AudioPolicyDefault, AudioPolicyDrop, c.Router.AudioPolicy)
	}
	if c.Router.DefaultLanguage == "" {
		return fmt.Errorf("router.default_language must be set")
	}
	if c.Router.FrameDuration <= 0 {
		return fmt.Errorf("router.frame_duration must be positive, got %s", c.Router.FrameDuration)
	}
	if c.TTS.Backend != "piper" {
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("cache.compression_level must be within 0..22, got %d", c.Cache.CompressionLevel)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
