// Package langid identifies the language of a text fragment.
//
// The router only depends on the Detector interface; the lingua-go backed
// implementation is what the daemon wires in.
package langid

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pemistahl/lingua-go"

	"github.com/nadzzz/polyglot/internal/config"
)

// ErrUndetermined is returned when no language could be identified.
var ErrUndetermined = errors.New("language could not be determined")

// Detector returns the best-guess ISO-639-1 code for a text.
type Detector interface {
	Detect(text string) (string, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(text string) (string, error)

// Detect calls f.
func (f DetectorFunc) Detect(text string) (string, error) { return f(text) }

// Lingua implements Detector with the lingua-go statistical models.
type Lingua struct {
	detector lingua.LanguageDetector
}

// New builds a lingua detector from config. An empty language list means
// all languages lingua knows about, so unsupported languages are reported
// as such rather than misattributed to a supported one.
func New(cfg config.DetectorConfig) (*Lingua, error) {
	var builder lingua.LanguageDetectorBuilder
	if len(cfg.Languages) == 0 {
		builder = lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	} else {
		langs, err := parseLanguages(cfg.Languages)
		if err != nil {
			return nil, err
		}
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(langs...)
	}

	if cfg.MinRelativeDistance > 0 {
		builder = builder.WithMinimumRelativeDistance(cfg.MinRelativeDistance)
	}
	if cfg.LowAccuracy {
		builder = builder.WithLowAccuracyMode()
	}
	if cfg.Preload {
		builder = builder.WithPreloadedLanguageModels()
	}

	slog.Debug("language detector built", "languages", len(cfg.Languages), "low_accuracy", cfg.LowAccuracy)
	return &Lingua{detector: builder.Build()}, nil
}

// Detect returns the lowercase ISO-639-1 code of the most likely language.
func (l *Lingua) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrUndetermined
	}
	lang, ok := l.detector.DetectLanguageOf(text)
	if !ok || lang == lingua.Unknown {
		return "", ErrUndetermined
	}
	return strings.ToLower(lang.IsoCode639_1().String()), nil
}

func parseLanguages(codes []string) ([]lingua.Language, error) {
	langs := make([]lingua.Language, 0, len(codes))
	for _, code := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(code)))
		lang := lingua.GetLanguageFromIsoCode639_1(iso)
		if lang == lingua.Unknown {
			return nil, fmt.Errorf("unknown detector language %q", code)
		}
		langs = append(langs, lang)
	}
	// lingua panics when built from fewer than two languages.
	if len(langs) < 2 {
		return nil, fmt.Errorf("detector needs at least two languages, got %d", len(langs))
	}
	return langs, nil
}
