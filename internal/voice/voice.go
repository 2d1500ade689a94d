// Package voice holds the static table mapping ISO-639-1 language codes to
// synthesis voices.
//
// A Mapping is built once from defaults merged with configuration and is
// read-only afterwards; it is safe for concurrent use.
package voice

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// ErrNoDefaultVoice is returned when the default language has no voice.
var ErrNoDefaultVoice = errors.New("default language has no voice")

// Voice identifies the synthesis model used for one language.
type Voice struct {
	// Name is the engine's voice/model identifier (e.g. "fr_FR-siwis-medium").
	Name string `json:"name" yaml:"name"`

	// Speaker selects a speaker in multi-speaker models. Empty for single-speaker voices.
	Speaker string `json:"speaker,omitempty" yaml:"speaker,omitempty"`

	// Endpoint is an engine endpoint dedicated to this voice. Empty means the default endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Defaults maps ISO-639-1 codes to Piper voice model names.
var Defaults = map[string]Voice{
	"de": {Name: "de_DE-thorsten-medium"},
	"en": {Name: "en_US-lessac-medium"},
	"es": {Name: "es_ES-mls_10246-low"},
	"fi": {Name: "fi_FI-harri-medium"},
	"fr": {Name: "fr_FR-siwis-medium"},
	"hu": {Name: "hu_HU-anna-medium"},
	"it": {Name: "it_IT-riccardo-x_low"},
	"ja": {Name: "ja_JP-amitaro-medium"},
	"ko": {Name: "ko_KR-kss-x_low"},
	"lv": {Name: "lv_LV-aivars-medium"},
	"nl": {Name: "nl_NL-mls-medium"},
	"pl": {Name: "pl_PL-darkman-medium"},
	"pt": {Name: "pt_BR-faber-medium"},
	"ru": {Name: "ru_RU-ruslan-medium"},
	"zh": {Name: "zh_CN-huayan-medium"},
}

// Mapping is a read-only language code -> voice table with a default language.
type Mapping struct {
	voices      map[string]Voice
	defaultLang string
}

// New merges overrides into defaults and returns the resulting mapping.
// Keys are normalized with Normalize. An override with an empty Name keeps
// the default voice name but applies its speaker and endpoint.
func New(defaults, overrides map[string]Voice, defaultLang string) (*Mapping, error) {
	voices := make(map[string]Voice, len(defaults)+len(overrides))
	for code, v := range defaults {
		voices[Normalize(code)] = v
	}
	for code, v := range overrides {
		code = Normalize(code)
		if code == "" {
			continue
		}
		merged := voices[code]
		if v.Name != "" {
			merged.Name = v.Name
		}
		if v.Speaker != "" {
			merged.Speaker = v.Speaker
		}
		if v.Endpoint != "" {
			merged.Endpoint = v.Endpoint
		}
		if merged.Name == "" {
			return nil, fmt.Errorf("voice for %q has no name", code)
		}
		voices[code] = merged
	}

	defaultLang = Normalize(defaultLang)
	if _, ok := voices[defaultLang]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDefaultVoice, defaultLang)
	}

	return &Mapping{voices: voices, defaultLang: defaultLang}, nil
}

// Normalize reduces a language tag to its lowercase base language code:
// "FR", "fr-FR" and "fr_FR" all become "fr". Tags that do not parse are
// returned lowercased and trimmed.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	return base.String()
}

// Lookup returns the voice for code.
func (m *Mapping) Lookup(code string) (Voice, bool) {
	v, ok := m.voices[Normalize(code)]
	return v, ok
}

// Supported reports whether code has a voice.
func (m *Mapping) Supported(code string) bool {
	_, ok := m.Lookup(code)
	return ok
}

// Resolve returns the normalized code and its voice, substituting the
// default language when code is not supported.
func (m *Mapping) Resolve(code string) (string, Voice) {
	code = Normalize(code)
	if v, ok := m.voices[code]; ok {
		return code, v
	}
	return m.defaultLang, m.voices[m.defaultLang]
}

// Default returns the default language code.
func (m *Mapping) Default() string { return m.defaultLang }

// Codes returns the supported codes in sorted order.
func (m *Mapping) Codes() []string {
	codes := make([]string, 0, len(m.voices))
	for code := range m.voices {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Voices returns a copy of the table.
func (m *Mapping) Voices() map[string]Voice {
	out := make(map[string]Voice, len(m.voices))
	for code, v := range m.voices {
		out[code] = v
	}
	return out
}
