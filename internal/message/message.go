// Package message defines the incremental units flowing through the polyglot pipeline.
package message

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language is an optional ISO-639-1 code attached to a unit.
// The zero value is Unknown: no upstream component has determined the language.
type Language struct {
	Code  string
	Known bool
}

// Unknown is the language of a unit that carries no language attribute.
var Unknown = Language{}

// Known returns a Language carrying code. An empty or blank code yields Unknown.
func Known(code string) Language {
	code = strings.TrimSpace(code)
	if code == "" {
		return Unknown
	}
	return Language{Code: code, Known: true}
}

// String returns the code, or "unknown".
func (l Language) String() string {
	if !l.Known {
		return "unknown"
	}
	return l.Code
}

// MarshalJSON encodes a known language as its code and Unknown as null.
func (l Language) MarshalJSON() ([]byte, error) {
	if !l.Known {
		return []byte("null"), nil
	}
	return json.Marshal(l.Code)
}

// UnmarshalJSON accepts a code string, an empty string, or null.
func (l *Language) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = Unknown
		return nil
	}
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	*l = Known(code)
	return nil
}

// TextIU is an incremental text unit received from upstream.
type TextIU struct {
	// ID uniquely identifies the unit. Revokes refer to it.
	ID string `json:"id"`

	// Text is the text fragment carried by the unit.
	Text string `json:"text"`

	// Language is set when an upstream component already determined it.
	Language Language `json:"language"`

	// Committed marks the unit as final; no revoke will follow.
	Committed bool `json:"committed,omitempty"`

	// CreatedAt is when the unit was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewTextIU creates a text unit with a fresh ID.
func NewTextIU(text string, lang Language) TextIU {
	return TextIU{
		ID:        uuid.NewString(),
		Text:      text,
		Language:  lang,
		CreatedAt: time.Now(),
	}
}

// AudioIU is an incremental audio unit. Downstream units produced by the
// router always carry a resolved language code.
type AudioIU struct {
	ID string `json:"id"`

	// GroundedIn is the ID of the unit this one was produced from.
	GroundedIn string `json:"grounded_in,omitempty"`

	// Text is the text the audio was synthesized from (empty for pass-through audio).
	Text string `json:"text,omitempty"`

	// Language is the resolved ISO-639-1 code.
	Language string `json:"language"`

	// Voice is the synthesis voice that produced Audio.
	Voice string `json:"voice,omitempty"`

	// Audio is raw PCM, little endian.
	Audio []byte `json:"-"`

	SampleRate  int `json:"sample_rate"`
	Channels    int `json:"channels"`
	SampleWidth int `json:"sample_width"`
}

// HasAudio returns true if the unit contains an audio payload.
func (a *AudioIU) HasAudio() bool {
	return len(a.Audio) > 0
}

// Duration returns the playback length of the PCM payload.
func (a *AudioIU) Duration() time.Duration {
	frameBytes := a.SampleRate * a.Channels * a.SampleWidth
	if frameBytes <= 0 {
		return 0
	}
	return time.Duration(len(a.Audio)) * time.Second / time.Duration(frameBytes)
}

// Unit is what the router consumes: a text payload, an optional audio
// payload, and an optional language attribute.
type Unit struct {
	ID       string
	Text     string
	Language Language

	// Audio, when set, is upstream audio with its format.
	Audio       []byte
	SampleRate  int
	Channels    int
	SampleWidth int
}

// FromText wraps a text unit for routing.
func FromText(iu TextIU) Unit {
	return Unit{ID: iu.ID, Text: iu.Text, Language: iu.Language}
}

// HasText reports whether the unit carries non-blank text.
func (u Unit) HasText() bool {
	return strings.TrimSpace(u.Text) != ""
}

// HasAudio reports whether the unit carries an audio payload.
func (u Unit) HasAudio() bool {
	return len(u.Audio) > 0
}

// RouteRequest is the wire form of a routing request (HTTP and gRPC).
type RouteRequest struct {
	// ID is optional; one is generated when absent.
	ID string `json:"id,omitempty"`

	// Text is the text to synthesize.
	Text string `json:"text"`

	// Language is an optional ISO-639-1 code; omit or null to detect.
	Language Language `json:"language"`

	// Audio is optional base64 PCM for audio pass-through units.
	Audio string `json:"audio,omitempty"`

	SampleRate int `json:"sample_rate,omitempty"`
}

// Unit converts the request to a routable unit.
func (r *RouteRequest) Unit() (Unit, error) {
	u := Unit{ID: r.ID, Text: r.Text, Language: r.Language, SampleRate: r.SampleRate}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if r.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(r.Audio)
		if err != nil {
			return Unit{}, err
		}
		u.Audio = audio
		u.Channels = 1
		u.SampleWidth = 2
	}
	return u, nil
}

// RouteResult is the wire form of a routed unit.
type RouteResult struct {
	ID         string `json:"id"`
	GroundedIn string `json:"grounded_in,omitempty"`
	Text       string `json:"text,omitempty"`
	Language   string `json:"language"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`

	// Audio is the synthesized audio as a base64-encoded WAV file.
	Audio string `json:"audio,omitempty"`

	// ContentType is the MIME type of Audio.
	ContentType string `json:"content_type,omitempty"`
}

// NewRouteResult converts an audio unit to its wire form, wrapping the PCM in WAV.
func NewRouteResult(iu *AudioIU) *RouteResult {
	r := &RouteResult{
		ID:         iu.ID,
		GroundedIn: iu.GroundedIn,
		Text:       iu.Text,
		Language:   iu.Language,
		Voice:      iu.Voice,
		SampleRate: iu.SampleRate,
		Channels:   iu.Channels,
	}
	if iu.HasAudio() {
		r.Audio = base64.StdEncoding.EncodeToString(PCMToWAV(iu.Audio, iu.SampleRate, iu.Channels, iu.SampleWidth))
		r.ContentType = "audio/wav"
	}
	return r
}
