// Package cache persists synthesized audio on disk so repeated text is not
// synthesized twice. Entries are keyed by the SHA-256 of model name and
// text, gob-encoded, and optionally zstd-compressed.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/mitchellh/go-homedir"

	"github.com/nadzzz/polyglot/internal/tts"
	"github.com/nadzzz/polyglot/internal/voice"
)

// ErrCorrupted is returned when an entry cannot be decoded.
var ErrCorrupted = errors.New("cache entry corrupted")

// entry is the on-disk form of a synthesis result.
type entry struct {
	SampleRate  int
	Channels    int
	SampleWidth int
	Audio       []byte
}

// Cache is a directory of synthesized audio. Safe for concurrent use.
type Cache struct {
	dir     string
	ext     string
	encoder *zstd.Encoder // nil when compression is disabled
	decoder *zstd.Decoder
}

// New creates the cache directory (expanding a leading "~") and returns a
// cache writing entries at the given zstd level; level 0 stores them raw.
func New(dir string, level int) (*Cache, error) {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	c := &Cache{dir: dir, ext: ".gob"}
	if level > 0 {
		c.ext = ".gob.zst"
		c.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		c.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
	}
	return c, nil
}

// Dir returns the expanded cache directory.
func (c *Cache) Dir() string { return c.dir }

// Key derives the cache key for text synthesized by model.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+c.ext)
}

// Get returns the cached result for key. A corrupt entry is removed and
// reported as a miss.
func (c *Cache) Get(key string) (*tts.Result, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	res, err := c.decode(data)
	if err != nil {
		slog.Warn("dropping corrupt cache entry", "key", key, "error", err)
		_ = os.Remove(c.path(key))
		return nil, false
	}
	return res, true
}

// Put stores res under key. The file is written atomically.
func (c *Cache) Put(key string, res *tts.Result) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{
		SampleRate:  res.SampleRate,
		Channels:    res.Channels,
		SampleWidth: res.SampleWidth,
		Audio:       res.Audio,
	}); err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	data := buf.Bytes()
	if c.encoder != nil {
		data = c.encoder.EncodeAll(data, nil)
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (c *Cache) decode(data []byte) (*tts.Result, error) {
	if c.decoder != nil {
		var err error
		if data, err = c.decoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
	}
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &tts.Result{
		Audio:       e.Audio,
		SampleRate:  e.SampleRate,
		Channels:    e.Channels,
		SampleWidth: e.SampleWidth,
	}, nil
}

// Close releases the compression resources.
func (c *Cache) Close() error {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

// Wrap returns a model that consults c before synthesizing with m and
// stores successful results.
func Wrap(m tts.Model, c *Cache) tts.Model {
	return &cachedModel{Model: m, cache: c}
}

// Loader wraps every model loaded by l with c.
func Loader(l tts.Loader, c *Cache) tts.Loader {
	return tts.LoaderFunc(func(ctx context.Context, v voice.Voice) (tts.Model, error) {
		m, err := l.Load(ctx, v)
		if err != nil {
			return nil, err
		}
		return Wrap(m, c), nil
	})
}

type cachedModel struct {
	tts.Model
	cache *Cache
}

func (m *cachedModel) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	key := Key(m.Name(), text)
	if res, ok := m.cache.Get(key); ok {
		slog.Debug("synthesis cache hit", "model", m.Name(), "key", key[:12])
		return res, nil
	}

	res, err := m.Model.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Put(key, res); err != nil {
		slog.Warn("failed to cache synthesis", "model", m.Name(), "error", err)
	}
	return res, nil
}
