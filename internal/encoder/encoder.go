package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// Common encoder errors
var (
	ErrUnknownEncoder = errors.New("unknown encoder")
	ErrNotOpen        = errors.New("encoder is not open")
	ErrAlreadyOpen    = errors.New("encoder is already open")
)

// Tag is the stream metadata an encoder may embed mid-stream.
// Annotation is best-effort end to end: sinks log and swallow tag
// failures.
type Tag struct {
	Title   string
	Artist  string
	Album   string
	Comment string
}

// Empty reports whether the tag carries no values at all
func (t Tag) Empty() bool {
	return t == Tag{}
}

// Encoder turns raw PCM into an encoded byte stream, pull-drained by the
// caller. After every Write (and before the next Write, Tag, or End) the
// caller must call Read until it returns 0, since encoders are free to
// buffer internally and only emit complete frames.
//
// Instances are stateful per stream and owned by exactly one sink; they
// are not safe for concurrent use.
type Encoder interface {
	// Open prepares the encoder for a stream in the given format and
	// may queue container header bytes for draining
	Open(format audio.Format) error

	// Write feeds raw little-endian PCM samples in
	Write(pcm []byte) error

	// Read drains already-encoded bytes into out, returning the number
	// of bytes written; 0 means nothing pending. Never blocks.
	Read(out []byte) int

	// PreTag flushes frames so a tag can be inserted; the caller must
	// drain fully between PreTag and Tag
	PreTag() error

	// Tag embeds stream metadata; encoders without a tag concept
	// accept and ignore it
	Tag(tag Tag) error

	// End flushes the final frames and any codec trailer
	End() error

	// Close releases encoder resources; the instance cannot be reused
	Close() error
}

// Factory creates one encoder instance per stream
type Factory func() Encoder

// Registry resolves encoder identifiers to factories. Populated at
// startup, read-only afterwards; unknown identifiers are a configuration
// error, not a runtime fault.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty encoder registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry with the built-in encoders
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register("wav", func() Encoder { return NewWavEncoder() })
	registry.Register("pcm", func() Encoder { return NewPcmEncoder() })

	slog.Info("default encoder registry initialized", "encoders", registry.Names())
	return registry
}

// Register adds an encoder factory under name
func (r *Registry) Register(name string, f Factory) {
	if name == "" || f == nil {
		slog.Warn("attempted to register invalid encoder factory", "name", name)
		return
	}
	r.factories[name] = f
	slog.Debug("encoder registered", "name", name)
}

// Names returns the registered encoder identifiers, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name resolves to a registered encoder
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// New creates a fresh encoder instance for name
func (r *Registry) New(name string) (Encoder, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, name)
	}
	return f(), nil
}
