package output

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/encoder"
)

// Common sink errors
var (
	ErrUnknownSink  = errors.New("unknown output sink")
	ErrSinkNotOpen  = errors.New("output sink is not open")
	ErrSinkFailed   = errors.New("output sink failed; stream must stop")
	ErrPathRequired = errors.New("output path not configured")
	ErrShortWrite   = errors.New("destination accepted zero bytes")
)

// Sink is a pluggable audio destination with a strict lifecycle:
// CLOSED -> Open -> (Play | SendTag)* -> Close -> CLOSED. A sink owns
// its destination resource and encoder exclusively between Open and
// Close; it is driven by a single consumer goroutine and is not safe
// for concurrent use.
type Sink interface {
	// Open acquires the destination and prepares the encoder for the
	// negotiated format. On failure every step already taken is undone;
	// no partial artifact survives a failed Open.
	Open(format audio.Format) error

	// Play forwards PCM to the destination. It returns len(pcm) only
	// when everything was written; a zero return with an error is
	// fatal for this sink and the caller must stop submitting.
	Play(pcm []byte) (int, error)

	// SendTag annotates the stream with metadata. Annotation is
	// best-effort: failures are logged and swallowed, the stream
	// continues. Must be serialized with Play by the caller.
	SendTag(tag encoder.Tag)

	// Close flushes and releases the destination unconditionally, even
	// after earlier failures, so no descriptor leaks. Flush errors
	// during Close are suppressed.
	Close() error
}

// Config is the sink configuration validated at stream-open time
type Config struct {
	// Name selects the sink plugin ("recorder", "null", "device")
	Name string

	// Path is the destination for file-backed sinks; required by the
	// recorder, ignored by the rest
	Path string

	// Encoder is the encoder identifier; empty selects the default
	Encoder string
}

// DefaultEncoder is used when the configuration does not name one
const DefaultEncoder = "wav"

// Factory builds a configured, still-closed sink. Configuration errors
// (unknown encoder, missing path) surface here, before any resource is
// allocated.
type Factory func(cfg Config) (Sink, error)

// Registry resolves sink identifiers to factories. Populated at
// startup, read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty sink registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry with the built-in sinks backed
// by the given filesystem and encoder registry
func NewDefaultRegistry(fs afero.Fs, encoders *encoder.Registry) *Registry {
	registry := NewRegistry()

	registry.Register("recorder", func(cfg Config) (Sink, error) {
		return NewRecorder(fs, encoders, cfg)
	})
	registry.Register("null", func(cfg Config) (Sink, error) {
		return NewNull(), nil
	})
	registry.Register("device", func(cfg Config) (Sink, error) {
		return NewDevice(), nil
	})

	slog.Info("default sink registry initialized", "sinks", registry.Names())
	return registry
}

// Register adds a sink factory under name
func (r *Registry) Register(name string, f Factory) {
	if name == "" || f == nil {
		slog.Warn("attempted to register invalid sink factory", "name", name)
		return
	}
	r.factories[name] = f
	slog.Debug("sink registered", "name", name)
}

// Names returns the registered sink identifiers, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name resolves to a registered sink
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// New builds a configured sink for cfg.Name
func (r *Registry) New(cfg Config) (Sink, error) {
	f, ok := r.factories[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSink, cfg.Name)
	}
	return f(cfg)
}
