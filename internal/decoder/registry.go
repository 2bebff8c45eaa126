package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Registry manages codec plugins and detects the right one per source.
// It is populated at startup and read-only afterwards.
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a new empty decoder registry
func NewRegistry() *Registry {
	slog.Debug("creating new decoder registry")
	return &Registry{decoders: make([]Decoder, 0)}
}

// NewDefaultRegistry creates a registry with the built-in WAV, MP3,
// FLAC, and AIFF codecs
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewFlacDecoder())
	registry.Register(NewAiffDecoder())

	slog.Info("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())

	return registry
}

// Register adds a codec to the registry
func (r *Registry) Register(d Decoder) {
	if d == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, d)
	slog.Debug("decoder registered",
		"format", d.FormatName(),
		"total_decoders", len(r.decoders))
}

// Decoders returns all registered codecs
func (r *Registry) Decoders() []Decoder {
	return r.decoders
}

// SupportedFormats returns the names of all registered codecs
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, d := range r.decoders {
		formats = append(formats, d.FormatName())
	}
	return formats
}

// DetectFormat picks a codec by filename extension only. Registration
// order breaks ties.
func (r *Registry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}

	for _, d := range r.decoders {
		if d.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", d.FormatName())
			return d
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent sniffs the source magic bytes first and falls
// back to the extension. The source is rewound before returning.
func (r *Registry) DetectFormatWithContent(filename string, src io.ReadSeeker) Decoder {
	header := make([]byte, 512)
	n, err := src.Read(header)
	if _, serr := src.Seek(0, io.SeekStart); serr != nil {
		slog.Error("failed to rewind source after magic detection", "error", serr)
		return nil
	}
	if err != nil && err != io.EOF {
		slog.Error("failed to read header for magic detection", "error", err)
		return r.DetectFormat(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback")
		return r.DetectFormat(filename)
	}

	mtype := mimetype.Detect(header[:n])
	mimeStr := strings.ToLower(mtype.String())

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", mimeStr,
		"bytes_analyzed", n)

	var byContent Decoder
	switch {
	case strings.Contains(mimeStr, "wav"):
		byContent = r.findByFormat("WAV")
	case strings.Contains(mimeStr, "mpeg") || strings.Contains(mimeStr, "mp3"):
		byContent = r.findByFormat("MP3")
	case strings.Contains(mimeStr, "flac"):
		byContent = r.findByFormat("FLAC")
	case strings.Contains(mimeStr, "aiff"):
		byContent = r.findByFormat("AIFF")
	}

	if byContent != nil {
		slog.Debug("format detected by magic bytes",
			"filename", filename,
			"format", byContent.FormatName(),
			"mime_type", mimeStr)
		return byContent
	}

	return r.DetectFormat(filename)
}

// findByFormat finds a codec by its format name
func (r *Registry) findByFormat(formatName string) Decoder {
	for _, d := range r.decoders {
		if strings.EqualFold(d.FormatName(), formatName) {
			return d
		}
	}
	return nil
}

// OpenStream detects the codec for the named source and opens a PCM
// stream over it. Unknown formats are a configuration-level error
// reported before any decoding starts.
func (r *Registry) OpenStream(filename string, src io.ReadSeeker) (Stream, error) {
	d := r.DetectFormatWithContent(filename, src)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	stream, err := d.Open(src)
	if err != nil {
		slog.Error("failed to open stream",
			"filename", filename,
			"format", d.FormatName(),
			"error", err)
		return nil, fmt.Errorf("open %s stream: %w", d.FormatName(), err)
	}

	slog.Info("stream opened",
		"filename", filename,
		"format", d.FormatName(),
		"audio_format", stream.Format().String(),
		"total_time", stream.TotalTime())

	return stream, nil
}
