package output

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/encoder"
)

// drainBufferSize is the scratch size for pulling encoded bytes out of
// the encoder per pass
const drainBufferSize = 32768

// filePerm is the default creation mode for destination files
const filePerm = 0666

// Recorder encodes the stream to a file. It owns one destination file
// and one encoder instance between Open and Close.
type Recorder struct {
	fs   afero.Fs
	enc  encoder.Encoder
	path string

	file   afero.File
	buf    [drainBufferSize]byte
	open   bool
	failed bool
}

// NewRecorder validates cfg and builds a closed recorder sink. The
// encoder identifier defaults to DefaultEncoder; the destination path
// has no default. Both are checked here, before any resource exists.
func NewRecorder(fs afero.Fs, encoders *encoder.Registry, cfg Config) (*Recorder, error) {
	name := cfg.Encoder
	if name == "" {
		name = DefaultEncoder
	}

	enc, err := encoders.New(name)
	if err != nil {
		slog.Error("recorder configuration rejected", "encoder", name, "error", err)
		return nil, err
	}

	if cfg.Path == "" {
		slog.Error("recorder configuration rejected", "error", ErrPathRequired)
		return nil, ErrPathRequired
	}

	slog.Debug("recorder sink configured", "path", cfg.Path, "encoder", name)
	return &Recorder{fs: fs, enc: enc, path: cfg.Path}, nil
}

// Open creates the destination file, opens the encoder, and drains any
// container header the encoder produced immediately. Any failure rolls
// back the steps already taken; a failed Open leaves no artifact on the
// filesystem.
func (r *Recorder) Open(format audio.Format) error {
	file, err := r.fs.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", r.path, err)
	}
	r.file = file

	if err := r.enc.Open(format); err != nil {
		r.rollbackOpen()
		return fmt.Errorf("failed to open encoder: %w", err)
	}

	if err := r.drainToFile(); err != nil {
		r.enc.Close()
		r.rollbackOpen()
		return fmt.Errorf("failed to write stream header: %w", err)
	}

	r.open = true
	r.failed = false
	slog.Info("recorder sink opened", "path", r.path, "format", format.String())
	return nil
}

// rollbackOpen closes and removes the partially-created destination
func (r *Recorder) rollbackOpen() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	if err := r.fs.Remove(r.path); err != nil {
		slog.Warn("failed to remove partial artifact", "path", r.path, "error", err)
	}
}

// writeToFile writes all of data, retrying short writes. Interrupted
// partial writes are retried transparently and never surface as errors.
func (r *Recorder) writeToFile(data []byte) error {
	for len(data) > 0 {
		n, err := r.file.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write to %q: %w", r.path, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", ErrShortWrite, r.path)
		}
		data = data[n:]
	}
	return nil
}

// drainToFile moves everything pending in the encoder to the file
func (r *Recorder) drainToFile() error {
	for {
		n := r.enc.Read(r.buf[:])
		if n == 0 {
			return nil
		}
		if err := r.writeToFile(r.buf[:n]); err != nil {
			return err
		}
	}
}

// Play feeds PCM through the encoder to the file. Returns the input
// length on success; any failure marks the sink dead and the caller
// must stop submitting.
func (r *Recorder) Play(pcm []byte) (int, error) {
	if !r.open {
		return 0, ErrSinkNotOpen
	}
	if r.failed {
		return 0, ErrSinkFailed
	}

	if err := r.enc.Write(pcm); err != nil {
		r.failed = true
		return 0, fmt.Errorf("encoder write: %w", err)
	}
	if err := r.drainToFile(); err != nil {
		r.failed = true
		return 0, err
	}
	return len(pcm), nil
}

// SendTag annotates the output best-effort: a failure is logged and the
// stream continues without the annotation.
func (r *Recorder) SendTag(tag encoder.Tag) {
	if !r.open || r.failed {
		return
	}

	err := r.enc.PreTag()
	if err == nil {
		err = r.drainToFile()
	}
	if err == nil {
		err = r.enc.Tag(tag)
	}
	if err != nil {
		slog.Warn("tag annotation failed, stream continues",
			"path", r.path,
			"title", tag.Title,
			"error", err)
	}
}

// Close flushes the encoder trailer best-effort and releases the
// encoder and the file unconditionally. Flush errors are suppressed;
// only a failure to close the file itself is reported.
func (r *Recorder) Close() error {
	if r.file == nil {
		return nil
	}

	if r.open && !r.failed {
		if err := r.enc.End(); err == nil {
			if err := r.drainToFile(); err != nil {
				slog.Debug("final drain failed during close", "path", r.path, "error", err)
			}
		} else {
			slog.Debug("encoder end failed during close", "path", r.path, "error", err)
		}
	}

	r.enc.Close()

	err := r.file.Close()
	r.file = nil
	r.open = false

	if err != nil {
		return fmt.Errorf("failed to close %q: %w", r.path, err)
	}
	slog.Info("recorder sink closed", "path", r.path)
	return nil
}

var _ Sink = (*Recorder)(nil)
