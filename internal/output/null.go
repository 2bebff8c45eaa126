package output

import (
	"log/slog"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/encoder"
)

// Null discards everything it is given while honoring the full sink
// lifecycle. Useful for benchmarks and for draining a pipeline in tests.
type Null struct {
	open  bool
	bytes int64
	tags  int
}

// NewNull creates a discarding sink
func NewNull() *Null {
	return &Null{}
}

// Open validates the format and opens the sink
func (n *Null) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	n.open = true
	n.bytes = 0
	n.tags = 0
	slog.Debug("null sink opened", "format", format.String())
	return nil
}

// Play discards pcm and reports it all consumed
func (n *Null) Play(pcm []byte) (int, error) {
	if !n.open {
		return 0, ErrSinkNotOpen
	}
	n.bytes += int64(len(pcm))
	return len(pcm), nil
}

// SendTag counts and discards the tag
func (n *Null) SendTag(tag encoder.Tag) {
	if n.open {
		n.tags++
	}
}

// Close closes the sink
func (n *Null) Close() error {
	n.open = false
	return nil
}

// BytesPlayed returns the number of PCM bytes discarded so far
func (n *Null) BytesPlayed() int64 {
	return n.bytes
}

// TagsSent returns the number of tags received so far
func (n *Null) TagsSent() int {
	return n.tags
}

var _ Sink = (*Null)(nil)
