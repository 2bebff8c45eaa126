package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tapedeck/tapedeck/internal/buffer"
	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/encoder"
	"github.com/tapedeck/tapedeck/internal/output"
)

// Player is the consumer side of one stream: it pops finished chunks
// off the ring and feeds them to the sink, tracking elapsed time and
// the source bit-rate as it goes. It owns the sink between Run entry
// and exit; tags queued concurrently are delivered from the run
// goroutine so they never interleave with Play.
type Player struct {
	ring *buffer.Ring
	ctl  *decoder.Control
	sink output.Sink

	mu      sync.Mutex
	elapsed time.Duration
	bitrate int
	tag     *encoder.Tag
	err     error
}

// NewPlayer creates a player over the given ring, control channel, and
// sink
func NewPlayer(ring *buffer.Ring, ctl *decoder.Control, sink output.Sink) *Player {
	return &Player{ring: ring, ctl: ctl, sink: sink}
}

// Run consumes chunks until the stream ends, a stop is requested, or
// the sink fails. A sink failure is fatal for the whole stream: the
// player records it, asks the decoder loop to stop, and exits. After a
// terminal decoder state the ring is drained before exiting so the tail
// of the stream is not dropped.
func (p *Player) Run() {
	var chunk buffer.Chunk

	for {
		if !p.ctl.WaitConsumer(func() bool { return !p.ring.Empty() }) {
			slog.Debug("player exiting",
				"state", p.ctl.State().String(),
				"elapsed", p.Elapsed())
			return
		}

		p.deliverTag()

		if !p.ring.TryPop(&chunk) {
			// Lost a race with a ring reset; re-evaluate the wait
			continue
		}
		p.ctl.Notify()

		if _, err := p.sink.Play(chunk.Bytes()); err != nil {
			p.fail(fmt.Errorf("sink rejected chunk %d: %w", chunk.Seq, err))
			p.ctl.RequestStop()
			return
		}

		p.advance(&chunk)
	}
}

// deliverTag sends a queued tag, serialized with Play by virtue of
// running on the consumer goroutine
func (p *Player) deliverTag() {
	p.mu.Lock()
	tag := p.tag
	p.tag = nil
	p.mu.Unlock()

	if tag != nil {
		p.sink.SendTag(*tag)
	}
}

// advance updates elapsed time and bit-rate from a delivered chunk
func (p *Player) advance(chunk *buffer.Chunk) {
	end := chunk.Time + p.ctl.Format().Duration(chunk.Size)

	p.mu.Lock()
	p.elapsed = end
	if chunk.Bitrate > 0 {
		p.bitrate = chunk.Bitrate
	}
	p.mu.Unlock()
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	slog.Error("playback failed", "error", err)
}

// QueueTag schedules tag for delivery before the next chunk. A second
// tag queued before delivery replaces the first.
func (p *Player) QueueTag(tag encoder.Tag) {
	if tag.Empty() {
		return
	}
	p.mu.Lock()
	p.tag = &tag
	p.mu.Unlock()
	p.ctl.Notify()
}

// Elapsed returns the playback position after the last delivered chunk
func (p *Player) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

// Bitrate returns the last known source bit-rate in kbps, 0 if unknown
func (p *Player) Bitrate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitrate
}

// Err returns the sink error that aborted playback, nil otherwise
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
