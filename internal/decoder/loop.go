package decoder

import (
	"io"
	"log/slog"
	"time"

	"github.com/tapedeck/tapedeck/internal/buffer"
)

// Loop drives one codec stream: it fills a reused scratch buffer until a
// full chunk of PCM is ready, pushes finished chunks into the ring, and
// honors control requests at chunk-boundary granularity. It allocates
// nothing per chunk.
type Loop struct {
	ring    *buffer.Ring
	ctl     *Control
	scratch [buffer.ChunkSize]byte
}

// NewLoop creates a decoder loop over the given ring and control channel
func NewLoop(ring *buffer.Ring, ctl *Control) *Loop {
	return &Loop{ring: ring, ctl: ctl}
}

// Run decodes stream until end of stream, a stop request, or an
// unrecoverable codec error. It owns the producer side of the ring and
// the decoder side of the control channel; it never touches the sink.
func (l *Loop) Run(stream Stream) {
	l.ctl.BeginDecode(stream.Format(), stream.TotalTime())

	var (
		filled    int           // bytes of the pending chunk in scratch
		chunkTime time.Duration // stream position of scratch[0]
		bitrate   int           // last known instantaneous bit-rate
		eof       bool
	)

	for !eof {
		if l.ctl.StopRequested() {
			slog.Debug("decoder loop stopping on request")
			l.ctl.Finish()
			return
		}

		if target, ok := l.ctl.TakeSeekTarget(); ok {
			// Discard the in-flight partial chunk and everything
			// buffered before the seek; stale chunks must never
			// reach the consumer.
			filled = 0
			l.ring.Reset()
			l.ctl.Notify()

			if err := stream.Seek(target); err != nil {
				slog.Error("seek failed", "target", target, "error", err)
				l.ctl.Fail(err)
				return
			}
			l.ctl.SeekDone()
			continue
		}

		if filled == 0 {
			chunkTime = stream.Position()
		}

		n, err := stream.Read(l.scratch[filled:])
		filled += n
		if err == io.EOF {
			eof = true
		} else if err != nil {
			slog.Error("decode read failed", "error", err)
			l.ctl.Fail(err)
			return
		}

		if filled < buffer.ChunkSize && !eof {
			continue
		}
		if filled == 0 {
			continue // end of stream with nothing pending
		}

		if br := stream.Bitrate(); br > 0 {
			bitrate = br
		}

		// Suspend while the ring is full; woken by every pop and
		// every control-flag mutation.
		switch l.ctl.WaitProducer(func() bool { return !l.ring.Full() }) {
		case SignalStop:
			slog.Debug("decoder loop stopping while waiting for space")
			l.ctl.Finish()
			return
		case SignalSeek:
			continue
		}

		if !l.ring.TryPush(l.scratch[:filled], chunkTime, bitrate) {
			// Single producer: a free slot cannot vanish between
			// the wait and the push.
			continue
		}
		filled = 0
		l.ctl.Notify()
	}

	slog.Debug("decoder loop reached end of stream")
	l.ctl.Finish()
}
