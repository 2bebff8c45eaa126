package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/encoder"
)

// deviceQueueLimit bounds the PCM queued ahead of the hardware so Play
// applies backpressure instead of buffering the whole stream.
const deviceQueueLimit = 256 * 1024

// Device plays PCM on the default playback device via malgo. The device
// callback drains an internal queue; Play blocks while the queue is at
// its limit, which paces the consumer to real time.
type Device struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []byte
	open   bool
	failed bool
}

// NewDevice creates a closed device sink
func NewDevice() *Device {
	d := &Device{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// malgoFormat maps a bit depth to the malgo sample format
func malgoFormat(bits uint8) (malgo.FormatType, error) {
	switch bits {
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: bit depth %d", audio.ErrUnsupportedFormat, bits)
	}
}

// Open initializes the audio context and starts the playback device
func (d *Device) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	sampleFormat, err := malgoFormat(format.Bits)
	if err != nil {
		return err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = format.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, framecount uint32) {
			d.mu.Lock()
			n := copy(out, d.queue)
			d.queue = d.queue[n:]
			if len(d.queue) == 0 {
				d.queue = nil
			}
			d.cond.Broadcast()
			d.mu.Unlock()

			// Underrun: pad with silence rather than stall the device
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
		},
		Stop: func() {
			d.markStopped()
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	d.open = true
	d.failed = false

	slog.Info("device sink opened",
		"format", format.String(),
		"malgo_format", sampleFormat)
	return nil
}

// Play queues PCM for the device callback, blocking while the queue is
// at its limit
func (d *Device) Play(pcm []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return 0, ErrSinkNotOpen
	}
	if d.failed {
		return 0, ErrSinkFailed
	}

	for len(d.queue) >= deviceQueueLimit {
		if !d.open {
			return 0, ErrSinkNotOpen
		}
		if d.failed {
			return 0, ErrSinkFailed
		}
		d.cond.Wait()
	}

	d.queue = append(d.queue, pcm...)
	return len(pcm), nil
}

// markStopped latches the failure when the device stops while the sink
// is still open, such as the hardware going away mid-stream. Close stops
// the device too, but it clears open first, so a normal shutdown does
// not trip the latch.
func (d *Device) markStopped() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.failed {
		return
	}
	d.failed = true
	d.cond.Broadcast()
	slog.Warn("playback device stopped unexpectedly")
}

// SendTag is accepted and ignored: playback devices have no metadata
// channel
func (d *Device) SendTag(tag encoder.Tag) {
	slog.Debug("device sink ignoring tag", "title", tag.Title)
}

// Close stops the device and releases the audio context unconditionally
func (d *Device) Close() error {
	d.mu.Lock()
	d.open = false
	d.queue = nil
	d.cond.Broadcast()
	d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}

	slog.Debug("device sink closed")
	return nil
}

var _ Sink = (*Device)(nil)
