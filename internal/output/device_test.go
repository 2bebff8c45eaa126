package output

import (
	"errors"
	"testing"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tapedeck/tapedeck/internal/audio"
)

func TestMalgoFormatMapping(t *testing.T) {
	tests := []struct {
		bits    uint8
		want    malgo.FormatType
		wantErr bool
	}{
		{16, malgo.FormatS16, false},
		{24, malgo.FormatS24, false},
		{32, malgo.FormatS32, false},
		{8, malgo.FormatUnknown, true},
		{0, malgo.FormatUnknown, true},
	}

	for _, tt := range tests {
		got, err := malgoFormat(tt.bits)
		if tt.wantErr {
			if !errors.Is(err, audio.ErrUnsupportedFormat) {
				t.Errorf("malgoFormat(%d) error = %v, want ErrUnsupportedFormat", tt.bits, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("malgoFormat(%d) unexpected error: %v", tt.bits, err)
		}
		if got != tt.want {
			t.Errorf("malgoFormat(%d) = %v, want %v", tt.bits, got, tt.want)
		}
	}
}

func TestDeviceStopLatchesFailure(t *testing.T) {
	d := NewDevice()
	d.open = true

	d.markStopped()

	if _, err := d.Play([]byte{0, 0}); !errors.Is(err, ErrSinkFailed) {
		t.Errorf("Play after device stop error = %v, want ErrSinkFailed", err)
	}

	// Latching twice is harmless
	d.markStopped()
	if !d.failed {
		t.Error("failure latch cleared by repeated stop")
	}
}

func TestDeviceStopWhileClosedIsIgnored(t *testing.T) {
	d := NewDevice()

	d.markStopped()

	if d.failed {
		t.Error("stop on a closed sink should not latch failure")
	}
	if _, err := d.Play([]byte{0, 0}); !errors.Is(err, ErrSinkNotOpen) {
		t.Errorf("Play on closed sink error = %v, want ErrSinkNotOpen", err)
	}
}

func TestDeviceStopWakesBlockedPlay(t *testing.T) {
	d := NewDevice()
	d.open = true
	d.queue = make([]byte, deviceQueueLimit)

	result := make(chan error, 1)
	go func() {
		_, err := d.Play([]byte{0, 0})
		result <- err
	}()

	// Let Play reach the full-queue wait before stopping the device
	time.Sleep(20 * time.Millisecond)
	d.markStopped()

	select {
	case err := <-result:
		if !errors.Is(err, ErrSinkFailed) {
			t.Errorf("blocked Play error = %v, want ErrSinkFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play still blocked after device stop")
	}
}
