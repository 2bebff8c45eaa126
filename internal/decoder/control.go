package decoder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// State is the decoder lifecycle state visible to both agents
type State int

const (
	StateStart  State = iota // stream opened, format not yet negotiated
	StateDecode              // actively producing chunks
	StateStop                // terminal: end of stream or stop honored
	StateError               // terminal: unrecoverable codec/source error
)

// String returns the state name for logs
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDecode:
		return "decode"
	case StateStop:
		return "stop"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Signal tells a waiting producer why it was woken
type Signal int

const (
	SignalReady Signal = iota // wait condition satisfied
	SignalStop                // stop requested; takes precedence over seek
	SignalSeek                // seek requested
)

// Control is the shared control channel between the decoder loop and the
// player. One mutex guards the state, the request flags, and the stream
// metadata; a condition variable is broadcast on every mutation and on
// every ring push/pop (via Notify) so both agents use wakeable waits
// instead of polling.
//
// Mutation is agent-specific: the player sets the stop/seek requests,
// the decoder loop clears seek once honored and drives the state.
type Control struct {
	mu   sync.Mutex
	cond *sync.Cond

	state      State
	stop       bool
	seek       bool
	seekTarget time.Duration

	format    audio.Format
	totalTime time.Duration
	err       error
}

// NewControl creates a control channel in the Start state
func NewControl() *Control {
	c := &Control{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current decoder state
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error recorded with the Error state, nil otherwise
func (c *Control) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Format returns the negotiated stream format; zero until BeginDecode
func (c *Control) Format() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// TotalTime returns the total stream time, 0 if unknown
func (c *Control) TotalTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTime
}

// SeekPending reports whether a seek request has not yet been honored
func (c *Control) SeekPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seek
}

// StopRequested reports whether the consumer asked the loop to abort
func (c *Control) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

// RequestStop asks the decoder loop to exit at the next chunk boundary.
// Consumer side.
func (c *Control) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop {
		return
	}
	c.stop = true
	slog.Debug("stop requested", "state", c.state.String())
	c.cond.Broadcast()
}

// RequestSeek asks the decoder loop to reposition to target. Returns
// false when the request cannot be honored anymore: a stop is pending or
// the stream already terminated. Consumer side.
func (c *Control) RequestSeek(target time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop || c.state == StateStop || c.state == StateError {
		slog.Debug("seek request ignored",
			"target", target,
			"state", c.state.String(),
			"stop_pending", c.stop)
		return false
	}

	c.seek = true
	c.seekTarget = target
	slog.Debug("seek requested", "target", target)
	c.cond.Broadcast()
	return true
}

// BeginDecode records the negotiated format and total time and moves the
// state to Decode. Decoder side.
func (c *Control) BeginDecode(format audio.Format, total time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.format = format
	c.totalTime = total
	c.state = StateDecode
	slog.Debug("decode started", "format", format.String(), "total_time", total)
	c.cond.Broadcast()
}

// TakeSeekTarget returns the pending seek target. A pending stop takes
// precedence: the target is withheld so the loop exits instead of
// repositioning. The seek flag stays set until SeekDone. Decoder side.
func (c *Control) TakeSeekTarget() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seek || c.stop {
		return 0, false
	}
	return c.seekTarget, true
}

// SeekDone clears the seek flag after the ring was reset and the codec
// repositioned. Decoder side.
func (c *Control) SeekDone() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seek = false
	slog.Debug("seek honored", "target", c.seekTarget)
	c.cond.Broadcast()
}

// Finish marks the terminal Stop state. Decoder side.
func (c *Control) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateStop
	c.seek = false
	slog.Debug("decode finished")
	c.cond.Broadcast()
}

// Fail records err and marks the terminal Error state. Decoder side.
func (c *Control) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateError
	c.err = err
	c.seek = false
	slog.Error("decode failed", "error", err)
	c.cond.Broadcast()
}

// Notify wakes both agents after a buffer-state transition (a push or a
// pop). The ring itself stays passive; whoever mutates it signals here.
func (c *Control) Notify() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitProducer blocks the decoder loop until ready() holds or a control
// request arrives. Stop wins over seek, seek wins over ready, matching
// the abort-over-reposition precedence. ready must not block on this
// Control.
func (c *Control) WaitProducer(ready func() bool) Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stop {
			return SignalStop
		}
		if c.seek {
			return SignalSeek
		}
		if ready() {
			return SignalReady
		}
		c.cond.Wait()
	}
}

// WaitConsumer blocks the player until ready() holds or the stream
// terminates with nothing left to consume. It returns true when ready;
// false when the player should exit (stop requested, or terminal state
// with ready() still false). Consumption pauses while a seek is pending
// so stale pre-seek chunks are never delivered. ready must not block on
// this Control.
func (c *Control) WaitConsumer(ready func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stop {
			return false
		}
		if !c.seek && ready() {
			return true
		}
		if c.state == StateStop || c.state == StateError {
			return false
		}
		c.cond.Wait()
	}
}
