package buffer

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultChunks is the ring capacity used when the configuration does
// not say otherwise.
const DefaultChunks = 32

// MinChunks is the smallest usable ring; below this the producer and
// consumer would lock-step on every chunk.
const MinChunks = 4

// Ring is a fixed-capacity circular queue of decoded-audio chunks shared
// between exactly one producer (the decoder loop) and one consumer (the
// player). All operations are non-blocking; callers that need to wait
// for space or data coordinate through decoder.Control.
//
// State is two cursors plus a wrap flag: begin==end with wrap unset is
// empty, begin==end with wrap set is full. The cursors are never exposed.
type Ring struct {
	mu     sync.Mutex
	chunks []Chunk
	begin  int // next chunk to consume
	end    int // next slot to fill
	wrap   bool
	seq    uint64
}

// NewRing creates a ring with n pre-allocated chunks. Values below
// MinChunks are raised to MinChunks.
func NewRing(n int) *Ring {
	if n < MinChunks {
		slog.Debug("ring capacity raised to minimum", "requested", n, "minimum", MinChunks)
		n = MinChunks
	}
	return &Ring{chunks: make([]Chunk, n)}
}

// Cap returns the fixed chunk capacity of the ring
func (r *Ring) Cap() int {
	return len(r.chunks)
}

// Len returns the number of chunks currently buffered
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Ring) lenLocked() int {
	if r.wrap {
		return len(r.chunks) - r.begin + r.end
	}
	return r.end - r.begin
}

// Empty reports whether there is nothing to consume
func (r *Ring) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin == r.end && !r.wrap
}

// Full reports whether there is no slot left to fill
func (r *Ring) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin == r.end && r.wrap
}

// TryPush copies data into the slot at end and advances the cursor.
// It returns false without touching the ring when the buffer is full
// or data does not fit a chunk.
func (r *Ring) TryPush(data []byte, pos time.Duration, bitrate int) bool {
	if len(data) == 0 || len(data) > ChunkSize {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.begin == r.end && r.wrap {
		return false
	}

	c := &r.chunks[r.end]
	c.Size = copy(c.Data[:], data)
	c.Time = pos
	c.Bitrate = bitrate
	r.seq++
	c.Seq = r.seq

	r.end++
	if r.end == len(r.chunks) {
		r.end = 0
	}
	if r.end == r.begin {
		r.wrap = true
	}
	return true
}

// TryPop copies the chunk at begin into the caller-owned chunk and
// advances the cursor. It returns false when the ring is empty. Popping
// frees the slot for the producer immediately, so consumers get a copy
// rather than a pointer into the storage array.
func (r *Ring) TryPop(into *Chunk) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.begin == r.end && !r.wrap {
		return false
	}

	*into = r.chunks[r.begin]
	r.begin++
	if r.begin == len(r.chunks) {
		r.begin = 0
	}
	r.wrap = false
	return true
}

// Reset discards all buffered chunks. Only safe while the producer is
// parked in the seek handshake: no push or pop may be in flight.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.lenLocked()
	r.begin = 0
	r.end = 0
	r.wrap = false

	if dropped > 0 {
		slog.Debug("ring reset", "dropped_chunks", dropped)
	}
}
