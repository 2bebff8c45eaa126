package buffer

import "time"

// ChunkSize is the fixed capacity of one decoded-audio chunk in bytes.
// Small enough that seek/stop requests are observed with low latency,
// large enough that the ring mutex is not contended per sample.
const ChunkSize = 4096

// Chunk is one fixed-capacity slice of decoded PCM plus its playback
// metadata. Chunks are pre-allocated as part of the ring's storage and
// owned by the ring for its whole lifetime; producer and consumer only
// ever borrow them.
type Chunk struct {
	Data    [ChunkSize]byte
	Size    int           // bytes in use, <= ChunkSize
	Time    time.Duration // playback position of the first byte
	Bitrate int           // instantaneous source bit-rate in kbps, 0 if unknown
	Seq     uint64        // monotonically increasing push counter
}

// Bytes returns the in-use portion of the chunk data
func (c *Chunk) Bytes() []byte {
	return c.Data[:c.Size]
}
