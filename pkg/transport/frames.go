// Package transport provides the connection adapters drivers speak
// through: serial (with VID/PID auto-detection), TCP, BLE, and the HTTPS
// control/stream client. Adapters carry no protocol state; framing beyond
// the idle flush belongs to the driver that owns the connection.
package transport

import (
	"bytes"
	"time"
)

// DefaultIdleFlush is how long a partial frame may sit in a buffer before
// it is considered poisoned and discarded.
const DefaultIdleFlush = 300 * time.Millisecond

// FrameBuffer accumulates raw read chunks for a driver's framer. When more
// than the idle window passes between chunks, the partial frame is dropped
// so binary protocols resynchronize instead of choking on stale bytes.
type FrameBuffer struct {
	buf  []byte
	last time.Time
	idle time.Duration
}

// NewFrameBuffer returns a buffer with the given idle window
// (DefaultIdleFlush when zero).
func NewFrameBuffer(idle time.Duration) *FrameBuffer {
	if idle <= 0 {
		idle = DefaultIdleFlush
	}
	return &FrameBuffer{idle: idle}
}

// Append adds a chunk, first purging the buffer if it has gone stale.
func (f *FrameBuffer) Append(p []byte) {
	now := time.Now()
	if len(f.buf) > 0 && now.Sub(f.last) > f.idle {
		f.buf = f.buf[:0]
	}
	f.buf = append(f.buf, p...)
	f.last = now
}

// Bytes returns the current buffered content.
func (f *FrameBuffer) Bytes() []byte { return f.buf }

// Len returns the buffered byte count.
func (f *FrameBuffer) Len() int { return len(f.buf) }

// Consume drops the first n buffered bytes.
func (f *FrameBuffer) Consume(n int) {
	if n >= len(f.buf) {
		f.buf = f.buf[:0]
		return
	}
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

// Reset empties the buffer.
func (f *FrameBuffer) Reset() { f.buf = f.buf[:0] }

// NextDelimited extracts one frame bounded by prefix and suffix, discarding
// leading garbage before the prefix. Returns nil when no complete frame is
// buffered yet. The returned slice includes prefix and suffix.
func (f *FrameBuffer) NextDelimited(prefix, suffix []byte) []byte {
	start := bytes.Index(f.buf, prefix)
	if start < 0 {
		// keep a possible partial prefix at the tail
		if keep := len(prefix) - 1; len(f.buf) > keep {
			f.Consume(len(f.buf) - keep)
		}
		return nil
	}
	if start > 0 {
		f.Consume(start)
	}
	end := bytes.Index(f.buf[len(prefix):], suffix)
	if end < 0 {
		return nil
	}
	total := len(prefix) + end + len(suffix)
	frame := make([]byte, total)
	copy(frame, f.buf[:total])
	f.Consume(total)
	return frame
}

// NextLine extracts one newline-terminated line without the terminator,
// tolerating both \n and \r\n.
func (f *FrameBuffer) NextLine() ([]byte, bool) {
	i := bytes.IndexByte(f.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := f.buf[:i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	out := make([]byte, len(line))
	copy(out, line)
	f.Consume(i + 1)
	return out, true
}

// NextLengthPrefixed extracts one frame whose first byte counts the bytes
// that follow it. The returned frame includes the length byte.
func (f *FrameBuffer) NextLengthPrefixed() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	total := int(f.buf[0]) + 1
	if total <= 1 {
		f.Consume(1)
		return nil
	}
	if len(f.buf) < total {
		return nil
	}
	frame := make([]byte, total)
	copy(frame, f.buf[:total])
	f.Consume(total)
	return frame
}
