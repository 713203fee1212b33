// Package clock provides a wrapping millisecond clock and elapsed-time checks.
// Timestamps are 32-bit and wrap after about 49.7 days, so comparisons must
// always go through HasElapsed rather than ordinary ordering.
package clock

import "time"

// Millis is a millisecond timestamp from a monotonic clock that wraps at 2^32.
type Millis uint32

// Clock returns the current wrapping millisecond timestamp.
type Clock interface {
	Now() Millis
}

// HasElapsed reports whether at least d milliseconds have passed between
// since and now. Unsigned subtraction keeps the result correct across a wrap.
func HasElapsed(since Millis, d uint32, now Millis) bool {
	return uint32(now-since) >= d
}

// Since returns the milliseconds between since and now, wrap-safe.
func Since(since, now Millis) uint32 {
	return uint32(now - since)
}

// Monotonic reads the process monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a clock whose zero is the moment of the call.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns milliseconds since construction, truncated to 32 bits.
func (m *Monotonic) Now() Millis {
	return Millis(uint32(time.Since(m.start).Milliseconds()))
}
