package logic

import (
	"github.com/samber/lo"

	"github.com/sweeney/light-controller/internal/gpio"
)

// SampleWindow is the number of raw readings averaged.
const SampleWindow = 10

// Sampler keeps a rolling window of raw light sensor readings.
// Not safe for concurrent use; the control loop owns it.
type Sampler struct {
	buf   [SampleWindow]int
	next  int
	count int
}

// NewSampler creates an empty Sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Record stores a raw reading, overwriting the oldest once the window is full.
func (s *Sampler) Record(raw int) {
	s.buf[s.next] = lo.Clamp(raw, 0, gpio.MaxRaw)
	s.next = (s.next + 1) % SampleWindow
	if s.count < SampleWindow {
		s.count++
	}
}

// Percentage returns the mean of the valid readings scaled to 0..100.
// Before the window fills, fewer readings are averaged.
func (s *Sampler) Percentage() float64 {
	if s.count == 0 {
		return 0
	}
	sum := lo.Sum(s.buf[:s.count])
	return float64(sum) / float64(s.count) / gpio.MaxRaw * 100
}

// Count returns the number of valid readings (at most SampleWindow).
func (s *Sampler) Count() int {
	return s.count
}

// Full reports whether the window has filled since startup.
func (s *Sampler) Full() bool {
	return s.count == SampleWindow
}
