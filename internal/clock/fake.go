package clock

// Fake is a manually advanced clock for tests.
type Fake struct {
	T Millis
}

// NewFake creates a Fake clock starting at t.
func NewFake(t Millis) *Fake {
	return &Fake{T: t}
}

// Now returns the current fake time.
func (f *Fake) Now() Millis {
	return f.T
}

// Advance moves the clock forward by ms, wrapping like real hardware.
func (f *Fake) Advance(ms uint32) {
	f.T += Millis(ms)
}
