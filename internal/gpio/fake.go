package gpio

import "errors"

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	// Levels contains scripted values to return.
	// Each call to Read() consumes the next level.
	Levels []Level

	// index tracks current position in Levels
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...Level) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Read() (Level, error) {
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	if len(f.Levels) == 0 {
		return Low, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Set replaces the script with a single level held indefinitely.
func (f *FakeInput) Set(level Level) {
	f.Levels = []Level{level}
	f.index = 0
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// FakeOutput records every level written.
type FakeOutput struct {
	Writes     []Level
	WriteError error
	Closed     bool
}

// Write records level.
func (f *FakeOutput) Write(level Level) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, level)
	return nil
}

// Last returns the most recent level written, Low if none.
func (f *FakeOutput) Last() Level {
	if len(f.Writes) == 0 {
		return Low
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// DutyWrite is one recorded PWM write.
type DutyWrite struct {
	Channel int
	Value   uint32
}

// FakePWM records duty writes for a fixed number of channels.
type FakePWM struct {
	NumChannels int
	Max         uint32
	Writes      []DutyWrite
	WriteError  error
	Closed      bool
}

// NewFakePWM creates a FakePWM with n channels and the given duty range.
func NewFakePWM(n int, max uint32) *FakePWM {
	return &FakePWM{NumChannels: n, Max: max}
}

// WriteDuty records the write.
func (f *FakePWM) WriteDuty(channel int, value uint32) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, DutyWrite{Channel: channel, Value: value})
	return nil
}

// Channels returns the configured channel count.
func (f *FakePWM) Channels() int {
	return f.NumChannels
}

// MaxDuty returns the configured duty range.
func (f *FakePWM) MaxDuty() uint32 {
	return f.Max
}

// Duty returns the last value written to channel, 0 if none.
func (f *FakePWM) Duty(channel int) uint32 {
	for i := len(f.Writes) - 1; i >= 0; i-- {
		if f.Writes[i].Channel == channel {
			return f.Writes[i].Value
		}
	}
	return 0
}

// Close marks the PWM as closed.
func (f *FakePWM) Close() error {
	f.Closed = true
	return nil
}

// FakeADC returns scripted raw samples, repeating the last one.
type FakeADC struct {
	Samples   []int
	index     int
	ReadError error
	Closed    bool
}

// NewFakeADC creates a FakeADC with the given samples.
func NewFakeADC(samples ...int) *FakeADC {
	return &FakeADC{Samples: samples}
}

// ReadRaw returns the next scripted sample.
func (f *FakeADC) ReadRaw() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the ADC as closed.
func (f *FakeADC) Close() error {
	f.Closed = true
	return nil
}
