// Package gpio provides hardware abstraction for the controller's pins.
// Real implementations use the Linux GPIO character device, sysfs PWM and
// the IIO ADC interface. Fakes allow testing without hardware.
package gpio

// Level is the electrical level of a digital line.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// DigitalIn reads a single digital input line.
type DigitalIn interface {
	Read() (Level, error)
	Close() error
}

// DigitalOut drives a single digital output line.
type DigitalOut interface {
	Write(level Level) error
	Close() error
}

// AnalogOut writes PWM duty cycles to one or more channels.
// Duty values range from 0 to MaxDuty inclusive.
type AnalogOut interface {
	WriteDuty(channel int, value uint32) error
	Channels() int
	MaxDuty() uint32
	Close() error
}

// AnalogIn reads a raw sample from an analog sensor, scaled to 0..MaxRaw.
type AnalogIn interface {
	ReadRaw() (int, error)
	Close() error
}

// MaxRaw is the top of the analog input range (10-bit).
const MaxRaw = 1023

// Default pin assignments (BCM numbering).
const (
	DefaultPinButton    = 17
	DefaultPinIndicator = 27
)
