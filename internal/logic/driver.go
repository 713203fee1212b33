package logic

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/gpio"
)

// Output applies a logical brightness to hardware.
type Output interface {
	// Apply writes pct (0..100) if it differs from the last applied value.
	Apply(pct float64)
	// Applied returns the last value successfully written.
	Applied() float64
}

// Driver maps a brightness percentage onto every PWM channel and mirrors
// the on/off state onto an optional indicator line.
type Driver struct {
	mu        sync.Mutex
	pwm       gpio.AnalogOut
	indicator gpio.DigitalOut
	applied   float64
}

// NewDriver zeroes every channel and the indicator. indicator may be nil.
func NewDriver(pwm gpio.AnalogOut, indicator gpio.DigitalOut) (*Driver, error) {
	d := &Driver{pwm: pwm, indicator: indicator}
	for ch := 0; ch < pwm.Channels(); ch++ {
		if err := pwm.WriteDuty(ch, 0); err != nil {
			return nil, fmt.Errorf("zero channel %d: %w", ch, err)
		}
	}
	if indicator != nil {
		if err := indicator.Write(gpio.Low); err != nil {
			return nil, fmt.Errorf("zero indicator: %w", err)
		}
	}
	return d, nil
}

// DutyFor converts a percentage into a duty value in 0..max.
func DutyFor(pct float64, max uint32) uint32 {
	if math.IsNaN(pct) || pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return max
	}
	return uint32(math.Round(pct / 100 * float64(max)))
}

// Apply writes pct to every channel unless it matches the last applied
// value. On a write failure the last applied value is kept so the next
// reconciliation retries.
func (d *Driver) Apply(pct float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pct == d.applied {
		return
	}

	duty := DutyFor(pct, d.pwm.MaxDuty())
	for ch := 0; ch < d.pwm.Channels(); ch++ {
		if err := d.pwm.WriteDuty(ch, duty); err != nil {
			log.Error().Err(err).Int("channel", ch).Uint32("duty", duty).Msg("pwm write failed")
			return
		}
	}

	if d.indicator != nil && (pct > 0) != (d.applied > 0) {
		level := gpio.Low
		if pct > 0 {
			level = gpio.High
		}
		if err := d.indicator.Write(level); err != nil {
			log.Error().Err(err).Stringer("level", level).Msg("indicator write failed")
		}
	}

	log.Debug().Float64("from", d.applied).Float64("to", pct).Uint32("duty", duty).Msg("brightness applied")
	d.applied = pct
}

// Applied returns the last value successfully written.
func (d *Driver) Applied() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied
}
