package logic

import "github.com/sweeney/light-controller/internal/clock"

// ModePolicy applies the automatic behaviour of AutoOnOff and TimerOff.
type ModePolicy struct {
	darkBelow   float64
	brightAbove float64
	timerOff    uint32

	lastMode  Mode
	darkKnown bool
	dark      bool
}

// PolicyConfig holds the thresholds for automatic modes.
type PolicyConfig struct {
	DarkBelow   float64 // AutoOnOff turns on below this light level (%)
	BrightAbove float64 // AutoOnOff turns off above this light level (%)
	TimerOffMs  uint32  // TimerOff turns off after this long on
}

// NewModePolicy creates a policy. BrightAbove below DarkBelow is raised to
// DarkBelow so the hysteresis band is never inverted.
func NewModePolicy(cfg PolicyConfig) *ModePolicy {
	if cfg.BrightAbove < cfg.DarkBelow {
		cfg.BrightAbove = cfg.DarkBelow
	}
	return &ModePolicy{
		darkBelow:   cfg.DarkBelow,
		brightAbove: cfg.BrightAbove,
		timerOff:    cfg.TimerOffMs,
	}
}

// Evaluate runs once per tick. level is only trusted when valid is true.
func (p *ModePolicy) Evaluate(l *Light, level float64, valid bool, now clock.Millis) {
	mode := l.Mode()
	if mode != p.lastMode {
		p.darkKnown = false
		p.lastMode = mode
	}

	switch mode {
	case ModeAutoOnOff:
		if !valid {
			return
		}
		// A held light ignores TurnOn, so forget the side we saw and
		// re-decide once the hold is released.
		if l.Snapshot().Held {
			p.darkKnown = false
			return
		}
		switch {
		case level < p.darkBelow && (!p.darkKnown || !p.dark):
			p.dark, p.darkKnown = true, true
			l.TurnOn()
		case level > p.brightAbove && (!p.darkKnown || p.dark):
			p.dark, p.darkKnown = false, true
			l.TurnOff()
		}

	case ModeTimerOff:
		if p.timerOff == 0 {
			return
		}
		since, on := l.OnSince()
		if on && clock.HasElapsed(since, p.timerOff, now) {
			l.TurnOff()
		}
	}
}
