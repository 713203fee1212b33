package logic

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sweeney/light-controller/internal/clock"
)

// Light owns the live light state. Button gestures, the mode policy and
// network commands all mutate it through the same methods.
//
// The lock guards the state fields only. It is released before the output
// or the settings store is touched, so a slow write never stalls a reader.
// saveMu orders saves; each save reads the settings after acquiring it, so
// the last write to the store always carries the latest settings.
type Light struct {
	mu       sync.Mutex
	saveMu   sync.Mutex
	settings Settings
	isOn     bool
	current  float64
	held     bool
	onSince  clock.Millis

	out   Output
	saver SettingsSaver
	clock clock.Clock
	reset func()
}

// NewLight derives the live state from s. In ModeOn the light boots lit at
// the target brightness; every other mode boots dark.
func NewLight(s Settings, out Output, saver SettingsSaver, clk clock.Clock) *Light {
	l := &Light{
		settings: s,
		out:      out,
		saver:    saver,
		clock:    clk,
	}
	if s.Mode == ModeOn {
		l.isOn = true
		l.current = s.TargetBrightness
		l.onSince = clk.Now()
		out.Apply(l.current)
	}
	return l
}

// SetResetHook registers the long-press action.
func (l *Light) SetResetHook(fn func()) {
	l.mu.Lock()
	l.reset = fn
	l.mu.Unlock()
}

// TurnOn lights the output at the target brightness. Ignored while held.
func (l *Light) TurnOn() {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		log.Debug().Msg("turn on ignored: update in progress")
		return
	}
	b := l.turnOnLocked()
	l.mu.Unlock()

	l.out.Apply(b)
}

// TurnOff darkens the output.
func (l *Light) TurnOff() {
	l.mu.Lock()
	b := l.turnOffLocked()
	l.mu.Unlock()

	l.out.Apply(b)
}

// Toggle turns the light off if it is on, otherwise on.
func (l *Light) Toggle() {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		log.Debug().Msg("toggle ignored: update in progress")
		return
	}
	var b float64
	if l.isOn {
		b = l.turnOffLocked()
	} else {
		b = l.turnOnLocked()
	}
	l.mu.Unlock()

	l.out.Apply(b)
}

func (l *Light) turnOnLocked() float64 {
	l.isOn = true
	l.current = l.settings.TargetBrightness
	l.onSince = l.clock.Now()
	return l.current
}

func (l *Light) turnOffLocked() float64 {
	l.isOn = false
	l.current = 0
	return 0
}

// SetTargetBrightness clamps pct to [1, 100], persists it when it changed,
// and applies it at once if the light is on. NaN is ignored.
func (l *Light) SetTargetBrightness(pct float64) {
	if math.IsNaN(pct) {
		return
	}
	pct = lo.Clamp(pct, MinTargetBrightness, MaxTargetBrightness)

	l.mu.Lock()
	changed := pct != l.settings.TargetBrightness
	l.settings.TargetBrightness = pct
	on := l.isOn
	if on {
		l.current = pct
	}
	l.mu.Unlock()

	if changed {
		l.persist()
	}
	if on {
		l.out.Apply(pct)
	}
}

// SetMode changes and persists the operation mode.
func (l *Light) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid mode %d", m)
	}

	l.mu.Lock()
	changed := m != l.settings.Mode
	l.settings.Mode = m
	l.mu.Unlock()

	if changed {
		log.Info().Stringer("mode", m).Msg("mode changed")
		l.persist()
	}
	return nil
}

func (l *Light) persist() {
	if l.saver == nil {
		return
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	s := l.settings
	l.mu.Unlock()

	if err := l.saver.Save(s); err != nil {
		log.Error().Err(err).Msg("save settings failed")
	}
}

// OnLongPress runs the reset hook, if any.
func (l *Light) OnLongPress() {
	l.mu.Lock()
	fn := l.reset
	l.mu.Unlock()

	if fn == nil {
		log.Info().Msg("long press: no reset hook registered")
		return
	}
	log.Info().Msg("long press: reset requested")
	fn()
}

// Hold blocks turning on (and forces off) while held is true.
func (l *Light) Hold(held bool) {
	l.mu.Lock()
	l.held = held
	var b float64
	if held {
		b = l.turnOffLocked()
	}
	l.mu.Unlock()

	if held {
		l.out.Apply(b)
	}
}

// Reconcile pushes the live brightness to the output if the last applied
// value has drifted, for example after a failed write.
func (l *Light) Reconcile() {
	l.mu.Lock()
	b := l.current
	l.mu.Unlock()

	if l.out.Applied() != b {
		l.out.Apply(b)
	}
}

// OnSince returns when the light was last turned on and whether it is on.
func (l *Light) OnSince() (clock.Millis, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onSince, l.isOn
}

// Mode returns the current operation mode.
func (l *Light) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings.Mode
}

// Snapshot returns a copy of the live state.
func (l *Light) Snapshot() LightState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LightState{
		IsOn:              l.isOn,
		CurrentBrightness: l.current,
		TargetBrightness:  l.settings.TargetBrightness,
		Mode:              l.settings.Mode,
		DeviceName:        l.settings.DeviceName,
		Held:              l.held,
	}
}
