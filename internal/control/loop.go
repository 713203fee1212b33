// Package control runs the device tick: button, sensor, mode policy,
// output reconciliation, update channel and network services, in that
// order, once per call.
package control

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/clock"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/ota"
	"github.com/sweeney/light-controller/internal/status"
)

// ErrRestartRequested is returned by Tick once something has asked for a
// device restart. The daemon exits and lets its supervisor restart it.
var ErrRestartRequested = errors.New("restart requested")

// Service is a collaborator that gets a slice of every tick. Handle must
// not block.
type Service interface {
	Handle(now clock.Millis)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(now clock.Millis)

// Handle calls f(now).
func (f ServiceFunc) Handle(now clock.Millis) { f(now) }

// Deps are the collaborators a Loop drives. Sensor, Policy, Updates,
// Tracker and OnUpdate may be nil.
type Deps struct {
	Clock    clock.Clock
	Button   gpio.DigitalIn
	Sensor   gpio.AnalogIn
	Light    *logic.Light
	Policy   *logic.ModePolicy
	Updates  ota.Channel
	Tracker  *status.Tracker
	Services []Service
	// OnUpdate sees every update event after the loop has acted on it.
	OnUpdate func(ota.Event)
}

// Loop owns the per-tick state: debouncer, sample window and update
// progress. Tick must only be called from one goroutine.
type Loop struct {
	d       Deps
	button  *logic.Button
	sampler *logic.Sampler
	update  status.UpdateInfo
	restart atomic.Bool

	buttonFault bool
	sensorFault bool
}

// New creates a Loop with the default press thresholds.
func New(d Deps) *Loop {
	return NewWithButton(d, logic.NewButton())
}

// NewWithButton creates a Loop around a preconfigured debouncer.
func NewWithButton(d Deps, b *logic.Button) *Loop {
	return &Loop{
		d:       d,
		button:  b,
		sampler: logic.NewSampler(),
	}
}

// RequestRestart makes the next Tick return ErrRestartRequested.
// Safe to call from any goroutine.
func (l *Loop) RequestRestart() {
	if !l.restart.Swap(true) {
		log.Info().Msg("restart requested")
	}
}

// LightLevel returns the smoothed sensor reading and whether any sample
// has been taken.
func (l *Loop) LightLevel() (float64, bool) {
	return l.sampler.Percentage(), l.sampler.Count() > 0
}

// Tick runs one iteration.
func (l *Loop) Tick() error {
	now := l.d.Clock.Now()

	l.pollButton(now)
	l.pollSensor()

	level, valid := l.LightLevel()
	if l.d.Policy != nil {
		l.d.Policy.Evaluate(l.d.Light, level, valid, now)
	}
	l.d.Light.Reconcile()

	if l.d.Updates != nil {
		for _, ev := range l.d.Updates.Handle() {
			l.handleUpdate(ev)
		}
	}

	if l.d.Tracker != nil {
		l.d.Tracker.Update(l.d.Light.Snapshot(), level, valid)
	}
	for _, s := range l.d.Services {
		s.Handle(now)
	}

	if l.restart.Load() {
		return ErrRestartRequested
	}
	return nil
}

func (l *Loop) pollButton(now clock.Millis) {
	level, err := l.d.Button.Read()
	if err != nil {
		if !l.buttonFault {
			log.Error().Err(err).Msg("button read failed")
			l.buttonFault = true
		}
		return
	}
	if l.buttonFault {
		log.Info().Msg("button read recovered")
		l.buttonFault = false
	}

	// Pull-up input: pressed reads low.
	g := l.button.Sample(level == gpio.Low, now)
	if g == logic.GestureNone {
		return
	}
	if l.update.Active {
		log.Debug().Stringer("gesture", g).Msg("gesture ignored: update in progress")
		return
	}
	log.Debug().Stringer("gesture", g).Msg("button")
	switch g {
	case logic.GestureShortPress:
		l.d.Light.Toggle()
	case logic.GestureLongPress:
		l.d.Light.OnLongPress()
	}
}

func (l *Loop) pollSensor() {
	if l.d.Sensor == nil {
		return
	}
	raw, err := l.d.Sensor.ReadRaw()
	if err != nil {
		if !l.sensorFault {
			log.Error().Err(err).Msg("light sensor read failed")
			l.sensorFault = true
		}
		return
	}
	if l.sensorFault {
		log.Info().Msg("light sensor read recovered")
		l.sensorFault = false
	}
	l.sampler.Record(raw)
}

func (l *Loop) handleUpdate(ev ota.Event) {
	switch ev.Kind {
	case ota.KindStart:
		log.Info().Str("target", string(ev.Target)).Int64("size", ev.Total).Msg("update started")
		l.d.Light.Hold(true)
		l.update = status.UpdateInfo{Active: true, Target: ev.Target}
	case ota.KindProgress:
		l.update.Percent = ev.Percent()
	case ota.KindEnd:
		log.Info().Str("target", string(ev.Target)).Int64("bytes", ev.Done).Msg("update finished")
		l.update.Percent = 100
		l.RequestRestart()
	case ota.KindError:
		log.Error().Err(ev.Err).Str("target", string(ev.Target)).Msg("update failed")
		l.d.Light.Hold(false)
		l.update = status.UpdateInfo{Target: ev.Target}
		if ev.Err != nil {
			l.update.LastErr = ev.Err.Error()
		}
	}

	if l.d.Tracker != nil {
		l.d.Tracker.SetUpdate(l.update)
	}
	if l.d.OnUpdate != nil {
		l.d.OnUpdate(ev)
	}
}

// Run calls Tick on every value from tick until ctx is done or Tick fails.
// A done context is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := l.Tick(); err != nil {
				return err
			}
		}
	}
}
