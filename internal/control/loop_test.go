package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/light-controller/internal/clock"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/ota"
	"github.com/sweeney/light-controller/internal/status"
)

type fixture struct {
	clk     *clock.Fake
	button  *gpio.FakeInput
	adc     *gpio.FakeADC
	pwm     *gpio.FakePWM
	driver  *logic.Driver
	light   *logic.Light
	updates *ota.Fake
	tracker *status.Tracker
	loop    *Loop
	ticks   []clock.Millis
}

func newFixture(t *testing.T, s logic.Settings) *fixture {
	t.Helper()
	f := &fixture{
		clk:     clock.NewFake(0),
		button:  gpio.NewFakeInput(gpio.High),
		adc:     gpio.NewFakeADC(1023),
		pwm:     gpio.NewFakePWM(2, 1000),
		updates: &ota.Fake{},
		tracker: status.NewTracker(time.Now(), status.Config{}),
	}
	var err error
	f.driver, err = logic.NewDriver(f.pwm, nil)
	require.NoError(t, err)
	f.light = logic.NewLight(s, f.driver, nil, f.clk)
	f.loop = New(Deps{
		Clock:   f.clk,
		Button:  f.button,
		Sensor:  f.adc,
		Light:   f.light,
		Policy:  logic.NewModePolicy(logic.PolicyConfig{DarkBelow: 20, BrightAbove: 35, TimerOffMs: 1000}),
		Updates: f.updates,
		Tracker: f.tracker,
		Services: []Service{ServiceFunc(func(now clock.Millis) {
			f.ticks = append(f.ticks, now)
		})},
	})
	return f
}

// run ticks every 10 ms for d milliseconds.
func (f *fixture) run(t *testing.T, d uint32) {
	t.Helper()
	for elapsed := uint32(0); elapsed < d; elapsed += 10 {
		require.NoError(t, f.loop.Tick())
		f.clk.Advance(10)
	}
}

func (f *fixture) press(t *testing.T, d uint32) {
	t.Helper()
	f.button.Set(gpio.Low)
	f.run(t, d+10)
	f.button.Set(gpio.High)
	f.run(t, 10)
}

func TestShortPressTogglesLight(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())

	f.press(t, 60)
	assert.True(t, f.light.Snapshot().IsOn)
	assert.Equal(t, uint32(800), f.pwm.Duty(0))
	assert.Equal(t, uint32(800), f.pwm.Duty(1))

	f.press(t, 60)
	assert.False(t, f.light.Snapshot().IsOn)
	assert.Equal(t, uint32(0), f.pwm.Duty(0))
}

func TestBounceIsIgnored(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())

	f.press(t, 20)
	assert.False(t, f.light.Snapshot().IsOn)
}

func TestLongPressRunsResetHook(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	f.light.SetResetHook(f.loop.RequestRestart)

	f.button.Set(gpio.Low)
	f.run(t, 600)
	f.button.Set(gpio.High)

	err := f.loop.Tick()
	assert.ErrorIs(t, err, ErrRestartRequested)
	assert.False(t, f.light.Snapshot().IsOn, "long press does not toggle")
}

func TestTickOrderFeedsTrackerAndServices(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	f.adc.Samples = []int{512}

	f.run(t, 30)
	assert.Equal(t, []clock.Millis{0, 10, 20}, f.ticks)

	snap := f.tracker.Snapshot()
	assert.True(t, snap.LevelValid)
	assert.InDelta(t, 50.05, snap.LightLevel, 0.01)
	assert.Equal(t, "RoomProjectAreaLights", snap.Light.DeviceName)
}

func TestAutoModeFollowsLightLevel(t *testing.T) {
	s := logic.DefaultSettings()
	s.Mode = logic.ModeAutoOnOff
	f := newFixture(t, s)

	f.adc.Samples = []int{100}
	f.run(t, 100)
	assert.True(t, f.light.Snapshot().IsOn, "dark room turns on")

	f.adc.Samples = []int{1000}
	f.run(t, 100)
	assert.False(t, f.light.Snapshot().IsOn, "bright room turns off")
}

func TestTimerModeTurnsOff(t *testing.T) {
	s := logic.DefaultSettings()
	s.Mode = logic.ModeTimerOff
	f := newFixture(t, s)

	f.light.TurnOn()
	f.run(t, 990)
	assert.True(t, f.light.Snapshot().IsOn)
	f.run(t, 20)
	assert.False(t, f.light.Snapshot().IsOn)
}

func TestReconcileRetriesFailedWrite(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())

	f.pwm.WriteError = errors.New("bus error")
	f.light.TurnOn()
	assert.Equal(t, 0.0, f.driver.Applied())

	f.pwm.WriteError = nil
	require.NoError(t, f.loop.Tick())
	assert.Equal(t, 80.0, f.driver.Applied())
	assert.Equal(t, uint32(800), f.pwm.Duty(0))
}

func TestUpdateHoldsLightAndRequestsRestart(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	var seen []ota.Kind
	f.loop.d.OnUpdate = func(ev ota.Event) { seen = append(seen, ev.Kind) }
	f.light.TurnOn()

	f.updates.Push(ota.Event{Kind: ota.KindStart, Target: ota.TargetFirmware, Total: 1000})
	require.NoError(t, f.loop.Tick())
	assert.False(t, f.light.Snapshot().IsOn, "update forces the light off")
	assert.Equal(t, uint32(0), f.pwm.Duty(0))

	f.light.TurnOn()
	assert.False(t, f.light.Snapshot().IsOn, "turn on is blocked while held")

	f.press(t, 60)
	assert.False(t, f.light.Snapshot().IsOn, "gestures are ignored while held")

	f.updates.Push(ota.Event{Kind: ota.KindProgress, Target: ota.TargetFirmware, Done: 400, Total: 1000})
	require.NoError(t, f.loop.Tick())
	up := f.tracker.Snapshot().Update
	assert.True(t, up.Active)
	assert.Equal(t, 40, up.Percent)
	assert.Equal(t, ota.TargetFirmware, up.Target)

	f.updates.Push(ota.Event{Kind: ota.KindEnd, Target: ota.TargetFirmware, Done: 1000, Total: 1000})
	assert.ErrorIs(t, f.loop.Tick(), ErrRestartRequested)
	assert.Equal(t, 100, f.tracker.Snapshot().Update.Percent)
	assert.Equal(t, []ota.Kind{ota.KindStart, ota.KindProgress, ota.KindEnd}, seen)
}

func TestUpdateErrorReleasesHold(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())

	f.updates.Push(
		ota.Event{Kind: ota.KindStart, Target: ota.TargetFilesystem},
		ota.Event{Kind: ota.KindError, Target: ota.TargetFilesystem, Err: errors.New("checksum mismatch")},
	)
	require.NoError(t, f.loop.Tick())

	up := f.tracker.Snapshot().Update
	assert.False(t, up.Active)
	assert.Equal(t, "checksum mismatch", up.LastErr)

	f.light.TurnOn()
	assert.True(t, f.light.Snapshot().IsOn)
}

func TestReadFaultsDoNotStopTheLoop(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	f.button.ReadError = errors.New("line gone")
	f.adc.ReadError = errors.New("adc gone")

	f.run(t, 50)
	assert.Len(t, f.ticks, 5)
	_, valid := f.loop.LightLevel()
	assert.False(t, valid)

	f.button.ReadError = nil
	f.adc.ReadError = nil
	f.run(t, 10)
	_, valid = f.loop.LightLevel()
	assert.True(t, valid)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx, tick) }()

	tick <- time.Now()
	tick <- time.Now()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsRestart(t *testing.T) {
	f := newFixture(t, logic.DefaultSettings())
	f.loop.RequestRestart()

	tick := make(chan time.Time, 1)
	tick <- time.Now()
	err := f.loop.Run(context.Background(), tick)
	assert.ErrorIs(t, err, ErrRestartRequested)
}
