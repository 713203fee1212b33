package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/light-controller/internal/clock"
	"github.com/sweeney/light-controller/internal/config"
	"github.com/sweeney/light-controller/internal/control"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/mqtt"
	"github.com/sweeney/light-controller/internal/settings"
	"github.com/sweeney/light-controller/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, *info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = ":80"
	cfg.MQTT.Broker = "tcp://a:1883"

	applyOverrides(cfg, "", "tcp://b:1883", "debug")
	assert.Equal(t, ":80", cfg.HTTP.Addr)
	assert.Equal(t, "tcp://b:1883", cfg.MQTT.Broker)
	assert.Equal(t, "debug", cfg.Log.Level)

	applyOverrides(cfg, "off", "off", "")
	assert.Empty(t, cfg.HTTP.Addr)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

type loopFixture struct {
	light   *logic.Light
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	loop    *control.Loop
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	clk := clock.NewFake(0)
	driver, err := logic.NewDriver(gpio.NewFakePWM(1, 1023), nil)
	require.NoError(t, err)
	light := logic.NewLight(logic.DefaultSettings(), driver, nil, clk)
	tracker := status.NewTracker(time.Now(), status.Config{Broker: "tcp://localhost:1883"})
	pub := mqtt.NewFakePublisher()
	pub.Connected = true

	loop := control.New(control.Deps{
		Clock:    clk,
		Button:   gpio.NewFakeInput(gpio.High),
		Light:    light,
		Tracker:  tracker,
		Services: []control.Service{mqtt.NewReporter(pub, pub, tracker, 0)},
	})
	return &loopFixture{light: light, tracker: tracker, pub: pub, loop: loop}
}

func lastSystemStatus(t *testing.T, pub *mqtt.FakePublisher) status.StatusInner {
	t.Helper()
	require.NotEmpty(t, pub.SystemPayloads)
	var parsed status.StatusJSON
	require.NoError(t, json.Unmarshal(pub.SystemPayloads[len(pub.SystemPayloads)-1], &parsed))
	return parsed.Status
}

func TestRunLoopShutdownOnSignal(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(signalName(sig), func(t *testing.T) {
			f := newLoopFixture(t)
			tick := make(chan time.Time)
			sigCh := make(chan os.Signal, 1)

			done := make(chan error, 1)
			go func() { done <- runLoop(f.loop, f.pub, f.tracker, tick, sigCh) }()

			tick <- time.Now()
			sigCh <- sig

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("runLoop did not stop on signal")
			}

			assert.Equal(t, []string{"SHUTDOWN"}, f.pub.SystemEventNames())
			assert.True(t, f.pub.SystemEvents[0].Retained)
			inner := lastSystemStatus(t, f.pub)
			assert.Equal(t, "SHUTDOWN", inner.Event)
			assert.Equal(t, signalName(sig), inner.Reason)
			assert.True(t, inner.MQTT.Connected)
			assert.Len(t, f.pub.StateEvents, 1, "first tick published the initial state")
		})
	}
}

func TestRunLoopRestartRequest(t *testing.T) {
	f := newLoopFixture(t)
	f.light.SetResetHook(f.loop.RequestRestart)
	f.light.OnLongPress()

	tick := make(chan time.Time, 1)
	tick <- time.Now()
	err := runLoop(f.loop, f.pub, f.tracker, tick, make(chan os.Signal))

	assert.ErrorIs(t, err, control.ErrRestartRequested)
	assert.Equal(t, "RESTART", lastSystemStatus(t, f.pub).Reason)
}

func TestPublishSystemWithoutBroker(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	assert.NotPanics(t, func() { publishSystem(nil, tracker, "STARTUP", "") })
}

func TestPublishSystemUpdateNotRetained(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	pub := mqtt.NewFakePublisher()

	publishSystem(pub, tracker, "UPDATE", "START")
	publishSystem(pub, tracker, "STARTUP", "")

	require.Len(t, pub.SystemEvents, 2)
	assert.False(t, pub.SystemEvents[0].Retained)
	assert.True(t, pub.SystemEvents[1].Retained)
}

func TestPublishSystemErrorIsNotFatal(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	assert.NotPanics(t, func() { publishSystem(pub, tracker, "HEARTBEAT", "") })
	assert.Empty(t, pub.SystemEvents)
}

func TestOpenStoreBackends(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.StorageConfig{
				Backend: backend,
				Path:    filepath.Join(t.TempDir(), "nested", "settings"),
				Size:    settings.DefaultImageSize,
			}
			store, closeStore, err := openStore(cfg)
			require.NoError(t, err)

			want := logic.Settings{DeviceName: "Desk", TargetBrightness: 55, Mode: logic.ModeTimerOff}
			require.NoError(t, store.Save(want))
			closeStore()

			store, closeStore, err = openStore(cfg)
			require.NoError(t, err)
			defer closeStore()
			got, ok := store.Load()
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestWriteState(t *testing.T) {
	store := settings.NewStore(settings.NewFakeImage(settings.DefaultImageSize))
	hw := &hardware{
		button: gpio.NewFakeInput(gpio.Low),
		sensor: gpio.NewFakeADC(512),
	}

	var buf bytes.Buffer
	require.NoError(t, writeState(&buf, hw, store))
	assert.Equal(t, "Button: PRESSED (LOW)\nLight level: 50.0% (raw 512)\nSettings: none stored\n", buf.String())

	require.NoError(t, store.Save(logic.DefaultSettings()))
	hw.button = gpio.NewFakeInput(gpio.High)
	hw.sensor = nil
	buf.Reset()
	require.NoError(t, writeState(&buf, hw, store))
	assert.Equal(t, "Button: RELEASED (HIGH)\nLight level: no sensor\nSettings: name=\"RoomProjectAreaLights\" target=80% mode=OFF\n", buf.String())
}

func TestWriteStateButtonError(t *testing.T) {
	store := settings.NewStore(settings.NewFakeImage(settings.DefaultImageSize))
	in := gpio.NewFakeInput()
	in.ReadError = errors.New("line busy")

	err := writeState(&bytes.Buffer{}, &hardware{button: in}, store)
	assert.ErrorContains(t, err, "read button")
}
