package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "RoomProjectAreaLights", cfg.Device.Name)
	assert.Equal(t, "gpiochip0", cfg.Hardware.Chip)
	assert.Equal(t, 17, cfg.Hardware.ButtonPin)
	assert.Equal(t, 27, cfg.Hardware.IndicatorPin)
	assert.Equal(t, []int{0}, cfg.Hardware.PWMChannels)
	assert.Equal(t, uint32(1023), cfg.Hardware.DutyMax)
	assert.Equal(t, 10*time.Millisecond, cfg.Loop.Tick.Duration())
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 20.0, cfg.Modes.DarkBelow)
	assert.Equal(t, 35.0, cfg.Modes.BrightAbove)
	assert.Equal(t, uint32(30*60*1000), cfg.Modes.TimerOff.Millis())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.MQTT.Broker, "mqtt is off unless configured")
	assert.Empty(t, cfg.Update.FirmwarePath, "update paths only default when a drop dir is set")
}

func TestParseFullFile(t *testing.T) {
	data := []byte(`
device:
  name: Desk Lamp
hardware:
  button_pin: 5
  indicator_pin: -1
  pwm_channels: [0, 1]
  pwm_period: 500us
  duty_max: 255
  active_low: true
  adc_path: /sys/bus/iio/devices/iio:device0/in_voltage0_raw
  adc_bits: 12
loop:
  tick: 20ms
  heartbeat: 15m
storage:
  backend: sqlite
  path: /tmp/settings.db
mqtt:
  broker: tcp://192.168.1.200:1883
  topic_prefix: house/lights
update:
  dir: /var/lib/light-controller/incoming
modes:
  dark_below: 10
  bright_above: 40
  timer_off: 1h
log:
  level: debug
  json: true
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "Desk Lamp", cfg.Device.Name)
	assert.Equal(t, 5, cfg.Hardware.ButtonPin)
	assert.Equal(t, -1, cfg.Hardware.IndicatorPin)
	assert.Equal(t, []int{0, 1}, cfg.Hardware.PWMChannels)
	assert.Equal(t, 500*time.Microsecond, cfg.Hardware.PWMPeriod.Duration())
	assert.Equal(t, uint32(255), cfg.Hardware.DutyMax)
	assert.True(t, cfg.Hardware.ActiveLow)
	assert.Equal(t, 12, cfg.Hardware.ADCBits)
	assert.Equal(t, uint32(20), cfg.Loop.Tick.Millis())
	assert.Equal(t, 15*time.Minute, cfg.Loop.Heartbeat.Duration())
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "house/lights", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "light-controller", cfg.MQTT.ClientID)
	assert.Equal(t, "/usr/local/bin/light-controller", cfg.Update.FirmwarePath)
	assert.Equal(t, time.Hour, cfg.Modes.TimerOff.Duration())
	assert.True(t, cfg.Log.JSON)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("LIGHT_BROKER", "tcp://broker.lan:1883")

	cfg, err := Parse([]byte("mqtt:\n  broker: ${LIGHT_BROKER}\nhttp:\n  addr: \"${LIGHT_HTTP_UNSET::8080}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker.lan:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad duration", "loop:\n  tick: soon\n", "parse config"},
		{"tick too short", "loop:\n  tick: 100us\n", "loop.tick"},
		{"bad backend", "storage:\n  backend: eeprom\n", "storage.backend"},
		{"tiny image", "storage:\n  size: 8\n", "storage.size"},
		{"inverted band", "modes:\n  dark_below: 50\n  bright_above: 40\n", "modes.bright_above"},
		{"bad level", "log:\n  level: trace\n", "log.level"},
		{"zero duty", "hardware:\n  duty_max: 0\n", "duty_max"},
		{"negative channel", "hardware:\n  pwm_channels: [-1]\n", "pwm_channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseKeepsExplicitZeros(t *testing.T) {
	cfg, err := Parse([]byte(`
hardware:
  button_pin: 0
  indicator_pin: 0
modes:
  dark_below: 0
  timer_off: 0s
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Hardware.ButtonPin)
	assert.Equal(t, 0, cfg.Hardware.IndicatorPin)
	assert.Equal(t, 0.0, cfg.Modes.DarkBelow)
	assert.Equal(t, 35.0, cfg.Modes.BrightAbove)
	assert.Equal(t, uint32(0), cfg.Modes.TimerOff.Millis(), "zero disables the timer")
	assert.Equal(t, "gpiochip0", cfg.Hardware.Chip, "unset keys keep defaults")
}

func TestParseBrightAboveFollowsDarkBelow(t *testing.T) {
	cfg, err := Parse([]byte("modes:\n  dark_below: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, 50.0, cfg.Modes.DarkBelow)
	assert.Equal(t, 65.0, cfg.Modes.BrightAbove)

	cfg, err = Parse([]byte("modes:\n  dark_below: 95\n"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.Modes.BrightAbove)

	cfg, err = Parse([]byte("modes:\n  dark_below: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 35.0, cfg.Modes.BrightAbove, "default kept when the band is still valid")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":80\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":80", cfg.HTTP.Addr)
}

func TestDurationMillisSaturates(t *testing.T) {
	assert.Equal(t, uint32(0), Duration(-time.Second).Millis())
	assert.Equal(t, uint32(1500), Duration(1500*time.Millisecond).Millis())
	assert.Equal(t, ^uint32(0), Duration(100*24*time.Hour).Millis())
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))
}
