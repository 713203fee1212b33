// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logic"
)

// Config is the daemon configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Hardware HardwareConfig `yaml:"hardware"`
	Loop     LoopConfig     `yaml:"loop"`
	Storage  StorageConfig  `yaml:"storage"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Update   UpdateConfig   `yaml:"update"`
	Modes    ModesConfig    `yaml:"modes"`
	Log      LogConfig      `yaml:"log"`
}

// DeviceConfig names the device. The name only seeds a fresh settings
// record; a stored name wins.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// HardwareConfig maps the light onto GPIO, PWM and ADC resources.
type HardwareConfig struct {
	Chip         string   `yaml:"chip"`          // gpio character device, e.g. gpiochip0
	ButtonPin    int      `yaml:"button_pin"`    // BCM offset, pulled up, pressed = low
	IndicatorPin int      `yaml:"indicator_pin"` // -1 disables
	PWMChip      string   `yaml:"pwm_chip"`      // sysfs pwmchip directory
	PWMChannels  []int    `yaml:"pwm_channels"`
	PWMPeriod    Duration `yaml:"pwm_period"`
	DutyMax      uint32   `yaml:"duty_max"`
	ActiveLow    bool     `yaml:"active_low"`
	ADCPath      string   `yaml:"adc_path"` // IIO in_voltageN_raw file, empty disables
	ADCBits      int      `yaml:"adc_bits"`
}

// LoopConfig controls the tick cadence.
type LoopConfig struct {
	Tick      Duration `yaml:"tick"`
	Heartbeat Duration `yaml:"heartbeat"` // 0 disables
}

// StorageConfig selects the settings persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
	Size    int    `yaml:"size"` // image size in bytes
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	OutboxSize  int    `yaml:"outbox_size"`
}

// HTTPConfig contains the control surface listen address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// UpdateConfig controls the update drop directory. Empty dir disables it.
type UpdateConfig struct {
	Dir            string `yaml:"dir"`
	FirmwarePath   string `yaml:"firmware_path"`
	FilesystemPath string `yaml:"filesystem_path"`
}

// ModesConfig holds thresholds for the automatic modes.
type ModesConfig struct {
	DarkBelow   float64  `yaml:"dark_below"`
	BrightAbove float64  `yaml:"bright_above"`
	TimerOff    Duration `yaml:"timer_off"`
	// EraseOnReset wipes stored settings on a long press before restarting.
	EraseOnReset bool `yaml:"erase_on_reset"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	Colors     bool   `yaml:"colors"`
	File       string `yaml:"file"` // rotated with lumberjack when set
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Millis returns the duration in whole milliseconds, saturating at the
// uint32 range used by the loop clock.
func (d Duration) Millis() uint32 {
	ms := time.Duration(d).Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(ms)
}

// Default returns the configuration used when no file is given. Parse
// decodes over it, so any key the file sets wins, zero values included.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{Name: logic.DefaultSettings().DeviceName},
		Hardware: HardwareConfig{
			Chip:         "gpiochip0",
			ButtonPin:    gpio.DefaultPinButton,
			IndicatorPin: gpio.DefaultPinIndicator,
			PWMChip:      "/sys/class/pwm/pwmchip0",
			PWMChannels:  []int{0},
			PWMPeriod:    Duration(time.Millisecond),
			DutyMax:      gpio.MaxRaw,
			ADCBits:      10,
		},
		Loop: LoopConfig{Tick: Duration(10 * time.Millisecond)},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "/var/lib/light-controller/settings.img",
			Size:    512,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "home/lights",
			ClientID:    "light-controller",
			OutboxSize:  64,
		},
		Modes: ModesConfig{
			DarkBelow:   20,
			BrightAbove: 20 + defaultBand,
			TimerOff:    Duration(30 * time.Minute),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads and parses the configuration file, then fills defaults and
// validates. ${VAR} and ${VAR:default} are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyUpdateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyUpdateDefaults fills the install paths once a drop dir is set.
func (c *Config) applyUpdateDefaults() {
	if c.Update.Dir == "" {
		return
	}
	if c.Update.FirmwarePath == "" {
		c.Update.FirmwarePath = "/usr/local/bin/light-controller"
	}
	if c.Update.FilesystemPath == "" {
		c.Update.FilesystemPath = "/var/lib/light-controller/www.img"
	}
}

// defaultBand is the hysteresis width used when only dark_below is set.
const defaultBand = 15

// UnmarshalYAML decodes the mode thresholds. When bright_above is left out
// and the default would sit below dark_below, it follows dark_below up.
func (m *ModesConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ModesConfig
	p := plain(*m)
	if err := value.Decode(&p); err != nil {
		return err
	}
	var set struct {
		BrightAbove *float64 `yaml:"bright_above"`
	}
	if err := value.Decode(&set); err != nil {
		return err
	}
	if set.BrightAbove == nil && p.BrightAbove < p.DarkBelow {
		p.BrightAbove = math.Min(p.DarkBelow+defaultBand, 100)
	}
	*m = ModesConfig(p)
	return nil
}

// Validate reports every configuration error found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.Tick.Duration() < time.Millisecond {
		errs = append(errs, fmt.Errorf("loop.tick %v is below 1ms", c.Loop.Tick.Duration()))
	}
	if c.Loop.Heartbeat < 0 {
		errs = append(errs, errors.New("loop.heartbeat must not be negative"))
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want file or sqlite", c.Storage.Backend))
	}
	if c.Storage.Size < 64 {
		errs = append(errs, fmt.Errorf("storage.size %d is too small for a settings record", c.Storage.Size))
	}
	if c.Hardware.ButtonPin < 0 {
		errs = append(errs, fmt.Errorf("hardware.button_pin %d is negative", c.Hardware.ButtonPin))
	}
	for _, ch := range c.Hardware.PWMChannels {
		if ch < 0 {
			errs = append(errs, fmt.Errorf("hardware.pwm_channels: negative channel %d", ch))
		}
	}
	if c.Hardware.PWMPeriod <= 0 {
		errs = append(errs, errors.New("hardware.pwm_period must be positive"))
	}
	if c.Hardware.DutyMax == 0 {
		errs = append(errs, errors.New("hardware.duty_max must be positive"))
	}
	if c.Hardware.ADCBits < 1 || c.Hardware.ADCBits > 24 {
		errs = append(errs, fmt.Errorf("hardware.adc_bits %d out of range", c.Hardware.ADCBits))
	}
	if c.Modes.DarkBelow < 0 || c.Modes.DarkBelow > 100 {
		errs = append(errs, fmt.Errorf("modes.dark_below %v out of range", c.Modes.DarkBelow))
	}
	if c.Modes.BrightAbove < c.Modes.DarkBelow || c.Modes.BrightAbove > 100 {
		errs = append(errs, fmt.Errorf("modes.bright_above %v must be in [dark_below, 100]", c.Modes.BrightAbove))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	return errors.Join(errs...)
}

var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands ${VAR} or ${VAR:default}.
func expandEnvVars(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(match string) string {
		parts := envRef.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
}
