package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SysfsPWM drives PWM channels through /sys/class/pwm.
// Duty values are scaled from 0..maxDuty onto the configured period.
type SysfsPWM struct {
	chipDir   string
	channels  []int
	period    time.Duration
	maxDuty   uint32
	activeLow bool
}

// PWMConfig describes a sysfs PWM chip and the channels to drive.
type PWMConfig struct {
	ChipDir   string // e.g. /sys/class/pwm/pwmchip0
	Channels  []int
	Period    time.Duration
	MaxDuty   uint32
	ActiveLow bool
}

// NewSysfsPWM exports, configures and enables every channel with a zero duty.
func NewSysfsPWM(cfg PWMConfig) (*SysfsPWM, error) {
	if len(cfg.Channels) == 0 {
		return nil, errors.New("pwm: no channels configured")
	}
	if cfg.MaxDuty == 0 {
		return nil, errors.New("pwm: max duty must be positive")
	}
	p := &SysfsPWM{
		chipDir:   cfg.ChipDir,
		channels:  cfg.Channels,
		period:    cfg.Period,
		maxDuty:   cfg.MaxDuty,
		activeLow: cfg.ActiveLow,
	}
	for i, ch := range cfg.Channels {
		if err := p.export(ch); err != nil {
			return nil, err
		}
		if err := p.writeAttr(ch, "period", strconv.FormatInt(cfg.Period.Nanoseconds(), 10)); err != nil {
			return nil, err
		}
		if err := p.WriteDuty(i, 0); err != nil {
			return nil, err
		}
		if err := p.writeAttr(ch, "enable", "1"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *SysfsPWM) channelDir(ch int) string {
	return filepath.Join(p.chipDir, "pwm"+strconv.Itoa(ch))
}

func (p *SysfsPWM) export(ch int) error {
	if _, err := os.Stat(p.channelDir(ch)); err == nil {
		return nil
	}
	if err := os.WriteFile(filepath.Join(p.chipDir, "export"), []byte(strconv.Itoa(ch)), 0o200); err != nil {
		return fmt.Errorf("pwm export channel %d: %w", ch, err)
	}
	return nil
}

func (p *SysfsPWM) writeAttr(ch int, name, value string) error {
	path := filepath.Join(p.channelDir(ch), name)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("pwm write %s: %w", path, err)
	}
	return nil
}

// WriteDuty sets the duty cycle of the channel at index (not sysfs number).
func (p *SysfsPWM) WriteDuty(index int, value uint32) error {
	if index < 0 || index >= len(p.channels) {
		return fmt.Errorf("pwm: channel index %d out of range", index)
	}
	if value > p.maxDuty {
		value = p.maxDuty
	}
	if p.activeLow {
		value = p.maxDuty - value
	}
	ns := p.period.Nanoseconds() * int64(value) / int64(p.maxDuty)
	return p.writeAttr(p.channels[index], "duty_cycle", strconv.FormatInt(ns, 10))
}

// Channels returns the number of configured channels.
func (p *SysfsPWM) Channels() int {
	return len(p.channels)
}

// MaxDuty returns the top of the duty range.
func (p *SysfsPWM) MaxDuty() uint32 {
	return p.maxDuty
}

// Close disables and unexports every channel.
func (p *SysfsPWM) Close() error {
	var errs []error
	for _, ch := range p.channels {
		if err := p.writeAttr(ch, "enable", "0"); err != nil {
			errs = append(errs, err)
		}
		if err := os.WriteFile(filepath.Join(p.chipDir, "unexport"), []byte(strconv.Itoa(ch)), 0o200); err != nil {
			errs = append(errs, fmt.Errorf("pwm unexport channel %d: %w", ch, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// IIOADC reads a raw voltage channel from /sys/bus/iio.
type IIOADC struct {
	path string
	bits int
}

// NewIIOADC reads from path (e.g. .../iio:device0/in_voltage0_raw). bits is
// the native resolution of the converter; samples are rescaled to 10 bits.
func NewIIOADC(path string, bits int) (*IIOADC, error) {
	if bits <= 0 || bits > 24 {
		return nil, fmt.Errorf("adc: unsupported resolution %d bits", bits)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("adc: %w", err)
	}
	return &IIOADC{path: path, bits: bits}, nil
}

// ReadRaw returns the current sample in 0..MaxRaw.
func (a *IIOADC) ReadRaw() (int, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("adc read: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("adc parse %q: %w", strings.TrimSpace(string(data)), err)
	}
	return scaleRaw(v, a.bits), nil
}

// Close is a no-op; the sysfs file is opened per read.
func (a *IIOADC) Close() error {
	return nil
}

func scaleRaw(v, bits int) int {
	switch {
	case bits > 10:
		v >>= bits - 10
	case bits < 10:
		v <<= 10 - bits
	}
	if v < 0 {
		return 0
	}
	if v > MaxRaw {
		return MaxRaw
	}
	return v
}
