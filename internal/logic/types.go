// Package logic contains the light controller's core state machines.
// Nothing here blocks or sleeps: time is always injected as clock.Millis and
// hardware is reached only through the gpio interfaces.
package logic

import (
	"fmt"
	"strings"
)

// Gesture is a classified button press, produced at most once per release.
type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureShortPress
	GestureLongPress
)

func (g Gesture) String() string {
	switch g {
	case GestureShortPress:
		return "SHORT_PRESS"
	case GestureLongPress:
		return "LONG_PRESS"
	default:
		return "NONE"
	}
}

// Mode is the persisted operation mode.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeOn
	ModeAutoOnOff
	ModeTimerOff
)

var modeNames = [...]string{
	ModeOff:       "OFF",
	ModeOn:        "ON",
	ModeAutoOnOff: "AUTO_ON_OFF",
	ModeTimerOff:  "TIMER_OFF",
}

func (m Mode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return fmt.Sprintf("MODE(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

// ParseMode accepts the canonical names case-insensitively.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return ModeOff, fmt.Errorf("unknown mode %q", s)
}

// Brightness limits for a target. Zero is not a target: off is its own state.
const (
	MinTargetBrightness = 1.0
	MaxTargetBrightness = 100.0
)

// Settings is the persisted configuration the state machine consults.
type Settings struct {
	DeviceName       string
	TargetBrightness float64
	Mode             Mode
}

// DefaultSettings returns the first-boot configuration.
func DefaultSettings() Settings {
	return Settings{
		DeviceName:       "RoomProjectAreaLights",
		TargetBrightness: 80,
		Mode:             ModeOff,
	}
}

// SettingsSaver persists settings after a confirmed user change.
type SettingsSaver interface {
	Save(s Settings) error
}

// LightState is a point-in-time copy of the live light state.
type LightState struct {
	IsOn              bool
	CurrentBrightness float64
	TargetBrightness  float64
	Mode              Mode
	DeviceName        string
	Held              bool
}
