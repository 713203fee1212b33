package logic

import "github.com/sweeney/light-controller/internal/clock"

// Press duration thresholds in milliseconds.
const (
	ShortPressThreshold uint32 = 50
	LongPressThreshold  uint32 = 500
)

type buttonState uint8

const (
	buttonIdle buttonState = iota
	buttonPressedTiming
)

// Button classifies a polled push-button into gestures.
// Sample must be called once per tick. Contact bounce shorter than the
// short-press threshold never latches anything, so no extra filter is needed.
type Button struct {
	shortThreshold uint32
	longThreshold  uint32

	state      buttonState
	pressStart clock.Millis
	shortPress bool
	longPress  bool
}

// NewButton creates a Button with the standard thresholds.
func NewButton() *Button {
	return NewButtonWithThresholds(ShortPressThreshold, LongPressThreshold)
}

// NewButtonWithThresholds creates a Button with custom thresholds.
func NewButtonWithThresholds(short, long uint32) *Button {
	return &Button{shortThreshold: short, longThreshold: long}
}

// Sample feeds one reading. pressed is the logical state (a Low level on a
// pulled-up pin). The latched gesture is returned once, on release.
func (b *Button) Sample(pressed bool, now clock.Millis) Gesture {
	switch b.state {
	case buttonIdle:
		if pressed {
			b.pressStart = now
			b.state = buttonPressedTiming
			b.latch(now)
		}
		return GestureNone

	case buttonPressedTiming:
		if pressed {
			b.latch(now)
			return GestureNone
		}

		g := GestureNone
		if b.longPress {
			g = GestureLongPress
		} else if b.shortPress {
			g = GestureShortPress
		}
		b.shortPress = false
		b.longPress = false
		b.state = buttonIdle
		return g
	}
	return GestureNone
}

func (b *Button) latch(now clock.Millis) {
	if clock.HasElapsed(b.pressStart, b.longThreshold, now) {
		b.longPress = true
	} else if clock.HasElapsed(b.pressStart, b.shortThreshold, now) {
		b.shortPress = true
	}
}

// Pressed reports whether a press is currently being timed.
func (b *Button) Pressed() bool {
	return b.state == buttonPressedTiming
}
