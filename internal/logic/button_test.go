package logic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/light-controller/internal/clock"
)

// press drives b with a press held from start until start+held inclusive,
// sampling every step ms, then one released sample. It returns every
// gesture emitted along the way.
func press(b *Button, start clock.Millis, held, step uint32) []Gesture {
	var out []Gesture
	collect := func(g Gesture) {
		if g != GestureNone {
			out = append(out, g)
		}
	}
	for t := uint32(0); t <= held; t += step {
		collect(b.Sample(true, start+clock.Millis(t)))
	}
	collect(b.Sample(true, start+clock.Millis(held)))
	collect(b.Sample(false, start+clock.Millis(held+step)))
	return out
}

func TestButtonClassification(t *testing.T) {
	tests := []struct {
		name string
		held uint32
		want []Gesture
	}{
		{"bounce", 10, nil},
		{"just under short", 49, nil},
		{"short threshold", 50, []Gesture{GestureShortPress}},
		{"mid short", 250, []Gesture{GestureShortPress}},
		{"just under long", 499, []Gesture{GestureShortPress}},
		{"long threshold", 500, []Gesture{GestureLongPress}},
		{"very long", 10000, []Gesture{GestureLongPress}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewButton()
			got := press(b, 1000, tt.held, 1)
			assert.Equal(t, tt.want, got)
			assert.False(t, b.Pressed(), "button should be idle after release")
		})
	}
}

func TestButtonCoarseTicks(t *testing.T) {
	b := NewButton()
	got := press(b, 0, 600, 20)
	assert.Equal(t, []Gesture{GestureLongPress}, got)
}

func TestButtonAcrossClockWrap(t *testing.T) {
	b := NewButton()
	start := clock.Millis(math.MaxUint32 - 20)
	got := press(b, start, 100, 5)
	assert.Equal(t, []Gesture{GestureShortPress}, got)
}

func TestButtonGestureEmittedOnce(t *testing.T) {
	b := NewButton()
	assert.Equal(t, GestureNone, b.Sample(true, 0))
	assert.Equal(t, GestureNone, b.Sample(true, 100))
	assert.Equal(t, GestureShortPress, b.Sample(false, 110))

	for i := clock.Millis(0); i < 10; i++ {
		assert.Equal(t, GestureNone, b.Sample(false, 120+i))
	}
}

func TestButtonStuckNeverRepeats(t *testing.T) {
	b := NewButton()
	for t0 := clock.Millis(0); t0 < 60000; t0 += 10 {
		assert.Equal(t, GestureNone, b.Sample(true, t0))
	}
	assert.True(t, b.Pressed())
	assert.Equal(t, GestureLongPress, b.Sample(false, 60000))
}

func TestButtonConsecutivePresses(t *testing.T) {
	b := NewButton()
	assert.Equal(t, []Gesture{GestureLongPress}, press(b, 0, 700, 10))
	assert.Equal(t, []Gesture{GestureShortPress}, press(b, 2000, 80, 10), "latches must clear between presses")
	assert.Nil(t, press(b, 4000, 20, 10))
}

func TestButtonCustomThresholds(t *testing.T) {
	b := NewButtonWithThresholds(10, 100)
	assert.Equal(t, []Gesture{GestureShortPress}, press(b, 0, 20, 1))
	assert.Equal(t, []Gesture{GestureLongPress}, press(b, 500, 100, 1))
}

func TestGestureString(t *testing.T) {
	assert.Equal(t, "NONE", GestureNone.String())
	assert.Equal(t, "SHORT_PRESS", GestureShortPress.String())
	assert.Equal(t, "LONG_PRESS", GestureLongPress.String())
}
