// Package ota models the firmware-update channel as a small set of named
// lifecycle events. The control loop polls the channel once per tick.
package ota

import "fmt"

// Kind is an update lifecycle event.
type Kind uint8

const (
	KindStart Kind = iota + 1
	KindProgress
	KindEnd
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "START"
	case KindProgress:
		return "PROGRESS"
	case KindEnd:
		return "END"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Target is what an update rewrites.
type Target string

const (
	TargetFirmware   Target = "firmware"
	TargetFilesystem Target = "filesystem"
)

// Event is one lifecycle notification.
type Event struct {
	Kind   Kind
	Target Target
	Done   int64 // bytes written so far (Progress, End)
	Total  int64
	Err    error // set for KindError
}

// Percent returns progress as 0..100, or 0 when the total is unknown.
func (e Event) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	return int(e.Done * 100 / e.Total)
}

// Channel delivers update events without blocking.
type Channel interface {
	// Handle returns the events that arrived since the last call.
	Handle() []Event
	Close() error
}
