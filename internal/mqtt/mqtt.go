// Package mqtt publishes light state and lifecycle events to a broker and
// accepts remote commands on a per-device set topic.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sweeney/light-controller/internal/logic"
)

// DefaultPrefix is the topic root used when none is configured.
const DefaultPrefix = "home/lights"

// Topics holds the per-device topic names.
type Topics struct {
	State  string
	System string
	Set    string
}

// NewTopics derives the topic set for device under prefix.
// Spaces in the device name become underscores.
func NewTopics(prefix, device string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + "/" + strings.ReplaceAll(device, " ", "_")
	return Topics{
		State:  base + "/state",
		System: base + "/system",
		Set:    base + "/set",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishState sends the live light state. Retained so late
	// subscribers see the current value.
	PublishState(event StateEvent) error

	// PublishSystem sends a lifecycle event (startup, shutdown, heartbeat).
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateEvent is a change in the live light state.
type StateEvent struct {
	Timestamp time.Time
	Light     logic.LightState
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "UPDATE" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// StatePayload is the JSON document published on the state topic.
type StatePayload struct {
	Light LightPayload `json:"light"`
}

// LightPayload contains the light state details.
type LightPayload struct {
	Timestamp        string  `json:"timestamp"`
	State            string  `json:"state"`
	Brightness       float64 `json:"brightness"`
	TargetBrightness float64 `json:"target_brightness"`
	Mode             string  `json:"mode"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatStatePayload creates the JSON payload for a state event.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	return json.Marshal(StatePayload{
		Light: LightPayload{
			Timestamp:        event.Timestamp.UTC().Format(time.RFC3339),
			State:            onOff(event.Light.IsOn),
			Brightness:       round1(event.Light.CurrentBrightness),
			TargetBrightness: round1(event.Light.TargetBrightness),
			Mode:             event.Light.Mode.String(),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// Controller is the subset of the light that remote commands drive.
type Controller interface {
	TurnOn()
	TurnOff()
	Toggle()
	SetTargetBrightness(pct float64)
	SetMode(m logic.Mode) error
}

// Command is a remote request received on the set topic. Every field is
// optional; absent fields leave that part of the state alone.
type Command struct {
	State      *string  `json:"state,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Mode       *string  `json:"mode,omitempty"`
}

// ErrEmptyCommand is returned for a command that sets nothing.
var ErrEmptyCommand = errors.New("command has no fields")

// ParseCommand decodes and validates a set-topic payload. A bare "ON",
// "OFF" or "TOGGLE" string is accepted as shorthand for a state command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	raw := strings.TrimSpace(string(data))
	if raw != "" && !strings.HasPrefix(raw, "{") {
		s := strings.ToUpper(raw)
		cmd.State = &s
	} else if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}

	if cmd.State == nil && cmd.Brightness == nil && cmd.Mode == nil {
		return Command{}, ErrEmptyCommand
	}
	if cmd.State != nil {
		s := strings.ToUpper(*cmd.State)
		switch s {
		case "ON", "OFF", "TOGGLE":
			cmd.State = &s
		default:
			return Command{}, fmt.Errorf("unknown state %q", *cmd.State)
		}
	}
	if cmd.Mode != nil {
		if _, err := logic.ParseMode(*cmd.Mode); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

// Apply drives ctl. Brightness is applied before state so that
// {"state":"ON","brightness":40} lights at 40.
func (c Command) Apply(ctl Controller) error {
	if c.Mode != nil {
		m, err := logic.ParseMode(*c.Mode)
		if err != nil {
			return err
		}
		if err := ctl.SetMode(m); err != nil {
			return err
		}
	}
	if c.Brightness != nil {
		ctl.SetTargetBrightness(*c.Brightness)
	}
	if c.State != nil {
		switch *c.State {
		case "ON":
			ctl.TurnOn()
		case "OFF":
			ctl.TurnOff()
		case "TOGGLE":
			ctl.Toggle()
		}
	}
	return nil
}
