package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event             string       `json:"event,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	Device            string       `json:"device"`
	IsOn              bool         `json:"is_on"`
	CurrentBrightness float64      `json:"current_brightness"`
	TargetBrightness  float64      `json:"target_brightness"`
	LightLevelPercent *float64     `json:"light_level_percent"`
	Mode              string       `json:"mode"`
	Update            UpdateJSON   `json:"update"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	StartTime         string       `json:"start_time"`
	Timestamp         string       `json:"timestamp"`
	MQTT              MQTTStatus   `json:"mqtt"`
	Network           *NetworkJSON `json:"network,omitempty"`
	Config            ConfigJSON   `json:"config"`
}

// UpdateJSON reports firmware update progress.
type UpdateJSON struct {
	Active    bool   `json:"active"`
	Target    string `json:"target,omitempty"`
	Percent   int    `json:"percent"`
	LastError string `json:"last_error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Storage     string `json:"storage"`
}

// CurrentStatusJSON is the compact document polled by the web UI.
type CurrentStatusJSON struct {
	TurnedOn   bool    `json:"turnedOn"`
	Brightness float64 `json:"brightness"`
	LightLevel float64 `json:"lightLevel"`
}

// round1 keeps one decimal place so documents stay readable.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Device:            snap.Light.DeviceName,
		IsOn:              snap.Light.IsOn,
		CurrentBrightness: round1(snap.Light.CurrentBrightness),
		TargetBrightness:  round1(snap.Light.TargetBrightness),
		Mode:              snap.Light.Mode.String(),
		Update: UpdateJSON{
			Active:    snap.Update.Active,
			Target:    string(snap.Update.Target),
			Percent:   snap.Update.Percent,
			LastError: snap.Update.LastErr,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Storage:     snap.Config.Storage,
		},
	}
	if snap.LevelValid {
		level := round1(snap.LightLevel)
		inner.LightLevelPercent = &level
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatCurrentStatus returns the compact document for the web UI.
func FormatCurrentStatus(snap Snapshot) []byte {
	data, _ := json.Marshal(CurrentStatusJSON{
		TurnedOn:   snap.Light.IsOn,
		Brightness: round1(snap.Light.CurrentBrightness),
		LightLevel: round1(snap.LightLevel),
	})
	return data
}
