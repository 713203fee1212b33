// Package status provides a thread-safe status tracker for the light controller.
// The control loop writes it every tick; HTTP and MQTT handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/ota"
)

// NetworkInfo contains network state reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Storage     string
}

// UpdateInfo describes a firmware update in progress.
type UpdateInfo struct {
	Active  bool
	Target  ota.Target
	Percent int
	LastErr string
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Light         logic.LightState
	LightLevel    float64
	LevelValid    bool
	Update        UpdateInfo
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the light state and smoothed light level.
// Called from the control loop on every tick.
func (t *Tracker) Update(light logic.LightState, level float64, levelValid bool) {
	t.mu.Lock()
	t.snap.Light = light
	t.snap.LightLevel = level
	t.snap.LevelValid = levelValid
	t.mu.Unlock()
}

// SetUpdate records firmware update progress.
func (t *Tracker) SetUpdate(info UpdateInfo) {
	t.mu.Lock()
	t.snap.Update = info
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
