package mqtt

import (
	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/clock"
	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/status"
)

// Reporter runs once per control tick. It publishes the light state when
// it changes and a full status heartbeat on a fixed interval.
type Reporter struct {
	pub       Publisher
	conn      ConnectionStatus
	tracker   *status.Tracker
	heartbeat uint32
	refresh   func()

	started   bool
	lastBeat  clock.Millis
	published bool
	last      logic.LightState
}

// NewReporter creates a Reporter. heartbeatMs of zero disables heartbeats.
// conn may be nil.
func NewReporter(pub Publisher, conn ConnectionStatus, tracker *status.Tracker, heartbeatMs uint32) *Reporter {
	return &Reporter{
		pub:       pub,
		conn:      conn,
		tracker:   tracker,
		heartbeat: heartbeatMs,
	}
}

// OnHeartbeat registers fn to run just before each heartbeat is built.
func (r *Reporter) OnHeartbeat(fn func()) {
	r.refresh = fn
}

// Handle publishes whatever is due at now.
func (r *Reporter) Handle(now clock.Millis) {
	if r.conn != nil {
		r.tracker.SetMQTTConnected(r.conn.IsConnected())
	}
	if !r.started {
		r.started = true
		r.lastBeat = now
	}

	snap := r.tracker.Snapshot()
	if !r.published || stateChanged(r.last, snap.Light) {
		r.published = true
		r.last = snap.Light
		log.Debug().Bool("on", snap.Light.IsOn).Float64("brightness", snap.Light.CurrentBrightness).Msg("publishing state")
		if err := r.pub.PublishState(StateEvent{Timestamp: snap.Now, Light: snap.Light}); err != nil {
			log.Warn().Err(err).Msg("state publish error")
		}
	}

	if r.heartbeat == 0 || !clock.HasElapsed(r.lastBeat, r.heartbeat, now) {
		return
	}
	r.lastBeat = now
	if r.refresh != nil {
		r.refresh()
	}
	snap = r.tracker.Snapshot()
	log.Info().Dur("uptime", snap.Uptime()).Bool("on", snap.Light.IsOn).Msg("heartbeat")
	err := r.pub.PublishSystem(SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	})
	if err != nil {
		log.Warn().Err(err).Msg("heartbeat publish error")
	}
}

func stateChanged(a, b logic.LightState) bool {
	return a.IsOn != b.IsOn ||
		a.CurrentBrightness != b.CurrentBrightness ||
		a.TargetBrightness != b.TargetBrightness ||
		a.Mode != b.Mode
}

// CommandHandler returns an OnCommand callback that parses each payload
// and applies it to ctl. Bad payloads are logged and dropped.
func CommandHandler(ctl Controller) func([]byte) {
	return func(payload []byte) {
		cmd, err := ParseCommand(payload)
		if err != nil {
			log.Warn().Err(err).Bytes("payload", payload).Msg("ignoring mqtt command")
			return
		}
		if err := cmd.Apply(ctl); err != nil {
			log.Warn().Err(err).Msg("mqtt command failed")
		}
	}
}
