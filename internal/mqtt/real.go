package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultOutboxSize bounds the number of messages held while offline.
const DefaultOutboxSize = 64

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	OutboxSize int
	// OnCommand receives raw set-topic payloads on the paho goroutine.
	OnCommand func(payload []byte)
}

// RealPublisher publishes to an actual MQTT broker. Publishing never blocks:
// while the connection is down messages are queued in an outbox and flushed
// once the client reconnects.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onCommand func([]byte)

	mu        sync.Mutex
	box       *outbox
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It returns immediately; the broker may be unreachable.
func NewRealPublisher(o Options) *RealPublisher {
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	p := &RealPublisher{
		topics:    o.Topics,
		onCommand: o.OnCommand,
		box:       newOutbox(o.OutboxSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID(o.ClientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// clientID appends a random suffix so two controllers built from the same
// config never kick each other off the broker.
func clientID(base string) string {
	if base == "" {
		base = "light-controller"
	}
	return base + "-" + uuid.NewString()[:8]
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Info().Str("topic", p.topics.Set).Msg("mqtt connected")

	if p.onCommand != nil {
		c.Subscribe(p.topics.Set, 1, func(_ paho.Client, m paho.Message) {
			p.onCommand(m.Payload())
		})
	}

	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	queued := p.box.drain()
	for _, m := range queued {
		p.publishLocked(m)
	}
	p.mu.Unlock()

	if len(queued) > 0 {
		log.Info().Int("count", len(queued)).Msg("mqtt: flushed outbox")
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		p.send(pending{topic: p.topics.System, payload: payload, qos: 1})
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Warn().Err(err).Msg("mqtt connection lost")
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

func (p *RealPublisher) send(m pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		p.box.push(m)
		return
	}
	p.publishLocked(m)
}

func (p *RealPublisher) publishLocked(m pending) {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt publish failed")
		}
	}()
}

// PublishState sends the light state, retained, at QoS 0.
func (p *RealPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	p.send(pending{topic: p.topics.State, payload: payload, retained: true})
	return nil
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	p.send(pending{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker, giving in-flight messages a second.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
