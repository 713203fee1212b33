package mqtt

import "github.com/rs/zerolog/log"

// pending is a serialized message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while offline.
// When full, the oldest message is overwritten. Retained messages for a
// topic replace any earlier retained message for the same topic, since the
// broker would only keep the last one anyway.
// Not safe for concurrent use; the caller synchronizes.
type outbox struct {
	slots   []pending
	head    int // next write position
	count   int
	dropped int // messages lost since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]pending, capacity)}
}

func (o *outbox) push(msg pending) {
	if msg.retained && o.replaceRetained(msg) {
		return
	}
	capacity := len(o.slots)
	if o.count == capacity {
		if o.dropped == 0 {
			log.Warn().Int("capacity", capacity).Msg("mqtt: outbox full, dropping oldest")
		}
		o.dropped++
		o.slots[o.head] = msg
		o.head = (o.head + 1) % capacity
		return
	}
	o.slots[o.head] = msg
	o.head = (o.head + 1) % capacity
	o.count++
}

func (o *outbox) replaceRetained(msg pending) bool {
	capacity := len(o.slots)
	start := (o.head - o.count + capacity) % capacity
	for i := 0; i < o.count; i++ {
		idx := (start + i) % capacity
		if o.slots[idx].retained && o.slots[idx].topic == msg.topic {
			o.slots[idx] = msg
			return true
		}
	}
	return false
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []pending {
	if o.count == 0 {
		return nil
	}
	capacity := len(o.slots)
	out := make([]pending, o.count)
	start := (o.head - o.count + capacity) % capacity
	for i := range out {
		out[i] = o.slots[(start+i)%capacity]
	}
	if o.dropped > 0 {
		log.Warn().Int("dropped", o.dropped).Msg("mqtt: outbox overflowed while offline")
	}
	o.count = 0
	o.head = 0
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
