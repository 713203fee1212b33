package ota

// Fake is a scripted Channel for tests.
type Fake struct {
	pending []Event
	Closed  bool
}

// Push queues events for the next Handle call.
func (f *Fake) Push(events ...Event) {
	f.pending = append(f.pending, events...)
}

// Handle returns and clears the queued events.
func (f *Fake) Handle() []Event {
	out := f.pending
	f.pending = nil
	return out
}

// Close marks the channel as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
