package logic

import (
	"errors"
	"sync"
)

// recordingOutput records every Apply call, including no-op repeats.
type recordingOutput struct {
	calls   []float64
	applied float64
	fail    bool
}

func (o *recordingOutput) Apply(pct float64) {
	o.calls = append(o.calls, pct)
	if o.fail {
		return
	}
	o.applied = pct
}

func (o *recordingOutput) Applied() float64 {
	return o.applied
}

type recordingSaver struct {
	saved []Settings
	err   error
}

func (s *recordingSaver) Save(st Settings) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, st)
	return nil
}

func (s *recordingSaver) last() Settings {
	return s.saved[len(s.saved)-1]
}

var errSaveFailed = errors.New("save failed")

// gatedSaver blocks the first Save until gate is closed.
type gatedSaver struct {
	mu      sync.Mutex
	saved   []Settings
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func newGatedSaver() *gatedSaver {
	return &gatedSaver{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedSaver) Save(st Settings) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.entered)
		<-s.gate
	}

	s.mu.Lock()
	s.saved = append(s.saved, st)
	s.mu.Unlock()
	return nil
}

func (s *gatedSaver) last() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}
