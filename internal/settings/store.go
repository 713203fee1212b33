package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/logic"
)

// Persistence is byte-addressed durable storage in the style of an EEPROM.
// Writes are staged until Commit.
type Persistence interface {
	ReadBytes(offset, length int) ([]byte, error)
	WriteBytes(offset int, data []byte) error
	Commit() error
}

// Store loads and saves the settings record at a fixed offset.
// No partial-write recovery is attempted: the version tag is the only guard.
type Store struct {
	mu     sync.Mutex
	p      Persistence
	offset int
}

// NewStore creates a Store for the record at offset 0.
func NewStore(p Persistence) *Store {
	return &Store{p: p}
}

// Load returns the stored settings, or false if the record is missing,
// unreadable, or carries a different format version.
func (s *Store) Load() (logic.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.p.ReadBytes(s.offset, RecordSize)
	if err != nil {
		log.Warn().Err(err).Msg("settings read failed, treating as absent")
		return logic.Settings{}, false
	}
	st, err := Decode(buf)
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			log.Info().Msg("settings format version mismatch")
		} else {
			log.Warn().Err(err).Msg("settings decode failed")
		}
		return logic.Settings{}, false
	}
	return st, true
}

// Save writes and commits the record.
func (s *Store) Save(st logic.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.p.WriteBytes(s.offset, Encode(st)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := s.p.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	log.Debug().
		Str("device", st.DeviceName).
		Float64("target", st.TargetBrightness).
		Stringer("mode", st.Mode).
		Msg("settings saved")
	return nil
}

// LoadOrInit loads the record, or saves and returns defaults when absent.
func (s *Store) LoadOrInit(defaults logic.Settings) (logic.Settings, error) {
	if st, ok := s.Load(); ok {
		return st, nil
	}
	log.Info().Msg("initialising settings with defaults")
	if err := s.Save(defaults); err != nil {
		return defaults, err
	}
	return defaults, nil
}

// Erase invalidates the stored record so the next boot starts from defaults.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.p.WriteBytes(s.offset, make([]byte, versionSize)); err != nil {
		return fmt.Errorf("erase settings: %w", err)
	}
	if err := s.p.Commit(); err != nil {
		return fmt.Errorf("commit erase: %w", err)
	}
	return nil
}
