package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MaxAge is how long a saved session is trusted before a fresh login is
// required.
const MaxAge = 24 * time.Hour

var (
	ErrNotFound = errors.New("session file not found")
	ErrCorrupt  = errors.New("session file is corrupt")
)

// State is the persisted authenticated browser state: the serialized
// Playwright storage state (cookies + origins) plus the save timestamp.
type State struct {
	SavedAt time.Time       `json:"saved_at"`
	Storage json.RawMessage `json:"storage_state"`
}

// Store persists authenticated browser state to a single JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a session file is present on disk. It says nothing
// about validity or age.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and validates the session file. A missing file yields
// ErrNotFound; an unreadable or malformed file yields ErrCorrupt.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if state.SavedAt.IsZero() || len(state.Storage) == 0 {
		return nil, fmt.Errorf("%w: missing fields", ErrCorrupt)
	}

	return &state, nil
}

// Age returns the duration since the session was last saved.
func (s *Store) Age() (time.Duration, error) {
	state, err := s.Load()
	if err != nil {
		return 0, err
	}
	return time.Since(state.SavedAt), nil
}

// Expired reports whether the saved session is older than MaxAge. A missing
// or corrupt file is surfaced as an error, not as expired.
func (s *Store) Expired() (bool, error) {
	age, err := s.Age()
	if err != nil {
		return false, err
	}
	return age > MaxAge, nil
}

// Save writes the storage-state snapshot with the current timestamp. The
// file is synced and closed on every exit path.
func (s *Store) Save(storage json.RawMessage) (err error) {
	if len(storage) == 0 {
		return fmt.Errorf("empty storage state")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(&State{
		SavedAt: time.Now(),
		Storage: storage,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close session file: %w", cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	return nil
}

// Clear removes the session file. Removing an absent file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
