package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned when loading a state file written by a
// newer server.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// ServerState contains the runtime state of a devtree server.
type ServerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Aliases maps alias paths to their source, as added at runtime.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// StateStore manages persistence of server state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string

	// update serializes read-modify-write cycles such as SetAlias.
	update sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string { return s.path }

// Save writes state to disk. The file is replaced atomically.
func (s *StateStore) Save(state *ServerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*ServerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ServerState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%s: version %d: %w", s.path, state.Version, ErrUnsupportedVersion)
	}
	return state, nil
}

// SetAlias records one alias and saves the state.
func (s *StateStore) SetAlias(path, source string) error {
	s.update.Lock()
	defer s.update.Unlock()

	state, err := s.Load()
	if err != nil {
		return err
	}
	if state == nil {
		state = &ServerState{}
	}
	aliases := maps.Clone(state.Aliases)
	if aliases == nil {
		aliases = make(map[string]string)
	}
	aliases[path] = source
	state.Aliases = aliases
	return s.Save(state)
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
