package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// EntityState is the last rendered state of one switch entity.
type EntityState struct {
	// UniqueID is the switch unique id.
	UniqueID string `json:"unique_id"`

	// Device is the hardware address of the owning device.
	Device string `json:"device"`

	// On is the last rendered boolean.
	On bool `json:"on"`

	// UpdatedAt is when the state was rendered.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists entity states. Implementations are safe for concurrent
// use.
type Store interface {
	// Load returns the state of id. ok is false when none was saved.
	Load(id string) (state EntityState, ok bool, err error)

	// Save stores state, replacing any previous state of the same id.
	Save(state EntityState) error

	// All returns every stored state ordered by unique id.
	All() ([]EntityState, error)

	// Prune removes the states of device whose ids are not in keep and
	// returns how many were removed.
	Prune(device string, keep []string) (int, error)

	Close() error
}

// StateFile is the on-disk format of a FileStore.
type StateFile struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Entities maps unique ids to their state.
	Entities map[string]EntityState `json:"entities,omitempty"`
}

// FileStore keeps entity states in a single JSON file. Every Save rewrites
// the file.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state *StateFile
}

// NewFileStore creates a store backed by the file at path. The file is
// read lazily; a missing file is an empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(id string) (EntityState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return EntityState{}, false, err
	}
	st, ok := s.state.Entities[id]
	return st, ok, nil
}

// Save implements Store.
func (s *FileStore) Save(state EntityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	s.state.Entities[state.UniqueID] = state
	return s.writeLocked()
}

// All implements Store.
func (s *FileStore) All() ([]EntityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]EntityState, 0, len(s.state.Entities))
	for _, st := range s.state.Entities {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out, nil
}

// Prune implements Store.
func (s *FileStore) Prune(device string, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return 0, err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	removed := 0
	for id, st := range s.state.Entities {
		if st.Device != device {
			continue
		}
		if _, ok := keepSet[id]; !ok {
			delete(s.state.Entities, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.writeLocked()
}

// Clear removes the state file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = nil
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close implements Store. The file store holds no open resources.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) loadLocked() error {
	if s.state != nil {
		return nil
	}
	state := &StateFile{}
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, state); err != nil {
			return err
		}
	}
	if state.Entities == nil {
		state.Entities = make(map[string]EntityState)
	}
	s.state = state
	return nil
}

func (s *FileStore) writeLocked() error {
	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	s.state.Version = StateVersion
	s.state.SavedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*FileStore)(nil)
