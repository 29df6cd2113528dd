package lavaflow

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/disgoorg/json"
)

// sessionStore persists node session ids across process restarts so a
// reconnecting client can resume its node sessions. One JSON file maps
// node identifier to the last session id seen in a ready frame.
type sessionStore struct {
	mu   sync.Mutex
	path string
	ids  map[string]string
}

func newSessionStore(stateDir string) (*sessionStore, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "failed to create state directory")
	}
	store := &sessionStore{
		path: filepath.Join(stateDir, "sessionIds.json"),
		ids:  map[string]string{},
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *sessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wrapError(ErrInvalidConfig, err, "failed to read session file")
	}
	if err := json.Unmarshal(data, &s.ids); err != nil {
		return wrapError(ErrInvalidConfig, err, "failed to decode session file")
	}
	return nil
}

// Get returns the stored session id for a node, or "".
func (s *sessionStore) Get(identifier string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[identifier]
}

// Set stores the session id and writes the file atomically.
func (s *sessionStore) Set(identifier string, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[identifier] = sessionID
	return s.save()
}

// Delete drops the stored session id for a node.
func (s *sessionStore) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[identifier]; !ok {
		return nil
	}
	delete(s.ids, identifier)
	return s.save()
}

func (s *sessionStore) save() error {
	data, err := json.Marshal(s.ids)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// memorySessionStore is the no-persistence variant used by the memory
// state backend. Resume across restarts is impossible there, but resume
// across in-process reconnects still works.
type memorySessionStore struct {
	mu  sync.Mutex
	ids map[string]string
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{ids: map[string]string{}}
}

func (s *memorySessionStore) Get(identifier string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[identifier]
}

func (s *memorySessionStore) Set(identifier string, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[identifier] = sessionID
	return nil
}

func (s *memorySessionStore) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, identifier)
	return nil
}

// sessionIDStore is what nodes need from session persistence.
type sessionIDStore interface {
	Get(identifier string) string
	Set(identifier string, sessionID string) error
	Delete(identifier string) error
}

var (
	_ sessionIDStore = (*sessionStore)(nil)
	_ sessionIDStore = (*memorySessionStore)(nil)
)
