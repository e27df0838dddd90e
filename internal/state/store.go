package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/intexuraos/orchestrator/internal/errors"
	"github.com/intexuraos/orchestrator/internal/logging"
)

// Store is the durable, crash-safe store for orchestrator state. All writes
// go through atomic replace (write-to-temp-then-rename) so the persisted
// document is never observable in a partially-written form, even to
// concurrent external readers.
type Store struct {
	path string
	mu   sync.Mutex
	log  *logging.Logger
}

// NewStore creates a Store persisting to the given file path. The parent
// directory is created on first save. A nil logger falls back to a no-op.
func NewStore(path string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{path: path, log: log.WithComponent("state")}
}

// Path returns the state file path.
func (st *Store) Path() string {
	return st.path
}

// Load returns the full state, or the canonical empty state if no state file
// exists yet. The returned state is a fresh, independently-mutable copy.
func (st *Store) Load() (*State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loadLocked()
}

func (st *Store) loadLocked() (*State, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, errors.NewStateIOError("load", st.path, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.NewStateIOError("load", st.path,
			fmt.Errorf("%w: %v", errors.ErrStateCorrupted, err))
	}
	// Normalize nil containers from hand-edited or legacy files.
	if s.Tasks == nil {
		s.Tasks = make(map[string]*Task)
	}
	if s.PendingWebhooks == nil {
		s.PendingWebhooks = make([]PendingWebhook, 0)
	}
	return s.Clone(), nil
}

// Save persists the state. It delegates to SaveAtomic; there is no
// non-atomic write path.
func (st *Store) Save(s *State) error {
	return st.SaveAtomic(s)
}

// SaveAtomic persists the state atomically: the document is written to a
// temp file in the same directory, synced, then renamed over the target.
func (st *Store) SaveAtomic(s *State) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saveLocked(s)
}

func (st *Store) saveLocked(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.NewStateIOError("save", st.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0755); err != nil {
		return errors.NewStateIOError("save", st.path, err)
	}
	if err := atomicWriteFile(st.path, data, 0600); err != nil {
		return errors.NewStateIOError("save", st.path, err)
	}
	return nil
}

// Update runs a serialized load-mutate-save cycle: the current state is
// loaded, fn mutates it, and the result is saved atomically, all under the
// store lock. This is the only safe way for concurrent task operations to
// mutate shared state.
func (st *Store) Update(fn func(*State) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, err := st.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return st.saveLocked(s)
}

// Reset replaces the persisted state with the canonical empty state.
func (st *Store) Reset() error {
	return st.SaveAtomic(Empty())
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. The target file is never observable in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
