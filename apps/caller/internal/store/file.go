package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"DoorbellCall/model"
)

// FileStore 以 JSON 文件持久化，写入走临时文件 + rename
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (model.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Save(ctx context.Context, state model.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(state)
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil && !errors.Is(err, ErrCorrupted) {
		return err
	}
	state.Session = nil
	state.UserName = ""
	return s.write(state)
}

func (s *FileStore) read() (model.PersistedState, error) {
	var state model.PersistedState
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(WrapFileError(err), os.ErrNotExist) {
			return state, nil
		}
		return state, WrapFileError(err)
	}
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.PersistedState{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return state, nil
}

func (s *FileStore) write(state model.PersistedState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return WrapFileError(err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return WrapFileError(err)
	}
	return WrapFileError(os.Rename(tmp, s.path))
}
