package store

import (
	"context"
	"sync"

	"DoorbellCall/model"
)

// MemoryStore 进程内存储，测试和一次性运行使用
type MemoryStore struct {
	mu    sync.Mutex
	state model.PersistedState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (model.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.state), nil
}

func (s *MemoryStore) Save(ctx context.Context, state model.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = clone(state)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Session = nil
	s.state.UserName = ""
	return nil
}

func clone(state model.PersistedState) model.PersistedState {
	out := model.PersistedState{DeviceMAC: state.DeviceMAC, UserName: state.UserName}
	if state.Session != nil {
		sess := *state.Session
		out.Session = &sess
	}
	return out
}
