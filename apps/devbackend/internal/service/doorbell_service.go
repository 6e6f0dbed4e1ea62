package service

import (
	"strings"
	"sync"
)

// DoorbellService ring code 到被叫成员的映射
type DoorbellService struct {
	mu    sync.RWMutex
	bells map[string][]string
}

func NewDoorbellService(bells map[string][]string) *DoorbellService {
	s := &DoorbellService{bells: make(map[string][]string, len(bells))}
	for code, members := range bells {
		s.bells[normalizeCode(code)] = append([]string(nil), members...)
	}
	return s
}

// Members 返回门铃成员，ring code 不区分大小写
func (s *DoorbellService) Members(code string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.bells[normalizeCode(code)]
	if !ok {
		return nil, ErrDoorbellNotFound
	}
	return append([]string{}, members...), nil
}

// Put 新增或替换门铃
func (s *DoorbellService) Put(code string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bells[normalizeCode(code)] = append([]string(nil), members...)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
