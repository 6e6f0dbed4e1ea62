package coordinator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"DoorbellCall/model"
)

var (
	ErrCallNotFound = errors.New("call not found")
	ErrNotMember    = errors.New("user is not a member of the call")
	ErrInvalidCall  = errors.New("call type and id are required")
)

type memberState struct {
	role     string
	joined   bool
	joinedAt time.Time
}

type callState struct {
	ref       model.CallRef
	createdBy string
	custom    map[string]string
	members   map[string]*memberState
	createdAt time.Time
}

// Registry 内存中的通话表，以 cid 为键
type Registry struct {
	mu             sync.RWMutex
	calls          map[string]*callState
	allowGuestJoin bool
	now            func() time.Time
}

func NewRegistry(allowGuestJoin bool) *Registry {
	return &Registry{
		calls:          make(map[string]*callState),
		allowGuestJoin: allowGuestJoin,
		now:            time.Now,
	}
}

// GetOrCreate 通话不存在时创建；已存在时不改动成员。
// created 表示本次是否新建。
func (r *Registry) GetOrCreate(ref model.CallRef, createdBy string, members []model.Member, custom map[string]string) (created bool, err error) {
	if ref.Type == "" || ref.ID == "" {
		return false, ErrInvalidCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.calls[ref.CID()]; ok {
		return false, nil
	}
	cs := &callState{
		ref:       ref,
		createdBy: createdBy,
		custom:    custom,
		members:   make(map[string]*memberState, len(members)),
		createdAt: r.now(),
	}
	for _, m := range members {
		if m.UserID == "" {
			continue
		}
		cs.members[m.UserID] = &memberState{role: m.Role}
	}
	r.calls[ref.CID()] = cs
	return true, nil
}

// UpdateMembers 新增成员或更新角色，不移除已有成员
func (r *Registry) UpdateMembers(ref model.CallRef, members []model.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.calls[ref.CID()]
	if !ok {
		return ErrCallNotFound
	}
	for _, m := range members {
		if m.UserID == "" {
			continue
		}
		if ms, ok := cs.members[m.UserID]; ok {
			if m.Role != "" {
				ms.role = m.Role
			}
			continue
		}
		cs.members[m.UserID] = &memberState{role: m.Role}
	}
	return nil
}

// Members 返回成员列表，按 user id 排序。
// 已加入的成员用嵌套的 user.id，其余用扁平的 user_id，两种格式客户端都要能解析。
func (r *Registry) Members(ref model.CallRef) ([]model.MemberRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.calls[ref.CID()]
	if !ok {
		return nil, ErrCallNotFound
	}
	ids := make([]string, 0, len(cs.members))
	for id := range cs.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]model.MemberRecord, 0, len(ids))
	for _, id := range ids {
		ms := cs.members[id]
		if ms.joined {
			records = append(records, model.MemberRecord{User: &model.MemberUser{ID: id}, Role: ms.role})
		} else {
			records = append(records, model.MemberRecord{UserID: id, Role: ms.role})
		}
	}
	return records, nil
}

// MemberIDs 返回成员 id，通话不存在时为空
func (r *Registry) MemberIDs(ref model.CallRef) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.calls[ref.CID()]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(cs.members))
	for id := range cs.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Join 标记成员已加入。非成员在允许访客时以普通成员身份加入。
func (r *Registry) Join(ref model.CallRef, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.calls[ref.CID()]
	if !ok {
		return ErrCallNotFound
	}
	ms, ok := cs.members[userID]
	if !ok {
		if !r.allowGuestJoin {
			return ErrNotMember
		}
		ms = &memberState{role: model.RoleMember}
		cs.members[userID] = ms
	}
	ms.joined = true
	ms.joinedAt = r.now()
	return nil
}

// Leave 标记成员离开；最后一个已加入的成员离开后通话结束。
// ended 表示通话是否因此被移除。
func (r *Registry) Leave(ref model.CallRef, userID string) (ended bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.calls[ref.CID()]
	if !ok {
		return false, ErrCallNotFound
	}
	ms, ok := cs.members[userID]
	if !ok {
		return false, ErrNotMember
	}
	ms.joined = false
	for _, m := range cs.members {
		if m.joined {
			return false, nil
		}
	}
	delete(r.calls, ref.CID())
	return true, nil
}

// Departure 断线时离开的通话及离开前的成员
type Departure struct {
	Call    model.CallRef
	Members []string
}

// LeaveAll 连接断开时把该用户从所有已加入的通话中移除
func (r *Registry) LeaveAll(userID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Departure
	for cid, cs := range r.calls {
		ms, ok := cs.members[userID]
		if !ok || !ms.joined {
			continue
		}
		ms.joined = false
		ids := make([]string, 0, len(cs.members))
		stillJoined := false
		for id, m := range cs.members {
			ids = append(ids, id)
			if m.joined {
				stillJoined = true
			}
		}
		sort.Strings(ids)
		out = append(out, Departure{Call: cs.ref, Members: ids})
		if !stillJoined {
			delete(r.calls, cid)
		}
	}
	return out
}

// Count 当前通话数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
