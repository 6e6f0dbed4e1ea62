package coordinator

import "sync"

// ConnectionManager 在线信令连接，按通话用户 id 索引
type ConnectionManager struct {
	mu       sync.RWMutex
	byUser   map[string]*Client
	shutdown bool
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byUser: make(map[string]*Client)}
}

// Register 注册连接，返回被替换的旧连接（调用方负责关闭）。
// 关闭后注册失败，ok 为 false。
func (m *ConnectionManager) Register(client *Client) (replaced *Client, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, false
	}
	if old, exists := m.byUser[client.UserID()]; exists && old != client {
		replaced = old
	}
	m.byUser[client.UserID()] = client
	return replaced, true
}

// Unregister 只删除与入参相同的连接，避免误删替换后的新连接
func (m *ConnectionManager) Unregister(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byUser[client.UserID()]
	if !ok || current != client {
		return false
	}
	delete(m.byUser, client.UserID())
	return true
}

// SendToUser 向用户的连接投递，用户不在线或队列不可用时返回 false
func (m *ConnectionManager) SendToUser(userID string, msg []byte) bool {
	m.mu.RLock()
	client := m.byUser[userID]
	m.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.Enqueue(msg)
}

// Broadcast 向一组用户投递，跳过 except，返回成功入队数
func (m *ConnectionManager) Broadcast(userIDs []string, except string, msg []byte) int {
	sent := 0
	for _, id := range userIDs {
		if id == except {
			continue
		}
		if m.SendToUser(id, msg) {
			sent++
		}
	}
	return sent
}

func (m *ConnectionManager) Online(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byUser[userID]
	return ok
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser)
}

// Shutdown 关闭全部连接并拒绝后续注册
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	clients := make([]*Client, 0, len(m.byUser))
	for _, c := range m.byUser {
		clients = append(clients, c)
	}
	m.byUser = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
