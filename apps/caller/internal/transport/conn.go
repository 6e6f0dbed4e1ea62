package transport

import (
	"sync"
	"time"

	"DoorbellCall/pkg/callproto"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

// conn 单条信令连接：写队列 + 按请求 id 等待响应
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending map[string]chan *callproto.Envelope
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:      ws,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan *callproto.Envelope),
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) await(id string) chan *callproto.Envelope {
	ch := make(chan *callproto.Envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// deliver 把响应交给等待者；没有等待者（已超时）时返回 false
func (c *conn) deliver(env *callproto.Envelope) bool {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		}
	}
}
