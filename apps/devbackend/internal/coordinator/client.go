package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendQueueSize = 64
	wsWriteTimeout       = 5 * time.Second
)

// MessageHandler 上行帧回调
type MessageHandler func(raw []byte)

// Client 一条信令连接，每个通话用户最多一条
type Client struct {
	conn   *websocket.Conn
	userID string
	name   string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewClient(conn *websocket.Conn, userID, name string) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		name:   name,
		send:   make(chan []byte, defaultSendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Enqueue 投递下行帧，连接已关闭或队列已满时返回 false
func (c *Client) Enqueue(msg []byte) bool {
	if len(msg) == 0 {
		return true
	}
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Run 启动写循环并在当前 goroutine 读，读结束后关闭连接并回调 onClose
func (c *Client) Run(ctx context.Context, onMessage MessageHandler, onClose func()) {
	defer func() {
		c.Close()
		if onClose != nil {
			onClose()
		}
	}()

	go c.writeLoop(ctx)
	c.readLoop(ctx, onMessage)
}

// Close 幂等
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop(ctx context.Context, onMessage MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(raw)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		}
	}
}
