// Package transport 通话信令客户端：通过 websocket 向协调服务发送请求，实现 call.Backend。
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"DoorbellCall/apps/caller/internal/call"
	"DoorbellCall/config"
	"DoorbellCall/model"
	"DoorbellCall/pkg/callproto"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/util"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected 尚未连接或连接失败
	ErrNotConnected = errors.New("signaling not connected")
	// ErrClosed 等待响应期间连接断开
	ErrClosed = errors.New("signaling connection closed")
)

// EventHandler 服务端推送事件回调
type EventHandler func(ctx context.Context, env *callproto.Envelope)

// Client 信令客户端，同一时间只持有一条连接
type Client struct {
	cfg     config.CallConfig
	dialer  *websocket.Dialer
	onEvent EventHandler

	mu   sync.Mutex
	conn *conn
	user model.CallUser
}

var _ call.Backend = (*Client)(nil)

// Option Client 可选项
type Option func(*Client)

// WithDialer 替换 websocket 拨号器
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithEventHandler 设置推送事件回调
func WithEventHandler(h EventHandler) Option {
	return func(c *Client) { c.onEvent = h }
}

func New(cfg config.CallConfig, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect 以 user 身份连接协调服务，已有连接时先断开
func (c *Client) Connect(ctx context.Context, user model.CallUser, token string) error {
	u, err := url.Parse(c.cfg.CoordinatorURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("api_key", c.cfg.APIKey)
	if user.Name != "" {
		q.Set("name", user.Name)
	}
	u.RawQuery = q.Encode()

	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	ws, _, err := c.dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		logger.Warn(ctx, "连接信令服务失败",
			logger.String("user_id", user.ID),
			logger.ErrorField("error", err),
		)
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	cn := newConn(ws)
	c.mu.Lock()
	old := c.conn
	c.conn = cn
	c.user = user
	c.mu.Unlock()
	if old != nil {
		old.close()
	}

	go cn.writeLoop()
	go c.readLoop(cn)

	logger.Info(ctx, "信令连接已建立", logger.String("user_id", user.ID))
	return nil
}

// Disconnect 断开当前连接，未连接时为空操作
func (c *Client) Disconnect() {
	c.mu.Lock()
	cn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if cn != nil {
		cn.close()
	}
}

// Connected 当前是否持有可用连接
func (c *Client) Connected() bool {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return false
	}
	select {
	case <-cn.done:
		return false
	default:
		return true
	}
}

// User 当前连接使用的身份
func (c *Client) User() model.CallUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) readLoop(cn *conn) {
	defer func() {
		cn.close()
		c.mu.Lock()
		if c.conn == cn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	ctx := context.Background()
	for {
		_, raw, err := cn.ws.ReadMessage()
		if err != nil {
			select {
			case <-cn.done:
			default:
				logger.Warn(ctx, "信令连接断开", logger.ErrorField("error", err))
			}
			return
		}
		env, err := callproto.Parse(raw)
		if err != nil {
			logger.Warn(ctx, "信令帧格式错误", logger.ErrorField("error", err))
			continue
		}

		switch {
		case env.Type == callproto.TypeResponse && env.ID != "":
			if !cn.deliver(env) {
				logger.Debug(ctx, "收到过期的信令响应", logger.String("id", env.ID))
			}
		case env.Type == callproto.TypeError && env.Error != nil:
			logger.Warn(ctx, "信令服务返回错误帧",
				logger.Int("code", env.Error.Code),
				logger.String("message", env.Error.Message),
			)
		case env.Type == callproto.TypeHeartbeatAck:
		default:
			if c.onEvent != nil {
				c.onEvent(ctx, env)
			}
		}
	}
}

// request 发送请求并等待同 id 的响应；out 为 nil 时忽略响应体
func (c *Client) request(ctx context.Context, method string, data, out any) error {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return ErrNotConnected
	}

	id := util.NewUUID()
	raw, err := callproto.Marshal(method, id, data)
	if err != nil {
		return err
	}
	ch := cn.await(id)
	defer cn.forget(id)
	if !cn.enqueue(raw) {
		return ErrClosed
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			return resp.Decode(out)
		}
		return nil
	case <-cn.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) GetOrCreate(ctx context.Context, ref model.CallRef, req call.CreateRequest) error {
	return c.request(ctx, callproto.MethodGetOrCreate, callproto.GetOrCreateData{
		Call:      ref,
		Members:   req.Members,
		CreatedBy: req.CreatedBy,
		Ring:      req.Ring,
		Custom:    req.Custom,
	}, nil)
}

func (c *Client) UpdateMembers(ctx context.Context, ref model.CallRef, members []model.Member) error {
	return c.request(ctx, callproto.MethodUpdateMembers, callproto.UpdateMembersData{Call: ref, Members: members}, nil)
}

func (c *Client) QueryMembers(ctx context.Context, ref model.CallRef) ([]model.MemberRecord, error) {
	var res callproto.QueryMembersResult
	if err := c.request(ctx, callproto.MethodQueryMembers, callproto.CallData{Call: ref}, &res); err != nil {
		return nil, err
	}
	return res.Members, nil
}

func (c *Client) Join(ctx context.Context, ref model.CallRef) error {
	return c.request(ctx, callproto.MethodJoin, callproto.CallData{Call: ref}, nil)
}

func (c *Client) Leave(ctx context.Context, ref model.CallRef) error {
	return c.request(ctx, callproto.MethodLeave, callproto.CallData{Call: ref}, nil)
}
