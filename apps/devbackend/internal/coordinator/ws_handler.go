// Package coordinator 本地开发用的通话协调服务：websocket 信令 + 内存通话表。
package coordinator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"DoorbellCall/config"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/callproto"
	"DoorbellCall/pkg/calltoken"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	ErrTokenRequired = errors.New("token is required")
	ErrTokenInvalid  = errors.New("token is invalid")
	ErrAPIKey        = errors.New("api key mismatch")
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 本地调试放开来源校验
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Session 握手鉴权后的连接身份
type Session struct {
	UserID   string
	Name     string
	ClientIP string
}

// WSHandler /ws 接入与信令分发
type WSHandler struct {
	cfg      config.CallConfig
	conns    *ConnectionManager
	registry *Registry
	metrics  *Metrics
}

func NewWSHandler(cfg config.CallConfig, conns *ConnectionManager, registry *Registry, metrics *Metrics) *WSHandler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &WSHandler{cfg: cfg, conns: conns, registry: registry, metrics: metrics}
}

// Authenticate 校验 api_key 与通话凭证
func (h *WSHandler) Authenticate(token, apiKey, name, clientIP string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	if h.cfg.APIKey != "" && apiKey != h.cfg.APIKey {
		return nil, ErrAPIKey
	}
	claims, err := calltoken.Parse(token, h.cfg.APISecret)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.APIKey != "" && h.cfg.APIKey != "" && claims.APIKey != h.cfg.APIKey {
		return nil, ErrAPIKey
	}
	return &Session{UserID: claims.UserID, Name: name, ClientIP: clientIP}, nil
}

// ServeWS 处理握手
// 1. 读取 query 中的 token/api_key/name
// 2. 鉴权，失败时以 HTTP 响应返回
// 3. 升级连接并进入读写循环
func (h *WSHandler) ServeWS(c *gin.Context) {
	session, err := h.Authenticate(c.Query("token"), c.Query("api_key"), c.Query("name"), c.ClientIP())
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connCtx := context.Background()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		connCtx = ctxmeta.WithTraceID(connCtx, traceID)
	}
	connCtx = ctxmeta.WithClientIP(connCtx, session.ClientIP)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败", logger.ErrorField("error", err))
		return
	}
	h.handleConnection(connCtx, conn, session)
}

func (h *WSHandler) handleConnection(ctx context.Context, conn *websocket.Conn, session *Session) {
	client := NewClient(conn, session.UserID, session.Name)
	replaced, ok := h.conns.Register(client)
	if !ok {
		client.Close()
		return
	}
	if replaced != nil {
		replaced.Close()
	}
	h.metrics.connections.Set(float64(h.conns.Count()))

	logger.Info(ctx, "信令连接已建立",
		logger.String("user_id", session.UserID),
		logger.String("name", session.Name),
		logger.Int("online_count", h.conns.Count()),
	)

	client.Run(ctx, func(raw []byte) {
		h.handleMessage(ctx, client, raw)
	}, func() {
		// 被同一用户的新连接替换时不清理通话状态
		if h.conns.Unregister(client) {
			for _, d := range h.registry.LeaveAll(session.UserID) {
				h.broadcast(ctx, d.Members, callproto.EventMemberLeft, callproto.CallEvent{Call: d.Call, UserID: session.UserID}, session.UserID)
			}
		}
		h.metrics.connections.Set(float64(h.conns.Count()))
		h.metrics.calls.Set(float64(h.registry.Count()))
		logger.Info(ctx, "信令连接已断开",
			logger.String("user_id", session.UserID),
			logger.Int("online_count", h.conns.Count()),
		)
	})
}

// handleMessage 处理上行帧：heartbeat 直接应答，call.* 请求按 id 回复
func (h *WSHandler) handleMessage(ctx context.Context, client *Client, raw []byte) {
	env, err := callproto.Parse(raw)
	if err != nil {
		h.reply(ctx, client, mustError("", callproto.CodeInvalidFormat, "invalid frame format"))
		return
	}

	if env.Type == callproto.TypeHeartbeat {
		ack, _ := callproto.Marshal(callproto.TypeHeartbeatAck, env.ID, nil)
		h.reply(ctx, client, ack)
		return
	}

	data, err := h.dispatch(ctx, client.UserID(), env)
	if err != nil {
		code, msg := errorCode(err)
		h.metrics.requests.WithLabelValues(env.Type, "error").Inc()
		h.reply(ctx, client, mustError(env.ID, code, msg))
		return
	}
	h.metrics.requests.WithLabelValues(env.Type, "ok").Inc()
	h.metrics.calls.Set(float64(h.registry.Count()))

	frame, err := callproto.Marshal(callproto.TypeResponse, env.ID, data)
	if err != nil {
		logger.Warn(ctx, "响应帧序列化失败", logger.ErrorField("error", err))
		return
	}
	h.reply(ctx, client, frame)
}

type getOrCreateResult struct {
	Created bool `json:"created"`
}

func (h *WSHandler) dispatch(ctx context.Context, userID string, env *callproto.Envelope) (any, error) {
	switch env.Type {
	case callproto.MethodGetOrCreate:
		var req callproto.GetOrCreateData
		if err := env.Decode(&req); err != nil {
			return nil, errBadPayload
		}
		createdBy := req.CreatedBy
		if createdBy == "" {
			createdBy = userID
		}
		created, err := h.registry.GetOrCreate(req.Call, createdBy, req.Members, req.Custom)
		if err != nil {
			return nil, err
		}
		logger.Info(ctxmeta.WithCallID(ctx, req.Call.ID), "通话已就绪",
			logger.Bool("created", created),
			logger.String("created_by", createdBy),
			logger.Int("member_count", len(req.Members)),
		)
		if created && req.Ring {
			h.ring(ctx, req, createdBy)
		}
		return getOrCreateResult{Created: created}, nil

	case callproto.MethodUpdateMembers:
		var req callproto.UpdateMembersData
		if err := env.Decode(&req); err != nil {
			return nil, errBadPayload
		}
		return nil, h.registry.UpdateMembers(req.Call, req.Members)

	case callproto.MethodQueryMembers:
		var req callproto.CallData
		if err := env.Decode(&req); err != nil {
			return nil, errBadPayload
		}
		members, err := h.registry.Members(req.Call)
		if err != nil {
			return nil, err
		}
		return callproto.QueryMembersResult{Members: members}, nil

	case callproto.MethodJoin:
		var req callproto.CallData
		if err := env.Decode(&req); err != nil {
			return nil, errBadPayload
		}
		if err := h.registry.Join(req.Call, userID); err != nil {
			return nil, err
		}
		h.notify(ctx, callproto.EventMemberJoin, callproto.CallEvent{Call: req.Call, UserID: userID}, userID)
		return nil, nil

	case callproto.MethodLeave:
		var req callproto.CallData
		if err := env.Decode(&req); err != nil {
			return nil, errBadPayload
		}
		// 离开前先取成员，通话可能因此结束
		members := h.registry.MemberIDs(req.Call)
		ended, err := h.registry.Leave(req.Call, userID)
		if err != nil {
			return nil, err
		}
		if ended {
			logger.Info(ctxmeta.WithCallID(ctx, req.Call.ID), "通话已结束")
		}
		h.broadcast(ctx, members, callproto.EventMemberLeft, callproto.CallEvent{Call: req.Call, UserID: userID}, userID)
		return nil, nil
	}
	return nil, errUnknownMethod
}

// ring 向除发起者外的成员推送响铃
func (h *WSHandler) ring(ctx context.Context, req callproto.GetOrCreateData, createdBy string) {
	frame, err := callproto.Marshal(callproto.EventRing, "", callproto.CallEvent{
		Call:      req.Call,
		CreatedBy: createdBy,
		Custom:    req.Custom,
	})
	if err != nil {
		return
	}
	ids := make([]string, 0, len(req.Members))
	for _, m := range req.Members {
		ids = append(ids, m.UserID)
	}
	// 入队不阻塞，同步推送保证同一连接上事件有序
	sent := h.conns.Broadcast(ids, createdBy, frame)
	h.metrics.rings.Add(float64(sent))
	logger.Debug(ctx, "响铃已推送", logger.String("call_id", req.Call.ID), logger.Int("sent", sent))
}

// notify 向通话成员推送事件
func (h *WSHandler) notify(ctx context.Context, typ string, ev callproto.CallEvent, except string) {
	h.broadcast(ctx, h.registry.MemberIDs(ev.Call), typ, ev, except)
}

func (h *WSHandler) broadcast(ctx context.Context, ids []string, typ string, ev callproto.CallEvent, except string) {
	if len(ids) == 0 {
		return
	}
	frame, err := callproto.Marshal(typ, "", ev)
	if err != nil {
		return
	}
	sent := h.conns.Broadcast(ids, except, frame)
	logger.Debug(ctx, "信令事件已推送", logger.String("type", typ), logger.Int("sent", sent))
}

// reply 下行帧入队失败说明连接不可写，直接关闭
func (h *WSHandler) reply(ctx context.Context, client *Client, frame []byte) {
	if frame == nil {
		return
	}
	if !client.Enqueue(frame) {
		logger.Debug(ctx, "信令写队列不可用，关闭连接", logger.String("user_id", client.UserID()))
		client.Close()
	}
}

var (
	errBadPayload    = errors.New("invalid payload")
	errUnknownMethod = errors.New("unknown signaling method")
)

func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrCallNotFound):
		return int(consts.CodeCallNotFound), err.Error()
	case errors.Is(err, ErrNotMember):
		return int(consts.CodeNotCallMember), err.Error()
	case errors.Is(err, ErrInvalidCall), errors.Is(err, errBadPayload):
		return callproto.CodeInvalidFormat, err.Error()
	case errors.Is(err, errUnknownMethod):
		return int(consts.CodeUnknownSignalingMethod), err.Error()
	default:
		return int(consts.CodeInternalError), "internal error"
	}
}

func mustError(id string, code int, msg string) []byte {
	frame, err := callproto.MarshalError(id, code, msg)
	if err != nil {
		return nil
	}
	return frame
}

// writeAuthError 握手阶段还是 HTTP，用统一响应格式返回
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTokenRequired):
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrAPIKey):
		result.Fail(c, http.StatusUnauthorized, consts.CodeInvalidToken)
	default:
		result.Fail(c, http.StatusInternalServerError, consts.CodeInternalError)
	}
}
