// Package callproto 通话信令的 websocket 帧格式，呼叫端与开发后端共用。
package callproto

import (
	"encoding/json"
	"errors"

	"DoorbellCall/model"
)

// 帧类型。请求帧的 Type 即方法名。
const (
	MethodGetOrCreate   = "call.get_or_create"
	MethodUpdateMembers = "call.update_members"
	MethodQueryMembers  = "call.query_members"
	MethodJoin          = "call.join"
	MethodLeave         = "call.leave"

	TypeResponse     = "response"
	TypeError        = "error"
	TypeHeartbeat    = "heartbeat"
	TypeHeartbeatAck = "heartbeat_ack"

	// 服务端推送事件
	EventRing       = "call.ring"
	EventMemberJoin = "call.member_joined"
	EventMemberLeft = "call.member_left"
)

// 协议层错误码（帧内 error，不是 HTTP 状态码）
const (
	CodeInvalidFormat = 10001
	CodeUnsupported   = 10002
)

var ErrEmptyFrame = errors.New("empty frame")

// Envelope 信令帧。
// 请求帧带 ID，响应帧回填相同的 ID；事件帧没有 ID。
type Envelope struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorData      `json:"error,omitempty"`
}

// ErrorData 失败响应或 type=error 帧的内容
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorData) Error() string {
	return e.Message
}

// GetOrCreateData call.get_or_create 请求体
type GetOrCreateData struct {
	Call      model.CallRef     `json:"call"`
	Members   []model.Member    `json:"members"`
	CreatedBy string            `json:"created_by"`
	Ring      bool              `json:"ring"`
	Custom    map[string]string `json:"custom,omitempty"`
}

// UpdateMembersData call.update_members 请求体
type UpdateMembersData struct {
	Call    model.CallRef  `json:"call"`
	Members []model.Member `json:"members"`
}

// CallData query_members / join / leave 请求体
type CallData struct {
	Call model.CallRef `json:"call"`
}

// QueryMembersResult call.query_members 响应体
type QueryMembersResult struct {
	Members []model.MemberRecord `json:"members"`
}

// CallEvent 推送事件内容
type CallEvent struct {
	Call      model.CallRef     `json:"call"`
	UserID    string            `json:"user_id,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	Custom    map[string]string `json:"custom,omitempty"`
}

// Marshal 编码一帧；data 为 nil 时省略 data 字段
func Marshal(typ, id string, data any) ([]byte, error) {
	env := Envelope{Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// MarshalError 编码失败响应。id 为空时是独立的 error 帧。
func MarshalError(id string, code int, message string) ([]byte, error) {
	typ := TypeResponse
	if id == "" {
		typ = TypeError
	}
	return json.Marshal(Envelope{Type: typ, ID: id, Error: &ErrorData{Code: code, Message: message}})
}

// Parse 解析一帧
func Parse(raw []byte) (*Envelope, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, ErrEmptyFrame
	}
	return &env, nil
}

// Decode 解析 data 字段；没有 data 时 v 保持零值
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
