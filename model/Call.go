package model

// 成员角色
const (
	RoleAdmin  = "admin"
	RoleMember = "user"
)

// Member 通话成员，按 UserID 去重
type Member struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// MemberRecord queryMembers 返回的成员记录。
// 不同后端版本可能返回嵌套的 user.id 或扁平的 user_id。
type MemberRecord struct {
	UserID string      `json:"user_id,omitempty"`
	User   *MemberUser `json:"user,omitempty"`
	Role   string      `json:"role,omitempty"`
}

type MemberUser struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// ID 优先取嵌套的 user.id
func (r MemberRecord) ID() string {
	if r.User != nil && r.User.ID != "" {
		return r.User.ID
	}
	return r.UserID
}

// CallRef 通话标识（type + id）
type CallRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CID 形如 default:FRONT1234567
func (c CallRef) CID() string {
	return c.Type + ":" + c.ID
}

// CallingState 本地通话句柄状态
type CallingState int32

const (
	CallingStateIdle CallingState = iota
	CallingStateJoining
	CallingStateJoined
	CallingStateLeft
)

func (s CallingState) String() string {
	switch s {
	case CallingStateIdle:
		return "idle"
	case CallingStateJoining:
		return "joining"
	case CallingStateJoined:
		return "joined"
	case CallingStateLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Terminal 是否已离开
func (s CallingState) Terminal() bool {
	return s == CallingStateLeft
}

// Doorbell 门铃，ring code 对应一组被叫成员
type Doorbell struct {
	Code            string   `json:"code"`
	MemberStreamIDs []string `json:"memberStreamIds"`
}

// CallUser 连接通话后端时使用的用户信息
type CallUser struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}
