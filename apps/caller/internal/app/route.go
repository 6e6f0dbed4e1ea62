package app

import "DoorbellCall/apps/caller/internal/session"

// Route 客户端所处页面
type Route int

const (
	RouteEntry Route = iota // 入口：拍照登记
	RouteLobby              // 大厅：等待呼叫
	RouteCall               // 通话中
)

func (r Route) String() string {
	switch r {
	case RouteEntry:
		return "entry"
	case RouteLobby:
		return "lobby"
	case RouteCall:
		return "call"
	default:
		return "unknown"
	}
}

// Resolve 路由守卫：大厅和通话要求会话已认证且资料已完成，否则回到入口
func Resolve(snap session.Snapshot, want Route) Route {
	if want == RouteEntry {
		return RouteEntry
	}
	if !snap.Authenticated || !snap.Session.ProfileComplete {
		return RouteEntry
	}
	return want
}
