package call

import (
	"net/url"
	"strings"

	"DoorbellCall/model"
)

// ComposeMembers 本地身份（admin）排第一，其后是去重后的远端成员，重复时保留第一次出现的位置
func ComposeMembers(localID string, remoteIDs []string) []model.Member {
	members := make([]model.Member, 0, len(remoteIDs)+1)
	seen := make(map[string]struct{}, len(remoteIDs)+1)
	if localID != "" {
		members = append(members, model.Member{UserID: localID, Role: model.RoleAdmin})
		seen[localID] = struct{}{}
	}
	for _, id := range remoteIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, model.Member{UserID: id})
	}
	return members
}

// containsMember 成员记录里是否有指定用户（兼容 user.id 与 user_id）
func containsMember(records []model.MemberRecord, userID string) bool {
	for _, r := range records {
		if r.ID() == userID {
			return true
		}
	}
	return false
}

// ParseRingCode 从入口 URL 的 ring 参数取 ring code；也接受裸查询串
func ParseRingCode(entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ""
	}
	u, err := url.Parse(entry)
	if err != nil {
		return ""
	}
	q := u.Query()
	if u.RawQuery == "" && !strings.Contains(entry, "/") {
		q, _ = url.ParseQuery(strings.TrimPrefix(entry, "?"))
	}
	return strings.TrimSpace(q.Get("ring"))
}
