package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fields 客户端侧的响应解包。
// 取值顺序固定：先 processResponse 内的字段（按 key 顺序），再顶层字段（按 key 顺序）。
type Fields struct {
	nested map[string]json.RawMessage
	top    map[string]json.RawMessage
}

// ParseFields 解析响应体；processResponse 缺失、为 null 或不是对象时只使用顶层字段
func ParseFields(body []byte) (*Fields, error) {
	f := &Fields{}
	if len(bytes.TrimSpace(body)) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(body, &f.top); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw, ok := f.top["processResponse"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil && nested != nil {
			f.nested = nested
		}
	}
	return f, nil
}

// HasPayload processResponse 是否为对象
func (f *Fields) HasPayload() bool {
	return f.nested != nil
}

func (f *Fields) lookup(keys []string, accept func(json.RawMessage) bool) (json.RawMessage, bool) {
	for _, src := range []map[string]json.RawMessage{f.nested, f.top} {
		for _, k := range keys {
			raw, ok := src[k]
			if !ok || isNull(raw) {
				continue
			}
			if accept(raw) {
				return raw, true
			}
		}
	}
	return nil, false
}

// String 返回第一个非空的字符串字段；数字字段按十进制文本返回
func (f *Fields) String(keys ...string) string {
	var out string
	f.lookup(keys, func(raw json.RawMessage) bool {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			out = s
			return s != ""
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			out = n.String()
			return true
		}
		return false
	})
	return out
}

// Int64 返回第一个可解析为整数的字段（兼容字符串形式的数字）
func (f *Fields) Int64(keys ...string) (int64, bool) {
	var out int64
	_, ok := f.lookup(keys, func(raw json.RawMessage) bool {
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			if v, err := n.Int64(); err == nil {
				out = v
				return true
			}
			return false
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				out = v
				return true
			}
		}
		return false
	})
	return out, ok
}

// Strings 返回第一个字符串数组字段，非字符串元素被忽略
func (f *Fields) Strings(keys ...string) []string {
	var out []string
	f.lookup(keys, func(raw json.RawMessage) bool {
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return false
		}
		out = make([]string, 0, len(items))
		for _, it := range items {
			var s string
			if json.Unmarshal(it, &s) == nil && s != "" {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
