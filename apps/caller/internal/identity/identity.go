package identity

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	// CallUserPrefix 派生通话身份的前缀
	CallUserPrefix = "anon-"
	// callUserIDLen 从 sessionId 截取的字符数
	callUserIDLen = 12
)

// DeriveCallUserID 由 sessionId 派生通话身份：去掉分隔符后取前 12 个字母数字字符。
// sessionId 为空时返回空串。
func DeriveCallUserID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range sessionID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			if b.Len() == callUserIDLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return CallUserPrefix + b.String()
}

// GenerateMAC 生成 XX:XX:XX:XX:XX:XX 形式的大写十六进制设备标识
func GenerateMAC() (string, error) {
	return generateMAC(rand.Reader)
}

func generateMAC(r io.Reader) (string, error) {
	buf := make([]byte, 6)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate mac: %w", err)
	}
	parts := make([]string, len(buf))
	for i, v := range buf {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":"), nil
}

// ValidMAC 校验持久化中读到的 MAC 格式
func ValidMAC(mac string) bool {
	if len(mac) != 17 {
		return false
	}
	for i, r := range mac {
		if i%3 == 2 {
			if r != ':' {
				return false
			}
			continue
		}
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return false
		}
	}
	return true
}
