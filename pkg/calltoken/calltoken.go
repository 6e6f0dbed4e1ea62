// Package calltoken 通话后端凭证（HS256 JWT），呼叫端签发、协调服务校验。
package calltoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew iat 提前量，容忍设备与服务端的时钟偏差
const clockSkew = 60 * time.Second

var ErrEmptySecret = errors.New("call api secret is empty")

// Claims 凭证载荷
type Claims struct {
	UserID string `json:"user_id"`
	APIKey string `json:"apiKey,omitempty"`
	jwt.RegisteredClaims
}

// Mint 签发通话凭证
func Mint(apiKey, secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if userID == "" {
		return "", errors.New("call user id is empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := Claims{
		UserID: userID,
		APIKey: apiKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user/" + userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-clockSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign call token: %w", err)
	}
	return token, nil
}

// Parse 校验通话凭证，返回其中的用户
func Parse(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("call token without user_id")
	}
	return claims, nil
}
