package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"DoorbellCall/config"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session 服务端保存的匿名会话
type Session struct {
	ID         string
	MAC        string
	ImgURL     string
	Registered bool
	ClientIP   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Grant 返回给客户端的凭证
type Grant struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn,omitempty"` // 秒
}

// SessionClaims 会话 token 载荷
type SessionClaims struct {
	SessionID string `json:"sid"`
	MAC       string `json:"mac"`
	jwt.RegisteredClaims
}

// SessionService 匿名会话，全部保存在内存中
type SessionService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionService(cfg config.DevBackendConfig) *SessionService {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionService{
		secret:   []byte(cfg.SessionSecret),
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Start 为设备创建新会话；同一 MAC 可以有多个会话
func (s *SessionService) Start(ctx context.Context, mac, clientIP string) (*Grant, error) {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if !validMAC(mac) {
		return nil, ErrInvalidMAC
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		MAC:       mac,
		ClientIP:  clientIP,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	token, err := s.sign(sess, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	logger.Info(ctxmeta.WithSessionID(ctx, sess.ID), "匿名会话已创建",
		logger.String("mac", mac),
		logger.String("client_ip", clientIP),
	)
	return &Grant{SessionID: sess.ID, Token: token, ExpiresIn: int64(s.ttl / time.Second)}, nil
}

// Complete 首次登记照片并下发新 token。
// 请求体里的 sessionId 可省略，给出时必须与 token 一致。
func (s *SessionService) Complete(ctx context.Context, claims *SessionClaims, mac, imgURL, sessionID string) (*Grant, error) {
	if strings.TrimSpace(imgURL) == "" {
		return nil, ErrImageRequired
	}
	if sessionID != "" && sessionID != claims.SessionID {
		return nil, ErrSessionMismatch
	}
	if !strings.EqualFold(strings.TrimSpace(mac), claims.MAC) {
		return nil, ErrSessionMismatch
	}

	s.mu.Lock()
	sess, ok := s.sessions[claims.SessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	sess.ImgURL = imgURL
	sess.Registered = true
	snapshot := *sess
	s.mu.Unlock()

	token, err := s.sign(&snapshot, s.now())
	if err != nil {
		return nil, err
	}
	logger.Info(ctxmeta.WithSessionID(ctx, sess.ID), "会话登记完成", logger.String("img_url", imgURL))
	return &Grant{SessionID: snapshot.ID, Token: token}, nil
}

// UpdatePhoto 更换已登记会话的照片
func (s *SessionService) UpdatePhoto(ctx context.Context, claims *SessionClaims, sessionID, imgURL string) error {
	if strings.TrimSpace(imgURL) == "" {
		return ErrImageRequired
	}
	if sessionID != claims.SessionID {
		return ErrSessionMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ImgURL = imgURL
	logger.Info(ctxmeta.WithSessionID(ctx, sessionID), "会话照片已更新", logger.String("img_url", imgURL))
	return nil
}

// Authenticate 校验 token，会话必须仍然存在且未过期
func (s *SessionService) Authenticate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s.mu.RLock()
	sess, ok := s.sessions[claims.SessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Get 查询会话
func (s *SessionService) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Revoke 作废会话，之后该会话的 token 一律 401
func (s *SessionService) Revoke(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		logger.Info(ctxmeta.WithSessionID(ctx, sessionID), "会话已作废")
	}
	return ok
}

func (s *SessionService) sign(sess *Session, now time.Time) (string, error) {
	claims := SessionClaims{
		SessionID: sess.ID,
		MAC:       sess.MAC,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sess.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func validMAC(mac string) bool {
	if len(mac) != 17 {
		return false
	}
	for i := 0; i < len(mac); i++ {
		c := mac[i]
		if i%3 == 2 {
			if c != ':' {
				return false
			}
			continue
		}
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
