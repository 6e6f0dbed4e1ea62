package handler

import (
	"context"
	"errors"
	"net/http"

	"DoorbellCall/apps/devbackend/internal/dto"
	"DoorbellCall/apps/devbackend/internal/middleware"
	"DoorbellCall/apps/devbackend/internal/service"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
)

// SessionService 匿名会话业务
type SessionService interface {
	Start(ctx context.Context, mac, clientIP string) (*service.Grant, error)
	Complete(ctx context.Context, claims *service.SessionClaims, mac, imgURL, sessionID string) (*service.Grant, error)
	UpdatePhoto(ctx context.Context, claims *service.SessionClaims, sessionID, imgURL string) error
}

// SessionHandler 匿名会话接口
type SessionHandler struct {
	sessions SessionService
}

func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Start 创建匿名会话
// @Router /api/anonymous-sessions/iniciar [post]
func (h *SessionHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	// 1. 绑定请求数据
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 参数错误由客户端输入导致，不记录日志
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}

	// 2. 创建会话
	grant, err := h.sessions.Start(ctx, req.MAC, middleware.ClientIPFromGinContext(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidMAC) {
			result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
			return
		}
		logger.Error(ctx, "创建匿名会话失败", logger.ErrorField("error", err))
		result.Fail(c, http.StatusInternalServerError, consts.CodeSessionStartFailed)
		return
	}

	result.Created(c, dto.SessionResponse{
		SessionID: grant.SessionID,
		Token:     grant.Token,
		ExpiresIn: grant.ExpiresIn,
	})
}

// Complete 首次登记照片
// @Router /api/anonymous-sessions [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		result.Fail(c, http.StatusUnauthorized, consts.CodeUnauthorized)
		return
	}

	grant, err := h.sessions.Complete(ctx, claims, req.MAC, req.ImgURL, req.SessionID)
	if err != nil {
		h.writeError(c, err, "会话登记失败")
		return
	}
	result.Success(c, dto.SessionResponse{SessionID: grant.SessionID, Token: grant.Token})
}

// UpdatePhoto 更换照片
// @Router /api/anonymous-sessions/upload-mediafile/{sessionId} [put]
func (h *SessionHandler) UpdatePhoto(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		result.Fail(c, http.StatusUnauthorized, consts.CodeUnauthorized)
		return
	}

	sessionID := c.Param("sessionId")
	if err := h.sessions.UpdatePhoto(ctx, claims, sessionID, req.ImgURL); err != nil {
		h.writeError(c, err, "更新会话照片失败")
		return
	}
	result.Success(c, dto.UpdatePhotoResponse{SessionID: sessionID, ImgURL: req.ImgURL})
}

// writeError 业务错误映射为 HTTP 状态码，其余记录日志后返回 500
func (h *SessionHandler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrImageRequired):
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
	case errors.Is(err, service.ErrSessionMismatch):
		result.Fail(c, http.StatusForbidden, consts.CodePermissionDeny)
	case errors.Is(err, service.ErrSessionNotFound):
		// 会话已被作废，按未认证处理
		result.Fail(c, http.StatusUnauthorized, consts.CodeSessionNotFound)
	default:
		logger.Error(c.Request.Context(), msg, logger.ErrorField("error", err))
		result.Fail(c, http.StatusInternalServerError, consts.CodeRegistrationFailed)
	}
}
