package result

import (
	"net/http"
	"time"

	"DoorbellCall/consts"
	"DoorbellCall/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
)

// Envelope 后端统一响应包裹：业务数据放在 processResponse 中
type Envelope struct {
	Status          int         `json:"status"`
	Code            int32       `json:"code"`
	Message         string      `json:"message,omitempty"`
	Timestamp       string      `json:"timestamp"`
	IDProcess       string      `json:"idProcess,omitempty"`
	ProcessResponse interface{} `json:"processResponse,omitempty"`
}

// Result 写出响应
func Result(c *gin.Context, httpStatus int, data interface{}, message string, code int32) {
	if message == "" {
		message = consts.GetMessage(code)
	}
	c.JSON(httpStatus, Envelope{
		Status:          httpStatus,
		Code:            code,
		Message:         message,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		IDProcess:       ctxmeta.TraceIDFromGin(c),
		ProcessResponse: data,
	})
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	Result(c, http.StatusOK, data, "", consts.CodeSuccess)
}

// Created 返回 201
func Created(c *gin.Context, data interface{}) {
	Result(c, http.StatusCreated, data, "", consts.CodeSuccess)
}

// Fail 返回失败响应，HTTP 状态码与业务码一起给出
func Fail(c *gin.Context, httpStatus int, code int32) {
	Result(c, httpStatus, nil, "", code)
}

// FailWithMessage 返回失败响应并自定义消息
func FailWithMessage(c *gin.Context, httpStatus int, message string, code int32) {
	Result(c, httpStatus, nil, message, code)
}

// Abort 失败并中止后续 handler（中间件使用）
func Abort(c *gin.Context, httpStatus int, code int32) {
	Fail(c, httpStatus, code)
	c.Abort()
}
