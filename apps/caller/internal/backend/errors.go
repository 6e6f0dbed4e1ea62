package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

var (
	// ErrConnectivity 后端不可达（网络错误、超时、熔断打开）
	ErrConnectivity = errors.New("backend unreachable")
	// ErrUnauthorized 后端返回 401
	ErrUnauthorized = errors.New("backend unauthorized")
	// ErrBadResponse 响应缺少必要字段或无法解析
	ErrBadResponse = errors.New("backend bad response")
)

// APIError 后端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    int32
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend status %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Status)
}

// Is 让 errors.Is(err, ErrUnauthorized) 对 401 生效
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// IsConnectivity 是否属于连接类错误
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// classifyTransportError 把 http.Client 的错误归类
func classifyTransportError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// 调用方主动取消不算后端不可达
	if errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectivity, err)
}

// wrapBreakerError 熔断打开/半开限流统一视为不可达
func wrapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return err
}

// breakerFailure 只有连接错误和 5xx 计入熔断统计
func breakerFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return false
}
