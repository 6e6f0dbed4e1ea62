package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"DoorbellCall/config"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"
	"DoorbellCall/pkg/util"

	"github.com/sony/gobreaker"
)

// maxResponseBody 响应体读取上限
const maxResponseBody = 4 << 20

// Client 会话后端 HTTP 客户端。
// 需要鉴权的请求自动带 Bearer token；任何鉴权请求返回 401 都会回调 unauthorized 处理器。
type Client struct {
	baseURL string
	cfg     config.BackendConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics

	mu             sync.RWMutex
	tokenSource    func() string
	onUnauthorized func(ctx context.Context)
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client（测试用 httptest 的 client）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics 指定指标收集器
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New 创建客户端
func New(cfg config.BackendConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:     cfg,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker("session-backend", cfg.Breaker, c.metrics)
	return c
}

func newBreaker(name string, cfg config.BreakerConfig, metrics *Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests, // 半开状态下允许的探测请求
		Interval:    cfg.Interval,    // 清除计数的时间间隔
		Timeout:     cfg.Timeout,     // 熔断开启后多久进入半开
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !breakerFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "后端熔断器状态变化",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.setBreakerState(name, float64(to))
		},
	})
}

// SetTokenSource 设置 Bearer token 来源（会话管理器创建后注入）
func (c *Client) SetTokenSource(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenSource = fn
}

// OnUnauthorized 设置 401 回调
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) hooks() (func() string, func(context.Context)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenSource, c.onUnauthorized
}

// request 一次后端调用的描述
type request struct {
	endpoint    string // 指标标签
	method      string
	path        string
	body        []byte
	contentType string
	auth        bool // 是否携带 Bearer token
	processID   string
	timeout     time.Duration
}

// do 发送请求并返回 2xx 的响应体；非 2xx 返回 *APIError
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tokenSource, onUnauthorized := c.hooks()
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bytes.NewReader(req.body))
		if err != nil {
			return nil, err
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		if req.processID != "" {
			httpReq.Header.Set(util.HeaderXRequestID, req.processID)
		}
		if req.auth && tokenSource != nil {
			if token := tokenSource(); token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, classifyTransportError(ctx, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, classifyTransportError(ctx, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, body)
		}
		return body, nil
	})
	err = wrapBreakerError(err)

	outcome := "ok"
	switch {
	case err == nil:
	case IsConnectivity(err):
		outcome = "unreachable"
	default:
		outcome = "error"
	}
	c.metrics.observe(req.endpoint, outcome, time.Since(start))

	if err != nil {
		if req.auth && errors.Is(err, ErrUnauthorized) && onUnauthorized != nil {
			logger.Warn(ctx, "后端返回 401，强制登出",
				logger.String("endpoint", req.endpoint),
			)
			onUnauthorized(ctx)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if f, err := result.ParseFields(body); err == nil {
		apiErr.Message = f.String("message", "error")
		if code, ok := f.Int64("code"); ok {
			apiErr.Code = int32(code)
		}
	}
	return apiErr
}

