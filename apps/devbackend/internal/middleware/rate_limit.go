package middleware

import (
	"context"
	"net/http"
	"sync"

	"DoorbellCall/consts"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// IPRateLimiter 进程内的 IP 级令牌桶。
// 每个 IP 一个 rate.Limiter，存放在有界 LRU 中，长期不活跃的 IP 会被淘汰。
type IPRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewIPRateLimiter ratePerSec: 每秒产生的令牌数；burst: 桶容量；size: 最多跟踪的 IP 数
func NewIPRateLimiter(ratePerSec float64, burst, size int) (*IPRateLimiter, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &IPRateLimiter{
		limit:    rate.Limit(ratePerSec),
		burst:    burst,
		limiters: cache,
	}, nil
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters.Get(ip); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(ip, lim)
	return lim
}

// Allow 是否允许 ip 的一次请求
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiter(ip).Allow()
}

// IPRateLimitMiddleware IP 限流中间件，需要在 ClientIPMiddleware 之后使用
func IPRateLimitMiddleware(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// 1. 获取客户端 IP
		ip, ok := GetClientIPSafe(c)
		if !ok {
			// 无法获取 IP，放行请求（记录警告）
			logger.Warn(ctx, "无法获取客户端 IP，跳过限流检查",
				logger.String("path", c.Request.URL.Path),
			)
			c.Next()
			return
		}

		// 2. 令牌桶检查
		if !l.Allow(ip) {
			logger.Warn(ctx, "IP 请求被限流",
				logger.String("ip", ip),
				logger.String("path", c.Request.URL.Path),
				logger.String("method", c.Request.Method),
			)
			result.Abort(c, http.StatusTooManyRequests, consts.CodeTooManyRequests)
			return
		}

		c.Next()
	}
}

// LogLimiterInit 启动时记录限流参数
func LogLimiterInit(ctx context.Context, ratePerSec float64, burst int) {
	logger.Info(ctx, "IP 限流器初始化完成",
		logger.Float64("rate", ratePerSec),
		logger.Int("burst", burst),
	)
}
