package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"

	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
)

// TokenBucket 简单的令牌桶限流器
type TokenBucket struct {
	rate       float64    // 每秒填充的令牌数
	capacity   int        // 桶的容量
	tokens     float64    // 当前令牌数
	lastRefill time.Time  // 上次填充时间
	mu         sync.Mutex // 互斥锁
}

// NewTokenBucket 创建新的令牌桶限流器
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Allow 尝试获取令牌
func (tb *TokenBucket) Allow() bool {
	return tb.allowAt(time.Now())
}

func (tb *TokenBucket) allowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.lastRefill = now
		// 填充令牌
		tb.tokens += elapsed * tb.rate
		if tb.tokens > float64(tb.capacity) {
			tb.tokens = float64(tb.capacity)
		}
	}

	// 尝试获取令牌
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// idleSince 返回限流器最近一次被使用的时间
func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// RateLimiterConfig 限流器配置
type RateLimiterConfig struct {
	Rate       float64                   // 每秒允许的请求数
	Burst      int                       // 允许的突发请求数
	ExpiryTime time.Duration             // 限流器空闲多久后回收
	KeyFunc    func(*gin.Context) string // 限流键，默认按客户端IP
}

// DefaultRateLimiterConfig 默认限流器配置
var DefaultRateLimiterConfig = RateLimiterConfig{
	Rate:       10,
	Burst:      20,
	ExpiryTime: 1 * time.Hour,
}

// Limiters 按键维护的令牌桶集合
type Limiters struct {
	cfg     RateLimiterConfig
	buckets *xsync.MapOf[string, *TokenBucket]
}

// NewLimiters 创建限流器集合
func NewLimiters(cfg RateLimiterConfig) *Limiters {
	// 确保配置有效
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRateLimiterConfig.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimiterConfig.Burst
	}
	if cfg.ExpiryTime <= 0 {
		cfg.ExpiryTime = DefaultRateLimiterConfig.ExpiryTime
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &Limiters{
		cfg:     cfg,
		buckets: xsync.NewMapOf[string, *TokenBucket](),
	}
}

// Get 获取或创建指定键的限流器
func (l *Limiters) Get(key string) *TokenBucket {
	bucket, _ := l.buckets.LoadOrCompute(key, func() *TokenBucket {
		return NewTokenBucket(l.cfg.Rate, l.cfg.Burst)
	})
	return bucket
}

// Sweep 回收空闲超过过期时间的限流器，返回回收数量
func (l *Limiters) Sweep(now time.Time) int {
	removed := 0
	l.buckets.Range(func(key string, bucket *TokenBucket) bool {
		if now.Sub(bucket.idleSince()) > l.cfg.ExpiryTime {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len 当前限流器数量
func (l *Limiters) Len() int {
	return l.buckets.Size()
}

// Middleware 创建限流中间件
func (l *Limiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 检查是否允许请求
		if !l.Get(l.cfg.KeyFunc(c)).Allow() {
			response.Abort(c, code.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// sweepEvery 定期回收空闲的限流器，随进程存活
func (l *Limiters) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for now := range ticker.C {
		l.Sweep(now)
	}
}

// RateLimiter 创建限流中间件
func RateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	limiters := NewLimiters(cfg)
	go limiters.sweepEvery(limiters.cfg.ExpiryTime)
	return limiters.Middleware()
}

// IPRateLimiter 按IP限流
func IPRateLimiter(rate float64, burst int) gin.HandlerFunc {
	return RateLimiter(RateLimiterConfig{Rate: rate, Burst: burst})
}

// OrganizationRateLimiter 按组织限流，需挂在认证中间件之后
func OrganizationRateLimiter(rate float64, burst int) gin.HandlerFunc {
	return RateLimiter(RateLimiterConfig{
		Rate:  rate,
		Burst: burst,
		KeyFunc: func(c *gin.Context) string {
			if orgID := OrganizationID(c); orgID != "" {
				return "org:" + orgID
			}
			return "ip:" + c.ClientIP()
		},
	})
}
