package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
)

// 缓存的响应
type cachedResponse struct {
	Status     int
	Content    []byte
	Expiration time.Time
}

// ResponseCache 按请求路径缓存GET响应，只用于探活这类不涉及索引内容的接口
type ResponseCache struct {
	ttl   time.Duration
	items *xsync.MapOf[string, cachedResponse]
	now   func() time.Time
}

// NewResponseCache 创建响应缓存
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ResponseCache{
		ttl:   ttl,
		items: xsync.NewMapOf[string, cachedResponse](),
		now:   time.Now,
	}
}

// Middleware 返回缓存中间件，非GET请求直接放行
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.Path
		if entry, ok := rc.items.Load(key); ok && entry.Expiration.After(rc.now()) {
			c.Header("X-Cache", "HIT")
			c.Data(entry.Status, "application/json; charset=utf-8", entry.Content)
			c.Abort()
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		// 失败的探测结果也缓存，避免依赖故障时被探活请求放大
		rc.items.Store(key, cachedResponse{
			Status:     writer.Status(),
			Content:    writer.body.Bytes(),
			Expiration: rc.now().Add(rc.ttl),
		})
	}
}

// Purge 清除所有缓存
func (rc *ResponseCache) Purge() {
	rc.items.Clear()
}

// Len 返回缓存条目数
func (rc *ResponseCache) Len() int {
	return rc.items.Size()
}

// 自定义响应写入器，用于捕获响应内容
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 同时写入原始响应和缓冲区
func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteString 同时写入原始响应和缓冲区
func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
