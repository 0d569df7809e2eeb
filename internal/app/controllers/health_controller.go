package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
	"smarthome-index-service/internal/infrastructure/database"
)

// pinger 可探活的依赖
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckController 健康检查控制器
type HealthCheckController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewHealthCheckController 创建健康检查控制器实例
func NewHealthCheckController(ctx *gin.Context, container *container.ServiceContainer) *HealthCheckController {
	return &HealthCheckController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleHealthFunc 返回一个处理健康检查请求的Gin处理函数
func HandleHealthFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewHealthCheckController(ctx, container)

		switch method {
		case "ping":
			controller.Ping()
		case "status":
			controller.Status()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// Ping 健康检查端点
func (h *HealthCheckController) Ping() {
	response.Success(h.Ctx, gin.H{
		"status":  "healthy",
		"message": "pong",
	})
}

// Status 检查数据库和索引缓存的连通性
func (h *HealthCheckController) Status() {
	ctx, cancel := context.WithTimeout(h.Ctx.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "index_cache": "ok"}
	healthy := true

	if err := database.Ping(ctx, h.Container.GetDB()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if p, ok := h.Container.GetService("index_cache").(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			checks["index_cache"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		response.FailWithMessage(h.Ctx, code.ErrConnectionFailed, "依赖服务不可用", checks)
		return
	}
	response.Success(h.Ctx, gin.H{
		"status": "healthy",
		"checks": checks,
	})
}
