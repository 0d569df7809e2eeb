package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
	Logger "smarthome-index-service/pkg/logger"
)

// ErrorResponse 表示错误响应
type ErrorResponse struct {
	Code    int         `json:"code" example:"403"`
	Message string      `json:"message" example:"无权访问其他组织的资源"`
	Data    interface{} `json:"data"`
}

// failWithServiceError 把服务层错误映射为统一的错误响应
// notFoundCode 为具体资源不存在时使用的错误码，conflictCode 为唯一约束冲突时使用的错误码
func failWithServiceError(ctx *gin.Context, err error, notFoundCode, conflictCode int) {
	switch {
	case errors.Is(err, services.ErrAccessDenied):
		response.Fail(ctx, code.ErrAccessDenied, nil)
	case errors.Is(err, services.ErrNotFound):
		response.Fail(ctx, notFoundCode, nil)
	case errors.Is(err, services.ErrRelationalConflict):
		response.FailWithMessage(ctx, conflictCode, err.Error(), nil)
	case errors.Is(err, services.ErrInvalidArgument):
		response.ParamError(ctx, err.Error())
	case errors.Is(err, services.ErrIndexUnavailable):
		response.FailWithMessage(ctx, code.ErrIndexUnavailable, err.Error(), nil)
	default:
		Logger.Error("处理请求失败: %s %s: %v", ctx.Request.Method, ctx.FullPath(), err)
		response.FailWithMessage(ctx, code.ErrDatabase, "处理请求失败: "+err.Error(), nil)
	}
}
