package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
)

// 上下文中保存认证信息的键
const (
	ContextAdminID = "adminID"
	ContextOrgID   = "orgID"
	ContextRole    = "role"
	ContextClaims  = "claims"
)

// extractToken 从授权头中提取token
func extractToken(authHeader string) string {
	// 检查并移除 "Bearer " 前缀
	if len(authHeader) > 7 && strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return authHeader
}

// AuthenticateAdmin 验证组织管理员令牌，并把组织范围写入上下文
func AuthenticateAdmin(jwtService services.InterfaceJWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c)
			return
		}

		// 提取并验证token
		claims, err := jwtService.ExtractClaims(extractToken(authHeader))
		if err != nil {
			c.AbortWithStatusJSON(code.GetStatus(code.ErrTokenInvalid), response.Response{
				Code:    code.ErrTokenInvalid,
				Message: "Invalid token: " + err.Error(),
			})
			return
		}

		// 检查是否是管理员
		if claims.Role != "admin" {
			response.Forbidden(c)
			return
		}

		// 存储claims到上下文
		c.Set(ContextAdminID, claims.AdminID)
		c.Set(ContextOrgID, claims.OrganizationID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// OrganizationID 读取当前请求的组织范围
func OrganizationID(c *gin.Context) string {
	return c.GetString(ContextOrgID)
}

// AdminID 返回当前请求的管理员ID
func AdminID(c *gin.Context) string {
	return c.GetString(ContextAdminID)
}
