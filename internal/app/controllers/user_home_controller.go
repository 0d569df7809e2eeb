package controllers

import (
	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/app/middleware"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
)

// InterfaceUserHomeController 定义用户住宅关联控制器接口
type InterfaceUserHomeController interface {
	CreateUser()
	LinkUser()
	UnlinkUser()
	BulkLink()
	GetUserHomes()
}

// UserHomeController 处理用户与住宅关联的请求
type UserHomeController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewUserHomeController 创建一个新的用户住宅关联控制器
func NewUserHomeController(ctx *gin.Context, container *container.ServiceContainer) *UserHomeController {
	return &UserHomeController{
		Ctx:       ctx,
		Container: container,
	}
}

// CreateUserRequest 表示创建用户请求
type CreateUserRequest struct {
	Name string `json:"name" binding:"required" example:"张三"`
}

// HandleUserHomeFunc 返回一个处理用户住宅关联请求的Gin处理函数
func HandleUserHomeFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewUserHomeController(ctx, container)

		switch method {
		case "createUser":
			controller.CreateUser()
		case "linkUser":
			controller.LinkUser()
		case "unlinkUser":
			controller.UnlinkUser()
		case "bulkLink":
			controller.BulkLink()
		case "getUserHomes":
			controller.GetUserHomes()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *UserHomeController) service() services.InterfaceUserHomeService {
	return c.Container.GetService("user_home").(services.InterfaceUserHomeService)
}

func (c *UserHomeController) fail(err error) {
	failWithServiceError(c.Ctx, err, code.ErrRecordNotFound, code.ErrConflict)
}

// 1. CreateUser 创建用户
func (c *UserHomeController) CreateUser() {
	var req CreateUserRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	user, err := c.service().CreateUser(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req.Name)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, user)
}

// 2. LinkUser 关联用户与住宅 PUT /users/:id/homes/:home_id
func (c *UserHomeController) LinkUser() {
	result, err := c.service().LinkUser(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"), c.Ctx.Param("home_id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 3. UnlinkUser 解除关联 DELETE /users/:id/homes/:home_id
func (c *UserHomeController) UnlinkUser() {
	result, err := c.service().UnlinkUser(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"), c.Ctx.Param("home_id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 4. BulkLink 批量关联与解除关联
func (c *UserHomeController) BulkLink() {
	var req services.BulkLinkInput
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().BulkLink(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 5. GetUserHomes 读取用户可见的住宅
func (c *UserHomeController) GetUserHomes() {
	view, err := c.service().ListUserHomes(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, view)
}
