package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/app/middleware"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
)

// InterfaceAdminController 定义管理员控制器接口
type InterfaceAdminController interface {
	GetAdmins()
	GetAdmin()
	CreateAdmin()
	UpdateAdmin()
	DeleteAdmin()
}

// AdminController 管理员控制器
type AdminController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAdminController 创建一个新的管理员控制器
func NewAdminController(ctx *gin.Context, container *container.ServiceContainer) *AdminController {
	return &AdminController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleAdminFunc 返回一个处理管理员请求的Gin处理函数
func HandleAdminFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAdminController(ctx, container)

		switch method {
		case "getAdmins":
			controller.GetAdmins()
		case "getAdmin":
			controller.GetAdmin()
		case "createAdmin":
			controller.CreateAdmin()
		case "updateAdmin":
			controller.UpdateAdmin()
		case "deleteAdmin":
			controller.DeleteAdmin()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *AdminController) service() services.InterfaceAdminService {
	return c.Container.GetService("admin").(services.InterfaceAdminService)
}

func (c *AdminController) fail(err error) {
	failWithServiceError(c.Ctx, err, code.ErrUserNotFound, code.ErrUserAlreadyExist)
}

// 1. GetAdmins 获取当前组织的管理员列表
func (c *AdminController) GetAdmins() {
	// 获取分页参数
	page, _ := strconv.Atoi(c.Ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Ctx.DefaultQuery("page_size", "10"))
	search := c.Ctx.Query("search")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	admins, total, err := c.service().GetAdmins(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), page, pageSize, search)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询管理员列表失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
		"data":        admins,
	})
}

// 2. GetAdmin 获取管理员详情
func (c *AdminController) GetAdmin() {
	admin, err := c.service().GetAdmin(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, admin)
}

// 3. CreateAdmin 在当前组织内创建管理员
func (c *AdminController) CreateAdmin() {
	var req services.AdminInput
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	admin, err := c.service().CreateAdmin(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, admin)
}

// 4. UpdateAdmin 修改管理员密码或状态
func (c *AdminController) UpdateAdmin() {
	var req services.AdminPatch
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	admin, err := c.service().UpdateAdmin(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, admin)
}

// 5. DeleteAdmin 删除管理员
func (c *AdminController) DeleteAdmin() {
	err := c.service().DeleteAdmin(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"), middleware.AdminID(c.Ctx))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, nil)
}
