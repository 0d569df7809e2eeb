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

// InterfaceHomeController 定义住宅控制器接口
type InterfaceHomeController interface {
	GetHomes()
	GetHome()
	CreateHome()
	UpdateHome()
	DeleteHome()
	EnableHome()
	DisableHome()
	BulkEnableHomes()
	BulkDisableHomes()
	GetHomeDevices()
}

// HomeController 处理住宅相关的请求
type HomeController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewHomeController 创建一个新的住宅控制器
func NewHomeController(ctx *gin.Context, container *container.ServiceContainer) *HomeController {
	return &HomeController{
		Ctx:       ctx,
		Container: container,
	}
}

// BulkHomesRequest 表示批量启用/禁用请求
type BulkHomesRequest struct {
	HomeIDs []string `json:"home_ids" binding:"required,min=1"`
}

// HandleHomeFunc 返回一个处理住宅请求的Gin处理函数
func HandleHomeFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewHomeController(ctx, container)

		switch method {
		case "getHomes":
			controller.GetHomes()
		case "getHome":
			controller.GetHome()
		case "createHome":
			controller.CreateHome()
		case "updateHome":
			controller.UpdateHome()
		case "deleteHome":
			controller.DeleteHome()
		case "enableHome":
			controller.EnableHome()
		case "disableHome":
			controller.DisableHome()
		case "bulkEnableHomes":
			controller.BulkEnableHomes()
		case "bulkDisableHomes":
			controller.BulkDisableHomes()
		case "getHomeDevices":
			controller.GetHomeDevices()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *HomeController) service() services.InterfaceHomeService {
	return c.Container.GetService("home").(services.InterfaceHomeService)
}

func (c *HomeController) fail(err error) {
	failWithServiceError(c.Ctx, err, code.ErrHomeNotFound, code.ErrHomeAlreadyExist)
}

// 1. GetHomes 分页获取当前组织的住宅
func (c *HomeController) GetHomes() {
	// 获取分页参数
	page, _ := strconv.Atoi(c.Ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Ctx.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	homes, total, err := c.service().ListHomes(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), page, pageSize)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "获取住宅列表失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
		"data":        homes,
	})
}

// 2. GetHome 获取住宅详情
func (c *HomeController) GetHome() {
	home, err := c.service().GetHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, home)
}

// 3. CreateHome 创建住宅
func (c *HomeController) CreateHome() {
	var req services.HomeInput
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().CreateHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 4. UpdateHome 更新住宅（改名、启用、禁用）
func (c *HomeController) UpdateHome() {
	var req services.HomePatch
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().UpdateHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 5. DeleteHome 删除住宅
func (c *HomeController) DeleteHome() {
	status, err := c.service().DeleteHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, gin.H{"index": status})
}

// 6. EnableHome 启用住宅
func (c *HomeController) EnableHome() {
	result, err := c.service().EnableHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 7. DisableHome 禁用住宅
func (c *HomeController) DisableHome() {
	result, err := c.service().DisableHome(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 8. BulkEnableHomes 批量启用住宅
func (c *HomeController) BulkEnableHomes() {
	var req BulkHomesRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().BulkEnableHomes(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req.HomeIDs)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 9. BulkDisableHomes 批量禁用住宅
func (c *HomeController) BulkDisableHomes() {
	var req BulkHomesRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().BulkDisableHomes(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req.HomeIDs)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 10. GetHomeDevices 从索引读取住宅的设备集合
func (c *HomeController) GetHomeDevices() {
	view, err := c.service().ListHomeDevices(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, view)
}
