package controllers

import (
	"github.com/gin-gonic/gin"

	"smarthome-index-service/internal/app/middleware"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/error/code"
	"smarthome-index-service/internal/error/response"
)

// InterfaceDeviceController 定义设备控制器接口
type InterfaceDeviceController interface {
	CreateDevice()
	GetDevice()
	DeleteDevice()
	AttachDevice()
	DetachDevice()
}

// DeviceController 处理设备相关的请求
type DeviceController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewDeviceController 创建一个新的设备控制器
func NewDeviceController(ctx *gin.Context, container *container.ServiceContainer) *DeviceController {
	return &DeviceController{
		Ctx:       ctx,
		Container: container,
	}
}

// AttachDeviceRequest 表示设备挂载请求
type AttachDeviceRequest struct {
	HomeID string `json:"home_id" binding:"required"`
}

// HandleDeviceFunc 返回一个处理设备请求的Gin处理函数
func HandleDeviceFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewDeviceController(ctx, container)

		switch method {
		case "createDevice":
			controller.CreateDevice()
		case "getDevice":
			controller.GetDevice()
		case "deleteDevice":
			controller.DeleteDevice()
		case "attachDevice":
			controller.AttachDevice()
		case "detachDevice":
			controller.DetachDevice()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *DeviceController) service() services.InterfaceDeviceService {
	return c.Container.GetService("device").(services.InterfaceDeviceService)
}

func (c *DeviceController) fail(err error) {
	failWithServiceError(c.Ctx, err, code.ErrDeviceNotFound, code.ErrDeviceAlreadyExist)
}

// 1. CreateDevice 创建设备，可选直接挂载到住宅
func (c *DeviceController) CreateDevice() {
	var req services.DeviceInput
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().CreateDevice(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req)
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 2. GetDevice 获取设备详情
func (c *DeviceController) GetDevice() {
	device, err := c.service().GetDevice(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, device)
}

// 3. DeleteDevice 删除设备
func (c *DeviceController) DeleteDevice() {
	status, err := c.service().DeleteDevice(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, gin.H{"index": status})
}

// 4. AttachDevice 把设备挂载到住宅
func (c *DeviceController) AttachDevice() {
	var req AttachDeviceRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().AttachDevice(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), req.HomeID, c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}

// 5. DetachDevice 解除设备与住宅的挂载
func (c *DeviceController) DetachDevice() {
	result, err := c.service().DetachDevice(c.Ctx.Request.Context(), middleware.OrganizationID(c.Ctx), c.Ctx.Param("id"))
	if err != nil {
		c.fail(err)
		return
	}
	response.Success(c.Ctx, result)
}
