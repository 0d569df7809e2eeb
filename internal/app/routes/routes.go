package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smarthome-index-service/internal/app/controllers"
	"smarthome-index-service/internal/app/middleware"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/infrastructure/config"
)

// SetupRouter 初始化并返回配置好的路由
func SetupRouter(serviceContainer *container.ServiceContainer) *gin.Engine {
	// 初始化 Gin
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 添加 CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 指标接口，由 Prometheus 抓取
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 注册路由
	registerRoutes(r, serviceContainer)
	return r
}

// registerRoutes 配置所有API路由
func registerRoutes(
	r *gin.Engine,
	container *container.ServiceContainer,
) {
	// API 路由根路径
	api := r.Group("/api")
	// 设置正确的Content-Type，确保UTF-8编码
	api.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		c.Next()
	})
	// 注册公共路由
	registerPublicRoutes(api, container)
	// 注册需要认证的路由
	registerAuthenticatedRoutes(api, container)
}

// registerPublicRoutes 注册公共路由
func registerPublicRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	// 添加IP限流中间件 - 每秒允许10个请求，最多突发20个请求
	public := api.Group("")
	public.Use(middleware.IPRateLimiter(10, 20))

	// 健康检查路由
	public.GET("/ping", controllers.HandleHealthFunc(container, "ping"))
	public.GET("/health", controllers.HandleHealthFunc(container, "ping"))

	// 健康状态结果缓存5秒，避免探活请求压到数据库和Redis
	statusCache := middleware.NewResponseCache(5 * time.Second)
	public.GET("/health/status", statusCache.Middleware(), controllers.HandleHealthFunc(container, "status"))

	// 认证路由
	public.POST("/auth/login", controllers.HandleJWTFunc(container, "login"))
}

// registerAuthenticatedRoutes 注册需要认证的路由
func registerAuthenticatedRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	jwtService := container.GetService("jwt").(services.InterfaceJWTService)
	cfg := container.GetService("config").(*config.Config)
	rate, burst := cfg.RateLimitRPS, cfg.RateLimitBurst
	if rate <= 0 || burst <= 0 {
		rate, burst = 30, 50
	}

	// 添加认证中间件
	auth := api.Group("")
	auth.Use(middleware.AuthenticateAdmin(jwtService))

	// 按组织限流，默认每秒30个请求，最多突发50个请求
	auth.Use(middleware.OrganizationRateLimiter(rate, burst))

	// 管理员路由
	adminGroup := auth.Group("/admins")
	{
		adminGroup.GET("", controllers.HandleAdminFunc(container, "getAdmins"))
		adminGroup.POST("", controllers.HandleAdminFunc(container, "createAdmin"))
		adminGroup.GET("/:id", controllers.HandleAdminFunc(container, "getAdmin"))
		adminGroup.PUT("/:id", controllers.HandleAdminFunc(container, "updateAdmin"))
		adminGroup.DELETE("/:id", controllers.HandleAdminFunc(container, "deleteAdmin"))
	}

	// 住宅路由
	homesGroup := auth.Group("/homes")
	{
		homesGroup.GET("", controllers.HandleHomeFunc(container, "getHomes"))
		homesGroup.POST("", controllers.HandleHomeFunc(container, "createHome"))
		homesGroup.POST("/bulk/enable", controllers.HandleHomeFunc(container, "bulkEnableHomes"))
		homesGroup.POST("/bulk/disable", controllers.HandleHomeFunc(container, "bulkDisableHomes"))
		homesGroup.GET("/:id", controllers.HandleHomeFunc(container, "getHome"))
		homesGroup.PUT("/:id", controllers.HandleHomeFunc(container, "updateHome"))
		homesGroup.DELETE("/:id", controllers.HandleHomeFunc(container, "deleteHome"))
		homesGroup.POST("/:id/enable", controllers.HandleHomeFunc(container, "enableHome"))
		homesGroup.POST("/:id/disable", controllers.HandleHomeFunc(container, "disableHome"))
		homesGroup.GET("/:id/devices", controllers.HandleHomeFunc(container, "getHomeDevices"))
	}

	// 设备路由
	devicesGroup := auth.Group("/devices")
	{
		devicesGroup.POST("", controllers.HandleDeviceFunc(container, "createDevice"))
		devicesGroup.GET("/:id", controllers.HandleDeviceFunc(container, "getDevice"))
		devicesGroup.DELETE("/:id", controllers.HandleDeviceFunc(container, "deleteDevice"))
		devicesGroup.PUT("/:id/home", controllers.HandleDeviceFunc(container, "attachDevice"))
		devicesGroup.DELETE("/:id/home", controllers.HandleDeviceFunc(container, "detachDevice"))
	}

	// 用户路由
	usersGroup := auth.Group("/users")
	{
		usersGroup.POST("", controllers.HandleUserHomeFunc(container, "createUser"))
		usersGroup.GET("/:id/homes", controllers.HandleUserHomeFunc(container, "getUserHomes"))
		usersGroup.PUT("/:id/homes/:home_id", controllers.HandleUserHomeFunc(container, "linkUser"))
		usersGroup.DELETE("/:id/homes/:home_id", controllers.HandleUserHomeFunc(container, "unlinkUser"))
	}

	// 批量关联路由
	auth.POST("/links/bulk", controllers.HandleUserHomeFunc(container, "bulkLink"))
}
