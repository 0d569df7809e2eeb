package container

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/services"
	"smarthome-index-service/internal/infrastructure/cache"
	"smarthome-index-service/internal/infrastructure/config"
	Logger "smarthome-index-service/pkg/logger"
)

// ServiceContainer 管理所有服务的依赖注入
type ServiceContainer struct {
	db        *gorm.DB
	config    *config.Config
	redis     *redis.Client
	publisher index.EventPublisher

	// 索引同步
	indexCache index.IndexCache
	engine     *index.Engine
	locker     *index.KeyedLocker

	// 基础服务
	jwtService   services.InterfaceJWTService
	adminService services.InterfaceAdminService

	// 业务服务
	homeService     services.InterfaceHomeService
	deviceService   services.InterfaceDeviceService
	userHomeService services.InterfaceUserHomeService

	mu sync.RWMutex
}

// NewServiceContainer 创建新的服务容器。redisClient 为 nil 或配置为 memory 时使用进程内索引缓存
func NewServiceContainer(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, publisher index.EventPublisher) *ServiceContainer {
	if db == nil {
		panic("数据库连接为空")
	}

	if cfg == nil {
		panic("配置为空")
	}

	// 测试Redis连接，失败时仍使用Redis，收敛失败会记录日志并在下一次写入时修复
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			Logger.Warning("Redis连接测试失败: %v", err)
		}
	}

	if publisher == nil {
		publisher = index.NopPublisher{}
	}

	container := &ServiceContainer{
		db:        db,
		config:    cfg,
		redis:     redisClient,
		publisher: publisher,
	}
	container.initializeServices()
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 初始化索引缓存
	if c.config.IndexCacheBackend == "redis" && c.redis != nil {
		c.indexCache = cache.NewRedisIndexCache(c.redis, c.config.IndexKeyPrefix)
		Logger.Info("索引缓存使用Redis，键前缀: %q", c.config.IndexKeyPrefix)
	} else {
		c.indexCache = index.NewMemoryCache()
		Logger.Info("索引缓存使用进程内存储")
	}

	// 初始化同步引擎，所有写入入口共用同一把按住宅加锁的锁
	c.engine = index.NewEngine(c.indexCache, c.config.IndexFanoutLimit, c.publisher)
	c.locker = index.NewKeyedLocker()

	// 初始化基础服务
	c.jwtService = services.NewJWTService(c.config, c.db)
	c.adminService = services.NewAdminService(c.db, c.config)

	// 初始化业务服务
	c.homeService = services.NewHomeService(c.db, c.config, c.engine, c.locker)
	c.deviceService = services.NewDeviceService(c.db, c.config, c.engine, c.locker)
	c.userHomeService = services.NewUserHomeService(c.db, c.config, c.engine, c.locker)
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "redis":
		return c.redis
	case "index_cache":
		return c.indexCache
	case "engine":
		return c.engine
	case "jwt":
		return c.jwtService
	case "admin":
		return c.adminService
	case "home":
		return c.homeService
	case "device":
		return c.deviceService
	case "user_home":
		return c.userHomeService
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// GetEngine 获取索引同步引擎
func (c *ServiceContainer) GetEngine() *index.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}
