package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"smarthome-index-service/internal/app/routes"
	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/services/container"
	"smarthome-index-service/internal/infrastructure/cache"
	"smarthome-index-service/internal/infrastructure/config"
	"smarthome-index-service/internal/infrastructure/database"
	"smarthome-index-service/internal/infrastructure/messaging"
	Logger "smarthome-index-service/pkg/logger"
)

func main() {
	// 初始化日志配置
	if err := Logger.SetupLogger(); err != nil {
		fmt.Printf("初始化日志配置失败: %v\n", err)
		os.Exit(1)
	}

	// 加载.env文件，失败时沿用已有环境变量
	if err := godotenv.Load(); err != nil {
		Logger.Warning("无法加载.env文件: %v", err)
	} else {
		Logger.Info("成功加载.env文件")
	}

	// 获取配置
	cfg := config.GetConfig()

	// 创建数据库连接池
	pool, err := database.NewConnectionPool(cfg)
	if err != nil {
		Logger.Error("无法创建数据库连接池: %v", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	// 根据配置执行迁移
	if err := database.Migrate(db, cfg.DBMigrationMode); err != nil {
		Logger.Error("数据库迁移失败: %v", err)
		os.Exit(1)
	}

	// 确保系统中有管理员账户
	if _, err := database.EnsureDefaultAdmin(db, cfg.DefaultOrgName, cfg.DefaultAdminPassword); err != nil {
		Logger.Error("创建默认管理员失败: %v", err)
		os.Exit(1)
	}

	// 索引缓存后端为 redis 时创建客户端
	var redisClient *redis.Client
	if cfg.IndexCacheBackend == "redis" {
		redisClient = cache.NewRedisClient(cfg)
		defer redisClient.Close()
	}

	// 索引变更事件
	var publisher index.EventPublisher = index.NopPublisher{}
	if cfg.IndexEventsEnabled {
		mqttPublisher := messaging.NewMQTTIndexPublisher(messaging.NewMQTTClient(cfg), cfg)
		if err := mqttPublisher.Connect(); err != nil {
			// 客户端开启了自动重连，发布失败只记录日志
			Logger.Warning("连接MQTT服务器失败: %v", err)
		}
		defer mqttPublisher.Close()
		publisher = mqttPublisher
	}

	// 注册索引指标
	if err := index.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		Logger.Error("注册索引指标失败: %v", err)
		os.Exit(1)
	}

	// 初始化服务容器和路由
	serviceContainer := container.NewServiceContainer(db, cfg, redisClient, publisher)
	r := routes.SetupRouter(serviceContainer)

	// 打印系统信息
	printSystemInfo(pool)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.ServerPort,
		Handler: r,
	}
	go func() {
		Logger.Info("服务器启动在: http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("启动服务器失败: %v", err)
			os.Exit(1)
		}
	}()

	// 等待退出信号，给进行中的写入留出收敛时间
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	Logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Logger.Error("关闭服务器失败: %v", err)
	}
}

// printSystemInfo 打印系统信息
func printSystemInfo(pool *database.ConnectionPool) {
	// 打印数据库连接池信息
	stats, err := pool.Stats()
	if err == nil {
		Logger.Info("数据库连接池状态: %+v", stats)
	}

	Logger.Info("系统CPU核心数: %d", runtime.NumCPU())
	Logger.Info("当前Go协程数: %d", runtime.NumGoroutine())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	Logger.Info("系统内存使用: Alloc=%v MiB, TotalAlloc=%v MiB, Sys=%v MiB",
		m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024)
}
