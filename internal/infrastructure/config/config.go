package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	config     *Config
	configOnce sync.Once
)

// Config stores all configuration of the application
type Config struct {
	// Environment type
	EnvType string

	// Database
	DBDriver        string // 数据库驱动: "mysql"(默认), "sqlite"
	DBHost          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBPort          string
	DBPath          string // sqlite 数据库文件路径
	DBMigrationMode string // 数据库迁移模式: "auto"(默认), "drop"(删除重建)

	// Server
	ServerPort     string
	RateLimitRPS   float64 // 每个组织每秒允许的请求数
	RateLimitBurst int     // 每个组织允许的突发请求数

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 索引缓存配置
	IndexCacheBackend string // 索引缓存后端: "redis"(默认), "memory"
	IndexKeyPrefix    string // 索引键前缀
	IndexFanoutLimit  int    // 单次变更内并发写入缓存的上限

	// MQTT配置（索引变更通知）
	IndexEventsEnabled bool   // 是否发布索引变更事件
	MQTTBrokerURL      string // MQTT服务器地址，如 tcp://broker.example.com:1883
	MQTTClientID       string // MQTT客户端ID
	MQTTUsername       string // MQTT用户名
	MQTTPassword       string // MQTT密码
	MQTTQoS            int    // 服务质量 (0, 1, 2)
	MQTTIndexTopic     string // 索引变更事件主题前缀

	// JWT Authentication
	JWTSecretKey string

	// Admin
	DefaultAdminPassword string
	DefaultOrgName       string
}

// LoadConfig loads config from environment variables based on ENV_TYPE
func LoadConfig() *Config {
	// Get environment type (default to LOCAL if not set)
	envType := strings.ToUpper(getEnv("ENV_TYPE", "LOCAL"))
	prefix := ""

	switch envType {
	case "LOCAL":
		prefix = "LOCAL_"
	case "SERVER":
		prefix = "SERVER_"
	default:
		fmt.Printf("Warning: Unknown ENV_TYPE '%s', defaulting to LOCAL environment\n", envType)
		prefix = "LOCAL_"
		envType = "LOCAL"
	}

	fmt.Printf("Loading configuration for environment: %s\n", envType)

	cfg := &Config{
		EnvType: envType,

		// Database config - use environment-specific variables if available
		DBDriver:        strings.ToLower(getEnv(prefix+"DB_DRIVER", getEnv("DB_DRIVER", "mysql"))),
		DBHost:          getEnv(prefix+"DB_HOST", getEnv("DB_HOST", "localhost")),
		DBUser:          getEnv(prefix+"DB_USER", getEnv("DB_USER", "root")),
		DBPassword:      getEnv(prefix+"DB_PASSWORD", getEnv("DB_PASSWORD", "")),
		DBName:          getEnv(prefix+"DB_NAME", getEnv("DB_NAME", "smarthome_db")),
		DBPort:          getEnv(prefix+"DB_PORT", getEnv("DB_PORT", "3306")),
		DBPath:          getEnv(prefix+"DB_PATH", getEnv("DB_PATH", "smarthome.db")),
		DBMigrationMode: getEnv(prefix+"DB_MIGRATION_MODE", getEnv("DB_MIGRATION_MODE", "auto")),

		// Server config
		ServerPort:     getEnv(prefix+"SERVER_PORT", getEnv("SERVER_PORT", "8080")),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 30),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 50),

		// Redis config
		RedisHost:     getEnv(prefix+"REDIS_HOST", getEnv("REDIS_HOST", "localhost")),
		RedisPort:     getEnv(prefix+"REDIS_PORT", getEnv("REDIS_PORT", "6379")),
		RedisPassword: getEnv(prefix+"REDIS_PASSWORD", getEnv("REDIS_PASSWORD", "")),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Index config
		IndexCacheBackend: strings.ToLower(getEnv("INDEX_CACHE_BACKEND", "redis")),
		IndexKeyPrefix:    getEnv("INDEX_KEY_PREFIX", "idx"),
		IndexFanoutLimit:  getEnvAsInt("INDEX_FANOUT_LIMIT", 16),

		// MQTT配置
		IndexEventsEnabled: getEnvAsBool("INDEX_EVENTS_ENABLED", false),
		MQTTBrokerURL:      getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "smarthome_index"),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTQoS:            getEnvAsInt("MQTT_QOS", 1),
		MQTTIndexTopic:     getEnv("MQTT_INDEX_TOPIC", "smarthome/index"),

		// JWT Config
		JWTSecretKey: getEnv("JWT_SECRET_KEY", "smarthome-secret-key-change-in-production"),

		// Admin Config
		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", "admin123"),
		DefaultOrgName:       getEnv("DEFAULT_ORG_NAME", "default"),
	}

	if cfg.IndexFanoutLimit < 1 {
		cfg.IndexFanoutLimit = 1
	}
	if cfg.MQTTQoS < 0 || cfg.MQTTQoS > 2 {
		cfg.MQTTQoS = 1
	}

	return cfg
}

// GetConfig returns the application configuration as a singleton
func GetConfig() *Config {
	configOnce.Do(func() {
		config = LoadConfig()
	})
	return config
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local&allowNativePasswords=true"
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// Helper function to get environment variable with default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as integer with default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as float with default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as boolean with default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
