package cache

import (
	"context"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/infrastructure/config"
)

// RedisIndexCache 基于Redis集合的索引缓存
type RedisIndexCache struct {
	Client *redis.Client
	Prefix string
}

// NewRedisClient 按配置创建Redis客户端
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisIndexCache 创建Redis索引缓存
func NewRedisIndexCache(client *redis.Client, prefix string) *RedisIndexCache {
	return &RedisIndexCache{
		Client: client,
		Prefix: prefix,
	}
}

func (c *RedisIndexCache) key(family index.Family, key string) string {
	return index.StorageKey(c.Prefix, family, key)
}

// 1 AddMember 向集合添加成员 (SADD)
func (c *RedisIndexCache) AddMember(ctx context.Context, family index.Family, key, member string) error {
	return c.Client.SAdd(ctx, c.key(family, key), member).Err()
}

// 2 RemoveMember 从集合移除成员 (SREM)，Redis 在集合为空时自动删除键
func (c *RedisIndexCache) RemoveMember(ctx context.Context, family index.Family, key, member string) error {
	return c.Client.SRem(ctx, c.key(family, key), member).Err()
}

// 3 DeleteKey 删除整个集合 (DEL)
func (c *RedisIndexCache) DeleteKey(ctx context.Context, family index.Family, key string) error {
	return c.Client.Del(ctx, c.key(family, key)).Err()
}

// 4 ListMembers 列出集合成员 (SMEMBERS)，按字典序返回
func (c *RedisIndexCache) ListMembers(ctx context.Context, family index.Family, key string) ([]string, error) {
	members, err := c.Client.SMembers(ctx, c.key(family, key)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// Ping 检查Redis连通性
func (c *RedisIndexCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (c *RedisIndexCache) Close() error {
	return c.Client.Close()
}
