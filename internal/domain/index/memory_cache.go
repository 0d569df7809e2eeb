package index

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// FailureFunc 决定某次缓存操作是否失败，返回非nil即注入该错误
type FailureFunc func(op CacheOp, family Family, key, member string) error

// MemoryCache 进程内的索引缓存实现，用于单机部署和测试
type MemoryCache struct {
	sets *xsync.MapOf[string, map[string]struct{}]

	mu      sync.RWMutex
	failure FailureFunc
}

// NewMemoryCache 创建内存索引缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		sets: xsync.NewMapOf[string, map[string]struct{}](),
	}
}

// SetFailure 设置故障注入函数，传入nil取消注入
func (c *MemoryCache) SetFailure(fn FailureFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = fn
}

func (c *MemoryCache) injected(op CacheOp, family Family, key, member string) error {
	c.mu.RLock()
	fn := c.failure
	c.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op, family, key, member)
}

// AddMember 向集合添加成员
func (c *MemoryCache) AddMember(ctx context.Context, family Family, key, member string) error {
	if err := c.injected(OpAddMember, family, key, member); err != nil {
		return err
	}
	c.sets.Compute(StorageKey("", family, key), func(members map[string]struct{}, loaded bool) (map[string]struct{}, bool) {
		if !loaded {
			members = make(map[string]struct{})
		}
		members[member] = struct{}{}
		return members, false
	})
	return nil
}

// RemoveMember 从集合移除成员，集合为空时删除整个键
func (c *MemoryCache) RemoveMember(ctx context.Context, family Family, key, member string) error {
	if err := c.injected(OpRemoveMember, family, key, member); err != nil {
		return err
	}
	c.sets.Compute(StorageKey("", family, key), func(members map[string]struct{}, loaded bool) (map[string]struct{}, bool) {
		if !loaded {
			return nil, true
		}
		delete(members, member)
		return members, len(members) == 0
	})
	return nil
}

// DeleteKey 删除整个集合
func (c *MemoryCache) DeleteKey(ctx context.Context, family Family, key string) error {
	if err := c.injected(OpDeleteKey, family, key, ""); err != nil {
		return err
	}
	c.sets.Delete(StorageKey("", family, key))
	return nil
}

// ListMembers 列出集合成员（按字典序返回，便于比较）
func (c *MemoryCache) ListMembers(ctx context.Context, family Family, key string) ([]string, error) {
	if err := c.injected(OpListMembers, family, key, ""); err != nil {
		return nil, err
	}
	var out []string
	c.sets.Compute(StorageKey("", family, key), func(members map[string]struct{}, loaded bool) (map[string]struct{}, bool) {
		if !loaded {
			return nil, true
		}
		out = make([]string, 0, len(members))
		for m := range members {
			out = append(out, m)
		}
		return members, false
	})
	sort.Strings(out)
	return out, nil
}

// Size 返回当前非空集合的数量
func (c *MemoryCache) Size() int {
	return c.sets.Size()
}
