package index

import "context"

// CacheOp 缓存操作类型
type CacheOp string

const (
	OpAddMember    CacheOp = "add_member"
	OpRemoveMember CacheOp = "remove_member"
	OpDeleteKey    CacheOp = "delete_key"
	OpListMembers  CacheOp = "list_members"
)

// IndexCache 索引缓存能力。所有操作幂等：重复添加已有成员、
// 删除不存在的成员或键都视为成功
type IndexCache interface {
	AddMember(ctx context.Context, family Family, key, member string) error
	RemoveMember(ctx context.Context, family Family, key, member string) error
	DeleteKey(ctx context.Context, family Family, key string) error
	ListMembers(ctx context.Context, family Family, key string) ([]string, error)
}
