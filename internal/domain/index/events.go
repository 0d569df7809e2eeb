package index

import (
	"context"
	"time"
)

// IndexEvent 一次变更完成收敛后发给下游的通知
type IndexEvent struct {
	Operation string    `json:"operation"`
	HomeID    string    `json:"home_id"`
	UniqueID  string    `json:"unique_id,omitempty"`
	State     string    `json:"state,omitempty"`
	UserIDs   []string  `json:"user_ids,omitempty"`
	Converged bool      `json:"converged"`
	At        time.Time `json:"at"`
}

// EventPublisher 索引变更事件的发布者
type EventPublisher interface {
	Publish(ctx context.Context, event IndexEvent) error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, IndexEvent) error { return nil }
