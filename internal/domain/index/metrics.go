package index

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var CacheOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "smarthome",
	Subsystem: "index",
	Name:      "cache_operations_total",
}, []string{"family", "op", "result"})

var ConvergenceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "smarthome",
	Subsystem: "index",
	Name:      "convergence_failures_total",
}, []string{"operation"})

var ConvergenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "smarthome",
	Subsystem: "index",
	Name:      "convergence_duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"operation"})

// RegisterMetrics 注册索引相关的指标，重复注册不报错
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{CacheOperations, ConvergenceFailures, ConvergenceDuration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// instrumentedCache 统计每次缓存操作的结果
type instrumentedCache struct {
	next IndexCache
}

func instrument(c IndexCache) IndexCache {
	if _, ok := c.(*instrumentedCache); ok {
		return c
	}
	return &instrumentedCache{next: c}
}

func observe(family Family, op CacheOp, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CacheOperations.WithLabelValues(string(family), string(op), result).Inc()
}

func (c *instrumentedCache) AddMember(ctx context.Context, family Family, key, member string) error {
	err := c.next.AddMember(ctx, family, key, member)
	observe(family, OpAddMember, err)
	return err
}

func (c *instrumentedCache) RemoveMember(ctx context.Context, family Family, key, member string) error {
	err := c.next.RemoveMember(ctx, family, key, member)
	observe(family, OpRemoveMember, err)
	return err
}

func (c *instrumentedCache) DeleteKey(ctx context.Context, family Family, key string) error {
	err := c.next.DeleteKey(ctx, family, key)
	observe(family, OpDeleteKey, err)
	return err
}

func (c *instrumentedCache) ListMembers(ctx context.Context, family Family, key string) ([]string, error) {
	members, err := c.next.ListMembers(ctx, family, key)
	observe(family, OpListMembers, err)
	return members, err
}
