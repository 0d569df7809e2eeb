package index

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smarthome-index-service/pkg/logger"
)

// Engine 索引同步引擎。根据关系写入前后的快照计算并执行缓存操作，
// 使三类索引与关系库收敛。引擎只读关系快照，从不写关系库
type Engine struct {
	cache     IndexCache
	publisher EventPublisher
	fanout    int
}

// NewEngine 创建同步引擎，fanout 为单次变更内并发缓存写入的上限
func NewEngine(cache IndexCache, fanout int, publisher EventPublisher) *Engine {
	if fanout < 1 {
		fanout = 1
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{
		cache:     instrument(cache),
		publisher: publisher,
		fanout:    fanout,
	}
}

// batch 并发执行一组缓存操作并收集全部失败，单个失败不会取消其他操作
type batch struct {
	g    errgroup.Group
	mu   sync.Mutex
	errs []error
}

func (e *Engine) newBatch() *batch {
	b := &batch{}
	b.g.SetLimit(e.fanout)
	return b
}

func (b *batch) Go(fn func() []error) {
	b.g.Go(func() error {
		if errs := fn(); len(errs) > 0 {
			b.mu.Lock()
			b.errs = append(b.errs, errs...)
			b.mu.Unlock()
		}
		return nil
	})
}

func (b *batch) Wait() []error {
	_ = b.g.Wait()
	return b.errs
}

func (e *Engine) add(ctx context.Context, family Family, key, member string) []error {
	if err := e.cache.AddMember(ctx, family, key, member); err != nil {
		return []error{&OpError{Op: OpAddMember, Family: family, Key: key, Member: member, Err: err}}
	}
	return nil
}

func (e *Engine) remove(ctx context.Context, family Family, key, member string) []error {
	if err := e.cache.RemoveMember(ctx, family, key, member); err != nil {
		return []error{&OpError{Op: OpRemoveMember, Family: family, Key: key, Member: member, Err: err}}
	}
	return nil
}

func (e *Engine) del(ctx context.Context, family Family, key string) []error {
	if err := e.cache.DeleteKey(ctx, family, key); err != nil {
		return []error{&OpError{Op: OpDeleteKey, Family: family, Key: key, Err: err}}
	}
	return nil
}

// finish 记录耗时与失败，发布事件，并返回汇总错误
func (e *Engine) finish(ctx context.Context, operation string, started time.Time, failures []error, events ...IndexEvent) error {
	ConvergenceDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	err := newConvergenceError(operation, failures)
	if err != nil {
		ConvergenceFailures.WithLabelValues(operation).Inc()
		logger.Error("索引收敛失败，相关键处于不确定状态: %v", err)
	}

	for _, event := range events {
		event.Operation = operation
		event.Converged = err == nil
		event.At = time.Now()
		if pubErr := e.publisher.Publish(ctx, event); pubErr != nil {
			logger.Warning("发布索引事件失败: operation=%s home=%s err=%v", operation, event.HomeID, pubErr)
		}
	}
	return err
}

// detach 收敛步骤在提交后执行，不随请求取消而中止
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// 1 OnHomeCreated 新建住宅没有设备和关联用户，无需收敛
func (e *Engine) OnHomeCreated(ctx context.Context, home HomeSnapshot) error {
	return nil
}

// 2 OnHomeUpdated 住宅更新（改名、启用、禁用）后的收敛
func (e *Engine) OnHomeUpdated(ctx context.Context, previous, updated HomeSnapshot, devices []DeviceRef, userIDs []string) error {
	ctx = detach(ctx)
	started := time.Now()
	t := TransitionOf(previous, updated)
	failures := e.applyTransition(ctx, t, previous, updated, devices, userIDs)
	return e.finish(ctx, "home_updated", started, failures, IndexEvent{
		HomeID:   updated.ID,
		UniqueID: updated.UniqueID,
		State:    t.To.String(),
		UserIDs:  userIDs,
	})
}

// 3 OnHomeDeleted 住宅删除后的收敛。已禁用的住宅索引本已不存在，只做幂等删除
func (e *Engine) OnHomeDeleted(ctx context.Context, home HomeSnapshot, devices []DeviceRef, userIDs []string) error {
	ctx = detach(ctx)
	started := time.Now()
	t := HomeTransition{From: StateOf(home.Disabled), To: StateAbsent}
	failures := e.applyTransition(ctx, t, home, home, devices, userIDs)
	return e.finish(ctx, "home_deleted", started, failures, IndexEvent{
		HomeID:   home.ID,
		UniqueID: home.UniqueID,
		State:    StateAbsent.String(),
		UserIDs:  userIDs,
	})
}

// 4 OnHomesBulkDisabled 批量禁用。homes 中为变更前的快照，只处理真正发生迁移的住宅，
// 住宅之间互不影响
func (e *Engine) OnHomesBulkDisabled(ctx context.Context, homes []HomeContext) error {
	return e.bulkSetDisabled(ctx, "homes_bulk_disabled", homes, true)
}

// 5 OnHomesBulkEnabled 批量启用
func (e *Engine) OnHomesBulkEnabled(ctx context.Context, homes []HomeContext) error {
	return e.bulkSetDisabled(ctx, "homes_bulk_enabled", homes, false)
}

func (e *Engine) bulkSetDisabled(ctx context.Context, operation string, homes []HomeContext, disabled bool) error {
	ctx = detach(ctx)
	started := time.Now()

	var events []IndexEvent
	b := e.newBatch()
	for _, hc := range homes {
		previous := hc.Home
		updated := previous
		updated.Disabled = disabled
		t := TransitionOf(previous, updated)
		if !t.Changed() {
			continue
		}
		hc := hc
		b.Go(func() []error {
			return e.applyTransition(ctx, t, previous, updated, hc.Devices, hc.UserIDs)
		})
		events = append(events, IndexEvent{
			HomeID:   updated.ID,
			UniqueID: updated.UniqueID,
			State:    t.To.String(),
			UserIDs:  hc.UserIDs,
		})
	}
	return e.finish(ctx, operation, started, b.Wait(), events...)
}

// 6 OnUserHomeLinked 关联用户与住宅，住宅禁用时索引不可见
func (e *Engine) OnUserHomeLinked(ctx context.Context, userID, homeID string, homeEnabled bool) error {
	if !homeEnabled {
		return nil
	}
	ctx = detach(ctx)
	started := time.Now()
	failures := e.add(ctx, FamilyHomeByUserID, userID, homeID)
	return e.finish(ctx, "user_home_linked", started, failures, IndexEvent{HomeID: homeID, UserIDs: []string{userID}})
}

// 7 OnUserHomeUnlinked 解除用户与住宅的关联
func (e *Engine) OnUserHomeUnlinked(ctx context.Context, userID, homeID string, homeEnabled bool) error {
	if !homeEnabled {
		return nil
	}
	ctx = detach(ctx)
	started := time.Now()
	failures := e.remove(ctx, FamilyHomeByUserID, userID, homeID)
	return e.finish(ctx, "user_home_unlinked", started, failures, IndexEvent{HomeID: homeID, UserIDs: []string{userID}})
}

// 8 OnBulkLink 批量关联/解除关联，只对启用的住宅更新索引
func (e *Engine) OnBulkLink(ctx context.Context, homes []HomeSnapshot, attachUserIDs, detachUserIDs []string) error {
	ctx = detach(ctx)
	started := time.Now()

	var events []IndexEvent
	b := e.newBatch()
	for _, home := range homes {
		if home.Disabled {
			continue
		}
		homeID := home.ID
		for _, userID := range attachUserIDs {
			userID := userID
			b.Go(func() []error { return e.add(ctx, FamilyHomeByUserID, userID, homeID) })
		}
		for _, userID := range detachUserIDs {
			userID := userID
			b.Go(func() []error { return e.remove(ctx, FamilyHomeByUserID, userID, homeID) })
		}
		users := make([]string, 0, len(attachUserIDs)+len(detachUserIDs))
		users = append(users, attachUserIDs...)
		users = append(users, detachUserIDs...)
		events = append(events, IndexEvent{HomeID: homeID, UniqueID: home.UniqueID, UserIDs: users})
	}
	return e.finish(ctx, "bulk_link", started, b.Wait(), events...)
}

// 9 OnDeviceAttached 设备挂载到启用的住宅
func (e *Engine) OnDeviceAttached(ctx context.Context, home HomeSnapshot, device DeviceRef) error {
	if home.Disabled {
		return nil
	}
	ctx = detach(ctx)
	started := time.Now()
	b := e.newBatch()
	b.Go(func() []error { return e.add(ctx, FamilyDeviceByHomeID, home.ID, device.ID) })
	b.Go(func() []error { return e.add(ctx, FamilyDeviceByHomeUniqueKey, home.UniqueID, device.UniqueID) })
	return e.finish(ctx, "device_attached", started, b.Wait(), IndexEvent{
		HomeID:   home.ID,
		UniqueID: home.UniqueID,
		State:    StateMaterialized.String(),
	})
}

// 10 OnDeviceDetached 设备从启用的住宅卸载
func (e *Engine) OnDeviceDetached(ctx context.Context, home HomeSnapshot, device DeviceRef) error {
	if home.Disabled {
		return nil
	}
	ctx = detach(ctx)
	started := time.Now()
	b := e.newBatch()
	b.Go(func() []error { return e.remove(ctx, FamilyDeviceByHomeID, home.ID, device.ID) })
	b.Go(func() []error { return e.remove(ctx, FamilyDeviceByHomeUniqueKey, home.UniqueID, device.UniqueID) })
	return e.finish(ctx, "device_detached", started, b.Wait(), IndexEvent{
		HomeID:   home.ID,
		UniqueID: home.UniqueID,
		State:    StateMaterialized.String(),
	})
}

// applyTransition 按顺序执行迁移的每个步骤，步骤内部并发
func (e *Engine) applyTransition(ctx context.Context, t HomeTransition, previous, updated HomeSnapshot, devices []DeviceRef, userIDs []string) []error {
	var failures []error
	for _, step := range t.Steps() {
		switch step {
		case StepRetireOldUniqueKey:
			failures = append(failures, e.del(ctx, FamilyDeviceByHomeUniqueKey, previous.UniqueID)...)
		case StepMaterialize:
			failures = append(failures, e.materialize(ctx, updated, devices)...)
		case StepRetire:
			b := e.newBatch()
			b.Go(func() []error { return e.del(ctx, FamilyDeviceByHomeID, updated.ID) })
			b.Go(func() []error { return e.del(ctx, FamilyDeviceByHomeUniqueKey, updated.UniqueID) })
			failures = append(failures, b.Wait()...)
		case StepHideFromUsers:
			failures = append(failures, e.eachUser(ctx, userIDs, func(userID string) []error {
				return e.remove(ctx, FamilyHomeByUserID, userID, updated.ID)
			})...)
		case StepRevealToUsers:
			failures = append(failures, e.eachUser(ctx, userIDs, func(userID string) []error {
				return e.add(ctx, FamilyHomeByUserID, userID, updated.ID)
			})...)
		}
	}
	return failures
}

func (e *Engine) eachUser(ctx context.Context, userIDs []string, fn func(userID string) []error) []error {
	b := e.newBatch()
	for _, userID := range userIDs {
		userID := userID
		b.Go(func() []error { return fn(userID) })
	}
	return b.Wait()
}

// materialize 写入住宅当前的设备集合，并移除不再属于该住宅的旧成员
func (e *Engine) materialize(ctx context.Context, home HomeSnapshot, devices []DeviceRef) []error {
	wantIDs := make(map[string]struct{}, len(devices))
	wantUniqueIDs := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		wantIDs[d.ID] = struct{}{}
		wantUniqueIDs[d.UniqueID] = struct{}{}
	}

	var failures []error
	staleIDs, errs := e.stale(ctx, FamilyDeviceByHomeID, home.ID, wantIDs)
	failures = append(failures, errs...)
	staleUniqueIDs, errs := e.stale(ctx, FamilyDeviceByHomeUniqueKey, home.UniqueID, wantUniqueIDs)
	failures = append(failures, errs...)

	b := e.newBatch()
	for _, d := range devices {
		d := d
		b.Go(func() []error { return e.add(ctx, FamilyDeviceByHomeID, home.ID, d.ID) })
		b.Go(func() []error { return e.add(ctx, FamilyDeviceByHomeUniqueKey, home.UniqueID, d.UniqueID) })
	}
	for _, m := range staleIDs {
		m := m
		b.Go(func() []error { return e.remove(ctx, FamilyDeviceByHomeID, home.ID, m) })
	}
	for _, m := range staleUniqueIDs {
		m := m
		b.Go(func() []error { return e.remove(ctx, FamilyDeviceByHomeUniqueKey, home.UniqueID, m) })
	}
	return append(failures, b.Wait()...)
}

func (e *Engine) stale(ctx context.Context, family Family, key string, want map[string]struct{}) ([]string, []error) {
	members, err := e.cache.ListMembers(ctx, family, key)
	if err != nil {
		return nil, []error{&OpError{Op: OpListMembers, Family: family, Key: key, Err: err}}
	}
	var stale []string
	for _, m := range members {
		if _, ok := want[m]; !ok {
			stale = append(stale, m)
		}
	}
	return stale, nil
}

// HomeDevices 读取住宅ID下的设备ID集合
func (e *Engine) HomeDevices(ctx context.Context, homeID string) ([]string, error) {
	return e.cache.ListMembers(ctx, FamilyDeviceByHomeID, homeID)
}

// HomeDeviceUniqueIDs 读取住宅唯一标识下的设备唯一标识集合
func (e *Engine) HomeDeviceUniqueIDs(ctx context.Context, homeUniqueID string) ([]string, error) {
	return e.cache.ListMembers(ctx, FamilyDeviceByHomeUniqueKey, homeUniqueID)
}

// UserHomes 读取用户可见的住宅ID集合
func (e *Engine) UserHomes(ctx context.Context, userID string) ([]string, error) {
	return e.cache.ListMembers(ctx, FamilyHomeByUserID, userID)
}

// Members 读取任意索引族下的集合
func (e *Engine) Members(ctx context.Context, family Family, key string) ([]string, error) {
	return e.cache.ListMembers(ctx, family, key)
}
