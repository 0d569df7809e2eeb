package index

import (
	"sort"
	"sync"
)

// KeyedLocker 按键加锁。同一住宅的关系写入与索引收敛在锁内串行执行
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// NewKeyedLocker 创建按键锁
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*refLock)}
}

// Lock 锁定单个键，返回解锁函数
func (l *KeyedLocker) Lock(key string) func() {
	lock := l.acquire(key)
	lock.Lock()
	return func() {
		lock.Unlock()
		l.release(key)
	}
}

// LockMany 按字典序锁定多个键（去重），避免交叉加锁导致死锁
func (l *KeyedLocker) LockMany(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	for _, k := range uniq {
		unlocks = append(unlocks, l.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// UniqueKeyLock 返回住宅唯一标识对应的锁键，写 device-by-home-unique-key 的入口须持有。
// 调用方须先持有住宅锁，再锁定唯一标识，不得反向加锁
func UniqueKeyLock(uniqueID string) string {
	return "uk:" + uniqueID
}

// Held 返回当前被持有或等待中的键数量
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) acquire(key string) *refLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &refLock{}
		l.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (l *KeyedLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := l.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}
