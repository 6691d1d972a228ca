package imagecache

import "sync"

// lockTable 为每个缓存键维护独立互斥锁，保证同一键同一时刻至多一次下载。
// 键锁一旦创建便不再回收，表的规模与生命周期内出现过的 URL 数量同步增长；
// 表级锁只保护 map 本身，从不跨越任何 I/O。
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// get 惰性创建键对应的互斥锁，同一键永远返回同一把锁。
func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	return lock
}

// size 返回锁表规模，仅测试使用。
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
