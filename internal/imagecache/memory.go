package imagecache

import (
	"container/list"
	"image"
	"sync"
)

// memoryCache 是进程内的 LRU 层，同时受条目数与像素字节数双重上限约束。
type memoryCache struct {
	maxItems int
	maxBytes int64

	mu       sync.Mutex
	curBytes int64
	order    *list.List // front = 最近使用
	items    map[string]*list.Element
}

type memoryEntry struct {
	key  string
	img  *image.NRGBA
	size int64
}

func newMemoryCache(maxItems int, maxBytes int64) *memoryCache {
	return &memoryCache{
		maxItems: maxItems,
		maxBytes: maxBytes,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// bitmapBytes 以像素缓冲区长度估算占用，忽略结构体自身的固定开销。
func bitmapBytes(img *image.NRGBA) int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Pix))
}

// Get 命中时将条目提升为最近使用。
func (m *memoryCache) Get(key string) (*image.NRGBA, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).img, true
}

// Put 插入或替换条目，再从最久未用端逐出，直到两个上限同时满足。
// 同键重复插入会先移除旧条目，保证字节计数不重复累计。
func (m *memoryCache) Put(key string, img *image.NRGBA) {
	if img == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeLocked(elem)
	}

	entry := &memoryEntry{key: key, img: img, size: bitmapBytes(img)}
	m.items[key] = m.order.PushFront(entry)
	m.curBytes += entry.size

	for m.order.Len() > m.maxItems || m.curBytes > m.maxBytes {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
	}
}

func (m *memoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	m.order.Remove(elem)
	delete(m.items, entry.key)
	m.curBytes -= entry.size
}

// Len 返回当前条目数，供指标与测试观察。
func (m *memoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Bytes 返回当前像素字节占用。
func (m *memoryCache) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curBytes
}
