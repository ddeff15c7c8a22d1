package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry はインメモリキャッシュの1エントリ。
type memoryEntry struct {
	key      string
	value    []byte
	storedAt time.Time
}

// MemoryCache はエントリごとのTTLと容量上限付きのLRUキャッシュ。
// 容量超過時は最も古くアクセスされたエントリから追い出す。
// ミューテックスで保護されており同一プロセス内ではスレッドセーフ。
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // 先頭が最も古い

	now func() time.Time // テストで差し替え可能
}

// NewMemoryCache はMemoryCacheを生成する。
// capacityとttlが非正の場合は最小値(1エントリ / 1秒)に丸める。
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &MemoryCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get はキーに対応する値を返す。期限切れエントリはこの時点で削除される。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(key, elem)
		return nil, false
	}

	c.order.MoveToBack(elem)
	return entry.value, true
}

// Set は値を登録する。既存キーは値とタイムスタンプを更新する。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.storedAt = c.now()
		c.order.MoveToBack(elem)
		return nil
	}

	if len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.removeLocked(oldest.Value.(*memoryEntry).key, oldest)
		}
	}

	elem := c.order.PushBack(&memoryEntry{key: key, value: value, storedAt: c.now()})
	c.entries[key] = elem
	return nil
}

// Delete は指定キーのエントリを削除する。
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(key, elem)
	}
	return nil
}

// Clear は全エントリを削除する。
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Close は何もしない。インターフェース充足のために存在する。
func (c *MemoryCache) Close() error {
	return nil
}

// Len は現在のエントリ数を返す（期限切れ未回収分を含む）。
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) removeLocked(key string, elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, key)
}

var _ Cache = (*MemoryCache)(nil)
