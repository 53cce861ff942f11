// Package cache 实现按键过期的进程内缓存。
// 过期条目在读取时视为不存在，但不会从 map 中物理删除；写入总是覆盖，最后写入者生效。
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// entry 缓存条目
type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

// Stats 命中统计
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Observer 命中/未命中回调，用于对接遥测
type Observer interface {
	CacheHit(key string)
	CacheMiss(key string)
}

// TTL 按键过期缓存
type TTL struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     timeutil.Clock
	group   singleflight.Group

	statsMu sync.Mutex
	hits    int64
	misses  int64

	observer Observer
}

// Option 构造选项
type Option func(*TTL)

// WithClock 注入时间源
func WithClock(clock timeutil.Clock) Option {
	return func(c *TTL) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithObserver 注入命中回调
func WithObserver(o Observer) Option {
	return func(c *TTL) {
		c.observer = o
	}
}

// New 创建缓存
func New(opts ...Option) *TTL {
	c := &TTL{
		entries: make(map[string]entry),
		now:     timeutil.SystemClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 读取未过期的值
// 条目在 now - insertedAt > ttl 时视为不存在
func (c *TTL) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || now.Sub(e.insertedAt) > e.ttl {
		c.record(key, false)
		return nil, false
	}
	c.record(key, true)
	return e.value, true
}

// Set 无条件覆盖写入
func (c *TTL) Set(key string, value any, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	c.entries[key] = entry{value: value, insertedAt: now, ttl: ttl}
	c.mu.Unlock()
}

// GetOrLoad 命中直接返回，未命中时调用 load 并写入
// 同一 key 的并发未命中共享一次 load 调用；load 返回错误时不写入
// 返回: 值、是否来自缓存、错误
func (c *TTL) GetOrLoad(key string, ttl time.Duration, load func() (any, error)) (any, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// 排队期间其他调用者可能已写入
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Stats 命中统计快照
func (c *TTL) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: n}
}

// peek 读取未过期的值，不计入统计
func (c *TTL) peek(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || now.Sub(e.insertedAt) > e.ttl {
		return nil, false
	}
	return e.value, true
}

func (c *TTL) record(key string, hit bool) {
	c.statsMu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMu.Unlock()

	if c.observer == nil {
		return
	}
	if hit {
		c.observer.CacheHit(key)
	} else {
		c.observer.CacheMiss(key)
	}
}
