// Package store 维护每个 (网络, 币种) 最近一次的未平仓量读数。
// 每个键只保留一个槽位，超过保留时长的读数视为不存在。
package store

import (
	"sync"
	"time"

	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// DefaultRetention 默认保留时长
const DefaultRetention = 60 * time.Second

// Reading 一次读数
type Reading struct {
	// Value 读数
	Value float64
	// At 记录时间
	At time.Time
}

// Store 单槽位读数存储，可并发访问
type Store struct {
	mu sync.Mutex
	// readings 第一层 key: network，第二层 key: coin
	readings map[string]map[string]Reading
	// retention 保留时长
	retention time.Duration
	// now 时间源
	now timeutil.Clock
}

// New 创建读数存储
// 参数 retention: 保留时长，<=0 时使用 DefaultRetention
// 参数 clock: 时间源，nil 时使用系统时钟
func New(retention time.Duration, clock timeutil.Clock) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &Store{
		readings:  make(map[string]map[string]Reading, 2),
		retention: retention,
		now:       clock,
	}
}

// Swap 写入新读数并返回仍在保留期内的上一次读数
// 返回: 上一次读数，不存在或已过期时为 nil
func (s *Store) Swap(network, coin string, value float64) *Reading {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	byCoin, ok := s.readings[network]
	if !ok {
		byCoin = make(map[string]Reading)
		s.readings[network] = byCoin
	}

	var prev *Reading
	if r, ok := byCoin[coin]; ok && now.Sub(r.At) <= s.retention {
		cp := r
		prev = &cp
	}
	byCoin[coin] = Reading{Value: value, At: now}
	return prev
}
