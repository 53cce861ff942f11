// Package timeutil 提供时钟抽象与时间戳换算。
// 缓存过期、OI 保留窗口等逻辑通过 Clock 注入时间，测试时可替换为手动时钟。
package timeutil

import (
	"sync"
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// Clock 时间源
type Clock func() time.Time

// SystemClock 系统时钟
func SystemClock() time.Time {
	return time.Now()
}

// NowNano 单调递增的纳秒时间戳
// 基于启动时 Unix 时间加单调时钟增量，系统时间跳变不影响时间差
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// ManualClock 手动推进的时钟，测试专用
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建从 start 开始的手动时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now 当前时间
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 向前推进 d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
