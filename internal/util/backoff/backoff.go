// Package backoff 计算流式连接断线后的重连等待时间。
// 默认策略为固定间隔（1s，无抖动）；把 max 配得大于 base 即退化为指数退避。
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff 重连等待计算器
// 接收循环与订阅方可能并发读取 Attempt，因此内部加锁
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 等待时间上限；等于 base 时即固定间隔
	max time.Duration
	// jitter 抖动比例（0-1）
	jitter float64

	mu sync.Mutex
	// attempt 连续失败次数
	attempt int
}

// New 创建退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间，小于 base 时按 base 处理
// 参数 jitter: 抖动比例，0 表示不抖动
func New(base, max time.Duration, jitter float64) *Backoff {
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		base:   base,
		max:    max,
		jitter: jitter,
	}
}

// NewFixed 创建固定间隔的退避计算器（重连默认策略）
func NewFixed(interval time.Duration) *Backoff {
	return New(interval, interval, 0)
}

// Next 返回下一次重试前的等待时间并累加失败次数
// 计算公式: min(base * 2^attempt, max)，再应用抖动
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.base
	if b.max > b.base {
		// 位移超过 30 次后必然触顶，避免溢出
		shift := b.attempt
		if shift > 30 {
			shift = 30
		}
		delay = b.base * time.Duration(int64(1)<<shift)
		if delay > b.max || delay <= 0 {
			delay = b.max
		}
	}

	if b.jitter > 0 {
		jitterFactor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	b.attempt++
	return delay
}

// Reset 连接成功后清零失败次数
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt 当前连续失败次数
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
