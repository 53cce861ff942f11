// Package backoff 重连退避测试
package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBackoff_FixedInterval 固定间隔策略每次返回相同等待时间
func TestBackoff_FixedInterval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("固定间隔不随失败次数增长", prop.ForAll(
		func(intervalMs int, attempts int) bool {
			interval := time.Duration(intervalMs) * time.Millisecond
			b := NewFixed(interval)
			for i := 0; i < attempts; i++ {
				if b.Next() != interval {
					return false
				}
			}
			return b.Attempt() == attempts
		},
		gen.IntRange(1, 5000),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

// TestBackoff_ExponentialBounds 配置上限大于基础值时指数增长且不超过上限
func TestBackoff_ExponentialBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("延迟单调不减且不超过上限", prop.ForAll(
		func(baseMs int, maxMs int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			b := New(base, max, 0)

			prev := time.Duration(0)
			for i := 0; i < 40; i++ {
				delay := b.Next()
				if delay < prev || delay > max {
					return false
				}
				prev = delay
			}
			return prev == max
		},
		gen.IntRange(100, 2000),
		gen.IntRange(5000, 60000),
	))

	properties.TestingRun(t)
}

// TestBackoff_JitterBounds 抖动后的延迟落在 ±jitter 范围内
func TestBackoff_JitterBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("抖动在指定范围内", prop.ForAll(
		func(jitterPercent int) bool {
			jitter := float64(jitterPercent) / 100.0
			b := New(time.Second, 30*time.Second, jitter)
			for i := 0; i < 20; i++ {
				b.Reset()
				delay := b.Next()
				lo := time.Duration(float64(time.Second) * (1 - jitter))
				hi := time.Duration(float64(time.Second) * (1 + jitter))
				if delay < lo-time.Microsecond || delay > hi+time.Microsecond {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestBackoff_ResetAndMaxBelowBase(t *testing.T) {
	b := New(2*time.Second, time.Second, 0)
	if got := b.Next(); got != 2*time.Second {
		t.Fatalf("max<base 时应按 base 处理, got=%v", got)
	}
	b.Next()
	if b.Attempt() != 2 {
		t.Fatalf("Attempt=%d, want 2", b.Attempt())
	}
	b.Reset()
	if b.Attempt() != 0 {
		t.Fatalf("Reset 后 Attempt 应为 0")
	}
}
