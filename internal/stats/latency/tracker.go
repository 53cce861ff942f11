// Package latency 统计上游调用耗时。
// 每个来源（info 请求类型、WebSocket 订阅类型）维护独立的滚动窗口。
package latency

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize 默认滚动窗口大小
const DefaultWindowSize = 1024

// LatencyStats 单个来源的耗时快照（滚动窗口）
// 单位：毫秒。
type LatencyStats struct {
	// Source 来源，如 info:metaAndAssetCtxs、ws:l2Book
	Source string `json:"source"`
	// Count 样本总数（累计）
	Count int64 `json:"count"`
	// P50Ms P50 耗时
	P50Ms float64 `json:"p50Ms"`
	// P90Ms P90 耗时
	P90Ms float64 `json:"p90Ms"`
	// P99Ms P99 耗时
	P99Ms float64 `json:"p99Ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) snapshotQuantiles(qs ...float64) (count int64, values []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count = w.count
	if len(w.buf) == 0 {
		return count, make([]int64, len(qs))
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	values = make([]int64, len(qs))
	n := len(tmp)
	for i, q := range qs {
		switch {
		case q <= 0:
			values[i] = tmp[0]
		case q >= 1:
			values[i] = tmp[n-1]
		default:
			values[i] = tmp[int(float64(n-1)*q)]
		}
	}
	return count, values
}

// Tracker 按来源统计耗时
type Tracker struct {
	windowSize int

	mu      sync.RWMutex
	sources map[string]*rollingWindow
}

// NewTracker 创建耗时追踪器
// 参数 windowSize: 每个来源的滚动窗口大小，<=0 时使用 DefaultWindowSize
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		windowSize: windowSize,
		sources:    make(map[string]*rollingWindow),
	}
}

// Observe 记录一次耗时，负值按 0 计
func (t *Tracker) Observe(source string, d time.Duration) {
	if t == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	t.window(source).add(int64(d))
}

// Since 记录从 start 到现在的耗时
func (t *Tracker) Since(source string, start time.Time) {
	t.Observe(source, time.Since(start))
}

func (t *Tracker) window(source string) *rollingWindow {
	t.mu.RLock()
	w, ok := t.sources[source]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.sources[source]; ok {
		return w
	}
	w = newRollingWindow(t.windowSize)
	t.sources[source] = w
	return w
}

// Stats 获取指定来源的统计快照，未出现过的来源返回零值
func (t *Tracker) Stats(source string) LatencyStats {
	t.mu.RLock()
	w, ok := t.sources[source]
	t.mu.RUnlock()
	if !ok {
		return LatencyStats{Source: source}
	}

	count, qs := w.snapshotQuantiles(0.50, 0.90, 0.99)
	return LatencyStats{
		Source: source,
		Count:  count,
		P50Ms:  float64(qs[0]) / 1_000_000.0,
		P90Ms:  float64(qs[1]) / 1_000_000.0,
		P99Ms:  float64(qs[2]) / 1_000_000.0,
	}
}

// All 所有来源的统计快照，按来源名排序
func (t *Tracker) All() []LatencyStats {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	names := make([]string, 0, len(t.sources))
	for name := range t.sources {
		names = append(names, name)
	}
	t.mu.RUnlock()

	sort.Strings(names)
	out := make([]LatencyStats, 0, len(names))
	for _, name := range names {
		out = append(out, t.Stats(name))
	}
	return out
}
