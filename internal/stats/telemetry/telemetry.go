// Package telemetry 汇总上游调用、流采集与缓存命中计数。
// 计数同时以原子变量（供 Metrics 查询）和 Prometheus 计数器（供 /metrics 抓取）两种形式存在。
package telemetry

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyperliquid-market-aggregator/internal/stats/latency"
)

const namespace = "hyperliquid_aggregator"

// Snapshot 计数快照
type Snapshot struct {
	// InfoCalls info 接口调用次数
	InfoCalls int64 `json:"info_calls"`
	// InfoErrors info 接口失败次数
	InfoErrors int64 `json:"info_errors"`
	// StreamCollects 流采集次数
	StreamCollects int64 `json:"stream_collects"`
	// StreamEmpty 未取到任何消息的采集次数
	StreamEmpty int64 `json:"stream_empty"`
	// CacheHits 缓存命中
	CacheHits int64 `json:"cache_hits"`
	// CacheMisses 缓存未命中
	CacheMisses int64 `json:"cache_misses"`
	// Latency 各来源耗时分位数
	Latency []latency.LatencyStats `json:"latency"`
}

// Telemetry 遥测汇总
type Telemetry struct {
	infoCalls      atomic.Int64
	infoErrors     atomic.Int64
	streamCollects atomic.Int64
	streamEmpty    atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64

	registry       *prometheus.Registry
	infoCallsVec   *prometheus.CounterVec
	infoErrorsVec  *prometheus.CounterVec
	collectsVec    *prometheus.CounterVec
	emptyVec       *prometheus.CounterVec
	cacheLookupVec *prometheus.CounterVec

	latency *latency.Tracker
}

// New 创建遥测汇总，使用独立的 Prometheus registry
// 参数 latencyWindow: 耗时滚动窗口大小
func New(latencyWindow int) *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		infoCallsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "info_calls_total",
			Help:      "Number of info endpoint requests",
		}, []string{"network", "type"}),
		infoErrorsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "info_errors_total",
			Help:      "Number of failed info endpoint requests",
		}, []string{"network", "type"}),
		collectsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_collects_total",
			Help:      "Number of stream collect calls",
		}, []string{"network", "channel"}),
		emptyVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_empty_collects_total",
			Help:      "Number of stream collect calls that returned no message",
		}, []string{"network", "channel"}),
		cacheLookupVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Number of cache lookups by data class and result",
		}, []string{"class", "result"}),
		latency: latency.NewTracker(latencyWindow),
	}

	t.registry.MustRegister(
		t.infoCallsVec,
		t.infoErrorsVec,
		t.collectsVec,
		t.emptyVec,
		t.cacheLookupVec,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return t
}

// InfoCall 记录一次 info 请求
func (t *Telemetry) InfoCall(network, typ string, elapsed time.Duration, err error) {
	t.infoCalls.Add(1)
	t.infoCallsVec.WithLabelValues(network, typ).Inc()
	t.latency.Observe("info:"+typ, elapsed)
	if err != nil {
		t.infoErrors.Add(1)
		t.infoErrorsVec.WithLabelValues(network, typ).Inc()
	}
}

// StreamCollect 记录一次流采集
func (t *Telemetry) StreamCollect(network, channel string, messages int, elapsed time.Duration) {
	t.streamCollects.Add(1)
	t.collectsVec.WithLabelValues(network, channel).Inc()
	t.latency.Observe("ws:"+channel, elapsed)
	if messages == 0 {
		t.streamEmpty.Add(1)
		t.emptyVec.WithLabelValues(network, channel).Inc()
	}
}

// CacheHit 实现 cache.Observer
func (t *Telemetry) CacheHit(key string) {
	t.cacheHits.Add(1)
	t.cacheLookupVec.WithLabelValues(keyClass(key), "hit").Inc()
}

// CacheMiss 实现 cache.Observer
func (t *Telemetry) CacheMiss(key string) {
	t.cacheMisses.Add(1)
	t.cacheLookupVec.WithLabelValues(keyClass(key), "miss").Inc()
}

// keyClass 缓存键的数据类别，如 ob:mainnet:BTC:50 -> ob
func keyClass(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// Snapshot 当前计数
func (t *Telemetry) Snapshot() Snapshot {
	return Snapshot{
		InfoCalls:      t.infoCalls.Load(),
		InfoErrors:     t.infoErrors.Load(),
		StreamCollects: t.streamCollects.Load(),
		StreamEmpty:    t.streamEmpty.Load(),
		CacheHits:      t.cacheHits.Load(),
		CacheMisses:    t.cacheMisses.Load(),
		Latency:        t.latency.All(),
	}
}

// Registry Prometheus registry
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Handler /metrics 处理器
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}
