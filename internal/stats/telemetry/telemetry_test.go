package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// counterValue 从 registry 中读取指定计数器（按标签求和）
func counterValue(t *testing.T, tel *Telemetry, name string) float64 {
	t.Helper()
	families, err := tel.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather 失败: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestTelemetry_Counters(t *testing.T) {
	tel := New(16)

	tel.InfoCall("mainnet", "metaAndAssetCtxs", 10*time.Millisecond, nil)
	tel.InfoCall("mainnet", "metaAndAssetCtxs", 20*time.Millisecond, errors.New("boom"))
	tel.InfoCall("testnet", "meta", time.Millisecond, nil)
	tel.StreamCollect("mainnet", "l2Book", 3, 5*time.Millisecond)
	tel.StreamCollect("mainnet", "trades", 0, 6*time.Second)
	tel.CacheHit("ob:mainnet:BTC:50")
	tel.CacheMiss("ob:mainnet:BTC:50")
	tel.CacheMiss("ctxs:mainnet")

	snap := tel.Snapshot()
	if snap.InfoCalls != 3 || snap.InfoErrors != 1 {
		t.Fatalf("info 计数错误: %+v", snap)
	}
	if snap.StreamCollects != 2 || snap.StreamEmpty != 1 {
		t.Fatalf("采集计数错误: %+v", snap)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 2 {
		t.Fatalf("缓存计数错误: %+v", snap)
	}
	if len(snap.Latency) != 4 {
		t.Fatalf("耗时来源数量=%d, want 4", len(snap.Latency))
	}

	if v := counterValue(t, tel, "hyperliquid_aggregator_info_calls_total"); v != 3 {
		t.Fatalf("prometheus info_calls_total=%v, want 3", v)
	}
	if v := counterValue(t, tel, "hyperliquid_aggregator_info_errors_total"); v != 1 {
		t.Fatalf("prometheus info_errors_total=%v, want 1", v)
	}
	if v := counterValue(t, tel, "hyperliquid_aggregator_cache_lookups_total"); v != 3 {
		t.Fatalf("prometheus cache_lookups_total=%v, want 3", v)
	}
}

func TestTelemetry_Handler(t *testing.T) {
	tel := New(16)
	tel.InfoCall("mainnet", "meta", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `hyperliquid_aggregator_info_calls_total{network="mainnet",type="meta"} 1`) {
		t.Fatalf("/metrics 输出缺少 info_calls_total:\n%s", body)
	}
}

func TestKeyClass(t *testing.T) {
	tests := map[string]string{
		"ob:mainnet:BTC:50":     "ob",
		"trades:testnet:ETH:30": "trades",
		"ctxs:mainnet":          "ctxs",
		"plain":                 "plain",
	}
	for in, want := range tests {
		if got := keyClass(in); got != want {
			t.Fatalf("keyClass(%s)=%s, want %s", in, got, want)
		}
	}
}
