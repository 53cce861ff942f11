package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
	"hyperliquid-market-aggregator/internal/metadata"
	"hyperliquid-market-aggregator/internal/stats/telemetry"
	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// fakeCollector 按 type:coin 返回预置消息
type fakeCollector struct {
	mu    sync.Mutex
	msgs  map[string][]hyperliquid.Message
	calls map[string]int
	maxes map[string]int
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		msgs:  make(map[string][]hyperliquid.Message),
		calls: make(map[string]int),
		maxes: make(map[string]int),
	}
}

func (f *fakeCollector) add(typ, coin string, raws ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := typ + ":" + coin
	for _, r := range raws {
		f.msgs[key] = append(f.msgs[key], hyperliquid.Message{Channel: typ, Raw: json.RawMessage(r), ReceivedAt: time.Now()})
	}
}

func (f *fakeCollector) Collect(_ context.Context, _ string, desc hyperliquid.Descriptor, max int, _ time.Duration) []hyperliquid.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := desc.Type() + ":" + desc.Coin()
	f.calls[key]++
	f.maxes[key] = max
	return append([]hyperliquid.Message(nil), f.msgs[key]...)
}

func (f *fakeCollector) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeCollector) lastMax(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxes[key]
}

// fakeInfo 内存版 info 接口
type fakeInfo struct {
	mu         sync.Mutex
	oi         string
	ctxsErr    error
	ctxsCalls  int
	state      *metadata.ClearinghouseState
	stateErr   error
	funding    []metadata.UserFundingEntry
	fundingErr error
	caps       []string
	posted     []map[string]any
	dexes      []string
}

func (f *fakeInfo) Post(_ context.Context, _ string, payload map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.posted = append(f.posted, payload)
	f.mu.Unlock()
	return json.RawMessage(`{"echo":true}`), nil
}

func (f *fakeInfo) MetaAndAssetCtxs(_ context.Context, _ string) (*hyperliquid.MetaAndAssetCtxs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxsCalls++
	if f.ctxsErr != nil {
		return nil, f.ctxsErr
	}
	oi := f.oi
	if oi == "" {
		oi = "1000"
	}
	raw := fmt.Sprintf(`[{"universe":[{"name":"BTC","szDecimals":5},{"name":"ETH","szDecimals":4}]},`+
		`[{"funding":"0.0001","premium":"0.0002","openInterest":"%s","markPx":"100.4","oraclePx":"100.3","dayNtlVlm":"5000000"},`+
		`{"funding":"-0.0003","openInterest":"200","markPx":"10"}]]`, oi)
	return hyperliquid.DecodeMetaAndAssetCtxs([]byte(raw))
}

func (f *fakeInfo) Meta(_ context.Context, _, dex string) (*hyperliquid.Meta, error) {
	f.mu.Lock()
	f.dexes = append(f.dexes, dex)
	f.mu.Unlock()
	return &hyperliquid.Meta{Universe: []hyperliquid.AssetMeta{{Name: "BTC"}, {Name: "ETH"}}}, nil
}

func (f *fakeInfo) ClearinghouseState(_ context.Context, _, _, dex string) (*metadata.ClearinghouseState, error) {
	f.mu.Lock()
	f.dexes = append(f.dexes, dex)
	f.mu.Unlock()
	return f.state, f.stateErr
}

func (f *fakeInfo) UserNonFundingLedgerUpdates(_ context.Context, _, _ string, startMs, _ int64) ([]metadata.LedgerUpdate, error) {
	return []metadata.LedgerUpdate{
		{Time: startMs, Delta: map[string]any{"type": "deposit", "usdc": "100"}},
		{Time: startMs + 1, Delta: map[string]any{"type": "withdraw", "usdc": "5"}},
	}, nil
}

func (f *fakeInfo) ActiveAssetData(_ context.Context, _, user, coin string) (*metadata.ActiveAssetData, error) {
	return &metadata.ActiveAssetData{User: user, Coin: coin, Leverage: metadata.Leverage{Type: "cross", Value: 20}, MarkPx: "100.5"}, nil
}

func (f *fakeInfo) PerpDexs(_ context.Context, _ string) ([]*metadata.PerpDex, error) {
	return []*metadata.PerpDex{nil, {Name: "test"}}, nil
}

func (f *fakeInfo) PerpDexLimits(_ context.Context, _, dex string) (*metadata.PerpDexLimits, error) {
	if dex != "test" {
		return nil, nil
	}
	return &metadata.PerpDexLimits{TotalOiCap: "10000000.0", OiSzCapPerPerp: "100000.0"}, nil
}

func (f *fakeInfo) PerpDeployAuctionStatus(_ context.Context, _ string) (*metadata.PerpDeployAuctionStatus, error) {
	return &metadata.PerpDeployAuctionStatus{StartTimeSeconds: 1747656000, DurationSeconds: 111600}, nil
}

func (f *fakeInfo) UserFunding(_ context.Context, _, _ string, _, _ int64) ([]metadata.UserFundingEntry, error) {
	return f.funding, f.fundingErr
}

func (f *fakeInfo) FundingHistory(_ context.Context, _, coin string, startMs, _ int64) ([]metadata.FundingHistoryEntry, error) {
	return []metadata.FundingHistoryEntry{{Coin: coin, FundingRate: "0.0001", Time: startMs}}, nil
}

func (f *fakeInfo) PredictedFundings(_ context.Context, _ string) (json.RawMessage, error) {
	return json.RawMessage(`[["BTC",[]],["ETH",[]]]`), nil
}

func (f *fakeInfo) PerpsAtOpenInterestCap(_ context.Context, _ string) ([]string, error) {
	return f.caps, nil
}

const (
	btcBook = `{"channel":"l2Book","data":{"coin":"BTC","time":1700000000000,"levels":[` +
		`[{"px":"100","sz":"2","n":1},{"px":"99","sz":"5","n":2}],` +
		`[{"px":"101","sz":"3","n":1},{"px":"102","sz":"4","n":3}]]}}`
	btcTrades = `{"channel":"trades","data":[` +
		`{"coin":"BTC","side":"B","px":"100","sz":"1","time":1,"tid":1},` +
		`{"coin":"BTC","side":"A","px":"101","sz":"1","time":2,"tid":2}]}`
)

func newTestService(info *fakeInfo, coll *fakeCollector) (*Service, *timeutil.ManualClock, *telemetry.Telemetry) {
	clock := timeutil.NewManualClock(time.UnixMilli(1_700_000_000_000))
	tel := telemetry.New(0)
	svc := NewService(Deps{
		Config:    config.Default(),
		Info:      info,
		Collector: coll,
		Telemetry: tel,
		Clock:     clock.Now,
	})
	return svc, clock, tel
}

func TestInvalidInputRejected(t *testing.T) {
	svc, _, _ := newTestService(&fakeInfo{}, newFakeCollector())
	ctx := context.Background()

	tests := []struct {
		name string
		res  Result
	}{
		{"未知网络", svc.OrderBook(ctx, "devnet", "BTC", 0)},
		{"空币种", svc.RecentTrades(ctx, "mainnet", "  ", 0)},
		{"非法方向", svc.Slippage(ctx, "mainnet", "BTC", "hold", 100, 0)},
		{"非正金额", svc.Slippage(ctx, "mainnet", "BTC", "buy", 0, 0)},
		{"负均线窗口", svc.Trend(ctx, "mainnet", "BTC", -1, 50)},
		{"非法地址", svc.ClearinghouseState(ctx, "mainnet", "0x123", "")},
		{"资金费记录非法地址", svc.UserFunding(ctx, "mainnet", "0xzz", 0, 0)},
		{"资金变动非法地址", svc.UserNonFundingLedgerUpdates(ctx, "mainnet", "", 0, 0)},
		{"资产数据非法地址", svc.ActiveAssetData(ctx, "mainnet", "0x12", "BTC")},
		{"资产数据空币种", svc.ActiveAssetData(ctx, "mainnet", "0x0123456789abcdef0123456789abcdef01234567", "")},
		{"空 DEX", svc.PerpDexLimits(ctx, "mainnet", "  ")},
		{"盈亏非法地址", svc.UserPnLSummary(ctx, "mainnet", "abc", 7)},
		{"缺少 type", svc.InfoRaw(ctx, "mainnet", map[string]any{"coin": "BTC"})},
		{"空批量", svc.BatchFullMarketPicture(ctx, "mainnet", nil, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.res.OK || tt.res.Kind != FailureInput {
				t.Fatalf("期望输入错误, got ok=%v kind=%q err=%q", tt.res.OK, tt.res.Kind, tt.res.Error)
			}
		})
	}
}

func TestOrderBookCached(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "BTC", btcBook)
	svc, clock, tel := newTestService(&fakeInfo{}, coll)
	ctx := context.Background()

	res := svc.OrderBook(ctx, "mainnet", "btc", 10)
	if !res.OK {
		t.Fatalf("订单簿查询失败: %s", res.Error)
	}
	if res.Summary != "bb 100 ba 101 levels 2/2" {
		t.Fatalf("摘要不符: %q", res.Summary)
	}
	svc.OrderBook(ctx, "mainnet", "BTC", 10)
	if n := coll.count("l2Book:BTC"); n != 1 {
		t.Fatalf("有效期内应只采集一次, got %d", n)
	}
	if snap := tel.Snapshot(); snap.CacheHits != 1 || snap.StreamCollects != 1 {
		t.Fatalf("遥测计数不符: %+v", snap)
	}

	clock.Advance(3 * time.Second)
	svc.OrderBook(ctx, "mainnet", "BTC", 10)
	if n := coll.count("l2Book:BTC"); n != 2 {
		t.Fatalf("过期后应重新采集, got %d", n)
	}
}

func TestOrderBookNoDataTriesVariants(t *testing.T) {
	coll := newFakeCollector()
	svc, _, _ := newTestService(&fakeInfo{}, coll)

	res := svc.OrderBook(context.Background(), "testnet", "SOL", 5)
	if res.OK || res.Kind != FailureUnavailable {
		t.Fatalf("无数据应返回 unavailable, got %+v", res)
	}
	for _, v := range hyperliquid.OrderBookVariants {
		if coll.count(v+":SOL") != 1 {
			t.Fatalf("应尝试订阅写法 %s", v)
		}
	}
	// 无数据不写缓存
	svc.OrderBook(context.Background(), "testnet", "SOL", 5)
	if coll.count("l2Book:SOL") != 2 {
		t.Fatalf("无数据结果不应被缓存")
	}
}

func TestRecentTradesAndVolatility(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelTrades, "BTC", btcTrades)
	svc, _, _ := newTestService(&fakeInfo{}, coll)
	ctx := context.Background()

	res := svc.RecentTrades(ctx, "mainnet", "BTC", 0)
	if !res.OK || res.Summary != "trades 2 last 101" {
		t.Fatalf("最近成交不符: %+v", res)
	}
	if coll.lastMax("trades:BTC") != DefaultRecentTrades {
		t.Fatalf("默认消息数应为 %d", DefaultRecentTrades)
	}

	vol := svc.Volatility(ctx, "mainnet", "BTC", 0)
	if !vol.OK {
		t.Fatalf("波动率失败: %s", vol.Error)
	}
	v := vol.Data.(VolatilityReadout)
	if v.RealizedVol == nil || v.ATR != nil || v.Samples != 2 {
		t.Fatalf("波动率结果不符: %+v", v)
	}
}


// gatedCollector 等待放行后返回订单簿，放行时调用方 ctx 已取消则返回空
type gatedCollector struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedCollector) Collect(ctx context.Context, _ string, desc hyperliquid.Descriptor, _ int, _ time.Duration) []hyperliquid.Message {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	if ctx.Err() != nil || desc.Coin() != "BTC" {
		return nil
	}
	return []hyperliquid.Message{{Channel: desc.Type(), Raw: json.RawMessage(btcBook)}}
}

func TestOrderBookLoadSurvivesCallerCancel(t *testing.T) {
	coll := &gatedCollector{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(Deps{Info: &fakeInfo{}, Collector: coll})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- svc.OrderBook(ctx, "mainnet", "BTC", 10) }()

	<-coll.entered
	cancel()
	close(coll.release)

	if res := <-done; !res.OK {
		t.Fatalf("首个调用者取消不应中断共享的采集: %+v", res)
	}
	res := svc.OrderBook(context.Background(), "mainnet", "BTC", 10)
	if !res.OK || res.Summary != "bb 100 ba 101 levels 2/2" {
		t.Fatalf("后续调用应命中缓存: %+v", res)
	}
	if n := coll.calls.Load(); n != 1 {
		t.Fatalf("应只采集一次, got %d", n)
	}
}
