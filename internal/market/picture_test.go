package market

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hyperliquid-market-aggregator/internal/core/analytics"
	"hyperliquid-market-aggregator/internal/core/model"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
)

func TestFullMarketPictureFused(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "BTC", btcBook)
	coll.add(hyperliquid.ChannelTrades, "BTC", btcTrades)
	svc, clock, _ := newTestService(&fakeInfo{}, coll)

	res := svc.FullMarketPicture(context.Background(), "mainnet", "BTC", 10, 0)
	if !res.OK {
		t.Fatalf("全景视图失败: %s", res.Error)
	}
	p := res.Data.(*Picture)
	if len(p.Meta.Flags) != 0 {
		t.Fatalf("全部数据源可用时不应有标记: %v", p.Meta.Flags)
	}
	snap := p.MarketSnapshot
	if snap.Mid == nil || *snap.Mid != 100.5 || snap.Spread == nil || *snap.Spread != 1 {
		t.Fatalf("快照中间价/价差不符: %+v", snap)
	}
	if snap.Depth.BidTopN != 7 || snap.Depth.AskTopN != 7 || p.Analytics.Imbalance != 0 {
		t.Fatalf("深度/不平衡度不符: %+v imb=%v", snap.Depth, p.Analytics.Imbalance)
	}
	if snap.OI == nil || *snap.OI != 1000 || snap.Vol24h == nil || snap.Funding == nil {
		t.Fatalf("资产上下文字段缺失: %+v", snap)
	}
	if p.Analytics.VWAP == nil || *p.Analytics.VWAP != 100.5 || p.Analytics.TradeCount != 2 {
		t.Fatalf("成交指标不符: %+v", p.Analytics)
	}
	if p.Signal.Label != model.SignalNeutral || len(p.Signal.Reasons) == 0 {
		t.Fatalf("信号不符: %+v", p.Signal)
	}
	if p.TsMs != clock.Now().UnixMilli() || p.Meta.Network != "mainnet" {
		t.Fatalf("元信息不符: ts=%d meta=%+v", p.TsMs, p.Meta)
	}
	if p.Meta.TTLHints.CtxsSec != 5 || p.Meta.TTLHints.WSSec != 2 {
		t.Fatalf("TTL 提示不符: %+v", p.Meta.TTLHints)
	}
	if !strings.HasPrefix(res.Summary, "BTC mid 100.5 signal neutral") {
		t.Fatalf("摘要不符: %q", res.Summary)
	}
}

func TestFullMarketPictureDegraded(t *testing.T) {
	info := &fakeInfo{ctxsErr: errors.New("connection refused")}
	svc, _, _ := newTestService(info, newFakeCollector())

	res := svc.FullMarketPicture(context.Background(), "testnet", "BTC", 0, 0)
	if !res.OK {
		t.Fatalf("部分失败不应中止查询: %s", res.Error)
	}
	p := res.Data.(*Picture)
	want := []string{flagCtxsError + "connection refused", flagOBEmpty, flagTradesEmpty}
	if len(p.Meta.Flags) != len(want) {
		t.Fatalf("标记不符: %v", p.Meta.Flags)
	}
	for i, f := range want {
		if p.Meta.Flags[i] != f {
			t.Fatalf("第 %d 个标记应为 %q, got %q", i, f, p.Meta.Flags[i])
		}
	}
	if p.MarketSnapshot.Mid != nil || p.Signal.Label != model.SignalNeutral || p.Signal.Score != 0 {
		t.Fatalf("无数据时快照与信号应为空: %+v %+v", p.MarketSnapshot, p.Signal)
	}
	if p.RawSlices.RecentTrades == nil {
		t.Fatalf("成交切片不应为 nil")
	}
}

func TestFullMarketPictureUnknownCoin(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "SOL", strings.ReplaceAll(btcBook, "BTC", "SOL"))
	svc, _, _ := newTestService(&fakeInfo{}, coll)

	res := svc.FullMarketPicture(context.Background(), "mainnet", "sol", 0, 0)
	p := res.Data.(*Picture)
	if p.Meta.Flags[0] != flagCoinNotFound {
		t.Fatalf("未知币种应标注 %s, got %v", flagCoinNotFound, p.Meta.Flags)
	}
	if p.MarketSnapshot.Funding != nil || p.MarketSnapshot.Mid == nil {
		t.Fatalf("未知币种时资金费率应为 nil 且订单簿指标保留: %+v", p.MarketSnapshot)
	}
}

func TestBatchFullMarketPicture(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "BTC", btcBook)
	svc, _, _ := newTestService(&fakeInfo{}, coll)

	res := svc.BatchFullMarketPicture(context.Background(), "mainnet", []string{"btc", "BTC", "", "eth"}, 0, 0)
	if !res.OK || res.Summary != "coins 3" {
		t.Fatalf("批量结果不符: %+v", res)
	}
	out := res.Data.(map[string]Result)
	if r, ok := out[""]; !ok || r.OK || r.Kind != FailureInput {
		t.Fatalf("空币种应单独失败: %+v", r)
	}
	btc := out["BTC"].Data.(*Picture)
	if btc.MarketSnapshot.Mid == nil {
		t.Fatalf("BTC 全景视图缺少中间价")
	}
	eth := out["ETH"].Data.(*Picture)
	if eth.MarketSnapshot.Mid != nil || len(eth.Meta.Flags) == 0 {
		t.Fatalf("ETH 无行情时应降级: %+v", eth.Meta)
	}
	if n := coll.count("l2Book:BTC"); n != 1 {
		t.Fatalf("重复币种应去重, 采集 %d 次", n)
	}
}

func TestOpenInterestTrendDelta(t *testing.T) {
	info := &fakeInfo{oi: "1000"}
	svc, clock, _ := newTestService(info, newFakeCollector())
	ctx := context.Background()

	first := svc.OpenInterestTrend(ctx, "mainnet", "BTC").Data.(OITrend)
	if first.OpenInterest == nil || *first.OpenInterest != 1000 || first.Delta != nil {
		t.Fatalf("首次查询 delta 应为 nil: %+v", first)
	}

	clock.Advance(10 * time.Second)
	info.mu.Lock()
	info.oi = "1050"
	info.mu.Unlock()
	res := svc.OpenInterestTrend(ctx, "mainnet", "BTC")
	second := res.Data.(OITrend)
	if second.Delta == nil || *second.Delta != 50 {
		t.Fatalf("10 秒后 delta 应为 50: %+v", second)
	}
	if res.Summary != "OI 1050 Δ 50" {
		t.Fatalf("摘要不符: %q", res.Summary)
	}

	clock.Advance(61 * time.Second)
	third := svc.OpenInterestTrend(ctx, "mainnet", "BTC").Data.(OITrend)
	if third.Delta != nil || third.Previous != nil {
		t.Fatalf("超过保留时间后上一次读数应失效: %+v", third)
	}

	missing := svc.OpenInterestTrend(ctx, "mainnet", "DOGE").Data.(OITrend)
	if missing.OpenInterest != nil || len(missing.Flags) != 1 {
		t.Fatalf("未知币种应返回 nil 并标注: %+v", missing)
	}
}

func TestPremium(t *testing.T) {
	svc, _, _ := newTestService(&fakeInfo{}, newFakeCollector())

	res := svc.Premium(context.Background(), "mainnet", "BTC")
	v := res.Data.(PremiumView)
	if v.Premium == nil || *v.Premium != 0.0002 || v.ZScore != nil {
		t.Fatalf("溢价读数不符: %+v", v)
	}
	if res.Summary != "prem 0.0002 fund 0.0001" {
		t.Fatalf("摘要不符: %q", res.Summary)
	}
}

func TestSlippageOutcomes(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "BTC", btcBook)
	coll.add(hyperliquid.ChannelL2Book, "ETH", `{"channel":"l2Book","data":{"coin":"ETH","levels":[[{"px":"10","sz":"1"}],[]]}}`)
	svc, _, _ := newTestService(&fakeInfo{}, coll)
	ctx := context.Background()

	res := svc.Slippage(ctx, "mainnet", "BTC", "buy", 300, 0)
	if !res.OK {
		t.Fatalf("滑点估算失败: %s", res.Error)
	}
	est := res.Data.(analytics.SlippageEstimate)
	if est.FilledUnits <= 0 || est.AvgFillPrice < 101 || est.AvgFillPrice > 102 {
		t.Fatalf("买单成交不符: %+v", est)
	}

	tests := []struct {
		name string
		coin string
		side string
		want string
	}{
		{"单边订单簿买入", "ETH", "buy", "Insufficient depth"},
		{"无行情", "SOL", "sell", "No mid price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := svc.Slippage(ctx, "mainnet", tt.coin, tt.side, 100, 0)
			if r.OK || r.Kind != FailureUnavailable || r.Error != tt.want {
				t.Fatalf("期望 %q, got %+v", tt.want, r)
			}
		})
	}
}

func TestLiquidityAndTrend(t *testing.T) {
	coll := newFakeCollector()
	coll.add(hyperliquid.ChannelL2Book, "BTC", btcBook)
	coll.add(hyperliquid.ChannelTrades, "BTC", btcTrades)
	svc, _, _ := newTestService(&fakeInfo{}, coll)
	ctx := context.Background()

	liq := svc.LiquidityProfile(ctx, "mainnet", "BTC", 0)
	p := liq.Data.(analytics.LiquidityProfile)
	if liq.Summary != "levels 2/2" || p.Bid[1].CumulativeSize != 7 {
		t.Fatalf("流动性分布不符: %+v", liq)
	}

	tr := svc.Trend(ctx, "mainnet", "BTC", 0, 0)
	if !tr.OK || tr.Summary != "neutral: null/null" {
		t.Fatalf("样本不足时均线应为 null: %+v", tr)
	}
	if got := coll.lastMax("trades:BTC"); got != DefaultLongWindow*5 {
		t.Fatalf("默认长窗口应采集 %d 笔, got %d", DefaultLongWindow*5, got)
	}
	svc.Trend(ctx, "mainnet", "BTC", 5, 10)
	if got := coll.lastMax("trades:BTC"); got != minTrendTrades {
		t.Fatalf("至少采集 %d 笔, got %d", minTrendTrades, got)
	}
}
