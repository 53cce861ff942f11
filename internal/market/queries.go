package market

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/cache"
	"hyperliquid-market-aggregator/internal/core/analytics"
	"hyperliquid-market-aggregator/internal/core/model"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
	"hyperliquid-market-aggregator/internal/stats/latency"
)

// 默认参数
const (
	// DefaultRecentTrades 最近成交默认采集消息数
	DefaultRecentTrades = 5
	// DefaultShortWindow 短均线窗口
	DefaultShortWindow = 20
	// DefaultLongWindow 长均线窗口
	DefaultLongWindow = 50
	// minTrendTrades 趋势计算最少采集的成交数
	minTrendTrades = 200
)

// orDefault v 非正时返回 def
func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// MetaAndAssetContexts 元数据与全部资产上下文
func (s *Service) MetaAndAssetContexts(ctx context.Context, net string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	m, err := s.contexts(ctx, n)
	if err != nil {
		return failure(err)
	}
	return success(m, "universe %d / ctxs %d", len(m.Meta.Universe), len(m.Contexts))
}

// OrderBook 归一化订单簿
// 参数 depth: 每侧档位，<=0 时使用配置默认值
func (s *Service) OrderBook(ctx context.Context, net, c string, depth int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	depth = orDefault(depth, s.cfg.Query.OrderBookDepth)
	book, err := s.orderBook(ctx, n, cc, depth)
	if err != nil {
		return failure(err)
	}
	var bb, ba *float64
	if l, ok := book.BestBid(); ok {
		bb = model.Float(l.Price)
	}
	if l, ok := book.BestAsk(); ok {
		ba = model.Float(l.Price)
	}
	return success(book, "bb %s ba %s levels %d/%d", formatPtr(bb), formatPtr(ba), len(book.Bids), len(book.Asks))
}

// RecentTrades 最近成交
// 参数 limit: 最多采集的消息数与保留的成交数，<=0 时为 DefaultRecentTrades
func (s *Service) RecentTrades(ctx context.Context, net, c string, limit int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	limit = orDefault(limit, DefaultRecentTrades)
	list, err := s.trades(ctx, n, cc, limit)
	if err != nil {
		return failure(err)
	}
	var last *float64
	if t, ok := list.Last(); ok {
		last = model.Float(t.Price)
	}
	return success(list, "trades %d last %s", len(list), formatPtr(last))
}

// Slippage 按订单簿估算市价单滑点
// 参数 side: buy / sell
// 参数 notional: 名义金额
// 参数 depth: 使用的档位，<=0 时使用配置默认值
func (s *Service) Slippage(ctx context.Context, net, c, side string, notional float64, depth int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	sd, err := analytics.ParseSide(side)
	if err != nil {
		return failure(invalid("%v", err))
	}
	if notional <= 0 {
		return failure(invalid("%v", analytics.ErrInvalidNotional))
	}
	book, err := s.orderBook(ctx, n, cc, orDefault(depth, s.cfg.Query.AnalyticsDepth))
	if err != nil {
		if isNoData(err) {
			return unavailable("No mid price")
		}
		return failure(err)
	}
	est, err := analytics.Slippage(book, sd, notional)
	switch {
	case errors.Is(err, analytics.ErrNoMidPrice):
		return unavailable("No mid price")
	case errors.Is(err, analytics.ErrInsufficientDepth):
		return unavailable("Insufficient depth")
	case err != nil:
		return failure(invalid("%v", err))
	}
	return success(est, "avg %.4f slip %.2fbps", est.AvgFillPrice, est.SlippageBps)
}

// LiquidityProfile 两侧累计深度
func (s *Service) LiquidityProfile(ctx context.Context, net, c string, depth int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	book, err := s.orderBook(ctx, n, cc, orDefault(depth, s.cfg.Query.AnalyticsDepth))
	if err != nil {
		return failure(err)
	}
	p := analytics.Liquidity(book)
	return success(p, "levels %d/%d", len(p.Bid), len(p.Ask))
}

// VolatilityReadout 波动率结果
type VolatilityReadout struct {
	Coin string `json:"coin"`
	// RealizedVol 年化已实现波动率，不足两笔成交时为 nil
	RealizedVol *float64 `json:"realizedVol"`
	// ATR 没有 K 线数据，恒为 nil
	ATR *float64 `json:"atr"`
	// Samples 参与计算的成交数
	Samples int `json:"samples"`
}

// Volatility 基于最近成交的已实现波动率
func (s *Service) Volatility(ctx context.Context, net, c string, trades int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	list, err := s.trades(ctx, n, cc, orDefault(trades, s.cfg.Query.VolatilityTrades))
	if err != nil {
		return failure(err)
	}
	out := VolatilityReadout{Coin: cc, RealizedVol: analytics.RealizedVolatility(list), Samples: len(list)}
	if out.RealizedVol == nil {
		return success(out, "realizedVol null")
	}
	return success(out, "realizedVol %.4f", *out.RealizedVol)
}

// Trend 短/长均线趋势
// 采集 max(long·5, 200) 笔成交
func (s *Service) Trend(ctx context.Context, net, c string, short, long int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	if short < 0 || long < 0 {
		return failure(invalid("%v", analytics.ErrInvalidWindow))
	}
	short = orDefault(short, DefaultShortWindow)
	long = orDefault(long, DefaultLongWindow)
	list, err := s.trades(ctx, n, cc, max(long*5, minTrendTrades))
	if err != nil {
		return failure(err)
	}
	tr, err := analytics.Trend(list, short, long)
	if err != nil {
		return failure(invalid("%v", err))
	}
	return success(tr, "%s: %s/%s", tr.Cross, formatPtr(tr.SMAShort), formatPtr(tr.SMALong))
}

// PremiumView 溢价读数
type PremiumView struct {
	Coin string `json:"coin"`
	analytics.PremiumReadout
	Flags []string `json:"flags,omitempty"`
}

// Premium 溢价与资金费率
// 币种不在 universe 中时各值为 nil 并标注 coin_not_found
func (s *Service) Premium(ctx context.Context, net, c string) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	m, err := s.contexts(ctx, n)
	if err != nil {
		return failure(err)
	}
	view := PremiumView{Coin: cc}
	if ac, ok := m.Context(cc); ok {
		view.PremiumReadout = analytics.Premium(&ac)
	} else {
		view.Flags = append(view.Flags, flagCoinNotFound)
	}
	return success(view, "prem %s fund %s", formatPtr(view.Premium), formatPtr(view.Funding))
}

// OITrend 未平仓量变化
type OITrend struct {
	Coin         string   `json:"coin"`
	OpenInterest *float64 `json:"openInterest"`
	// Previous 上一次读数，超过保留时间后视为不存在
	Previous *float64 `json:"previous"`
	// Delta 相对上一次读数的变化
	Delta *float64 `json:"delta"`
	Flags []string `json:"flags,omitempty"`
}

// OpenInterestTrend 当前 OI 及相对上一次查询的变化
// 当前值缺失时不更新存储
func (s *Service) OpenInterestTrend(ctx context.Context, net, c string) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	m, err := s.contexts(ctx, n)
	if err != nil {
		return failure(err)
	}
	out := OITrend{Coin: cc}
	ac, ok := m.Context(cc)
	if !ok {
		out.Flags = append(out.Flags, flagCoinNotFound)
	}
	out.OpenInterest = ac.OpenInterest
	if out.OpenInterest != nil {
		if prev := s.oi.Swap(n, cc, *out.OpenInterest); prev != nil {
			out.Previous = model.Float(prev.Value)
		}
		out.Delta = analytics.OpenInterestDelta(out.OpenInterest, out.Previous)
	}
	return success(out, "OI %s Δ %s", formatPtr(out.OpenInterest), formatPtr(out.Delta))
}

// MetricsView 运行指标
type MetricsView struct {
	InfoCalls      int64                       `json:"info_calls"`
	InfoErrors     int64                       `json:"info_errors"`
	StreamCollects int64                       `json:"stream_collects"`
	StreamEmpty    int64                       `json:"stream_empty"`
	Cache          cache.Stats                 `json:"cache"`
	Latency        []latency.LatencyStats      `json:"latency"`
	Sessions       []hyperliquid.SessionStats `json:"sessions"`
}

// Metrics 进程内计数器、缓存命中与会话状态
func (s *Service) Metrics() Result {
	snap := s.tel.Snapshot()
	view := MetricsView{
		InfoCalls:      snap.InfoCalls,
		InfoErrors:     snap.InfoErrors,
		StreamCollects: snap.StreamCollects,
		StreamEmpty:    snap.StreamEmpty,
		Cache:          s.cache.Stats(),
		Latency:        snap.Latency,
	}
	if s.sessions != nil {
		view.Sessions = s.sessions.Stats()
	}
	s.logger.Debug("读取运行指标", zap.Int64("info_calls", snap.InfoCalls))
	return success(view, "info calls %d errors %d", snap.InfoCalls, snap.InfoErrors)
}
