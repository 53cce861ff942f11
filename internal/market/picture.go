package market

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/core/analytics"
	"hyperliquid-market-aggregator/internal/core/model"
)

// 降级标记
const (
	flagCoinNotFound = "coin_not_found"
	flagCtxsError    = "ctxs_error:"
	flagOBError      = "ob_error:"
	flagOBEmpty      = "ob_empty"
	flagTradesError  = "trades_error:"
	flagTradesEmpty  = "trades_empty"
)

// BookSlice 订单簿前 N 档
type BookSlice struct {
	Bids []model.Level `json:"bids"`
	Asks []model.Level `json:"asks"`
}

// RawSlices 原始数据切片
type RawSlices struct {
	OrderBookTopN BookSlice       `json:"orderbookTopN"`
	RecentTrades  model.TradeList `json:"recentTradesM"`
}

// PictureAnalytics 全景视图中的分析结果
type PictureAnalytics struct {
	Imbalance      float64  `json:"imbalance"`
	VWAP           *float64 `json:"vwap"`
	VWAPDrift      *float64 `json:"vwapDrift"`
	TradeImbalance float64  `json:"tradeImbalance"`
	TradeCount     int      `json:"tradeCount"`
}

// TTLHints 数据新鲜度提示（秒）
type TTLHints struct {
	CtxsSec float64 `json:"ctxsSec"`
	WSSec   float64 `json:"wsSec"`
}

// PictureMeta 全景视图元信息
type PictureMeta struct {
	Network  string   `json:"network"`
	Sources  []string `json:"sources"`
	TTLHints TTLHints `json:"ttlHints"`
	// Flags 降级标记，各数据源失败时追加
	Flags []string `json:"flags"`
}

// Picture 单币种全景视图
type Picture struct {
	Coin           string               `json:"coin"`
	TsMs           int64                `json:"ts"`
	MarketSnapshot model.MarketSnapshot `json:"marketSnapshot"`
	RawSlices      RawSlices            `json:"rawSlices"`
	Analytics      PictureAnalytics     `json:"analytics"`
	Signal         model.Signal         `json:"signal"`
	Meta           PictureMeta          `json:"meta"`
}

// FullMarketPicture 合并资产上下文、订单簿与成交的全景视图
// 三个数据源并发获取，任一失败只追加标记，不影响其他部分
// 参数 depth: 订单簿档位，<=0 时使用配置默认值
// 参数 trades: 成交数，<=0 时使用配置默认值
func (s *Service) FullMarketPicture(ctx context.Context, net, c string, depth, trades int) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	p := s.picture(ctx, n, cc, orDefault(depth, s.cfg.Query.OrderBookDepth), orDefault(trades, s.cfg.Query.PictureTrades))
	mid := "null"
	if p.MarketSnapshot.Mid != nil {
		mid = fmt.Sprintf("%g", *p.MarketSnapshot.Mid)
	}
	return success(p, "%s mid %s signal %s (%.3f) flags %d", cc, mid, p.Signal.Label, p.Signal.Score, len(p.Meta.Flags))
}

// picture 拼装全景视图，n 与 cc 已规范化
func (s *Service) picture(ctx context.Context, n, cc string, depth, trades int) *Picture {
	var (
		ac      *model.AssetContext
		book    *model.OrderBook
		list    model.TradeList
		ctxsErr error
		obErr   error
		trErr   error
		found   = true
	)

	var g errgroup.Group
	g.Go(func() error {
		m, err := s.contexts(ctx, n)
		if err != nil {
			ctxsErr = err
			return nil
		}
		if v, ok := m.Context(cc); ok {
			ac = &v
		} else {
			found = false
		}
		return nil
	})
	g.Go(func() error {
		book, obErr = s.orderBook(ctx, n, cc, depth)
		return nil
	})
	g.Go(func() error {
		list, trErr = s.trades(ctx, n, cc, trades)
		return nil
	})
	_ = g.Wait()

	flags := make([]string, 0, 4)
	switch {
	case ctxsErr != nil:
		flags = append(flags, flagCtxsError+ctxsErr.Error())
	case !found:
		flags = append(flags, flagCoinNotFound)
	}
	switch {
	case obErr != nil && isNoData(obErr):
		flags = append(flags, flagOBEmpty)
	case obErr != nil:
		flags = append(flags, flagOBError+obErr.Error())
	}
	switch {
	case trErr != nil && isNoData(trErr):
		flags = append(flags, flagTradesEmpty)
	case trErr != nil:
		flags = append(flags, flagTradesError+trErr.Error())
	}
	if book == nil {
		book = model.NewOrderBook(cc)
	}
	if list == nil {
		list = model.TradeList{}
	}
	if len(flags) > 0 {
		s.logger.Debug("全景视图降级", zap.String("network", n), zap.String("coin", cc), zap.Strings("flags", flags))
	}

	obm := analytics.OrderBook(book, analytics.DefaultTopN)
	trm := analytics.Trades(list, obm.Mid)

	ts := s.now()
	snap := model.MarketSnapshot{
		Coin:       cc,
		TsMs:       ts,
		Mid:        obm.Mid,
		Spread:     obm.Spread,
		SpreadBps:  obm.SpreadBps,
		TobVolumes: obm.TobVolumes,
		Depth:      obm.Depth,
	}
	if ac != nil {
		snap.Funding = ac.Funding
		snap.Premium = ac.Premium
		snap.OI = ac.OpenInterest
		snap.Vol24h = ac.DayNtlVlm
	}

	features := model.Features{
		VWAPDrift: trm.VWAPDrift,
		Funding:   snap.Funding,
	}
	if !book.Empty() {
		features.OBImbalance = model.Float(obm.Imbalance)
	}

	return &Picture{
		Coin:           cc,
		TsMs:           ts,
		MarketSnapshot: snap,
		RawSlices: RawSlices{
			OrderBookTopN: BookSlice{Bids: book.Bids, Asks: book.Asks},
			RecentTrades:  list,
		},
		Analytics: PictureAnalytics{
			Imbalance:      obm.Imbalance,
			VWAP:           trm.VWAP,
			VWAPDrift:      trm.VWAPDrift,
			TradeImbalance: trm.TradeImbalance,
			TradeCount:     trm.Count,
		},
		Signal: s.signal.Evaluate(features),
		Meta: PictureMeta{
			Network: n,
			Sources: []string{"Info", "WS"},
			TTLHints: TTLHints{
				CtxsSec: config.Millis(s.cfg.Cache.ContextsTTLMs).Seconds(),
				WSSec:   config.Millis(s.cfg.Cache.OrderBookTTLMs).Seconds(),
			},
			Flags: flags,
		},
	}
}

// BatchFullMarketPicture 多个币种的全景视图
// 并发度受配置限制；单个币种的输入错误只影响该币种的条目
func (s *Service) BatchFullMarketPicture(ctx context.Context, net string, coins []string, depth, trades int) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	if len(coins) == 0 {
		return failure(invalid("coins must not be empty"))
	}
	depth = orDefault(depth, s.cfg.Query.BatchDepth)
	trades = orDefault(trades, s.cfg.Query.PictureTrades)

	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(coins))
	)
	put := func(key string, r Result) {
		mu.Lock()
		out[key] = r
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.Query.BatchConcurrency))
	seen := make(map[string]struct{}, len(coins))
	for _, raw := range coins {
		cc, err := coin(raw)
		if err != nil {
			put(raw, failure(err))
			continue
		}
		if _, dup := seen[cc]; dup {
			continue
		}
		seen[cc] = struct{}{}
		g.Go(func() error {
			p := s.picture(gctx, n, cc, depth, trades)
			put(cc, Result{OK: true, Data: p})
			return nil
		})
	}
	_ = g.Wait()
	return success(out, "coins %d", len(out))
}
