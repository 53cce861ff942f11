// Package analytics 实现基于归一化订单簿与成交列表的纯函数指标。
// 输入缺失或无法计算时返回 nil（指标不可用），不返回错误；
// 只有滑点这类需要给出明确失败原因的计算才返回 error。
package analytics

import (
	"hyperliquid-market-aggregator/internal/core/model"
)

// DefaultTopN 订单簿深度与不平衡度统计的档位数
const DefaultTopN = 10

// BookMetrics 订单簿指标
type BookMetrics struct {
	// Mid 中间价；只有一侧时取该侧最优价
	Mid *float64 `json:"mid"`
	// Spread 卖一减买一，两侧都有时才有值
	Spread *float64 `json:"spread"`
	// SpreadBps 价差基点
	SpreadBps *float64 `json:"spreadBps"`
	// TobVolumes 买一卖一数量
	TobVolumes model.TopOfBook `json:"tobVolumes"`
	// Depth 前 N 档累计数量
	Depth model.DepthSummary `json:"depth"`
	// Imbalance (bidTopN - askTopN) / (bidTopN + askTopN)，两侧都为 0 时为 0
	Imbalance float64 `json:"imbalance"`
}

// OrderBook 计算订单簿指标
// 参数 book: 归一化订单簿，可以为 nil
// 参数 topN: 统计档位数，<=0 时使用 DefaultTopN
func OrderBook(book *model.OrderBook, topN int) BookMetrics {
	if topN <= 0 {
		topN = DefaultTopN
	}
	m := BookMetrics{Depth: model.DepthSummary{Levels: topN}}

	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()

	switch {
	case hasBid && hasAsk:
		m.Mid = model.Float((bid.Price + ask.Price) / 2)
		m.Spread = model.Float(ask.Price - bid.Price)
		if *m.Mid != 0 {
			m.SpreadBps = model.Float(*m.Spread / *m.Mid * 10000)
		}
	case hasBid:
		m.Mid = model.Float(bid.Price)
	case hasAsk:
		m.Mid = model.Float(ask.Price)
	}

	if hasBid {
		m.TobVolumes.Bid = bid.Size
	}
	if hasAsk {
		m.TobVolumes.Ask = ask.Size
	}

	if book != nil {
		m.Depth.BidTopN = sumSize(book.Bids, topN)
		m.Depth.AskTopN = sumSize(book.Asks, topN)
	}
	total := m.Depth.BidTopN + m.Depth.AskTopN
	if total > 0 {
		m.Imbalance = (m.Depth.BidTopN - m.Depth.AskTopN) / total
	}
	return m
}

func sumSize(levels []model.Level, n int) float64 {
	var total float64
	for i, lv := range levels {
		if i >= n {
			break
		}
		total += lv.Size
	}
	return total
}
