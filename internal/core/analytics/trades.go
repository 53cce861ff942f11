package analytics

import (
	"hyperliquid-market-aggregator/internal/core/model"
)

// TradeMetrics 成交指标
type TradeMetrics struct {
	// VWAP 成交量加权均价，总成交量为 0 时为 nil
	VWAP *float64 `json:"vwap"`
	// TradeImbalance (buys - sells) / max(buys + sells, 1)
	TradeImbalance float64 `json:"tradeImbalance"`
	// VWAPDrift (VWAP - refMid) / refMid
	VWAPDrift *float64 `json:"vwapDrift"`
	// Count 参与计算的成交笔数
	Count int `json:"count"`
	// Buys 主动买笔数
	Buys int `json:"buys"`
	// Sells 主动卖笔数
	Sells int `json:"sells"`
}

// Trades 计算成交指标
// 参数 trades: 归一化成交，按到达顺序
// 参数 refMid: 参考中间价，可以为 nil
func Trades(trades model.TradeList, refMid *float64) TradeMetrics {
	var (
		notional float64
		volume   float64
		m        TradeMetrics
	)
	for _, t := range trades {
		notional += t.Price * t.Size
		volume += t.Size
		switch t.Side {
		case model.SideBuy:
			m.Buys++
		case model.SideSell:
			m.Sells++
		}
	}
	m.Count = len(trades)

	if volume > 0 {
		m.VWAP = model.Float(notional / volume)
	}

	sided := m.Buys + m.Sells
	if sided < 1 {
		sided = 1
	}
	m.TradeImbalance = float64(m.Buys-m.Sells) / float64(sided)

	if m.VWAP != nil && refMid != nil && *refMid != 0 {
		m.VWAPDrift = model.Float((*m.VWAP - *refMid) / *refMid)
	}
	return m
}
