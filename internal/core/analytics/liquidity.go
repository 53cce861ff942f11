package analytics

import (
	"hyperliquid-market-aggregator/internal/core/model"
)

// CumulativeLevel 累计深度点
type CumulativeLevel struct {
	Price          float64 `json:"px"`
	CumulativeSize float64 `json:"cumSz"`
}

// LiquidityProfile 两侧累计深度
type LiquidityProfile struct {
	Bid []CumulativeLevel `json:"bid"`
	Ask []CumulativeLevel `json:"ask"`
}

// Liquidity 按订单簿原有顺序逐档累加数量，不重新排序
func Liquidity(book *model.OrderBook) LiquidityProfile {
	if book == nil {
		return LiquidityProfile{Bid: []CumulativeLevel{}, Ask: []CumulativeLevel{}}
	}
	return LiquidityProfile{
		Bid: cumulate(book.Bids),
		Ask: cumulate(book.Asks),
	}
}

func cumulate(levels []model.Level) []CumulativeLevel {
	out := make([]CumulativeLevel, 0, len(levels))
	var acc float64
	for _, lv := range levels {
		acc += lv.Size
		out = append(out, CumulativeLevel{Price: lv.Price, CumulativeSize: acc})
	}
	return out
}
