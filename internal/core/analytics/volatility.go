package analytics

import (
	"math"

	"hyperliquid-market-aggregator/internal/core/model"
)

// annualizationDays 年化使用的交易日数
const annualizationDays = 252

// RealizedVolatility 基于逐笔成交价的年化实现波动率
// 按到达顺序计算相邻价格的简单收益率 r，结果为 sqrt(252) * sqrt(mean(r²))；
// 前一价格不为正的收益率跳过，没有任何收益率时返回 nil
func RealizedVolatility(trades model.TradeList) *float64 {
	var (
		sumSq float64
		n     int
	)
	for i := 1; i < len(trades); i++ {
		prev := trades[i-1].Price
		if prev <= 0 {
			continue
		}
		r := (trades[i].Price - prev) / prev
		sumSq += r * r
		n++
	}
	if n == 0 {
		return nil
	}
	return model.Float(math.Sqrt(annualizationDays) * math.Sqrt(sumSq/float64(n)))
}
