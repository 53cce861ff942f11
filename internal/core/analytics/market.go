package analytics

import (
	"hyperliquid-market-aggregator/internal/core/model"
)

// PremiumReadout 溢价与资金费率读数
type PremiumReadout struct {
	Premium  *float64 `json:"premium"`
	Funding  *float64 `json:"funding"`
	MarkPx   *float64 `json:"markPx"`
	OraclePx *float64 `json:"oraclePx"`
	// ZScore 不保留历史，恒为 nil
	ZScore *float64 `json:"zScore"`
}

// Premium 直接透传最新资产上下文
func Premium(ctx *model.AssetContext) PremiumReadout {
	if ctx == nil {
		return PremiumReadout{}
	}
	return PremiumReadout{
		Premium:  ctx.Premium,
		Funding:  ctx.Funding,
		MarkPx:   ctx.MarkPx,
		OraclePx: ctx.OraclePx,
	}
}

// OpenInterestDelta 当前 OI 相对上一次读数的变化，任一缺失返回 nil
func OpenInterestDelta(current, previous *float64) *float64 {
	if current == nil || previous == nil {
		return nil
	}
	return model.Float(*current - *previous)
}
