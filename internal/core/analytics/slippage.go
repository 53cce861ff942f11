package analytics

import (
	"errors"
	"fmt"
	"strings"

	"hyperliquid-market-aggregator/internal/core/model"
)

var (
	// ErrNoMidPrice 订单簿为空，无法得到中间价
	ErrNoMidPrice = errors.New("no mid price")
	// ErrInsufficientDepth 对应一侧没有可成交的档位
	ErrInsufficientDepth = errors.New("insufficient depth")
	// ErrInvalidSide 方向不是 buy/sell
	ErrInvalidSide = errors.New("side must be 'buy' or 'sell'")
	// ErrInvalidNotional 名义金额必须为正
	ErrInvalidNotional = errors.New("notional must be positive")
)

// remainingEpsilon 剩余名义金额低于该值视为已成交完毕
const remainingEpsilon = 1e-9

// SlippageEstimate 滑点估计
type SlippageEstimate struct {
	// Side 方向
	Side model.Side `json:"side"`
	// Notional 请求的名义金额
	Notional float64 `json:"notional"`
	// Mid 下单前中间价
	Mid float64 `json:"mid"`
	// AvgFillPrice 平均成交价
	AvgFillPrice float64 `json:"avgPx"`
	// SlippageBps 相对中间价的滑点，正值表示不利
	SlippageBps float64 `json:"slippageBps"`
	// FilledUnits 成交数量
	FilledUnits float64 `json:"filledUnits"`
	// FilledNotional 实际成交的名义金额
	FilledNotional float64 `json:"filledNotional"`
	// Complete 深度是否足以吃满名义金额
	Complete bool `json:"complete"`
}

// ParseSide 解析 buy/sell，大小写不敏感
func ParseSide(s string) (model.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return model.SideBuy, nil
	case "sell":
		return model.SideSell, nil
	default:
		return model.SideUnknown, fmt.Errorf("%w: '%s'", ErrInvalidSide, s)
	}
}

// Slippage 按订单簿深度估算市价单滑点
// 买单自低向高吃卖盘，卖单自高向低吃买盘，每档吃 min(剩余金额/价格, 档位数量)
// 参数 book: 归一化订单簿
// 参数 side: 方向
// 参数 notional: 名义金额（USD）
// 返回: 滑点估计；无中间价、无可成交深度、参数非法时返回错误
func Slippage(book *model.OrderBook, side model.Side, notional float64) (SlippageEstimate, error) {
	if side != model.SideBuy && side != model.SideSell {
		return SlippageEstimate{}, fmt.Errorf("%w: '%s'", ErrInvalidSide, side)
	}
	if !(notional > 0) {
		return SlippageEstimate{}, fmt.Errorf("%w: %v", ErrInvalidNotional, notional)
	}

	metrics := OrderBook(book, DefaultTopN)
	if metrics.Mid == nil || *metrics.Mid <= 0 {
		return SlippageEstimate{}, ErrNoMidPrice
	}
	mid := *metrics.Mid

	levels := book.Asks
	if side == model.SideSell {
		levels = book.Bids
	}

	remaining := notional
	var cost, filled float64
	for _, lv := range levels {
		if lv.Price <= 0 || lv.Size <= 0 {
			continue
		}
		take := remaining / lv.Price
		if take > lv.Size {
			take = lv.Size
		}
		cost += take * lv.Price
		filled += take
		remaining -= take * lv.Price
		if remaining <= remainingEpsilon {
			break
		}
	}

	if filled <= 0 {
		return SlippageEstimate{}, ErrInsufficientDepth
	}

	avg := cost / filled
	bps := (avg - mid) / mid * 10000
	if side == model.SideSell {
		bps = (mid - avg) / mid * 10000
	}

	return SlippageEstimate{
		Side:           side,
		Notional:       notional,
		Mid:            mid,
		AvgFillPrice:   avg,
		SlippageBps:    bps,
		FilledUnits:    filled,
		FilledNotional: cost,
		Complete:       remaining <= remainingEpsilon,
	}, nil
}
