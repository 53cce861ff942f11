package model

// Side 主动成交方向
type Side string

const (
	// SideBuy 主动买
	SideBuy Side = "buy"
	// SideSell 主动卖
	SideSell Side = "sell"
	// SideUnknown 无法识别
	SideUnknown Side = "unknown"
)

// Trade 归一化成交
type Trade struct {
	// Price 成交价
	Price float64 `json:"px"`
	// Size 成交量
	Size float64 `json:"sz"`
	// Side 主动方向
	Side Side `json:"side"`
	// TimeMs 成交时间（毫秒），缺失为 0
	TimeMs int64 `json:"time,omitempty"`
	// TID 成交编号
	TID int64 `json:"tid,omitempty"`
}

// TradeList 按到达顺序排列的成交，不按时间重排
type TradeList []Trade

// Prices 按到达顺序提取成交价
func (l TradeList) Prices() []float64 {
	out := make([]float64, len(l))
	for i, t := range l {
		out[i] = t.Price
	}
	return out
}

// Last 最近一笔成交
func (l TradeList) Last() (Trade, bool) {
	if len(l) == 0 {
		return Trade{}, false
	}
	return l[len(l)-1], true
}
