// Package model 定义行情聚合中使用的核心数据结构。
// 包含归一化订单簿、成交列表、资产上下文与综合信号。
package model

import (
	"encoding/json"
)

// Level 订单簿档位
// 序列化为 [price, size] 二元数组
type Level struct {
	// Price 价格
	Price float64
	// Size 数量
	Size float64
}

// MarshalJSON 输出 [price, size]
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Price, l.Size})
}

// UnmarshalJSON 读取 [price, size]
func (l *Level) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	l.Price, l.Size = pair[0], pair[1]
	return nil
}

// OrderBook 归一化订单簿
// Bids 按价格降序，Asks 按价格升序，已截断到请求深度；两侧可以为空但不为 nil
type OrderBook struct {
	// Coin 币种
	Coin string `json:"coin,omitempty"`
	// Bids 买盘
	Bids []Level `json:"bids"`
	// Asks 卖盘
	Asks []Level `json:"asks"`
	// TimeMs 上游给出的快照时间（毫秒），缺失为 0
	TimeMs int64 `json:"time,omitempty"`
}

// NewOrderBook 创建两侧为空切片的订单簿
func NewOrderBook(coin string) *OrderBook {
	return &OrderBook{Coin: coin, Bids: []Level{}, Asks: []Level{}}
}

// BestBid 买一
func (b *OrderBook) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk 卖一
func (b *OrderBook) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Empty 两侧都没有档位
func (b *OrderBook) Empty() bool {
	return b == nil || (len(b.Bids) == 0 && len(b.Asks) == 0)
}
