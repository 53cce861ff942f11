// Package hyperliquid 定义 Hyperliquid 消息类型。
package hyperliquid

import (
	"encoding/json"
	"time"
)

// 订阅类型
const (
	// ChannelL2Book 订单簿
	ChannelL2Book = "l2Book"
	// ChannelTrades 逐笔成交
	ChannelTrades = "trades"
)

// 控制频道
const (
	channelSubscriptionResponse = "subscriptionResponse"
	channelPong                 = "pong"
	channelError                = "error"
)

// OrderBookVariants 订单簿订阅类型的历史写法，按顺序尝试
var OrderBookVariants = []string{ChannelL2Book, "book", "l2book"}

// SubscribeRequest 订阅请求
// {"method":"subscribe","subscription":{"type":"l2Book","coin":"BTC"}}
type SubscribeRequest struct {
	// Method 操作类型: subscribe, unsubscribe
	Method string `json:"method"`
	// Subscription 订阅描述
	Subscription Descriptor `json:"subscription"`
}

// envelope 推送消息的外层结构，只解析路由需要的字段
type envelope struct {
	// Channel 频道名称
	Channel string `json:"channel"`
	// Subscription 部分推送直接携带订阅描述
	Subscription map[string]any `json:"subscription"`
	// Data 负载
	Data json.RawMessage `json:"data"`
}

// subscriptionAck subscriptionResponse 的 data 字段
type subscriptionAck struct {
	Method       string         `json:"method"`
	Subscription map[string]any `json:"subscription"`
}

// Message 一条已接收的推送
type Message struct {
	// Channel 频道名称（可能为空）
	Channel string `json:"channel,omitempty"`
	// Raw 原始 JSON
	Raw json.RawMessage `json:"raw"`
	// ReceivedAt 本机接收时间
	ReceivedAt time.Time `json:"receivedAt"`
}

// AssetMeta universe 中的单个资产
type AssetMeta struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`
	IsDelisted   bool   `json:"isDelisted,omitempty"`
}

// Meta meta 接口返回
type Meta struct {
	Universe []AssetMeta `json:"universe"`
}

// SessionStats 会话统计
type SessionStats struct {
	// Network 网络
	Network string `json:"network"`
	// Connected 当前是否在线
	Connected bool `json:"connected"`
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnectCount"`
	// Received 收到的消息数
	Received int64 `json:"received"`
	// Routed 按签名定向投递的消息数
	Routed int64 `json:"routed"`
	// Broadcast 广播投递的消息数
	Broadcast int64 `json:"broadcast"`
	// Dropped 因缓冲区满丢弃的消息数
	Dropped int64 `json:"dropped"`
	// ParseErrors 无法解析的消息数
	ParseErrors int64 `json:"parseErrors"`
	// Subscriptions 活跃订阅数
	Subscriptions int `json:"subscriptions"`
}
