package model

// AssetContext 单个币种的资产上下文（来自 metaAndAssetCtxs）
// 数值字段缺失或无法解析时为 nil
type AssetContext struct {
	// Coin 币种
	Coin string `json:"coin"`
	// Funding 当前资金费率
	Funding *float64 `json:"funding"`
	// Premium 溢价（标记价相对预言机价）
	Premium *float64 `json:"premium"`
	// OpenInterest 未平仓量
	OpenInterest *float64 `json:"openInterest"`
	// MarkPx 标记价
	MarkPx *float64 `json:"markPx"`
	// OraclePx 预言机价
	OraclePx *float64 `json:"oraclePx"`
	// MidPx 中间价
	MidPx *float64 `json:"midPx"`
	// DayNtlVlm 24 小时名义成交额
	DayNtlVlm *float64 `json:"dayNtlVlm"`
	// PrevDayPx 24 小时前价格
	PrevDayPx *float64 `json:"prevDayPx"`
}

// TopOfBook 买一卖一数量
type TopOfBook struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// DepthSummary 前 N 档累计数量
type DepthSummary struct {
	// BidTopN 买盘前 N 档数量和
	BidTopN float64 `json:"bidTopN"`
	// AskTopN 卖盘前 N 档数量和
	AskTopN float64 `json:"askTopN"`
	// Levels N
	Levels int `json:"levels"`
}

// MarketSnapshot 某一时刻的市场快照
// 由订单簿指标与资产上下文拼装，只在缓存有效期内存在
type MarketSnapshot struct {
	Coin       string       `json:"coin"`
	TsMs       int64        `json:"ts"`
	Mid        *float64     `json:"mid"`
	Spread     *float64     `json:"spread"`
	SpreadBps  *float64     `json:"spreadBps"`
	TobVolumes TopOfBook    `json:"tobVolumes"`
	Depth      DepthSummary `json:"depth"`
	Funding    *float64     `json:"funding"`
	Premium    *float64     `json:"premium"`
	OI         *float64     `json:"OI"`
	Vol24h     *float64     `json:"vol24h"`
}
