package model

// SignalLabel 综合信号方向
type SignalLabel string

const (
	// SignalBuy 偏多
	SignalBuy SignalLabel = "buy"
	// SignalSell 偏空
	SignalSell SignalLabel = "sell"
	// SignalNeutral 中性
	SignalNeutral SignalLabel = "neutral"
)

// MaxSignalReasons 信号附带的理由条数上限
const MaxSignalReasons = 4

// Signal 综合信号
// 只由快照与分析结果推导，除阈值外不持有状态
type Signal struct {
	// Label buy / sell / neutral
	Label SignalLabel `json:"label"`
	// Score 加权得分（保留 3 位小数）
	Score float64 `json:"score"`
	// Confidence 置信度，取 min(0.99, |score|)
	Confidence float64 `json:"confidence"`
	// Reasons 可读的理由，不超过 4 条
	Reasons []string `json:"reasons"`
}

// Features 综合信号的输入特征，缺失为 nil
type Features struct {
	// OBImbalance 订单簿不平衡度
	OBImbalance *float64 `json:"obImbalance"`
	// VWAPDrift VWAP 相对中间价偏离
	VWAPDrift *float64 `json:"vwapDrift"`
	// Funding 资金费率
	Funding *float64 `json:"funding"`
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 {
	return &v
}
