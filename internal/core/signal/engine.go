// Package signal 实现综合买卖信号评分。
// 得分 = 0.5·订单簿不平衡 + 0.3·(VWAP 偏离·10) + 0.2·(−资金费率)，
// 超过 +θ 为 buy，低于 −θ 为 sell，其余为 neutral。
package signal

import (
	"fmt"
	"math"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/core/model"
	"hyperliquid-market-aggregator/internal/util/fastparse"
)

// 各分量权重
const (
	weightImbalance = 0.5
	weightDrift     = 0.3
	weightFunding   = 0.2
	// driftScale VWAP 偏离通常只有千分之几，放大后再加权
	driftScale = 10.0
	// maxConfidence 置信度上限
	maxConfidence = 0.99
)

// 分量进入理由列表的最小幅度
const (
	reasonImbalance = 0.05
	reasonDrift     = 0.0001
	reasonFunding   = 0.000001
)

// DefaultTheta 默认判定阈值
const DefaultTheta = 0.15

// Engine 综合信号评分器
// 除阈值外无状态，可被多个 goroutine 共享
type Engine struct {
	// theta 判定阈值
	theta float64
}

// NewEngine 创建评分器
// 参数 cfg: 信号配置，Theta 非正时使用默认值
func NewEngine(cfg config.SignalConfig) *Engine {
	theta := cfg.Theta
	if theta <= 0 {
		theta = DefaultTheta
	}
	return &Engine{theta: theta}
}

// Theta 当前阈值
func (e *Engine) Theta() float64 {
	return e.theta
}

// Evaluate 根据特征计算信号
// 缺失的特征按 0 贡献处理，不出现在理由中
func (e *Engine) Evaluate(f model.Features) model.Signal {
	var (
		score   float64
		reasons []string
	)

	if f.OBImbalance != nil {
		imb := *f.OBImbalance
		score += weightImbalance * imb
		if math.Abs(imb) > reasonImbalance {
			reasons = append(reasons, fmt.Sprintf("orderbook imbalance %.2f", imb))
		}
	}

	if f.VWAPDrift != nil {
		drift := *f.VWAPDrift
		score += weightDrift * drift * driftScale
		if math.Abs(drift) > reasonDrift {
			reasons = append(reasons, fmt.Sprintf("vwap drift %.2f%%", drift*100))
		}
	}

	if f.Funding != nil {
		funding := *f.Funding
		// 资金费率为负（空头付费）视为偏多
		score += weightFunding * (-funding)
		if math.Abs(funding) > reasonFunding {
			reasons = append(reasons, fmt.Sprintf("funding %s", fastparse.FormatFloat(funding, -1)))
		}
	}

	label := model.SignalNeutral
	switch {
	case score > e.theta:
		label = model.SignalBuy
	case score < -e.theta:
		label = model.SignalSell
	}

	if len(reasons) > model.MaxSignalReasons {
		reasons = reasons[:model.MaxSignalReasons]
	}
	if reasons == nil {
		reasons = []string{}
	}

	return model.Signal{
		Label:      label,
		Score:      fastparse.Round(score, 3),
		Confidence: fastparse.Round(math.Min(maxConfidence, math.Abs(score)), 3),
		Reasons:    reasons,
	}
}
