package analytics

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"

	"hyperliquid-market-aggregator/internal/core/model"
)

// ErrInvalidWindow 均线窗口必须为正
var ErrInvalidWindow = errors.New("moving-average window must be positive")

// Cross 均线交叉状态
type Cross string

const (
	// CrossBullish 短均线在长均线上方
	CrossBullish Cross = "bullish"
	// CrossBearish 短均线在长均线下方
	CrossBearish Cross = "bearish"
	// CrossNeutral 相等或任一均线不可用
	CrossNeutral Cross = "neutral"
)

// TrendResult 均线趋势
type TrendResult struct {
	ShortWindow int      `json:"short"`
	LongWindow  int      `json:"long"`
	SMAShort    *float64 `json:"smaShort"`
	SMALong     *float64 `json:"smaLong"`
	Cross       Cross    `json:"cross"`
	// Samples 参与计算的价格数
	Samples int `json:"samples"`
}

// Trend 计算短/长简单移动均线及交叉状态
// 参数 trades: 按到达顺序的成交
// 参数 short, long: 窗口长度
func Trend(trades model.TradeList, short, long int) (TrendResult, error) {
	if short <= 0 || long <= 0 {
		return TrendResult{}, fmt.Errorf("%w: short=%d long=%d", ErrInvalidWindow, short, long)
	}
	prices := trades.Prices()
	res := TrendResult{
		ShortWindow: short,
		LongWindow:  long,
		SMAShort:    SMA(prices, short),
		SMALong:     SMA(prices, long),
		Cross:       CrossNeutral,
		Samples:     len(prices),
	}
	if res.SMAShort != nil && res.SMALong != nil {
		switch {
		case *res.SMAShort > *res.SMALong:
			res.Cross = CrossBullish
		case *res.SMAShort < *res.SMALong:
			res.Cross = CrossBearish
		}
	}
	return res, nil
}

// SMA 最近 window 个价格的简单均值，样本不足返回 nil
func SMA(prices []float64, window int) *float64 {
	if window <= 0 || len(prices) < window {
		return nil
	}
	tail := prices[len(prices)-window:]
	series := talib.Sma(tail, window)
	return model.Float(series[len(series)-1])
}
