// Package metadata 访问 Hyperliquid info 接口并规范化用户输入。
package metadata

import (
	"encoding/json"
)

// info 请求类型
const (
	TypeMetaAndAssetCtxs       = "metaAndAssetCtxs"
	TypeMeta                   = "meta"
	TypeClearinghouseState     = "clearinghouseState"
	TypeUserFunding            = "userFunding"
	TypeFundingHistory         = "fundingHistory"
	TypePredictedFundings      = "predictedFundings"
	TypePerpsAtOpenInterestCap = "perpsAtOpenInterestCap"

	TypeUserNonFundingLedgerUpdates = "userNonFundingLedgerUpdates"
	TypeActiveAssetData             = "activeAssetData"
	TypePerpDexs                    = "perpDexs"
	TypePerpDexLimits               = "perpDexLimits"
	TypePerpDeployAuctionStatus     = "perpDeployAuctionStatus"
)

// MarginSummary 账户保证金汇总，数值为字符串
type MarginSummary struct {
	// AccountValue 账户价值
	AccountValue string `json:"accountValue"`
	// TotalNtlPos 持仓名义价值
	TotalNtlPos string `json:"totalNtlPos"`
	// TotalRawUsd 原始 USD
	TotalRawUsd string `json:"totalRawUsd"`
	// TotalMarginUsed 已用保证金
	TotalMarginUsed string `json:"totalMarginUsed"`
}

// PositionDetail 单个持仓
type PositionDetail struct {
	// Coin 币种
	Coin string `json:"coin"`
	// Szi 带符号持仓量
	Szi string `json:"szi"`
	// EntryPx 开仓均价
	EntryPx string `json:"entryPx"`
	// PositionValue 持仓价值
	PositionValue string `json:"positionValue"`
	// UnrealizedPnl 未实现盈亏
	UnrealizedPnl string `json:"unrealizedPnl"`
	// ReturnOnEquity 收益率
	ReturnOnEquity string `json:"returnOnEquity"`
	// LiquidationPx 强平价，可能为 null
	LiquidationPx *string `json:"liquidationPx"`
}

// AssetPosition assetPositions 中的一项
type AssetPosition struct {
	// Type 持仓类型，如 oneWay
	Type string `json:"type"`
	// Position 持仓明细
	Position PositionDetail `json:"position"`
}

// ClearinghouseState clearinghouseState 返回
type ClearinghouseState struct {
	// AssetPositions 持仓列表
	AssetPositions []AssetPosition `json:"assetPositions"`
	// MarginSummary 保证金汇总
	MarginSummary MarginSummary `json:"marginSummary"`
	// Withdrawable 可提金额
	Withdrawable string `json:"withdrawable"`
	// Time 服务端时间（毫秒）
	Time int64 `json:"time"`
	// Raw 上游原始返回
	Raw json.RawMessage `json:"-"`
}

// FundingDelta userFunding 中的资金费变动
type FundingDelta struct {
	Type        string `json:"type"`
	Coin        string `json:"coin"`
	Usdc        string `json:"usdc"`
	Szi         string `json:"szi"`
	FundingRate string `json:"fundingRate"`
}

// UserFundingEntry userFunding 返回的一条记录
type UserFundingEntry struct {
	Time  int64        `json:"time"`
	Hash  string       `json:"hash"`
	Delta FundingDelta `json:"delta"`
}

// FundingHistoryEntry fundingHistory 返回的一条记录
type FundingHistoryEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Premium     string `json:"premium"`
	Time        int64  `json:"time"`
}

// LedgerUpdate userNonFundingLedgerUpdates 返回的一条记录
// delta 结构随 type 变化（deposit、withdraw、accountClassTransfer 等），保留为通用对象
type LedgerUpdate struct {
	Time  int64          `json:"time"`
	Hash  string         `json:"hash"`
	Delta map[string]any `json:"delta"`
}

// Kind 变动类型，缺失时为空
func (u LedgerUpdate) Kind() string {
	k, _ := u.Delta["type"].(string)
	return k
}

// Leverage 杠杆设置
type Leverage struct {
	// Type cross 或 isolated
	Type  string `json:"type"`
	Value int    `json:"value"`
	// RawUsd 逐仓保证金，仅 isolated
	RawUsd string `json:"rawUsd,omitempty"`
}

// ActiveAssetData activeAssetData 返回
type ActiveAssetData struct {
	User     string   `json:"user"`
	Coin     string   `json:"coin"`
	Leverage Leverage `json:"leverage"`
	// MaxTradeSzs 买/卖两个方向的最大下单量
	MaxTradeSzs []string `json:"maxTradeSzs"`
	// AvailableToTrade 买/卖两个方向的可用额度
	AvailableToTrade []string `json:"availableToTrade"`
	MarkPx           string   `json:"markPx"`
}

// PerpDex perpDexs 中的一项，首项（主 DEX）为 null
type PerpDex struct {
	Name          string  `json:"name"`
	FullName      string  `json:"fullName"`
	Deployer      string  `json:"deployer"`
	OracleUpdater *string `json:"oracleUpdater"`
}

// PerpDexLimits perpDexLimits 返回，未知 DEX 时上游返回 null
type PerpDexLimits struct {
	TotalOiCap     string `json:"totalOiCap"`
	OiSzCapPerPerp string `json:"oiSzCapPerPerp"`
	MaxTransferNtl string `json:"maxTransferNtl"`
	// CoinToOiCap [[coin, cap], ...]
	CoinToOiCap [][2]string `json:"coinToOiCap"`
}

// PerpDeployAuctionStatus perpDeployAuctionStatus 返回
type PerpDeployAuctionStatus struct {
	StartTimeSeconds int64   `json:"startTimeSeconds"`
	DurationSeconds  int64   `json:"durationSeconds"`
	StartGas         string  `json:"startGas"`
	CurrentGas       *string `json:"currentGas"`
	EndGas           *string `json:"endGas"`
}
