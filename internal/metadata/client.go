package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
)

// ErrMissingType 请求负载缺少 type 字段
var ErrMissingType = errors.New("info 请求缺少 type 字段")

// Recorder 记录 info 调用结果
type Recorder interface {
	InfoCall(network, typ string, elapsed time.Duration, err error)
}

// Client Hyperliquid info 接口客户端
// 所有请求都是 POST {type, ...}，按网络选择地址，共享一个令牌桶限速
type Client struct {
	// cfg 全局配置
	cfg *config.Config
	// client HTTP 客户端
	client *http.Client
	// limiter 请求限速
	limiter *rate.Limiter
	// recorder 调用计数，可为 nil
	recorder Recorder
	// logger 日志记录器
	logger *zap.Logger
}

// NewClient 创建 info 客户端
// 参数 cfg: 全局配置（地址、超时、限速）
// 参数 recorder: 调用计数，可为 nil
// 参数 logger: 日志记录器
func NewClient(cfg *config.Config, recorder Recorder, logger *zap.Logger) *Client {
	rps := cfg.HTTP.RequestsPerSecond
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := cfg.HTTP.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: config.Millis(cfg.HTTP.TimeoutMs),
		},
		limiter:  rate.NewLimiter(limit, burst),
		recorder: recorder,
		logger:   logger.Named("info"),
	}
}

// Post 发送任意 info 请求
// 参数 network: mainnet/testnet
// 参数 payload: 请求体，必须包含字符串 type
// 返回: 原始 JSON 响应
func (c *Client) Post(ctx context.Context, network string, payload map[string]any) (json.RawMessage, error) {
	typ, _ := payload["type"].(string)
	if typ == "" {
		return nil, ErrMissingType
	}
	network, err := config.NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	ep, err := c.cfg.Endpoint(network)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := c.doRequest(ctx, ep.InfoURL, payload)
	if c.recorder != nil {
		c.recorder.InfoCall(network, typ, time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("info 请求失败", zap.String("network", network), zap.String("type", typ), zap.Error(err))
		return nil, fmt.Errorf("info 请求 %s 失败: %w", typ, err)
	}
	return body, nil
}

// doRequest 执行 HTTP POST 请求
func (c *Client) doRequest(ctx context.Context, url string, payload map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限速失败: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hyperliquid-market-aggregator/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d, body=%s", resp.StatusCode, truncate(body, 512))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("响应不是合法 JSON: %s", truncate(body, 512))
	}
	return body, nil
}

// truncate 截断错误信息中的响应体
func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

// decode 请求并解码到 out
func (c *Client) decode(ctx context.Context, network string, payload map[string]any, out any) (json.RawMessage, error) {
	raw, err := c.Post(ctx, network, payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("解析 %v 响应失败: %w", payload["type"], err)
	}
	return raw, nil
}

// MetaAndAssetCtxs 资产列表与上下文
func (c *Client) MetaAndAssetCtxs(ctx context.Context, network string) (*hyperliquid.MetaAndAssetCtxs, error) {
	raw, err := c.Post(ctx, network, map[string]any{"type": TypeMetaAndAssetCtxs})
	if err != nil {
		return nil, err
	}
	return hyperliquid.DecodeMetaAndAssetCtxs(raw)
}

// withDex 非空时附加 dex 字段
func withDex(payload map[string]any, dex string) map[string]any {
	if dex != "" {
		payload["dex"] = dex
	}
	return payload
}

// Meta 资产列表
// 参数 dex: 第三方部署的 perp DEX 名称，空表示主 DEX
func (c *Client) Meta(ctx context.Context, network, dex string) (*hyperliquid.Meta, error) {
	var out hyperliquid.Meta
	if _, err := c.decode(ctx, network, withDex(map[string]any{"type": TypeMeta}, dex), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearinghouseState 账户持仓与保证金
// 参数 user: 0x 地址，调用方负责校验
// 参数 dex: perp DEX 名称，空表示主 DEX
func (c *Client) ClearinghouseState(ctx context.Context, network, user, dex string) (*ClearinghouseState, error) {
	var out ClearinghouseState
	raw, err := c.decode(ctx, network, withDex(map[string]any{"type": TypeClearinghouseState, "user": user}, dex), &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// window 构造带时间窗口的请求体，endMs<=0 时不发送 endTime
func window(typ string, startMs, endMs int64) map[string]any {
	payload := map[string]any{"type": typ, "startTime": startMs}
	if endMs > 0 {
		payload["endTime"] = endMs
	}
	return payload
}

// UserFunding 账户资金费记录
// 参数 startMs/endMs: 毫秒时间窗口，endMs<=0 表示到当前
func (c *Client) UserFunding(ctx context.Context, network, user string, startMs, endMs int64) ([]UserFundingEntry, error) {
	payload := window(TypeUserFunding, startMs, endMs)
	payload["user"] = user
	var out []UserFundingEntry
	if _, err := c.decode(ctx, network, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FundingHistory 币种历史资金费率
func (c *Client) FundingHistory(ctx context.Context, network, coin string, startMs, endMs int64) ([]FundingHistoryEntry, error) {
	payload := window(TypeFundingHistory, startMs, endMs)
	payload["coin"] = coin
	var out []FundingHistoryEntry
	if _, err := c.decode(ctx, network, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictedFundings 各场所预测资金费率，结构嵌套较深，原样返回
func (c *Client) PredictedFundings(ctx context.Context, network string) (json.RawMessage, error) {
	return c.Post(ctx, network, map[string]any{"type": TypePredictedFundings})
}

// PerpsAtOpenInterestCap 已达未平仓上限的币种
func (c *Client) PerpsAtOpenInterestCap(ctx context.Context, network string) ([]string, error) {
	var out []string
	if _, err := c.decode(ctx, network, map[string]any{"type": TypePerpsAtOpenInterestCap}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserNonFundingLedgerUpdates 账户非资金费类资金变动（充提、划转、清算等）
func (c *Client) UserNonFundingLedgerUpdates(ctx context.Context, network, user string, startMs, endMs int64) ([]LedgerUpdate, error) {
	payload := window(TypeUserNonFundingLedgerUpdates, startMs, endMs)
	payload["user"] = user
	var out []LedgerUpdate
	if _, err := c.decode(ctx, network, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveAssetData 账户在单个币种上的杠杆与可交易额度
func (c *Client) ActiveAssetData(ctx context.Context, network, user, coin string) (*ActiveAssetData, error) {
	var out ActiveAssetData
	if _, err := c.decode(ctx, network, map[string]any{"type": TypeActiveAssetData, "user": user, "coin": coin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PerpDexs 已部署的 perp DEX 列表，首项为 nil（主 DEX）
func (c *Client) PerpDexs(ctx context.Context, network string) ([]*PerpDex, error) {
	var out []*PerpDex
	if _, err := c.decode(ctx, network, map[string]any{"type": TypePerpDexs}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PerpDexLimits 第三方 perp DEX 的 OI 与划转上限
// 返回: 上游返回 null（DEX 不存在）时为 nil
func (c *Client) PerpDexLimits(ctx context.Context, network, dex string) (*PerpDexLimits, error) {
	var out *PerpDexLimits
	if _, err := c.decode(ctx, network, map[string]any{"type": TypePerpDexLimits, "dex": dex}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PerpDeployAuctionStatus perp 部署拍卖状态
func (c *Client) PerpDeployAuctionStatus(ctx context.Context, network string) (*PerpDeployAuctionStatus, error) {
	var out PerpDeployAuctionStatus
	if _, err := c.decode(ctx, network, map[string]any{"type": TypePerpDeployAuctionStatus}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
