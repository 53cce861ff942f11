package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"hyperliquid-market-aggregator/internal/metadata"
	"hyperliquid-market-aggregator/internal/util/fastparse"
)

// 默认参数
const (
	// DefaultFundingWindow fundingHistory 未指定起点时回看的时长
	DefaultFundingWindow = 24 * time.Hour
	// capPreview 摘要中展示的 OI 上限币种数
	capPreview = 5
)

// InfoRaw 透传任意 info 请求
// 参数 payload: 请求体，必须包含 type
func (s *Service) InfoRaw(ctx context.Context, net string, payload map[string]any) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	typ, _ := payload["type"].(string)
	if typ == "" {
		return failure(invalid("%v", metadata.ErrMissingType))
	}
	raw, err := s.info.Post(ctx, n, payload)
	if err != nil {
		return failure(err)
	}
	return success(raw, "type %s", typ)
}

// Meta universe 元数据
// 参数 dex: perp DEX 名称，空表示主 DEX
func (s *Service) Meta(ctx context.Context, net, dex string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	m, err := s.info.Meta(ctx, n, strings.TrimSpace(dex))
	if err != nil {
		return failure(err)
	}
	return success(m, "%d assets in universe", len(m.Universe))
}

// ClearinghouseState 账户保证金与持仓
// 参数 user: 0x 开头的 40 位十六进制地址
// 参数 dex: perp DEX 名称，空表示主 DEX
func (s *Service) ClearinghouseState(ctx context.Context, net, user, dex string) Result {
	n, err := account(net, user)
	if err != nil {
		return failure(err)
	}
	st, err := s.info.ClearinghouseState(ctx, n, user, strings.TrimSpace(dex))
	if err != nil {
		return failure(err)
	}
	return success(st.Raw, "acct %s ntl %s pos %d",
		st.MarginSummary.AccountValue, st.MarginSummary.TotalNtlPos, len(st.AssetPositions))
}

// FundingHistory 币种资金费率历史
// 参数 startMs: 起始时间，<=0 时取当前时间前 24 小时
// 参数 endMs: 结束时间，<=0 表示到当前
func (s *Service) FundingHistory(ctx context.Context, net, c string, startMs, endMs int64) Result {
	n, cc, err := target(net, c)
	if err != nil {
		return failure(err)
	}
	startMs, endMs, err = s.window(startMs, endMs)
	if err != nil {
		return failure(err)
	}
	points, err := s.info.FundingHistory(ctx, n, cc, startMs, endMs)
	if err != nil {
		return failure(err)
	}
	return success(points, "points %d", len(points))
}

// account 规范化网络并校验账户地址
func account(net, user string) (string, error) {
	n, err := network(net)
	if err != nil {
		return "", err
	}
	if err := metadata.ValidateAddress(user); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return n, nil
}

// window 补全时间窗口：startMs<=0 时取当前时间前 24 小时，endMs<=0 表示到当前
func (s *Service) window(startMs, endMs int64) (int64, int64, error) {
	if startMs <= 0 {
		startMs = s.now() - DefaultFundingWindow.Milliseconds()
	}
	if endMs > 0 && endMs < startMs {
		return 0, 0, invalid("endTime %d before startTime %d", endMs, startMs)
	}
	return startMs, endMs, nil
}

// UserFunding 账户资金费收支记录
// 参数 startMs/endMs: 同 FundingHistory
func (s *Service) UserFunding(ctx context.Context, net, user string, startMs, endMs int64) Result {
	n, err := account(net, user)
	if err != nil {
		return failure(err)
	}
	startMs, endMs, err = s.window(startMs, endMs)
	if err != nil {
		return failure(err)
	}
	events, err := s.info.UserFunding(ctx, n, user, startMs, endMs)
	if err != nil {
		return failure(err)
	}
	return success(events, "events %d", len(events))
}

// UserNonFundingLedgerUpdates 账户充提、划转等非资金费变动
func (s *Service) UserNonFundingLedgerUpdates(ctx context.Context, net, user string, startMs, endMs int64) Result {
	n, err := account(net, user)
	if err != nil {
		return failure(err)
	}
	startMs, endMs, err = s.window(startMs, endMs)
	if err != nil {
		return failure(err)
	}
	events, err := s.info.UserNonFundingLedgerUpdates(ctx, n, user, startMs, endMs)
	if err != nil {
		return failure(err)
	}
	return success(events, "events %d", len(events))
}

// ActiveAssetData 账户在单个币种上的杠杆、最大下单量与标记价
func (s *Service) ActiveAssetData(ctx context.Context, net, user, c string) Result {
	n, err := account(net, user)
	if err != nil {
		return failure(err)
	}
	cc, err := coin(c)
	if err != nil {
		return failure(err)
	}
	d, err := s.info.ActiveAssetData(ctx, n, user, cc)
	if err != nil {
		return failure(err)
	}
	return success(d, "lev %s/%d mark %s", d.Leverage.Type, d.Leverage.Value, d.MarkPx)
}

// PerpDexs 已部署的 perp DEX 列表
func (s *Service) PerpDexs(ctx context.Context, net string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	dexs, err := s.info.PerpDexs(ctx, n)
	if err != nil {
		return failure(err)
	}
	return success(dexs, "%d entries", len(dexs))
}

// PerpDexLimits 第三方 perp DEX 的 OI 上限
// 参数 dex: DEX 名称，不能为空
func (s *Service) PerpDexLimits(ctx context.Context, net, dex string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	dex = strings.TrimSpace(dex)
	if dex == "" {
		return failure(invalid("dex must be a non-empty string"))
	}
	limits, err := s.info.PerpDexLimits(ctx, n, dex)
	if err != nil {
		return failure(err)
	}
	if limits == nil {
		return unavailable(fmt.Sprintf("perp dex %s not found", dex))
	}
	return success(limits, "oiCap %s perPerp %s", limits.TotalOiCap, limits.OiSzCapPerPerp)
}

// PerpDeployAuctionStatus perp 部署拍卖状态
func (s *Service) PerpDeployAuctionStatus(ctx context.Context, net string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	st, err := s.info.PerpDeployAuctionStatus(ctx, n)
	if err != nil {
		return failure(err)
	}
	return success(st, "start %d dur %d", st.StartTimeSeconds, st.DurationSeconds)
}

// PredictedFundings 各场所预测资金费率
func (s *Service) PredictedFundings(ctx context.Context, net string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	raw, err := s.info.PredictedFundings(ctx, n)
	if err != nil {
		return failure(err)
	}
	var rows []json.RawMessage
	_ = json.Unmarshal(raw, &rows)
	return success(raw, "coins %d", len(rows))
}

// PerpsAtOpenInterestCap 达到 OI 上限的币种
func (s *Service) PerpsAtOpenInterestCap(ctx context.Context, net string) Result {
	n, err := network(net)
	if err != nil {
		return failure(err)
	}
	coins, err := s.info.PerpsAtOpenInterestCap(ctx, n)
	if err != nil {
		return failure(err)
	}
	if len(coins) == 0 {
		return success(coins, "none at cap")
	}
	preview := strings.Join(coins[:min(capPreview, len(coins))], ", ")
	if len(coins) > capPreview {
		preview += "..."
	}
	return success(coins, "at cap %d: %s", len(coins), preview)
}

// PnLSummary 账户盈亏汇总
type PnLSummary struct {
	User string `json:"user"`
	// UnrealizedPnl 各持仓未实现盈亏之和
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	// FundingPnl 窗口内资金费收支之和，获取失败时为 nil
	FundingPnl *float64 `json:"fundingPnl"`
	// WindowDays 资金费统计窗口（天）
	WindowDays int `json:"windowDays"`
	// Positions 持仓数
	Positions int      `json:"positions"`
	Flags     []string `json:"flags,omitempty"`
}

// UserPnLSummary 未实现盈亏与近 days 天资金费汇总
// 两个请求并发执行，任一失败只追加标记
func (s *Service) UserPnLSummary(ctx context.Context, net, user string, days int) Result {
	n, err := account(net, user)
	if err != nil {
		return failure(err)
	}
	days = max(1, days)
	out := PnLSummary{User: user, WindowDays: days}

	var (
		stErr, fundErr error
		funding        []metadata.UserFundingEntry
		st             *metadata.ClearinghouseState
	)
	var g errgroup.Group
	g.Go(func() error {
		st, stErr = s.info.ClearinghouseState(ctx, n, user, "")
		return nil
	})
	g.Go(func() error {
		start := s.now() - int64(days)*(24*time.Hour).Milliseconds()
		funding, fundErr = s.info.UserFunding(ctx, n, user, start, 0)
		return nil
	})
	_ = g.Wait()

	if stErr != nil {
		out.Flags = append(out.Flags, "clearinghouse_error:"+stErr.Error())
	} else {
		out.Positions = len(st.AssetPositions)
		for _, p := range st.AssetPositions {
			if v, ok := fastparse.Number(p.Position.UnrealizedPnl); ok {
				out.UnrealizedPnl += v
			}
		}
	}
	if fundErr != nil {
		out.Flags = append(out.Flags, "funding_error:"+fundErr.Error())
	} else {
		var sum float64
		for _, e := range funding {
			if v, ok := fastparse.Number(e.Delta.Usdc); ok {
				sum += v
			}
		}
		out.FundingPnl = &sum
	}
	if stErr != nil && fundErr != nil {
		return failure(fmt.Errorf("clearinghouse: %w", stErr))
	}
	return success(out, "unreal %.2f funding %s", out.UnrealizedPnl, formatPtr(out.FundingPnl))
}
