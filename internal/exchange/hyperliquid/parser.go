package hyperliquid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"hyperliquid-market-aggregator/internal/core/model"
	"hyperliquid-market-aggregator/internal/util/fastparse"
)

// decodeAny 以 UseNumber 方式解码任意 JSON，避免大整数和价格精度丢失
func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// payloadOf 优先取 data 字段，没有时消息本身即负载
func payloadOf(v any) any {
	if obj, ok := v.(map[string]any); ok {
		if d, ok := obj["data"]; ok && d != nil {
			return d
		}
	}
	return v
}

// coinMatches 负载中带币种且与请求不一致时返回 false
func coinMatches(obj map[string]any, coin string) bool {
	if coin == "" {
		return true
	}
	got, ok := obj["coin"].(string)
	if !ok || got == "" {
		return true
	}
	return strings.EqualFold(got, coin)
}

// ParseOrderBook 把一条推送归一化为订单簿
// 支持的布局:
//   - {bids:[[px,sz],...], asks:[...]}，行也可以是 {px,sz} 或 {price,size}
//   - 原生 {levels:[bids, asks]}，档位为 {px,sz,n}
//
// 参数 raw: 原始消息
// 参数 coin: 请求的币种，负载币种不一致时视为不可识别
// 参数 depth: 截断深度，<=0 表示不截断
// 返回: 订单簿（两侧永不为 nil）与是否识别出订单簿布局
func ParseOrderBook(raw []byte, coin string, depth int) (*model.OrderBook, bool) {
	book := model.NewOrderBook(coin)

	v, err := decodeAny(raw)
	if err != nil {
		return book, false
	}
	obj, ok := payloadOf(v).(map[string]any)
	if !ok || !coinMatches(obj, coin) {
		return book, false
	}

	var bids, asks []any
	recognized := false
	if b, ok := obj["bids"].([]any); ok {
		if a, ok := obj["asks"].([]any); ok {
			bids, asks = b, a
			recognized = true
		}
	}
	if !recognized {
		if levels, ok := obj["levels"].([]any); ok && len(levels) == 2 {
			b, bok := levels[0].([]any)
			a, aok := levels[1].([]any)
			if bok && aok {
				bids, asks = b, a
				recognized = true
			}
		}
	}
	if !recognized {
		return book, false
	}

	book.Bids = parseLevels(bids)
	book.Asks = parseLevels(asks)
	sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	if depth > 0 {
		if len(book.Bids) > depth {
			book.Bids = book.Bids[:depth]
		}
		if len(book.Asks) > depth {
			book.Asks = book.Asks[:depth]
		}
	}
	if ts, ok := fastparse.Number(obj["time"]); ok {
		book.TimeMs = int64(ts)
	}
	return book, true
}

// parseLevels 逐行解析档位，格式错误或为负的行单独跳过
func parseLevels(rows []any) []model.Level {
	out := make([]model.Level, 0, len(rows))
	for _, row := range rows {
		var pxV, szV any
		switch r := row.(type) {
		case []any:
			if len(r) < 2 {
				continue
			}
			pxV, szV = r[0], r[1]
		case map[string]any:
			pxV, szV = field(r, "px", "price"), field(r, "sz", "size")
		default:
			continue
		}
		px, ok := fastparse.Number(pxV)
		if !ok || px < 0 {
			continue
		}
		sz, ok := fastparse.Number(szV)
		if !ok || sz < 0 {
			continue
		}
		out = append(out, model.Level{Price: px, Size: sz})
	}
	return out
}

// field 按别名顺序取第一个存在的字段
func field(obj map[string]any, names ...string) any {
	for _, n := range names {
		if v, ok := obj[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

// PickOrderBook 从一批消息中选出最新的可识别订单簿
// 都不可识别时退回最后一条消息的解析结果（通常为空订单簿）
func PickOrderBook(msgs []Message, coin string, depth int) *model.OrderBook {
	var fallback *model.OrderBook
	for i := len(msgs) - 1; i >= 0; i-- {
		book, ok := ParseOrderBook(msgs[i].Raw, coin, depth)
		if !ok {
			continue
		}
		if !book.Empty() {
			return book
		}
		if fallback == nil {
			fallback = book
		}
	}
	if fallback != nil {
		return fallback
	}
	if len(msgs) > 0 {
		book, _ := ParseOrderBook(msgs[len(msgs)-1].Raw, coin, depth)
		return book
	}
	return model.NewOrderBook(coin)
}

// ParseSide 主动方向别名映射
// buy/b/B/bid -> buy，sell/s/A/ask -> sell，其余 unknown
func ParseSide(v any) model.Side {
	s, ok := v.(string)
	if !ok {
		return model.SideUnknown
	}
	// Hyperliquid 原生写法 B=主动买，A=主动卖
	if s == "A" {
		return model.SideSell
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "bid":
		return model.SideBuy
	case "sell", "s", "ask":
		return model.SideSell
	default:
		return model.SideUnknown
	}
}

// ParseTrades 把一批 trades 推送展开为成交列表
// data 可以是数组、单行对象，或消息本身就是一行；保持到达顺序
// 参数 limit: 只保留最近的 limit 笔，<=0 表示全部保留
// 返回: 成交列表，永不为 nil
func ParseTrades(msgs []Message, coin string, limit int) model.TradeList {
	out := make(model.TradeList, 0)
	for _, m := range msgs {
		v, err := decodeAny(m.Raw)
		if err != nil {
			continue
		}
		switch p := payloadOf(v).(type) {
		case []any:
			for _, row := range p {
				if obj, ok := row.(map[string]any); ok {
					if t, ok := parseTrade(obj, coin); ok {
						out = append(out, t)
					}
				}
			}
		case map[string]any:
			if t, ok := parseTrade(p, coin); ok {
				out = append(out, t)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = append(model.TradeList(nil), out[len(out)-limit:]...)
	}
	return out
}

// parseTrade 解析单行成交，价格或数量不可用时跳过
func parseTrade(obj map[string]any, coin string) (model.Trade, bool) {
	if !coinMatches(obj, coin) {
		return model.Trade{}, false
	}
	px, ok := fastparse.Number(field(obj, "px", "price"))
	if !ok || px < 0 {
		return model.Trade{}, false
	}
	sz, ok := fastparse.Number(field(obj, "sz", "size"))
	if !ok || sz < 0 {
		return model.Trade{}, false
	}
	t := model.Trade{
		Price: px,
		Size:  sz,
		Side:  ParseSide(field(obj, "side", "aggressor")),
	}
	if ts, ok := fastparse.Number(obj["time"]); ok {
		t.TimeMs = int64(ts)
	}
	if tid, ok := fastparse.Number(obj["tid"]); ok {
		t.TID = int64(tid)
	}
	return t, true
}

// MetaAndAssetCtxs metaAndAssetCtxs 接口的解码结果
type MetaAndAssetCtxs struct {
	// Meta 资产列表
	Meta Meta `json:"meta"`
	// Contexts 与 universe 按下标对齐的资产上下文
	Contexts []model.AssetContext `json:"contexts"`
	// Raw 上游原始返回
	Raw json.RawMessage `json:"-"`
}

// Context 按币种查找资产上下文（不区分大小写）
func (m *MetaAndAssetCtxs) Context(coin string) (model.AssetContext, bool) {
	if m == nil {
		return model.AssetContext{}, false
	}
	for _, c := range m.Contexts {
		if strings.EqualFold(c.Coin, coin) {
			return c, true
		}
	}
	return model.AssetContext{}, false
}

// DecodeMetaAndAssetCtxs 解析 [ {universe:[...]}, [ctx, ...] ]
// 数值字段可能为字符串或数字，缺失或不可解析时为 nil
func DecodeMetaAndAssetCtxs(raw []byte) (*MetaAndAssetCtxs, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("解析 metaAndAssetCtxs 失败: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("metaAndAssetCtxs 结构异常: 期望 2 段，实际 %d 段", len(parts))
	}

	out := &MetaAndAssetCtxs{Raw: append(json.RawMessage(nil), raw...)}
	if err := json.Unmarshal(parts[0], &out.Meta); err != nil {
		return nil, fmt.Errorf("解析 universe 失败: %w", err)
	}

	ctxsV, err := decodeAny(parts[1])
	if err != nil {
		return nil, fmt.Errorf("解析资产上下文失败: %w", err)
	}
	rows, ok := ctxsV.([]any)
	if !ok {
		return nil, fmt.Errorf("资产上下文不是数组")
	}

	out.Contexts = make([]model.AssetContext, 0, len(rows))
	for i, row := range rows {
		obj, _ := row.(map[string]any)
		ctx := model.AssetContext{}
		if i < len(out.Meta.Universe) {
			ctx.Coin = out.Meta.Universe[i].Name
		}
		if obj != nil {
			ctx.Funding = fastparse.NumberPtr(obj["funding"])
			ctx.Premium = fastparse.NumberPtr(obj["premium"])
			ctx.OpenInterest = fastparse.NumberPtr(obj["openInterest"])
			ctx.MarkPx = fastparse.NumberPtr(obj["markPx"])
			ctx.OraclePx = fastparse.NumberPtr(obj["oraclePx"])
			ctx.MidPx = fastparse.NumberPtr(obj["midPx"])
			ctx.DayNtlVlm = fastparse.NumberPtr(obj["dayNtlVlm"])
			ctx.PrevDayPx = fastparse.NumberPtr(obj["prevDayPx"])
		}
		out.Contexts = append(out.Contexts, ctx)
	}
	return out, nil
}
