package hyperliquid

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"hyperliquid-market-aggregator/internal/core/model"
)

func msgOf(raw string) Message {
	return Message{Raw: json.RawMessage(raw)}
}

// TestParseOrderBook_Layouts 测试各种订单簿布局
func TestParseOrderBook_Layouts(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		depth    int
		wantOK   bool
		wantBids []model.Level
		wantAsks []model.Level
	}{
		{
			name:     "data 下的二元数组",
			raw:      `{"channel":"l2Book","data":{"coin":"BTC","bids":[["100","2"],["99","5"]],"asks":[["101","3"],["102","4"]]}}`,
			depth:    10,
			wantOK:   true,
			wantBids: []model.Level{{Price: 100, Size: 2}, {Price: 99, Size: 5}},
			wantAsks: []model.Level{{Price: 101, Size: 3}, {Price: 102, Size: 4}},
		},
		{
			name:     "消息本身即负载，数值为数字",
			raw:      `{"bids":[[100,2]],"asks":[[101,3]]}`,
			depth:    10,
			wantOK:   true,
			wantBids: []model.Level{{Price: 100, Size: 2}},
			wantAsks: []model.Level{{Price: 101, Size: 3}},
		},
		{
			name:     "对象行 price/size 别名",
			raw:      `{"data":{"bids":[{"price":"100","size":"1"}],"asks":[{"px":"101","sz":"2"}]}}`,
			depth:    10,
			wantOK:   true,
			wantBids: []model.Level{{Price: 100, Size: 1}},
			wantAsks: []model.Level{{Price: 101, Size: 2}},
		},
		{
			name:     "原生 levels 布局",
			raw:      `{"channel":"l2Book","data":{"coin":"BTC","time":1700000000000,"levels":[[{"px":"100","sz":"2","n":3}],[{"px":"101","sz":"3","n":1}]]}}`,
			depth:    10,
			wantOK:   true,
			wantBids: []model.Level{{Price: 100, Size: 2}},
			wantAsks: []model.Level{{Price: 101, Size: 3}},
		},
		{
			name:     "格式错误的行单独跳过",
			raw:      `{"data":{"bids":[["x","1"],["100"],["99","-1"],["98","1"]],"asks":[null,["101","abc"],["102","1"]]}}`,
			depth:    10,
			wantOK:   true,
			wantBids: []model.Level{{Price: 98, Size: 1}},
			wantAsks: []model.Level{{Price: 102, Size: 1}},
		},
		{
			name:     "归一化时排序并截断",
			raw:      `{"data":{"bids":[["98","1"],["100","1"],["99","1"]],"asks":[["103","1"],["101","1"],["102","1"]]}}`,
			depth:    2,
			wantOK:   true,
			wantBids: []model.Level{{Price: 100, Size: 1}, {Price: 99, Size: 1}},
			wantAsks: []model.Level{{Price: 101, Size: 1}, {Price: 102, Size: 1}},
		},
		{
			name:     "币种不一致",
			raw:      `{"data":{"coin":"ETH","bids":[["100","1"]],"asks":[["101","1"]]}}`,
			depth:    10,
			wantOK:   false,
			wantBids: []model.Level{},
			wantAsks: []model.Level{},
		},
		{
			name:     "无法识别",
			raw:      `{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`,
			depth:    10,
			wantOK:   false,
			wantBids: []model.Level{},
			wantAsks: []model.Level{},
		},
		{
			name:     "非 JSON",
			raw:      `not json`,
			depth:    10,
			wantOK:   false,
			wantBids: []model.Level{},
			wantAsks: []model.Level{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, ok := ParseOrderBook([]byte(tt.raw), "BTC", tt.depth)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tt.wantOK)
			}
			if book.Bids == nil || book.Asks == nil {
				t.Fatalf("两侧不应为 nil")
			}
			if fmt.Sprint(book.Bids) != fmt.Sprint(tt.wantBids) {
				t.Fatalf("Bids=%v, want %v", book.Bids, tt.wantBids)
			}
			if fmt.Sprint(book.Asks) != fmt.Sprint(tt.wantAsks) {
				t.Fatalf("Asks=%v, want %v", book.Asks, tt.wantAsks)
			}
		})
	}
}

// TestParseOrderBook_Ordering 任意输入归一化后买盘非增、卖盘非减且不超过深度
func TestParseOrderBook_Ordering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("买盘降序卖盘升序", prop.ForAll(
		func(bidPx, askPx []float64, depth int) bool {
			rows := func(pxs []float64) [][2]string {
				out := make([][2]string, len(pxs))
				for i, p := range pxs {
					out[i] = [2]string{fmt.Sprintf("%.4f", p), "1"}
				}
				return out
			}
			raw, err := json.Marshal(map[string]any{
				"data": map[string]any{"bids": rows(bidPx), "asks": rows(askPx)},
			})
			if err != nil {
				return false
			}
			book, ok := ParseOrderBook(raw, "BTC", depth)
			if !ok || len(book.Bids) > depth || len(book.Asks) > depth {
				return false
			}
			for i := 1; i < len(book.Bids); i++ {
				if book.Bids[i].Price > book.Bids[i-1].Price {
					return false
				}
			}
			for i := 1; i < len(book.Asks); i++ {
				if book.Asks[i].Price < book.Asks[i-1].Price {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1e5)),
		gen.SliceOf(gen.Float64Range(0, 1e5)),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

func TestPickOrderBook(t *testing.T) {
	msgs := []Message{
		msgOf(`{"channel":"l2Book","data":{"coin":"BTC","bids":[["90","1"]],"asks":[["91","1"]]}}`),
		msgOf(`{"channel":"l2Book","data":{"coin":"BTC","bids":[["100","1"]],"asks":[["101","1"]]}}`),
		msgOf(`{"channel":"trades","data":[{"coin":"BTC","px":"100","sz":"1","side":"B"}]}`),
	}
	book := PickOrderBook(msgs, "BTC", 10)
	if bb, ok := book.BestBid(); !ok || bb.Price != 100 {
		t.Fatalf("应选择最新的订单簿, got %+v", book)
	}

	empty := PickOrderBook(nil, "BTC", 10)
	if empty == nil || empty.Bids == nil || empty.Asks == nil || !empty.Empty() {
		t.Fatalf("无消息时应返回空订单簿, got %+v", empty)
	}

	unknown := PickOrderBook([]Message{msgOf(`{"foo":1}`)}, "BTC", 10)
	if !unknown.Empty() {
		t.Fatalf("无法识别时应返回空订单簿")
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in   any
		want model.Side
	}{
		{"buy", model.SideBuy},
		{"Buy", model.SideBuy},
		{"b", model.SideBuy},
		{"B", model.SideBuy},
		{"bid", model.SideBuy},
		{"sell", model.SideSell},
		{"s", model.SideSell},
		{"A", model.SideSell},
		{"ask", model.SideSell},
		{"x", model.SideUnknown},
		{nil, model.SideUnknown},
		{1, model.SideUnknown},
	}
	for _, tt := range tests {
		if got := ParseSide(tt.in); got != tt.want {
			t.Fatalf("ParseSide(%v)=%s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseTrades(t *testing.T) {
	msgs := []Message{
		msgOf(`{"channel":"trades","data":[{"coin":"BTC","side":"B","px":"100","sz":"1","time":1,"tid":11},{"coin":"BTC","side":"A","px":"101","sz":"2","time":2,"tid":12}]}`),
		msgOf(`{"channel":"trades","data":{"coin":"BTC","aggressor":"sell","price":"102","size":"3"}}`),
		msgOf(`{"px":"103","sz":"1"}`),
		msgOf(`{"channel":"trades","data":[{"coin":"ETH","side":"B","px":"5","sz":"1"}]}`),
		msgOf(`{"channel":"trades","data":[{"coin":"BTC","side":"B","px":"bad","sz":"1"}]}`),
		msgOf(`garbage`),
	}

	all := ParseTrades(msgs, "BTC", 0)
	if len(all) != 4 {
		t.Fatalf("len=%d, want 4: %+v", len(all), all)
	}
	wantPx := []float64{100, 101, 102, 103}
	for i, p := range wantPx {
		if all[i].Price != p {
			t.Fatalf("第 %d 笔价格=%v, want %v（应保持到达顺序）", i, all[i].Price, p)
		}
	}
	wantSide := []model.Side{model.SideBuy, model.SideSell, model.SideSell, model.SideUnknown}
	for i, s := range wantSide {
		if all[i].Side != s {
			t.Fatalf("第 %d 笔方向=%s, want %s", i, all[i].Side, s)
		}
	}
	if all[0].TimeMs != 1 || all[0].TID != 11 {
		t.Fatalf("时间或编号解析错误: %+v", all[0])
	}

	last2 := ParseTrades(msgs, "BTC", 2)
	if len(last2) != 2 || last2[0].Price != 102 || last2[1].Price != 103 {
		t.Fatalf("应保留最近 2 笔, got %+v", last2)
	}

	none := ParseTrades(nil, "BTC", 5)
	if none == nil || len(none) != 0 {
		t.Fatalf("无消息时应返回空列表")
	}
}

func TestDecodeMetaAndAssetCtxs(t *testing.T) {
	raw := `[{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":50},{"name":"ETH","szDecimals":4,"maxLeverage":50}]},
	[{"funding":"0.0000125","premium":"0.0003","openInterest":"1000","markPx":"100.5","oraclePx":"100.4","midPx":"100.5","dayNtlVlm":"123456.7","prevDayPx":"99"},
	 {"funding":0.0001,"openInterest":"n/a","markPx":null}]]`

	m, err := DecodeMetaAndAssetCtxs([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeMetaAndAssetCtxs 失败: %v", err)
	}
	if len(m.Meta.Universe) != 2 || len(m.Contexts) != 2 {
		t.Fatalf("universe/contexts 数量错误: %d/%d", len(m.Meta.Universe), len(m.Contexts))
	}

	btc, ok := m.Context("btc")
	if !ok {
		t.Fatalf("应能按小写币种查找")
	}
	if btc.Funding == nil || *btc.Funding != 0.0000125 {
		t.Fatalf("funding 解析错误: %v", btc.Funding)
	}
	if btc.OpenInterest == nil || *btc.OpenInterest != 1000 {
		t.Fatalf("openInterest 解析错误: %v", btc.OpenInterest)
	}
	if btc.DayNtlVlm == nil || *btc.DayNtlVlm != 123456.7 {
		t.Fatalf("dayNtlVlm 解析错误: %v", btc.DayNtlVlm)
	}

	eth, _ := m.Context("ETH")
	if eth.Funding == nil || *eth.Funding != 0.0001 {
		t.Fatalf("数字形式的 funding 解析错误: %v", eth.Funding)
	}
	if eth.OpenInterest != nil || eth.MarkPx != nil || eth.Premium != nil {
		t.Fatalf("不可解析或缺失的字段应为 nil: %+v", eth)
	}

	if _, ok := m.Context("DOGE"); ok {
		t.Fatalf("未知币种不应找到")
	}

	for _, bad := range []string{`{}`, `[1]`, `[{"universe":[]}, 5]`} {
		if _, err := DecodeMetaAndAssetCtxs([]byte(bad)); err == nil {
			t.Fatalf("%s 应解析失败", bad)
		}
	}
}
