package hyperliquid

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Descriptor 订阅描述，如 {"type":"l2Book","coin":"BTC"}
// 字段可扩展（nSigFigs、interval 等）
type Descriptor map[string]any

// SubscriptionKey 订阅描述的规范化序列化结果
type SubscriptionKey string

// NewDescriptor 创建类型 + 币种的订阅描述
func NewDescriptor(typ, coin string) Descriptor {
	return Descriptor{"type": typ, "coin": coin}
}

// Type 订阅类型
func (d Descriptor) Type() string {
	s, _ := d["type"].(string)
	return s
}

// Coin 币种
func (d Descriptor) Coin() string {
	s, _ := d["coin"].(string)
	return s
}

// Key 规范化键
// encoding/json 对 map 按键排序输出，字段插入顺序不影响结果
func (d Descriptor) Key() SubscriptionKey {
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		// 只有包含不可序列化的值时才会失败
		return SubscriptionKey(fmt.Sprintf("%v", map[string]any(d)))
	}
	return SubscriptionKey(b)
}

// covers 判断上游回传的描述是否覆盖本地描述的全部字段
// 上游可能补充默认字段（如 nSigFigs: null），因此只比较本地已有的键
func (d Descriptor) covers(remote map[string]any) bool {
	if len(d) == 0 || remote == nil {
		return false
	}
	for k, v := range d {
		rv, ok := remote[k]
		if !ok || fmt.Sprint(rv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// String 便于日志输出
func (d Descriptor) String() string {
	return strings.TrimSpace(string(d.Key()))
}
