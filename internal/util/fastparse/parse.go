// Package fastparse 解析行情消息中的数值字段。
// 上游价格、数量、资金费率等字段可能是字符串也可能是 JSON 数字，统一在这里处理。
package fastparse

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseFloat 解析浮点数字符串
// 参数 s: 待解析的字符串，如 "12345.67"，允许首尾空白
// 返回: 解析后的浮点数和可能的错误
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Number 把任意 JSON 解码值解析为有限浮点数
// 支持 float64、json.Number、string 以及整数类型；NaN/Inf 视为不可用。
// 返回: 数值与是否可用
func Number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		if x == "" {
			return 0, false
		}
		parsed, err := ParseFloat(x)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NumberPtr 与 Number 相同，但不可用时返回 nil，便于直接放进 JSON 输出
func NumberPtr(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	return &f
}

// FormatFloat 格式化浮点数，prec 为 -1 时使用最短表示
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// Round 四舍五入到指定小数位
func Round(f float64, places int) float64 {
	p := math.Pow10(places)
	r := math.Round(f*p) / p
	if r == 0 {
		// 去掉 -0
		return 0
	}
	return r
}
