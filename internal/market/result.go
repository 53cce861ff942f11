// Package market 组合 info 接口、行情流与分析函数，对外提供统一的查询操作。
// 每个操作都返回 {ok, data, summary} 信封；部分数据源失败时返回降级结果并在 flags 中标注，
// 只有调用方输入非法或数据完全缺失时才返回 ok=false。
package market

import (
	"errors"
	"fmt"
)

// ErrInvalidInput 调用方输入非法
var ErrInvalidInput = errors.New("invalid input")

// errNoData 采集超时内没有收到任何可用数据，不写入缓存
var errNoData = errors.New("no data")

// FailureKind 失败类别，供传输层映射状态码
type FailureKind string

const (
	// FailureNone 成功
	FailureNone FailureKind = ""
	// FailureInput 输入非法
	FailureInput FailureKind = "input"
	// FailureUpstream 上游请求失败
	FailureUpstream FailureKind = "upstream"
	// FailureUnavailable 数据不足以完成计算
	FailureUnavailable FailureKind = "unavailable"
)

// Result 查询结果信封
type Result struct {
	// OK 是否成功
	OK bool `json:"ok"`
	// Data 结构化结果
	Data any `json:"data,omitempty"`
	// Summary 一行可读摘要
	Summary string `json:"summary,omitempty"`
	// Error 失败原因
	Error string `json:"error,omitempty"`
	// Kind 失败类别
	Kind FailureKind `json:"-"`
}

// success 构造成功结果
func success(data any, format string, args ...any) Result {
	return Result{OK: true, Data: data, Summary: fmt.Sprintf(format, args...)}
}

// failure 按错误类型构造失败结果
func failure(err error) Result {
	kind := FailureUpstream
	switch {
	case errors.Is(err, ErrInvalidInput):
		kind = FailureInput
	case errors.Is(err, errNoData):
		kind = FailureUnavailable
	}
	return Result{OK: false, Error: err.Error(), Kind: kind}
}

// unavailable 数据不足的失败结果
func unavailable(msg string) Result {
	return Result{OK: false, Error: msg, Kind: FailureUnavailable}
}

// invalid 包装输入错误
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// formatPtr 摘要中展示可选数值
func formatPtr(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}
