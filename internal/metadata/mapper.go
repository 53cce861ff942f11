package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidAddress 地址格式错误
var ErrInvalidAddress = errors.New("地址必须是 0x 开头的 40 位十六进制字符串")

// ErrEmptyCoin 币种为空
var ErrEmptyCoin = errors.New("币种不能为空")

var (
	addressRe       = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	addressInTextRe = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	tickerRe        = regexp.MustCompile(`(?:^|[^A-Za-z0-9_])\$([A-Za-z]{2,10})\b`)
)

// coinSuffixes 常见的合约后缀，规范化时移除
var coinSuffixes = []string{"-PERP", "_PERP", "PERP", "-USDC", "/USDC", "-USD", "/USD"}

// NormalizeCoin 规范化币种输入
// 例如: $btc -> BTC, eth-perp -> ETH, BTC/USD -> BTC；kPEPE 这类千倍币保持原样
// 参数 s: 用户输入
// 返回: Hyperliquid 币种名，输入为空时返回 ErrEmptyCoin
func NormalizeCoin(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return "", ErrEmptyCoin
	}

	upper := strings.ToUpper(s)
	for _, suffix := range coinSuffixes {
		if len(upper) > len(suffix) && strings.HasSuffix(upper, suffix) {
			s = s[:len(s)-len(suffix)]
			upper = upper[:len(upper)-len(suffix)]
			break
		}
	}

	if isKiloCoin(s) {
		return s, nil
	}
	return upper, nil
}

// isKiloCoin 判断 kPEPE 形式（小写 k + 大写名称）
func isKiloCoin(s string) bool {
	if len(s) < 2 || s[0] != 'k' {
		return false
	}
	for _, r := range s[1:] {
		if unicode.IsLower(r) {
			return false
		}
	}
	return true
}

// ValidateAddress 校验 0x 地址
func ValidateAddress(addr string) error {
	if !addressRe.MatchString(strings.TrimSpace(addr)) {
		return fmt.Errorf("%w: '%s'", ErrInvalidAddress, addr)
	}
	return nil
}

// ExtractTickers 从自由文本中提取 $TICKER，去重并保持出现顺序
func ExtractTickers(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range tickerRe.FindAllStringSubmatch(text, -1) {
		t := strings.ToUpper(m[1])
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ExtractAddress 从自由文本中提取第一个 0x 地址
func ExtractAddress(text string) (string, bool) {
	m := addressInTextRe.FindString(text)
	return m, m != ""
}
