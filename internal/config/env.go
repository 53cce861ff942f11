package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// 环境变量名，时间类取值单位为秒（允许小数）
const (
	EnvMainnetInfo   = "HYPERLIQUID_MAINNET_INFO"
	EnvMainnetWS     = "HYPERLIQUID_MAINNET_WS"
	EnvTestnetInfo   = "HYPERLIQUID_TESTNET_INFO"
	EnvTestnetWS     = "HYPERLIQUID_TESTNET_WS"
	EnvHTTPTimeout   = "HYPERLIQUID_HTTP_TIMEOUT"
	EnvWSShared      = "HYPERLIQUID_WS_SHARED"
	EnvWSTimeout     = "HYPERLIQUID_WS_TIMEOUT"
	EnvWSOBMessages  = "HYPERLIQUID_WS_OB_MSGS"
	EnvContextsTTL   = "HYPERLIQUID_CTXS_TTL"
	EnvOrderBookTTL  = "HYPERLIQUID_OB_TTL"
	EnvTradesTTL     = "HYPERLIQUID_TRADES_TTL"
	EnvSignalTheta   = "HYPERLIQUID_SIGNAL_THETA"
	EnvLogLevel      = "HYPERLIQUID_LOG_LEVEL"
	EnvServerAddress = "HYPERLIQUID_SERVER_ADDR"
)

// LookupFunc 环境变量查询函数，签名与 os.LookupEnv 一致
type LookupFunc func(key string) (string, bool)

// LoadDotEnv 把 .env 文件中的变量导入进程环境
// 已存在的环境变量不会被覆盖；文件不存在时静默跳过
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载 %s 失败: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置
// 参数 lookup: 环境变量查询函数
// 返回: 任一变量格式错误时返回汇总错误
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	seconds := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			errs = append(errs, fmt.Sprintf("%s: 无效的秒数 '%s'", key, v))
			return
		}
		*dst = int(math.Round(f * 1000))
	}

	str(EnvMainnetInfo, &c.Networks.Mainnet.InfoURL)
	str(EnvMainnetWS, &c.Networks.Mainnet.WSURL)
	str(EnvTestnetInfo, &c.Networks.Testnet.InfoURL)
	str(EnvTestnetWS, &c.Networks.Testnet.WSURL)
	str(EnvLogLevel, &c.App.LogLevel)
	str(EnvServerAddress, &c.Server.Addr)

	seconds(EnvHTTPTimeout, &c.HTTP.TimeoutMs)
	seconds(EnvWSTimeout, &c.Stream.CollectTimeoutMs)
	seconds(EnvContextsTTL, &c.Cache.ContextsTTLMs)
	seconds(EnvOrderBookTTL, &c.Cache.OrderBookTTLMs)
	seconds(EnvTradesTTL, &c.Cache.TradesTTLMs)

	if v, ok := lookup(EnvWSShared); ok && strings.TrimSpace(v) != "" {
		shared := strings.TrimSpace(v) != "0"
		c.Stream.Shared = &shared
	}

	if v, ok := lookup(EnvWSOBMessages); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("%s: 必须为正整数 '%s'", EnvWSOBMessages, v))
		} else {
			c.Stream.OrderBookMessages = n
		}
	}

	if v, ok := lookup(EnvSignalTheta); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: 无效的阈值 '%s'", EnvSignalTheta, v))
		} else {
			c.Signal.Theta = f
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("环境变量错误:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
