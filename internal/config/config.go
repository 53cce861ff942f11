// Package config 负责加载和验证服务配置。
// 加载顺序: YAML 文件（可选）→ 环境变量覆盖 → 默认值 → 校验。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NetworkMainnet 主网
	NetworkMainnet = "mainnet"
	// NetworkTestnet 测试网
	NetworkTestnet = "testnet"

	defaultMainnetInfo = "https://api.hyperliquid.xyz/info"
	defaultMainnetWS   = "wss://api.hyperliquid.xyz/ws"
	defaultTestnetInfo = "https://api.hyperliquid-testnet.xyz/info"
	defaultTestnetWS   = "wss://api.hyperliquid-testnet.xyz/ws"
)

// ErrUnknownNetwork 网络参数无法识别
var ErrUnknownNetwork = errors.New("未知网络")

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Networks 主网/测试网上游地址
	Networks NetworksConfig `yaml:"networks"`
	// HTTP info 接口请求配置
	HTTP HTTPConfig `yaml:"http"`
	// Stream 流式订阅配置
	Stream StreamConfig `yaml:"stream"`
	// Cache 各数据类别的缓存有效期
	Cache CacheConfig `yaml:"cache"`
	// Signal 综合信号参数
	Signal SignalConfig `yaml:"signal"`
	// Query 查询操作默认参数
	Query QueryConfig `yaml:"query"`
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile 日志文件路径，为空时只输出到 stderr
	LogFile string `yaml:"log_file"`
	// LogMaxSizeMB 单个日志文件大小上限（MB）
	LogMaxSizeMB int `yaml:"log_max_size_mb"`
	// LogMaxBackups 保留的旧日志文件个数
	LogMaxBackups int `yaml:"log_max_backups"`
}

// NetworksConfig 两个网络的上游地址
type NetworksConfig struct {
	// Mainnet 主网
	Mainnet EndpointConfig `yaml:"mainnet"`
	// Testnet 测试网
	Testnet EndpointConfig `yaml:"testnet"`
}

// EndpointConfig 单个网络的上游地址
type EndpointConfig struct {
	// InfoURL info 接口地址（POST）
	InfoURL string `yaml:"info_url"`
	// WSURL 流式接口地址
	WSURL string `yaml:"ws_url"`
}

// HTTPConfig info 接口请求配置
type HTTPConfig struct {
	// TimeoutMs 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// RequestsPerSecond 每秒请求上限，0 表示使用默认值
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst 令牌桶容量
	Burst int `yaml:"burst"`
}

// StreamConfig 流式订阅配置
type StreamConfig struct {
	// Shared 是否使用每网络共享会话；false 时每次采集单独建连
	Shared *bool `yaml:"shared"`
	// CollectTimeoutMs 单次采集超时（毫秒）
	CollectTimeoutMs int `yaml:"collect_timeout_ms"`
	// OrderBookMessages 订单簿每次采集的最大消息数
	OrderBookMessages int `yaml:"orderbook_messages"`
	// BufferCapacity 每个订阅缓冲区容量，满后丢弃最旧消息
	BufferCapacity int `yaml:"buffer_capacity"`
	// SubscribeTimeoutMs 订阅确认等待上限（毫秒）
	SubscribeTimeoutMs int `yaml:"subscribe_timeout_ms"`
	// HandshakeTimeoutMs 建连握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReconnectBaseMs 重连等待基础值（毫秒）
	ReconnectBaseMs int `yaml:"reconnect_base_ms"`
	// ReconnectMaxMs 重连等待上限（毫秒），等于基础值时为固定间隔
	ReconnectMaxMs int `yaml:"reconnect_max_ms"`
}

// CacheConfig 各数据类别缓存有效期（毫秒）
type CacheConfig struct {
	// ContextsTTLMs 元数据与资产上下文
	ContextsTTLMs int `yaml:"contexts_ttl_ms"`
	// OrderBookTTLMs 订单簿快照
	OrderBookTTLMs int `yaml:"orderbook_ttl_ms"`
	// TradesTTLMs 成交列表
	TradesTTLMs int `yaml:"trades_ttl_ms"`
	// OIHistoryTTLMs 上一次 OI 读数的保留时间
	OIHistoryTTLMs int `yaml:"oi_history_ttl_ms"`
}

// SignalConfig 综合信号参数
type SignalConfig struct {
	// Theta 买卖判定阈值，|score| 超过该值才给出方向
	Theta float64 `yaml:"theta"`
}

// QueryConfig 查询操作默认参数
type QueryConfig struct {
	// OrderBookDepth 订单簿默认档位
	OrderBookDepth int `yaml:"orderbook_depth"`
	// AnalyticsDepth 滑点与流动性分布默认档位
	AnalyticsDepth int `yaml:"analytics_depth"`
	// PictureTrades 全景视图默认成交数
	PictureTrades int `yaml:"picture_trades"`
	// VolatilityTrades 波动率默认成交数
	VolatilityTrades int `yaml:"volatility_trades"`
	// BatchDepth 批量全景视图默认档位
	BatchDepth int `yaml:"batch_depth"`
	// BatchConcurrency 批量全景视图并发上限
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// Addr 监听地址
	Addr string `yaml:"addr"`
	// ShutdownTimeoutMs 优雅关闭超时（毫秒）
	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// MetricsEnabled 是否周期性输出遥测快照
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsIntervalMs 遥测输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 加载配置
// 参数 path: YAML 配置文件路径，为空或文件不存在时只使用环境变量与默认值
// 返回: 校验通过的配置
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 允许纯环境变量部署
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hyperliquid-market-aggregator"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogMaxSizeMB == 0 {
		c.App.LogMaxSizeMB = 100
	}
	if c.App.LogMaxBackups == 0 {
		c.App.LogMaxBackups = 5
	}

	if c.Networks.Mainnet.InfoURL == "" {
		c.Networks.Mainnet.InfoURL = defaultMainnetInfo
	}
	if c.Networks.Mainnet.WSURL == "" {
		c.Networks.Mainnet.WSURL = defaultMainnetWS
	}
	if c.Networks.Testnet.InfoURL == "" {
		c.Networks.Testnet.InfoURL = defaultTestnetInfo
	}
	if c.Networks.Testnet.WSURL == "" {
		c.Networks.Testnet.WSURL = defaultTestnetWS
	}

	if c.HTTP.TimeoutMs == 0 {
		c.HTTP.TimeoutMs = 20000 // 20 秒
	}
	if c.HTTP.RequestsPerSecond == 0 {
		c.HTTP.RequestsPerSecond = 10
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 5
	}

	if c.Stream.Shared == nil {
		shared := true
		c.Stream.Shared = &shared
	}
	if c.Stream.CollectTimeoutMs == 0 {
		c.Stream.CollectTimeoutMs = 6000 // 6 秒
	}
	if c.Stream.OrderBookMessages == 0 {
		c.Stream.OrderBookMessages = 5
	}
	if c.Stream.BufferCapacity == 0 {
		c.Stream.BufferCapacity = 200
	}
	if c.Stream.SubscribeTimeoutMs == 0 {
		c.Stream.SubscribeTimeoutMs = 5000
	}
	if c.Stream.HandshakeTimeoutMs == 0 {
		c.Stream.HandshakeTimeoutMs = 10000
	}
	if c.Stream.PingIntervalMs == 0 {
		c.Stream.PingIntervalMs = 20000
	}
	if c.Stream.ReconnectBaseMs == 0 {
		c.Stream.ReconnectBaseMs = 1000
	}
	if c.Stream.ReconnectMaxMs == 0 {
		c.Stream.ReconnectMaxMs = c.Stream.ReconnectBaseMs
	}

	if c.Cache.ContextsTTLMs == 0 {
		c.Cache.ContextsTTLMs = 5000
	}
	if c.Cache.OrderBookTTLMs == 0 {
		c.Cache.OrderBookTTLMs = 2000
	}
	if c.Cache.TradesTTLMs == 0 {
		c.Cache.TradesTTLMs = 2000
	}
	if c.Cache.OIHistoryTTLMs == 0 {
		c.Cache.OIHistoryTTLMs = 60000
	}

	if c.Signal.Theta == 0 {
		c.Signal.Theta = 0.15
	}

	if c.Query.OrderBookDepth == 0 {
		c.Query.OrderBookDepth = 50
	}
	if c.Query.AnalyticsDepth == 0 {
		c.Query.AnalyticsDepth = 100
	}
	if c.Query.PictureTrades == 0 {
		c.Query.PictureTrades = 30
	}
	if c.Query.VolatilityTrades == 0 {
		c.Query.VolatilityTrades = 200
	}
	if c.Query.BatchDepth == 0 {
		c.Query.BatchDepth = 30
	}
	if c.Query.BatchConcurrency == 0 {
		c.Query.BatchConcurrency = 4
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeoutMs == 0 {
		c.Server.ShutdownTimeoutMs = 10000
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.MetricsIntervalMs == 0 {
		c.Output.MetricsIntervalMs = 10000
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 返回: 若配置无效则返回汇总了全部问题的错误
func (c *Config) Validate() error {
	var errs []string

	for name, ep := range map[string]EndpointConfig{
		"networks.mainnet": c.Networks.Mainnet,
		"networks.testnet": c.Networks.Testnet,
	} {
		if ep.InfoURL == "" {
			errs = append(errs, name+".info_url: info 地址不能为空")
		}
		if !strings.HasPrefix(ep.WSURL, "ws://") && !strings.HasPrefix(ep.WSURL, "wss://") {
			errs = append(errs, fmt.Sprintf("%s.ws_url: 必须以 ws:// 或 wss:// 开头，当前值 '%s'", name, ep.WSURL))
		}
	}

	if c.HTTP.TimeoutMs <= 0 {
		errs = append(errs, "http.timeout_ms: 超时必须为正数")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		errs = append(errs, "http.requests_per_second: 不能为负数")
	}

	if c.Stream.CollectTimeoutMs < 0 {
		errs = append(errs, "stream.collect_timeout_ms: 不能为负数")
	}
	if c.Stream.OrderBookMessages <= 0 {
		errs = append(errs, "stream.orderbook_messages: 必须为正数")
	}
	if c.Stream.BufferCapacity <= 0 {
		errs = append(errs, "stream.buffer_capacity: 必须为正数")
	}
	if c.Stream.SubscribeTimeoutMs <= 0 || c.Stream.HandshakeTimeoutMs <= 0 {
		errs = append(errs, "stream: 订阅与握手超时必须为正数")
	}
	if c.Stream.ReconnectBaseMs <= 0 {
		errs = append(errs, "stream.reconnect_base_ms: 必须为正数")
	}
	if c.Stream.ReconnectMaxMs < c.Stream.ReconnectBaseMs {
		errs = append(errs, "stream.reconnect_max_ms: 不能小于 reconnect_base_ms")
	}

	if c.Cache.ContextsTTLMs < 0 || c.Cache.OrderBookTTLMs < 0 || c.Cache.TradesTTLMs < 0 || c.Cache.OIHistoryTTLMs < 0 {
		errs = append(errs, "cache: 有效期不能为负数")
	}

	if c.Signal.Theta <= 0 || c.Signal.Theta >= 1 {
		errs = append(errs, fmt.Sprintf("signal.theta: 阈值必须在 (0, 1) 之间，当前值: %f", c.Signal.Theta))
	}

	if c.Query.BatchConcurrency <= 0 {
		errs = append(errs, "query.batch_concurrency: 必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// NormalizeNetwork 规范化网络参数
// 空值视为主网；test/testnet 为测试网；其他值返回 ErrUnknownNetwork
func NormalizeNetwork(network string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", "main", NetworkMainnet:
		return NetworkMainnet, nil
	case "test", NetworkTestnet:
		return NetworkTestnet, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownNetwork, network)
	}
}

// Endpoint 返回指定网络的上游地址
func (c *Config) Endpoint(network string) (EndpointConfig, error) {
	n, err := NormalizeNetwork(network)
	if err != nil {
		return EndpointConfig{}, err
	}
	if n == NetworkTestnet {
		return c.Networks.Testnet, nil
	}
	return c.Networks.Mainnet, nil
}

// SharedSession 是否启用共享会话
func (s StreamConfig) SharedSession() bool {
	return s.Shared == nil || *s.Shared
}

// CollectTimeout 单次采集超时
func (s StreamConfig) CollectTimeout() time.Duration {
	return time.Duration(s.CollectTimeoutMs) * time.Millisecond
}

// Millis 毫秒整数转 time.Duration
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
