// Package main 是 Hyperliquid 行情聚合服务的入口点。
// 服务按网络维护共享的 WebSocket 会话，结合 info 接口与短期缓存，
// 通过 HTTP 对外提供订单簿、成交、全景视图与分析类查询。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/cache"
	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/core/signal"
	"hyperliquid-market-aggregator/internal/core/store"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
	"hyperliquid-market-aggregator/internal/logging"
	"hyperliquid-market-aggregator/internal/market"
	"hyperliquid-market-aggregator/internal/metadata"
	"hyperliquid-market-aggregator/internal/output/jsonl"
	"hyperliquid-market-aggregator/internal/stats/latency"
	"hyperliquid-market-aggregator/internal/stats/telemetry"
	"hyperliquid-market-aggregator/internal/transport/httpapi"
)

// reportSnapshot 周期性写入的遥测快照
type reportSnapshot struct {
	// Telemetry 进程内计数
	Telemetry telemetry.Snapshot `json:"telemetry"`
	// Cache 缓存命中统计
	Cache cache.Stats `json:"cache"`
	// Sessions 行情会话状态（一次性连接模式下为空）
	Sessions []hyperliquid.SessionStats `json:"sessions,omitempty"`
}

func main() {
	var (
		configPath string
		envFile    string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&envFile, "env", ".env", "dotenv 文件路径")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "加载环境变量文件失败: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(cfg.App)
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	tel := telemetry.New(latency.DefaultWindowSize)
	ttl := cache.New(cache.WithObserver(tel))
	info := metadata.NewClient(cfg, tel, logger)
	collector, stopCollector := hyperliquid.NewCollector(cfg, logger)

	var sessions market.SessionReporter
	if r, ok := collector.(market.SessionReporter); ok {
		sessions = r
	}

	svc := market.NewService(market.Deps{
		Config:    cfg,
		Info:      info,
		Collector: collector,
		Cache:     ttl,
		Signal:    signal.NewEngine(cfg.Signal),
		OI:        store.New(config.Millis(cfg.Cache.OIHistoryTTLMs), nil),
		Telemetry: tel,
		Sessions:  sessions,
		Logger:    logger,
	})

	var journal *jsonl.Journal
	if cfg.Output.MetricsEnabled {
		journal, err = jsonl.Open(filepath.Join(cfg.Output.Dir, "telemetry.jsonl"), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建遥测输出失败", zap.Error(err))
			os.Exit(1)
		}
		go runReporter(ctx, logger, journal, tel, ttl, sessions, config.Millis(cfg.Output.MetricsIntervalMs))
	}

	logger.Info("服务启动",
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("shared_session", cfg.Stream.SharedSession()),
		zap.Float64("theta", svc.Theta()),
	)

	server := httpapi.NewServer(cfg.Server, svc, tel, logger)
	if err := server.Run(ctx); err != nil {
		logger.Error("HTTP 服务退出", zap.Error(err))
		cancel()
	}

	// 输出最后一条遥测快照（便于离线复盘）
	if journal != nil {
		_ = journal.Append("telemetry", "", snapshot(tel, ttl, sessions))
		_ = journal.Flush()
	}

	// 优雅关闭（超时后强制退出）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Millis(cfg.Server.ShutdownTimeoutMs))
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := stopCollector(); err != nil {
			logger.Warn("关闭行情会话失败", zap.Error(err))
		}
		if journal != nil {
			_ = journal.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// snapshot 汇总当前遥测
func snapshot(tel *telemetry.Telemetry, ttl *cache.TTL, sessions market.SessionReporter) reportSnapshot {
	s := reportSnapshot{Telemetry: tel.Snapshot(), Cache: ttl.Stats()}
	if sessions != nil {
		s.Sessions = sessions.Stats()
	}
	return s
}

// runReporter 周期性写入遥测快照
func runReporter(
	ctx context.Context,
	logger *zap.Logger,
	journal *jsonl.Journal,
	tel *telemetry.Telemetry,
	ttl *cache.TTL,
	sessions market.SessionReporter,
	interval time.Duration,
) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := journal.Append("telemetry", "", snapshot(tel, ttl, sessions)); err != nil {
				logger.Warn("写入遥测快照失败", zap.Error(err))
			}
			written, dropped, failed := journal.Stats()
			logger.Debug("遥测快照",
				zap.Int64("written", written),
				zap.Int64("dropped", dropped),
				zap.Int64("failed", failed),
			)
		}
	}
}
