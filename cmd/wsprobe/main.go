// Package main 是行情流探针：对单个订阅采集一批消息，写入 JSONL 并打印归一化后的摘要。
// 用于排查订阅写法、路由与解析问题。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/core/analytics"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
	"hyperliquid-market-aggregator/internal/logging"
	"hyperliquid-market-aggregator/internal/metadata"
	"hyperliquid-market-aggregator/internal/output/jsonl"
	"hyperliquid-market-aggregator/internal/util/fastparse"
)

func main() {
	var (
		configPath string
		network    string
		coinArg    string
		channel    string
		maxMsgs    int
		timeout    time.Duration
		depth      int
		outPath    string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&network, "network", config.NetworkMainnet, "网络: mainnet / testnet")
	flag.StringVar(&coinArg, "coin", "BTC", "币种")
	flag.StringVar(&channel, "type", hyperliquid.ChannelL2Book, "订阅类型: l2Book / trades")
	flag.IntVar(&maxMsgs, "max", 5, "最多采集的消息数")
	flag.DurationVar(&timeout, "timeout", 3*time.Second, "采集超时")
	flag.IntVar(&depth, "depth", 10, "订单簿档位")
	flag.StringVar(&outPath, "out", "", "JSONL 输出路径，默认 <output.dir>/wsprobe.jsonl")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
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

	net, err := config.NormalizeNetwork(network)
	if err != nil {
		logger.Error("网络参数非法", zap.Error(err))
		os.Exit(2)
	}
	coin, err := metadata.NormalizeCoin(coinArg)
	if err != nil {
		logger.Error("币种参数非法", zap.Error(err))
		os.Exit(2)
	}
	if outPath == "" {
		outPath = filepath.Join(cfg.Output.Dir, "wsprobe.jsonl")
	}
	journal, err := jsonl.Open(outPath, cfg.Output.BufferSize)
	if err != nil {
		logger.Error("创建输出文件失败", zap.Error(err))
		os.Exit(1)
	}
	defer journal.Close()

	registry := hyperliquid.NewRegistry(cfg, logger)
	defer registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	desc := hyperliquid.NewDescriptor(channel, coin)
	start := time.Now()
	msgs := registry.Collect(ctx, net, desc, maxMsgs, timeout)
	elapsed := time.Since(start)

	for _, m := range msgs {
		_ = journal.Append("ws_message", net, m)
	}

	switch channel {
	case hyperliquid.ChannelTrades:
		trades := hyperliquid.ParseTrades(msgs, coin, 0)
		tm := analytics.Trades(trades, nil)
		fmt.Printf("%s %s trades=%d buys=%d sells=%d vwap=%s\n",
			net, desc, tm.Count, tm.Buys, tm.Sells, formatPtr(tm.VWAP))
	default:
		book := hyperliquid.PickOrderBook(msgs, coin, depth)
		bm := analytics.OrderBook(book, analytics.DefaultTopN)
		fmt.Printf("%s %s levels=%d/%d mid=%s spreadBps=%s imbalance=%.3f\n",
			net, desc, len(book.Bids), len(book.Asks), formatPtr(bm.Mid), formatPtr(bm.SpreadBps), bm.Imbalance)
	}

	for _, st := range registry.Stats() {
		_ = journal.Append("session", st.Network, st)
	}
	written, dropped, failed := journal.Stats()
	logger.Info("采集完成",
		zap.String("subscription", desc.String()),
		zap.Int("messages", len(msgs)),
		zap.Duration("elapsed", elapsed),
		zap.String("out", journal.Path()),
		zap.Int64("written", written),
		zap.Int64("dropped", dropped),
		zap.Int64("failed", failed),
	)
}

func formatPtr(v *float64) string {
	if v == nil {
		return "null"
	}
	return fastparse.FormatFloat(*v, -1)
}
