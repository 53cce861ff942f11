package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/cache"
	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/core/model"
	"hyperliquid-market-aggregator/internal/core/signal"
	"hyperliquid-market-aggregator/internal/core/store"
	"hyperliquid-market-aggregator/internal/exchange/hyperliquid"
	"hyperliquid-market-aggregator/internal/metadata"
	"hyperliquid-market-aggregator/internal/stats/telemetry"
	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// InfoSource info 接口的请求方
type InfoSource interface {
	Post(ctx context.Context, network string, payload map[string]any) (json.RawMessage, error)
	MetaAndAssetCtxs(ctx context.Context, network string) (*hyperliquid.MetaAndAssetCtxs, error)
	Meta(ctx context.Context, network, dex string) (*hyperliquid.Meta, error)
	ClearinghouseState(ctx context.Context, network, user, dex string) (*metadata.ClearinghouseState, error)
	UserFunding(ctx context.Context, network, user string, startMs, endMs int64) ([]metadata.UserFundingEntry, error)
	UserNonFundingLedgerUpdates(ctx context.Context, network, user string, startMs, endMs int64) ([]metadata.LedgerUpdate, error)
	ActiveAssetData(ctx context.Context, network, user, coin string) (*metadata.ActiveAssetData, error)
	PerpDexs(ctx context.Context, network string) ([]*metadata.PerpDex, error)
	PerpDexLimits(ctx context.Context, network, dex string) (*metadata.PerpDexLimits, error)
	PerpDeployAuctionStatus(ctx context.Context, network string) (*metadata.PerpDeployAuctionStatus, error)
	FundingHistory(ctx context.Context, network, coin string, startMs, endMs int64) ([]metadata.FundingHistoryEntry, error)
	PredictedFundings(ctx context.Context, network string) (json.RawMessage, error)
	PerpsAtOpenInterestCap(ctx context.Context, network string) ([]string, error)
}

// SessionReporter 行情会话状态来源
type SessionReporter interface {
	Stats() []hyperliquid.SessionStats
}

// Deps 服务依赖
type Deps struct {
	// Config 全局配置
	Config *config.Config
	// Info info 接口客户端
	Info InfoSource
	// Collector 行情流采集器
	Collector hyperliquid.Collector
	// Cache 快照缓存，为 nil 时新建
	Cache *cache.TTL
	// Signal 信号评分器，为 nil 时按配置新建
	Signal *signal.Engine
	// OI 上一次 OI 读数，为 nil 时按配置新建
	OI *store.Store
	// Telemetry 遥测，为 nil 时新建
	Telemetry *telemetry.Telemetry
	// Sessions 会话状态来源，可以为 nil
	Sessions SessionReporter
	// Logger 日志
	Logger *zap.Logger
	// Clock 时钟，为 nil 时使用系统时钟
	Clock timeutil.Clock
}

// Service 查询服务，可被多个 goroutine 共享
type Service struct {
	cfg       *config.Config
	info      InfoSource
	collector hyperliquid.Collector
	cache     *cache.TTL
	signal    *signal.Engine
	oi        *store.Store
	tel       *telemetry.Telemetry
	sessions  SessionReporter
	logger    *zap.Logger
	clock     timeutil.Clock
}

// NewService 创建查询服务
// 参数 deps: 依赖，Config/Info/Collector 必填
func NewService(deps Deps) *Service {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tel := deps.Telemetry
	if tel == nil {
		tel = telemetry.New(0)
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(cache.WithClock(clock), cache.WithObserver(tel))
	}
	eng := deps.Signal
	if eng == nil {
		eng = signal.NewEngine(cfg.Signal)
	}
	oi := deps.OI
	if oi == nil {
		oi = store.New(config.Millis(cfg.Cache.OIHistoryTTLMs), clock)
	}
	return &Service{
		cfg:       cfg,
		info:      deps.Info,
		collector: deps.Collector,
		cache:     c,
		signal:    eng,
		oi:        oi,
		tel:       tel,
		sessions:  deps.Sessions,
		logger:    logger.Named("market"),
		clock:     clock,
	}
}

// Theta 综合信号阈值
func (s *Service) Theta() float64 {
	return s.signal.Theta()
}

// now 当前毫秒时间戳
func (s *Service) now() int64 {
	return s.clock().UnixMilli()
}

// network 规范化网络名
func network(name string) (string, error) {
	n, err := config.NormalizeNetwork(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return n, nil
}

// coin 规范化币种
func coin(name string) (string, error) {
	c, err := metadata.NormalizeCoin(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return c, nil
}

// target 同时规范化网络与币种
func target(net, c string) (string, string, error) {
	n, err := network(net)
	if err != nil {
		return "", "", err
	}
	cc, err := coin(c)
	if err != nil {
		return "", "", err
	}
	return n, cc, nil
}

// collect 采集行情流消息并记录遥测
func (s *Service) collect(ctx context.Context, net string, desc hyperliquid.Descriptor, max int) []hyperliquid.Message {
	start := time.Now()
	msgs := s.collector.Collect(ctx, net, desc, max, s.cfg.Stream.CollectTimeout())
	s.tel.StreamCollect(net, desc.Type(), len(msgs), time.Since(start))
	return msgs
}

// contexts 带缓存的元数据与资产上下文
// 加载函数由合并后的所有调用者共享，不随首个调用者取消，HTTP 超时兜底
func (s *Service) contexts(ctx context.Context, net string) (*hyperliquid.MetaAndAssetCtxs, error) {
	key := "ctxs:" + net
	loadCtx := context.WithoutCancel(ctx)
	v, _, err := s.cache.GetOrLoad(key, config.Millis(s.cfg.Cache.ContextsTTLMs), func() (any, error) {
		return s.info.MetaAndAssetCtxs(loadCtx, net)
	})
	if err != nil {
		return nil, err
	}
	return v.(*hyperliquid.MetaAndAssetCtxs), nil
}

// orderBook 带缓存的订单簿快照
// 依次尝试各订阅写法，全部为空时返回 errNoData 且不写缓存；每次采集受采集超时约束
func (s *Service) orderBook(ctx context.Context, net, c string, depth int) (*model.OrderBook, error) {
	key := fmt.Sprintf("ob:%s:%s:%d", net, c, depth)
	loadCtx := context.WithoutCancel(ctx)
	v, _, err := s.cache.GetOrLoad(key, config.Millis(s.cfg.Cache.OrderBookTTLMs), func() (any, error) {
		for _, variant := range hyperliquid.OrderBookVariants {
			msgs := s.collect(loadCtx, net, hyperliquid.NewDescriptor(variant, c), s.cfg.Stream.OrderBookMessages)
			if len(msgs) > 0 {
				if book := hyperliquid.PickOrderBook(msgs, c, depth); !book.Empty() {
					return book, nil
				}
			}
		}
		s.logger.Debug("订单簿无数据", zap.String("network", net), zap.String("coin", c))
		return nil, fmt.Errorf("%w: order book %s", errNoData, c)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.OrderBook), nil
}

// trades 带缓存的最近成交
func (s *Service) trades(ctx context.Context, net, c string, limit int) (model.TradeList, error) {
	key := fmt.Sprintf("trades:%s:%s:%d", net, c, limit)
	loadCtx := context.WithoutCancel(ctx)
	v, _, err := s.cache.GetOrLoad(key, config.Millis(s.cfg.Cache.TradesTTLMs), func() (any, error) {
		msgs := s.collect(loadCtx, net, hyperliquid.NewDescriptor(hyperliquid.ChannelTrades, c), limit)
		list := hyperliquid.ParseTrades(msgs, c, limit)
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: trades %s", errNoData, c)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(model.TradeList), nil
}

// isNoData 是否为采集无数据
func isNoData(err error) bool {
	return errors.Is(err, errNoData)
}
