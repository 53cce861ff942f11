package hyperliquid

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/config"
)

// Collector 按网络采集订阅消息
// 超时或失败都返回已取到的部分（可能为空），不返回错误
type Collector interface {
	Collect(ctx context.Context, network string, desc Descriptor, max int, timeout time.Duration) []Message
}

// Registry 每个网络一个共享会话，首次使用时创建，进程退出时统一关闭
type Registry struct {
	// cfg 全局配置
	cfg *config.Config
	// logger 日志记录器
	logger *zap.Logger
	// sessions network -> 会话
	sessions map[string]*Session
	// mu 会话表锁
	mu sync.Mutex
	// closed 是否已关闭
	closed bool
}

// NewRegistry 创建会话注册表
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Session 获取（必要时创建）指定网络的会话
func (r *Registry) Session(network string) (*Session, error) {
	network, err := config.NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	ep, err := r.cfg.Endpoint(network)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionClosed
	}
	if s, ok := r.sessions[network]; ok {
		return s, nil
	}
	s := NewSession(network, ep.WSURL, r.cfg.Stream, r.logger)
	s.Start()
	r.sessions[network] = s
	return s, nil
}

// Collect 实现 Collector
func (r *Registry) Collect(ctx context.Context, network string, desc Descriptor, max int, timeout time.Duration) []Message {
	s, err := r.Session(network)
	if err != nil {
		r.logger.Warn("获取会话失败", zap.String("network", network), zap.Error(err))
		return nil
	}
	return s.Collect(ctx, desc, max, timeout)
}

// Stats 所有会话的统计，按网络名排序
func (r *Registry) Stats() []SessionStats {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]SessionStats, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out
}

// Close 关闭全部会话，之后不再创建新会话
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

// OneShot 每次采集单独建连，采集结束即关闭
// 对应 HYPERLIQUID_WS_SHARED=0
type OneShot struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOneShot 创建一次性采集器
func NewOneShot(cfg *config.Config, logger *zap.Logger) *OneShot {
	return &OneShot{cfg: cfg, logger: logger}
}

// Collect 实现 Collector
func (o *OneShot) Collect(ctx context.Context, network string, desc Descriptor, max int, timeout time.Duration) []Message {
	network, err := config.NormalizeNetwork(network)
	if err != nil {
		o.logger.Warn("网络参数无效", zap.Error(err))
		return nil
	}
	ep, err := o.cfg.Endpoint(network)
	if err != nil {
		o.logger.Warn("获取网络地址失败", zap.Error(err))
		return nil
	}

	s := NewSession(network, ep.WSURL, o.cfg.Stream, o.logger)
	defer s.Close()
	return s.Collect(ctx, desc, max, timeout)
}

// NewCollector 按配置选择共享会话或一次性连接
// 返回的 stop 用于进程退出时释放连接
func NewCollector(cfg *config.Config, logger *zap.Logger) (Collector, func() error) {
	if cfg.Stream.SharedSession() {
		r := NewRegistry(cfg, logger)
		return r, r.Close
	}
	return NewOneShot(cfg, logger), func() error { return nil }
}
