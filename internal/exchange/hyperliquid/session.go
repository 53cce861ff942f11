package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/util/backoff"
	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// ErrNotConnected 当前没有可用连接
var ErrNotConnected = errors.New("WebSocket 未连接")

// ErrSessionClosed 会话已关闭
var ErrSessionClosed = errors.New("会话已关闭")

// subscription 单个订阅的状态
type subscription struct {
	// desc 订阅描述
	desc Descriptor
	// buf 消息缓冲
	buf *ringBuffer
	// ackCh 收到订阅确认时关闭；重连后重新创建
	ackCh chan struct{}
	// acked ackCh 是否已关闭
	acked bool
}

// Session 单个网络的 WebSocket 会话
// 一条连接承载所有订阅，接收循环按订阅签名分发消息，
// 无法识别签名的消息广播给所有订阅缓冲区。
// 断线后固定间隔重连并重新发送全部订阅，直到 Close。
type Session struct {
	// id 会话编号，便于日志关联
	id string
	// network 网络名称
	network string
	// url WebSocket 地址
	url string
	// cfg 流配置
	cfg config.StreamConfig
	// logger 日志记录器
	logger *zap.Logger
	// dialer 拨号器
	dialer *websocket.Dialer

	// conn 当前连接，断线时为 nil
	conn *websocket.Conn
	// connMu 连接锁，同时串行化写入
	connMu sync.Mutex
	// connected 连接状态
	connected atomic.Bool

	// subs 订阅表
	subs map[SubscriptionKey]*subscription
	// mu 订阅表锁
	mu sync.Mutex

	// backoff 重连等待
	backoff *backoff.Backoff

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}

	reconnects  atomic.Int64
	received    atomic.Int64
	routed      atomic.Int64
	broadcast   atomic.Int64
	dropped     atomic.Int64
	parseErrors atomic.Int64

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewSession 创建会话，首次 Subscribe/Collect 时才建立连接
// 参数 network: 网络名称（mainnet/testnet）
// 参数 url: WebSocket 地址
// 参数 cfg: 流配置
// 参数 logger: 日志记录器
func NewSession(network, url string, cfg config.StreamConfig, logger *zap.Logger) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	base := config.Millis(cfg.ReconnectBaseMs)
	if base <= 0 {
		base = time.Second
	}
	retry := backoff.NewFixed(base)
	if max := config.Millis(cfg.ReconnectMaxMs); max > base {
		retry = backoff.New(base, max, 0)
	}
	handshake := config.Millis(cfg.HandshakeTimeoutMs)
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	return &Session{
		id:      id,
		network: network,
		url:     url,
		cfg:     cfg,
		logger:  logger.Named("hyperliquid").With(zap.String("network", network), zap.String("session", id[:8])),
		dialer:  &websocket.Dialer{HandshakeTimeout: handshake},
		subs:    make(map[SubscriptionKey]*subscription),
		backoff: retry,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start 启动后台接收循环，可重复调用
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// run 连接、重新订阅、读取，失败后等待重连，直到会话关闭
func (s *Session) run() {
	defer close(s.done)

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, err := s.connect()
		if err != nil {
			s.logger.Warn("Hyperliquid WebSocket 连接失败", zap.Error(err))
			if !s.wait() {
				return
			}
			continue
		}

		s.resubscribeAll()

		connDone := make(chan struct{})
		go s.heartbeatLoop(conn, connDone)
		err = s.readLoop(conn)
		close(connDone)

		s.closeConn(conn)
		if s.ctx.Err() != nil {
			return
		}
		s.reconnects.Add(1)
		s.logger.Warn("Hyperliquid WebSocket 断开，准备重连", zap.Error(err))
		if !s.wait() {
			return
		}
	}
}

// wait 等待一个退避间隔，会话关闭时返回 false
func (s *Session) wait() bool {
	delay := s.backoff.Next()
	s.logger.Debug("等待重连", zap.Duration("delay", delay), zap.Int("attempt", s.backoff.Attempt()))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect 建立连接
func (s *Session) connect() (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", s.url, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.connected.Store(true)
	s.backoff.Reset()

	s.logger.Info("Hyperliquid WebSocket 连接成功", zap.String("url", s.url))
	return conn, nil
}

// closeConn 关闭指定连接，仅当它仍是当前连接时清空引用
func (s *Session) closeConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if s.conn == conn {
		s.conn = nil
		s.connected.Store(false)
	}
}

// resubscribeAll 在新连接上重新发送全部订阅
func (s *Session) resubscribeAll() {
	s.mu.Lock()
	descs := make([]Descriptor, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.acked {
			sub.ackCh = make(chan struct{})
			sub.acked = false
		}
		descs = append(descs, sub.desc)
	}
	s.mu.Unlock()

	for _, d := range descs {
		if err := s.send(SubscribeRequest{Method: "subscribe", Subscription: d}); err != nil {
			s.logger.Warn("重新订阅失败", zap.Stringer("subscription", d), zap.Error(err))
			return
		}
	}
	if len(descs) > 0 {
		s.logger.Info("已重新发送订阅", zap.Int("count", len(descs)))
	}
}

// send 序列化并发送一条控制消息
func (s *Session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	return nil
}

// readTimeout 读超时为两个心跳周期，服务端对 ping 回 pong
func (s *Session) readTimeout() time.Duration {
	interval := config.Millis(s.cfg.PingIntervalMs)
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return 2 * interval
}

// readLoop 持续读取直到连接出错
func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.received.Add(1)
		s.dispatch(data, time.Now())
	}
}

// heartbeatLoop 定期发送 {"method":"ping"}
func (s *Session) heartbeatLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	interval := config.Millis(s.cfg.PingIntervalMs)
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(map[string]string{"method": "ping"}); err != nil {
				s.logger.Warn("发送 ping 失败", zap.Error(err))
				s.closeConn(conn)
				return
			}
		}
	}
}

// dispatch 路由一条推送
// 控制消息（订阅确认、pong、error）不进入缓冲区；
// 带订阅签名且命中已有订阅的消息只投递给该订阅，其余广播
func (s *Session) dispatch(data []byte, receivedAt time.Time) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.parseErrors.Add(1)
		s.maybeLogParseError(err, data)
		s.fanOut(Message{Raw: append(json.RawMessage(nil), data...), ReceivedAt: receivedAt})
		return
	}

	switch env.Channel {
	case channelSubscriptionResponse:
		var ack subscriptionAck
		if err := json.Unmarshal(env.Data, &ack); err == nil && ack.Method != "unsubscribe" {
			s.markAcked(ack.Subscription)
		}
		return
	case channelPong:
		return
	case channelError:
		s.logger.Warn("上游返回错误", zap.ByteString("data", truncate(env.Data, 200)))
		return
	}

	msg := Message{Channel: env.Channel, Raw: append(json.RawMessage(nil), data...), ReceivedAt: receivedAt}
	if sig := signature(env); sig != nil {
		if sub := s.lookup(sig); sub != nil {
			s.routed.Add(1)
			if sub.buf.push(msg) {
				s.dropped.Add(1)
			}
			return
		}
	}
	s.fanOut(msg)
}

// signature 从消息中提取订阅签名
// 优先使用 subscription 字段，其次 channel + data.coin
func signature(env envelope) map[string]any {
	if len(env.Subscription) > 0 {
		return env.Subscription
	}
	if env.Channel == "" {
		return nil
	}
	coin := dataCoin(env.Data)
	if coin == "" {
		return nil
	}
	return map[string]any{"type": env.Channel, "coin": coin}
}

// dataCoin 取 data.coin，data 为数组时取第一行的 coin
func dataCoin(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var row struct {
		Coin string `json:"coin"`
	}
	if raw[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
			return ""
		}
		raw = rows[0]
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return ""
	}
	return row.Coin
}

// lookup 查找签名对应的订阅，先精确匹配规范化键，再按字段覆盖匹配
func (s *Session) lookup(sig map[string]any) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[Descriptor(sig).Key()]; ok {
		return sub
	}
	for _, sub := range s.subs {
		if sub.desc.covers(sig) {
			return sub
		}
	}
	return nil
}

// fanOut 广播给所有订阅缓冲区
func (s *Session) fanOut(msg Message) {
	s.mu.Lock()
	bufs := make([]*ringBuffer, 0, len(s.subs))
	for _, sub := range s.subs {
		bufs = append(bufs, sub.buf)
	}
	s.mu.Unlock()

	if len(bufs) == 0 {
		return
	}
	s.broadcast.Add(1)
	for _, b := range bufs {
		if b.push(msg) {
			s.dropped.Add(1)
		}
	}
}

// markAcked 标记订阅已确认
func (s *Session) markAcked(remote map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if !sub.acked && sub.desc.covers(remote) {
			close(sub.ackCh)
			sub.acked = true
		}
	}
}

// register 注册订阅（幂等），返回订阅与当前确认通道
func (s *Session) register(desc Descriptor) (*subscription, <-chan struct{}, bool) {
	key := desc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key]
	if !ok {
		sub = &subscription{
			desc:  desc,
			buf:   newRingBuffer(s.cfg.BufferCapacity),
			ackCh: make(chan struct{}),
		}
		s.subs[key] = sub
	}
	return sub, sub.ackCh, sub.acked
}

// Subscribe 确保订阅已注册并发送订阅请求，等待确认直到 ctx 结束或订阅超时
// 确认失败不影响后续采集：重连时会再次发送全部订阅
func (s *Session) Subscribe(ctx context.Context, desc Descriptor) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	s.Start()

	_, ackCh, acked := s.register(desc)
	if acked {
		return nil
	}

	if err := s.send(SubscribeRequest{Method: "subscribe", Subscription: desc}); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}

	timeout := config.Millis(s.cfg.SubscribeTimeoutMs)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ackCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("订阅 %s 等待确认超时", desc)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// Collect 从订阅缓冲区取出最多 max 条消息
// 阻塞到取满、超时或 ctx 结束，超时返回已取到的部分（可能为空）。
// max<=0 或 timeout<=0 时不等待，直接取出已缓冲的消息（max>0 时最多 max 条）；
// 尚未确认的订阅会在已有连接上补发订阅请求，但不等待确认。
func (s *Session) Collect(ctx context.Context, desc Descriptor, max int, timeout time.Duration) []Message {
	if max <= 0 || timeout <= 0 {
		if s.ctx.Err() != nil {
			return nil
		}
		s.Start()
		sub, _, acked := s.register(desc)
		if !acked {
			if err := s.send(SubscribeRequest{Method: "subscribe", Subscription: desc}); err != nil && !errors.Is(err, ErrNotConnected) {
				s.logger.Debug("发送订阅失败", zap.Stringer("subscription", desc), zap.Error(err))
			}
		}
		return sub.buf.drain(max)
	}

	deadline := time.Now().Add(timeout)
	collectCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := s.Subscribe(collectCtx, desc); err != nil {
		s.logger.Debug("订阅未确认，继续采集", zap.Stringer("subscription", desc), zap.Error(err))
	}

	sub, _, _ := s.register(desc)
	out := make([]Message, 0, max)
	for {
		out = append(out, sub.buf.drain(max-len(out))...)
		if len(out) >= max {
			return out
		}
		select {
		case <-sub.buf.notify:
		case <-collectCtx.Done():
			return append(out, sub.buf.drain(max-len(out))...)
		case <-s.ctx.Done():
			return out
		}
	}
}

// Stats 会话统计
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()

	return SessionStats{
		Network:        s.network,
		Connected:      s.connected.Load(),
		ReconnectCount: s.reconnects.Load(),
		Received:       s.received.Load(),
		Routed:         s.routed.Load(),
		Broadcast:      s.broadcast.Load(),
		Dropped:        s.dropped.Load(),
		ParseErrors:    s.parseErrors.Load(),
		Subscriptions:  n,
	}
}

// Close 停止接收循环并关闭连接
func (s *Session) Close() error {
	s.cancel()
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		s.closeConn(conn)
	}
	if s.started.Load() {
		<-s.done
	}
	s.logger.Info("Hyperliquid 会话已关闭")
	return nil
}

// maybeLogParseError 采样记录解析错误原始消息
// 每 100 次错误记录 1 条，且至少间隔 1 分钟
func (s *Session) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&s.parseErrSampleCount, 1)
	if count%100 != 1 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&s.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&s.lastParseErrLogNs, nowNs)

	s.logger.Warn("解析 Hyperliquid 消息失败（采样）", zap.Error(err), zap.ByteString("data", truncate(data, 200)))
}

// truncate 截断日志中的原始消息
func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
