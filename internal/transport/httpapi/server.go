// Package httpapi 通过 gin 暴露查询操作。
// 所有接口返回 {ok, data, summary} 信封，网络由 ?network= 选择，缺省为 mainnet。
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hyperliquid-market-aggregator/internal/config"
	"hyperliquid-market-aggregator/internal/market"
	"hyperliquid-market-aggregator/internal/stats/telemetry"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// Server HTTP 服务
type Server struct {
	cfg        config.ServerConfig
	svc        *market.Service
	tel        *telemetry.Telemetry
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer 创建 HTTP 服务
// 参数 cfg: 监听配置
// 参数 svc: 查询服务
// 参数 tel: 遥测，为 nil 时不暴露 /metrics
// 参数 logger: 日志
func NewServer(cfg config.ServerConfig, svc *market.Service, tel *telemetry.Telemetry, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		tel:    tel,
		logger: logger.Named("http"),
	}
	s.engine = s.buildRouter()
	return s
}

// Handler 路由，供测试直接调用
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) buildRouter() *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.accessLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if s.tel != nil {
		router.GET("/metrics", gin.WrapH(s.tel.Handler()))
	}

	NewRouter(s.svc).Register(router.Group("/api/v1"))
	return router
}

// Run 启动监听，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务，ctx 取消后优雅关闭
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP 服务启动", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		timeout := config.Millis(s.cfg.ShutdownTimeoutMs)
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.logger.Info("HTTP 服务已关闭")
		return nil
	case err := <-errCh:
		return err
	}
}

// requestID 为每个请求分配 ID，客户端已携带时沿用
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// accessLog 请求日志
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", c.GetString(HeaderRequestID)),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("请求失败", fields...)
			return
		}
		s.logger.Debug("请求完成", fields...)
	}
}
