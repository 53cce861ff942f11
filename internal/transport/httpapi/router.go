package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hyperliquid-market-aggregator/internal/market"
	"hyperliquid-market-aggregator/internal/metadata"
)

// Router 查询接口
type Router struct {
	svc *market.Service
}

// NewRouter 创建查询接口路由
func NewRouter(svc *market.Service) *Router {
	return &Router{svc: svc}
}

// Register 注册路由
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/meta", r.handleMeta)
	group.GET("/contexts", r.handleContexts)
	group.GET("/resolve", r.handleResolve)
	group.GET("/orderbook/:coin", r.handleOrderBook)
	group.GET("/trades/:coin", r.handleTrades)
	group.GET("/picture/:coin", r.handlePicture)
	group.GET("/pictures", r.handleBatch)
	group.GET("/slippage/:coin", r.handleSlippage)
	group.GET("/liquidity/:coin", r.handleLiquidity)
	group.GET("/volatility/:coin", r.handleVolatility)
	group.GET("/trend/:coin", r.handleTrend)
	group.GET("/premium/:coin", r.handlePremium)
	group.GET("/oi/:coin", r.handleOpenInterest)
	group.GET("/funding/:coin", r.handleFundingHistory)
	group.GET("/predicted-fundings", r.handlePredictedFundings)
	group.GET("/oi-cap", r.handleOICap)
	group.GET("/perp-dexs", r.handlePerpDexs)
	group.GET("/perp-dexs/limits", r.handlePerpDexLimits)
	group.GET("/perp-deploy-auction", r.handleDeployAuction)
	group.GET("/accounts/:user/state", r.handleClearinghouse)
	group.GET("/accounts/:user/pnl", r.handlePnL)
	group.GET("/accounts/:user/funding", r.handleUserFunding)
	group.GET("/accounts/:user/ledger", r.handleLedger)
	group.GET("/accounts/:user/assets/:coin", r.handleActiveAsset)
	group.GET("/stats", r.handleStats)
	group.POST("/info", r.handleInfoRaw)
}

// statusOf 失败类别到 HTTP 状态码
func statusOf(res market.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Kind {
	case market.FailureInput:
		return http.StatusBadRequest
	case market.FailureUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// reply 输出结果信封
func reply(c *gin.Context, res market.Result) {
	c.JSON(statusOf(res), res)
}

// badRequest 参数解析失败
func badRequest(c *gin.Context, err error) {
	reply(c, market.Result{OK: false, Error: err.Error(), Kind: market.FailureInput})
}

// intQuery 读取整数参数，缺省为 0
func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s 必须是整数: %q", name, v)
	}
	return n, nil
}

// int64Query 读取 64 位整数参数，缺省为 0
func int64Query(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s 必须是整数: %q", name, v)
	}
	return n, nil
}

// ints 依次读取多个整数参数
func ints(c *gin.Context, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		n, err := intQuery(c, name)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (r *Router) handleMeta(c *gin.Context) {
	reply(c, r.svc.Meta(c.Request.Context(), c.Query("network"), c.Query("dex")))
}

func (r *Router) handleContexts(c *gin.Context) {
	reply(c, r.svc.MetaAndAssetContexts(c.Request.Context(), c.Query("network")))
}

// handleResolve 从自由文本中提取 $TICKER 与 0x 地址
func (r *Router) handleResolve(c *gin.Context) {
	q := c.Query("q")
	tickers := metadata.ExtractTickers(q)
	addr, _ := metadata.ExtractAddress(q)
	reply(c, market.Result{
		OK:      true,
		Data:    gin.H{"tickers": tickers, "address": addr},
		Summary: fmt.Sprintf("tickers %d address %t", len(tickers), addr != ""),
	})
}

func (r *Router) handleOrderBook(c *gin.Context) {
	depth, err := intQuery(c, "depth")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.OrderBook(c.Request.Context(), c.Query("network"), c.Param("coin"), depth))
}

func (r *Router) handleTrades(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.RecentTrades(c.Request.Context(), c.Query("network"), c.Param("coin"), limit))
}

func (r *Router) handlePicture(c *gin.Context) {
	v, err := ints(c, "depth", "trades")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.FullMarketPicture(c.Request.Context(), c.Query("network"), c.Param("coin"), v[0], v[1]))
}

// handleBatch coins=BTC,ETH；也接受 q=自由文本，从中提取 $TICKER
func (r *Router) handleBatch(c *gin.Context) {
	v, err := ints(c, "depth", "trades")
	if err != nil {
		badRequest(c, err)
		return
	}
	var coins []string
	for _, part := range strings.Split(c.Query("coins"), ",") {
		if p := strings.TrimSpace(part); p != "" {
			coins = append(coins, p)
		}
	}
	if len(coins) == 0 {
		coins = metadata.ExtractTickers(c.Query("q"))
	}
	reply(c, r.svc.BatchFullMarketPicture(c.Request.Context(), c.Query("network"), coins, v[0], v[1]))
}

func (r *Router) handleSlippage(c *gin.Context) {
	depth, err := intQuery(c, "depth")
	if err != nil {
		badRequest(c, err)
		return
	}
	notional, err := strconv.ParseFloat(c.Query("notional"), 64)
	if err != nil {
		badRequest(c, fmt.Errorf("notional 必须是数字: %q", c.Query("notional")))
		return
	}
	reply(c, r.svc.Slippage(c.Request.Context(), c.Query("network"), c.Param("coin"), c.Query("side"), notional, depth))
}

func (r *Router) handleLiquidity(c *gin.Context) {
	depth, err := intQuery(c, "depth")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.LiquidityProfile(c.Request.Context(), c.Query("network"), c.Param("coin"), depth))
}

func (r *Router) handleVolatility(c *gin.Context) {
	trades, err := intQuery(c, "trades")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.Volatility(c.Request.Context(), c.Query("network"), c.Param("coin"), trades))
}

func (r *Router) handleTrend(c *gin.Context) {
	v, err := ints(c, "short", "long")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.Trend(c.Request.Context(), c.Query("network"), c.Param("coin"), v[0], v[1]))
}

func (r *Router) handlePremium(c *gin.Context) {
	reply(c, r.svc.Premium(c.Request.Context(), c.Query("network"), c.Param("coin")))
}

func (r *Router) handleOpenInterest(c *gin.Context) {
	reply(c, r.svc.OpenInterestTrend(c.Request.Context(), c.Query("network"), c.Param("coin")))
}

// timeWindow 读取 start/end 毫秒参数
func timeWindow(c *gin.Context) (int64, int64, error) {
	start, err := int64Query(c, "start")
	if err != nil {
		return 0, 0, err
	}
	end, err := int64Query(c, "end")
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (r *Router) handleFundingHistory(c *gin.Context) {
	start, end, err := timeWindow(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.FundingHistory(c.Request.Context(), c.Query("network"), c.Param("coin"), start, end))
}

func (r *Router) handleUserFunding(c *gin.Context) {
	start, end, err := timeWindow(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.UserFunding(c.Request.Context(), c.Query("network"), c.Param("user"), start, end))
}

func (r *Router) handleLedger(c *gin.Context) {
	start, end, err := timeWindow(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.UserNonFundingLedgerUpdates(c.Request.Context(), c.Query("network"), c.Param("user"), start, end))
}

func (r *Router) handleActiveAsset(c *gin.Context) {
	reply(c, r.svc.ActiveAssetData(c.Request.Context(), c.Query("network"), c.Param("user"), c.Param("coin")))
}

func (r *Router) handlePerpDexs(c *gin.Context) {
	reply(c, r.svc.PerpDexs(c.Request.Context(), c.Query("network")))
}

// handlePerpDexLimits dex 为必填查询参数
func (r *Router) handlePerpDexLimits(c *gin.Context) {
	reply(c, r.svc.PerpDexLimits(c.Request.Context(), c.Query("network"), c.Query("dex")))
}

func (r *Router) handleDeployAuction(c *gin.Context) {
	reply(c, r.svc.PerpDeployAuctionStatus(c.Request.Context(), c.Query("network")))
}

func (r *Router) handlePredictedFundings(c *gin.Context) {
	reply(c, r.svc.PredictedFundings(c.Request.Context(), c.Query("network")))
}

func (r *Router) handleOICap(c *gin.Context) {
	reply(c, r.svc.PerpsAtOpenInterestCap(c.Request.Context(), c.Query("network")))
}

func (r *Router) handleClearinghouse(c *gin.Context) {
	reply(c, r.svc.ClearinghouseState(c.Request.Context(), c.Query("network"), c.Param("user"), c.Query("dex")))
}

func (r *Router) handlePnL(c *gin.Context) {
	days, err := intQuery(c, "days")
	if err != nil {
		badRequest(c, err)
		return
	}
	reply(c, r.svc.UserPnLSummary(c.Request.Context(), c.Query("network"), c.Param("user"), days))
}

func (r *Router) handleStats(c *gin.Context) {
	reply(c, r.svc.Metrics())
}

func (r *Router) handleInfoRaw(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, fmt.Errorf("请求格式错误: %w", err))
		return
	}
	reply(c, r.svc.InfoRaw(c.Request.Context(), c.Query("network"), payload))
}
