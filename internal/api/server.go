package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/metrics"
	"paper-trading-bot/internal/risk"
)

// Engine is what the HTTP layer needs from the trading core.
type Engine interface {
	Snapshot() risk.State
	OpenPositions() []risk.Position
	TradeHistory() []risk.Trade
	ResumeTrading()
}

// ManualCloser closes a position by id at market.
type ManualCloser interface {
	CloseManually(ctx context.Context, positionID string) (risk.Trade, error)
}

// Server exposes read-only status plus the two manual controls: resume
// trading after a halt and close a position at market.
type Server struct {
	engine Engine
	closer ManualCloser
	http   *http.Server
}

func NewServer(host string, port int, allowedOrigins string, engine Engine, closer ManualCloser) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if allowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{allowedOrigins}
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	s := &Server{
		engine: engine,
		closer: closer,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/positions", s.handlePositions)
		apiGroup.GET("/trades", s.handleTrades)
		apiGroup.POST("/resume", s.handleResume)
		apiGroup.POST("/positions/:id/close", s.handleManualClose)
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	log := logging.Component("api")
	log.Info().Str("addr", s.http.Addr).Msg("http server listening")

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.engine.Snapshot()
	drawdown := 0.0
	if snap.PeakCapital > 0 {
		drawdown = (snap.PeakCapital - snap.Capital) / snap.PeakCapital * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"capital":           snap.Capital,
		"peak_capital":      snap.PeakCapital,
		"drawdown_pct":      drawdown,
		"daily_pnl":         snap.DailyPnL,
		"daily_trade_count": snap.DailyTradeCount,
		"day_start_date":    snap.DayStartDate,
		"trading_state":     snap.TradingState,
		"halt_reason":       snap.HaltReason,
		"open_positions":    len(s.engine.OpenPositions()),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.engine.OpenPositions()})
}

func (s *Server) handleTrades(c *gin.Context) {
	trades := s.engine.TradeHistory()

	// Newest first, capped at 100.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	if len(trades) > 100 {
		trades = trades[:100]
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleResume(c *gin.Context) {
	before := s.engine.Snapshot().TradingState
	s.engine.ResumeTrading()
	c.JSON(http.StatusOK, gin.H{
		"previous_state": before,
		"trading_state":  s.engine.Snapshot().TradingState,
	})
}

func (s *Server) handleManualClose(c *gin.Context) {
	if s.closer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "manual close not available"})
		return
	}

	trade, err := s.closer.CloseManually(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}
