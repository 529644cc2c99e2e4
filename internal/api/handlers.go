package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	token, err := s.authMgr.Login(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.bot.Status(c.Request.Context())
	status["ws_clients"] = s.hub.ClientCount()
	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.bot.Positions()})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.bot.TradeLog().ListTrades(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Listing trades failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.bot.TradeLog().Stats(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Computing stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_trades": stats.TotalTrades,
		"wins":         stats.Wins,
		"total_pnl":    stats.TotalPnL,
		"win_rate":     stats.WinRate(),
	})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.bot.Strategies()})
}

func (s *Server) handleToggleStrategy(c *gin.Context) {
	name := c.Param("name")
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled flag required"})
		return
	}

	s.bot.ToggleStrategy(name, *req.Enabled)
	c.JSON(http.StatusOK, gin.H{"strategy": name, "enabled": *req.Enabled})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	coin := c.Param("coin")
	if err := s.bot.ClosePosition(c.Request.Context(), coin); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": coin})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.bot.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.bot.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	s.bot.EmergencyStop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"halted": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.bot.Resume()
	c.JSON(http.StatusOK, gin.H{"halted": false})
}

func (s *Server) handleBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Breaker().Snapshot())
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	s.bot.Breaker().Reset()
	c.JSON(http.StatusOK, s.bot.Breaker().Snapshot())
}
