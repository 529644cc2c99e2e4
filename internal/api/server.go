// Package api exposes the operator surface: a REST control API and a
// websocket feed mirroring the event bus. The dashboard is a passive
// consumer; nothing here sits on the trading hot path.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/auth"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/events"
)

// Server hosts the REST API and the websocket hub.
type Server struct {
	cfg     *config.Config
	bot     *bot.Bot
	bus     *events.Bus
	authMgr *auth.Manager // nil when auth is disabled
	hub     *Hub
	logger  zerolog.Logger

	router *gin.Engine
	http   *http.Server
}

// NewServer builds the router. authMgr may be nil.
func NewServer(cfg *config.Config, b *bot.Bot, bus *events.Bus, authMgr *auth.Manager, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:     cfg,
		bot:     b,
		bus:     bus,
		authMgr: authMgr,
		hub:     NewHub(logger),
		logger:  logger.With().Str("component", "api").Logger(),
		router:  router,
	}
	s.setupRoutes()

	// Every bus event is fanned out to websocket subscribers.
	bus.SubscribeAll(s.hub.BroadcastEvent)

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.authMgr != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	if s.authMgr != nil {
		api.Use(auth.Middleware(s.authMgr))
	}

	api.GET("/status", s.handleStatus)
	api.GET("/positions", s.handlePositions)
	api.GET("/trades", s.handleTrades)
	api.GET("/stats", s.handleStats)
	api.GET("/strategies", s.handleStrategies)
	api.POST("/strategies/:name/toggle", s.handleToggleStrategy)
	api.POST("/positions/:coin/close", s.handleClosePosition)
	api.POST("/bot/start", s.handleStart)
	api.POST("/bot/stop", s.handleStop)
	api.POST("/bot/emergency-stop", s.handleEmergencyStop)
	api.POST("/bot/resume", s.handleResume)
	api.GET("/breaker", s.handleBreaker)
	api.POST("/breaker/reset", s.handleBreakerReset)

	s.router.GET("/ws", s.handleWebSocket)
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the listener and the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
