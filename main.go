package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/api"
	"hyperliquid-trading-bot/internal/auth"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/cache"
	"hyperliquid-trading-bot/internal/database"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/exchange"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().
		Str("exchange", cfg.Exchange.Name).
		Bool("paper_mode", cfg.Exchange.PaperMode).
		Strs("coins", cfg.Trading.MonitoredCoins).
		Msg("Configuration loaded")

	ctx := context.Background()
	bus := events.NewBus()

	// Exchange credentials come from Vault when enabled, otherwise from the
	// config and environment. Paper mode needs none.
	creds, err := vault.Load(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Loading exchange credentials failed")
	}

	if !cfg.Exchange.PaperMode {
		// The live wire protocol is not wired up; refuse to start rather
		// than silently paper-trade with live expectations.
		if creds.APIKey == "" {
			logger.Fatal().Msg("Live mode requires exchange credentials")
		}
		logger.Fatal().Msg("Live trading is not available in this build, set exchange.paper_mode")
	}
	client := exchange.NewPaperClient(10_000)
	logger.Info().Msg("Paper exchange client initialized")

	// Candle data for the signal generators. Every generator gets its own
	// feed so its rate gate throttles only its own requests.
	newCandles := func() exchange.CandleSource {
		return exchange.NewFeed(
			cfg.Exchange.DataBaseURL,
			cfg.ExchangeTimeout(),
			time.Duration(cfg.Scheduler.MinRequestIntervalMillis)*time.Millisecond,
		)
	}

	// Trade history: PostgreSQL when configured, bounded in-memory log
	// otherwise.
	var tradeLog database.TradeLog
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Database migration failed")
		}
		tradeLog = database.NewTradeStore(db)
	} else {
		tradeLog = database.NewMemoryTradeStore(1000)
		logger.Info().Msg("No database configured, keeping trade history in memory")
	}

	// Position state mirror for restarts and external dashboards.
	var stateStore *cache.Store
	if cfg.Redis.Enabled {
		stateStore, err = cache.NewStore(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, state mirroring disabled")
		} else {
			defer stateStore.Close()
			if cached, err := stateStore.LoadPositions(ctx); err == nil && len(cached) > 0 {
				logger.Warn().
					Int("count", len(cached)).
					Msg("Previous session left positions in the mirror, verify them on the exchange")
			}
		}
	}

	engine := bot.New(cfg, client, newCandles, tradeLog, stateStore, bus, logger)
	if err := engine.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Engine start failed")
	}

	var server *api.Server
	if cfg.Server.Enabled {
		var authMgr *auth.Manager
		if cfg.Auth.Enabled {
			authMgr = auth.NewManager(cfg.Auth)
			logger.Info().Msg("API authentication enabled")
		}
		server = api.NewServer(cfg, engine, bus, authMgr, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server exited")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API shutdown failed")
		}
		cancel()
	}
	engine.Stop()
	logger.Info().Msg("Shutdown complete")
}
