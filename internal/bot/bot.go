// Package bot assembles the trading engine: strategies feed the scheduler,
// the scheduler's queue feeds the order gate, the gate opens positions the
// monitor then manages. The Bot owns start/stop ordering and the glue
// subscriptions between components.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/cache"
	"hyperliquid-trading-bot/internal/circuit"
	"hyperliquid-trading-bot/internal/database"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/exchange"
	"hyperliquid-trading-bot/internal/order"
	"hyperliquid-trading-bot/internal/position"
	"hyperliquid-trading-bot/internal/scheduler"
	"hyperliquid-trading-bot/internal/strategy"
)

// CandleFactory builds a candle source. Each generator gets its own so one
// strategy's rate gate never delays another's fetches.
type CandleFactory func() exchange.CandleSource

// Bot is the assembled trading engine.
type Bot struct {
	cfg    *config.Config
	logger zerolog.Logger
	bus    *events.Bus

	client   exchange.Client
	book     *position.Book
	manager  *position.Manager
	gate     *order.Gate
	sched    *scheduler.Scheduler
	breaker  *circuit.Breaker
	tradeLog database.TradeLog
	state    *cache.Store // nil when Redis is disabled

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// New wires the engine together. state may be nil.
func New(cfg *config.Config, client exchange.Client, newCandles CandleFactory, tradeLog database.TradeLog, state *cache.Store, bus *events.Bus, logger zerolog.Logger) *Bot {
	book := position.NewBook(cfg.Trading.MaxPositions)
	breaker := circuit.New(cfg.Breaker, bus, logger)
	manager := position.NewManager(cfg, book, client, bus, tradeLog, logger)
	gate := order.NewGate(cfg, book, manager, client, breaker, bus, logger)
	sched := scheduler.New(cfg, bus, logger)

	b := &Bot{
		cfg:      cfg,
		logger:   logger.With().Str("component", "bot").Logger(),
		bus:      bus,
		client:   client,
		book:     book,
		manager:  manager,
		gate:     gate,
		sched:    sched,
		breaker:  breaker,
		tradeLog: tradeLog,
		state:    state,
	}

	b.registerStrategies(newCandles)

	// Settled trades feed the breaker's loss streak.
	bus.Subscribe(events.EventTradeClosed, func(e events.Event) {
		if pnl, ok := e.Data["pnl"].(float64); ok {
			breaker.RecordTrade(pnl)
		}
	})

	if state != nil {
		b.mirrorState()
	}

	return b
}

// registerStrategies builds every enabled generator and schedules it over
// the monitored coins. Every generator gets a candle source of its own.
func (b *Bot) registerStrategies(newCandles CandleFactory) {
	coins := b.cfg.Trading.MonitoredCoins
	enabled := b.cfg.Strategies.Enabled

	all := []strategy.Strategy{
		strategy.NewRSIStrategy("1m", 14, 30, 70, newCandles()),
		strategy.NewRSIStrategy("5m", 14, 30, 70, newCandles()),
		strategy.NewRSIStrategy("1h", 14, 30, 70, newCandles()),
		strategy.NewRSIStrategy("4h", 14, 30, 70, newCandles()),
		strategy.NewSMACrossStrategy("5m", 10, 20, newCandles()),
		strategy.NewMACDStrategy("15m", 12, 26, 9, newCandles()),
		strategy.NewScalpStrategy("1m", 5, 13, 7, 30, 70, 1.5, newCandles()),
		strategy.NewRangeLowStrategy("range_24h_low", "1h", 24, -1.0, 2.0, newCandles()),
		strategy.NewRangeLowStrategy("range_7d_low", "1h", 168, -1.0, 2.0, newCandles()),
	}

	for _, s := range all {
		b.sched.Register(s, coins)
		if on, known := enabled[s.Name()]; known && !on {
			b.sched.SetStrategyEnabled(s.Name(), false)
		}
	}
}

// mirrorState pushes position snapshots and the session status document
// into Redis whenever they change.
func (b *Bot) mirrorState() {
	push := func(events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.state.SyncPositions(ctx, b.book.Snapshot()); err != nil {
			b.logger.Debug().Err(err).Msg("Position mirror sync failed")
		}
		if err := b.state.SetStatus(ctx, b.Status(ctx)); err != nil {
			b.logger.Debug().Err(err).Msg("Status mirror sync failed")
		}
	}
	b.bus.Subscribe(events.EventPositionOpened, push)
	b.bus.Subscribe(events.EventPositionUpdate, push)
	b.bus.Subscribe(events.EventTradeClosed, push)
}

// Start launches the monitor, the gate, and the scheduler, in that order,
// so consumers are running before producers.
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bot already running")
	}

	b.manager.Start()
	b.gate.Start(b.sched.Signals())
	b.sched.Start()

	b.running = true
	b.startedAt = time.Now()

	b.logger.Info().
		Strs("coins", b.cfg.Trading.MonitoredCoins).
		Bool("paper_mode", b.cfg.Exchange.PaperMode).
		Msg("Bot started")
	b.bus.Publish(events.Event{
		Type: events.EventBotStarted,
		Data: map[string]interface{}{"paper_mode": b.cfg.Exchange.PaperMode},
	})
	return nil
}

// Stop halts signal generation and admission, then the monitor. Open
// positions stay open; their state survives in the book and the mirror.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}

	b.sched.Stop()
	b.gate.Stop()
	b.manager.Stop()
	b.running = false

	b.logger.Info().Msg("Bot stopped")
	b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
}

// EmergencyStop halts admission and closes every open position at market.
func (b *Bot) EmergencyStop(ctx context.Context) {
	b.logger.Warn().Msg("Emergency stop requested")
	b.gate.SetHalted(true)
	b.manager.CloseAll(ctx, position.ReasonEmergency)
}

// Resume lifts an emergency admission halt.
func (b *Bot) Resume() {
	b.gate.SetHalted(false)
}

// Running reports whether the engine loops are live.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Positions returns a snapshot of the book.
func (b *Bot) Positions() []position.Position {
	return b.book.Snapshot()
}

// ClosePosition manually exits one coin at market.
func (b *Bot) ClosePosition(ctx context.Context, coin string) error {
	return b.manager.Close(ctx, coin, position.ReasonManual)
}

// ToggleStrategy enables or disables one generator by name.
func (b *Bot) ToggleStrategy(name string, enabled bool) {
	b.sched.SetStrategyEnabled(name, enabled)
}

// Strategies returns the schedule table.
func (b *Bot) Strategies() []scheduler.EntryStatus {
	return b.sched.Status()
}

// Breaker returns the circuit breaker for status and reset.
func (b *Bot) Breaker() *circuit.Breaker {
	return b.breaker
}

// TradeLog returns the trade history backend.
func (b *Bot) TradeLog() database.TradeLog {
	return b.tradeLog
}

// Status summarizes the session for the API and the state mirror.
func (b *Bot) Status(ctx context.Context) map[string]interface{} {
	b.mu.Lock()
	running := b.running
	startedAt := b.startedAt
	b.mu.Unlock()

	status := map[string]interface{}{
		"running":         running,
		"paper_mode":      b.cfg.Exchange.PaperMode,
		"open_positions":  b.book.Count(),
		"max_positions":   b.cfg.Trading.MaxPositions,
		"dropped_signals": b.sched.Dropped(),
		"breaker":         b.breaker.Snapshot(),
	}
	if running {
		status["started_at"] = startedAt
		status["uptime_seconds"] = int(time.Since(startedAt).Seconds())
	}

	if account, err := b.client.GetAccountState(ctx); err == nil {
		status["account_value_usd"] = account.TotalValueUSD
		status["available_usd"] = account.AvailableUSD
	}
	if stats, err := b.tradeLog.Stats(ctx); err == nil {
		status["total_trades"] = stats.TotalTrades
		status["total_pnl"] = stats.TotalPnL
		status["win_rate"] = stats.WinRate()
	}
	return status
}
