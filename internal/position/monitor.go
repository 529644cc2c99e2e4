package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/exchange"
)

const closeTimeout = 10 * time.Second

// Trade is a settled round trip, handed to recorders when a position closes.
type Trade struct {
	PositionID string      `json:"position_id"`
	Coin       string      `json:"coin"`
	Side       Side        `json:"side"`
	Source     string      `json:"source"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	Size       float64     `json:"size"`
	SizeUSD    float64     `json:"size_usd"`
	PnL        float64     `json:"pnl"`
	PnLPercent float64     `json:"pnl_percent"`
	Reason     CloseReason `json:"reason"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   time.Time   `json:"closed_at"`
}

// TradeRecorder persists settled trades. Implementations must tolerate
// being called from the monitor goroutine.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, t Trade) error
}

// Manager watches open positions on a fixed tick and exits them by rule.
// Exit checks run in strict priority: stop-loss first, then take-profit,
// then the trailing stop.
type Manager struct {
	cfg      *config.Config
	book     *Book
	exchange exchange.Client
	bus      *events.Bus
	recorder TradeRecorder
	logger   zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewManager creates a position manager. recorder may be nil.
func NewManager(cfg *config.Config, book *Book, client exchange.Client, bus *events.Bus, recorder TradeRecorder, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		book:     book,
		exchange: client,
		bus:      bus,
		recorder: recorder,
		logger:   logger.With().Str("component", "position").Logger(),
		now:      time.Now,
	}
}

// Open builds a position from a fill, installs it in the book, and arms its
// exit levels. The coin slot must already be reserved.
func (m *Manager) Open(order *exchange.OrderResult, side Side, source string, sizeUSD float64) (*Position, error) {
	p := &Position{
		ID:         order.OrderID,
		Coin:       order.Coin,
		Side:       side,
		EntryPrice: order.EntryPrice,
		Size:       order.Size,
		SizeUSD:    sizeUSD,
		Source:     source,
		OpenedAt:   order.FilledAt,
		MarkPrice:  order.EntryPrice,
	}
	m.armExits(p)

	if err := m.book.Confirm(p); err != nil {
		return nil, fmt.Errorf("confirming %s position: %w", p.Coin, err)
	}

	m.logger.Info().
		Str("coin", p.Coin).
		Str("side", string(p.Side)).
		Float64("entry", p.EntryPrice).
		Float64("stop_loss", p.StopLossPrice).
		Float64("take_profit", p.TakeProfitPrice).
		Str("source", source).
		Msg("Position opened")
	m.bus.Publish(events.Event{
		Type: events.EventPositionOpened,
		Data: positionData(p),
	})
	return p, nil
}

// armExits sets the stop-loss and take-profit levels from the configured
// percentages, mirrored for shorts.
func (m *Manager) armExits(p *Position) {
	sl := m.cfg.Trading.StopLossPercent / 100
	tp := m.cfg.Trading.TakeProfitPercent / 100
	if p.Side == SideShort {
		p.StopLossPrice = p.EntryPrice * (1 + sl)
		p.TakeProfitPrice = p.EntryPrice * (1 - tp)
		return
	}
	p.StopLossPrice = p.EntryPrice * (1 - sl)
	p.TakeProfitPrice = p.EntryPrice * (1 + tp)
}

// Start launches the monitor loop. A stopped manager can be started again;
// each run gets a fresh stop channel.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(stop)
	m.logger.Info().Msg("Position monitor started")
}

// Stop halts the monitor loop. Open positions stay in the book.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop := m.stopChan
	m.mu.Unlock()

	close(stop)
	m.wg.Wait()
	m.logger.Info().Msg("Position monitor stopped")
}

func (m *Manager) loop(stop <-chan struct{}) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Scheduler.PositionCheckSeconds) * time.Second
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.checkAll(context.Background())
		}
	}
}

// checkAll fetches the mark for every monitored coin and applies the exit
// rules. A price-feed error on one coin skips that coin only.
func (m *Manager) checkAll(ctx context.Context) {
	for _, coin := range m.book.Coins() {
		mark, err := m.exchange.GetMarkPrice(ctx, coin)
		if err != nil {
			m.logger.Warn().Err(err).Str("coin", coin).Msg("Mark price unavailable, skipping check")
			continue
		}
		m.checkOne(ctx, coin, mark)
	}
}

// checkOne applies the exit rules to one coin at the given mark.
func (m *Manager) checkOne(ctx context.Context, coin string, mark float64) {
	var (
		reason    CloseReason
		triggered bool
		snapshot  Position
	)

	found := m.book.Update(coin, func(p *Position) {
		if p.Status != StatusOpen {
			snapshot = *p
			return
		}
		p.MarkPrice = mark
		m.updateTrailing(p, mark)
		reason, triggered = exitReason(p, mark)
		if triggered {
			p.Status = StatusClosing
			p.CloseReason = reason
		}
		snapshot = *p
	})
	if !found {
		return
	}

	if snapshot.Status == StatusOpen {
		m.bus.PublishPositionUpdate(positionData(&snapshot))
		return
	}
	if snapshot.Status == StatusClosing {
		m.close(ctx, coin)
	}
}

// updateTrailing activates the trailing stop once profit reaches the
// activation threshold and then ratchets it. The watermark and the stop
// only ever tighten; an adverse mark never loosens them.
func (m *Manager) updateTrailing(p *Position, mark float64) {
	if !p.TrailingActive {
		if p.ProfitPercent(mark) < m.cfg.Trading.TrailingStopActivation {
			return
		}
		p.TrailingActive = true
		p.TrailingWatermark = mark
		p.TrailingStopPrice = trailingStop(p.Side, mark, m.cfg.Trading.TrailingStopPercent)
		m.logger.Info().
			Str("coin", p.Coin).
			Float64("mark", mark).
			Float64("trailing_stop", p.TrailingStopPrice).
			Msg("Trailing stop armed")
		return
	}

	if p.Side == SideLong && mark > p.TrailingWatermark {
		p.TrailingWatermark = mark
		if stop := trailingStop(SideLong, mark, m.cfg.Trading.TrailingStopPercent); stop > p.TrailingStopPrice {
			p.TrailingStopPrice = stop
		}
	}
	if p.Side == SideShort && mark < p.TrailingWatermark {
		p.TrailingWatermark = mark
		if stop := trailingStop(SideShort, mark, m.cfg.Trading.TrailingStopPercent); stop < p.TrailingStopPrice {
			p.TrailingStopPrice = stop
		}
	}
}

func trailingStop(side Side, watermark, trailPercent float64) float64 {
	if side == SideShort {
		return watermark * (1 + trailPercent/100)
	}
	return watermark * (1 - trailPercent/100)
}

// exitReason decides whether the mark triggers an exit. Stop-loss wins over
// take-profit, which wins over the trailing stop.
func exitReason(p *Position, mark float64) (CloseReason, bool) {
	if p.Side == SideShort {
		switch {
		case mark >= p.StopLossPrice:
			return ReasonStopLoss, true
		case mark <= p.TakeProfitPrice:
			return ReasonTakeProfit, true
		case p.TrailingActive && mark >= p.TrailingStopPrice:
			return ReasonTrailingStop, true
		}
		return "", false
	}

	switch {
	case mark <= p.StopLossPrice:
		return ReasonStopLoss, true
	case mark >= p.TakeProfitPrice:
		return ReasonTakeProfit, true
	case p.TrailingActive && mark <= p.TrailingStopPrice:
		return ReasonTrailingStop, true
	}
	return "", false
}

// Close exits the coin's position at market for the given reason. Exposed
// for the API's manual close and the emergency stop.
func (m *Manager) Close(ctx context.Context, coin string, reason CloseReason) error {
	ok := m.book.Update(coin, func(p *Position) {
		if p.Status == StatusOpen {
			p.Status = StatusClosing
			p.CloseReason = reason
		}
	})
	if !ok {
		return fmt.Errorf("close %s: %w", coin, ErrNoReservation)
	}
	return m.close(ctx, coin)
}

// CloseAll exits every open position. Used by the emergency stop.
func (m *Manager) CloseAll(ctx context.Context, reason CloseReason) {
	for _, coin := range m.book.Coins() {
		if err := m.Close(ctx, coin, reason); err != nil {
			m.logger.Error().Err(err).Str("coin", coin).Msg("Close failed during close-all")
		}
	}
}

// close sends the reduce order and settles the position using the reason
// recorded when the exit triggered. Failures are retried on later ticks up
// to the configured limit, then the position is marked FAILED and left in
// the book so the coin stays locked.
func (m *Manager) close(ctx context.Context, coin string) error {
	p, ok := m.book.Get(coin)
	if !ok || p.Status != StatusClosing {
		return nil
	}

	closeSide := exchange.SideSell
	if p.Side == SideShort {
		closeSide = exchange.SideBuy
	}

	callCtx, cancel := context.WithTimeout(ctx, closeTimeout)
	result, err := m.exchange.ClosePosition(callCtx, coin, p.Size, closeSide)
	cancel()
	if err != nil {
		return m.recordCloseFailure(coin, err)
	}

	trade := m.settle(coin, result, p.CloseReason)
	if trade == nil {
		return nil
	}

	m.logger.Info().
		Str("coin", trade.Coin).
		Str("reason", string(trade.Reason)).
		Float64("entry", trade.EntryPrice).
		Float64("exit", trade.ExitPrice).
		Float64("pnl", trade.PnL).
		Msg("Position closed")

	if m.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.recorder.RecordTrade(recordCtx, *trade); err != nil {
			m.logger.Error().Err(err).Str("coin", trade.Coin).Msg("Trade record failed")
		}
		cancel()
	}
	return nil
}

func (m *Manager) recordCloseFailure(coin string, closeErr error) error {
	var failed bool
	m.book.Update(coin, func(p *Position) {
		p.CloseAttempts++
		p.LastError = closeErr.Error()
		if p.CloseAttempts >= m.cfg.Trading.CloseRetryLimit {
			p.Status = StatusFailed
			failed = true
		}
		// Otherwise the position stays CLOSING; the next tick retries the
		// exit with the reason recorded at the first trigger.
	})

	if failed {
		m.logger.Error().
			Err(closeErr).
			Str("coin", coin).
			Int("attempts", m.cfg.Trading.CloseRetryLimit).
			Msg("Close retries exhausted, position needs manual intervention")
		m.bus.Publish(events.Event{
			Type: events.EventPositionFailed,
			Data: map[string]interface{}{"coin": coin, "error": closeErr.Error()},
		})
	} else {
		m.logger.Warn().Err(closeErr).Str("coin", coin).Msg("Close failed, will retry")
	}
	return fmt.Errorf("closing %s: %w", coin, closeErr)
}

// settle finalizes the position, removes it from the book, and emits the
// trade.
func (m *Manager) settle(coin string, result *exchange.CloseResult, reason CloseReason) *Trade {
	p, ok := m.book.Get(coin)
	if !ok {
		return nil
	}

	closedAt := result.ClosedAt
	if closedAt.IsZero() {
		closedAt = m.now()
	}

	pnl := p.UnrealizedPnL(result.ExitPrice)
	trade := &Trade{
		PositionID: p.ID,
		Coin:       p.Coin,
		Side:       p.Side,
		Source:     p.Source,
		EntryPrice: p.EntryPrice,
		ExitPrice:  result.ExitPrice,
		Size:       p.Size,
		SizeUSD:    p.SizeUSD,
		PnL:        pnl,
		PnLPercent: p.ProfitPercent(result.ExitPrice),
		Reason:     reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   closedAt,
	}

	m.book.Settle(coin, closedAt)
	m.bus.PublishTrade(map[string]interface{}{
		"position_id": trade.PositionID,
		"coin":        trade.Coin,
		"side":        string(trade.Side),
		"source":      trade.Source,
		"entry_price": trade.EntryPrice,
		"exit_price":  trade.ExitPrice,
		"pnl":         trade.PnL,
		"pnl_percent": trade.PnLPercent,
		"reason":      string(trade.Reason),
	})
	return trade
}

func positionData(p *Position) map[string]interface{} {
	return map[string]interface{}{
		"id":             p.ID,
		"coin":           p.Coin,
		"side":           string(p.Side),
		"entry_price":    p.EntryPrice,
		"mark_price":     p.MarkPrice,
		"size":           p.Size,
		"size_usd":       p.SizeUSD,
		"status":         string(p.Status),
		"stop_loss":      p.StopLossPrice,
		"take_profit":    p.TakeProfitPrice,
		"trailing_stop":  p.TrailingStopPrice,
		"unrealized_pnl": p.UnrealizedPnL(p.MarkPrice),
		"source":         p.Source,
	}
}
