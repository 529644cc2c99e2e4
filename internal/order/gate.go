// Package order admits signals into positions. Every actionable signal
// passes the same rejection ladder, then opening is two-phase: the coin
// slot is reserved before the exchange order goes out and confirmed only
// after the fill, so no race can put two positions on one coin.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/circuit"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/exchange"
	"hyperliquid-trading-bot/internal/position"
	"hyperliquid-trading-bot/internal/strategy"
)

// RejectReason classifies why a signal did not become a position.
type RejectReason string

const (
	RejectHold         RejectReason = "HOLD"
	RejectWeakSignal   RejectReason = "WEAK_SIGNAL"
	RejectDuplicate    RejectReason = "DUPLICATE_POSITION"
	RejectMaxPositions RejectReason = "MAX_POSITIONS"
	RejectCooldown     RejectReason = "COOLDOWN"
	RejectBreaker      RejectReason = "CIRCUIT_BREAKER"
	RejectBalance      RejectReason = "INSUFFICIENT_BALANCE"
	RejectOrderFailed  RejectReason = "ORDER_FAILED"
	RejectHalted       RejectReason = "TRADING_HALTED"
)

// Result is the outcome of one admission attempt.
type Result struct {
	Admitted bool
	Reason   RejectReason
	Detail   string
	Position *position.Position
}

// Gate consumes the scheduler's signal queue and turns admitted signals
// into open positions.
type Gate struct {
	cfg      *config.Config
	book     *position.Book
	manager  *position.Manager
	exchange exchange.Client
	breaker  *circuit.Breaker
	bus      *events.Bus
	logger   zerolog.Logger

	mu       sync.Mutex
	running  bool
	halted   bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewGate creates the order gate. breaker may be nil to disable the check.
func NewGate(cfg *config.Config, book *position.Book, manager *position.Manager, client exchange.Client, breaker *circuit.Breaker, bus *events.Bus, logger zerolog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		book:     book,
		manager:  manager,
		exchange: client,
		breaker:  breaker,
		bus:      bus,
		logger:   logger.With().Str("component", "order").Logger(),
		now:      time.Now,
	}
}

// Start consumes signals from the queue until Stop. A stopped gate can be
// started again; each run gets a fresh stop channel.
func (g *Gate) Start(signals <-chan *strategy.Signal) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.stopChan = make(chan struct{})
	stop := g.stopChan
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			select {
			case <-stop:
				return
			case sig := <-signals:
				g.Submit(context.Background(), sig)
			}
		}
	}()
	g.logger.Info().Msg("Order gate started")
}

// Stop halts queue consumption.
func (g *Gate) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stop := g.stopChan
	g.mu.Unlock()

	close(stop)
	g.wg.Wait()
	g.logger.Info().Msg("Order gate stopped")
}

// SetHalted pauses admission without touching open positions. Used by the
// emergency stop and the operator pause endpoint.
func (g *Gate) SetHalted(halted bool) {
	g.mu.Lock()
	g.halted = halted
	g.mu.Unlock()
	g.logger.Info().Bool("halted", halted).Msg("Admission halt toggled")
}

// Submit runs one signal through the admission ladder and, if admitted,
// opens the position. Safe for concurrent use; the book arbitrates races.
func (g *Gate) Submit(ctx context.Context, sig *strategy.Signal) Result {
	if sig == nil {
		return Result{Reason: RejectOrderFailed, Detail: "nil signal"}
	}

	if res, ok := g.admit(sig); !ok {
		g.reject(sig, res)
		return res
	}

	// Reserve the coin slot before touching the exchange. Duplicate and
	// capacity rejections come from here atomically.
	if err := g.book.Reserve(sig.Coin); err != nil {
		res := Result{Detail: err.Error()}
		switch {
		case errors.Is(err, position.ErrCoinHeld):
			res.Reason = RejectDuplicate
		case errors.Is(err, position.ErrMaxPositions):
			res.Reason = RejectMaxPositions
		default:
			res.Reason = RejectOrderFailed
		}
		g.reject(sig, res)
		return res
	}

	res := g.open(ctx, sig)
	if !res.Admitted {
		g.book.Release(sig.Coin)
		g.reject(sig, res)
	}
	return res
}

// admit runs the checks that need no reservation. Order matters: HOLD and
// weak signals are cheap and common, the breaker and cooldown come after.
func (g *Gate) admit(sig *strategy.Signal) (Result, bool) {
	g.mu.Lock()
	halted := g.halted
	g.mu.Unlock()
	if halted {
		return Result{Reason: RejectHalted, Detail: "admission halted"}, false
	}

	if sig.Action == strategy.ActionHold {
		return Result{Reason: RejectHold}, false
	}
	if !sig.IsActionable(g.cfg.Trading.MinSignalStrength) {
		return Result{
			Reason: RejectWeakSignal,
			Detail: fmt.Sprintf("strength %.2f below %.2f", sig.Strength, g.cfg.Trading.MinSignalStrength),
		}, false
	}

	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return Result{Reason: RejectBreaker, Detail: err.Error()}, false
		}
	}

	cooldown := time.Duration(g.cfg.Trading.CooldownSeconds) * time.Second
	if cooldown > 0 {
		if closed, ok := g.book.LastClosed(sig.Coin); ok {
			if since := g.now().Sub(closed); since < cooldown {
				return Result{
					Reason: RejectCooldown,
					Detail: fmt.Sprintf("%s closed %.0fs ago, cooldown %s", sig.Coin, since.Seconds(), cooldown),
				}, false
			}
		}
	}

	return Result{}, true
}

// open places the entry order and confirms the reserved slot. The caller
// releases the reservation on failure.
func (g *Gate) open(ctx context.Context, sig *strategy.Signal) Result {
	side := exchange.SideBuy
	posSide := position.SideLong
	if sig.Action == strategy.ActionSell {
		side = exchange.SideSell
		posSide = position.SideShort
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.ExchangeTimeout())
	defer cancel()

	mark, err := g.exchange.GetMarkPrice(callCtx, sig.Coin)
	if err != nil {
		return Result{Reason: RejectOrderFailed, Detail: fmt.Sprintf("mark price: %v", err)}
	}
	if mark <= 0 {
		return Result{Reason: RejectOrderFailed, Detail: "mark price is zero"}
	}

	sizeUSD := g.cfg.Trading.PositionSizeUSD
	size := sizeUSD / mark

	order, err := g.exchange.PlaceOrder(callCtx, sig.Coin, side, size)
	if err != nil {
		reason := RejectOrderFailed
		if errors.Is(err, exchange.ErrInsufficientBalance) {
			reason = RejectBalance
		}
		g.bus.Publish(events.Event{
			Type: events.EventOrderFailed,
			Data: map[string]interface{}{
				"coin":   sig.Coin,
				"side":   side,
				"source": sig.Source,
				"error":  err.Error(),
			},
		})
		return Result{Reason: reason, Detail: err.Error()}
	}

	pos, err := g.manager.Open(order, posSide, sig.Source, sizeUSD)
	if err != nil {
		// The fill exists on the exchange but the book rejected it. This
		// should be impossible while the reservation is held.
		g.logger.Error().Err(err).Str("coin", sig.Coin).Msg("Fill could not be confirmed")
		return Result{Reason: RejectOrderFailed, Detail: err.Error()}
	}

	g.logger.Info().
		Str("coin", sig.Coin).
		Str("side", side).
		Float64("size", size).
		Float64("entry", order.EntryPrice).
		Str("source", sig.Source).
		Msg("Order admitted")
	g.bus.Publish(events.Event{
		Type: events.EventOrderPlaced,
		Data: map[string]interface{}{
			"coin":   sig.Coin,
			"side":   side,
			"size":   size,
			"entry":  order.EntryPrice,
			"source": sig.Source,
		},
	})

	return Result{Admitted: true, Position: pos}
}

func (g *Gate) reject(sig *strategy.Signal, res Result) {
	logEvent := g.logger.Debug()
	if res.Reason != RejectHold {
		logEvent = g.logger.Info()
	}
	logEvent.
		Str("coin", sig.Coin).
		Str("action", string(sig.Action)).
		Str("source", sig.Source).
		Str("reason", string(res.Reason)).
		Str("detail", res.Detail).
		Msg("Signal rejected")

	g.bus.Publish(events.Event{
		Type: events.EventSignalRejected,
		Data: map[string]interface{}{
			"coin":   sig.Coin,
			"action": string(sig.Action),
			"source": sig.Source,
			"reason": string(res.Reason),
			"detail": res.Detail,
		},
	})
}
