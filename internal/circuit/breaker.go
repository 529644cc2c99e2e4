// Package circuit halts order admission when recent trading looks broken:
// too many losses in a row or too many trades in a day. A tripped breaker
// rejects new entries until its cooldown elapses; open positions keep being
// managed normally.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/events"
)

// State of the breaker.
type State string

const (
	StateClosed State = "closed" // normal operation
	StateOpen   State = "open"   // entries halted
)

// Breaker tracks trade outcomes and trips on configured thresholds.
type Breaker struct {
	cfg    config.BreakerConfig
	bus    *events.Bus
	logger zerolog.Logger

	mu                sync.Mutex
	state             State
	consecutiveLosses int
	dailyTrades       int
	dayStart          time.Time
	trippedAt         time.Time
	tripReason        string

	now func() time.Time
}

// Status is a snapshot served by the API.
type Status struct {
	State             State     `json:"state"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	DailyTrades       int       `json:"daily_trades"`
	TripReason        string    `json:"trip_reason,omitempty"`
	TrippedAt         time.Time `json:"tripped_at,omitempty"`
}

func New(cfg config.BreakerConfig, bus *events.Bus, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "circuit").Logger(),
		state:  StateClosed,
		now:    time.Now,
	}
	b.dayStart = b.now().Truncate(24 * time.Hour)
	return b
}

// Allow reports whether a new entry may be admitted right now. A tripped
// breaker recloses automatically once its cooldown has elapsed.
func (b *Breaker) Allow() error {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rollDay(now)

	if b.state == StateOpen {
		cooldown := time.Duration(b.cfg.CooldownMinutes) * time.Minute
		if now.Sub(b.trippedAt) < cooldown {
			return fmt.Errorf("circuit breaker open: %s", b.tripReason)
		}
		b.state = StateClosed
		b.consecutiveLosses = 0
		b.tripReason = ""
		b.logger.Info().Msg("Circuit breaker reclosed after cooldown")
	}

	if b.cfg.MaxDailyTrades > 0 && b.dailyTrades >= b.cfg.MaxDailyTrades {
		b.trip(now, fmt.Sprintf("daily trade cap reached (%d)", b.cfg.MaxDailyTrades))
		return fmt.Errorf("circuit breaker open: %s", b.tripReason)
	}
	return nil
}

// RecordTrade feeds a settled trade's PnL into the loss streak and the
// daily counter.
func (b *Breaker) RecordTrade(pnl float64) {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rollDay(now)
	b.dailyTrades++

	if pnl < 0 {
		b.consecutiveLosses++
		if b.cfg.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
			b.trip(now, fmt.Sprintf("%d consecutive losses", b.consecutiveLosses))
		}
		return
	}
	b.consecutiveLosses = 0
}

// Reset recloses the breaker immediately. Operator action via the API.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveLosses = 0
	b.tripReason = ""
	b.logger.Info().Msg("Circuit breaker reset by operator")
}

// Snapshot returns the current breaker status.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		State:             b.state,
		ConsecutiveLosses: b.consecutiveLosses,
		DailyTrades:       b.dailyTrades,
		TripReason:        b.tripReason,
		TrippedAt:         b.trippedAt,
	}
}

// trip opens the breaker. Caller holds the lock.
func (b *Breaker) trip(now time.Time, reason string) {
	if b.state == StateOpen {
		return
	}
	b.state = StateOpen
	b.trippedAt = now
	b.tripReason = reason

	b.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped")
	b.bus.Publish(events.Event{
		Type: events.EventBreakerTripped,
		Data: map[string]interface{}{"reason": reason},
	})
}

// rollDay resets the daily counter at midnight. Caller holds the lock.
func (b *Breaker) rollDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if day.After(b.dayStart) {
		b.dayStart = day
		b.dailyTrades = 0
	}
}
