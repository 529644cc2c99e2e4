// Package position tracks open positions and runs their lifecycle: the Book
// enforces one position per coin through reserve-then-confirm, the Manager
// monitors marks and exits on stop-loss, take-profit, or trailing stop.
package position

import (
	"errors"
	"sync"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpening Status = "OPENING" // reserved, order in flight
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
	StatusFailed  Status = "FAILED" // close retries exhausted, needs manual action
)

// CloseReason records why a position was exited.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "STOP_LOSS"
	ReasonTakeProfit   CloseReason = "TAKE_PROFIT"
	ReasonTrailingStop CloseReason = "TRAILING_STOP"
	ReasonManual       CloseReason = "MANUAL"
	ReasonEmergency    CloseReason = "EMERGENCY"
)

// Position is one live or recently settled position.
type Position struct {
	ID         string    `json:"id"`
	Coin       string    `json:"coin"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"` // base units
	SizeUSD    float64   `json:"size_usd"`
	Source     string    `json:"source"` // strategy that opened it
	OpenedAt   time.Time `json:"opened_at"`
	Status     Status    `json:"status"`

	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`

	TrailingActive    bool    `json:"trailing_active"`
	TrailingWatermark float64 `json:"trailing_watermark"` // best mark since activation
	TrailingStopPrice float64 `json:"trailing_stop_price"`

	MarkPrice     float64     `json:"mark_price"`
	CloseReason   CloseReason `json:"close_reason,omitempty"`
	ExitPrice     float64     `json:"exit_price,omitempty"`
	ClosedAt      time.Time   `json:"closed_at,omitempty"`
	RealizedPnL   float64     `json:"realized_pnl"`
	CloseAttempts int         `json:"close_attempts,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
}

// UnrealizedPnL returns the open profit in USD at the given mark.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - mark) * p.Size
	}
	return (mark - p.EntryPrice) * p.Size
}

// ProfitPercent returns the open profit relative to entry, signed by side.
func (p *Position) ProfitPercent(mark float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (mark - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		return -pct
	}
	return pct
}

var (
	ErrCoinHeld      = errors.New("position already held for coin")
	ErrMaxPositions  = errors.New("max concurrent positions reached")
	ErrNoReservation = errors.New("no reservation held for coin")
)

// Book holds at most one position per coin. Opening is two-phase: Reserve
// claims the coin slot before the exchange order goes out, then Confirm
// installs the filled position or Release frees the slot on failure. All
// mutation happens under the book lock, so two signals racing on the same
// coin can never both open.
type Book struct {
	mu         sync.RWMutex
	positions  map[string]*Position
	lastClosed map[string]time.Time
	max        int
}

// NewBook creates a book capped at max concurrent positions.
func NewBook(max int) *Book {
	return &Book{
		positions:  make(map[string]*Position),
		lastClosed: make(map[string]time.Time),
		max:        max,
	}
}

// Reserve claims the coin slot with an OPENING placeholder. Fails when the
// coin is already held (any live status, FAILED included) or the book is at
// capacity.
func (b *Book) Reserve(coin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, held := b.positions[coin]; held {
		return ErrCoinHeld
	}
	if len(b.positions) >= b.max {
		return ErrMaxPositions
	}
	b.positions[coin] = &Position{Coin: coin, Status: StatusOpening}
	return nil
}

// Confirm replaces the coin's reservation with the filled position.
func (b *Book) Confirm(p *Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	held, ok := b.positions[p.Coin]
	if !ok || held.Status != StatusOpening {
		return ErrNoReservation
	}
	p.Status = StatusOpen
	b.positions[p.Coin] = p
	return nil
}

// Release frees a reservation that never became a position. A confirmed
// position is left alone.
func (b *Book) Release(coin string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if held, ok := b.positions[coin]; ok && held.Status == StatusOpening {
		delete(b.positions, coin)
	}
}

// Settle removes a closed position and records the close time for cooldown
// checks.
func (b *Book) Settle(coin string, closedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.positions, coin)
	b.lastClosed[coin] = closedAt
}

// LastClosed returns when the coin's most recent position settled.
func (b *Book) LastClosed(coin string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ts, ok := b.lastClosed[coin]
	return ts, ok
}

// Get returns a copy of the coin's position.
func (b *Book) Get(coin string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.positions[coin]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Update applies fn to the coin's position under the book lock.
func (b *Book) Update(coin string, fn func(*Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[coin]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Snapshot returns copies of all held positions, reservations included.
func (b *Book) Snapshot() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// Coins returns the coins of positions the monitor should be checking.
func (b *Book) Coins() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.positions))
	for coin, p := range b.positions {
		if p.Status == StatusOpen || p.Status == StatusClosing {
			out = append(out, coin)
		}
	}
	return out
}

// Count returns how many coin slots are held.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
