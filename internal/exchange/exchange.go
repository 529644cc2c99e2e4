// Package exchange defines the abstract exchange client contract the engine
// trades through, plus the market data feed and rate limiting used by the
// signal generators. Concrete wire protocols live behind these interfaces.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Order sides as the exchange understands them.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OrderResult is the confirmation for a filled market order.
type OrderResult struct {
	OrderID    string
	Coin       string
	Side       string
	EntryPrice float64
	Size       float64 // filled size in coin units
	FilledAt   time.Time
}

// CloseResult is the confirmation for a closed position.
type CloseResult struct {
	OrderID   string
	ExitPrice float64
	ClosedAt  time.Time
}

// AccountState is a snapshot of the trading account.
type AccountState struct {
	TotalValueUSD float64
	AvailableUSD  float64
}

// Client is the capability the engine needs from an exchange. Every call
// must honor the context deadline; a timed-out call is a failure, not a
// hang. Implementations are safe for concurrent use.
type Client interface {
	// PlaceOrder opens a market position of the given size (coin units).
	PlaceOrder(ctx context.Context, coin, side string, size float64) (*OrderResult, error)

	// ClosePosition closes the position for coin at market.
	ClosePosition(ctx context.Context, coin string, size float64, side string) (*CloseResult, error)

	// GetMarkPrice returns the current reference price for coin.
	GetMarkPrice(ctx context.Context, coin string) (float64, error)

	// GetAccountState returns current balances.
	GetAccountState(ctx context.Context) (*AccountState, error)
}

// ErrUnknownCoin is returned for instruments the exchange does not list.
var ErrUnknownCoin = errors.New("exchange: unknown coin")

// ErrInsufficientBalance is returned when the account cannot cover an order.
var ErrInsufficientBalance = errors.New("exchange: insufficient balance")
