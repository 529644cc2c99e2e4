package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperClient simulates an exchange with random-walk prices. Used for
// dry-run sessions and tests; fills are instant at the current mark price.
type PaperClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	balance    float64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewPaperClient creates a paper exchange seeded with realistic prices.
func NewPaperClient(startingBalanceUSD float64) *PaperClient {
	return &PaperClient{
		prices: map[string]float64{
			"BTC": 104500.00,
			"ETH": 3900.00,
			"SOL": 220.00,
			"XRP": 2.35,
			"ADA": 1.05,
			"ZEC": 48.00,
			"ZEN": 12.50,
			"ENA": 0.95,
		},
		balance:    startingBalanceUSD,
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPrice pins a price, overriding the random walk. Primarily for tests.
func (pc *PaperClient) SetPrice(coin string, price float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.prices[coin] = price
}

// updatePrices adds small random variations to simulate market movement.
// At most once per second so tight polling loops see stable prices.
func (pc *PaperClient) updatePrices() {
	if time.Since(pc.lastUpdate) < time.Second {
		return
	}
	for coin, price := range pc.prices {
		// Random walk: -0.5% to +0.5% per step.
		change := (pc.rng.Float64() - 0.5) * 0.01
		pc.prices[coin] = price * (1 + change)
	}
	pc.lastUpdate = time.Now()
}

// PlaceOrder fills a simulated market order at the current mark price.
func (pc *PaperClient) PlaceOrder(ctx context.Context, coin, side string, size float64) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.updatePrices()

	price, ok := pc.prices[coin]
	if !ok {
		return nil, ErrUnknownCoin
	}
	cost := price * size
	if cost > pc.balance {
		return nil, ErrInsufficientBalance
	}
	pc.balance -= cost

	return &OrderResult{
		OrderID:    uuid.New().String(),
		Coin:       coin,
		Side:       side,
		EntryPrice: price,
		Size:       size,
		FilledAt:   time.Now(),
	}, nil
}

// ClosePosition fills a simulated close at the current mark price.
func (pc *PaperClient) ClosePosition(ctx context.Context, coin string, size float64, side string) (*CloseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.updatePrices()

	price, ok := pc.prices[coin]
	if !ok {
		return nil, ErrUnknownCoin
	}
	pc.balance += price * size

	return &CloseResult{
		OrderID:   uuid.New().String(),
		ExitPrice: price,
		ClosedAt:  time.Now(),
	}, nil
}

// GetMarkPrice returns the simulated mark price for coin.
func (pc *PaperClient) GetMarkPrice(ctx context.Context, coin string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.updatePrices()

	price, ok := pc.prices[coin]
	if !ok {
		return 0, ErrUnknownCoin
	}
	return price, nil
}

// GetAccountState returns the simulated balance.
func (pc *PaperClient) GetAccountState(ctx context.Context) (*AccountState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return &AccountState{
		TotalValueUSD: pc.balance,
		AvailableUSD:  pc.balance,
	}, nil
}
