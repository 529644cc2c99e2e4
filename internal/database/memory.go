package database

import (
	"context"
	"sync"

	"hyperliquid-trading-bot/internal/position"
)

// TradeLog is the read side the API needs from any trade backend.
type TradeLog interface {
	position.TradeRecorder
	ListTrades(ctx context.Context, limit int) ([]position.Trade, error)
	Stats(ctx context.Context) (TradeStats, error)
}

// MemoryTradeStore keeps a bounded in-process trade history. Used when no
// database is configured, and as a stand-in for tests.
type MemoryTradeStore struct {
	mu     sync.RWMutex
	trades []position.Trade
	cap    int
}

// NewMemoryTradeStore creates a store that retains the last cap trades.
func NewMemoryTradeStore(cap int) *MemoryTradeStore {
	if cap <= 0 {
		cap = 1000
	}
	return &MemoryTradeStore{cap: cap}
}

// RecordTrade appends the trade, evicting the oldest past capacity.
func (s *MemoryTradeStore) RecordTrade(ctx context.Context, t position.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, t)
	if len(s.trades) > s.cap {
		s.trades = s.trades[len(s.trades)-s.cap:]
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (s *MemoryTradeStore) ListTrades(ctx context.Context, limit int) ([]position.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.trades) {
		limit = len(s.trades)
	}
	out := make([]position.Trade, 0, limit)
	for i := len(s.trades) - 1; i >= len(s.trades)-limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}

// Stats aggregates realized performance over the retained history.
func (s *MemoryTradeStore) Stats(ctx context.Context) (TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st TradeStats
	for _, t := range s.trades {
		st.TotalTrades++
		st.TotalPnL += t.PnL
		if t.PnL > 0 {
			st.Wins++
		}
	}
	return st, nil
}
