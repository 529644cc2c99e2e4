package database

import (
	"context"
	"fmt"

	"hyperliquid-trading-bot/internal/position"
)

// TradeStore persists trades to PostgreSQL. Implements position.TradeRecorder.
type TradeStore struct {
	db *DB
}

// NewTradeStore creates a trade store over an open connection pool.
func NewTradeStore(db *DB) *TradeStore {
	return &TradeStore{db: db}
}

// RecordTrade inserts one settled trade.
func (s *TradeStore) RecordTrade(ctx context.Context, t position.Trade) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO trades (
			position_id, coin, side, source, entry_price, exit_price,
			size, size_usd, pnl, pnl_percent, reason, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.PositionID, t.Coin, string(t.Side), t.Source, t.EntryPrice, t.ExitPrice,
		t.Size, t.SizeUSD, t.PnL, t.PnLPercent, string(t.Reason), t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (s *TradeStore) ListTrades(ctx context.Context, limit int) ([]position.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT position_id, coin, side, source, entry_price, exit_price,
		       size, size_usd, pnl, pnl_percent, reason, opened_at, closed_at
		FROM trades
		ORDER BY closed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []position.Trade
	for rows.Next() {
		var t position.Trade
		var side, reason string
		if err := rows.Scan(
			&t.PositionID, &t.Coin, &side, &t.Source, &t.EntryPrice, &t.ExitPrice,
			&t.Size, &t.SizeUSD, &t.PnL, &t.PnLPercent, &reason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Side = position.Side(side)
		t.Reason = position.CloseReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Stats aggregates realized performance across all recorded trades.
func (s *TradeStore) Stats(ctx context.Context) (TradeStats, error) {
	var st TradeStats
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(pnl), 0),
		       COUNT(*) FILTER (WHERE pnl > 0)
		FROM trades`).Scan(&st.TotalTrades, &st.TotalPnL, &st.Wins)
	if err != nil {
		return st, fmt.Errorf("querying trade stats: %w", err)
	}
	return st, nil
}

// TradeStats is a realized performance summary.
type TradeStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	TotalPnL    float64 `json:"total_pnl"`
}

// WinRate returns wins over total, 0 when no trades exist.
func (st TradeStats) WinRate() float64 {
	if st.TotalTrades == 0 {
		return 0
	}
	return float64(st.Wins) / float64(st.TotalTrades)
}
